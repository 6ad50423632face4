package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTMDB(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateScanner(); err != nil {
		return err
	}
	if err := c.validateLinker(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTMDB() error {
	if c.TMDB.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/anilink/config.toml"
		}
		return fmt.Errorf("tmdb.api_key is required. Set TMDB_API_KEY env var or edit %s (create with 'anilink config init')", defaultPath)
	}
	if c.TMDB.RequestsPerSecond <= 0 {
		return errors.New("tmdb.requests_per_second must be positive")
	}
	if c.TMDB.CacheTTLHours <= 0 {
		return errors.New("tmdb.cache_ttl_hours must be positive")
	}
	if c.TMDB.CachePruneInterval < 0 {
		return errors.New("tmdb.cache_prune_interval must be >= 0")
	}
	if c.TMDB.RetryAttempts < 1 {
		return errors.New("tmdb.retry_attempts must be >= 1")
	}
	if c.TMDB.RetryDelaySeconds < 1 {
		return errors.New("tmdb.retry_delay_seconds must be >= 1")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.SourceDir == "" {
		return errors.New("paths.source_dir must be set")
	}
	if c.Paths.LibraryDir == "" {
		return errors.New("paths.library_dir must be set")
	}
	if c.Paths.SourceDir == c.Paths.LibraryDir {
		return errors.New("paths.source_dir and paths.library_dir must differ")
	}
	return nil
}

func (c *Config) validateScanner() error {
	if len(c.Scanner.VideoExtensions) == 0 {
		return errors.New("scanner.video_extensions must include at least one extension")
	}
	if c.Scanner.MinSizeMB < 0 {
		return errors.New("scanner.min_size_mb must be >= 0")
	}
	if c.Scanner.SettleSeconds < 0 {
		return errors.New("scanner.settle_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateLinker() error {
	switch c.Linker.OnCrossDevice {
	case "copy", "symlink", "fail":
		return nil
	default:
		return fmt.Errorf("linker.on_cross_device must be one of copy, symlink, fail (got %q)", c.Linker.OnCrossDevice)
	}
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Workers <= 0 {
		return errors.New("workflow.workers must be positive")
	}
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"watch.debounce_seconds":        c.Watch.DebounceSeconds,
		"watch.rescan_interval":         c.Watch.RescanInterval,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.DedupWindowSeconds < 0 {
		return errors.New("notifications.dedup_window_seconds must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
