package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directories anilink reads from and writes to.
type Paths struct {
	// SourceDir is scanned (and watched) for incoming video files.
	SourceDir string `toml:"source_dir"`
	// LibraryDir is the root of the organized library tree.
	LibraryDir string `toml:"library_dir"`
	// DataDir holds the queue database and resolver cache.
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// TMDB contains configuration for show and episode lookups.
type TMDB struct {
	APIKey       string `toml:"api_key"`
	BaseURL      string `toml:"base_url"`
	ImageBaseURL string `toml:"image_base_url"`
	Language     string `toml:"language"`
	// RequestsPerSecond throttles outbound API calls across all workers.
	RequestsPerSecond float64 `toml:"requests_per_second"`
	// CacheTTLHours controls how long cached show records stay fresh.
	CacheTTLHours int `toml:"cache_ttl_hours"`
	// CachePruneInterval is the number of seconds between cache sweeps in
	// watch mode. Zero disables periodic pruning.
	CachePruneInterval int `toml:"cache_prune_interval"`
	// RetryAttempts bounds retries after transient API failures.
	RetryAttempts int `toml:"retry_attempts"`
	// RetryDelaySeconds is the initial backoff delay, doubled per attempt.
	RetryDelaySeconds int `toml:"retry_delay_seconds"`
	// MappingsPath points at the manual filename-to-show mapping file.
	MappingsPath string `toml:"mappings_path"`
}

// Scanner contains configuration for source directory scans.
type Scanner struct {
	VideoExtensions []string `toml:"video_extensions"`
	// MinSizeMB filters out samples and partial downloads.
	MinSizeMB int `toml:"min_size_mb"`
	// SettleSeconds is how long a file's size must hold steady before the
	// scanner considers it fully written.
	SettleSeconds int `toml:"settle_seconds"`
}

// Linker contains configuration for library materialization.
type Linker struct {
	// OnCrossDevice selects the fallback when the library lives on a
	// different filesystem than the source: "copy", "symlink", or "fail".
	OnCrossDevice   string `toml:"on_cross_device"`
	WriteNFO        bool   `toml:"write_nfo"`
	DownloadArtwork bool   `toml:"download_artwork"`
}

// Workflow contains configuration for daemon orchestration.
type Workflow struct {
	// Workers is the number of queue items processed concurrently.
	Workers            int `toml:"workers"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Watch contains configuration for filesystem watch mode.
type Watch struct {
	// DebounceSeconds delays enqueueing after the last write event so
	// in-progress downloads are not picked up mid-copy.
	DebounceSeconds int `toml:"debounce_seconds"`
	// RescanInterval is the number of seconds between full safety-net
	// rescans of the source directory.
	RescanInterval int `toml:"rescan_interval"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Review         bool   `toml:"review"`
	Errors         bool   `toml:"errors"`
	// DedupWindowSeconds suppresses identical notifications sent within
	// the window.
	DedupWindowSeconds int `toml:"dedup_window_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for anilink.
//
// Configuration sections by subsystem:
//   - Paths: source, library, data, and log directories
//   - TMDB: show and episode metadata lookups
//   - Scanner: source directory scan filters
//   - Linker: hard-link materialization behavior
//   - Workflow: worker pool sizing and daemon intervals
//   - Watch: filesystem watch mode tuning
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	TMDB          TMDB          `toml:"tmdb"`
	Scanner       Scanner       `toml:"scanner"`
	Linker        Linker        `toml:"linker"`
	Workflow      Workflow      `toml:"workflow"`
	Watch         Watch         `toml:"watch"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/anilink/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/anilink/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("anilink.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// SourceDir and LibraryDir are created on a best-effort basis so the daemon
// can run when external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	for _, dir := range []string{c.Paths.SourceDir, c.Paths.LibraryDir} {
		if strings.TrimSpace(dir) != "" {
			// Best-effort to avoid failing config load when storage is offline.
			_ = os.MkdirAll(dir, 0o755)
		}
	}
	return nil
}

// QueueDatabasePath returns the location of the queue database inside DataDir.
func (c *Config) QueueDatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "anilink.db")
}

// ShowCachePath returns the location of the resolver show cache inside DataDir.
func (c *Config) ShowCachePath() string {
	return filepath.Join(c.Paths.DataDir, "showcache.json")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
