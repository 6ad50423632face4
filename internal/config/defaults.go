package config

const (
	defaultSourceDir                 = "~/anime/incoming"
	defaultLibraryDir                = "~/anime/library"
	defaultDataDir                   = "~/.local/share/anilink"
	defaultLogDir                    = "~/.local/share/anilink/logs"
	defaultLogRetentionDays          = 60
	defaultTMDBLanguage              = "en-US"
	defaultTMDBBaseURL               = "https://api.themoviedb.org/3"
	defaultTMDBImageBaseURL          = "https://image.tmdb.org/t/p/w780"
	defaultTMDBRequestsPerSecond     = 4.0
	defaultTMDBCacheTTLHours         = 168
	defaultTMDBCachePruneInterval    = 21600
	defaultTMDBRetryAttempts         = 3
	defaultTMDBRetryDelaySeconds     = 1
	defaultMappingsPath              = "~/.config/anilink/mappings.json"
	defaultScannerMinSizeMB          = 10
	defaultScannerSettleSeconds      = 5
	defaultLinkerOnCrossDevice       = "copy"
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultWorkflowWorkers           = 2
	defaultWorkflowHeartbeatInterval = 15
	defaultWorkflowHeartbeatTimeout  = 120
	defaultWatchDebounceSeconds      = 5
	defaultWatchRescanInterval       = 3600
	defaultNotifyDedupWindowSeconds  = 600
)

func defaultVideoExtensions() []string {
	return []string{".mkv", ".mp4", ".avi"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SourceDir:  defaultSourceDir,
			LibraryDir: defaultLibraryDir,
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
		},
		TMDB: TMDB{
			Language:           defaultTMDBLanguage,
			BaseURL:            defaultTMDBBaseURL,
			ImageBaseURL:       defaultTMDBImageBaseURL,
			RequestsPerSecond:  defaultTMDBRequestsPerSecond,
			CacheTTLHours:      defaultTMDBCacheTTLHours,
			CachePruneInterval: defaultTMDBCachePruneInterval,
			RetryAttempts:      defaultTMDBRetryAttempts,
			RetryDelaySeconds:  defaultTMDBRetryDelaySeconds,
			MappingsPath:       defaultMappingsPath,
		},
		Scanner: Scanner{
			VideoExtensions: defaultVideoExtensions(),
			MinSizeMB:       defaultScannerMinSizeMB,
			SettleSeconds:   defaultScannerSettleSeconds,
		},
		Linker: Linker{
			OnCrossDevice:   defaultLinkerOnCrossDevice,
			WriteNFO:        true,
			DownloadArtwork: true,
		},
		Workflow: Workflow{
			Workers:            defaultWorkflowWorkers,
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			HeartbeatInterval:  defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:   defaultWorkflowHeartbeatTimeout,
		},
		Watch: Watch{
			DebounceSeconds: defaultWatchDebounceSeconds,
			RescanInterval:  defaultWatchRescanInterval,
		},
		Notifications: Notifications{
			RequestTimeout:     10,
			Completed:          true,
			Review:             true,
			Errors:             true,
			DedupWindowSeconds: defaultNotifyDedupWindowSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
