package resolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"anilink/internal/config"
	"anilink/internal/logging"
	"anilink/internal/mapping"
	"anilink/internal/parse"
	"anilink/internal/queue"
	"anilink/internal/resolve/tmdb"
	"anilink/internal/services"
	"anilink/internal/showcache"
	"anilink/internal/stage"
)

// Resolver is the stage handler that maps parsed candidates onto canonical
// TMDB show and episode records.
type Resolver struct {
	store    *queue.Store
	cfg      *config.Config
	logger   *slog.Logger
	searcher tmdb.Searcher
	cache    *showcache.Cache
	mappings *mapping.Catalog
}

// NewResolver creates the resolving stage handler with its production
// collaborators: the TMDB client, the on-disk show cache, and the manual
// mapping catalog.
func NewResolver(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Resolver {
	var searcher tmdb.Searcher
	client, err := tmdb.New(
		cfg.TMDB.APIKey,
		cfg.TMDB.BaseURL,
		cfg.TMDB.Language,
		tmdb.WithRateLimit(cfg.TMDB.RequestsPerSecond),
	)
	if err != nil {
		if logger != nil {
			logger.Warn("tmdb client initialization failed", logging.Error(err))
		}
	} else {
		searcher = client
	}
	cache := showcache.New(cfg.ShowCachePath(), time.Duration(cfg.TMDB.CacheTTLHours)*time.Hour, logger)
	mappings := mapping.NewCatalog(cfg.TMDB.MappingsPath, logger)
	return NewResolverWithDependencies(cfg, store, logger, searcher, cache, mappings)
}

// NewResolverWithDependencies allows injecting the searcher, show cache, and
// mapping catalog (used in tests).
func NewResolverWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, searcher tmdb.Searcher, cache *showcache.Cache, mappings *mapping.Catalog) *Resolver {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "resolver"))
	}
	if cache == nil {
		cache = showcache.New("", 0, nil)
	}
	return &Resolver{
		store:    store,
		cfg:      cfg,
		logger:   stageLogger,
		searcher: searcher,
		cache:    cache,
		mappings: mappings,
	}
}

// Cache exposes the show cache so the workflow manager can prune it
// periodically.
func (r *Resolver) Cache() *showcache.Cache {
	return r.cache
}

func (r *Resolver) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, r.logger)
	if item.ProgressStage == "" {
		item.ProgressStage = "Resolving"
	}
	item.ProgressMessage = "Looking up show metadata"
	item.ProgressPercent = 0
	item.ErrorMessage = ""
	logger.Info(
		"starting metadata resolution",
		logging.String("title", strings.TrimSpace(item.DisplayTitle)),
		logging.String("source_path", strings.TrimSpace(item.SourcePath)),
	)
	return nil
}

func (r *Resolver) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, r.logger)

	candidate, ok := parse.CandidateFromJSON(item.CandidateJSON)
	if !ok {
		return services.Wrap(
			services.ErrValidation,
			"resolving",
			"decode candidate",
			"Queue item has no parsed candidate; rerun the parsing stage",
			nil,
		)
	}

	// The file's mtime feeds air-date scoring; a missing file only costs
	// that signal.
	var modTime time.Time
	if info, err := os.Stat(item.SourcePath); err == nil {
		modTime = info.ModTime()
	}

	r.updateProgress(ctx, item, fmt.Sprintf("Resolving %s %s", candidate.Title, candidate.Label()), 10)

	meta, err := r.resolveCandidate(ctx, logger, filepath.Base(item.SourcePath), candidate, modTime)
	if err != nil {
		return err
	}

	encoded, err := meta.ToJSON()
	if err != nil {
		return services.Wrap(services.ErrTransient, "resolving", "encode metadata", "Failed to encode resolved metadata", err)
	}
	item.MetadataJSON = encoded
	item.DisplayTitle = meta.Display()

	logger.Info(
		"episode resolved",
		logging.Int64("show_id", meta.ShowID),
		logging.String("show_title", meta.ShowTitle),
		logging.String("episode", meta.Label()),
		logging.String("episode_title", meta.EpisodeTitle),
	)
	item.SetProgressComplete("Resolving", fmt.Sprintf("Resolved %s", meta.Display()))
	return nil
}

// HealthCheck reports resolver readiness, including TMDB client availability.
func (r *Resolver) HealthCheck(ctx context.Context) stage.Health {
	const name = "resolver"
	if r.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if r.searcher == nil {
		return stage.Unhealthy(name, "tmdb client unavailable; check tmdb.api_key")
	}
	return stage.Healthy(name)
}

func (r *Resolver) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) {
	logger := logging.WithContext(ctx, r.logger)
	copy := *item
	copy.ProgressMessage = message
	copy.ProgressPercent = percent
	if err := r.store.Update(ctx, &copy); err != nil {
		logger.Warn("failed to persist resolver progress", logging.Error(err))
		return
	}
	*item = copy
}

// imageURL joins a TMDB image path onto the configured image base URL.
func (r *Resolver) imageURL(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	base := strings.TrimRight(r.cfg.TMDB.ImageBaseURL, "/")
	if base == "" {
		return ""
	}
	return base + path
}
