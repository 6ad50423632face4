package linker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"log/slog"

	"anilink/internal/config"
	"anilink/internal/logging"
	"anilink/internal/notifications"
	"anilink/internal/plan"
	"anilink/internal/queue"
	"anilink/internal/services"
	"anilink/internal/stage"
)

// Linker is the stage handler that archives resolved episodes into the
// library.
type Linker struct {
	store    *queue.Store
	cfg      *config.Config
	logger   *slog.Logger
	notifier notifications.Service
	artwork  *artworkFetcher
	locks    *pathLocks
}

// NewLinker creates the linking stage handler with its production
// collaborators.
func NewLinker(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Linker {
	return NewLinkerWithDependencies(cfg, store, logger, notifications.NewService(cfg))
}

// NewLinkerWithDependencies allows injecting the notifier (used in tests).
func NewLinkerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Linker {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "linker"))
	}
	return &Linker{
		store:    store,
		cfg:      cfg,
		logger:   stageLogger,
		notifier: notifier,
		artwork:  newArtworkFetcher(),
		locks:    newPathLocks(),
	}
}

func (l *Linker) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, l.logger)
	if item.ProgressStage == "" {
		item.ProgressStage = "Linking"
	}
	item.ProgressMessage = "Preparing library placement"
	item.ProgressPercent = 0
	item.ErrorMessage = ""
	logger.Info("starting library linking", logging.String("source_path", strings.TrimSpace(item.SourcePath)))
	return nil
}

func (l *Linker) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, l.logger)

	meta, ok := queue.MetadataFromJSON(item.MetadataJSON)
	if !ok {
		return services.Wrap(
			services.ErrValidation,
			"linking",
			"decode metadata",
			"Queue item has no resolved metadata; run the resolving stage first",
			nil,
		)
	}

	p, err := plan.Build(item.SourcePath, meta, plan.Options{
		LibraryDir:      l.cfg.Paths.LibraryDir,
		WriteNFO:        l.cfg.Linker.WriteNFO,
		DownloadArtwork: l.cfg.Linker.DownloadArtwork,
	})
	if err != nil {
		return services.Wrap(
			services.ErrValidation,
			"linking",
			"build plan",
			fmt.Sprintf("Cannot derive a library path for %s", meta.Display()),
			err,
		)
	}

	l.updateProgress(ctx, item, fmt.Sprintf("Archiving %s", p.Describe()), 10)

	record, err := l.Materialize(ctx, p)
	if err != nil {
		return err
	}

	item.TargetPath = record.TargetPath
	logger.Info(
		"episode linked into library",
		logging.String("source_path", record.SourcePath),
		logging.String("target_path", record.TargetPath),
		logging.String("fingerprint", record.Fingerprint),
	)

	if l.notifier != nil {
		if err := l.notifier.Publish(ctx, notifications.EventItemCompleted, notifications.Payload{
			"title": meta.Display(),
			"file":  filepath.Base(record.TargetPath),
		}); err != nil {
			logger.Warn("completion notifier failed", logging.Error(err))
		}
	}

	item.SetProgressComplete("Linking", fmt.Sprintf("Available in library: %s", filepath.Base(record.TargetPath)))
	return nil
}

// HealthCheck reports linker readiness based on configuration wiring.
func (l *Linker) HealthCheck(ctx context.Context) stage.Health {
	const name = "linker"
	if l.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(l.cfg.Paths.LibraryDir) == "" {
		return stage.Unhealthy(name, "library directory not configured")
	}
	return stage.Healthy(name)
}

func (l *Linker) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) {
	logger := logging.WithContext(ctx, l.logger)
	copy := *item
	copy.ProgressMessage = message
	copy.ProgressPercent = percent
	if err := l.store.Update(ctx, &copy); err != nil {
		logger.Warn("failed to persist linker progress", logging.Error(err))
		return
	}
	*item = copy
}
