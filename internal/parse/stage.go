package parse

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"log/slog"

	"anilink/internal/config"
	"anilink/internal/logging"
	"anilink/internal/queue"
	"anilink/internal/services"
	"anilink/internal/stage"
)

// Parser is the stage handler that turns a queue item's source filename into
// a structured candidate for the resolving stage.
type Parser struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
}

// NewParser constructs the parsing stage handler.
func NewParser(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Parser {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "parser"))
	}
	return &Parser{store: store, cfg: cfg, logger: stageLogger}
}

func (p *Parser) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, p.logger)
	if item.ProgressStage == "" {
		item.ProgressStage = "Parsing"
	}
	item.ProgressMessage = "Reading release filename"
	item.ProgressPercent = 0
	item.ErrorMessage = ""
	logger.Info("starting filename parse", logging.String("source_path", strings.TrimSpace(item.SourcePath)))
	return nil
}

func (p *Parser) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, p.logger)
	if strings.TrimSpace(item.SourcePath) == "" {
		return services.Wrap(
			services.ErrValidation,
			"parsing",
			"validate inputs",
			"Queue item has no source path; remove it and rescan the source directory",
			nil,
		)
	}

	base := filepath.Base(item.SourcePath)
	candidate := Parse(base)
	encoded, err := candidate.ToJSON()
	if err != nil {
		return services.Wrap(services.ErrTransient, "parsing", "encode candidate", "Failed to encode parsed candidate", err)
	}
	item.CandidateJSON = encoded
	item.DisplayTitle = candidate.Title

	if !candidate.Parseable() {
		logger.Warn("no strategy matched filename", logging.String("filename", base))
		if err := p.store.Update(ctx, item); err != nil {
			logger.Warn("failed to persist unparseable candidate", logging.Error(err))
		}
		return services.Wrap(
			services.ErrParse,
			"parsing",
			"match strategies",
			fmt.Sprintf("No naming pattern recognized %q; rename the file or add a mapping rule", base),
			nil,
		)
	}

	logger.Info(
		"filename parsed",
		logging.String("filename", base),
		logging.String("strategy", candidate.Strategy),
		logging.String("confidence", string(candidate.Confidence)),
		logging.String("title", candidate.Title),
		logging.String("episode", candidate.Label()),
	)
	item.SetProgressComplete("Parsing", fmt.Sprintf("Parsed %s %s", candidate.Title, candidate.Label()))
	return nil
}

// HealthCheck reports parser readiness. Parsing is pure computation, so only
// configuration wiring can fail.
func (p *Parser) HealthCheck(ctx context.Context) stage.Health {
	const name = "parser"
	if p.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	return stage.Healthy(name)
}
