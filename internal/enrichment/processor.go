package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/queue"
	"curator/internal/services"
	"curator/internal/services/analysis"
	"curator/internal/worker"
)

// ItemTracker reads and updates item state in the catalog.
type ItemTracker interface {
	Item(ctx context.Context, itemID int64) (*analysis.Item, error)
	SetStatus(ctx context.Context, itemID int64, status analysis.ItemStatus, message string) error
}

// Analyzer runs analysis for one item.
type Analyzer interface {
	Analyze(ctx context.Context, itemID int64) (analysis.Result, error)
}

// Processor enriches one queued item per call.
type Processor struct {
	tracker       ItemTracker
	analyzer      Analyzer
	logger        *slog.Logger
	statusTimeout time.Duration
	reasonLimit   int
}

var _ worker.Processor = (*Processor)(nil)

// NewProcessor wires the collaborators. A nil logger discards output.
func NewProcessor(tracker ItemTracker, analyzer Analyzer, logger *slog.Logger) *Processor {
	return &Processor{
		tracker:       tracker,
		analyzer:      analyzer,
		logger:        logging.NewComponentLogger(logger, "enrichment"),
		statusTimeout: 30 * time.Second,
		reasonLimit:   queue.DefaultErrorMessageLimit,
	}
}

// NewFromConfig builds a processor backed by the analysis client configured
// in cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Processor {
	client := analysis.NewClient(analysis.Config{
		Endpoint:       cfg.Analysis.Endpoint,
		APIKey:         cfg.Analysis.APIKey,
		TimeoutSeconds: cfg.Analysis.TimeoutSeconds,
	})
	p := NewProcessor(client, client, logger)
	p.reasonLimit = cfg.Queue.ErrorMessageLimit
	return p
}

// Process implements worker.Processor.
func (p *Processor) Process(ctx context.Context, entry *queue.Entry) error {
	if entry == nil {
		return services.Wrap(services.ErrValidation, "enrichment", "process", "nil queue entry", nil)
	}
	itemID := entry.ItemID
	logger := logging.WithContext(ctx, p.logger)

	item, err := p.tracker.Item(ctx, itemID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return services.Wrap(services.ErrNotFound, "enrichment", "lookup", fmt.Sprintf("item %d not found", itemID), err)
		}
		return p.fail(ctx, logger, itemID, err)
	}
	if item == nil {
		return services.Wrap(services.ErrNotFound, "enrichment", "lookup", fmt.Sprintf("item %d not found", itemID), nil)
	}

	if err := p.tracker.SetStatus(ctx, itemID, analysis.ItemStatusAnalyzing, ""); err != nil {
		return p.fail(ctx, logger, itemID, err)
	}
	logger.Info("analysis started",
		logging.String("filename", item.Filename),
		logging.Int(logging.FieldAttempt, entry.Attempts),
	)

	started := time.Now()
	result, err := p.analyzer.Analyze(ctx, itemID)
	if err != nil {
		return p.fail(ctx, logger, itemID, err)
	}
	if err := p.tracker.SetStatus(ctx, itemID, analysis.ItemStatusAnalyzed, ""); err != nil {
		return p.fail(ctx, logger, itemID, err)
	}

	logger.Info("analysis completed",
		logging.Duration("elapsed", time.Since(started)),
		logging.Int("tags", len(result.Tags)),
		logging.String("embedding_id", result.EmbeddingID),
	)
	return nil
}

// fail marks the item errored (best effort) and returns err for the queue.
func (p *Processor) fail(ctx context.Context, logger *slog.Logger, itemID int64, err error) error {
	reason := queue.ReasonFromError(err, p.reasonLimit)
	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.statusTimeout)
	defer cancel()
	if statusErr := p.tracker.SetStatus(statusCtx, itemID, analysis.ItemStatusError, reason); statusErr != nil {
		logging.WarnWithContext(logger, "failed to record item error status", "item_status_failed",
			logging.Error(statusErr),
			logging.String(logging.FieldImpact, "catalog may show the item as analyzing"),
		)
	}
	return err
}
