package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/ports"
)

// AnalyzeLimits bounds the number of articles one analyze run may take.
type AnalyzeLimits struct {
	Default int
	Max     int
}

// Clamp maps a caller-supplied limit into [1, Max]; non-positive values
// select Default.
func (l AnalyzeLimits) Clamp(limit int) int {
	def, ceiling := l.Default, l.Max
	if ceiling <= 0 {
		ceiling = 50
	}
	if def <= 0 || def > ceiling {
		def = ceiling
	}

	switch {
	case limit <= 0:
		return def
	case limit > ceiling:
		return ceiling
	default:
		return limit
	}
}

// PipelineDeps wires all driven adapters into the facade used by the
// transports and the scheduler.
type PipelineDeps struct {
	Store        ports.ArticleStore
	Orchestrator *Orchestrator
	Ingestor     *Ingestor
	Limits       AnalyzeLimits
	Logger       *slog.Logger
}

// Pipeline exposes the ingest, decode and analyze workflow per owner.
type Pipeline struct {
	store        ports.ArticleStore
	orchestrator *Orchestrator
	ingestor     *Ingestor
	limits       AnalyzeLimits
	logger       *slog.Logger
}

// NewPipeline constructs the facade.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:        deps.Store,
		orchestrator: deps.Orchestrator,
		ingestor:     deps.Ingestor,
		limits:       deps.Limits,
		logger:       logger,
	}
}

// StartDecode starts a decode run over every decode-eligible article.
func (p *Pipeline) StartDecode(ctx context.Context, ownerID string) (*Run, error) {
	return p.orchestrator.Start(ctx, ownerID, domain.StageDecode, 0)
}

// StartAnalyze starts an analyze run; limit is clamped, never rejected.
func (p *Pipeline) StartAnalyze(ctx context.Context, ownerID string, limit int) (*Run, error) {
	return p.orchestrator.Start(ctx, ownerID, domain.StageAnalyze, p.limits.Clamp(limit))
}

// AnalyzeBatch runs an analyze run to the end and reports it as one result.
func (p *Pipeline) AnalyzeBatch(ctx context.Context, ownerID string, limit int) (domain.BatchResult, error) {
	run, err := p.StartAnalyze(ctx, ownerID, limit)
	if err != nil {
		return domain.BatchResult{}, err
	}

	summary, itemErrors := Drain(run)
	if summary.State == domain.RunFailed {
		return domain.BatchResult{}, summary.Err
	}

	counts, err := p.store.CountPending(context.WithoutCancel(ctx), ownerID)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("count pending: %w", err)
	}

	return domain.BatchResult{
		Analyzed:  summary.Succeeded,
		Failed:    summary.Failed,
		Remaining: counts.AnalyzePending,
		Errors:    itemErrors,
	}, nil
}

// Cancel stops the in-flight run of a stage.
func (p *Pipeline) Cancel(ownerID string, stage domain.Stage) bool {
	return p.orchestrator.Cancel(ownerID, stage)
}

// ResetFailed makes every failed analysis eligible again.
func (p *Pipeline) ResetFailed(ctx context.Context, ownerID string) (int, error) {
	n, err := p.store.ResetFailedAnalyses(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("reset failed analyses: %w", err)
	}
	p.logger.Info("failed analyses reset", "owner_id", ownerID, "count", n)
	return n, nil
}

// Pending returns the decode and analyze backlogs.
func (p *Pipeline) Pending(ctx context.Context, ownerID string) (domain.PendingCounts, error) {
	counts, err := p.store.CountPending(ctx, ownerID)
	if err != nil {
		return domain.PendingCounts{}, fmt.Errorf("count pending: %w", err)
	}
	return counts, nil
}

// Ingest pulls fresh candidates for the owner.
func (p *Pipeline) Ingest(ctx context.Context, ownerID string) (domain.IngestResult, error) {
	if p.ingestor == nil {
		return domain.IngestResult{Errors: []string{}}, nil
	}
	return p.ingestor.Ingest(ctx, ownerID)
}

// ProcessOwner runs ingest, decode and analyze back to back. A stage that is
// already running for the owner is skipped.
func (p *Pipeline) ProcessOwner(ctx context.Context, ownerID string) error {
	ingested, err := p.Ingest(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	p.logger.Info("ingested", "owner_id", ownerID, "inserted", ingested.Inserted, "skipped", ingested.Skipped)

	for _, start := range []func() (*Run, error){
		func() (*Run, error) { return p.StartDecode(ctx, ownerID) },
		func() (*Run, error) { return p.StartAnalyze(ctx, ownerID, 0) },
	} {
		run, err := start()
		if errors.Is(err, domain.ErrAlreadyRunning) {
			p.logger.Info("stage already running, skipped", "owner_id", ownerID)
			continue
		}
		if err != nil {
			return err
		}

		summary, _ := Drain(run)
		switch summary.State {
		case domain.RunFailed:
			return fmt.Errorf("%s run: %w", summary.Stage, summary.Err)
		case domain.RunAborted:
			return ctx.Err()
		}
	}
	return nil
}

// Drain consumes the events of run until it finishes and returns its summary
// together with the per-item error messages.
func Drain(run *Run) (domain.RunSummary, []string) {
	itemErrors := []string{}
	for event := range run.Events() {
		if event.ItemError != "" {
			itemErrors = append(itemErrors, fmt.Sprintf("%s: %s", event.ArticleID, event.ItemError))
		}
	}
	return run.Wait(), itemErrors
}
