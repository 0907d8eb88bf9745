package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/ports"
)

// itemFunc processes one article to a terminal, persisted outcome.
type itemFunc func(ctx context.Context, ownerID string, article domain.Article) (domain.ItemOutcome, error)

// stageWorker is a stage as seen by the orchestrator.
type stageWorker interface {
	eligible(ctx context.Context, ownerID string, limit int) ([]domain.Article, error)
	begin(ctx context.Context, articles []domain.Article) itemFunc
}

// errRunCancelled marks an item that was interrupted before any external
// call completed; nothing was persisted for it.
type errRunCancelled struct{ err error }

func (e errRunCancelled) Error() string { return "run cancelled: " + e.err.Error() }
func (e errRunCancelled) Unwrap() error { return e.err }

type runKey struct {
	ownerID string
	stage   domain.Stage
}

// OrchestratorDeps wires the stages and the completion observers.
type OrchestratorDeps struct {
	Decode    *DecodeStage
	Analyze   *AnalyzeStage
	Observers []ports.RunObserver
	Logger    *slog.Logger
	Now       func() time.Time
}

// Orchestrator drives stage runs and owns the per-(owner, stage) registry.
// At most one run per owner and stage is active at a time.
type Orchestrator struct {
	stages    map[domain.Stage]stageWorker
	observers []ports.RunObserver
	logger    *slog.Logger
	now       func() time.Time

	mu   sync.Mutex
	runs map[runKey]*Run
}

// NewOrchestrator constructs the orchestrator; nil stages are not startable.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{
		stages:    map[domain.Stage]stageWorker{},
		observers: deps.Observers,
		logger:    deps.Logger,
		now:       deps.Now,
		runs:      map[runKey]*Run{},
	}
	if deps.Decode != nil {
		o.stages[domain.StageDecode] = deps.Decode
	}
	if deps.Analyze != nil {
		o.stages[domain.StageAnalyze] = deps.Analyze
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Run is the handle of one started run. Its event channel yields one
// progress event per processed item followed by exactly one terminal event,
// then closes.
type Run struct {
	ID        string
	OwnerID   string
	Stage     domain.Stage
	Total     int
	StartedAt time.Time

	events  chan domain.Event
	cancel  context.CancelFunc
	done    chan struct{}
	summary domain.RunSummary
}

// Events is the ordered, finite event stream of the run.
func (r *Run) Events() <-chan domain.Event { return r.events }

// Cancel requests cooperative cancellation.
func (r *Run) Cancel() { r.cancel() }

// Done is closed once the terminal event was emitted and observers ran.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finished and returns its summary.
func (r *Run) Wait() domain.RunSummary {
	<-r.done
	return r.summary
}

// Start lists the eligible articles, fixes the run total and processes them
// in the background. limit only applies to the analyze stage.
func (o *Orchestrator) Start(ctx context.Context, ownerID string, stage domain.Stage, limit int) (*Run, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	worker, ok := o.stages[stage]
	if !ok {
		return nil, fmt.Errorf("%w: stage %q is not configured", domain.ErrValidation, stage)
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Stage:     stage,
		StartedAt: o.now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	key := runKey{ownerID: ownerID, stage: stage}
	o.mu.Lock()
	if _, busy := o.runs[key]; busy {
		o.mu.Unlock()
		cancel()
		return nil, domain.ErrAlreadyRunning
	}
	o.runs[key] = run
	o.mu.Unlock()

	articles, err := worker.eligible(runCtx, ownerID, limit)
	if err != nil {
		o.release(run)
		cancel()
		return nil, err
	}

	run.Total = len(articles)
	run.events = make(chan domain.Event, len(articles)+1)
	process := worker.begin(runCtx, articles)

	go o.execute(runCtx, run, articles, process)
	return run, nil
}

// Cancel cancels the active run of ownerID and stage, if any.
func (o *Orchestrator) Cancel(ownerID string, stage domain.Stage) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, ok := o.runs[runKey{ownerID: ownerID, stage: stage}]
	if !ok {
		return false
	}
	run.cancel()
	return true
}

// Active lists the stages with an in-flight run for ownerID.
func (o *Orchestrator) Active(ownerID string) []domain.Stage {
	o.mu.Lock()
	defer o.mu.Unlock()

	var stages []domain.Stage
	for key := range o.runs {
		if key.ownerID == ownerID {
			stages = append(stages, key.stage)
		}
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })
	return stages
}

func (o *Orchestrator) execute(ctx context.Context, run *Run, articles []domain.Article, process itemFunc) {
	defer close(run.done)
	defer run.cancel()

	logger := o.logger.With("run_id", run.ID, "owner_id", run.OwnerID, "stage", run.Stage)
	logger.Info("run started", "total", run.Total)

	summary := domain.RunSummary{
		RunID:     run.ID,
		OwnerID:   run.OwnerID,
		Stage:     run.Stage,
		State:     domain.RunCompleted,
		Total:     run.Total,
		StartedAt: run.StartedAt,
	}

	for _, article := range articles {
		if ctx.Err() != nil {
			summary.State = domain.RunAborted
			break
		}

		outcome, err := process(ctx, run.OwnerID, article)
		if err != nil {
			var cancelled errRunCancelled
			if ctx.Err() != nil || errors.As(err, &cancelled) {
				summary.State = domain.RunAborted
			} else {
				summary.State = domain.RunFailed
				summary.Err = err
			}
			break
		}

		if outcome.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		run.events <- domain.Event{
			Type:      domain.EventProgress,
			Succeeded: summary.Succeeded,
			Failed:    summary.Failed,
			Total:     summary.Total,
			ArticleID: article.ID,
			ItemError: outcome.Error,
		}
	}

	summary.FinishedAt = o.now()
	run.summary = summary
	o.release(run)

	run.events <- terminalEvent(summary)
	close(run.events)

	switch summary.State {
	case domain.RunFailed:
		logger.Error("run failed", "succeeded", summary.Succeeded, "failed", summary.Failed, "error", summary.Err)
	default:
		logger.Info("run finished", "state", summary.State, "succeeded", summary.Succeeded, "failed", summary.Failed)
	}

	observerCtx := context.WithoutCancel(ctx)
	for _, observer := range o.observers {
		observer.RunFinished(observerCtx, summary)
	}
}

func (o *Orchestrator) release(run *Run) {
	o.mu.Lock()
	defer o.mu.Unlock()

	key := runKey{ownerID: run.OwnerID, stage: run.Stage}
	if o.runs[key] == run {
		delete(o.runs, key)
	}
}

func terminalEvent(summary domain.RunSummary) domain.Event {
	event := domain.Event{
		Succeeded: summary.Succeeded,
		Failed:    summary.Failed,
		Total:     summary.Total,
	}
	switch summary.State {
	case domain.RunAborted:
		event.Type = domain.EventAborted
		event.Message = "run cancelled"
	case domain.RunFailed:
		event.Type = domain.EventError
		event.Message = "internal error"
	default:
		event.Type = domain.EventComplete
	}
	return event
}
