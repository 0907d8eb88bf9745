package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/ports"
)

func TestRunProgressIsMonotonicAndMatchesStore(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.analyzer.fn = func(_ context.Context, input ports.AnalysisInput) (domain.Analysis, error) {
		if strings.HasSuffix(input.Title, "1") || strings.HasSuffix(input.Title, "4") {
			return domain.Analysis{}, errors.New("bad payload")
		}
		return domain.Analysis{Summary: "ok", Sentiment: domain.SentimentNeutral}, nil
	}
	articles := h.insertDecoded(t, 6)

	run, err := h.pipeline.StartAnalyze(context.Background(), testOwner, 10)
	require.NoError(t, err)
	events := collect(t, run)
	require.Len(t, events, 7)

	for i, e := range events[:6] {
		assert.Equal(t, domain.EventProgress, e.Type)
		assert.Equal(t, i+1, e.Succeeded+e.Failed)
		assert.Equal(t, 6, e.Total)
		assert.Equal(t, articles[i].ID, e.ArticleID)
	}

	final := events[6]
	assert.Equal(t, domain.EventComplete, final.Type)
	assert.Equal(t, 4, final.Succeeded)
	assert.Equal(t, 2, final.Failed)

	var succeeded, failed int
	for _, a := range h.store.All(testOwner) {
		switch {
		case a.FailedAnalysis():
			failed++
		case a.AIProcessed:
			succeeded++
		}
	}
	assert.Equal(t, final.Succeeded, succeeded)
	assert.Equal(t, final.Failed, failed)
}

func TestRunCancelledAfterSecondItem(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.store.afterAnalysis = func(n int) {
		if n == 2 {
			h.orchestrator.Cancel(testOwner, domain.StageAnalyze)
		}
	}
	h.insertDecoded(t, 5)

	run, err := h.pipeline.StartAnalyze(context.Background(), testOwner, 5)
	require.NoError(t, err)
	events := collect(t, run)

	require.Len(t, events, 3)
	assert.Equal(t, domain.EventProgress, events[0].Type)
	assert.Equal(t, domain.EventProgress, events[1].Type)
	assert.Equal(t, domain.Event{Type: domain.EventAborted, Succeeded: 2, Total: 5, Message: "run cancelled"}, events[2])

	processed, eligible := 0, 0
	for _, a := range h.store.All(testOwner) {
		if a.AIProcessed {
			processed++
		}
		if a.AnalyzeEligible() {
			eligible++
		}
	}
	assert.Equal(t, 2, processed)
	assert.Equal(t, 3, eligible)
	assert.Equal(t, domain.RunAborted, run.Wait().State)
}

func TestRunRejectsOverlappingStartAndCancelsInFlightCall(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.resolver.hang = true
	h.resolver.started = make(chan string, 1)
	articles := h.insert(t, wrappedA)

	run, err := h.pipeline.StartDecode(context.Background(), testOwner)
	require.NoError(t, err)

	select {
	case <-h.resolver.started:
	case <-time.After(5 * time.Second):
		t.Fatal("resolver was not called")
	}

	_, err = h.pipeline.StartDecode(context.Background(), testOwner)
	require.ErrorIs(t, err, domain.ErrAlreadyRunning)
	assert.Equal(t, []domain.Stage{domain.StageDecode}, h.orchestrator.Active(testOwner))

	_, err = h.pipeline.StartDecode(context.Background(), "owner-2")
	require.NoError(t, err, "other owners run independently")

	assert.True(t, h.pipeline.Cancel(testOwner, domain.StageDecode))
	events := collect(t, run)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventAborted, events[0].Type)

	a := h.get(t, articles[0].ID)
	assert.True(t, a.DecodeEligible(), "interrupted item keeps its state")
	assert.Empty(t, h.orchestrator.Active(testOwner))
	assert.False(t, h.pipeline.Cancel(testOwner, domain.StageDecode))

	again, err := h.pipeline.StartDecode(context.Background(), testOwner)
	require.NoError(t, err)
	again.Cancel()
	collect(t, again)
}

func TestRunRequiresOwner(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, err := h.pipeline.StartDecode(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = h.pipeline.AnalyzeBatch(context.Background(), "", 5)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRunWithNothingEligibleCompletesImmediately(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	run, err := h.pipeline.StartDecode(context.Background(), testOwner)
	require.NoError(t, err)

	events := collect(t, run)
	assert.Equal(t, []domain.Event{{Type: domain.EventComplete}}, events)
}

func TestObserversReceiveTerminalSummary(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.insertDecoded(t, 2)

	run, err := h.pipeline.StartAnalyze(context.Background(), testOwner, 0)
	require.NoError(t, err)
	summary := run.Wait()

	observed := h.observer.all()
	require.Len(t, observed, 1)
	assert.Equal(t, summary, observed[0])
	assert.Equal(t, domain.StageAnalyze, observed[0].Stage)
	assert.Equal(t, domain.RunCompleted, observed[0].State)
	assert.Equal(t, 2, observed[0].Succeeded)
	assert.Equal(t, run.ID, observed[0].RunID)
}

func TestUnknownStageIsRejected(t *testing.T) {
	t.Parallel()

	o := NewOrchestrator(OrchestratorDeps{})
	_, err := o.Start(context.Background(), testOwner, domain.StageDecode, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
