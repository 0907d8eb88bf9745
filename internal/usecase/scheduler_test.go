package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArticlePipeline/internal/domain"
)

type manualDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

type captureNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (c *captureNotifier) PublishDigest(_ context.Context, digest string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, digest)
	return nil
}

func TestSchedulerProcessesConfiguredOwners(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.insert(t, "https://example.com/a", "https://example.com/b")

	driver := &manualDriver{}
	s := NewScheduler(driver, h.pipeline, []string{testOwner}, nil)
	require.NoError(t, s.Start(context.Background()))
	require.NotNil(t, driver.job)

	driver.job(time.Now())

	counts, err := h.pipeline.Pending(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Equal(t, domain.PendingCounts{}, counts)
	assert.Equal(t, 2, h.analyzer.calls())

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, driver.stopped)
}

func TestSchedulerWithoutOwnersDoesNotRegister(t *testing.T) {
	t.Parallel()

	driver := &manualDriver{}
	s := NewScheduler(driver, NewPipeline(PipelineDeps{}), nil, nil)
	require.NoError(t, s.Start(context.Background()))
	assert.Nil(t, driver.job)
}

func TestReportObserverPublishesRunReport(t *testing.T) {
	t.Parallel()

	notifier := &captureNotifier{}
	observer := NewReportObserver(notifier, true, nil)
	started := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	observer.RunFinished(context.Background(), domain.RunSummary{
		OwnerID: testOwner, Stage: domain.StageDecode, State: domain.RunCompleted,
	})
	observer.RunFinished(context.Background(), domain.RunSummary{
		OwnerID: testOwner, Stage: domain.StageAnalyze, State: domain.RunAborted,
		Succeeded: 2, Failed: 1, Total: 5,
		StartedAt: started, FinishedAt: started.Add(1500 * time.Millisecond),
	})

	require.Len(t, notifier.messages, 1)
	assert.Equal(t, "Analyze run aborted for owner-1\nSucceeded: 2\nFailed: 1\nTotal: 5\nDuration: 1.5s", notifier.messages[0])
}

func TestBuildRunReportHidesInternalErrors(t *testing.T) {
	t.Parallel()

	report := BuildRunReport(domain.RunSummary{
		OwnerID: testOwner, Stage: domain.StageDecode, State: domain.RunFailed, Err: assert.AnError,
	})
	assert.Contains(t, report, "Decode run failed for owner-1")
	assert.Contains(t, report, "internal error")
	assert.NotContains(t, report, assert.AnError.Error())
}
