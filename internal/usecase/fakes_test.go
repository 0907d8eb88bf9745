package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/infrastructure/storage"
	"ArticlePipeline/internal/ports"
)

const testOwner = "owner-1"

type resolution struct {
	dest string
	err  error
}

type fakeResolver struct {
	mu        sync.Mutex
	byID      map[string]resolution
	byLink    map[string]resolution
	idCalls   []string
	linkCalls []string
	started   chan string
	hang      bool
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{byID: map[string]resolution{}, byLink: map[string]resolution{}}
}

func (f *fakeResolver) ResolveID(ctx context.Context, sourceID string) (string, error) {
	f.mu.Lock()
	f.idCalls = append(f.idCalls, sourceID)
	r, ok := f.byID[sourceID]
	hang, started := f.hang, f.started
	f.mu.Unlock()

	if started != nil {
		started <- sourceID
	}
	if hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if !ok {
		return "", fmt.Errorf("unexpected id %s", sourceID)
	}
	return r.dest, r.err
}

func (f *fakeResolver) ResolveLink(_ context.Context, link string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.linkCalls = append(f.linkCalls, link)
	r, ok := f.byLink[link]
	if !ok {
		return "", fmt.Errorf("unexpected link %s", link)
	}
	return r.dest, r.err
}

func (f *fakeResolver) calls() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.idCalls...), append([]string(nil), f.linkCalls...)
}

type countingPacer struct {
	mu    sync.Mutex
	waits map[string]int
}

func newCountingPacer() *countingPacer {
	return &countingPacer{waits: map[string]int{}}
}

func (p *countingPacer) Wait(ctx context.Context, dependency string) error {
	p.mu.Lock()
	p.waits[dependency]++
	p.mu.Unlock()
	return ctx.Err()
}

func (p *countingPacer) count(dependency string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waits[dependency]
}

type fakeAnalyzer struct {
	mu     sync.Mutex
	inputs []ports.AnalysisInput
	fn     func(ctx context.Context, input ports.AnalysisInput) (domain.Analysis, error)
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, input ports.AnalysisInput) (domain.Analysis, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	fn := f.fn
	f.mu.Unlock()

	if fn == nil {
		return domain.Analysis{Summary: "summary of " + input.Title, Sentiment: domain.SentimentNeutral, Categories: []string{"news"}}, nil
	}
	return fn(ctx, input)
}

func (f *fakeAnalyzer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

type fakeFetcher struct {
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) FetchContent(_ context.Context, link string) (string, error) {
	f.calls = append(f.calls, link)
	if err := f.errs[link]; err != nil {
		return "", err
	}
	return f.pages[link], nil
}

// hookStore lets tests observe writes or inject store failures.
type hookStore struct {
	*storage.MemoryRepository

	mu             sync.Mutex
	analysisWrites int
	afterAnalysis  func(n int)
	decodeErr      error
}

func (h *hookStore) UpdateDecodeResult(ctx context.Context, ownerID, articleID string, update domain.DecodeUpdate) error {
	if h.decodeErr != nil {
		return h.decodeErr
	}
	return h.MemoryRepository.UpdateDecodeResult(ctx, ownerID, articleID, update)
}

func (h *hookStore) UpdateAnalysisResult(ctx context.Context, ownerID, articleID string, update domain.AnalysisUpdate) error {
	if err := h.MemoryRepository.UpdateAnalysisResult(ctx, ownerID, articleID, update); err != nil {
		return err
	}

	h.mu.Lock()
	h.analysisWrites++
	n, hook := h.analysisWrites, h.afterAnalysis
	h.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return nil
}

type recordingObserver struct {
	mu        sync.Mutex
	summaries []domain.RunSummary
}

func (r *recordingObserver) RunFinished(_ context.Context, summary domain.RunSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, summary)
}

func (r *recordingObserver) all() []domain.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RunSummary(nil), r.summaries...)
}

type harness struct {
	store        *hookStore
	resolver     *fakeResolver
	analyzer     *fakeAnalyzer
	pacer        *countingPacer
	observer     *recordingObserver
	decode       *DecodeStage
	analyze      *AnalyzeStage
	orchestrator *Orchestrator
	pipeline     *Pipeline
}

func newHarness(t *testing.T, cache ports.DecodeCache) *harness {
	t.Helper()

	h := &harness{
		store:    &hookStore{MemoryRepository: storage.NewMemoryRepository()},
		resolver: newFakeResolver(),
		analyzer: &fakeAnalyzer{},
		pacer:    newCountingPacer(),
		observer: &recordingObserver{},
	}
	h.decode = NewDecodeStage(DecodeStageDeps{
		Store:    h.store,
		Cache:    cache,
		Resolver: h.resolver,
		Pacer:    h.pacer,
		Timeout:  time.Second,
	})
	h.analyze = NewAnalyzeStage(AnalyzeStageDeps{
		Store:    h.store,
		Analyzer: h.analyzer,
		Pacer:    h.pacer,
		Timeout:  time.Second,
	})
	h.orchestrator = NewOrchestrator(OrchestratorDeps{
		Decode:    h.decode,
		Analyze:   h.analyze,
		Observers: []ports.RunObserver{h.observer},
	})
	h.pipeline = NewPipeline(PipelineDeps{
		Store:        h.store,
		Orchestrator: h.orchestrator,
		Ingestor:     NewIngestor(IngestorDeps{Store: h.store}),
		Limits:       AnalyzeLimits{Default: 10, Max: 50},
	})
	return h
}

// insert stores articles with the given links in order and returns them.
func (h *harness) insert(t *testing.T, links ...string) []domain.Article {
	t.Helper()

	for i, link := range links {
		ok, err := h.store.InsertArticle(context.Background(), domain.Article{
			OwnerID:    testOwner,
			Title:      fmt.Sprintf("article %d", i),
			Link:       link,
			Snippet:    fmt.Sprintf("snippet %d", i),
			SourceKind: domain.SourceAggregatorSearch,
		})
		require.NoError(t, err)
		require.True(t, ok)
	}
	return h.store.All(testOwner)
}

// insertDecoded stores n articles that are already analyze-eligible.
func (h *harness) insertDecoded(t *testing.T, n int) []domain.Article {
	t.Helper()

	links := make([]string, n)
	for i := range links {
		links[i] = fmt.Sprintf("https://example.com/story/%d", i)
	}
	articles := h.insert(t, links...)
	for _, a := range articles {
		require.NoError(t, h.store.MemoryRepository.UpdateDecodeResult(context.Background(), testOwner, a.ID, domain.DecodeUpdate{URLDecoded: true}))
	}
	return h.store.All(testOwner)
}

func (h *harness) get(t *testing.T, id string) domain.Article {
	t.Helper()
	a, err := h.store.Get(testOwner, id)
	require.NoError(t, err)
	return a
}

func collect(t *testing.T, run *Run) []domain.Event {
	t.Helper()

	timeout := time.After(5 * time.Second)
	var events []domain.Event
	for {
		select {
		case e, ok := <-run.Events():
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatal("run did not finish")
			return nil
		}
	}
}
