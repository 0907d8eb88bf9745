package ports

import (
	"context"
	"time"

	"ArticlePipeline/internal/domain"
)

// ArticleStore is the owner-scoped persistence contract used by every stage.
// All methods fail with domain.ErrUnauthorized when ownerID is empty.
type ArticleStore interface {
	// InsertArticle stores a new article; false means (owner, link) already exists.
	InsertArticle(ctx context.Context, article domain.Article) (bool, error)
	ListDecodeEligible(ctx context.Context, ownerID string) ([]domain.Article, error)
	ListAnalyzeEligible(ctx context.Context, ownerID string, limit int) ([]domain.Article, error)
	UpdateDecodeResult(ctx context.Context, ownerID, articleID string, update domain.DecodeUpdate) error
	UpdateAnalysisResult(ctx context.Context, ownerID, articleID string, update domain.AnalysisUpdate) error
	CountPending(ctx context.Context, ownerID string) (domain.PendingCounts, error)
	ResetFailedAnalyses(ctx context.Context, ownerID string) (int, error)
	ListEnabledTopics(ctx context.Context, ownerID string) ([]domain.Topic, error)
}

// DecodeCache maps a wrapped-link source id to its resolved destination.
type DecodeCache interface {
	Lookup(ctx context.Context, sourceID string) (string, bool, error)
	LookupBatch(ctx context.Context, sourceIDs []string) (map[string]string, error)
	Store(ctx context.Context, sourceID, destination string) error
}

// URLResolver is the external, rate-limited resolution service.
type URLResolver interface {
	// ResolveID decodes a wrapped link by its extracted source id.
	ResolveID(ctx context.Context, sourceID string) (string, error)
	// ResolveLink follows redirects of a link whose id could not be extracted.
	ResolveLink(ctx context.Context, link string) (string, error)
}

// AnalysisInput is the text handed to the inference service.
type AnalysisInput struct {
	Title   string
	Content string
}

// Analyzer calls the external inference service and returns a validated result.
type Analyzer interface {
	Analyze(ctx context.Context, input AnalysisInput) (domain.Analysis, error)
}

// ContentFetcher crawls the readable text of a canonical article page.
type ContentFetcher interface {
	FetchContent(ctx context.Context, link string) (string, error)
}

// Pacer enforces the minimum interval between calls to one external dependency.
type Pacer interface {
	Wait(ctx context.Context, dependency string) error
}

// SourceBatch is the outcome of a single source fetcher.
type SourceBatch struct {
	Source     string
	Candidates []domain.Candidate
	Err        error
}

// ArticleSource pulls candidate articles from every configured fetcher.
type ArticleSource interface {
	Collect(ctx context.Context, topics []domain.Topic) []SourceBatch
}

// RunObserver is told about every terminal run; it must not block for long.
type RunObserver interface {
	RunFinished(ctx context.Context, summary domain.RunSummary)
}

// Notifier streams run reports to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when background jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
