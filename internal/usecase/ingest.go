package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/ports"
)

// IngestorDeps wires the ingestion merger.
type IngestorDeps struct {
	Store  ports.ArticleStore
	Source ports.ArticleSource
	Logger *slog.Logger
	Now    func() time.Time
}

// Ingestor merges fetched candidates into the store, tagging matched topics.
type Ingestor struct {
	store  ports.ArticleStore
	source ports.ArticleSource
	logger *slog.Logger
	now    func() time.Time
}

// NewIngestor constructs the merger.
func NewIngestor(deps IngestorDeps) *Ingestor {
	i := &Ingestor{
		store:  deps.Store,
		source: deps.Source,
		logger: deps.Logger,
		now:    deps.Now,
	}
	if i.logger == nil {
		i.logger = slog.Default()
	}
	if i.now == nil {
		i.now = time.Now
	}
	return i
}

// Ingest fetches candidates for the owner's enabled topics and merges them.
func (i *Ingestor) Ingest(ctx context.Context, ownerID string) (domain.IngestResult, error) {
	if ownerID == "" {
		return domain.IngestResult{}, domain.ErrUnauthorized
	}

	topics, err := i.store.ListEnabledTopics(ctx, ownerID)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("load topics: %w", err)
	}
	if i.source == nil {
		return domain.IngestResult{Errors: []string{}}, nil
	}

	batches := i.source.Collect(ctx, topics)
	return i.Merge(ctx, ownerID, topics, batches)
}

// Merge inserts new candidates and counts duplicates as skipped. Problems of
// one source are reported as a single error string and never block the
// others; store failures abort the merge.
func (i *Ingestor) Merge(ctx context.Context, ownerID string, topics []domain.Topic, batches []ports.SourceBatch) (domain.IngestResult, error) {
	if ownerID == "" {
		return domain.IngestResult{}, domain.ErrUnauthorized
	}

	result := domain.IngestResult{Errors: []string{}}
	for _, batch := range batches {
		invalid := 0
		for _, c := range batch.Candidates {
			if strings.TrimSpace(c.Link) == "" || strings.TrimSpace(c.Title) == "" || !c.Kind.Valid() {
				invalid++
				continue
			}

			inserted, err := i.store.InsertArticle(ctx, i.article(ownerID, c, topics))
			if err != nil {
				return result, fmt.Errorf("insert article from %s: %w", batch.Source, err)
			}
			if inserted {
				result.Inserted++
			} else {
				result.Skipped++
			}
		}

		switch {
		case batch.Err != nil:
			i.logger.Warn("source failed", "source", batch.Source, "error", batch.Err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", batch.Source, batch.Err))
		case invalid > 0:
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %d invalid candidates", batch.Source, invalid))
		}
	}

	i.logger.Info("ingestion merged",
		"owner_id", ownerID, "inserted", result.Inserted, "skipped", result.Skipped, "errors", len(result.Errors))
	return result, nil
}

func (i *Ingestor) article(ownerID string, c domain.Candidate, topics []domain.Topic) domain.Article {
	published := c.PublishedAt
	if published.IsZero() {
		published = i.now().UTC()
	}

	return domain.Article{
		OwnerID:       ownerID,
		Title:         strings.TrimSpace(c.Title),
		Link:          strings.TrimSpace(c.Link),
		Snippet:       strings.TrimSpace(c.Snippet),
		SourceName:    c.SourceName,
		SourceURL:     c.SourceURL,
		PublishedAt:   published,
		SourceKind:    c.Kind,
		MatchedTopics: MatchTopics(topics, c.Title+" "+c.Snippet),
	}
}

// MatchTopics returns, in topic order, the names of enabled topics with a
// keyword occurring in text. Matching is a case-insensitive substring test
// and a topic without keywords matches on its own name.
func MatchTopics(topics []domain.Topic, text string) []string {
	haystack := strings.ToLower(text)
	matched := []string{}
	seen := map[string]struct{}{}

	for _, t := range topics {
		if !t.Enabled {
			continue
		}
		if _, dup := seen[t.Name]; dup {
			continue
		}

		keywords := t.Keywords
		if len(keywords) == 0 {
			keywords = []string{t.Name}
		}
		for _, kw := range keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(haystack, kw) {
				matched = append(matched, t.Name)
				seen[t.Name] = struct{}{}
				break
			}
		}
	}
	return matched
}
