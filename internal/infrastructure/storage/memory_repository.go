package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/ports"
)

// MemoryRepository is an in-process ArticleStore used by the CLI without a
// database and by tests. Ordering follows insertion, mirroring the
// created_at, id ordering of the Postgres adapter.
type MemoryRepository struct {
	mu       sync.RWMutex
	articles map[string]*memoryRow
	topics   map[string][]domain.Topic
	seq      int64
	now      func() time.Time
}

type memoryRow struct {
	seq     int64
	article domain.Article
}

var _ ports.ArticleStore = (*MemoryRepository)(nil)

// NewMemoryRepository builds an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		articles: map[string]*memoryRow{},
		topics:   map[string][]domain.Topic{},
		now:      time.Now,
	}
}

// SetTopics replaces the topic list of an owner.
func (m *MemoryRepository) SetTopics(ownerID string, topics []domain.Topic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics[ownerID] = append([]domain.Topic(nil), topics...)
}

// Get returns a copy of a stored article.
func (m *MemoryRepository) Get(ownerID, articleID string) (domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.articles[articleID]
	if !ok || row.article.OwnerID != ownerID {
		return domain.Article{}, domain.ErrNotFound
	}
	return cloneArticle(row.article), nil
}

// All returns copies of every article of an owner in insertion order.
func (m *MemoryRepository) All(ownerID string) []domain.Article {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLocked(ownerID, func(domain.Article) bool { return true }, 0)
}

// InsertArticle stores a new article unless (owner, link) already exists.
func (m *MemoryRepository) InsertArticle(_ context.Context, article domain.Article) (bool, error) {
	if err := requireOwner(article.OwnerID); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.linkTakenLocked(article.OwnerID, article.Link, "") {
		return false, nil
	}

	if article.ID == "" {
		article.ID = uuid.NewString()
	}
	if _, exists := m.articles[article.ID]; exists {
		return false, fmt.Errorf("insert article: id %s already exists", article.ID)
	}

	now := m.now().UTC()
	if article.CreatedAt.IsZero() {
		article.CreatedAt = now
	}
	article.UpdatedAt = now

	m.seq++
	m.articles[article.ID] = &memoryRow{seq: m.seq, article: cloneArticle(article)}
	return true, nil
}

// ListDecodeEligible returns every article with url_decoded = false.
func (m *MemoryRepository) ListDecodeEligible(_ context.Context, ownerID string) ([]domain.Article, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLocked(ownerID, domain.Article.DecodeEligible, 0), nil
}

// ListAnalyzeEligible returns at most limit analyze-eligible articles.
func (m *MemoryRepository) ListAnalyzeEligible(_ context.Context, ownerID string, limit int) ([]domain.Article, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", domain.ErrValidation)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLocked(ownerID, domain.Article.AnalyzeEligible, limit), nil
}

// UpdateDecodeResult applies the decode outcome of one article.
func (m *MemoryRepository) UpdateDecodeResult(_ context.Context, ownerID, articleID string, update domain.DecodeUpdate) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.articles[articleID]
	if !ok || row.article.OwnerID != ownerID {
		return domain.ErrNotFound
	}

	if update.Link != "" && m.linkTakenLocked(ownerID, update.Link, articleID) {
		return domain.ErrDuplicateLink
	}

	if update.Link != "" {
		row.article.Link = update.Link
	}
	row.article.URLDecoded = update.URLDecoded
	row.article.DecodeFailed = update.DecodeFailed
	row.article.UpdatedAt = m.now().UTC()
	return nil
}

// UpdateAnalysisResult applies the analyze outcome of one article.
func (m *MemoryRepository) UpdateAnalysisResult(_ context.Context, ownerID, articleID string, update domain.AnalysisUpdate) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.articles[articleID]
	if !ok || row.article.OwnerID != ownerID {
		return domain.ErrNotFound
	}

	processedAt := update.ProcessedAt
	row.article.AIProcessed = true
	row.article.Summary = cloneString(update.Summary)
	row.article.Sentiment = cloneSentiment(update.Sentiment)
	row.article.Categories = append([]string(nil), update.Categories...)
	row.article.AIError = cloneString(update.AIError)
	row.article.AIProcessedAt = &processedAt
	row.article.UpdatedAt = m.now().UTC()
	return nil
}

// CountPending counts decode- and analyze-eligible articles.
func (m *MemoryRepository) CountPending(_ context.Context, ownerID string) (domain.PendingCounts, error) {
	if err := requireOwner(ownerID); err != nil {
		return domain.PendingCounts{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var counts domain.PendingCounts
	for _, row := range m.articles {
		if row.article.OwnerID != ownerID {
			continue
		}
		if row.article.DecodeEligible() {
			counts.DecodePending++
		}
		if row.article.AnalyzeEligible() {
			counts.AnalyzePending++
		}
	}
	return counts, nil
}

// ResetFailedAnalyses clears the analysis state of every failed article.
func (m *MemoryRepository) ResetFailedAnalyses(_ context.Context, ownerID string) (int, error) {
	if err := requireOwner(ownerID); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	reset := 0
	for _, row := range m.articles {
		if row.article.OwnerID != ownerID || !row.article.FailedAnalysis() {
			continue
		}
		row.article.AIProcessed = false
		row.article.AIError = nil
		row.article.AIProcessedAt = nil
		row.article.UpdatedAt = m.now().UTC()
		reset++
	}
	return reset, nil
}

// ListEnabledTopics returns the enabled topics of an owner.
func (m *MemoryRepository) ListEnabledTopics(_ context.Context, ownerID string) ([]domain.Topic, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var enabled []domain.Topic
	for _, t := range m.topics[ownerID] {
		if t.Enabled {
			enabled = append(enabled, t)
		}
	}
	return enabled, nil
}

func (m *MemoryRepository) selectLocked(ownerID string, keep func(domain.Article) bool, limit int) []domain.Article {
	rows := make([]*memoryRow, 0)
	for _, row := range m.articles {
		if row.article.OwnerID == ownerID && keep(row.article) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]domain.Article, len(rows))
	for i, row := range rows {
		out[i] = cloneArticle(row.article)
	}
	return out
}

func (m *MemoryRepository) linkTakenLocked(ownerID, link, exceptID string) bool {
	for id, row := range m.articles {
		if id != exceptID && row.article.OwnerID == ownerID && row.article.Link == link {
			return true
		}
	}
	return false
}

func requireOwner(ownerID string) error {
	if ownerID == "" {
		return domain.ErrUnauthorized
	}
	return nil
}

func cloneArticle(a domain.Article) domain.Article {
	a.Summary = cloneString(a.Summary)
	a.Sentiment = cloneSentiment(a.Sentiment)
	a.AIError = cloneString(a.AIError)
	if a.AIProcessedAt != nil {
		t := *a.AIProcessedAt
		a.AIProcessedAt = &t
	}
	a.Categories = append([]string(nil), a.Categories...)
	a.MatchedTopics = append([]string(nil), a.MatchedTopics...)
	return a
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneSentiment(s *domain.Sentiment) *domain.Sentiment {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
