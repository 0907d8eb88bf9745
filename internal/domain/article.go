package domain

import (
	"strings"
	"time"
)

// SourceKind enumerates the fetchers an article may originate from.
type SourceKind string

const (
	SourceAggregatorSearch SourceKind = "aggregator-search"
	SourceRSS              SourceKind = "rss"
)

// Valid reports whether the kind belongs to the closed set.
func (k SourceKind) Valid() bool {
	return k == SourceAggregatorSearch || k == SourceRSS
}

// Sentiment is the closed set of tones the analyzer may assign.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// ParseSentiment normalizes s and reports whether it is a known sentiment.
func ParseSentiment(s string) (Sentiment, bool) {
	switch v := Sentiment(strings.ToLower(strings.TrimSpace(s))); v {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return v, true
	default:
		return "", false
	}
}

// Article is the central entity mutated by the decode and analyze stages.
type Article struct {
	ID      string
	OwnerID string

	Title       string
	Link        string
	Snippet     string
	SourceName  string
	SourceURL   string
	PublishedAt time.Time
	SourceKind  SourceKind
	FullContent string

	URLDecoded   bool
	DecodeFailed bool

	AIProcessed   bool
	Summary       *string
	Sentiment     *Sentiment
	Categories    []string
	AIError       *string
	AIProcessedAt *time.Time

	MatchedTopics []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DecodeEligible mirrors the store predicate url_decoded = false.
func (a Article) DecodeEligible() bool {
	return !a.URLDecoded
}

// AnalyzeEligible mirrors url_decoded AND NOT decode_failed AND NOT ai_processed.
func (a Article) AnalyzeEligible() bool {
	return a.URLDecoded && !a.DecodeFailed && !a.AIProcessed
}

// FailedAnalysis mirrors ai_processed AND ai_error IS NOT NULL.
func (a Article) FailedAnalysis() bool {
	return a.AIProcessed && a.AIError != nil
}

// Candidate is a normalized article produced by a source fetcher, not yet stored.
type Candidate struct {
	Title       string
	Link        string
	Snippet     string
	SourceName  string
	SourceURL   string
	PublishedAt time.Time
	Kind        SourceKind
}

// Topic groups the keywords an owner tracks.
type Topic struct {
	Name     string
	Keywords []string
	Enabled  bool
}

// DecodeUpdate is the atomic per-article write of the decode stage.
// An empty Link keeps the stored raw link.
type DecodeUpdate struct {
	Link         string
	URLDecoded   bool
	DecodeFailed bool
}

// AnalysisUpdate is the atomic per-article write of the analyze stage; it
// always implies ai_processed = true.
type AnalysisUpdate struct {
	Summary     *string
	Sentiment   *Sentiment
	Categories  []string
	AIError     *string
	ProcessedAt time.Time
}

// PendingCounts backs the polling endpoint.
type PendingCounts struct {
	DecodePending  int `json:"decodePendingCount"`
	AnalyzePending int `json:"pendingCount"`
}
