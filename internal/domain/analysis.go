package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Analysis is a validated inference result.
type Analysis struct {
	Summary    string
	Sentiment  Sentiment
	Categories []string
}

type analysisPayload struct {
	Summary    string   `json:"summary"`
	Sentiment  string   `json:"sentiment"`
	Categories []string `json:"categories"`
}

// ParseAnalysis decodes the model reply and validates it with NewAnalysis.
// Models sometimes wrap the object in prose or code fences, so only the
// outermost {...} span is decoded.
func ParseAnalysis(reply string) (Analysis, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return Analysis{}, fmt.Errorf("%w: no json object in reply", ErrInvalidAnalysis)
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(reply[start:end+1]), &payload); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrInvalidAnalysis, err)
	}

	return NewAnalysis(payload.Summary, payload.Sentiment, payload.Categories)
}

// NewAnalysis enforces the result schema: non-empty summary, sentiment from
// the closed set, no blank category. Categories are trimmed, deduplicated
// case-insensitively (first spelling wins) and sorted so equal sets compare
// equal.
func NewAnalysis(summary, sentiment string, categories []string) (Analysis, error) {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return Analysis{}, fmt.Errorf("%w: empty summary", ErrInvalidAnalysis)
	}

	s, ok := ParseSentiment(sentiment)
	if !ok {
		return Analysis{}, fmt.Errorf("%w: unknown sentiment %q", ErrInvalidAnalysis, sentiment)
	}

	seen := make(map[string]struct{}, len(categories))
	normalized := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" {
			return Analysis{}, fmt.Errorf("%w: empty category", ErrInvalidAnalysis)
		}
		key := strings.ToLower(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		normalized = append(normalized, c)
	}
	sort.Strings(normalized)

	return Analysis{Summary: summary, Sentiment: s, Categories: normalized}, nil
}
