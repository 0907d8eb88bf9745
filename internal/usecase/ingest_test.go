package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/infrastructure/storage"
	"ArticlePipeline/internal/ports"
)

type stubSource struct {
	batches []ports.SourceBatch
	topics  []domain.Topic
}

func (s *stubSource) Collect(_ context.Context, topics []domain.Topic) []ports.SourceBatch {
	s.topics = topics
	return s.batches
}

func TestMatchTopics(t *testing.T) {
	t.Parallel()

	topics := []domain.Topic{
		{Name: "AI", Keywords: []string{"LLM", "neural"}, Enabled: true},
		{Name: "Climate", Enabled: true},
		{Name: "Sports", Keywords: []string{"football"}, Enabled: false},
		{Name: "Space", Keywords: []string{" ", "rocket"}, Enabled: true},
	}

	cases := []struct {
		text string
		want []string
	}{
		{"New llm beats benchmark", []string{"AI"}},
		{"climate summit and a Rocket launch", []string{"Climate", "Space"}},
		{"football final tonight", []string{}},
		{"Neural nets predict CLIMATE shifts", []string{"AI", "Climate"}},
		{"", []string{}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchTopics(topics, tc.text), tc.text)
	}
}

func TestIngestMergesSourcesAndSkipsDuplicates(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryRepository()
	store.SetTopics(testOwner, []domain.Topic{{Name: "AI", Keywords: []string{"llm"}, Enabled: true}})
	published := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	source := &stubSource{batches: []ports.SourceBatch{
		{
			Source: "rss:techfeed",
			Candidates: []domain.Candidate{
				{Title: "LLM news", Link: "https://example.com/1", Kind: domain.SourceRSS, PublishedAt: published},
				{Title: "Gardening", Link: "https://example.com/2", Kind: domain.SourceRSS},
				{Title: "LLM news again", Link: "https://example.com/1", Kind: domain.SourceRSS},
			},
		},
		{
			Source: "aggregator:AI",
			Candidates: []domain.Candidate{
				{Title: "No link", Kind: domain.SourceAggregatorSearch},
				{Title: "Wrapped", Link: "https://news.google.com/rss/articles/X", Kind: domain.SourceAggregatorSearch},
			},
		},
		{Source: "rss:broken", Err: errors.New("unexpected EOF")},
	}}

	ingestor := NewIngestor(IngestorDeps{Store: store, Source: source})
	result, err := ingestor.Ingest(context.Background(), testOwner)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Inserted)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []string{
		"aggregator:AI: 1 invalid candidates",
		"rss:broken: unexpected EOF",
	}, result.Errors)
	assert.Len(t, source.topics, 1)

	all := store.All(testOwner)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"AI"}, all[0].MatchedTopics)
	assert.Equal(t, published, all[0].PublishedAt)
	assert.Empty(t, all[1].MatchedTopics)
	assert.False(t, all[1].PublishedAt.IsZero())
	for _, a := range all {
		assert.True(t, a.DecodeEligible())
	}
}

func TestIngestRequiresOwner(t *testing.T) {
	t.Parallel()

	ingestor := NewIngestor(IngestorDeps{Store: storage.NewMemoryRepository()})
	_, err := ingestor.Ingest(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
