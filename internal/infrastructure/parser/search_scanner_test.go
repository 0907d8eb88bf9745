package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/scanner"
)

const searchFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>"llm" - Google News</title>
  <item>
    <title>Models learn to reason - Daily Planet</title>
    <link>https://news.google.com/rss/articles/CBMiAAA?oc=5</link>
    <description>&lt;a href="https://news.google.com/rss/articles/CBMiAAA"&gt;Models learn to reason&lt;/a&gt;&amp;nbsp;&amp;nbsp;&lt;font color="#6f6f6f"&gt;Daily Planet&lt;/font&gt;</description>
    <pubDate>Mon, 03 Jun 2024 12:30:00 GMT</pubDate>
    <source url="https://dailyplanet.example.com">Daily Planet</source>
  </item>
  <item>
    <title>No source attached</title>
    <link>https://news.google.com/rss/articles/CBMiBBB?oc=5</link>
  </item>
</channel>
</rss>`

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	cases := []struct {
		topic domain.Topic
		want  string
	}{
		{domain.Topic{Name: "AI", Keywords: []string{"llm", " neural net ", ""}}, `llm OR "neural net"`},
		{domain.Topic{Name: "Climate"}, "Climate"},
		{domain.Topic{Name: "Space", Keywords: []string{" "}}, "Space"},
	}
	for _, tc := range cases {
		if got := buildQuery(tc.topic); got != tc.want {
			t.Fatalf("buildQuery(%s) = %q, want %q", tc.topic.Name, got, tc.want)
		}
	}
}

func TestSearchScannerScan(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		queries []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rss/search" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		mu.Lock()
		queries = append(queries, q.Get("q"))
		mu.Unlock()

		if q.Get("hl") != "de" || q.Get("gl") != "US" || q.Get("ceid") != "US:en" {
			t.Errorf("unexpected locale params: %s", r.URL.RawQuery)
		}
		if q.Get("q") == "Climate" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(searchFeed))
	}))
	defer srv.Close()

	s := NewSearchScanner(srv.Client(), srv.URL+"/", "")
	candidates, err := s.Scan(context.Background(), scanner.Request{
		SiteName: "google-news",
		Options:  map[string]string{"hl": "de"},
		Topics: []domain.Topic{
			{Name: "AI", Keywords: []string{"llm"}, Enabled: true},
			{Name: "Robots", Keywords: []string{"robot"}, Enabled: true},
			{Name: "Climate", Enabled: true},
			{Name: "Sports", Enabled: false},
		},
	})

	if err == nil || !strings.Contains(err.Error(), "topic Climate") {
		t.Fatalf("expected climate error, got %v", err)
	}
	if strings.Join(queries, ",") != "llm,robot,Climate" {
		t.Fatalf("unexpected queries: %v", queries)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected results merged by link, got %d", len(candidates))
	}

	first := candidates[0]
	if first.Title != "Models learn to reason" {
		t.Fatalf("publisher suffix not stripped: %q", first.Title)
	}
	if first.SourceName != "Daily Planet" || first.SourceURL != "https://dailyplanet.example.com" {
		t.Fatalf("unexpected source: %+v", first)
	}
	if first.Snippet != "Models learn to reason Daily Planet" {
		t.Fatalf("unexpected snippet %q", first.Snippet)
	}
	if first.Kind != domain.SourceAggregatorSearch {
		t.Fatalf("unexpected kind %s", first.Kind)
	}
	if !first.PublishedAt.Equal(time.Date(2024, 6, 3, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected published time %v", first.PublishedAt)
	}
	if candidates[1].SourceName != "" || candidates[1].Title != "No source attached" {
		t.Fatalf("unexpected second candidate: %+v", candidates[1])
	}
}
