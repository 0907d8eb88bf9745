package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/scanner"
)

const techFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Tech Feed</title>
  <link>https://tech.example.com</link>
  <item>
    <title>Chips get faster</title>
    <link>https://tech.example.com/chips</link>
    <description><![CDATA[<p>Hello &amp; <b>world</b></p>
    <p>second   line</p>]]></description>
    <pubDate>Sat, 01 Jun 2024 09:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Chips get faster (again)</title>
    <link>https://tech.example.com/chips</link>
  </item>
  <item>
    <title></title>
    <link>https://tech.example.com/untitled</link>
  </item>
  <item>
    <title>Undated post</title>
    <link>https://tech.example.com/undated</link>
  </item>
</channel>
</rss>`

func TestRSSScannerScan(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("unexpected user agent %q", got)
		}
		switch r.URL.Path {
		case "/feed.xml":
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = w.Write([]byte(techFeed))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewRSSScanner(srv.Client(), "test-agent")
	if s.Name() != "rss" {
		t.Fatalf("unexpected name %s", s.Name())
	}

	candidates, err := s.Scan(context.Background(), scanner.Request{
		SiteName: "tech",
		Feeds: []scanner.Feed{
			{Name: "main", URL: srv.URL + "/feed.xml"},
			{Name: "broken", URL: srv.URL + "/missing.xml"},
		},
	})
	if err == nil || !strings.Contains(err.Error(), "feed broken") {
		t.Fatalf("expected error for broken feed, got %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	first := candidates[0]
	if first.Title != "Chips get faster" || first.Link != "https://tech.example.com/chips" {
		t.Fatalf("unexpected first candidate: %+v", first)
	}
	if first.Snippet != "Hello & world second line" {
		t.Fatalf("unexpected snippet %q", first.Snippet)
	}
	if first.SourceName != "Tech Feed" || first.SourceURL != "https://tech.example.com" {
		t.Fatalf("unexpected source: %s %s", first.SourceName, first.SourceURL)
	}
	if !first.PublishedAt.Equal(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected published time %v", first.PublishedAt)
	}
	if first.Kind != domain.SourceRSS {
		t.Fatalf("unexpected kind %s", first.Kind)
	}
	if !candidates[1].PublishedAt.IsZero() {
		t.Fatalf("undated item should keep zero time")
	}
}

func TestRSSScannerRequiresFeeds(t *testing.T) {
	t.Parallel()

	_, err := NewRSSScanner(nil, "").Scan(context.Background(), scanner.Request{SiteName: "empty"})
	if err == nil {
		t.Fatalf("expected error without feeds")
	}
}

func TestPlainText(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                                   "",
		"plain":                              "plain",
		`<a href="x">Link</a>&nbsp;text`:     "Link text",
		"<script>alert(1)</script>Safe  one": "Safe one",
		"Tom &amp; Jerry":                    "Tom & Jerry",
	}
	for in, want := range cases {
		if got := plainText(in); got != want {
			t.Fatalf("plainText(%q) = %q, want %q", in, got, want)
		}
	}
}
