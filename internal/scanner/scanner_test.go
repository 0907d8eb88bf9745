package scanner

import (
	"context"
	"reflect"
	"testing"

	"ArticlePipeline/internal/domain"
)

type namedScanner string

func (n namedScanner) Name() string { return string(n) }

func (n namedScanner) Scan(context.Context, Request) ([]domain.Candidate, error) {
	return nil, nil
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(namedScanner("rss"), namedScanner("aggregator-search"))

	if _, err := reg.Resolve("rss"); err != nil {
		t.Fatalf("resolve rss: %v", err)
	}
	if _, err := reg.Resolve("arxiv"); err == nil {
		t.Fatalf("expected error for unknown scanner")
	}

	want := []string{"aggregator-search", "rss"}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected names: %v", got)
	}
}

func TestRequestOption(t *testing.T) {
	t.Parallel()

	req := Request{Options: map[string]string{"hl": "de", "gl": ""}}
	if got := req.Option("hl", "en-US"); got != "de" {
		t.Fatalf("expected configured option, got %s", got)
	}
	if got := req.Option("gl", "US"); got != "US" {
		t.Fatalf("expected fallback for empty option, got %s", got)
	}
	if got := req.Option("ceid", "US:en"); got != "US:en" {
		t.Fatalf("expected fallback for missing option, got %s", got)
	}
}
