package domain

import (
	"errors"
	"testing"
)

func TestNewAnalysisFoldsCategoryCase(t *testing.T) {
	t.Parallel()

	a, err := NewAnalysis(" Rates rise ", "Positive", []string{"economy", " Economy", "markets", "ECONOMY"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Summary != "Rates rise" {
		t.Fatalf("summary not trimmed: %q", a.Summary)
	}
	if len(a.Categories) != 2 || a.Categories[0] != "economy" || a.Categories[1] != "markets" {
		t.Fatalf("unexpected categories: %v", a.Categories)
	}
}

func TestNewAnalysisRejectsBlankCategory(t *testing.T) {
	t.Parallel()

	if _, err := NewAnalysis("ok", "neutral", []string{"tech", "  "}); !errors.Is(err, ErrInvalidAnalysis) {
		t.Fatalf("expected ErrInvalidAnalysis, got %v", err)
	}
}
