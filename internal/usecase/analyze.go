package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/pacer"
	"ArticlePipeline/internal/ports"
)

const (
	defaultInferenceTimeout = 30 * time.Second
	defaultCrawlTimeout     = 15 * time.Second
	maxInputRunes           = 8000
)

// AnalyzeStageDeps wires the collaborators of the analyze stage. Fetcher is
// optional; without it articles lacking full content fall back to the snippet.
type AnalyzeStageDeps struct {
	Store        ports.ArticleStore
	Analyzer     ports.Analyzer
	Fetcher      ports.ContentFetcher
	Pacer        ports.Pacer
	Timeout      time.Duration
	CrawlTimeout time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// AnalyzeStage enriches decoded articles with summary, sentiment and categories.
type AnalyzeStage struct {
	store        ports.ArticleStore
	analyzer     ports.Analyzer
	fetcher      ports.ContentFetcher
	pacer        ports.Pacer
	timeout      time.Duration
	crawlTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewAnalyzeStage constructs the stage.
func NewAnalyzeStage(deps AnalyzeStageDeps) *AnalyzeStage {
	s := &AnalyzeStage{
		store:        deps.Store,
		analyzer:     deps.Analyzer,
		fetcher:      deps.Fetcher,
		pacer:        deps.Pacer,
		timeout:      deps.Timeout,
		crawlTimeout: deps.CrawlTimeout,
		logger:       deps.Logger,
		now:          deps.Now,
	}
	if s.timeout <= 0 {
		s.timeout = defaultInferenceTimeout
	}
	if s.crawlTimeout <= 0 {
		s.crawlTimeout = defaultCrawlTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (a *AnalyzeStage) eligible(ctx context.Context, ownerID string, limit int) ([]domain.Article, error) {
	articles, err := a.store.ListAnalyzeEligible(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list analyze eligible: %w", err)
	}
	return articles, nil
}

func (a *AnalyzeStage) begin(context.Context, []domain.Article) itemFunc {
	return a.AnalyzeOne
}

// AnalyzeOne runs inference for one article and persists either the result
// or the failure reason. Like DecodeOne, only run-level problems are returned
// as errors.
func (a *AnalyzeStage) AnalyzeOne(ctx context.Context, ownerID string, article domain.Article) (domain.ItemOutcome, error) {
	input := ports.AnalysisInput{
		Title:   article.Title,
		Content: a.content(ctx, article),
	}

	if a.pacer != nil {
		if err := a.pacer.Wait(ctx, pacer.DependencyInference); err != nil {
			return domain.ItemOutcome{}, errRunCancelled{err}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	analysis, err := a.analyzer.Analyze(callCtx, input)
	cancel()

	if err != nil && ctx.Err() != nil {
		return domain.ItemOutcome{}, ctx.Err()
	}
	if err == nil {
		// Every backend result passes the same schema check before it is stored.
		analysis, err = domain.NewAnalysis(analysis.Summary, string(analysis.Sentiment), analysis.Categories)
	}

	processedAt := a.now().UTC()
	if err != nil {
		reason := failureReason(err)
		a.logger.Warn("analysis failed", "article_id", article.ID, "error", err)
		if perr := a.store.UpdateAnalysisResult(context.WithoutCancel(ctx), ownerID, article.ID, domain.AnalysisUpdate{
			AIError:     &reason,
			ProcessedAt: processedAt,
		}); perr != nil {
			return domain.ItemOutcome{}, fmt.Errorf("persist analysis failure %s: %w", article.ID, perr)
		}
		return domain.ItemOutcome{Error: reason}, nil
	}

	summary := analysis.Summary
	sentiment := analysis.Sentiment
	if perr := a.store.UpdateAnalysisResult(context.WithoutCancel(ctx), ownerID, article.ID, domain.AnalysisUpdate{
		Summary:     &summary,
		Sentiment:   &sentiment,
		Categories:  analysis.Categories,
		ProcessedAt: processedAt,
	}); perr != nil {
		return domain.ItemOutcome{}, fmt.Errorf("persist analysis %s: %w", article.ID, perr)
	}

	a.logger.Debug("article analyzed", "article_id", article.ID, "sentiment", sentiment)
	return domain.ItemOutcome{Success: true}, nil
}

// content picks the richest text available: stored full content, a
// best-effort crawl of the canonical page, the snippet, then the title.
func (a *AnalyzeStage) content(ctx context.Context, article domain.Article) string {
	if text := strings.TrimSpace(article.FullContent); text != "" {
		return truncateRunes(text, maxInputRunes)
	}

	if a.fetcher != nil && article.Link != "" {
		crawlCtx, cancel := context.WithTimeout(ctx, a.crawlTimeout)
		text, err := a.fetcher.FetchContent(crawlCtx, article.Link)
		cancel()
		if err != nil {
			a.logger.Debug("content crawl failed", "article_id", article.ID, "error", err)
		} else if text = strings.TrimSpace(text); text != "" {
			return truncateRunes(text, maxInputRunes)
		}
	}

	if text := strings.TrimSpace(article.Snippet); text != "" {
		return text
	}
	return strings.TrimSpace(article.Title)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "inference timeout"
	case errors.Is(err, domain.ErrInvalidAnalysis):
		return err.Error()
	default:
		return fmt.Sprintf("inference failed: %v", err)
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
