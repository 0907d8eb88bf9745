package parser

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"ArticlePipeline/internal/config"
	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/ports"
	"ArticlePipeline/internal/scanner"
)

const defaultConcurrency = 4

// StrategySource implements ArticleSource via registered scanner strategies.
type StrategySource struct {
	registry    *scanner.Registry
	sites       []config.SiteConfig
	logger      *slog.Logger
	concurrency int
}

var _ ports.ArticleSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry:    reg,
		sites:       sites,
		logger:      log,
		concurrency: defaultConcurrency,
	}
}

// Collect runs every configured site concurrently. Each site yields exactly
// one batch, in config order; failures stay inside their batch.
func (s *StrategySource) Collect(ctx context.Context, topics []domain.Topic) []ports.SourceBatch {
	batches := make([]ports.SourceBatch, len(s.sites))
	s.debug("collect", "sites", len(s.sites), "topics", len(topics))

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, site := range s.sites {
		batches[i].Source = site.Name
		if s.registry == nil {
			batches[i].Err = fmt.Errorf("scanner registry is not configured")
			continue
		}
		strategy, err := s.registry.Resolve(site.Scanner)
		if err != nil {
			batches[i].Err = err
			continue
		}

		req := scanner.Request{
			SiteName: site.Name,
			Feeds:    toScannerFeeds(site.Feeds),
			Topics:   topics,
			Options:  site.Options,
		}

		g.Go(func() error {
			s.debug("process site", "site", site.Name, "scanner", site.Scanner, "feeds", len(site.Feeds))
			results, err := strategy.Scan(ctx, req)
			for j := range results {
				if results[j].SourceName == "" {
					results[j].SourceName = site.Name
				}
			}
			batches[i].Candidates = results
			if err != nil {
				batches[i].Err = fmt.Errorf("scan site %s: %w", site.Name, err)
			}
			s.debug("site produced candidates", "site", site.Name, "count", len(results))
			return nil
		})
	}

	_ = g.Wait()
	return batches
}

func toScannerFeeds(cfg []config.FeedConfig) []scanner.Feed {
	feeds := make([]scanner.Feed, 0, len(cfg))
	for _, f := range cfg {
		feeds = append(feeds, scanner.Feed{
			Name: f.Name,
			URL:  f.URL,
		})
	}
	return feeds
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
