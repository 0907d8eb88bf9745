package parser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/scanner"
)

const defaultUserAgent = "ArticlePipeline/1.0"

// RSSScanner reads every configured feed of a site with the universal gofeed parser.
type RSSScanner struct {
	client    *http.Client
	userAgent string
}

// NewRSSScanner wires an HTTP client; a nil client gets a 20s timeout.
func NewRSSScanner(client *http.Client, userAgent string) *RSSScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &RSSScanner{client: client, userAgent: userAgent}
}

// Name identifies the strategy inside the registry.
func (s *RSSScanner) Name() string {
	return string(domain.SourceRSS)
}

// Scan returns the items of all feeds. A broken feed does not hide the
// items of the others; its error is joined into the returned error.
func (s *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Candidate, error) {
	if len(req.Feeds) == 0 {
		return nil, fmt.Errorf("no feeds provided for site %s", req.SiteName)
	}

	fp := gofeed.NewParser()
	fp.Client = s.client
	fp.UserAgent = s.userAgent

	var (
		results []domain.Candidate
		errs    []error
	)
	seen := map[string]struct{}{}

	for _, f := range req.Feeds {
		feed, err := fp.ParseURLWithContext(f.URL, ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", f.Name, err))
			continue
		}

		sourceName := strings.TrimSpace(feed.Title)
		if sourceName == "" {
			sourceName = req.SiteName
		}
		sourceURL := feed.Link
		if sourceURL == "" {
			sourceURL = siteRoot(f.URL)
		}

		for _, item := range feed.Items {
			c, ok := convertItem(item, sourceName, sourceURL)
			if !ok {
				continue
			}
			if _, dup := seen[c.Link]; dup {
				continue
			}
			seen[c.Link] = struct{}{}
			results = append(results, c)
		}
	}

	return results, errors.Join(errs...)
}

func convertItem(item *gofeed.Item, sourceName, sourceURL string) (domain.Candidate, bool) {
	if item == nil {
		return domain.Candidate{}, false
	}
	link := strings.TrimSpace(item.Link)
	title := plainText(item.Title)
	if link == "" || title == "" {
		return domain.Candidate{}, false
	}

	snippet := plainText(item.Description)
	if snippet == "" {
		snippet = plainText(item.Content)
	}

	var published time.Time
	switch {
	case item.PublishedParsed != nil:
		published = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		published = item.UpdatedParsed.UTC()
	}

	return domain.Candidate{
		Title:       title,
		Link:        link,
		Snippet:     snippet,
		SourceName:  sourceName,
		SourceURL:   sourceURL,
		PublishedAt: published,
		Kind:        domain.SourceRSS,
	}, true
}

func siteRoot(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
