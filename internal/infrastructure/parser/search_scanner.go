package parser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/rss"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/scanner"
)

const (
	googleNewsBaseURL = "https://news.google.com"
	searchPath        = "/rss/search"
)

// SearchScanner queries the aggregator's RSS search once per enabled topic.
// Links it returns are wrapped and need the decode stage.
type SearchScanner struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// NewSearchScanner wires an HTTP client; baseURL defaults to Google News.
func NewSearchScanner(client *http.Client, baseURL, userAgent string) *SearchScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if baseURL == "" {
		baseURL = googleNewsBaseURL
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &SearchScanner{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
	}
}

// Name identifies the strategy inside the registry.
func (s *SearchScanner) Name() string {
	return string(domain.SourceAggregatorSearch)
}

// Scan searches every enabled topic and merges the results by link.
func (s *SearchScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Candidate, error) {
	var (
		results []domain.Candidate
		errs    []error
	)
	seen := map[string]struct{}{}

	for _, topic := range req.Topics {
		if !topic.Enabled {
			continue
		}
		query := buildQuery(topic)
		if query == "" {
			continue
		}

		feed, err := s.search(ctx, req, query)
		if err != nil {
			errs = append(errs, fmt.Errorf("topic %s: %w", topic.Name, err))
			continue
		}

		for _, item := range feed.Items {
			c, ok := convertSearchItem(item)
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

func (s *SearchScanner) search(ctx context.Context, req scanner.Request, query string) (*rss.Feed, error) {
	pageURL, err := buildSearchURL(s.baseURL, query, req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request search feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned %s", resp.Status)
	}

	var p rss.Parser
	feed, err := p.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search feed: %w", err)
	}
	return feed, nil
}

// buildQuery ORs the topic keywords; a topic without keywords searches its name.
func buildQuery(topic domain.Topic) string {
	terms := make([]string, 0, len(topic.Keywords))
	for _, kw := range topic.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.ContainsAny(kw, " \t") {
			kw = `"` + kw + `"`
		}
		terms = append(terms, kw)
	}
	if len(terms) == 0 {
		return strings.TrimSpace(topic.Name)
	}
	return strings.Join(terms, " OR ")
}

func buildSearchURL(base, query string, req scanner.Request) (string, error) {
	u, err := url.Parse(base + searchPath)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("hl", req.Option("hl", "en-US"))
	q.Set("gl", req.Option("gl", "US"))
	q.Set("ceid", req.Option("ceid", "US:en"))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func convertSearchItem(item *rss.Item) (domain.Candidate, bool) {
	if item == nil {
		return domain.Candidate{}, false
	}
	link := strings.TrimSpace(item.Link)
	title := plainText(item.Title)
	if link == "" || title == "" {
		return domain.Candidate{}, false
	}

	c := domain.Candidate{
		Title:   title,
		Link:    link,
		Snippet: plainText(item.Description),
		Kind:    domain.SourceAggregatorSearch,
	}
	if item.Source != nil {
		c.SourceName = strings.TrimSpace(item.Source.Title)
		c.SourceURL = strings.TrimSpace(item.Source.URL)
		// Aggregator titles carry a " - Publisher" suffix.
		if c.SourceName != "" {
			c.Title = strings.TrimSpace(strings.TrimSuffix(c.Title, " - "+c.SourceName))
		}
	}
	if item.PubDateParsed != nil {
		c.PublishedAt = item.PubDateParsed.UTC()
	}
	return c, true
}
