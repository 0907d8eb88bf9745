package crawler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"ArticlePipeline/internal/ports"
)

const (
	defaultUserAgent = "ArticlePipeline/1.0 (+content crawler)"
	maxPageBytes     = 2 << 20
	minParagraphLen  = 40
)

// ErrNoContent is returned when a page has no readable paragraphs.
var ErrNoContent = errors.New("no readable content")

// ContentCrawler extracts the paragraph text of an article page.
type ContentCrawler struct {
	client    *http.Client
	userAgent string
	policy    *bluemonday.Policy
}

var _ ports.ContentFetcher = (*ContentCrawler)(nil)

// NewContentCrawler wires an HTTP client; a nil client gets a 20s timeout.
func NewContentCrawler(client *http.Client, userAgent string) *ContentCrawler {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &ContentCrawler{
		client:    client,
		userAgent: userAgent,
		policy:    bluemonday.StrictPolicy(),
	}
}

// FetchContent downloads link and returns its paragraphs separated by blank lines.
func (c *ContentCrawler) FetchContent(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned %s", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err == nil && mediaType != "text/html" && mediaType != "application/xhtml+xml" {
			return "", fmt.Errorf("unsupported content type %s", mediaType)
		}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	text := c.extract(doc)
	if text == "" {
		return "", ErrNoContent
	}
	return text, nil
}

func (c *ContentCrawler) extract(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, header, footer, aside, form").Remove()

	scope := doc.Find("article").First()
	if scope.Length() == 0 {
		scope = doc.Find("main").First()
	}
	if scope.Length() == 0 {
		scope = doc.Selection
	}

	var paragraphs []string
	scope.Find("p").Each(func(_ int, s *goquery.Selection) {
		raw, err := s.Html()
		if err != nil {
			return
		}
		text := strings.Join(strings.Fields(html.UnescapeString(c.policy.Sanitize(raw))), " ")
		if len(text) >= minParagraphLen {
			paragraphs = append(paragraphs, text)
		}
	})

	return strings.Join(paragraphs, "\n\n")
}
