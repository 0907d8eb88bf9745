package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/ports"
)

// Client talks to an external inference service exposing POST /analyze.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Analyzer = (*Client)(nil)

// NewClient creates a reusable HTTP client. Calls are bounded by the caller's
// context; the client timeout is only a ceiling.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

type analyzeRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type analyzeResponse struct {
	Summary    string   `json:"summary"`
	Sentiment  string   `json:"sentiment"`
	Categories []string `json:"categories"`
}

// Analyze sends the article text and validates the returned analysis.
func (c *Client) Analyze(ctx context.Context, input ports.AnalysisInput) (domain.Analysis, error) {
	var resp analyzeResponse
	if err := c.post(ctx, "/analyze", analyzeRequest{Title: input.Title, Content: input.Content}, &resp); err != nil {
		return domain.Analysis{}, err
	}

	return domain.NewAnalysis(resp.Summary, resp.Sentiment, resp.Categories)
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	// The body is the model output; a malformed body is an invalid analysis,
	// not a transport failure.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrInvalidAnalysis, err)
	}

	return nil
}
