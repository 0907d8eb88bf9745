package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ArticlePipeline/internal/decodecache"
	"ArticlePipeline/internal/ports"
)

const (
	defaultBaseURL   = "https://news.google.com"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	batchExecutePath = "/_/DotsSplashUi/data/batchexecute"
	maxEnvelopeBytes = 1 << 20
)

var (
	errMissingParams = errors.New("article page carries no decoding parameters")
	errBadEnvelope   = errors.New("unexpected batchexecute envelope")
)

// GoogleNewsResolver decodes news.google.com article links into the
// publisher URL they wrap.
type GoogleNewsResolver struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

var _ ports.URLResolver = (*GoogleNewsResolver)(nil)

// NewGoogleNewsResolver wires an HTTP client. Callers bound every call with a
// context deadline, so the default client carries only a safety timeout.
func NewGoogleNewsResolver(client *http.Client, baseURL, userAgent string) *GoogleNewsResolver {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &GoogleNewsResolver{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
	}
}

// ResolveID fetches the decoding parameters of the article page and trades
// them for the destination URL.
func (r *GoogleNewsResolver) ResolveID(ctx context.Context, sourceID string) (string, error) {
	if sourceID == "" {
		return "", errors.New("empty source id")
	}

	sig, ts, err := r.decodingParams(ctx, sourceID)
	if err != nil {
		return "", err
	}
	return r.batchExecute(ctx, sourceID, sig, ts)
}

// ResolveLink follows redirects of link and returns the final location.
func (r *GoogleNewsResolver) ResolveLink(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("follow redirects: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxEnvelopeBytes))

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("destination returned %s", resp.Status)
	}

	final := resp.Request.URL.String()
	if decodecache.IsWrapped(final) {
		return "", fmt.Errorf("redirects ended on wrapper host: %s", resp.Request.URL.Host)
	}
	return final, nil
}

func (r *GoogleNewsResolver) decodingParams(ctx context.Context, sourceID string) (string, string, error) {
	pageURL := r.baseURL + "/rss/articles/" + url.PathEscape(sourceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("request article page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("article page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("parse article page: %w", err)
	}

	node := doc.Find("c-wiz div[jscontroller]").First()
	sig, _ := node.Attr("data-n-a-sg")
	ts, _ := node.Attr("data-n-a-ts")
	sig, ts = strings.TrimSpace(sig), strings.TrimSpace(ts)
	if sig == "" || ts == "" {
		return "", "", errMissingParams
	}
	if _, err := strconv.ParseInt(ts, 10, 64); err != nil {
		return "", "", fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	return sig, ts, nil
}

func (r *GoogleNewsResolver) batchExecute(ctx context.Context, sourceID, sig, ts string) (string, error) {
	body, err := batchRequestBody(sourceID, sig, ts)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+batchExecutePath, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request batchexecute: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("batchexecute returned %s", resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeBytes))
	if err != nil {
		return "", fmt.Errorf("read batchexecute: %w", err)
	}
	return parseEnvelope(raw)
}

func batchRequestBody(sourceID, sig, ts string) (string, error) {
	id, err := json.Marshal(sourceID)
	if err != nil {
		return "", fmt.Errorf("encode source id: %w", err)
	}
	signature, err := json.Marshal(sig)
	if err != nil {
		return "", fmt.Errorf("encode signature: %w", err)
	}

	inner := `["garturlreq",[["X","X",["X","X"],null,null,1,1,"US:en",null,1,null,null,null,null,null,0,1],"X","X",1,[1,1,1],1,1,null,0,0,null,0],` +
		string(id) + "," + ts + "," + string(signature) + "]"

	freq, err := json.Marshal([][][]string{{{"Fbv4je", inner}}})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	return url.Values{"f.req": {string(freq)}}.Encode(), nil
}

// parseEnvelope reads the destination from a `)]}'`-prefixed response whose
// "wrb.fr" entry carries ["garturlres","<url>",...] as a JSON string.
func parseEnvelope(raw []byte) (string, error) {
	raw = bytes.TrimSpace(bytes.TrimPrefix(bytes.TrimSpace(raw), []byte(")]}'")))

	var entries []json.RawMessage
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&entries); err != nil {
		return "", fmt.Errorf("%w: %v", errBadEnvelope, err)
	}

	for _, entry := range entries {
		var fields []any
		if err := json.Unmarshal(entry, &fields); err != nil || len(fields) < 3 {
			continue
		}
		if tag, _ := fields[0].(string); tag != "wrb.fr" {
			continue
		}
		payload, ok := fields[2].(string)
		if !ok {
			return "", fmt.Errorf("%w: empty payload", errBadEnvelope)
		}

		var result []any
		if err := json.Unmarshal([]byte(payload), &result); err != nil || len(result) < 2 {
			return "", fmt.Errorf("%w: undecodable payload", errBadEnvelope)
		}
		destination, _ := result[1].(string)
		destination = strings.TrimSpace(destination)
		if destination == "" {
			return "", fmt.Errorf("%w: no destination", errBadEnvelope)
		}
		return destination, nil
	}
	return "", fmt.Errorf("%w: no wrb.fr entry", errBadEnvelope)
}
