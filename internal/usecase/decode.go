package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"ArticlePipeline/internal/decodecache"
	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/pacer"
	"ArticlePipeline/internal/ports"
)

const defaultResolverTimeout = 10 * time.Second

// DecodeStageDeps wires the collaborators of the decode stage.
type DecodeStageDeps struct {
	Store    ports.ArticleStore
	Cache    ports.DecodeCache
	Resolver ports.URLResolver
	Pacer    ports.Pacer
	Timeout  time.Duration
	Logger   *slog.Logger
}

// DecodeStage replaces redirect-wrapped links with their destination.
type DecodeStage struct {
	store    ports.ArticleStore
	cache    ports.DecodeCache
	resolver ports.URLResolver
	pacer    ports.Pacer
	timeout  time.Duration
	logger   *slog.Logger

	flights singleflight.Group
}

// NewDecodeStage constructs the stage; a nil cache means an in-process one.
func NewDecodeStage(deps DecodeStageDeps) *DecodeStage {
	cache := deps.Cache
	if cache == nil {
		cache = decodecache.NewMemory()
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultResolverTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DecodeStage{
		store:    deps.Store,
		cache:    cache,
		resolver: deps.Resolver,
		pacer:    deps.Pacer,
		timeout:  timeout,
		logger:   logger,
	}
}

func (d *DecodeStage) eligible(ctx context.Context, ownerID string, _ int) ([]domain.Article, error) {
	articles, err := d.store.ListDecodeEligible(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list decode eligible: %w", err)
	}
	return articles, nil
}

// begin pre-warms the shared cache with every source id of the run.
func (d *DecodeStage) begin(ctx context.Context, articles []domain.Article) itemFunc {
	ids := make([]string, 0, len(articles))
	for _, a := range articles {
		if id, ok := decodecache.ExtractSourceID(a.Link); ok {
			ids = append(ids, id)
		}
	}

	warmed, err := decodecache.Warm(ctx, d.cache, ids)
	if err != nil {
		d.logger.Warn("decode cache pre-warm failed", "error", err)
	} else {
		d.logger.Debug("decode cache pre-warmed", "ids", len(ids), "hits", warmed.Preloaded())
	}

	return func(ctx context.Context, ownerID string, article domain.Article) (domain.ItemOutcome, error) {
		return d.DecodeOne(ctx, ownerID, article, warmed)
	}
}

// DecodeOne resolves and persists one article. Resolver failures are stored
// as decodeFailed and reported in the outcome; the returned error is reserved
// for run-level problems (store failures, cancellation).
func (d *DecodeStage) DecodeOne(ctx context.Context, ownerID string, article domain.Article, cache ports.DecodeCache) (domain.ItemOutcome, error) {
	if cache == nil {
		cache = d.cache
	}

	sourceID, ok := decodecache.ExtractSourceID(article.Link)
	if !ok {
		if !decodecache.IsWrapped(article.Link) {
			return d.persistSuccess(ctx, ownerID, article, article.Link, false)
		}
		dest, err := d.resolve(ctx, func(callCtx context.Context) (string, error) {
			return d.resolver.ResolveLink(callCtx, article.Link)
		})
		return d.finish(ctx, ownerID, article, dest, err)
	}

	dest, hit, err := cache.Lookup(ctx, sourceID)
	if err != nil {
		d.logger.Warn("decode cache lookup failed", "source_id", sourceID, "error", err)
	}
	if hit && strings.TrimSpace(dest) != "" {
		return d.persistSuccess(ctx, ownerID, article, dest, true)
	}

	dest, err = d.resolve(ctx, func(callCtx context.Context) (string, error) {
		return d.resolveShared(callCtx, sourceID)
	})
	if err == nil {
		if storeErr := cache.Store(ctx, sourceID, dest); storeErr != nil {
			d.logger.Warn("decode cache store failed", "source_id", sourceID, "error", storeErr)
		}
	}
	return d.finish(ctx, ownerID, article, dest, err)
}

// resolve paces the resolver, then calls it under the hard per-call timeout.
// A cancelled run surfaces as ctx.Err() so the item stays eligible.
func (d *DecodeStage) resolve(ctx context.Context, call func(context.Context) (string, error)) (string, error) {
	if d.pacer != nil {
		if err := d.pacer.Wait(ctx, pacer.DependencyResolver); err != nil {
			return "", errRunCancelled{err}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	dest, err := call(callCtx)
	if err != nil {
		if ctx.Err() != nil {
			return "", errRunCancelled{ctx.Err()}
		}
		return "", err
	}

	dest = strings.TrimSpace(dest)
	if dest == "" {
		return "", domain.ErrEmptyDestination
	}
	return dest, nil
}

// resolveShared collapses concurrent resolutions of the same id, e.g. two
// owners decoding the same story at once.
func (d *DecodeStage) resolveShared(ctx context.Context, sourceID string) (string, error) {
	ch := d.flights.DoChan(sourceID, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		return d.resolver.ResolveID(callCtx, sourceID)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (d *DecodeStage) finish(ctx context.Context, ownerID string, article domain.Article, dest string, err error) (domain.ItemOutcome, error) {
	var cancelled errRunCancelled
	if errors.As(err, &cancelled) {
		return domain.ItemOutcome{}, cancelled
	}
	if err != nil {
		d.logger.Warn("decode failed", "article_id", article.ID, "error", err)
		return d.persistFailure(ctx, ownerID, article, fmt.Sprintf("resolve link: %v", err))
	}
	return d.persistSuccess(ctx, ownerID, article, dest, false)
}

func (d *DecodeStage) persistSuccess(ctx context.Context, ownerID string, article domain.Article, dest string, cached bool) (domain.ItemOutcome, error) {
	err := d.store.UpdateDecodeResult(context.WithoutCancel(ctx), ownerID, article.ID, domain.DecodeUpdate{
		Link:       dest,
		URLDecoded: true,
	})
	if errors.Is(err, domain.ErrDuplicateLink) {
		d.logger.Warn("canonical link already stored", "article_id", article.ID, "link", dest)
		return d.persistFailure(ctx, ownerID, article, "duplicate canonical link")
	}
	if err != nil {
		return domain.ItemOutcome{}, fmt.Errorf("persist decode result %s: %w", article.ID, err)
	}

	d.logger.Debug("article decoded", "article_id", article.ID, "cached", cached)
	return domain.ItemOutcome{Success: true, Cached: cached}, nil
}

func (d *DecodeStage) persistFailure(ctx context.Context, ownerID string, article domain.Article, reason string) (domain.ItemOutcome, error) {
	err := d.store.UpdateDecodeResult(context.WithoutCancel(ctx), ownerID, article.ID, domain.DecodeUpdate{
		URLDecoded:   true,
		DecodeFailed: true,
	})
	if err != nil {
		return domain.ItemOutcome{}, fmt.Errorf("persist decode failure %s: %w", article.ID, err)
	}
	return domain.ItemOutcome{Error: reason}, nil
}
