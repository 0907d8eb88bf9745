package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"ArticlePipeline/internal/config"
	"ArticlePipeline/internal/decodecache"
	"ArticlePipeline/internal/infrastructure/crawler"
	"ArticlePipeline/internal/infrastructure/llm"
	"ArticlePipeline/internal/infrastructure/ml"
	"ArticlePipeline/internal/infrastructure/parser"
	"ArticlePipeline/internal/infrastructure/resolver"
	"ArticlePipeline/internal/infrastructure/scheduler"
	"ArticlePipeline/internal/infrastructure/storage"
	"ArticlePipeline/internal/infrastructure/telegram"
	"ArticlePipeline/internal/logging"
	"ArticlePipeline/internal/metrics"
	"ArticlePipeline/internal/pacer"
	"ArticlePipeline/internal/ports"
	"ArticlePipeline/internal/scanner"
	"ArticlePipeline/internal/transport/httpapi"
	"ArticlePipeline/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     ports.ArticleStore
	postgres  *storage.PostgresRepository
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	server    *httpapi.Server
	closers   []func()
}

// New connects the configured backends and assembles the pipeline. Close
// releases whatever New opened, also when it returns an error.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &Application{cfg: cfg, logger: baseLogger}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	cache, err := a.openCache(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	analyzer, err := newAnalyzer(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	p := pacer.New(map[string]time.Duration{
		pacer.DependencyResolver:  cfg.Pipeline.DecodeInterval,
		pacer.DependencyInference: cfg.Pipeline.AnalyzeInterval,
	})

	decode := usecase.NewDecodeStage(usecase.DecodeStageDeps{
		Store:    a.store,
		Cache:    cache,
		Resolver: resolver.NewGoogleNewsResolver(nil, cfg.Resolver.BaseURL, cfg.Resolver.UserAgent),
		Pacer:    p,
		Timeout:  cfg.Pipeline.ResolverTimeout,
		Logger:   baseLogger.With("component", "decode"),
	})

	var fetcher ports.ContentFetcher
	if cfg.Crawler.Enabled {
		fetcher = crawler.NewContentCrawler(nil, cfg.Crawler.UserAgent)
	}
	analyze := usecase.NewAnalyzeStage(usecase.AnalyzeStageDeps{
		Store:        a.store,
		Analyzer:     analyzer,
		Fetcher:      fetcher,
		Pacer:        p,
		Timeout:      cfg.Pipeline.InferenceTimeout,
		CrawlTimeout: cfg.Pipeline.CrawlTimeout,
		Logger:       baseLogger.With("component", "analyze"),
	})

	registry := scanner.NewRegistry(
		parser.NewRSSScanner(nil, cfg.Crawler.UserAgent),
		parser.NewSearchScanner(nil, cfg.Resolver.BaseURL, cfg.Resolver.UserAgent),
	)
	source := parser.NewStrategySource(registry, cfg.Sites, baseLogger.With("component", "source"))

	m := metrics.New()
	observers := []ports.RunObserver{m}
	if report := a.reportObserver(); report != nil {
		observers = append(observers, report)
	}

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Decode:    decode,
		Analyze:   analyze,
		Observers: observers,
		Logger:    baseLogger.With("component", "orchestrator"),
	})
	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Store:        a.store,
		Orchestrator: orchestrator,
		Ingestor: usecase.NewIngestor(usecase.IngestorDeps{
			Store:  a.store,
			Source: source,
			Logger: baseLogger.With("component", "ingest"),
		}),
		Limits: usecase.AnalyzeLimits{
			Default: cfg.Pipeline.AnalyzeDefaultLimit,
			Max:     cfg.Pipeline.AnalyzeMaxLimit,
		},
		Logger: baseLogger.With("component", "pipeline"),
	})

	if cfg.Scheduler.Enabled {
		driver := scheduler.NewTickerScheduler(cfg.Scheduler.Interval, cfg.Scheduler.Location())
		a.scheduler = usecase.NewScheduler(driver, a.pipeline, cfg.Scheduler.Owners, baseLogger.With("component", "scheduler"))
	}

	a.server = httpapi.NewServer(httpapi.ServerDeps{
		Pipeline: a.pipeline,
		Auth:     httpapi.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, baseLogger.With("component", "auth")),
		Metrics:  m.Handler(),
		Logger:   baseLogger.With("component", "http"),
	})

	return a, nil
}

func (a *Application) openStore(ctx context.Context) error {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("database dsn not set, articles are kept in memory")
		a.store = storage.NewMemoryRepository()
		return nil
	}

	poolCfg, err := pgxpool.ParseConfig(a.cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("parse database dsn: %w", err)
	}
	if a.cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = a.cfg.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	a.postgres = storage.NewPostgresRepository(pool)
	a.store = a.postgres
	return nil
}

// openCache returns nil when no Redis address is set; the decode stage then
// keeps its cache in process.
func (a *Application) openCache(ctx context.Context) (ports.DecodeCache, error) {
	rc := a.cfg.Redis
	if rc.Addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	a.closers = append(a.closers, func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return decodecache.NewRedis(client, rc.KeyPrefix, rc.TTL), nil
}

func newAnalyzer(cfg config.Config) (ports.Analyzer, error) {
	switch cfg.Pipeline.Analyzer {
	case config.AnalyzerML:
		return ml.NewClient(cfg.ML.InferenceURL, cfg.ML.APIKey), nil
	default:
		client, err := llm.NewChatGPTClient(cfg.ChatGPT, nil)
		if err != nil {
			return nil, fmt.Errorf("chatgpt analyzer: %w", err)
		}
		return client, nil
	}
}

// reportObserver is nil unless Telegram is configured and reachable.
func (a *Application) reportObserver() ports.RunObserver {
	tg := a.cfg.Notifications.Telegram
	if tg.BotToken == "" || tg.ChatID == "" {
		return nil
	}
	notifier, err := telegram.NewNotifier(tg.BotToken, tg.ChatID, "", nil)
	if err != nil {
		a.logger.Warn("telegram disabled", "error", err)
		return nil
	}
	return usecase.NewReportObserver(notifier, tg.SkipEmpty, a.logger.With("component", "report"))
}

// Pipeline exposes the assembled facade for one-shot commands.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// Handler exposes the HTTP API.
func (a *Application) Handler() http.Handler {
	return a.server.Handler()
}

// Migrate applies the Postgres schema; the in-memory store needs none.
func (a *Application) Migrate(ctx context.Context) error {
	if a.postgres == nil {
		a.logger.Info("no database configured, nothing to migrate")
		return nil
	}
	if err := a.postgres.Migrate(ctx); err != nil {
		return err
	}
	a.logger.Info("schema applied")
	return nil
}

// Serve runs the HTTP API and the scheduler until ctx is cancelled or the
// listener fails, then shuts both down.
func (a *Application) Serve(ctx context.Context) error {
	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Start(a.cfg.HTTP.Addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		var errs []error
		if a.scheduler != nil {
			errs = append(errs, a.scheduler.Stop(context.Background()))
		}
		errs = append(errs, a.server.Shutdown(context.Background(), a.cfg.HTTP.ShutdownTimeout))
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("application stopped")
	return nil
}

// Close releases connections in reverse opening order.
func (a *Application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
