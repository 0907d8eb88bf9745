package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/usecase"
)

// PipelineService is the slice of the pipeline facade served over HTTP.
type PipelineService interface {
	StartDecode(ctx context.Context, ownerID string) (*usecase.Run, error)
	StartAnalyze(ctx context.Context, ownerID string, limit int) (*usecase.Run, error)
	AnalyzeBatch(ctx context.Context, ownerID string, limit int) (domain.BatchResult, error)
	Cancel(ownerID string, stage domain.Stage) bool
	ResetFailed(ctx context.Context, ownerID string) (int, error)
	Pending(ctx context.Context, ownerID string) (domain.PendingCounts, error)
	Ingest(ctx context.Context, ownerID string) (domain.IngestResult, error)
}

// ServerDeps wires the HTTP transport.
type ServerDeps struct {
	Pipeline PipelineService
	Auth     *Authenticator
	Metrics  http.Handler
	Logger   *slog.Logger
}

// Server is the echo-based API.
type Server struct {
	echo     *echo.Echo
	pipeline PipelineService
	logger   *slog.Logger
}

// NewServer registers middleware and routes.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth := deps.Auth
	if auth == nil {
		auth = NewAuthenticator("", "", logger)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/healthz" || path == "/metrics"
		},
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("request completed",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds())
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s := &Server{echo: e, pipeline: deps.Pipeline, logger: logger}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}

	api := e.Group("/api", auth.RequireOwner())
	api.POST("/ingest", s.handleIngest)
	api.POST("/pipeline/decode", s.handleDecode)
	api.POST("/pipeline/analyze", s.handleAnalyze)
	api.POST("/pipeline/analyze/reset", s.handleReset)
	api.GET("/pipeline/pending", s.handlePending)
	api.DELETE("/pipeline/:stage", s.handleCancel)

	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones. Streaming
// responses end when their request context is cancelled.
func (s *Server) Shutdown(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}
