package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/usecase"
)

const (
	modeBatch       = "batch"
	modeLive        = "live"
	ndjsonMediaType = "application/x-ndjson"
)

func (s *Server) handleIngest(c echo.Context) error {
	result, err := s.pipeline.Ingest(c.Request().Context(), ownerFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleDecode(c echo.Context) error {
	run, err := s.pipeline.StartDecode(c.Request().Context(), ownerFrom(c))
	if err != nil {
		return err
	}
	return s.stream(c, run)
}

func (s *Server) handleAnalyze(c echo.Context) error {
	limit := parseLimit(c.QueryParam("limit"))

	ctx, owner := c.Request().Context(), ownerFrom(c)
	switch mode := c.QueryParam("mode"); mode {
	case "", modeBatch:
		result, err := s.pipeline.AnalyzeBatch(ctx, owner, limit)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, result)
	case modeLive:
		run, err := s.pipeline.StartAnalyze(ctx, owner, limit)
		if err != nil {
			return err
		}
		return s.stream(c, run)
	default:
		return fmt.Errorf("%w: unknown mode %q", domain.ErrValidation, mode)
	}
}

func (s *Server) handleReset(c echo.Context) error {
	n, err := s.pipeline.ResetFailed(c.Request().Context(), ownerFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"resetCount": n})
}

func (s *Server) handlePending(c echo.Context) error {
	counts, err := s.pipeline.Pending(c.Request().Context(), ownerFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, counts)
}

func (s *Server) handleCancel(c echo.Context) error {
	stage, err := domain.ParseStage(c.Param("stage"))
	if err != nil {
		return err
	}
	cancelled := s.pipeline.Cancel(ownerFrom(c), stage)
	return c.JSON(http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// stream writes every run event as one JSON line and flushes it. When the
// client goes away the request context, and with it the run, is cancelled;
// the remaining events are drained so the run can finish.
func (s *Server) stream(c echo.Context, run *usecase.Run) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, ndjsonMediaType)
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set("X-Run-Id", run.ID)
	res.WriteHeader(http.StatusOK)
	res.Flush()

	enc := json.NewEncoder(res)
	broken := false
	for event := range run.Events() {
		if broken {
			continue
		}
		if err := enc.Encode(event); err != nil {
			s.logger.Debug("stream consumer gone", "run_id", run.ID, "error", err)
			run.Cancel()
			broken = true
			continue
		}
		res.Flush()
	}
	return nil
}

// parseLimit maps a missing or unparseable limit to 0, which the pipeline
// clamps to the configured default.
func parseLimit(raw string) int {
	limit, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return limit
}
