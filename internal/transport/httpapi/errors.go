package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"ArticlePipeline/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

// errorHandler maps domain errors to status codes. Details of unexpected
// errors are logged and never sent to the caller.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := classify(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, errorResponse{Error: msg})
		}
		if err != nil {
			logger.Error("write error response", "error", err)
		}
	}
}

func classify(err error) (int, string) {
	var httpErr *echo.HTTPError
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrAlreadyRunning):
		return http.StatusConflict, "run already in progress"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &httpErr) && httpErr.Code < http.StatusInternalServerError:
		return httpErr.Code, http.StatusText(httpErr.Code)
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
