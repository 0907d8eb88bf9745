package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/ports"
)

// ReportObserver publishes a short report of every finished run.
type ReportObserver struct {
	notifier  ports.Notifier
	logger    *slog.Logger
	skipEmpty bool
}

var _ ports.RunObserver = (*ReportObserver)(nil)

// NewReportObserver builds the observer; with skipEmpty, completed runs that
// processed nothing are not reported.
func NewReportObserver(notifier ports.Notifier, skipEmpty bool, logger *slog.Logger) *ReportObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportObserver{notifier: notifier, logger: logger, skipEmpty: skipEmpty}
}

// RunFinished formats and publishes the summary; delivery errors are logged.
func (r *ReportObserver) RunFinished(ctx context.Context, summary domain.RunSummary) {
	if r.notifier == nil {
		return
	}
	if r.skipEmpty && summary.State == domain.RunCompleted && summary.Total == 0 {
		return
	}

	if err := r.notifier.PublishDigest(ctx, BuildRunReport(summary)); err != nil {
		r.logger.Warn("publish run report", "run_id", summary.RunID, "error", err)
	}
}

// BuildRunReport renders a run summary as a plain-text message.
func BuildRunReport(summary domain.RunSummary) string {
	var b strings.Builder

	stage := string(summary.Stage)
	if stage != "" {
		stage = strings.ToUpper(stage[:1]) + stage[1:]
	}
	fmt.Fprintf(&b, "%s run %s for %s\n", stage, summary.State, summary.OwnerID)
	fmt.Fprintf(&b, "Succeeded: %d\nFailed: %d\nTotal: %d\n", summary.Succeeded, summary.Failed, summary.Total)
	if !summary.FinishedAt.IsZero() && !summary.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Duration: %s\n", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	}
	if summary.State == domain.RunFailed {
		b.WriteString("The run stopped on an internal error; see server logs.\n")
	}

	return strings.TrimRight(b.String(), "\n")
}
