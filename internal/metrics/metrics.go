// Package metrics exposes Prometheus metrics for pipeline runs.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/ports"
)

const namespace = "article_pipeline"

// Metrics records terminal run summaries. It is a ports.RunObserver.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal    *prometheus.CounterVec
	itemsTotal   *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	runSize      *prometheus.HistogramVec
	lastFinished *prometheus.GaugeVec
}

var _ ports.RunObserver = (*Metrics)(nil)

// New registers the pipeline collectors plus Go and process collectors on a
// private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of finished runs by terminal state",
			},
			[]string{"stage", "state"},
		),
		itemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_total",
				Help:      "Total number of processed items by outcome",
			},
			[]string{"stage", "outcome"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of runs in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"stage"},
		),
		runSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_eligible_items",
				Help:      "Distribution of eligible items per run",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
			},
			[]string{"stage"},
		),
		lastFinished: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_finished_timestamp_seconds",
				Help:      "Unix time of the last finished run",
			},
			[]string{"stage"},
		),
	}
}

// RunFinished implements ports.RunObserver. Owner ids are not used as labels.
func (m *Metrics) RunFinished(_ context.Context, summary domain.RunSummary) {
	stage := string(summary.Stage)

	m.runsTotal.WithLabelValues(stage, string(summary.State)).Inc()
	m.itemsTotal.WithLabelValues(stage, "succeeded").Add(float64(summary.Succeeded))
	m.itemsTotal.WithLabelValues(stage, "failed").Add(float64(summary.Failed))
	m.runSize.WithLabelValues(stage).Observe(float64(summary.Total))

	if !summary.StartedAt.IsZero() && summary.FinishedAt.After(summary.StartedAt) {
		m.runDuration.WithLabelValues(stage).Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	}
	if !summary.FinishedAt.IsZero() {
		m.lastFinished.WithLabelValues(stage).Set(float64(summary.FinishedAt.Unix()))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
