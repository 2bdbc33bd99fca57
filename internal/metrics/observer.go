// Package metrics exposes triage runs as Prometheus metrics
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

const namespace = "mail_triage"

// Observer implements core.RunObserver on a private registry
type Observer struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	// decisions counts final decisions.
	// Labels: action, by (policy, llm)
	decisions *prometheus.CounterVec

	// classifierOutcomes counts classifier calls.
	// Labels: outcome (ok, cache_hit, timeout, malformed, quota, unavailable)
	classifierOutcomes *prometheus.CounterVec

	// errors counts failures by stage.
	// Labels: kind (watermark, list, fetch, execute, report)
	errors *prometheus.CounterVec

	// confidence tracks classifier confidence of LLM decisions
	confidence prometheus.Histogram

	runDuration     prometheus.Histogram
	runMessages     prometheus.Gauge
	lastRunSuccess  prometheus.Gauge
	lastRunUnixTime prometheus.Gauge
}

// NewObserver creates a new observer with its own registry
func NewObserver(logger *zap.Logger) *Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Observer{
		registry: reg,
		logger:   logger,
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Final decisions by action and attribution",
		}, []string{"action", "by"}),
		classifierOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "calls_total",
			Help:      "Classifier calls by outcome",
		}, []string{"outcome"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by stage",
		}, []string{"kind"}),
		confidence: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "confidence",
			Help:      "Confidence of classifier decisions",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1.0},
		}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Wall time of triage runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		runMessages: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "messages",
			Help:      "Messages processed by the last run",
		}),
		lastRunSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_success",
			Help:      "1 if the last run completed, 0 if it was aborted",
		}),
		lastRunUnixTime: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_finished_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
}

// ObserveDecision implements core.RunObserver
func (o *Observer) ObserveDecision(d core.Decision) {
	o.decisions.WithLabelValues(string(d.Action), string(d.By)).Inc()
	if d.By == core.ByLLM {
		o.confidence.Observe(d.Confidence)
	}
}

// ObserveClassifier implements core.RunObserver
func (o *Observer) ObserveClassifier(outcome string) {
	o.classifierOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveError implements core.RunObserver
func (o *Observer) ObserveError(kind string) {
	o.errors.WithLabelValues(kind).Inc()
}

// ObserveRun implements core.RunObserver
func (o *Observer) ObserveRun(report core.RunReport, err error) {
	o.runDuration.Observe(report.Duration().Seconds())
	o.runMessages.Set(float64(report.Total()))
	o.lastRunUnixTime.Set(float64(report.FinishedAt.Unix()))
	if err != nil {
		o.lastRunSuccess.Set(0)
		return
	}
	o.lastRunSuccess.Set(1)
}

// Registry returns the registry holding every triage metric
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

// Handler serves the registry in the Prometheus exposition format
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

// Push sends the current values to a Pushgateway. An empty url is a no-op.
func (o *Observer) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(o.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	o.logger.Debug("Pushed metrics", zap.String("url", url), zap.String("job", job))
	return nil
}
