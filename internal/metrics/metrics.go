// Package metrics registers the pipeline's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "jobcatalog"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	StageItems      *prometheus.CounterVec
	LastRunSuccess  prometheus.Gauge
	CollectAttempts *prometheus.CounterVec

	IndexWrites   *prometheus.CounterVec
	OutboxDepth   prometheus.Gauge
	OutboxFailing prometheus.Gauge
	OutboxLag     prometheus.Gauge

	ReviewQueue prometheus.Gauge
	Canonical   prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors on a fresh registry that also carries the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := NewWith(reg)
	m.registry = reg
	return m
}

// NewWith registers the collectors on reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.RunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Pipeline runs by final state.",
	}, []string{"state"})
	m.RunDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of each run stage.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"stage"})
	m.StageItems = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_items_total",
		Help:      "Items handled per stage and outcome.",
	}, []string{"stage", "outcome"})
	m.LastRunSuccess = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_success",
		Help:      "1 if the latest run completed, 0 otherwise.",
	})
	m.CollectAttempts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "collector",
		Name:      "collections_total",
		Help:      "Raw collections persisted per source and fetch status.",
	}, []string{"source", "status"})

	m.IndexWrites = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "writes_total",
		Help:      "Vector index writes by operation and result.",
	}, []string{"op", "result"})
	m.OutboxDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "outbox_depth",
		Help:      "Undelivered vector index writes.",
	})
	m.OutboxFailing = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "outbox_failing",
		Help:      "Undelivered writes with at least one failed attempt.",
	})
	m.OutboxLag = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "lag_seconds",
		Help:      "Age of the oldest undelivered vector index write.",
	})

	m.ReviewQueue = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "review_queue_depth",
		Help:      "Duplicate links waiting for review.",
	})
	m.Canonical = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "canonical_jobs",
		Help:      "Active canonical jobs.",
	})
	return m
}

// Registry returns the registry created by New, or nil.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveStage records a finished stage.
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(stage).Observe(seconds)
}

// AddItems adds n items to a stage outcome.
func (m *Metrics) AddItems(stage, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.StageItems.WithLabelValues(stage, outcome).Add(float64(n))
}

// RunFinished counts a run in its final state.
func (m *Metrics) RunFinished(state string, success bool) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(state).Inc()
	if success {
		m.LastRunSuccess.Set(1)
	} else {
		m.LastRunSuccess.Set(0)
	}
}

// Collected counts one persisted raw collection.
func (m *Metrics) Collected(source, status string) {
	if m == nil {
		return
	}
	m.CollectAttempts.WithLabelValues(source, status).Inc()
}

// IndexWrite counts one vector index write.
func (m *Metrics) IndexWrite(op string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.IndexWrites.WithLabelValues(op, result).Inc()
}

// SetOutbox publishes outbox depth, failing count and lag.
func (m *Metrics) SetOutbox(depth, failing int, lagSeconds float64) {
	if m == nil {
		return
	}
	m.OutboxDepth.Set(float64(depth))
	m.OutboxFailing.Set(float64(failing))
	m.OutboxLag.Set(lagSeconds)
}

// SetCatalog publishes catalog size and review queue depth.
func (m *Metrics) SetCatalog(canonical, reviewQueue int) {
	if m == nil {
		return
	}
	m.Canonical.Set(float64(canonical))
	m.ReviewQueue.Set(float64(reviewQueue))
}
