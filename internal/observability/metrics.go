package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects dispatch metrics.
type Metrics interface {
	RecordRequest(ctx context.Context, labels RequestLabels)
	RecordLatency(ctx context.Context, seconds float64, labels RequestLabels)
	RecordAttempt(ctx context.Context, provider, outcome string)
	RecordCost(ctx context.Context, cost float64, labels RequestLabels)
}

// RequestLabels contains metric dimensions.
type RequestLabels struct {
	Task     string
	Provider string
	Mode     string
	Status   string
}

// PrometheusMetrics records dispatch metrics as Prometheus collectors
type PrometheusMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	attemptsTotal   *prometheus.CounterVec
	costTotal       *prometheus.CounterVec
}

// NewPrometheusMetrics registers the collectors on reg. A nil reg uses the
// default registerer.
func NewPrometheusMetrics(namespace string, reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_requests_total",
				Help:      "Total number of dispatched generation requests",
			},
			[]string{"task", "provider", "mode", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_request_duration_seconds",
				Help:      "Total dispatch latency in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"task", "mode", "status"},
		),
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_attempts_total",
				Help:      "Provider invocations by outcome",
			},
			[]string{"provider", "outcome"},
		),
		costTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_cost_usd_total",
				Help:      "Accumulated generation cost in USD",
			},
			[]string{"task", "provider"},
		),
	}
}

func (m *PrometheusMetrics) RecordRequest(_ context.Context, l RequestLabels) {
	m.requestsTotal.WithLabelValues(l.Task, l.Provider, l.Mode, l.Status).Inc()
}

func (m *PrometheusMetrics) RecordLatency(_ context.Context, seconds float64, l RequestLabels) {
	m.requestDuration.WithLabelValues(l.Task, l.Mode, l.Status).Observe(seconds)
}

func (m *PrometheusMetrics) RecordAttempt(_ context.Context, provider, outcome string) {
	m.attemptsTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *PrometheusMetrics) RecordCost(_ context.Context, cost float64, l RequestLabels) {
	if cost <= 0 {
		return
	}
	m.costTotal.WithLabelValues(l.Task, l.Provider).Add(cost)
}

// NoopMetrics discards everything
type NoopMetrics struct{}

func (NoopMetrics) RecordRequest(context.Context, RequestLabels)          {}
func (NoopMetrics) RecordLatency(context.Context, float64, RequestLabels) {}
func (NoopMetrics) RecordAttempt(context.Context, string, string)         {}
func (NoopMetrics) RecordCost(context.Context, float64, RequestLabels)    {}

// RegisterQueueDepth exposes depth as a gauge sampled on every scrape
func RegisterQueueDepth(namespace string, reg prometheus.Registerer, depth func() int) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generation_queue_depth",
			Help:      "Async generations waiting for a worker",
		},
		func() float64 { return float64(depth()) },
	)
}
