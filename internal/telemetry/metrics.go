// Package telemetry exposes pipeline metrics over Prometheus.
package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Expose(port int) {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		_ = http.ListenAndServe(fmt.Sprintf(":%d", port), nil)
	}()
}

// Metrics is the pipeline's instrumentation set. The processor treats it as
// an optional collaborator, so all methods are nil-safe.
type Metrics struct {
	transformations *prometheus.CounterVec
	retries         prometheus.Counter
	deadLetters     prometheus.Counter
	stageDuration   *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transformations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mtbridge_transformations_total",
			Help: "Transformation attempts by kind and resulting status.",
		}, []string{"kind", "status"}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Name: "mtbridge_retries_scheduled_total",
			Help: "Retries handed to the scheduler.",
		}),
		deadLetters: f.NewCounter(prometheus.CounterOpts{
			Name: "mtbridge_dead_letters_total",
			Help: "Messages routed to the dead-letter queue.",
		}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mtbridge_stage_duration_seconds",
			Help:    "Per-stage processing time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}

func (m *Metrics) ObserveTransformation(kind, status string) {
	if m == nil {
		return
	}
	m.transformations.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) RetryScheduled() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) DeadLettered() {
	if m == nil {
		return
	}
	m.deadLetters.Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
