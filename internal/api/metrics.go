package api

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records per-operation API call counts and latencies.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

// NewMetrics registers the client collectors on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spectra",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "API calls issued by the client, by operation and HTTP status code.",
		}, []string{"op", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "spectra",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "API call latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spectra",
			Subsystem: "client",
			Name:      "request_failures_total",
			Help:      "Failed API calls by operation and error kind.",
		}, []string{"op", "kind"}),
	}
}

func (m *Metrics) observe(op string, status int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	code := "none"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(op, code).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		m.failures.WithLabelValues(op, KindOf(err).String()).Inc()
	}
}
