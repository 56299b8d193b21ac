package http

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors live on the default registry and are shared by every Server in
// the process, so repeated NewServer calls (tests included) never trip
// duplicate registration.
var (
	metricsOnce sync.Once
	sharedHTTP  *requestMetrics
)

type requestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge

	// ingestedEvents counts ingestion outcomes: accepted, duplicate, stale.
	ingestedEvents *prometheus.CounterVec
}

func newRequestMetrics() *requestMetrics {
	metricsOnce.Do(func() {
		sharedHTTP = &requestMetrics{
			requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "engagement",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests by method, path, and status.",
			}, []string{"method", "path", "status"}),
			requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "engagement",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by method and path.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method", "path"}),
			inFlight: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: "engagement",
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "HTTP requests currently being served.",
			}),
			ingestedEvents: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "engagement",
				Subsystem: "ingest",
				Name:      "events_total",
				Help:      "Ingested events by outcome (accepted, duplicate, stale).",
			}, []string{"outcome"}),
		}
	})
	return sharedHTTP
}

func (m *requestMetrics) observe(method, path string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *requestMetrics) observeIngest(outcome string) {
	m.ingestedEvents.WithLabelValues(outcome).Inc()
}
