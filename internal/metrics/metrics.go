// Package metrics exposes Prometheus collectors for the tender service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	feedPagesTotal             *prometheus.CounterVec
	feedRecordsTotal           *prometheus.CounterVec
	refreshCyclesTotal         *prometheus.CounterVec
	snapshotItems              prometheus.Gauge
	snapshotUpdatedAtSeconds   prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		feedPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenderfeed_pages_total",
				Help: "Total feed pages fetched, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		feedRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenderfeed_records_total",
				Help: "Total raw records collected, labeled by source.",
			},
			[]string{"source"},
		)

		refreshCyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenderfeed_refresh_cycles_total",
				Help: "Total refresh cycles, labeled by final status.",
			},
			[]string{"status"},
		)

		snapshotItems = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenderfeed_snapshot_items",
				Help: "Number of opportunities in the last persisted snapshot.",
			},
		)

		snapshotUpdatedAtSeconds = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenderfeed_snapshot_updated_at_seconds",
				Help: "Unix timestamp of the last successful snapshot write.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// ObservePage records one fetched page for a source.
func ObservePage(source, outcome string) {
	if feedPagesTotal != nil {
		feedPagesTotal.WithLabelValues(source, outcome).Inc()
	}
}

// ObserveRecords adds collected raw records for a source.
func ObserveRecords(source string, n int) {
	if feedRecordsTotal != nil {
		feedRecordsTotal.WithLabelValues(source).Add(float64(n))
	}
}

// ObserveCycle records one finished refresh cycle.
func ObserveCycle(status string) {
	if refreshCyclesTotal != nil {
		refreshCyclesTotal.WithLabelValues(status).Inc()
	}
}

// ObserveSnapshot records the size and timestamp of a persisted snapshot.
func ObserveSnapshot(items int, updatedAt time.Time) {
	if snapshotItems != nil {
		snapshotItems.Set(float64(items))
	}
	if snapshotUpdatedAtSeconds != nil {
		snapshotUpdatedAtSeconds.Set(float64(updatedAt.Unix()))
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if httpRequestsTotal != nil {
			httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.status)).Inc()
		}
		if httpRequestDurationSeconds != nil {
			httpRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
