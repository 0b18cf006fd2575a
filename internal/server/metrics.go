package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docrag",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests, by route and status code.",
	}, []string{"route", "code"})

	httpRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "docrag",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds, by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	documentsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docrag",
		Subsystem: "ingest",
		Name:      "documents_total",
		Help:      "Uploaded documents, by outcome (ingested, skipped or failed).",
	}, []string{"outcome"})

	chunksCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docrag",
		Subsystem: "ingest",
		Name:      "chunks_total",
		Help:      "Chunks created from uploaded documents.",
	})

	searchResultsReturned = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "docrag",
		Subsystem: "retrieve",
		Name:      "results",
		Help:      "Number of chunks returned per search.",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
	})
)

// metricsMiddleware records request counts and latency under the matched route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		httpRequestDurationSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
