// Package metrics provides Prometheus instrumentation for the service.
// Metrics register against the default registry and are exposed at
// GET /metrics through Handler.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts HTTP requests by method, route and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "privatecinema_http_requests_total",
		Help: "Total HTTP requests handled.",
	}, []string{"method", "path", "status"})

	// HTTPDuration tracks HTTP request latency.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "privatecinema_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// ClaimEvents counts claim handshake steps by event and result.
	ClaimEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "privatecinema_claim_events_total",
		Help: "Claim token issuance and redemption events.",
	}, []string{"event", "result"})

	// IngestItems counts ingested items by per-item status.
	IngestItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "privatecinema_ingest_items_total",
		Help: "Media items received from agents by result status.",
	}, []string{"status"})

	// IngestChunkFailures counts batch commits that failed.
	IngestChunkFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "privatecinema_ingest_chunk_failures_total",
		Help: "Media batch commits that failed and were demoted to errors.",
	})

	// PlaybackReports counts playback reports by outcome.
	PlaybackReports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "privatecinema_playback_reports_total",
		Help: "Playback reports by outcome.",
	}, []string{"outcome"})

	// EnrichResults counts enrichment results by status.
	EnrichResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "privatecinema_enrich_results_total",
		Help: "TMDB enrichment results by status.",
	}, []string{"status"})

	// BackfillOwners counts owners processed by the backfill sweep.
	BackfillOwners = promauto.NewCounter(prometheus.CounterOpts{
		Name: "privatecinema_backfill_owners_total",
		Help: "Owners processed by the TMDB backfill sweep.",
	})
)

// Handler returns the Prometheus HTTP handler for /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware wraps an HTTP handler to record request counts and latency.
// Paths are recorded as registered routes; unknown paths collapse to "other".
func Middleware(routes map[string]bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if !routes[path] {
			path = "other"
		}
		HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		HTTPDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
