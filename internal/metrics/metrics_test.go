package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_RecordsKnownAndUnknownRoutes(t *testing.T) {
	handler := Middleware(map[string]bool{"/health": true}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/health", "200"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))
	if got := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/health", "200")); got != before+1 {
		t.Errorf("expected /health counter to advance, got %v", got)
	}

	before = testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "other", "404"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/random/abc", nil))
	if got := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "other", "404")); got != before+1 {
		t.Errorf("expected unknown path to collapse into other, got %v", got)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	IngestChunkFailures.Add(0)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "privatecinema_ingest_chunk_failures_total") {
		t.Errorf("expected ingest chunk failure metric in output")
	}
}
