package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/sitewatch/internal/metrics"
)

func TestRequestLogAndMetrics(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := chi.NewRouter()
	r.Use(chimw.RequestID, RequestLog(zap.New(core)), Metrics)
	r.Get("/api/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/api/things/{id}", "GET", "418"))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/api/things/42", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("want 418 got %d", rr.Code)
	}

	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("want 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(418) || fields["path"] != "/api/things/42" || fields["request_id"] == "" {
		t.Fatalf("unexpected fields: %v", fields)
	}

	after := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/api/things/{id}", "GET", "418"))
	if after != before+1 {
		t.Fatalf("metric not incremented: %v -> %v", before, after)
	}
}
