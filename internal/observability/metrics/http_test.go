package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsNormalizedPath(t *testing.T) {
	m := NewHTTPServerMetrics("grag-api")
	handler := m.Middleware("grag-api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	for _, id := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/documents/"+id, nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("grag-api", http.MethodGet, "/v1/documents/{document_id}", "404"))
	if got != 2 {
		t.Fatalf("requests_total = %v, want 2", got)
	}
}

func TestHandlerExposesAnswerMetrics(t *testing.T) {
	m := NewHTTPServerMetrics("grag-api")
	m.RecordAnswer("grag-api", "/v1/rag/query", "answered", 2, 1500*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`grag_rag_answers_total{endpoint="/v1/rag/query",outcome="answered",service="grag-api"} 1`,
		"grag_rag_cited_evidence_bucket",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
