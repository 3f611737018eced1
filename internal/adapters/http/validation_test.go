package httpadapter

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/grounded-rag/internal/config"
)

func TestEmbeddedOpenAPIDocumentLoads(t *testing.T) {
	route, err := loadQueryRoute()
	if err != nil {
		t.Fatalf("loadQueryRoute() error = %v", err)
	}
	if route.Operation.OperationID != "answerQuestion" {
		t.Fatalf("unexpected operation %q", route.Operation.OperationID)
	}
}

func TestQueryValidationRejectsBadBodies(t *testing.T) {
	handler := NewRouter(config.Config{}, nil, queryFake{}, docsErrFake{}).Handler()

	cases := map[string]any{
		"missing query":   map[string]any{"top_k_final": 3},
		"empty query":     map[string]any{"query": ""},
		"zero top k":      map[string]any{"query": "x", "top_k_final": 0},
		"string top k":    map[string]any{"query": "x", "top_k_per_query": "five"},
		"facts not a map": map[string]any{"query": "x", "applicant_facts": []int{46}},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			res := postQuery(t, handler, payload)
			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
			}
			var body map[string]string
			if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !strings.HasPrefix(body["error"], "invalid request") {
				t.Fatalf("unexpected error %q", body["error"])
			}
		})
	}
}

func TestQueryValidationAcceptsNullFacts(t *testing.T) {
	handler := NewRouter(config.Config{}, nil, queryFake{}, docsErrFake{}).Handler()
	req := httptest.NewRequest(http.MethodPost, "/v1/rag/query", bytes.NewBufferString(`{"query":"knee surgery","applicant_facts":null}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
}
