package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAskSendsFactsAndPrintsDecision(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rag/query" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(domain.QueryResult{
			Answer:   "Knee surgery is covered after 3 months.",
			Evidence: []string{"reference #1"},
			EvidenceMap: map[string]domain.EvidenceSource{
				"reference #1": {DocumentID: "doc-a", Score: 0.91, Preview: "Knee surgery..."},
			},
			Constraints: domain.ExtractedConstraints{"min_age": 18, "max_age": 65},
			Decision: &domain.RuleDecision{
				Eligibility: domain.EligibilityEligible,
				Reasons:     []string{"passed age checks"},
				Confidence:  1,
			},
		})
	}))
	defer server.Close()

	out, err := runCommand(t, "ask", "--api-url", server.URL, "--api-key", "tok", "--age", "46", "--top-k-final", "3", "knee", "surgery")
	if err != nil {
		t.Fatalf("ask error = %v", err)
	}
	if got["query"] != "knee surgery" || got["top_k_final"] != float64(3) {
		t.Fatalf("unexpected request body: %v", got)
	}
	facts, _ := got["applicant_facts"].(map[string]any)
	if facts["age"] != float64(46) {
		t.Fatalf("expected age fact, got %v", got["applicant_facts"])
	}
	for _, want := range []string{"Answer: Knee surgery is covered", "reference #1  doc-a", "Constraints: max_age=65 min_age=18", "Decision: eligible", "passed age checks"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAskWithoutAgeOmitsFacts(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(domain.QueryResult{Answer: "x"})
	}))
	defer server.Close()

	if _, err := runCommand(t, "ask", "--api-url", server.URL, "--infer-facts", "46-year-old, knee surgery"); err != nil {
		t.Fatalf("ask error = %v", err)
	}
	if _, ok := got["applicant_facts"]; ok {
		t.Fatalf("expected no applicant_facts, got %v", got)
	}
	if got["infer_facts"] != true {
		t.Fatalf("expected infer_facts=true, got %v", got)
	}
}

func TestStatusReportsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"document not found","request_id":"req-1"}`))
	}))
	defer server.Close()

	_, err := runCommand(t, "status", "--api-url", server.URL, "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.RequestID != "req-1" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestStatusPrintsDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/documents/doc-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(domain.Document{ID: "doc-1", Filename: "policy.txt", Status: domain.StatusReady, Category: "insurance", Tags: []string{"health"}})
	}))
	defer server.Close()

	out, err := runCommand(t, "status", "--api-url", server.URL, "doc-1")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(out, "doc-1  ready  policy.txt") || !strings.Contains(out, "category: insurance  tags: health") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
