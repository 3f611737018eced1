package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

func TestOracleSendsSystemAndUserMessages(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":" [0.5, 0.1] "},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "secret", BaseURL: server.URL + "/v1", ChatModel: "gpt-test"})
	got, err := NewOracle(client).Generate(context.Background(), "score these", "reply with json")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "[0.5, 0.1]" {
		t.Fatalf("unexpected output: %q", got)
	}
	if captured.Model != "gpt-test" || len(captured.Messages) != 2 {
		t.Fatalf("unexpected request: %+v", captured)
	}
	if captured.Messages[0].Role != "system" || captured.Messages[1].Role != "user" || captured.Messages[1].Content != "score these" {
		t.Fatalf("unexpected messages: %+v", captured.Messages)
	}
}

func TestEmbedderOrdersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":1,"embedding":[0.2]},{"object":"embedding","index":0,"embedding":[0.1]}],"model":"emb"}`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "k", BaseURL: server.URL + "/v1", EmbedModel: "emb"})
	vectors, err := NewEmbedder(client).Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || vectors[0][0] != 0.1 || vectors[1][0] != 0.2 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
}

func TestOracleMarksRateLimitTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "k", BaseURL: server.URL + "/v1", ChatModel: "m"})
	_, err := NewOracle(client).Generate(context.Background(), "p", "")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestOracleBadRequestIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"unknown model","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "k", BaseURL: server.URL + "/v1", ChatModel: "m"})
	_, err := NewOracle(client).Generate(context.Background(), "p", "")
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}
