package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindName(t *testing.T) {
	cases := map[string]error{
		"":                      nil,
		"internal":              errors.New("boom"),
		"invalid_input":         WrapError(ErrInvalidInput, "upload", errors.New("bad")),
		"temporary":             fmt.Errorf("publish: %w", WrapError(ErrTemporary, "nats", errors.New("down"))),
		"retrieval_unavailable": WrapError(ErrRetrievalUnavailable, "retrieve all", errors.New("index down")),
		"not_found":             ErrDocumentNotFound,
	}
	for want, err := range cases {
		if got := KindName(err); got != want {
			t.Fatalf("KindName(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]DocumentStatus{
		{StatusPending, StatusProcessing},
		{StatusError, StatusProcessing},
		{StatusReady, StatusProcessing},
		{StatusProcessing, StatusReady},
		{StatusProcessing, StatusError},
	}
	for _, tr := range allowed {
		if !CanTransition(tr[0], tr[1]) {
			t.Fatalf("expected %s -> %s to be allowed", tr[0], tr[1])
		}
	}
	denied := [][2]DocumentStatus{
		{StatusPending, StatusReady},
		{StatusPending, StatusError},
		{StatusReady, StatusPending},
		{StatusProcessing, StatusProcessing},
	}
	for _, tr := range denied {
		if CanTransition(tr[0], tr[1]) {
			t.Fatalf("expected %s -> %s to be rejected", tr[0], tr[1])
		}
	}
}
