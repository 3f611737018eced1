package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrTemporary            = errors.New("temporary failure")
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	ErrInvalidTransition    = errors.New("invalid status transition")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

var kindNames = []struct {
	kind error
	name string
}{
	{ErrDocumentNotFound, "not_found"},
	{ErrInvalidInput, "invalid_input"},
	{ErrUnauthorized, "unauthorized"},
	{ErrTemporary, "temporary"},
	{ErrRetrievalUnavailable, "retrieval_unavailable"},
	{ErrInvalidTransition, "invalid_transition"},
}

// KindName returns a stable label for err's kind: "" for nil, "internal" when untyped.
func KindName(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindNames {
		if errors.Is(err, k.kind) {
			return k.name
		}
	}
	return "internal"
}
