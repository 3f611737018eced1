package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

// RetryPolicy bounds a structured decode loop. The wait before attempt n+1 is BackoffStep*n.
type RetryPolicy struct {
	Attempts    int
	BackoffStep time.Duration
}

type decodeShape struct {
	name  string
	open  byte
	close byte
}

var (
	shapeStringList = decodeShape{name: "string list", open: '[', close: ']'}
	shapeNumberList = decodeShape{name: "number list", open: '[', close: ']'}
	shapeObject     = decodeShape{name: "object", open: '{', close: '}'}
)

type decodeRequest struct {
	operation string
	prompt    string
	system    string
	shape     decodeShape
	policy    RetryPolicy
}

var errNoStructuredValue = errors.New("no structured value in oracle output")

// decodeStructured asks the oracle for a JSON value of the requested shape, repairing or retrying
// malformed output. It never returns an error: ok=false means the caller must fall back.
func decodeStructured[T any](
	ctx context.Context,
	oracle ports.Oracle,
	observer ports.PipelineObserver,
	req decodeRequest,
	validate func(T) error,
) (T, bool) {
	var zero T
	if observer == nil {
		observer = ports.NopObserver{}
	}
	maxAttempts := req.policy.Attempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt

		raw, err := oracle.Generate(ctx, req.prompt, req.system)
		if err == nil {
			var value T
			value, err = parseStructured[T](raw, req.shape)
			if err == nil && validate != nil {
				err = validate(value)
			}
			if err == nil {
				observer.ObserveDecodeAttempts(req.operation, attempts, true)
				return value, true
			}
		}

		if attempt == maxAttempts {
			slog.Warn("oracle_decode_exhausted",
				"operation", req.operation,
				"attempts", attempts,
				"error", err,
			)
			break
		}

		wait := req.policy.BackoffStep * time.Duration(attempt)
		slog.Warn("oracle_decode_retry",
			"operation", req.operation,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)
		if sleepErr := sleepContext(ctx, wait); sleepErr != nil {
			slog.Warn("oracle_decode_exhausted",
				"operation", req.operation,
				"attempts", attempts,
				"error", sleepErr,
			)
			break
		}
	}

	observer.ObserveDecodeAttempts(req.operation, attempts, false)
	return zero, false
}

// maxRecoveryCandidates bounds the parse attempts made on one malformed reply.
const maxRecoveryCandidates = 32

// parseStructured tries a strict parse first, then balanced bracketed substrings by start offset.
func parseStructured[T any](raw string, shape decodeShape) (T, error) {
	var strict T
	trimmed := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(trimmed), &strict); err == nil {
		return strict, nil
	}

	var lastErr error
	for i, span := range balancedSpans(trimmed, shape.open, shape.close) {
		if i == maxRecoveryCandidates {
			break
		}
		var recovered T
		if err := json.Unmarshal([]byte(trimmed[span[0]:span[1]]), &recovered); err != nil {
			lastErr = err
			continue
		}
		return recovered, nil
	}

	var zero T
	if lastErr != nil {
		return zero, fmt.Errorf("decode %s: %w", shape.name, lastErr)
	}
	return zero, fmt.Errorf("%s: %w", shape.name, errNoStructuredValue)
}

// balancedSpans returns the [start, end) offsets of every balanced open/close span,
// ordered by start offset, in one pass over s. Brackets inside JSON string literals
// do not count; quotes outside any bracket are ignored.
func balancedSpans(s string, openCh, closeCh byte) [][2]int {
	var (
		spans    [][2]int
		stack    []int
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = len(stack) > 0
		case openCh:
			stack = append(stack, i)
		case closeCh:
			if len(stack) == 0 {
				continue
			}
			start := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			spans = append(spans, [2]int{start, i + 1})
		}
	}
	slices.SortFunc(spans, func(a, b [2]int) int {
		return a[0] - b[0]
	})
	return spans
}

func sleepContext(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
