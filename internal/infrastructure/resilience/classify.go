package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
)

// ClassifyCommon handles the failure kinds every network adapter treats the same way.
// ok=false means the adapter must classify err itself.
func ClassifyCommon(err error) (ErrorClassification, bool) {
	switch {
	case err == nil:
		return ErrorClassification{}, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassification{Retryable: false, RecordFailure: false}, true
	case IsCircuitOpen(err):
		return ErrorClassification{Retryable: true, RecordFailure: true}, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrorClassification{Retryable: true, RecordFailure: true}, true
	}
	return ErrorClassification{}, false
}

// ClassifyHTTPStatus retries throttling, timeouts and upstream 5xx; other statuses are caller errors.
func ClassifyHTTPStatus(statusCode int) ErrorClassification {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
}
