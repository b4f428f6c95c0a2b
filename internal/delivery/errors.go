package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	dErrors "innexbot/pkg/domain-errors"
)

// ErrCollectorUnavailable is returned while the circuit breaker is open.
var ErrCollectorUnavailable = errors.New("collector unavailable")

// SendError is a failed transmission. Status is zero for transport failures
// that never produced a response.
type SendError struct {
	Status  int
	Message string
	Err     error
}

func (e *SendError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("HTTP %d", e.Status)
	case e.Err != nil:
		return "send failed: " + e.Err.Error()
	default:
		return "send failed"
	}
}

func (e *SendError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth another attempt.
func (e *SendError) Retryable() bool {
	if e.Status == 0 {
		return true
	}
	return retryableStatus(e.Status)
}

// Code maps the failure to a domain error code.
func (e *SendError) Code() dErrors.Code {
	switch {
	case e.Status == http.StatusUnauthorized:
		return dErrors.CodeUnauthorized
	case e.Status == http.StatusForbidden:
		return dErrors.CodeForbidden
	case e.Status == http.StatusTooManyRequests:
		return dErrors.CodeRateLimited
	case e.Status >= 400 && e.Status < 500:
		return dErrors.CodeBadRequest
	case e.Status == 0:
		return dErrors.CodeUnavailable
	default:
		return dErrors.CodeInternal
	}
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsRetryable classifies err. Network failures, timeouts and 500/502/503/504
// responses are retryable; everything else, including other 5xx codes and
// every 4xx, is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *SendError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrCollectorUnavailable) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
