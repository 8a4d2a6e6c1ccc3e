package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ErrUnauthenticated marks a backend rejection of the outbound credential.
var ErrUnauthenticated = errors.New("unauthenticated")

// StatusError is an HTTP-level failure returned by a call.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// RateLimitError is returned when the tenant's window is exhausted.
type RateLimitError struct {
	Key        string
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit of %d requests exceeded for %s, retry after %s", e.Limit, e.Key, e.RetryAfter.Round(time.Second))
}

// IsTransient reports whether err is worth retrying: network failures,
// timeouts and 502/503/504 responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		switch status.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsAuthFailure reports whether err means the credential was rejected.
func IsAuthFailure(err error) bool {
	if errors.Is(err, ErrUnauthenticated) {
		return true
	}
	var status *StatusError
	return errors.As(err, &status) && status.StatusCode == http.StatusUnauthorized
}
