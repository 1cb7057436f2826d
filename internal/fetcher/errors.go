package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a fetch failure.
type Kind string

const (
	KindTimeout    Kind = "timeout"
	KindHTTP       Kind = "http"
	KindConnection Kind = "connection"
	KindCanceled   Kind = "canceled"
)

// Error is a classified fetch failure.
type Error struct {
	Kind     Kind
	Status   int
	URL      string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.Status)
	default:
		if e.Err != nil {
			return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
		}
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient: timeouts, connection
// failures and 5xx. 4xx responses are client errors and are never retried.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindConnection:
		return true
	case KindHTTP:
		return e.Status >= http.StatusInternalServerError
	default:
		return false
	}
}

// IsClientError reports whether err is a 4xx response.
func IsClientError(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindHTTP && fe.Status >= 400 && fe.Status < 500
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 0
}

// classify converts a transport error into a classified Error.
func classify(ctx context.Context, url string, err error) *Error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCanceled, URL: url, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, URL: url, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, URL: url, Err: err}
	}
	return &Error{Kind: KindConnection, URL: url, Err: err}
}
