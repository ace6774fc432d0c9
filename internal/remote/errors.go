package remote

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrRemoteTransient marks failures worth retrying: timeouts, connection
	// errors, 5xx and 429 responses.
	ErrRemoteTransient = errors.New("remote lookup transient failure")
	// ErrRemoteFatal marks failures that are surfaced without retry.
	ErrRemoteFatal = errors.New("remote lookup failed")
	// ErrNotRemoteURL is returned for URLs that do not point at the remote
	// catalog or carry no numeric entry id.
	ErrNotRemoteURL = errors.New("not a remote catalog entry url")
	ErrCacheCorrupt = errors.New("response cache entry corrupt")
)

// StatusError is a non-success HTTP response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusRequestTimeout {
		return ErrRemoteTransient
	}
	return ErrRemoteFatal
}

// RateLimitedError is a 429 response. RetryAfter is the delay the server
// asked for.
type RateLimitedError struct {
	Op         string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Op, e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRemoteTransient }
