package lastfm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Last.fm API error codes.
const (
	errCodeInvalidParams   = 6
	errCodeInvalidAPIKey   = 10
	errCodeSuspendedAPIKey = 26
	errCodeRateLimited     = 29
)

// Sentinel errors matched by UpstreamError through errors.Is.
var (
	// ErrRateLimited is returned when the API rate limit is exceeded after retries.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidAPIKey is returned when the API key is invalid.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrNotFound is returned when Last.fm has no record for the requested entity.
	// Last.fm reports this as "invalid parameters" (code 6).
	ErrNotFound = errors.New("not found")
)

// ErrorKind classifies an upstream failure.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindTransport ErrorKind = "transport"
	KindDecode    ErrorKind = "decode"
	KindAPI       ErrorKind = "api"
)

// UpstreamError describes a failed Last.fm call.
type UpstreamError struct {
	Kind    ErrorKind
	Method  string
	Code    int // Last.fm error code, KindAPI only
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Kind == KindAPI {
		return fmt.Sprintf("lastfm %s: API error %d: %s", e.Method, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("lastfm %s: %s: %v", e.Method, e.Kind, e.Err)
	}
	return fmt.Sprintf("lastfm %s: %s: %s", e.Method, e.Kind, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is maps Last.fm error codes onto the package sentinels.
func (e *UpstreamError) Is(target error) bool {
	if e.Kind != KindAPI {
		return false
	}
	switch target {
	case ErrRateLimited:
		return e.Code == errCodeRateLimited
	case ErrInvalidAPIKey:
		return e.Code == errCodeInvalidAPIKey
	case ErrNotFound:
		return e.Code == errCodeInvalidParams
	}
	return false
}

// IsNotFound reports whether err means the upstream has no record for the entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// classifyTransport wraps a failed HTTP round trip.
func classifyTransport(method string, err error) *UpstreamError {
	kind := KindTransport
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &UpstreamError{Kind: kind, Method: method, Err: err}
}

// retryableError is the default retry predicate. API errors that will not
// change on a second attempt are not retried.
func retryableError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		return false
	}
	if upErr.Kind != KindAPI {
		return true
	}
	switch upErr.Code {
	case errCodeInvalidParams, errCodeInvalidAPIKey, errCodeSuspendedAPIKey:
		return false
	}
	return true
}
