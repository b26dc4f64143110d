package core

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned when an admission budget is exhausted.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUpstreamAuth is returned when the administrator login fails.
	ErrUpstreamAuth = errors.New("upstream authentication failed")

	// ErrListingFailed is returned when the dashboard listing cannot be produced.
	ErrListingFailed = errors.New("listing dashboards failed")

	// ErrUpstreamUnavailable is returned on network level failures, including timeouts.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrOriginNotAllowed is returned for cross origin requests from origins outside the allow-list.
	ErrOriginNotAllowed = errors.New("origin not allowed")
)

// ValidationError describes malformed caller input.
// Its message names only the shape of the input and is safe to return to callers.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// UpstreamStatusError is returned when the upstream answers with a non-2xx status.
// Body is kept for server side logging only.
type UpstreamStatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream %s returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("upstream %s returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IssuanceFailedError is returned when a guest token could not be minted after validation succeeded.
type IssuanceFailedError struct {
	// StatusCode is the upstream HTTP status, or 0 if no response was received.
	StatusCode int
	Err        error
}

func (e *IssuanceFailedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("guest token issuance failed (upstream status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("guest token issuance failed: %v", e.Err)
}

func (e *IssuanceFailedError) Unwrap() error {
	return e.Err
}

// UpstreamStatus returns the upstream HTTP status carried by err, or 0.
func UpstreamStatus(err error) int {
	var statusErr *UpstreamStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
