package detection

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrModelNotLoaded is returned by Detect before a successful Load.
	ErrModelNotLoaded = errors.New("detection: model not loaded")

	// ErrDetectTimeout is reported when a detection call exceeds its deadline.
	ErrDetectTimeout = errors.New("detection: timed out")

	// ErrMalformedResponse is returned when a remote backend answers with garbage.
	ErrMalformedResponse = errors.New("detection: malformed response")

	// ErrNoDetectors is returned when a chain has nothing to try.
	ErrNoDetectors = errors.New("detection: no detectors available")

	// ErrEmptyImage is returned for nil or zero-sized input.
	ErrEmptyImage = errors.New("detection: empty image")
)

// DetectionError wraps a failure of one detection call with its backend.
type DetectionError struct {
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *DetectionError) Error() string {
	return fmt.Sprintf("detection [%s]: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *DetectionError) Unwrap() error {
	return e.Err
}

// WrapError wraps err with backend context. A nil err stays nil and an
// existing DetectionError is not wrapped twice.
func WrapError(backend string, err error) error {
	if err == nil {
		return nil
	}
	var de *DetectionError
	if errors.As(err, &de) {
		return err
	}
	return &DetectionError{Backend: backend, Err: err}
}

// APIError represents an error response from a remote detection service.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("detection: API error %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// ChainError aggregates errors from every detector a chain tried.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "detection chain: no errors recorded"
	case 1:
		return fmt.Sprintf("detection chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("detection chain: all %d detectors failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap returns every recorded error so errors.Is matches any of them.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}
