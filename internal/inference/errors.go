package inference

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoBaseURL is returned when the client has no server to talk to.
	ErrNoBaseURL = errors.New("inference: base URL required")

	// ErrNoPicture is returned when Predict is called without a picture URI.
	ErrNoPicture = errors.New("inference: no picture to upload")

	// ErrInvalidJSON is returned when the server answers 2xx with a body that is not JSON.
	ErrInvalidJSON = errors.New("inference: response is not valid JSON")
)

// SendFailedMessage is the user-facing text for a non-success HTTP status.
const SendFailedMessage = "an error occurred while sending to the server"

// APIError represents a non-success response from the predict endpoint.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Body is the start of the response body, kept for logs only.
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", SendFailedMessage, e.StatusCode)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable reports whether the failure is likely transient. The cycle never
// retries; the flag only feeds logs and metrics.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
