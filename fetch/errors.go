package fetch

import (
	"errors"
	"fmt"
)

// TransportError indicates the request never produced an HTTP response.
type TransportError struct {
	Err error
	URL string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatusError indicates a non-2xx response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// InvalidResponseError indicates a 2xx response whose body is malformed or lacks required fields.
type InvalidResponseError struct {
	Err    error
	URL    string
	Reason string
}

func (e *InvalidResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid response from %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid response from %s: %s", e.URL, e.Reason)
}

func (e *InvalidResponseError) Unwrap() error {
	return e.Err
}

// IsTransportError checks if an error is a transport failure.
func IsTransportError(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsHTTPStatusError checks if an error is a non-2xx response.
func IsHTTPStatusError(err error) bool {
	var target *HTTPStatusError
	return errors.As(err, &target)
}

// IsInvalidResponse checks if an error is a malformed response.
func IsInvalidResponse(err error) bool {
	var target *InvalidResponseError
	return errors.As(err, &target)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var target *HTTPStatusError
	if errors.As(err, &target) {
		return target.StatusCode
	}
	return 0
}
