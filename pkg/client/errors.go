package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrCoolingDown is returned when a request is held back because the
	// service asked us to back off (Retry-After). It is not an HTTP error.
	ErrCoolingDown = errors.New("service cooling down")
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// HTTPError is returned for every non-2xx response. It is the error class
// the pipeline retry wrapper retries on.
type HTTPError struct {
	Service    string
	StatusCode int
	ErrorClass ErrorClass
	Status     string
	URL        string
	// Body holds the start of the response body, if any
	Body string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s error (status %d): %s: %s",
			e.Service, e.ErrorClass, e.StatusCode, e.Status, e.Body)
	}
	return fmt.Sprintf("%s %s error (status %d): %s",
		e.Service, e.ErrorClass, e.StatusCode, e.Status)
}

// Retryable reports whether the error is transient (server or rate limit).
func (e *HTTPError) Retryable() bool {
	return shouldRetry(e.ErrorClass)
}

// AsHTTPError extracts an *HTTPError from err's chain.
func AsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// IsHTTPError reports whether err's chain contains an *HTTPError.
func IsHTTPError(err error) bool {
	_, ok := AsHTTPError(err)
	return ok
}

// ClassifyStatus categorizes an HTTP status code. Non-error codes map to "".
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry determines if an error class is transient.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// 4xx errors will fail the same way again
		return false
	}
}
