package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthError reports that the central authority rejected the device
// credentials or does not know its tenant.
type AuthError struct {
	// Op is the gateway operation that failed (e.g. "heartbeat").
	Op string

	// StatusCode is the HTTP status returned by the authority.
	StatusCode int
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: unauthorized (status %d)", e.Op, e.StatusCode)
}

// TransientError reports a failure that may succeed on retry.
type TransientError struct {
	Op string

	// StatusCode is the HTTP status, or 0 if no response was received.
	StatusCode int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsAuthError returns true if err is or wraps an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTransientError returns true if err is or wraps a *TransientError.
func IsTransientError(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// isAuthStatus reports whether code means rejected credentials or an
// unknown tenant.
func isAuthStatus(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// classify maps a non-success HTTP status to an error.
func classify(op string, code int, body string) error {
	if isAuthStatus(code) {
		return &AuthError{Op: op, StatusCode: code}
	}
	if body != "" {
		return &TransientError{Op: op, StatusCode: code, Err: errors.New(body)}
	}
	return &TransientError{Op: op, StatusCode: code}
}
