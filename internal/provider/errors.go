package provider

import (
	"errors"
	"fmt"
	"time"
)

// StatusError is a non-2xx response from the provider. It never carries the
// response body, which may echo the caller's key.
type StatusError struct {
	Provider   string
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider %q returned status %d", e.Provider, e.StatusCode)
}

// TimeoutError is returned when a call exceeds its configured timeout.
type TimeoutError struct {
	Provider string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider %q request timeout after %s", e.Provider, e.Timeout)
}

// ConnectionError is a transport failure before any response was received.
type ConnectionError struct {
	Provider string
	Cause    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("provider %q connection error", e.Provider)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// ParseError is returned when a 2xx response cannot be decoded.
type ParseError struct {
	Provider string
	Cause    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("provider %q response parse error", e.Provider)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// IsTimeout reports whether err is a *TimeoutError.
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}
