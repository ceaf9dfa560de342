// Package apperror defines the error taxonomy shared by the credential
// services and the HTTP layer. Each error carries a stable machine code and
// the HTTP status it maps to; the message is always safe to show a client.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error for propagation and rendering.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindRateLimit     Kind = "rate_limit"
	KindProvider      Kind = "provider"
	KindDecryption    Kind = "decryption"
	KindNotFound      Kind = "not_found"
	KindUnavailable   Kind = "unavailable"
	KindInternal      Kind = "internal"
)

// Stable codes returned to clients.
const (
	CodeInvalidInput            = "INVALID_INPUT"
	CodeInvalidJSON             = "INVALID_JSON"
	CodeBodyTooLarge            = "BODY_TOO_LARGE"
	CodeProviderKeyRejected     = "PROVIDER_KEY_REJECTED"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeForbidden               = "FORBIDDEN"
	CodeCrossTenant             = "CROSS_TENANT_ACCESS"
	CodeCSRFMismatch            = "CSRF_TOKEN_MISMATCH"
	CodeOriginNotAllowed        = "ORIGIN_NOT_ALLOWED"
	CodeRateLimited             = "RATE_LIMIT_EXCEEDED"
	CodeAPIRateLimited          = "API_RATE_LIMIT_EXCEEDED"
	CodeStrictRateLimited       = "STRICT_RATE_LIMIT_EXCEEDED"
	CodeProviderError           = "PROVIDER_ERROR"
	CodeProviderTimeout         = "PROVIDER_TIMEOUT"
	CodeCredentialNotFound      = "CREDENTIAL_NOT_FOUND"
	CodeCredentialNotConfigured = "CREDENTIAL_NOT_CONFIGURED"
	CodeNotFound                = "NOT_FOUND"
	CodeMethodNotAllowed        = "METHOD_NOT_ALLOWED"
	CodeServiceUnavailable      = "SERVICE_UNAVAILABLE"
	CodeInternal                = "INTERNAL_ERROR"
)

// InternalMessage is the only message a production client sees for
// unexpected failures.
const InternalMessage = "internal error"

// Error is a classified, client-safe error.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Status     int
	Fields     map[string]string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation returns a 400 error with optional field-level detail.
func Validation(code, message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Status: http.StatusBadRequest, Fields: fields}
}

// Unauthorized returns a 401 error.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindAuthorization, Code: CodeUnauthorized, Message: message, Status: http.StatusUnauthorized}
}

// Forbidden returns a 403 error with the given code.
func Forbidden(code, message string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: message, Status: http.StatusForbidden}
}

// RateLimited returns a 429 error carrying a retry hint.
func RateLimited(code string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Code:       code,
		Message:    "Too many requests, please try again later",
		Status:     http.StatusTooManyRequests,
		RetryAfter: retryAfter,
	}
}

// NotFound returns a 404 error.
func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message, Status: http.StatusNotFound}
}

// Provider returns an upstream failure. Status is the provider's status when
// it is a client-meaningful 4xx, otherwise 502.
func Provider(code, message string, upstreamStatus int, err error) *Error {
	status := http.StatusBadGateway
	switch {
	case code == CodeProviderTimeout:
		status = http.StatusGatewayTimeout
	case upstreamStatus >= 400 && upstreamStatus < 500:
		status = upstreamStatus
	}
	return &Error{Kind: KindProvider, Code: code, Message: message, Status: status, Err: err}
}

// Unavailable returns a 503 for a dependency that cannot be reached.
func Unavailable(message string, err error) *Error {
	return &Error{Kind: KindUnavailable, Code: CodeServiceUnavailable, Message: message, Status: http.StatusServiceUnavailable, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: InternalMessage, Status: http.StatusInternalServerError, Err: err}
}

// As extracts an *Error from err's chain. Errors outside the taxonomy are
// classified as internal.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
