// Package logging provides context-aware logging utilities.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RequestIDKey is the context key for the request ID.
type RequestIDKey struct{}

// ParseLevel maps a LOG_LEVEL value to a slog level. Unknown values are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds the JSON logger used by every process entry point.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// Audit derives the logger that receives audit events.
func Audit(logger *slog.Logger) *slog.Logger {
	return logger.With("log_type", "audit")
}

// WithRequestID stores a request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey{}, id)
}

// GetRequestID returns the request ID from the context, or empty string if not found.
// IDs assigned by chi's RequestID middleware are honoured too.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey{}).(string); ok {
		return id
	}
	return chimw.GetReqID(ctx)
}

// Logger returns a logger with the request_id from the context.
func Logger(ctx context.Context) *slog.Logger {
	requestID := GetRequestID(ctx)
	if requestID != "" {
		return slog.Default().With("request_id", requestID)
	}
	return slog.Default()
}

// Redact replaces every occurrence of a known secret in s with [REDACTED].
// Values of 3 characters or fewer are not redacted to avoid excessive false
// positives.
func Redact(s string, secrets ...string) string {
	for _, secret := range secrets {
		if len(secret) > 3 {
			s = strings.ReplaceAll(s, secret, "[REDACTED]")
		}
	}
	return s
}

// MaskKey renders a credential for display, keeping only a short prefix and
// suffix. Keys too short to mask meaningfully are fully hidden.
func MaskKey(key string) string {
	const keep = 4
	if len(key) <= keep*3 {
		return strings.Repeat("•", 8)
	}
	return key[:keep] + "…" + key[len(key)-keep:]
}
