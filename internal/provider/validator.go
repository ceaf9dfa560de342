package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/metrics"
)

// Validation failure reasons shown to the caller.
const (
	ReasonInvalid         = "invalid or revoked"
	ReasonRateLimited     = "rate-limited, retry later"
	ReasonConnectionError = "connection error"
	ReasonRejected        = "provider rejected"
)

// ValidationResult is the outcome of a live key check.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`

	// Timeout is set when the check was aborted by the validation timeout.
	Timeout bool `json:"-"`
}

// Validator confirms a candidate key is currently accepted by the provider.
type Validator interface {
	Validate(ctx context.Context, apiKey string) ValidationResult
}

// Validate performs one minimal completion call with apiKey. It never retries;
// a retry is a new user action.
func (c *Client) Validate(ctx context.Context, apiKey string) ValidationResult {
	body, err := json.Marshal(CompletionRequest{
		Model:     c.cfg.ChatModel,
		Messages:  []Message{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	})
	if err != nil {
		return ValidationResult{Reason: ReasonRejected}
	}

	_, err = c.do(ctx, c.cfg.ValidationTimeout, apiKey, "/v1/chat/completions", "application/json", bytes.NewReader(body))
	result := classify(err)

	label := "valid"
	if !result.Valid {
		label = outcome(err)
	}
	metrics.ProviderRequests.WithLabelValues("validation", label).Inc()
	return result
}

func classify(err error) ValidationResult {
	if err == nil {
		return ValidationResult{Valid: true}
	}

	var statusErr *StatusError
	switch {
	case IsTimeout(err):
		return ValidationResult{Reason: ReasonConnectionError, Timeout: true}
	case errors.As(err, &statusErr):
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ValidationResult{Reason: ReasonInvalid}
		case http.StatusTooManyRequests:
			return ValidationResult{Reason: ReasonRateLimited}
		default:
			return ValidationResult{Reason: ReasonRejected}
		}
	default:
		var connErr *ConnectionError
		if errors.As(err, &connErr) {
			return ValidationResult{Reason: ReasonConnectionError}
		}
		return ValidationResult{Reason: ReasonRejected}
	}
}
