// Package validation provides input validation functions.
package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

var (
	// ErrProviderTypeEmpty is returned when the provider type is empty.
	ErrProviderTypeEmpty = errors.New("provider type is required")
	// ErrProviderTypeInvalid is returned when the provider type has an invalid format.
	ErrProviderTypeInvalid = errors.New("provider type must be 2-32 lowercase letters, digits, dashes or underscores")

	// ErrAPIKeyEmpty is returned when the API key is empty.
	ErrAPIKeyEmpty = errors.New("API key is required")
	// ErrAPIKeyTooShort is returned when the API key is shorter than 8 characters.
	ErrAPIKeyTooShort = errors.New("API key must be at least 8 characters")
	// ErrAPIKeyTooLong is returned when the API key exceeds 512 characters.
	ErrAPIKeyTooLong = errors.New("API key must be at most 512 characters")
	// ErrAPIKeyInvalidChars is returned when the API key contains whitespace or control characters.
	ErrAPIKeyInvalidChars = errors.New("API key must not contain whitespace or control characters")

	// ErrLabelTooLong is returned when the label exceeds 100 characters.
	ErrLabelTooLong = errors.New("label must be at most 100 characters")

	// ErrMessagesEmpty is returned when a completion request has no messages.
	ErrMessagesEmpty = errors.New("at least one message is required")
	// ErrTooManyMessages is returned when a completion request exceeds 100 messages.
	ErrTooManyMessages = errors.New("at most 100 messages are allowed")
	// ErrMessageRoleInvalid is returned for roles other than system, user and assistant.
	ErrMessageRoleInvalid = errors.New("message role must be system, user or assistant")
	// ErrMessageContentEmpty is returned when a message has no content.
	ErrMessageContentEmpty = errors.New("message content is required")
)

var providerTypeRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,31}$`)

// ProviderType validates a provider type identifier.
// Rules: 2-32 characters, lowercase, starts with a letter.
func ProviderType(providerType string) error {
	if providerType == "" {
		return ErrProviderTypeEmpty
	}
	if !providerTypeRegex.MatchString(providerType) {
		return ErrProviderTypeInvalid
	}
	return nil
}

// APIKey validates the shape of a provider API key. Whether the provider
// accepts it is decided by a live validation call.
func APIKey(key string) error {
	if key == "" {
		return ErrAPIKeyEmpty
	}
	if len(key) < 8 {
		return ErrAPIKeyTooShort
	}
	if len(key) > 512 {
		return ErrAPIKeyTooLong
	}
	for _, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ErrAPIKeyInvalidChars
		}
	}
	return nil
}

// Label validates an optional credential label.
// Rules: 0-100 characters.
func Label(label string) error {
	if len([]rune(strings.TrimSpace(label))) > 100 {
		return ErrLabelTooLong
	}
	return nil
}

// Message is the shape validated for completion requests.
type Message struct {
	Role    string
	Content string
}

// Messages validates a completion conversation.
func Messages(messages []Message) error {
	if len(messages) == 0 {
		return ErrMessagesEmpty
	}
	if len(messages) > 100 {
		return ErrTooManyMessages
	}
	for _, m := range messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return ErrMessageRoleInvalid
		}
		if strings.TrimSpace(m.Content) == "" {
			return ErrMessageContentEmpty
		}
	}
	return nil
}
