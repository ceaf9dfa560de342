// Package store persists encrypted provider credentials and reads user
// profiles. Implementations never decrypt: ciphertext passes through untouched.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors returned by store operations.
var (
	ErrNotFound           = errors.New("not found")
	ErrCredentialNotFound = fmt.Errorf("credential %w", ErrNotFound)
	ErrProfileNotFound    = fmt.Errorf("profile %w", ErrNotFound)
)

// Store defines the credential persistence operations.
type Store interface {
	// UpsertCredential inserts or replaces the credential for (owner, provider
	// type). UsageCount and CreatedAt of an existing row are preserved.
	UpsertCredential(ctx context.Context, cred *Credential) error

	// FindCredential returns found=false, not an error, when no row exists.
	FindCredential(ctx context.Context, owner Owner, providerType string) (*Credential, bool, error)

	// DeleteCredential returns ErrCredentialNotFound when no row exists.
	DeleteCredential(ctx context.Context, owner Owner, providerType string) error

	// IncrementUsage atomically bumps the usage counter and last-used time.
	IncrementUsage(ctx context.Context, owner Owner, providerType string) error

	// CountCredentials returns the number of stored credentials.
	CountCredentials(ctx context.Context) (int64, error)

	// GetProfile returns found=false when the user has no profile row.
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, bool, error)

	Ping(ctx context.Context) error
	Close() error
}
