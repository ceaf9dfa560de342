package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/apperror"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/crypto"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/logging"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/metrics"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/provider"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/store"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/validation"
)

// CredentialService handles the credential lifecycle: validated save,
// resolution for use, masked display and deletion.
type CredentialService struct {
	store     store.Store
	cipher    *crypto.Cipher
	resolver  *Resolver
	validator provider.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewCredentialService creates a new CredentialService.
func NewCredentialService(st store.Store, cipher *crypto.Cipher, validator provider.Validator, logger *slog.Logger) *CredentialService {
	return &CredentialService{
		store:     st,
		cipher:    cipher,
		resolver:  NewResolver(st, cipher, logger),
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
}

// SaveParams holds the input of Save.
type SaveParams struct {
	Owner        store.Owner
	ProviderType string
	Plaintext    string
	Label        string
}

// MaskedCredential is the display form of a resolved credential.
type MaskedCredential struct {
	OwnerKind       store.OwnerKind `json:"ownerKind"`
	ProviderType    string          `json:"providerType"`
	MaskedKey       string          `json:"maskedKey"`
	Label           string          `json:"label,omitempty"`
	IsValid         bool            `json:"isValid"`
	LastValidatedAt *time.Time      `json:"lastValidatedAt,omitempty"`
	LastUsedAt      *time.Time      `json:"lastUsedAt,omitempty"`
	UsageCount      int64           `json:"usageCount"`
}

// Save validates the key against the provider and only then encrypts and
// upserts it. Nothing is written when validation fails or times out.
func (s *CredentialService) Save(ctx context.Context, p Principal, params SaveParams) error {
	if err := validateSaveParams(params); err != nil {
		return err
	}
	if err := p.AuthorizeOwner(params.Owner, true); err != nil {
		metrics.CredentialOperations.WithLabelValues("save", "forbidden").Inc()
		return err
	}

	result := s.validator.Validate(ctx, params.Plaintext)
	if !result.Valid {
		metrics.CredentialOperations.WithLabelValues("save", "rejected").Inc()
		if result.Timeout {
			return apperror.Provider(apperror.CodeProviderTimeout, "Provider validation timed out", 0, nil)
		}
		return apperror.Validation(apperror.CodeProviderKeyRejected, "API key rejected: "+result.Reason,
			map[string]string{"plaintextKey": result.Reason})
	}

	ciphertext, err := s.cipher.Encrypt(params.Plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}
	metrics.EncryptionOperations.WithLabelValues("encrypt").Inc()

	validatedAt := s.now().UTC()
	cred := &store.Credential{
		Owner:           params.Owner,
		ProviderType:    params.ProviderType,
		EncryptedValue:  ciphertext,
		Label:           params.Label,
		IsValid:         true,
		LastValidatedAt: &validatedAt,
	}
	if err := s.store.UpsertCredential(ctx, cred); err != nil {
		metrics.CredentialOperations.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("failed to save credential: %w", err)
	}

	metrics.CredentialOperations.WithLabelValues("save", "success").Inc()
	logging.Logger(ctx).Info("credential_saved",
		"owner", params.Owner.String(),
		"provider_type", params.ProviderType,
		"user_id", p.UserID,
	)
	return nil
}

// FetchForUse resolves the principal's credential for an actual provider
// call and bumps its usage counter. It returns nil when no credential is
// usable.
func (s *CredentialService) FetchForUse(ctx context.Context, p Principal, providerType string) (*ResolvedCredential, error) {
	if err := validation.ProviderType(providerType); err != nil {
		return nil, invalidProviderType(err)
	}

	resolved, err := s.resolver.Resolve(ctx, p, providerType)
	if err != nil {
		metrics.CredentialOperations.WithLabelValues("fetch", "error").Inc()
		return nil, fmt.Errorf("failed to resolve credential: %w", err)
	}
	if resolved == nil {
		metrics.CredentialOperations.WithLabelValues("fetch", "absent").Inc()
		return nil, nil
	}

	if err := s.store.IncrementUsage(ctx, resolved.Owner, providerType); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Deleted between resolve and increment.
			metrics.CredentialOperations.WithLabelValues("fetch", "absent").Inc()
			return nil, nil
		}
		return nil, fmt.Errorf("failed to record credential usage: %w", err)
	}

	metrics.CredentialOperations.WithLabelValues("fetch", "success").Inc()
	return resolved, nil
}

// FetchMasked resolves the principal's credential for display. It never
// touches the usage counter and never returns the plaintext.
func (s *CredentialService) FetchMasked(ctx context.Context, p Principal, providerType string) (*MaskedCredential, error) {
	if err := validation.ProviderType(providerType); err != nil {
		return nil, invalidProviderType(err)
	}

	resolved, err := s.resolver.Resolve(ctx, p, providerType)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential: %w", err)
	}
	if resolved == nil {
		return nil, nil
	}

	rec := resolved.Record
	return &MaskedCredential{
		OwnerKind:       resolved.Owner.Kind,
		ProviderType:    providerType,
		MaskedKey:       logging.MaskKey(resolved.Plaintext),
		Label:           resolved.Label,
		IsValid:         rec.IsValid,
		LastValidatedAt: rec.LastValidatedAt,
		LastUsedAt:      rec.LastUsedAt,
		UsageCount:      rec.UsageCount,
	}, nil
}

// Delete removes owner's credential after checking the principal may act on it.
func (s *CredentialService) Delete(ctx context.Context, p Principal, owner store.Owner, providerType string) error {
	if err := validation.ProviderType(providerType); err != nil {
		return invalidProviderType(err)
	}
	if err := p.AuthorizeOwner(owner, true); err != nil {
		metrics.CredentialOperations.WithLabelValues("delete", "forbidden").Inc()
		return err
	}

	if err := s.store.DeleteCredential(ctx, owner, providerType); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.CredentialOperations.WithLabelValues("delete", "not_found").Inc()
			return apperror.NotFound(apperror.CodeCredentialNotFound, "Credential not found")
		}
		metrics.CredentialOperations.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	metrics.CredentialOperations.WithLabelValues("delete", "success").Inc()
	logging.Logger(ctx).Info("credential_deleted",
		"owner", owner.String(),
		"provider_type", providerType,
		"user_id", p.UserID,
	)
	return nil
}

// Test checks a candidate key against the provider without storing it.
func (s *CredentialService) Test(ctx context.Context, plaintext string) (provider.ValidationResult, error) {
	if err := validation.APIKey(plaintext); err != nil {
		return provider.ValidationResult{}, apperror.Validation(apperror.CodeInvalidInput, "Invalid API key",
			map[string]string{"plaintextKey": err.Error()})
	}

	result := s.validator.Validate(ctx, plaintext)
	outcome := "valid"
	if !result.Valid {
		outcome = "invalid"
	}
	metrics.CredentialOperations.WithLabelValues("test", outcome).Inc()
	return result, nil
}

func validateSaveParams(params SaveParams) error {
	fields := map[string]string{}
	if !params.Owner.Kind.Valid() {
		fields["ownerContext.type"] = "must be user or organization"
	}
	if err := validation.ProviderType(params.ProviderType); err != nil {
		fields["providerType"] = err.Error()
	}
	if err := validation.APIKey(params.Plaintext); err != nil {
		fields["plaintextKey"] = err.Error()
	}
	if err := validation.Label(params.Label); err != nil {
		fields["label"] = err.Error()
	}
	if len(fields) > 0 {
		return apperror.Validation(apperror.CodeInvalidInput, "Invalid credential", fields)
	}
	return nil
}

func invalidProviderType(err error) error {
	return apperror.Validation(apperror.CodeInvalidInput, "Invalid provider type",
		map[string]string{"providerType": err.Error()})
}
