package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/crypto"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/metrics"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/store"
)

// Outcome is the result of one resolution strategy.
type Outcome int

const (
	// Absent means the strategy has no usable credential.
	Absent Outcome = iota
	// Found means the strategy produced a decrypted credential.
	Found
)

// ResolutionStrategy selects one candidate owner for a principal. Strategies
// are evaluated in order and the first Found wins.
type ResolutionStrategy struct {
	Name    string
	Applies func(p Principal) bool
	Owner   func(p Principal) store.Owner
}

// PersonalStrategy uses the principal's own credential when the profile opts in.
var PersonalStrategy = ResolutionStrategy{
	Name:    "personal",
	Applies: func(p Principal) bool { return p.UsePersonalCredential },
	Owner:   func(p Principal) store.Owner { return store.UserOwner(p.UserID) },
}

// OrganizationStrategy uses the organization credential for members that have
// not opted into a personal one.
var OrganizationStrategy = ResolutionStrategy{
	Name:    "organization",
	Applies: func(p Principal) bool { return p.HasOrganization() && !p.UsePersonalCredential },
	Owner:   func(p Principal) store.Owner { return store.OrganizationOwner(*p.OrganizationID) },
}

// DefaultStrategies is the tenancy precedence: personal, then organization.
func DefaultStrategies() []ResolutionStrategy {
	return []ResolutionStrategy{PersonalStrategy, OrganizationStrategy}
}

// Resolution is the tri-state result of evaluating one strategy; the third
// state is a non-nil error.
type Resolution struct {
	Outcome    Outcome
	Credential *ResolvedCredential
}

// ResolvedCredential is a decrypted credential. It must not outlive the
// request that resolved it.
type ResolvedCredential struct {
	Owner        store.Owner
	ProviderType string
	Plaintext    string
	Label        string
	Strategy     string
	Record       *store.Credential
}

// Resolver applies the tenancy precedence to find one credential.
type Resolver struct {
	store      store.Store
	cipher     *crypto.Cipher
	strategies []ResolutionStrategy
	logger     *slog.Logger
}

// NewResolver creates a Resolver with the default strategies.
func NewResolver(st store.Store, cipher *crypto.Cipher, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:      st,
		cipher:     cipher,
		strategies: DefaultStrategies(),
		logger:     logger,
	}
}

// Resolve returns the principal's credential for providerType, or nil when
// none is usable. Only store failures are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, p Principal, providerType string) (*ResolvedCredential, error) {
	for _, strategy := range r.strategies {
		if !strategy.Applies(p) {
			continue
		}
		res, err := r.try(ctx, strategy, p, providerType)
		if err != nil {
			return nil, err
		}
		if res.Outcome == Found {
			return res.Credential, nil
		}
	}
	return nil, nil
}

func (r *Resolver) try(ctx context.Context, strategy ResolutionStrategy, p Principal, providerType string) (Resolution, error) {
	owner := strategy.Owner(p)

	cred, found, err := r.store.FindCredential(ctx, owner, providerType)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve %s credential: %w", strategy.Name, err)
	}
	if !found {
		return Resolution{Outcome: Absent}, nil
	}

	plaintext, err := r.cipher.Decrypt(cred.EncryptedValue)
	if err != nil {
		if !errors.Is(err, crypto.ErrDecryptionFailed) {
			return Resolution{}, fmt.Errorf("decrypt %s credential: %w", strategy.Name, err)
		}
		metrics.EncryptionOperations.WithLabelValues("decrypt_failed").Inc()
		r.logger.Warn("credential_decryption_failed",
			"owner", owner.String(),
			"provider_type", providerType,
			"strategy", strategy.Name,
		)
		return Resolution{Outcome: Absent}, nil
	}
	metrics.EncryptionOperations.WithLabelValues("decrypt").Inc()

	return Resolution{
		Outcome: Found,
		Credential: &ResolvedCredential{
			Owner:        owner,
			ProviderType: providerType,
			Plaintext:    plaintext,
			Label:        cred.Label,
			Strategy:     strategy.Name,
			Record:       cred,
		},
	}, nil
}
