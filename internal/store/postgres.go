package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on the api_keys and profiles tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	URL      string
	MaxConns int
}

// NewPool creates and pings a PostgreSQL connection pool.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool exposes the underlying pool for migrations.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping verifies the database connection is still alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const upsertCredentialSQL = `
INSERT INTO api_keys (
    id, owner_kind, owner_id, provider_type, encrypted_value, label,
    is_valid, last_validated_at, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
ON CONFLICT (owner_kind, owner_id, provider_type) DO UPDATE SET
    encrypted_value   = EXCLUDED.encrypted_value,
    label             = EXCLUDED.label,
    is_valid          = EXCLUDED.is_valid,
    last_validated_at = EXCLUDED.last_validated_at,
    updated_at        = now()
RETURNING id, usage_count, last_used_at, created_at, updated_at`

// UpsertCredential inserts or replaces the credential for (owner, provider type).
func (s *PostgresStore) UpsertCredential(ctx context.Context, cred *Credential) error {
	id := cred.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	err := s.pool.QueryRow(ctx, upsertCredentialSQL,
		id, string(cred.Owner.Kind), cred.Owner.ID, cred.ProviderType,
		cred.EncryptedValue, cred.Label, cred.IsValid, cred.LastValidatedAt,
	).Scan(&cred.ID, &cred.UsageCount, &cred.LastUsedAt, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

const findCredentialSQL = `
SELECT id, owner_kind, owner_id, provider_type, encrypted_value, label, is_valid,
       last_validated_at, last_used_at, usage_count, created_at, updated_at
FROM api_keys
WHERE owner_kind = $1 AND owner_id = $2 AND provider_type = $3`

// FindCredential retrieves the credential for (owner, provider type).
func (s *PostgresStore) FindCredential(ctx context.Context, owner Owner, providerType string) (*Credential, bool, error) {
	var (
		cred Credential
		kind string
	)
	err := s.pool.QueryRow(ctx, findCredentialSQL, string(owner.Kind), owner.ID, providerType).Scan(
		&cred.ID, &kind, &cred.Owner.ID, &cred.ProviderType, &cred.EncryptedValue, &cred.Label,
		&cred.IsValid, &cred.LastValidatedAt, &cred.LastUsedAt, &cred.UsageCount,
		&cred.CreatedAt, &cred.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find credential: %w", err)
	}
	cred.Owner.Kind = OwnerKind(kind)
	return &cred, true, nil
}

// DeleteCredential removes the credential for (owner, provider type).
func (s *PostgresStore) DeleteCredential(ctx context.Context, owner Owner, providerType string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM api_keys WHERE owner_kind = $1 AND owner_id = $2 AND provider_type = $3`,
		string(owner.Kind), owner.ID, providerType,
	)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

// IncrementUsage bumps the counter server-side in a single statement.
func (s *PostgresStore) IncrementUsage(ctx context.Context, owner Owner, providerType string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = now()
		 WHERE owner_kind = $1 AND owner_id = $2 AND provider_type = $3`,
		string(owner.Kind), owner.ID, providerType,
	)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

// CountCredentials returns the number of stored credentials.
func (s *PostgresStore) CountCredentials(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM api_keys`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return n, nil
}

// GetProfile retrieves a profile by user ID.
func (s *PostgresStore) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, bool, error) {
	var (
		profile Profile
		email   *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, organization_id, organization_role, use_personal_api_key
		 FROM profiles WHERE id = $1`,
		userID,
	).Scan(&profile.UserID, &email, &profile.OrganizationID, &profile.OrganizationRole, &profile.UsePersonalCredential)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get profile: %w", err)
	}
	if email != nil {
		profile.Email = *email
	}
	return &profile, true, nil
}
