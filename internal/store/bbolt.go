package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Bucket names used in the bbolt database.
var (
	bucketCredentials = []byte("credentials")
	bucketProfiles    = []byte("profiles")
)

// BoltStore implements Store using bbolt. Every mutation runs in a single
// write transaction, so read-modify-write sequences inside it are atomic.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// NewBoltStore opens (or creates) a bbolt database at the given path and
// ensures all required buckets exist. The file is created with 0600 permissions.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	// Create all buckets if they do not exist.
	if err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketCredentials, bucketProfiles} {
			if _, bErr := tx.CreateBucketIfNotExists(b); bErr != nil {
				return fmt.Errorf("create bucket %s: %w", b, bErr)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// Close closes the underlying bbolt database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is still open.
func (s *BoltStore) Ping(_ context.Context) error {
	return s.db.View(func(*bolt.Tx) error { return nil })
}

// credentialKey builds the composite key "kind/id/provider".
func credentialKey(owner Owner, providerType string) []byte {
	return []byte(string(owner.Kind) + "/" + owner.ID.String() + "/" + providerType)
}

// ---------------------------------------------------------------------------
// Credentials
// ---------------------------------------------------------------------------

// UpsertCredential stores cred under (owner, provider type), replacing any
// existing row while keeping its ID, CreatedAt and UsageCount.
func (s *BoltStore) UpsertCredential(_ context.Context, cred *Credential) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		key := credentialKey(cred.Owner, cred.ProviderType)
		now := s.now().UTC()

		row := *cred
		if existing := b.Get(key); existing != nil {
			var prev Credential
			if err := json.Unmarshal(existing, &prev); err != nil {
				return fmt.Errorf("unmarshal credential: %w", err)
			}
			row.ID = prev.ID
			row.CreatedAt = prev.CreatedAt
			row.UsageCount = prev.UsageCount
			row.LastUsedAt = prev.LastUsedAt
		} else {
			if row.ID == uuid.Nil {
				row.ID = uuid.New()
			}
			row.CreatedAt = now
			row.UsageCount = 0
		}
		row.UpdatedAt = now

		data, err := json.Marshal(&row)
		if err != nil {
			return fmt.Errorf("marshal credential: %w", err)
		}
		if err := b.Put(key, data); err != nil {
			return err
		}
		*cred = row
		return nil
	})
}

// FindCredential retrieves the credential for (owner, provider type).
func (s *BoltStore) FindCredential(_ context.Context, owner Owner, providerType string) (*Credential, bool, error) {
	var cred Credential
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCredentials).Get(credentialKey(owner, providerType))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &cred)
	})
	if err != nil {
		return nil, false, fmt.Errorf("find credential: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	return &cred, true, nil
}

// DeleteCredential removes the credential for (owner, provider type).
func (s *BoltStore) DeleteCredential(_ context.Context, owner Owner, providerType string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		key := credentialKey(owner, providerType)
		if b.Get(key) == nil {
			return ErrCredentialNotFound
		}
		return b.Delete(key)
	})
}

// IncrementUsage bumps the usage counter inside one write transaction. bbolt
// serializes writers, so concurrent increments cannot be lost.
func (s *BoltStore) IncrementUsage(_ context.Context, owner Owner, providerType string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		key := credentialKey(owner, providerType)
		v := b.Get(key)
		if v == nil {
			return ErrCredentialNotFound
		}

		var cred Credential
		if err := json.Unmarshal(v, &cred); err != nil {
			return fmt.Errorf("unmarshal credential: %w", err)
		}
		now := s.now().UTC()
		cred.UsageCount++
		cred.LastUsedAt = &now

		data, err := json.Marshal(&cred)
		if err != nil {
			return fmt.Errorf("marshal credential: %w", err)
		}
		return b.Put(key, data)
	})
}

// CountCredentials returns the number of stored credentials.
func (s *BoltStore) CountCredentials(_ context.Context) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		n = int64(tx.Bucket(bucketCredentials).Stats().KeyN)
		return nil
	})
	return n, err
}

// ---------------------------------------------------------------------------
// Profiles
// ---------------------------------------------------------------------------

// GetProfile retrieves a profile by user ID.
func (s *BoltStore) GetProfile(_ context.Context, userID uuid.UUID) (*Profile, bool, error) {
	var profile Profile
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketProfiles).Get([]byte(userID.String()))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &profile)
	})
	if err != nil {
		return nil, false, fmt.Errorf("get profile: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	return &profile, true, nil
}

// PutProfile stores a profile. Profiles are owned by the hosted auth service;
// this exists for seeding development and test databases.
func (s *BoltStore) PutProfile(_ context.Context, profile *Profile) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("marshal profile: %w", err)
		}
		return tx.Bucket(bucketProfiles).Put([]byte(profile.UserID.String()), data)
	})
}
