package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/crypto"
)

const (
	sessionKeyInfo  = "mediscribe/session-cookie/v1"
	csrfSecretBytes = 32
	csrfSaltBytes   = 16
)

// SecuritySession is a server-side session holding the CSRF secret. The
// secret never leaves the server; clients only see derived tokens.
type SecuritySession struct {
	ID         string    `json:"id"`
	CSRFSecret string    `json:"csrf_secret"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the session has expired at now.
func (s *SecuritySession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionStore persists security sessions.
type SessionStore interface {
	Save(ctx context.Context, sess *SecuritySession) error
	// Get returns nil, nil when the session does not exist.
	Get(ctx context.Context, id string) (*SecuritySession, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// SessionService issues and verifies security sessions and CSRF tokens.
type SessionService struct {
	store      SessionStore
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewSessionService creates a SessionService. Cookie signatures use a key
// derived from secret.
func NewSessionService(st SessionStore, secret string, ttl time.Duration) (*SessionService, error) {
	key, err := crypto.DeriveKey([]byte(secret), sessionKeyInfo)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionService{store: st, signingKey: key, ttl: ttl, now: time.Now}, nil
}

// TTL returns the session lifetime.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Ping checks the backing session store.
func (s *SessionService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Start creates a new session and returns it with its signed cookie value.
func (s *SessionService) Start(ctx context.Context) (*SecuritySession, string, error) {
	secret, err := crypto.GenerateTokenString(csrfSecretBytes)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate CSRF secret: %w", err)
	}

	now := s.now().UTC()
	sess := &SecuritySession{
		ID:         uuid.NewString(),
		CSRFSecret: secret,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, "", fmt.Errorf("failed to save session: %w", err)
	}
	return sess, s.cookieValue(sess.ID), nil
}

// Load returns the session named by a signed cookie value. Tampered,
// unknown and expired cookies yield nil, nil.
func (s *SessionService) Load(ctx context.Context, cookieValue string) (*SecuritySession, error) {
	id, sig, ok := strings.Cut(cookieValue, ".")
	if !ok || id == "" || !crypto.Verify(s.signingKey, id, sig) {
		return nil, nil
	}

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil || sess.Expired(s.now()) {
		return nil, nil
	}
	return sess, nil
}

// Destroy invalidates a session.
func (s *SessionService) Destroy(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// IssueCSRFToken derives a fresh token from the session's CSRF secret:
// "salt.HMAC(secret, salt)".
func (s *SessionService) IssueCSRFToken(sess *SecuritySession) (string, error) {
	salt, err := crypto.GenerateTokenString(csrfSaltBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSRF salt: %w", err)
	}
	return salt + "." + crypto.Sign([]byte(sess.CSRFSecret), salt), nil
}

// VerifyCSRFToken reports whether token was derived from the session's secret.
func (s *SessionService) VerifyCSRFToken(sess *SecuritySession, token string) bool {
	if sess == nil {
		return false
	}
	salt, sig, ok := strings.Cut(token, ".")
	if !ok || salt == "" {
		return false
	}
	return crypto.Verify([]byte(sess.CSRFSecret), salt, sig)
}

func (s *SessionService) cookieValue(id string) string {
	return id + "." + crypto.Sign(s.signingKey, id)
}

// ---------------------------------------------------------------------------
// Redis store
// ---------------------------------------------------------------------------

// RedisSessionStore keeps sessions in Redis with a TTL matching ExpiresAt.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore creates a RedisSessionStore.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: "keyguard:session:"}
}

// Save stores the session until it expires.
func (r *RedisSessionStore) Save(ctx context.Context, sess *SecuritySession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.prefix+sess.ID, data, ttl).Err()
}

// Get loads a session.
func (r *RedisSessionStore) Get(ctx context.Context, id string) (*SecuritySession, error) {
	data, err := r.client.Get(ctx, r.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess SecuritySession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

// Delete removes a session.
func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.prefix+id).Err()
}

// Ping checks the Redis connection.
func (r *RedisSessionStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// ---------------------------------------------------------------------------
// Memory store
// ---------------------------------------------------------------------------

// MemorySessionStore keeps sessions in process memory. Used when no Redis URL
// is configured and in tests.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]SecuritySession
	now      func() time.Time
}

// NewMemorySessionStore creates an empty MemorySessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]SecuritySession), now: time.Now}
}

// Save stores a copy of sess.
func (m *MemorySessionStore) Save(_ context.Context, sess *SecuritySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = *sess
	return nil
}

// Get returns a copy of the stored session.
func (m *MemorySessionStore) Get(_ context.Context, id string) (*SecuritySession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

// Delete removes a session.
func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Ping always succeeds.
func (m *MemorySessionStore) Ping(context.Context) error {
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (m *MemorySessionStore) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, sess := range m.sessions {
		if sess.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
