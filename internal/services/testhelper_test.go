package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/crypto"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/provider"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/store"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef-services"
	testProvider = "mistral"
	liveKey      = "sk-live-abcdef0123456789"
)

// stubValidator returns a fixed result and counts calls.
type stubValidator struct {
	mu     sync.Mutex
	result provider.ValidationResult
	calls  int
}

func (v *stubValidator) Validate(_ context.Context, _ string) provider.ValidationResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.result
}

func validValidator() *stubValidator {
	return &stubValidator{result: provider.ValidationResult{Valid: true}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *store.BoltStore {
	t.Helper()
	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testCipher(t *testing.T) *crypto.Cipher {
	t.Helper()
	c, err := crypto.NewCipher(testSecret)
	require.NoError(t, err)
	return c
}

// seedCredential encrypts plaintext and stores it directly.
func seedCredential(t *testing.T, st store.Store, c *crypto.Cipher, owner store.Owner, plaintext string) {
	t.Helper()
	ct, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	require.NoError(t, st.UpsertCredential(context.Background(), &store.Credential{
		Owner:          owner,
		ProviderType:   testProvider,
		EncryptedValue: ct,
		IsValid:        true,
	}))
}

func orgMember(orgID uuid.UUID, role string) Principal {
	return Principal{UserID: uuid.New(), OrganizationID: &orgID, OrganizationRole: role}
}
