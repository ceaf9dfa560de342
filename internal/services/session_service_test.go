package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionService(t *testing.T) (*SessionService, *MemorySessionStore) {
	t.Helper()
	st := NewMemorySessionStore()
	svc, err := NewSessionService(st, "session-secret-0123456789abcdef0123", time.Hour)
	require.NoError(t, err)
	return svc, st
}

func TestSession_StartAndLoad(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService(t)

	sess, cookie, err := svc.Start(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cookie, sess.ID+"."))
	assert.NotContains(t, cookie, sess.CSRFSecret)

	loaded, err := svc.Load(ctx, cookie)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, sess.ID, loaded.ID)
}

func TestSession_RejectsTamperedCookie(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService(t)
	sess, cookie, err := svc.Start(ctx)
	require.NoError(t, err)

	other, _, err := svc.Start(ctx)
	require.NoError(t, err)
	_, sig, _ := strings.Cut(cookie, ".")

	for _, value := range []string{
		"",
		sess.ID,
		sess.ID + ".",
		sess.ID + ".forged",
		other.ID + "." + sig,
	} {
		loaded, err := svc.Load(ctx, value)
		require.NoError(t, err)
		assert.Nil(t, loaded, "cookie %q should be rejected", value)
	}
}

func TestSession_Expiry(t *testing.T) {
	ctx := context.Background()
	svc, st := newSessionService(t)
	_, cookie, err := svc.Start(ctx)
	require.NoError(t, err)

	later := time.Now().Add(2 * time.Hour)
	svc.now = func() time.Time { return later }
	loaded, err := svc.Load(ctx, cookie)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	st.now = func() time.Time { return later }
	assert.Equal(t, 1, st.Sweep())
	assert.Zero(t, st.Len())
}

func TestSession_Destroy(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService(t)
	sess, cookie, err := svc.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.Destroy(ctx, sess.ID))
	loaded, err := svc.Load(ctx, cookie)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestCSRFToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService(t)
	sess, _, err := svc.Start(ctx)
	require.NoError(t, err)
	other, _, err := svc.Start(ctx)
	require.NoError(t, err)

	token, err := svc.IssueCSRFToken(sess)
	require.NoError(t, err)
	assert.NotContains(t, token, sess.CSRFSecret)

	second, err := svc.IssueCSRFToken(sess)
	require.NoError(t, err)
	assert.NotEqual(t, token, second, "tokens are salted")

	assert.True(t, svc.VerifyCSRFToken(sess, token))
	assert.True(t, svc.VerifyCSRFToken(sess, second))
	assert.False(t, svc.VerifyCSRFToken(other, token), "token bound to another session")
	assert.False(t, svc.VerifyCSRFToken(sess, ""))
	assert.False(t, svc.VerifyCSRFToken(sess, "nodot"))
	assert.False(t, svc.VerifyCSRFToken(nil, token))
}
