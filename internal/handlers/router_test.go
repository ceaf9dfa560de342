package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/config"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/crypto"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/provider"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/services"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/store"
)

const (
	testOrigin = "http://localhost:5173"
	liveKey    = "sk-live-abcdef0123456789"
)

type fakeAuth struct {
	principals map[string]*services.Principal
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*services.Principal, error) {
	p, ok := f.principals[token]
	if !ok {
		return nil, services.ErrInvalidToken
	}
	return p, nil
}

type stubValidator struct {
	mu     sync.Mutex
	result provider.ValidationResult
	calls  int
}

func (v *stubValidator) Validate(context.Context, string) provider.ValidationResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.result
}

func (v *stubValidator) set(result provider.ValidationResult) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.result = result
}

func (v *stubValidator) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type fakeProvider struct {
	mu     sync.Mutex
	gotKey string
	gotLen int
	err    error
}

func (f *fakeProvider) Name() string { return "mistral" }

func (f *fakeProvider) received() (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gotKey, f.gotLen
}

func (f *fakeProvider) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeProvider) Complete(_ context.Context, apiKey string, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotKey = apiKey
	if f.err != nil {
		return nil, f.err
	}
	return &provider.CompletionResponse{Model: "mistral-small-latest", Content: "echo: " + req.Messages[0].Content}, nil
}

func (f *fakeProvider) Transcribe(_ context.Context, apiKey, _ string, audio io.Reader) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotKey = apiKey
	f.gotLen = len(data)
	if f.err != nil {
		return "", f.err
	}
	return "patient reports headache", nil
}

type auditLog struct {
	mu     sync.Mutex
	events []services.AuditEvent
}

func (a *auditLog) ObserveAudit(ev services.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

type testEnv struct {
	srv       *httptest.Server
	store     *store.BoltStore
	validator *stubValidator
	provider  *fakeProvider
	audit     *auditLog
	userID    uuid.UUID
	orgID     uuid.UUID
}

func testConfig() *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{
			Environment:        "development",
			MaxRequestBodySize: 1 << 20,
			MaxUploadSize:      1 << 20,
		},
		Session:  config.SessionConfig{TTL: time.Hour, CookieName: "ms_session"},
		CORS:     config.CORSConfig{DevelopmentOrigins: []string{testOrigin}},
		Provider: config.ProviderConfig{Name: "mistral"},
		RateLimit: config.RateLimitConfig{
			General: config.RateLimitTier{Requests: 100, Window: 15 * time.Minute},
			API:     config.RateLimitTier{Requests: 20, Window: time.Minute},
			Strict:  config.RateLimitTier{Requests: 5, Window: time.Minute},
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "handlers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cipher, err := crypto.NewCipher("0123456789abcdef0123456789abcdef-handlers")
	require.NoError(t, err)

	sessions, err := services.NewSessionService(services.NewMemorySessionStore(), "session-secret-0123456789abcdef0123", time.Hour)
	require.NoError(t, err)

	env := &testEnv{
		store:     st,
		validator: &stubValidator{result: provider.ValidationResult{Valid: true}},
		provider:  &fakeProvider{},
		audit:     &auditLog{},
		userID:    uuid.New(),
		orgID:     uuid.New(),
	}
	orgID := env.orgID
	auth := &fakeAuth{principals: map[string]*services.Principal{
		"doctor-token": {
			UserID:                env.userID,
			OrganizationID:        &orgID,
			OrganizationRole:      store.RoleAdmin,
			UsePersonalCredential: true,
		},
		"org-token": {UserID: uuid.New(), OrganizationID: &orgID, OrganizationRole: store.RoleMember},
	}}

	auditSvc := services.NewAuditService(logger)
	auditSvc.Subscribe(env.audit)

	router, err := NewRouter(&Dependencies{
		Config:      testConfig(),
		Logger:      logger,
		Store:       st,
		Sessions:    sessions,
		Auth:        auth,
		Credentials: services.NewCredentialService(st, cipher, env.validator, logger),
		Audit:       auditSvc,
		Provider:    env.provider,
	})
	require.NoError(t, err)

	env.srv = httptest.NewServer(router)
	t.Cleanup(env.srv.Close)
	return env
}

// browser is a cookie-keeping client that behaves like the web app.
type browser struct {
	t      *testing.T
	env    *testEnv
	client *http.Client
	token  string
	csrf   string
}

func (e *testEnv) browser(t *testing.T, token string) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	b := &browser{t: t, env: e, client: &http.Client{Jar: jar}, token: token}

	resp, body := b.do(http.MethodGet, "/security/csrf-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b.csrf = body["csrfToken"].(string)
	require.NotEmpty(t, b.csrf)
	return b
}

func (b *browser) send(req *http.Request) (*http.Response, map[string]any) {
	b.t.Helper()
	req.Header.Set("Origin", testOrigin)
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	if b.csrf != "" {
		req.Header.Set("X-CSRF-Token", b.csrf)
	}
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()

	var body map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	if len(raw) > 0 {
		require.NoError(b.t, json.Unmarshal(raw, &body), "body: %s", raw)
	}
	return resp, body
}

func (b *browser) do(method, path string, payload any) (*http.Response, map[string]any) {
	b.t.Helper()
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(b.t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, b.env.srv.URL+path, reader)
	require.NoError(b.t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return b.send(req)
}

func (b *browser) saveKey(ownerType string, ownerID uuid.UUID, key string) (*http.Response, map[string]any) {
	return b.do(http.MethodPost, "/credentials", map[string]any{
		"ownerContext": map[string]string{"type": ownerType, "id": ownerID.String()},
		"providerType": "mistral",
		"plaintextKey": key,
		"label":        "<b>Clinic</b> key",
	})
}

func TestCredentialLifecycle(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t, "doctor-token")
	path := "/credentials/" + env.userID.String()

	resp, body := b.saveKey("user", env.userID, liveKey)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["success"])

	cred, found, err := env.store.FindCredential(context.Background(), store.UserOwner(env.userID), "mistral")
	require.NoError(t, err)
	require.True(t, found)
	assert.NotContains(t, cred.EncryptedValue, liveKey)
	assert.Equal(t, "Clinic key", cred.Label, "label is sanitized")

	resp, body = b.do(http.MethodGet, path+"?view=masked", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	masked := body["apiKey"].(map[string]any)
	assert.Equal(t, "sk-l…6789", masked["maskedKey"])
	assert.EqualValues(t, 0, masked["usageCount"])

	resp, body = b.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, liveKey, body["apiKey"])

	resp, _ = b.do(http.MethodDelete, path+"/mistral", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = b.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, body["apiKey"])

	resp, body = b.do(http.MethodDelete, path+"/mistral", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "CREDENTIAL_NOT_FOUND", body["code"])
}

func TestSave_RejectedKeyIsNotStored(t *testing.T) {
	env := newTestEnv(t)
	env.validator.set(provider.ValidationResult{Reason: provider.ReasonInvalid})
	b := env.browser(t, "doctor-token")

	resp, body := b.saveKey("user", env.userID, liveKey)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "PROVIDER_KEY_REJECTED", body["code"])

	_, found, err := env.store.FindCredential(context.Background(), store.UserOwner(env.userID), "mistral")
	require.NoError(t, err)
	assert.False(t, found)

	env.audit.mu.Lock()
	defer env.audit.mu.Unlock()
	require.NotEmpty(t, env.audit.events)
	last := env.audit.events[len(env.audit.events)-1]
	assert.Equal(t, services.ActionSaveAPIKey, last.Action)
	assert.Equal(t, services.AuditError, last.Status)
	assert.Equal(t, "status 400: PROVIDER_KEY_REJECTED", last.Detail)
}

func TestCredentials_RequireCSRF(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t, "doctor-token")
	b.csrf = ""

	resp, body := b.saveKey("user", env.userID, liveKey)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "CSRF_TOKEN_MISMATCH", body["code"])
	assert.Zero(t, env.validator.count())
}

func TestCredentials_RequireAuthentication(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t, "")

	resp, body := b.do(http.MethodGet, "/credentials/"+env.userID.String(), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["code"])
}

func TestCredentials_CrossTenant(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t, "doctor-token")
	stranger := uuid.New()

	resp, body := b.do(http.MethodGet, "/credentials/"+stranger.String(), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "CROSS_TENANT_ACCESS", body["code"])

	resp, body = b.saveKey("organization", stranger, liveKey)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "CROSS_TENANT_ACCESS", body["code"])

	resp, _ = b.do(http.MethodDelete, "/credentials/"+stranger.String()+"/mistral", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestKeyTest_StrictTier(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t, "doctor-token")

	var ok, limited int
	var lastLimited *http.Response
	var lastBody map[string]any
	for i := 0; i < 25; i++ {
		resp, body := b.do(http.MethodPost, "/credentials/test", map[string]string{"plaintextKey": liveKey})
		switch resp.StatusCode {
		case http.StatusOK:
			ok++
			assert.Equal(t, true, body["valid"])
		case http.StatusTooManyRequests:
			limited++
			lastLimited, lastBody = resp, body
		default:
			t.Fatalf("unexpected status %d: %v", resp.StatusCode, body)
		}
	}

	assert.Equal(t, 5, ok)
	assert.Equal(t, 20, limited)
	assert.Equal(t, 5, env.validator.count())
	require.NotNil(t, lastLimited)
	assert.NotEmpty(t, lastLimited.Header.Get("Retry-After"))
	assert.Equal(t, "STRICT_RATE_LIMIT_EXCEEDED", lastBody["code"])
	assert.Greater(t, lastBody["retryAfter"].(float64), 0.0)
}

func TestProviderCompletions(t *testing.T) {
	env := newTestEnv(t)
	admin := env.browser(t, "doctor-token")
	member := env.browser(t, "org-token")
	payload := map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "summarize visit"}},
	}

	resp, body := member.do(http.MethodPost, "/provider/completions", payload)
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	assert.Equal(t, "CREDENTIAL_NOT_CONFIGURED", body["code"])

	resp, _ = admin.saveKey("organization", env.orgID, liveKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = member.do(http.MethodPost, "/provider/completions", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "echo: summarize visit", body["content"])
	gotKey, _ := env.provider.received()
	assert.Equal(t, liveKey, gotKey)

	cred, _, err := env.store.FindCredential(context.Background(), store.OrganizationOwner(env.orgID), "mistral")
	require.NoError(t, err)
	assert.EqualValues(t, 1, cred.UsageCount)

	// The admin opted into a personal key and has none; there is no
	// fallback to the organization key.
	resp, body = admin.do(http.MethodPost, "/provider/completions", payload)
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	assert.Equal(t, "CREDENTIAL_NOT_CONFIGURED", body["code"])

	resp, body = member.do(http.MethodPost, "/provider/completions", map[string]any{"messages": []any{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", body["code"])
}

func TestOrganizationKey_MemberCannotSave(t *testing.T) {
	env := newTestEnv(t)
	member := env.browser(t, "org-token")

	resp, body := member.saveKey("organization", env.orgID, liveKey)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", body["code"])
	assert.Zero(t, env.validator.count())
}

func TestProviderCompletions_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"timeout", &provider.TimeoutError{Provider: "mistral", Timeout: time.Second}, http.StatusGatewayTimeout, "PROVIDER_TIMEOUT"},
		{"upstream 429", &provider.StatusError{Provider: "mistral", StatusCode: 429, RetryAfter: 7 * time.Second}, http.StatusTooManyRequests, "PROVIDER_ERROR"},
		{"upstream 500", &provider.StatusError{Provider: "mistral", StatusCode: 500}, http.StatusBadGateway, "PROVIDER_ERROR"},
		{"connection", &provider.ConnectionError{Provider: "mistral", Cause: io.ErrUnexpectedEOF}, http.StatusBadGateway, "PROVIDER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			b := env.browser(t, "doctor-token")
			resp, _ := b.saveKey("user", env.userID, liveKey)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			env.provider.fail(tt.err)
			resp, body := b.do(http.MethodPost, "/provider/completions", map[string]any{
				"messages": []map[string]string{{"role": "user", "content": "hi"}},
			})
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, body["code"])
			assert.NotContains(t, body["error"], "mistral")
		})
	}
}

func TestProviderTranscriptions(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t, "doctor-token")
	resp, _ := b.saveKey("user", env.userID, liveKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "visit.webm")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte{0x1a}, 2048))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/provider/transcriptions", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, body := b.send(req)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "patient reports headache", body["text"])
	gotKey, gotLen := env.provider.received()
	assert.Equal(t, 2048, gotLen)
	assert.Equal(t, liveKey, gotKey)
}

func TestEndSession(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser(t, "doctor-token")

	resp, _ := b.do(http.MethodDelete, "/security/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The old token belonged to the destroyed session.
	resp, body := b.saveKey("user", env.userID, liveKey)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "CSRF_TOKEN_MISMATCH", body["code"])
}

func TestOriginRejected(t *testing.T) {
	env := newTestEnv(t)
	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/security/csrf-token", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.test")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, resp.Cookies(), "no session for rejected origins")
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health", "/ready"} {
		resp, err := http.Get(env.srv.URL + path)
		require.NoError(t, err)
		var body HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "healthy", body.Status, path)
		assert.Empty(t, resp.Cookies(), "%s must not start a session", path)
	}

	resp, err := http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	metricsBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(metricsBody), "keyguard_http_requests_total")
	assert.Empty(t, resp.Cookies(), "/metrics must not start a session")

	resp, err = http.Get(env.srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}
