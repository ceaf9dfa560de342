package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/store"
)

// Errors returned by authentication.
var (
	ErrInvalidToken      = errors.New("invalid or expired access token")
	ErrAuthUnavailable   = errors.New("authentication service unavailable")
	ErrAuthNotConfigured = errors.New("authentication service not configured")
)

// Authenticator turns a bearer access token into a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*Principal, error)
}

// AuthService verifies access tokens against the hosted auth service and
// loads the caller's profile from the store.
type AuthService struct {
	baseURL string
	apiKey  string
	client  *http.Client
	store   store.Store
}

// NewAuthService creates a new AuthService. httpClient may be nil.
func NewAuthService(baseURL, apiKey string, st store.Store, httpClient *http.Client) *AuthService {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &AuthService{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  httpClient,
		store:   st,
	}
}

type authUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Authenticate validates accessToken with GET {base}/auth/v1/user.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if s.baseURL == "" {
		return nil, ErrAuthNotConfigured
	}
	if accessToken == "" {
		return nil, ErrInvalidToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidToken
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrAuthUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, ErrInvalidToken
	}

	var user authUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode auth user: %w", err)
	}
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	profile, _, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	p := PrincipalFromProfile(userID, profile)
	if p.Email == "" {
		p.Email = user.Email
	}
	return &p, nil
}
