package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/apperror"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/services"
)

type principalContextKey struct{}

// Authenticate returns middleware that authenticates requests using Bearer
// access tokens issued by the hosted auth service.
func Authenticate(auth services.Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				WriteError(w, r, apperror.Unauthorized("Missing authorization header"))
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
				WriteError(w, r, apperror.Unauthorized("Invalid authorization header format"))
				return
			}

			p, err := auth.Authenticate(r.Context(), strings.TrimSpace(token))
			switch {
			case errors.Is(err, services.ErrInvalidToken):
				WriteError(w, r, apperror.Unauthorized("Invalid or expired token"))
				return
			case errors.Is(err, services.ErrAuthUnavailable), errors.Is(err, services.ErrAuthNotConfigured):
				WriteError(w, r, apperror.Unavailable("Authentication service unavailable", err))
				return
			case err != nil:
				WriteError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// WithPrincipal stores the authenticated principal in ctx.
func WithPrincipal(ctx context.Context, p *services.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// GetPrincipal retrieves the authenticated principal from the context.
func GetPrincipal(ctx context.Context) *services.Principal {
	p, _ := ctx.Value(principalContextKey{}).(*services.Principal)
	return p
}
