package middleware

import (
	"context"
	"net/http"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/apperror"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/services"
)

// CSRFHeader carries the token issued by GET /security/csrf-token.
const CSRFHeader = "X-CSRF-Token"

type sessionContextKey struct{}

// SessionOptions configures the session cookie.
type SessionOptions struct {
	CookieName string
	Secure     bool
}

// Session loads the caller's security session from its signed cookie, or
// starts a new one when the cookie is missing, tampered with or expired.
func Session(svc *services.SessionService, opts SessionOptions) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sess *services.SecuritySession
			if cookie, err := r.Cookie(opts.CookieName); err == nil && cookie.Value != "" {
				sess, err = svc.Load(r.Context(), cookie.Value)
				if err != nil {
					WriteError(w, r, apperror.Unavailable("Session store unavailable", err))
					return
				}
			}

			if sess == nil {
				var (
					value string
					err   error
				)
				sess, value, err = svc.Start(r.Context())
				if err != nil {
					WriteError(w, r, apperror.Unavailable("Session store unavailable", err))
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     opts.CookieName,
					Value:    value,
					Path:     "/",
					MaxAge:   int(svc.TTL().Seconds()),
					HttpOnly: true,
					Secure:   opts.Secure,
					SameSite: http.SameSiteStrictMode,
				})
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClearSessionCookie expires the session cookie on the client.
func ClearSessionCookie(w http.ResponseWriter, opts SessionOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// CSRF requires a valid X-CSRF-Token on state-changing requests. It must run
// after Session.
func CSRF(svc *services.SessionService) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			if !svc.VerifyCSRFToken(GetSession(r.Context()), r.Header.Get(CSRFHeader)) {
				WriteError(w, r, apperror.Forbidden(apperror.CodeCSRFMismatch, "Invalid or missing CSRF token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetSession retrieves the security session from the context.
func GetSession(ctx context.Context) *services.SecuritySession {
	sess, _ := ctx.Value(sessionContextKey{}).(*services.SecuritySession)
	return sess
}
