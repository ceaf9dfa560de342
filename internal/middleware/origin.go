package middleware

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/apperror"
)

const (
	corsAllowMethods  = "GET, POST, DELETE, OPTIONS"
	corsAllowHeaders  = "Authorization, Content-Type, X-CSRF-Token"
	corsExposeHeaders = "Retry-After, X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset"
	corsMaxAge        = "600"
)

// OriginPolicy decides which browser origins may call the API.
type OriginPolicy struct {
	exact    map[string]struct{}
	patterns []*regexp.Regexp
}

// NewOriginPolicy builds a policy from exact origins and regular expressions.
// Patterns are anchored to match the whole origin.
func NewOriginPolicy(origins, patterns []string) (*OriginPolicy, error) {
	p := &OriginPolicy{exact: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			p.exact[o] = struct{}{}
		}
	}
	for _, pat := range patterns {
		re, err := regexp.Compile("^(?:" + pat + ")$")
		if err != nil {
			return nil, fmt.Errorf("compiling origin pattern %q: %w", pat, err)
		}
		p.patterns = append(p.patterns, re)
	}
	return p, nil
}

// Allowed reports whether origin is on the allow-list.
func (p *OriginPolicy) Allowed(origin string) bool {
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, re := range p.patterns {
		if re.MatchString(origin) {
			return true
		}
	}
	return false
}

// Origin enforces the origin allow-list. Requests without an Origin header
// (server-to-server, same-origin navigations) pass through; preflights from
// allowed origins are answered directly.
func Origin(policy *OriginPolicy) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Origin")
			if !policy.Allowed(origin) {
				WriteError(w, r, apperror.Forbidden(apperror.CodeOriginNotAllowed, "Origin not allowed"))
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
