package middleware

import (
	"net/http"
)

const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self'; " +
	"style-src 'self'; " +
	"img-src 'self' data: blob:; " +
	"media-src 'self' blob:; " +
	"connect-src 'self'; " +
	"object-src 'none'; " +
	"frame-ancestors 'none'; " +
	"base-uri 'self'; " +
	"form-action 'self'"

// setSecurityHeaders writes the fixed header set. The microphone stays
// available to same-origin pages for dictation.
func setSecurityHeaders(h http.Header, isProduction bool) {
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Permissions-Policy", "geolocation=(), microphone=(self), camera=()")
	h.Set("Content-Security-Policy", contentSecurityPolicy)
	h.Set("Cross-Origin-Opener-Policy", "same-origin")
	if isProduction {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
}

// SecurityHeaders returns middleware that adds security headers to responses.
func SecurityHeaders(isProduction bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			setSecurityHeaders(w.Header(), isProduction)
			next.ServeHTTP(w, r)
		})
	}
}
