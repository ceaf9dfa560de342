package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/apperror"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/metrics"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/ratelimit"
)

// Tier names.
const (
	TierGeneral = "general"
	TierAPI     = "api"
	TierStrict  = "strict"
)

// Tier is one rate-limit class and the error code its rejections carry.
type Tier struct {
	Name    string
	Code    string
	Limiter *ratelimit.Limiter
}

// ViolationRecorder receives every rejected request.
type ViolationRecorder interface {
	RecordRateLimitViolation(ip, tier string)
}

// clientIP returns the caller's address without the port. chi's RealIP
// middleware has already replaced RemoteAddr when proxy headers are present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit returns middleware that limits requests per client IP.
// recorder may be nil.
func RateLimit(tier Tier, recorder ViolationRecorder, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			d := tier.Limiter.Allow(ip)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				metrics.RateLimitRejections.WithLabelValues(tier.Name).Inc()
				logger.Warn("rate limit exceeded",
					"log_type", "security",
					"tier", tier.Name,
					"ip", ip,
					"path", r.URL.Path,
				)
				if recorder != nil {
					recorder.RecordRateLimitViolation(ip, tier.Name)
				}
				WriteError(w, r, apperror.RateLimited(tier.Code, d.RetryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
