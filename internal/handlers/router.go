package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/apperror"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/config"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/middleware"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/ratelimit"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/services"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/store"
)

// Limiters holds one sliding-window limiter per rate-limit tier.
type Limiters struct {
	General *ratelimit.Limiter
	API     *ratelimit.Limiter
	Strict  *ratelimit.Limiter
}

// NewLimiters creates the tier limiters. A nil clock uses time.Now.
func NewLimiters(cfg config.RateLimitConfig, clock ratelimit.Clock) *Limiters {
	return &Limiters{
		General: ratelimit.NewLimiter(cfg.General.Requests, cfg.General.Window, clock),
		API:     ratelimit.NewLimiter(cfg.API.Requests, cfg.API.Window, clock),
		Strict:  ratelimit.NewLimiter(cfg.Strict.Requests, cfg.Strict.Window, clock),
	}
}

// Sweep drops idle client entries from every tier.
func (l *Limiters) Sweep() int {
	return l.General.Sweep() + l.API.Sweep() + l.Strict.Sweep()
}

// Dependencies holds all the dependencies needed for handlers.
type Dependencies struct {
	Config      *config.Config
	Logger      *slog.Logger
	Store       store.Store
	Sessions    *services.SessionService
	Auth        services.Authenticator
	Credentials *services.CredentialService
	Audit       *services.AuditService
	Provider    ProviderClient
	Violations  middleware.ViolationRecorder
	Limiters    *Limiters
}

// NewRouter creates and configures the HTTP router.
func NewRouter(deps *Dependencies) (http.Handler, error) {
	cfg := deps.Config
	origins, err := middleware.NewOriginPolicy(cfg.AllowedOrigins(), cfg.CORS.OriginPatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to build origin policy: %w", err)
	}
	limiters := deps.Limiters
	if limiters == nil {
		limiters = NewLimiters(cfg.RateLimit, nil)
	}
	sessionOpts := middleware.SessionOptions{
		CookieName: cfg.Session.CookieName,
		Secure:     cfg.IsProduction(),
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Metrics())
	r.Use(middleware.Logging(deps.Logger))
	r.Use(middleware.ErrorHandler(deps.Logger, cfg.IsProduction()))
	if cfg.Server.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.Server.RequestTimeout))
	}
	r.Use(middleware.Origin(origins))
	r.Use(middleware.SecurityHeaders(cfg.IsProduction()))

	r.NotFound(NotFoundHandler)
	r.MethodNotAllowed(MethodNotAllowedHandler)

	// Health checks and metrics (no session, no rate limit)
	healthHandler := NewHealthHandler(map[string]Pinger{
		"store":    deps.Store,
		"sessions": deps.Sessions,
	}, deps.Logger)
	r.Get("/health", healthHandler.Liveness)
	r.Get("/ready", healthHandler.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	credentialHandler := NewCredentialHandler(deps.Credentials, cfg.Provider.Name)
	providerHandler := NewProviderHandler(deps.Credentials, deps.Provider)
	securityHandler := NewSecurityHandler(deps.Sessions, sessionOpts)

	rateLimit := func(name, code string, l *ratelimit.Limiter) func(http.Handler) http.Handler {
		return middleware.RateLimit(middleware.Tier{Name: name, Code: code, Limiter: l}, deps.Violations, deps.Logger)
	}
	apiTier := rateLimit(middleware.TierAPI, apperror.CodeAPIRateLimited, limiters.API)
	strictTier := rateLimit(middleware.TierStrict, apperror.CodeStrictRateLimited, limiters.Strict)
	authenticate := middleware.Authenticate(deps.Auth)
	audit := func(action services.AuditAction) func(http.Handler) http.Handler {
		return middleware.Audit(deps.Audit, action)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(deps.Sessions, sessionOpts))
		r.Use(middleware.CSRF(deps.Sessions))
		r.Use(middleware.Sanitize(cfg.Security.MaxRequestBodySize, cfg.Security.MaxUploadSize))
		r.Use(rateLimit(middleware.TierGeneral, apperror.CodeRateLimited, limiters.General))

		r.Route("/security", func(r chi.Router) {
			r.Get("/csrf-token", securityHandler.CSRFToken)
			r.Delete("/session", securityHandler.EndSession)
		})

		r.Route("/credentials", func(r chi.Router) {
			r.With(strictTier, authenticate, audit(services.ActionSaveAPIKey)).Post("/", credentialHandler.Save)
			r.With(strictTier, authenticate, audit(services.ActionTestAPIKey)).Post("/test", credentialHandler.Test)
			r.With(apiTier, authenticate, audit(services.ActionGetAPIKey)).Get("/{ownerId}", credentialHandler.Get)
			r.With(apiTier, authenticate, audit(services.ActionDeleteAPIKey)).Delete("/{ownerId}/{providerType}", credentialHandler.Delete)
		})

		r.Route("/provider", func(r chi.Router) {
			r.Use(apiTier, authenticate)
			r.With(audit(services.ActionProviderCompletion)).Post("/completions", providerHandler.Complete)
			r.With(audit(services.ActionTranscribe)).Post("/transcriptions", providerHandler.Transcribe)
		})
	})

	return r, nil
}
