package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/apperror"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/logging"
)

type errorSettingsKey struct{}

type errorSettings struct {
	production bool
	logger     *slog.Logger
}

// errorBody is the single error shape returned by every route.
type errorBody struct {
	Error      string            `json:"error"`
	Code       string            `json:"code,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	RetryAfter int               `json:"retryAfter,omitempty"`
}

// ErrorHandler installs the error renderer for everything below it and turns
// panics into internal errors.
func ErrorHandler(logger *slog.Logger, isProduction bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), errorSettingsKey{}, errorSettings{
				production: isProduction,
				logger:     logger,
			})
			r = r.WithContext(ctx)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					"error", rec,
					"path", r.URL.Path,
					"request_id", logging.GetRequestID(ctx),
				)
				WriteError(w, r, apperror.Internal(fmt.Errorf("panic: %v", rec)))
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// WriteError renders err as JSON. Errors outside the apperror taxonomy are
// internal; in production their detail never reaches the client. Without an
// ErrorHandler in the chain the production rules apply.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	settings, ok := r.Context().Value(errorSettingsKey{}).(errorSettings)
	if !ok {
		settings = errorSettings{production: true, logger: slog.Default()}
	}
	appErr := apperror.As(err)

	body := errorBody{
		Error:  appErr.Message,
		Code:   appErr.Code,
		Fields: appErr.Fields,
	}
	if appErr.Kind == apperror.KindInternal {
		settings.logger.Error("request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", logging.GetRequestID(r.Context()),
		)
		body.Error = apperror.InternalMessage
		if !settings.production && appErr.Err != nil {
			body.Error = appErr.Err.Error()
		}
	}

	status := appErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if appErr.RetryAfter > 0 {
		secs := int(appErr.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		body.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	noteErrorCode(r.Context(), appErr.Code)
	setSecurityHeaders(w.Header(), settings.production)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // response write errors are handled by the HTTP layer
	json.NewEncoder(w).Encode(body)
}
