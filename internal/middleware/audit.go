package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/logging"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/services"
)

type auditCaptureKey struct{}

// auditCapture collects the error code WriteError rendered for a request.
type auditCapture struct {
	code string
}

func noteErrorCode(ctx context.Context, code string) {
	if c, ok := ctx.Value(auditCaptureKey{}).(*auditCapture); ok {
		c.code = code
	}
}

// Audit emits one audit event for action after the handler has completed.
// Failed requests are described by status and error code only.
func Audit(svc *services.AuditService, action services.AuditAction) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capture := &auditCapture{}
			ctx := context.WithValue(r.Context(), auditCaptureKey{}, capture)
			wrapped := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			status := wrapped.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ev := services.AuditEvent{
				Timestamp:  time.Now().UTC(),
				Action:     action,
				IP:         clientIP(r),
				UserAgent:  r.UserAgent(),
				Status:     services.AuditSuccess,
				StatusCode: status,
				RequestID:  logging.GetRequestID(r.Context()),
			}
			if p := GetPrincipal(r.Context()); p != nil {
				ev.Principal = p.String()
			}
			if status >= http.StatusBadRequest {
				ev.Status = services.AuditError
				ev.Code = capture.code
				ev.Detail = fmt.Sprintf("status %d: %s", status, capture.code)
			}

			svc.Emit(r.Context(), ev)
		})
	}
}
