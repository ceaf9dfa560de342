package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/apperror"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/services"
)

type auditRecorder struct {
	events []services.AuditEvent
}

func (a *auditRecorder) ObserveAudit(ev services.AuditEvent) {
	a.events = append(a.events, ev)
}

func TestAudit(t *testing.T) {
	principal := &services.Principal{UserID: uuid.New()}

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus services.AuditStatus
		wantCode   int
		wantDetail string
	}{
		{
			name: "success",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			wantStatus: services.AuditSuccess,
			wantCode:   http.StatusOK,
		},
		{
			name: "rejected key",
			handler: func(w http.ResponseWriter, r *http.Request) {
				WriteError(w, r, apperror.Validation(apperror.CodeProviderKeyRejected, "API key rejected: invalid", map[string]string{
					"plaintextKey": "sk-live-should-not-appear",
				}))
			},
			wantStatus: services.AuditError,
			wantCode:   http.StatusBadRequest,
			wantDetail: "status 400: PROVIDER_KEY_REJECTED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := services.NewAuditService(discardLogger())
			rec := &auditRecorder{}
			svc.Subscribe(rec)

			handler := Audit(svc, services.ActionSaveAPIKey)(tt.handler)
			req := httptest.NewRequest(http.MethodPost, "/credentials", nil)
			req.RemoteAddr = "203.0.113.5:4431"
			req.Header.Set("User-Agent", "recorder/1.0")
			req = req.WithContext(WithPrincipal(req.Context(), principal))
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if len(rec.events) != 1 {
				t.Fatalf("events = %d, want 1", len(rec.events))
			}
			ev := rec.events[0]
			if ev.Action != services.ActionSaveAPIKey || ev.Principal != principal.String() {
				t.Errorf("event = %+v", ev)
			}
			if ev.IP != "203.0.113.5" || ev.UserAgent != "recorder/1.0" {
				t.Errorf("client = %s %s", ev.IP, ev.UserAgent)
			}
			if ev.Status != tt.wantStatus || ev.StatusCode != tt.wantCode || ev.Detail != tt.wantDetail {
				t.Errorf("outcome = %s %d %q", ev.Status, ev.StatusCode, ev.Detail)
			}
			if strings.Contains(ev.Detail, "sk-live") {
				t.Error("audit detail contains request payload")
			}
		})
	}
}
