package handlers

import (
	"net/http"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/apperror"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/middleware"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/services"
)

// SecurityHandler issues CSRF tokens and ends security sessions.
type SecurityHandler struct {
	sessions *services.SessionService
	opts     middleware.SessionOptions
}

// NewSecurityHandler creates a new SecurityHandler.
func NewSecurityHandler(sessions *services.SessionService, opts middleware.SessionOptions) *SecurityHandler {
	return &SecurityHandler{sessions: sessions, opts: opts}
}

type csrfTokenResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// CSRFToken handles GET /security/csrf-token
func (h *SecurityHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		middleware.WriteError(w, r, apperror.Forbidden(apperror.CodeCSRFMismatch, "No security session"))
		return
	}

	token, err := h.sessions.IssueCSRFToken(sess)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	jsonResponse(w, http.StatusOK, csrfTokenResponse{CSRFToken: token})
}

// EndSession handles DELETE /security/session
func (h *SecurityHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	if sess := middleware.GetSession(r.Context()); sess != nil {
		if err := h.sessions.Destroy(r.Context(), sess.ID); err != nil {
			middleware.WriteError(w, r, apperror.Unavailable("Session store unavailable", err))
			return
		}
	}
	middleware.ClearSessionCookie(w, h.opts)
	jsonResponse(w, http.StatusOK, successResponse{Success: true})
}
