package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/apperror"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/middleware"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/services"
)

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // response write errors are handled by the HTTP layer
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads the already size-capped and sanitized body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.Validation(apperror.CodeInvalidJSON, "Malformed JSON body", nil)
	}
	return nil
}

// principal returns the authenticated caller. Routes that call it sit behind
// middleware.Authenticate, so a missing principal is a wiring bug.
func principal(w http.ResponseWriter, r *http.Request) (services.Principal, bool) {
	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		middleware.WriteError(w, r, apperror.Unauthorized("Authentication required"))
		return services.Principal{}, false
	}
	return *p, true
}

type successResponse struct {
	Success bool `json:"success"`
}
