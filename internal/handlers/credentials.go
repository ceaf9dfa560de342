package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/apperror"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/middleware"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/services"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/store"
)

// CredentialHandler serves the credential lifecycle routes.
type CredentialHandler struct {
	credentials     *services.CredentialService
	defaultProvider string
}

// NewCredentialHandler creates a new CredentialHandler. defaultProvider is
// used when a request names no provider type.
func NewCredentialHandler(credentials *services.CredentialService, defaultProvider string) *CredentialHandler {
	return &CredentialHandler{
		credentials:     credentials,
		defaultProvider: defaultProvider,
	}
}

type ownerContextRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type saveCredentialRequest struct {
	OwnerContext ownerContextRequest `json:"ownerContext"`
	ProviderType string              `json:"providerType"`
	PlaintextKey string              `json:"plaintextKey"`
	Label        string              `json:"label"`
}

type testCredentialRequest struct {
	PlaintextKey string `json:"plaintextKey"`
}

type testCredentialResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

type getCredentialResponse struct {
	Success bool `json:"success"`
	APIKey  any  `json:"apiKey"`
}

// Save handles POST /credentials
func (h *CredentialHandler) Save(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req saveCredentialRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	ownerID, err := uuid.Parse(req.OwnerContext.ID)
	if err != nil {
		middleware.WriteError(w, r, apperror.Validation(apperror.CodeInvalidInput, "Invalid owner context",
			map[string]string{"ownerContext.id": "must be a UUID"}))
		return
	}
	if req.ProviderType == "" {
		req.ProviderType = h.defaultProvider
	}

	err = h.credentials.Save(r.Context(), p, services.SaveParams{
		Owner:        store.Owner{Kind: store.OwnerKind(req.OwnerContext.Type), ID: ownerID},
		ProviderType: req.ProviderType,
		Plaintext:    req.PlaintextKey,
		Label:        req.Label,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, successResponse{Success: true})
}

// Get handles GET /credentials/{ownerId}
//
// The response carries the effective plaintext key for the caller, which
// counts as a use. With view=masked only display metadata is returned.
func (h *CredentialHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if _, err := h.ownerFromPath(p, chi.URLParam(r, "ownerId")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	providerType := r.URL.Query().Get("providerType")
	if providerType == "" {
		providerType = h.defaultProvider
	}

	if r.URL.Query().Get("view") == "masked" {
		masked, err := h.credentials.FetchMasked(r.Context(), p, providerType)
		if err != nil {
			middleware.WriteError(w, r, err)
			return
		}
		resp := getCredentialResponse{Success: true}
		if masked != nil {
			resp.APIKey = masked
		}
		jsonResponse(w, http.StatusOK, resp)
		return
	}

	resolved, err := h.credentials.FetchForUse(r.Context(), p, providerType)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	resp := getCredentialResponse{Success: true}
	if resolved != nil {
		resp.APIKey = resolved.Plaintext
	}
	jsonResponse(w, http.StatusOK, resp)
}

// Delete handles DELETE /credentials/{ownerId}/{providerType}
func (h *CredentialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	owner, err := h.ownerFromPath(p, chi.URLParam(r, "ownerId"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	if err := h.credentials.Delete(r.Context(), p, owner, chi.URLParam(r, "providerType")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, successResponse{Success: true})
}

// Test handles POST /credentials/test
func (h *CredentialHandler) Test(w http.ResponseWriter, r *http.Request) {
	var req testCredentialRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	result, err := h.credentials.Test(r.Context(), req.PlaintextKey)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	resp := testCredentialResponse{Valid: result.Valid}
	if !result.Valid {
		resp.Reason = result.Reason
	}
	jsonResponse(w, http.StatusOK, resp)
}

// ownerFromPath maps the {ownerId} segment to the caller's own user or
// organization.
func (h *CredentialHandler) ownerFromPath(p services.Principal, raw string) (store.Owner, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return store.Owner{}, apperror.Validation(apperror.CodeInvalidInput, "Invalid owner id",
			map[string]string{"ownerId": "must be a UUID"})
	}
	owner, ok := p.OwnerFor(id)
	if !ok {
		return store.Owner{}, apperror.Forbidden(apperror.CodeCrossTenant, "Access to another tenant's credentials is not allowed")
	}
	return owner, nil
}
