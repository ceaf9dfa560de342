package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/apperror"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/middleware"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/provider"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/services"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/validation"
)

// multipartMemory is how much of an upload is kept in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// ProviderClient is the subset of provider.Client used by the proxy routes.
type ProviderClient interface {
	Name() string
	Complete(ctx context.Context, apiKey string, req provider.CompletionRequest) (*provider.CompletionResponse, error)
	Transcribe(ctx context.Context, apiKey, filename string, audio io.Reader) (string, error)
}

// ProviderHandler proxies completion and transcription calls using the
// caller's resolved credential.
type ProviderHandler struct {
	credentials *services.CredentialService
	client      ProviderClient
}

// NewProviderHandler creates a new ProviderHandler.
func NewProviderHandler(credentials *services.CredentialService, client ProviderClient) *ProviderHandler {
	return &ProviderHandler{
		credentials: credentials,
		client:      client,
	}
}

type completionRequest struct {
	ProviderType string               `json:"providerType"`
	Model        string               `json:"model"`
	Messages     []validation.Message `json:"messages"`
	MaxTokens    int                  `json:"maxTokens"`
	Temperature  *float64             `json:"temperature"`
}

type completionResponse struct {
	Model   string `json:"model,omitempty"`
	Content string `json:"content"`
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Complete handles POST /provider/completions
func (h *ProviderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req completionRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if err := h.checkProvider(req.ProviderType); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if err := validation.Messages(req.Messages); err != nil {
		middleware.WriteError(w, r, apperror.Validation(apperror.CodeInvalidInput, "Invalid messages",
			map[string]string{"messages": err.Error()}))
		return
	}

	apiKey, err := h.credential(r.Context(), p)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	msgs := make([]provider.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = provider.Message{Role: m.Role, Content: m.Content}
	}
	resp, err := h.client.Complete(r.Context(), apiKey, provider.CompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		middleware.WriteError(w, r, providerError(err))
		return
	}

	jsonResponse(w, http.StatusOK, completionResponse{Model: resp.Model, Content: resp.Content})
}

// Transcribe handles POST /provider/transcriptions
func (h *ProviderHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, r, &apperror.Error{
				Kind:    apperror.KindValidation,
				Code:    apperror.CodeBodyTooLarge,
				Message: "Audio upload too large",
				Status:  http.StatusRequestEntityTooLarge,
			})
			return
		}
		middleware.WriteError(w, r, apperror.Validation(apperror.CodeInvalidInput, "Expected a multipart upload",
			map[string]string{"file": "is required"}))
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp file cleanup

	if err := h.checkProvider(r.FormValue("providerType")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, r, apperror.Validation(apperror.CodeInvalidInput, "Missing audio file",
			map[string]string{"file": "is required"}))
		return
	}
	defer file.Close()

	apiKey, err := h.credential(r.Context(), p)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	text, err := h.client.Transcribe(r.Context(), apiKey, header.Filename, file)
	if err != nil {
		middleware.WriteError(w, r, providerError(err))
		return
	}

	jsonResponse(w, http.StatusOK, transcriptionResponse{Text: text})
}

// checkProvider rejects provider types this deployment has no client for.
func (h *ProviderHandler) checkProvider(providerType string) error {
	if providerType == "" || providerType == h.client.Name() {
		return nil
	}
	return apperror.Validation(apperror.CodeInvalidInput, "Unsupported provider",
		map[string]string{"providerType": "must be " + h.client.Name()})
}

func (h *ProviderHandler) credential(ctx context.Context, p services.Principal) (string, error) {
	resolved, err := h.credentials.FetchForUse(ctx, p, h.client.Name())
	if err != nil {
		return "", err
	}
	if resolved == nil {
		return "", &apperror.Error{
			Kind:    apperror.KindNotFound,
			Code:    apperror.CodeCredentialNotConfigured,
			Message: "No API key configured for this provider",
			Status:  http.StatusPreconditionFailed,
		}
	}
	return resolved.Plaintext, nil
}

// providerError maps an upstream failure to a client-safe error. The
// provider's response body is never forwarded.
func providerError(err error) error {
	if provider.IsTimeout(err) {
		return apperror.Provider(apperror.CodeProviderTimeout, "Provider request timed out", 0, err)
	}

	var statusErr *provider.StatusError
	if errors.As(err, &statusErr) {
		appErr := apperror.Provider(apperror.CodeProviderError, "Provider request failed", statusErr.StatusCode, err)
		appErr.RetryAfter = statusErr.RetryAfter
		return appErr
	}
	return apperror.Provider(apperror.CodeProviderError, "Provider request failed", 0, err)
}
