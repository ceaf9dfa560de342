// Package provider talks to the third-party completion and transcription
// provider on behalf of a caller-supplied API key.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/logging"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/metrics"
)

// maxResponseSize bounds how much of a provider response is read.
const maxResponseSize = 4 << 20

// Config configures a Client.
type Config struct {
	Name               string
	BaseURL            string
	ChatModel          string
	TranscriptionModel string
	Timeout            time.Duration
	ValidationTimeout  time.Duration
}

// Client is an HTTP client for the provider API. It never retries.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a provider client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.ValidationTimeout <= 0 {
		cfg.ValidationTimeout = 10 * time.Second
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Name returns the provider type this client serves.
func (c *Client) Name() string {
	return c.cfg.Name
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a chat completion request.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// CompletionResponse is the subset of the provider response we use.
type CompletionResponse struct {
	Model   string `json:"model"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Complete runs a chat completion with apiKey, bounded by the client timeout.
func (c *Client) Complete(ctx context.Context, apiKey string, req CompletionRequest) (*CompletionResponse, error) {
	if req.Model == "" {
		req.Model = c.cfg.ChatModel
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	data, err := c.do(ctx, c.cfg.Timeout, apiKey, "/v1/chat/completions", "application/json", bytes.NewReader(body))
	if err != nil {
		metrics.ProviderRequests.WithLabelValues("completion", outcome(err)).Inc()
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil || len(resp.Choices) == 0 {
		metrics.ProviderRequests.WithLabelValues("completion", "parse_error").Inc()
		if err == nil {
			err = errors.New("no choices in response")
		}
		return nil, &ParseError{Provider: c.cfg.Name, Cause: err}
	}

	metrics.ProviderRequests.WithLabelValues("completion", "success").Inc()
	return &CompletionResponse{Model: resp.Model, Content: resp.Choices[0].Message.Content}, nil
}

// Transcribe uploads audio and returns the transcript text.
func (c *Client) Transcribe(ctx context.Context, apiKey, filename string, audio io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("model", c.cfg.TranscriptionModel); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("copy audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	data, err := c.do(ctx, c.cfg.Timeout, apiKey, "/v1/audio/transcriptions", mw.FormDataContentType(), &buf)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues("transcription", outcome(err)).Inc()
		return "", err
	}

	var resp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		metrics.ProviderRequests.WithLabelValues("transcription", "parse_error").Inc()
		return "", &ParseError{Provider: c.cfg.Name, Cause: err}
	}

	metrics.ProviderRequests.WithLabelValues("transcription", "success").Inc()
	return resp.Text, nil
}

// do sends one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, timeout time.Duration, apiKey, path, contentType string, body io.Reader) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || isNetTimeout(err) {
			return nil, &TimeoutError{Provider: c.cfg.Name, Timeout: timeout}
		}
		logging.Logger(ctx).Debug("provider request failed",
			"provider", c.cfg.Name,
			"path", path,
			"error", logging.Redact(err.Error(), apiKey),
		)
		return nil, &ConnectionError{Provider: c.cfg.Name, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Provider: c.cfg.Name, Timeout: timeout}
		}
		return nil, &ConnectionError{Provider: c.cfg.Name, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Provider:   c.cfg.Name,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return data, nil
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func parseRetryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func outcome(err error) string {
	var statusErr *StatusError
	switch {
	case IsTimeout(err):
		return "timeout"
	case errors.As(err, &statusErr):
		return "status_" + strconv.Itoa(statusErr.StatusCode)
	default:
		return "connection_error"
	}
}
