package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOrigin(t *testing.T) {
	policy, err := NewOriginPolicy(
		[]string{"https://app.mediscribe.example", "http://localhost:5173/"},
		[]string{`https://[a-z0-9-]+\.preview\.mediscribe\.example`},
	)
	if err != nil {
		t.Fatalf("NewOriginPolicy() error = %v", err)
	}

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantAllow  bool
	}{
		{"no origin", http.MethodGet, "", false, http.StatusOK, false},
		{"exact match", http.MethodPost, "https://app.mediscribe.example", false, http.StatusOK, true},
		{"trailing slash configured", http.MethodGet, "http://localhost:5173", false, http.StatusOK, true},
		{"pattern match", http.MethodGet, "https://pr-42.preview.mediscribe.example", false, http.StatusOK, true},
		{"pattern is anchored", http.MethodGet, "https://pr-42.preview.mediscribe.example.evil.test", false, http.StatusForbidden, false},
		{"unknown origin", http.MethodPost, "https://evil.test", false, http.StatusForbidden, false},
		{"allowed preflight", http.MethodOptions, "https://app.mediscribe.example", true, http.StatusNoContent, true},
		{"rejected preflight", http.MethodOptions, "https://evil.test", true, http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			handler := Origin(policy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/credentials", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			allow := w.Header().Get("Access-Control-Allow-Origin")
			if tt.wantAllow && allow != tt.origin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", allow, tt.origin)
			}
			if !tt.wantAllow && allow != "" {
				t.Errorf("Access-Control-Allow-Origin = %q, want empty", allow)
			}
			if tt.wantStatus == http.StatusForbidden {
				if reached {
					t.Error("handler reached for a disallowed origin")
				}
				if body := decodeError(t, w); body.Code != "ORIGIN_NOT_ALLOWED" {
					t.Errorf("code = %s, want ORIGIN_NOT_ALLOWED", body.Code)
				}
			}
			if tt.preflight && tt.wantAllow && reached {
				t.Error("preflight reached the handler")
			}
		})
	}
}

func TestNewOriginPolicy_InvalidPattern(t *testing.T) {
	if _, err := NewOriginPolicy(nil, []string{"(unclosed"}); err == nil {
		t.Error("NewOriginPolicy() accepted an invalid pattern")
	}
}
