package config

import (
	"strings"
	"testing"
	"time"
)

const validSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENCRYPTION_SECRET", validSecret)
	t.Setenv("SESSION_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 3001 {
		t.Errorf("Server.Port = %d, want 3001", cfg.Server.Port)
	}
	if cfg.RateLimit.General.Requests != 100 || cfg.RateLimit.General.Window != 15*time.Minute {
		t.Errorf("General tier = %+v, want 100/15m", cfg.RateLimit.General)
	}
	if cfg.RateLimit.API.Requests != 20 || cfg.RateLimit.API.Window != time.Minute {
		t.Errorf("API tier = %+v, want 20/1m", cfg.RateLimit.API)
	}
	if cfg.RateLimit.Strict.Requests != 5 || cfg.RateLimit.Strict.Window != time.Minute {
		t.Errorf("Strict tier = %+v, want 5/1m", cfg.RateLimit.Strict)
	}
	if cfg.Session.Secret == "" {
		t.Error("Session.Secret should be generated in development")
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true")
	}
}

func TestLoad_EncryptionSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"missing", "", true},
		{"too short", "short-secret", true},
		{"one below minimum", strings.Repeat("s", MinSecretLength-1), true},
		{"minimum", strings.Repeat("s", MinSecretLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENCRYPTION_SECRET", tt.secret)

			_, err := Load()
			if tt.wantErr {
				if !IsConfigurationError(err) {
					t.Fatalf("Load() error = %v, want *ConfigurationError", err)
				}
				if strings.Contains(err.Error(), tt.secret) && tt.secret != "" {
					t.Error("error message echoes the secret")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error = %v", err)
			}
		})
	}
}

func TestLoad_Production(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("ENCRYPTION_SECRET", validSecret)
	t.Setenv("AUTH_URL", "https://auth.example.com/")

	t.Run("session secret required", func(t *testing.T) {
		t.Setenv("SESSION_SECRET", "")
		t.Setenv("CORS_PRODUCTION_ORIGINS", "https://app.example.com")

		if _, err := Load(); !IsConfigurationError(err) {
			t.Fatalf("Load() error = %v, want *ConfigurationError", err)
		}
	})

	t.Run("origins required", func(t *testing.T) {
		t.Setenv("SESSION_SECRET", validSecret)
		t.Setenv("CORS_PRODUCTION_ORIGINS", "")

		if _, err := Load(); !IsConfigurationError(err) {
			t.Fatalf("Load() error = %v, want *ConfigurationError", err)
		}
	})

	t.Run("valid", func(t *testing.T) {
		t.Setenv("SESSION_SECRET", validSecret)
		t.Setenv("CORS_PRODUCTION_ORIGINS", "https://app.example.com, https://admin.example.com")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		origins := cfg.AllowedOrigins()
		if len(origins) != 2 || origins[1] != "https://admin.example.com" {
			t.Errorf("AllowedOrigins() = %v", origins)
		}
		if cfg.Auth.URL != "https://auth.example.com" {
			t.Errorf("Auth.URL = %q, want trailing slash trimmed", cfg.Auth.URL)
		}
	})
}

func TestLoad_UnknownStoreDriver(t *testing.T) {
	t.Setenv("ENCRYPTION_SECRET", validSecret)
	t.Setenv("STORE_DRIVER", "mongo")

	if _, err := Load(); !IsConfigurationError(err) {
		t.Fatalf("Load() error = %v, want *ConfigurationError", err)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b ,c,")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitList()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
