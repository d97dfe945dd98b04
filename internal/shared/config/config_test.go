package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("FINBOARD_API_URL", "https://api.example.com/")
}

func TestLoad_Success(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.API.BaseURL != "https://api.example.com" {
		t.Errorf("API.BaseURL = %q, want trailing slash trimmed", cfg.API.BaseURL)
	}
	if cfg.Health.Ceiling != 60 {
		t.Errorf("Health.Ceiling = %d, want 60", cfg.Health.Ceiling)
	}
	if cfg.Link.TokenTTL != 30*time.Minute {
		t.Errorf("Link.TokenTTL = %v, want 30m", cfg.Link.TokenTTL)
	}
	if cfg.Ledger.PageSize != 25 {
		t.Errorf("Ledger.PageSize = %d, want 25", cfg.Ledger.PageSize)
	}
	if cfg.Telemetry.Enabled {
		t.Error("Telemetry.Enabled should default to false")
	}
}

func TestLoad_MissingAPIURL(t *testing.T) {
	t.Setenv("FINBOARD_API_URL", "")
	os.Unsetenv("FINBOARD_API_URL")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing FINBOARD_API_URL, got nil")
	}
}

func TestLoad_InvalidAPIScheme(t *testing.T) {
	t.Setenv("FINBOARD_API_URL", "ftp://api.example.com")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for non-http FINBOARD_API_URL, got nil")
	}
}

func TestLoad_InvalidHealthCeiling(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("HEALTH_CEILING", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid HEALTH_CEILING, got nil")
	}
}

func TestLoad_ZeroHealthCeiling(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("HEALTH_CEILING", "0")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for zero HEALTH_CEILING, got nil")
	}
}

func TestLoad_InvalidDurations(t *testing.T) {
	for _, key := range []string{"HTTP_TIMEOUT", "HEALTH_REQUEST_TIMEOUT", "LINK_TOKEN_TTL"} {
		t.Run(key, func(t *testing.T) {
			setRequiredEnvVars(t)
			t.Setenv(key, "soon")

			_, err := Load()
			if err == nil {
				t.Errorf("Load() expected error for invalid %s, got nil", key)
			}
		})
	}
}

func TestLoad_PageSizeBounds(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"1", false},
		{"500", false},
		{"0", true},
		{"501", true},
		{"many", true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			setRequiredEnvVars(t)
			t.Setenv("TRANSACTIONS_PAGE_SIZE", tt.value)

			_, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_TelemetryConfig(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("OTEL_ENABLED", "yes")
	t.Setenv("OTEL_SERVICE_NAME", "finboard-test")
	t.Setenv("METRICS_PORT", "9464")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if !cfg.Telemetry.Enabled {
		t.Error("Telemetry.Enabled should be true")
	}
	if cfg.Telemetry.ServiceName != "finboard-test" {
		t.Errorf("Telemetry.ServiceName = %q, want %q", cfg.Telemetry.ServiceName, "finboard-test")
	}
	if cfg.Telemetry.MetricsPort != "9464" {
		t.Errorf("Telemetry.MetricsPort = %q, want %q", cfg.Telemetry.MetricsPort, "9464")
	}
}

func TestLoad_CredentialsFileOverride(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("FINBOARD_CREDENTIALS_FILE", "/tmp/finboard-creds")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Credentials.File != "/tmp/finboard-creds" {
		t.Errorf("Credentials.File = %q, want %q", cfg.Credentials.File, "/tmp/finboard-creds")
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		value    string
		defVal   bool
		expected bool
	}{
		{"true", false, true},
		{"TRUE", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"invalid", true, true},   // returns default
		{"invalid", false, false}, // returns default
		{"", true, true},          // empty returns default
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			key := "TEST_BOOL_ENV"
			if tt.value == "" {
				os.Unsetenv(key)
			} else {
				t.Setenv(key, tt.value)
			}

			got := getBoolEnv(key, tt.defVal)
			if got != tt.expected {
				t.Errorf("getBoolEnv(%q, %v) = %v, want %v", tt.value, tt.defVal, got, tt.expected)
			}
		})
	}
}
