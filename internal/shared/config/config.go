package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	API         APIConfig
	Credentials CredentialsConfig
	Health      HealthConfig
	Link        LinkConfig
	Ledger      LedgerConfig
	Messages    MessagesConfig
	Log         LogConfig
	Telemetry   TelemetryConfig
}

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type CredentialsConfig struct {
	File       string
	Passphrase string
}

type HealthConfig struct {
	Ceiling        int
	RequestTimeout time.Duration
}

type LinkConfig struct {
	TokenTTL     time.Duration
	CallbackAddr string
	HostedURL    string
}

type LedgerConfig struct {
	PageSize int
}

type MessagesConfig struct {
	File string
}

type LogConfig struct {
	Level  string
	Format string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	MetricsPort  string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	apiTimeout, err := time.ParseDuration(getEnv("HTTP_TIMEOUT", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}

	healthCeiling, err := strconv.Atoi(getEnv("HEALTH_CEILING", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid HEALTH_CEILING: %w", err)
	}
	healthTimeout, err := time.ParseDuration(getEnv("HEALTH_REQUEST_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HEALTH_REQUEST_TIMEOUT: %w", err)
	}

	linkTTL, err := time.ParseDuration(getEnv("LINK_TOKEN_TTL", "30m"))
	if err != nil {
		return nil, fmt.Errorf("invalid LINK_TOKEN_TTL: %w", err)
	}

	pageSize, err := strconv.Atoi(getEnv("TRANSACTIONS_PAGE_SIZE", "25"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRANSACTIONS_PAGE_SIZE: %w", err)
	}

	cfg := &Config{
		API: APIConfig{
			BaseURL: strings.TrimRight(getEnv("FINBOARD_API_URL", ""), "/"),
			Timeout: apiTimeout,
		},
		Credentials: CredentialsConfig{
			File:       getEnv("FINBOARD_CREDENTIALS_FILE", defaultCredentialsFile()),
			Passphrase: getEnv("FINBOARD_CREDENTIALS_KEY", ""),
		},
		Health: HealthConfig{
			Ceiling:        healthCeiling,
			RequestTimeout: healthTimeout,
		},
		Link: LinkConfig{
			TokenTTL:     linkTTL,
			CallbackAddr: getEnv("LINK_CALLBACK_ADDR", "127.0.0.1:8765"),
			HostedURL:    getEnv("LINK_HOSTED_URL", "https://cdn.plaid.com/link/v2/stable/link.html"),
		},
		Ledger: LedgerConfig{
			PageSize: pageSize,
		},
		Messages: MessagesConfig{
			File: getEnv("MESSAGES_FILE", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "finboard"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", ""),
		},
	}

	// Validate required fields
	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("FINBOARD_API_URL is required")
	}
	if !strings.HasPrefix(cfg.API.BaseURL, "http://") && !strings.HasPrefix(cfg.API.BaseURL, "https://") {
		return nil, fmt.Errorf("FINBOARD_API_URL must start with http:// or https://")
	}
	if cfg.Health.Ceiling <= 0 {
		return nil, fmt.Errorf("HEALTH_CEILING must be positive")
	}
	if cfg.Ledger.PageSize <= 0 || cfg.Ledger.PageSize > 500 {
		return nil, fmt.Errorf("TRANSACTIONS_PAGE_SIZE must be between 1 and 500")
	}
	if cfg.Link.TokenTTL <= 0 {
		return nil, fmt.Errorf("LINK_TOKEN_TTL must be positive")
	}

	return cfg, nil
}

func defaultCredentialsFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".finboard-credentials"
	}
	return filepath.Join(dir, "finboard", "credentials")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
