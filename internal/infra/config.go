package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents importer configuration loaded from environment variables.
type Config struct {
	AppEnv string

	// Constituent-management API. Either Token (bearer) or AppID+Secret
	// (basic) must be set.
	PCOBaseURL string
	PCOToken   string
	PCOAppID   string
	PCOSecret  string

	// Payment-processor transaction feed.
	PayPalBaseURL  string
	PayPalClientID string
	PayPalSecret   string

	// Fallback ids a donation is routed to when a fund or payment source
	// name has no remote match.
	DefaultFundID   string
	DefaultSourceID string

	HTTPTimeout time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		PCOBaseURL:      getEnv("PCO_BASE_URL", "https://api.planningcenteronline.com"),
		PCOToken:        os.Getenv("PCO_TOKEN"),
		PCOAppID:        os.Getenv("PCO_APP_ID"),
		PCOSecret:       os.Getenv("PCO_SECRET"),
		PayPalBaseURL:   getEnv("PAYPAL_BASE_URL", "https://api-m.paypal.com"),
		PayPalClientID:  os.Getenv("PAYPAL_CLIENT_ID"),
		PayPalSecret:    os.Getenv("PAYPAL_SECRET"),
		DefaultFundID:   os.Getenv("DEFAULT_FUND_ID"),
		DefaultSourceID: os.Getenv("DEFAULT_SOURCE_ID"),
		HTTPTimeout:     time.Second * time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 45)),
	}

	if cfg.PCOToken == "" && (cfg.PCOAppID == "" || cfg.PCOSecret == "") {
		return nil, fmt.Errorf("either PCO_TOKEN or PCO_APP_ID and PCO_SECRET are required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
