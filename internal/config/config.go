// Package config provides application configuration management.
// It loads configuration from environment variables with sensible defaults.
package config

import (
	"os"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server settings
	Port    string
	Env     string
	BaseURL string

	// Database settings
	DatabaseURL string

	// Counter store backends
	KVRestURL   string // Upstash-style REST endpoint
	KVRestToken string
	RedisURL    string

	// Authentication / cookies
	SessionSecret string

	// External APIs
	OpenAIAPIKey        string
	OpenAIModel         string
	OpenAIFallbackModel string
	OpenAITimeout       time.Duration

	// Stripe
	StripeSecretKey      string
	StripeWebhookSecret  string
	StripePriceIDMonthly string
	StripePortalConfigID string

	// CORS
	CORSOrigins []string
}

// Load returns a new Config struct populated from environment variables
func Load() *Config {
	return &Config{
		Port:                 getEnv("PORT", "8080"),
		Env:                  getEnv("ENV", "development"),
		BaseURL:              getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		KVRestURL:            firstEnv("KV_REST_API_URL", "UPSTASH_REDIS_REST_URL"),
		KVRestToken:          firstEnv("KV_REST_API_TOKEN", "UPSTASH_REDIS_REST_TOKEN"),
		RedisURL:             getEnv("REDIS_URL", ""),
		SessionSecret:        getEnv("SESSION_SECRET", "change-me-in-production"),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIFallbackModel:  getEnv("OPENAI_FALLBACK_MODEL", "gpt-3.5-turbo"),
		OpenAITimeout:        getEnvDuration("OPENAI_TIMEOUT", 60*time.Second),
		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripePriceIDMonthly: getEnv("STRIPE_PRICE_ID_MONTHLY", ""),
		StripePortalConfigID: getEnv("STRIPE_PORTAL_CONFIGURATION_ID", ""),
		CORSOrigins:          getEnvSlice("CORS_ORIGINS", []string{"*"}),
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// firstEnv returns the first non-empty value among the given keys.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

// getEnvDuration retrieves a duration environment variable or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getEnvSlice retrieves a comma-separated environment variable as a slice.
func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
