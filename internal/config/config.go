// Package config provides configuration loading and management for the application.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string

	// Base URLs for the provider connectors
	WormholeURL  string
	DeBridgeURL  string
	AllbridgeURL string

	// OpenTelemetry endpoint for observability
	OtelEndpoint string

	// API keys for various services
	APIKeys map[string]string

	// Redis connection for the result cache and metrics/preference stores
	RedisURL string

	// Per-provider quote timeout inside one aggregate call
	ProviderTimeout time.Duration

	// Short budget for cache and store round trips
	StoreTimeout time.Duration

	// TTL for cached aggregate results
	CacheTTL time.Duration

	// Interval between provider health probes
	HealthCheckInterval time.Duration

	// Number of backup routes exposed after the recommendation
	BackupCount int

	// Webhook export of health snapshots
	ExportWebhookURL    string
	ExportWebhookAPIKey string
	ExportInterval      time.Duration
	ExportBatchSize     int
}

// Load creates a new Config from environment variables
func Load() Config {
	apiKeys := map[string]string{}
	if raw := os.Getenv("API_KEYS"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &apiKeys)
	}

	return Config{
		Port:                GetEnvOrDefault("PORT", "8080"),
		WormholeURL:         GetEnvOrDefault("WORMHOLE_URL", "https://api.wormholescan.io"),
		DeBridgeURL:         GetEnvOrDefault("DEBRIDGE_URL", "https://api.dln.trade/v1.0"),
		AllbridgeURL:        GetEnvOrDefault("ALLBRIDGE_URL", "https://core.api.allbridgecoreapi.net"),
		OtelEndpoint:        GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		APIKeys:             apiKeys,
		RedisURL:            GetEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		ProviderTimeout:     GetEnvAsDuration("PROVIDER_TIMEOUT", 5*time.Second),
		StoreTimeout:        GetEnvAsDuration("STORE_TIMEOUT", 500*time.Millisecond),
		CacheTTL:            GetEnvAsDuration("CACHE_TTL", 30*time.Second),
		HealthCheckInterval: GetEnvAsDuration("HEALTH_CHECK_INTERVAL", 60*time.Second),
		BackupCount:         GetEnvAsInt("BACKUP_COUNT", 2),
		ExportWebhookURL:    GetEnvOrDefault("EXPORT_WEBHOOK_URL", ""),
		ExportWebhookAPIKey: GetEnvOrDefault("EXPORT_WEBHOOK_API_KEY", ""),
		ExportInterval:      GetEnvAsDuration("EXPORT_INTERVAL", time.Minute),
		ExportBatchSize:     GetEnvAsInt("EXPORT_BATCH_SIZE", 100),
	}
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a boolean with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
