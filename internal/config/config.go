package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port     string
	MongoURI string
	RedisURL string

	// Ingestion rate limiting (fixed window per IP)
	RateLimit       int
	RateLimitWindow time.Duration

	// Analytics forwarder (secondary sink), disabled when URL is empty
	ForwarderURL  string
	ForwarderRate float64 // requests per second

	// Event schema contract file (known property keys per event name)
	SchemaPath string

	// TTL for cached aggregation results served to dashboards
	AnalyticsCacheTTL time.Duration

	Environment string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "3001"),
		MongoURI: getEnv("MONGODB_URI", ""),
		RedisURL: getEnv("REDIS_URL", ""),

		RateLimit:       getIntEnv("TRACKING_RATE_LIMIT", 100),
		RateLimitWindow: time.Duration(getIntEnv("TRACKING_RATE_WINDOW_SECONDS", 60)) * time.Second,

		ForwarderURL:  getEnv("ANALYTICS_FORWARDER_URL", ""),
		ForwarderRate: getFloatEnv("ANALYTICS_FORWARDER_RATE", 20),

		SchemaPath: getEnv("EVENT_SCHEMA_PATH", "events.yaml"),

		AnalyticsCacheTTL: time.Duration(getIntEnv("ANALYTICS_CACHE_TTL_SECONDS", 30)) * time.Second,

		Environment: getEnv("ENVIRONMENT", "development"),
	}
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment != "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
