// Package config provides environment configuration for the sync daemon.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Session identity
	UserID string
	Role   string

	// Backend REST settings
	BackendBaseURL string
	BackendToken   string

	// Realtime transport settings
	RealtimeURL      string
	RealtimeToken    string
	RealtimeCAFile   string
	RealtimeCertFile string
	RealtimeKeyFile  string

	// JWT settings for the local API
	JWTSecret string

	// Sync behavior
	SyncInterval time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from the environment, with an optional .env file.
func Load() *Config {
	godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8090"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Session
		UserID: getEnv("SESSION_USER_ID", ""),
		Role:   getEnv("SESSION_ROLE", "student"),

		// Backend
		BackendBaseURL: getEnv("BACKEND_BASE_URL", "http://localhost:5000"),
		BackendToken:   getEnv("BACKEND_TOKEN", ""),

		// Realtime
		RealtimeURL:      getEnv("REALTIME_URL", "nats://localhost:4222"),
		RealtimeToken:    getEnv("REALTIME_TOKEN", ""),
		RealtimeCAFile:   getEnv("REALTIME_CA_FILE", ""),
		RealtimeCertFile: getEnv("REALTIME_CERT_FILE", ""),
		RealtimeKeyFile:  getEnv("REALTIME_KEY_FILE", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Sync
		SyncInterval: getDurationEnv("SYNC_INTERVAL", 2*time.Minute),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
