package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string // PostgreSQL; empty selects SQLite
	SQLitePath  string
	RedisURL    string

	TokenSecret   string // HMAC secret for access tokens
	MessageSecret string // key material for message-at-rest encryption

	DedupWindow     time.Duration // duplicate-send suppression window
	CallRingTimeout time.Duration

	AllowedOrigins []string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SQLitePath:      os.Getenv("SQLITE_PATH"),
		RedisURL:        os.Getenv("REDIS_URL"),
		TokenSecret:     os.Getenv("TOKEN_SECRET"),
		MessageSecret:   os.Getenv("MESSAGE_SECRET"),
		DedupWindow:     getDuration("DEDUP_WINDOW", 5*time.Second),
		CallRingTimeout: getDuration("CALL_RING_TIMEOUT", 60*time.Second),
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, entry := range strings.Split(origins, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, entry)
			}
		}
	}

	if cfg.Env == "production" {
		if cfg.TokenSecret == "" {
			panic("TOKEN_SECRET is required in production")
		}
		if cfg.MessageSecret == "" {
			panic("MESSAGE_SECRET is required in production")
		}
	}

	// Development fallbacks, never valid in production.
	if cfg.TokenSecret == "" {
		cfg.TokenSecret = "dev-token-secret"
	}
	if cfg.MessageSecret == "" {
		cfg.MessageSecret = "dev-message-secret"
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
