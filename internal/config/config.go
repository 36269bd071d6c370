// Package config loads the immutable configuration snapshot the
// service uses for its whole lifetime.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once at startup; the core treats it as immutable.
type Config struct {
	// Cloud API
	Token   string
	BaseURL string
	Timeout time.Duration

	// Local store
	DatabaseDSN string

	// Sync engine
	Interval   time.Duration
	MaxRetries int

	// Status endpoint
	StatusAddr string

	// Logging
	LogLevel  string
	LogFormat string
	LogOutput string
}

// Load reads configuration from the environment, with an optional
// .env file merged in first.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment.
	_ = godotenv.Load()

	intervalMinutes, err := getInt("SYNC_INTERVAL_MINUTES", 10)
	if err != nil {
		return nil, err
	}
	timeoutSeconds, err := getInt("TABULA_TIMEOUT_SECONDS", 20)
	if err != nil {
		return nil, err
	}
	maxRetries, err := getInt("SYNC_MAX_RETRIES", 5)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Token:       os.Getenv("TABULA_TOKEN"),
		BaseURL:     os.Getenv("TABULA_URL"),
		Timeout:     time.Duration(timeoutSeconds) * time.Second,
		DatabaseDSN: os.Getenv("DATABASE_DSN"),
		Interval:    time.Duration(intervalMinutes) * time.Minute,
		MaxRetries:  maxRetries,
		StatusAddr:  getEnv("STATUS_ADDR", ":8900"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "console"),
		LogOutput:   getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Token == "" {
		return fmt.Errorf("TABULA_TOKEN is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("TABULA_URL is required")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if c.Interval < time.Minute {
		return fmt.Errorf("SYNC_INTERVAL_MINUTES must be at least 1")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("TABULA_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}
