// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken    string
	GitHubAPIURL   string
	PollInterval   time.Duration
	RefreshTimeout time.Duration
	ListenAddr     string
	DBPath         string
	SecretKey      []byte // nil when PRMONITOR_SECRET_KEY is unset.
	OpenBrowser    bool
}

// HasSecretKey reports whether the token store can encrypt.
func (c *Config) HasSecretKey() bool {
	return c.SecretKey != nil
}

// Load reads an optional .env file from the working directory, then reads
// configuration from environment variables and returns a validated Config.
// Variables already set in the environment take precedence over .env.
//
// PRMONITOR_GITHUB_TOKEN is optional; it is stored on first start when no
// token is stored yet. PRMONITOR_SECRET_KEY (64 hex characters) is required
// to store a token at all.
// Optional variables with defaults: PRMONITOR_POLL_INTERVAL (5m),
// PRMONITOR_REFRESH_TIMEOUT (2m), PRMONITOR_LISTEN_ADDR (127.0.0.1:8080),
// PRMONITOR_DB_PATH (prmonitor.db), PRMONITOR_OPEN_BROWSER (true),
// PRMONITOR_GITHUB_API_URL (api.github.com).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	pollInterval, err := durationEnv("PRMONITOR_POLL_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	refreshTimeout, err := durationEnv("PRMONITOR_REFRESH_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	openBrowser := true
	if v, ok := os.LookupEnv("PRMONITOR_OPEN_BROWSER"); ok && v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("PRMONITOR_OPEN_BROWSER has invalid boolean %q: %w", v, err)
		}
		openBrowser = parsed
	}

	var secretKey []byte
	if v := os.Getenv("PRMONITOR_SECRET_KEY"); v != "" {
		secretKey, err = hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("PRMONITOR_SECRET_KEY is not valid hex: %w", err)
		}
		if len(secretKey) != 32 {
			return nil, fmt.Errorf("PRMONITOR_SECRET_KEY must be 64 hex characters (32 bytes), got %d bytes", len(secretKey))
		}
	}

	return &Config{
		GitHubToken:    os.Getenv("PRMONITOR_GITHUB_TOKEN"),
		GitHubAPIURL:   os.Getenv("PRMONITOR_GITHUB_API_URL"),
		PollInterval:   pollInterval,
		RefreshTimeout: refreshTimeout,
		ListenAddr:     stringEnv("PRMONITOR_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:         stringEnv("PRMONITOR_DB_PATH", "prmonitor.db"),
		SecretKey:      secretKey,
		OpenBrowser:    openBrowser,
	}, nil
}

func stringEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// durationEnv parses key as a positive duration.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, parsed)
	}
	return parsed, nil
}
