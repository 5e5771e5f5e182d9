// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string

	// SessionSecret signs session tokens; AuthPassword is the shared
	// instructor/student login password. Both are required.
	SessionSecret string
	AuthPassword  string
	SessionTTL    time.Duration

	Audit     AuditConfig
	Upstream  UpstreamConfig
	RateLimit RateLimitConfig
}

// AuditConfig controls the append-only audit log.
type AuditConfig struct {
	Dir       string
	QueueSize int
}

// UpstreamConfig points at the LLM proxy the chat endpoint forwards to.
type UpstreamConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// RateLimitConfig throttles login attempts per client IP.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// DefaultUpstreamURL is the prewired LLM proxy base used when LLM_URL
// is not set.
const DefaultUpstreamURL = "https://proxy-ai-anes-uabmc-awefchfueccrddhf.eastus2-01.azurewebsites.net/"

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	ttlHours := getEnvInt("SESSION_TTL_HOURS", 12)
	if ttlHours <= 0 {
		ttlHours = 12
	}
	timeoutSeconds := getEnvInt("LLM_TIMEOUT_SECONDS", 60)
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		FrontendURL:   getEnv("FRONTEND_URL", ""),
		SessionSecret: getEnv("SESSION_SECRET", ""),
		AuthPassword:  getEnv("AUTH_PASSWORD", ""),
		SessionTTL:    time.Duration(ttlHours) * time.Hour,
		Audit: AuditConfig{
			Dir:       getEnv("AUDIT_LOG_DIR", "./logs"),
			QueueSize: getEnvInt("AUDIT_QUEUE_SIZE", 256),
		},
		Upstream: UpstreamConfig{
			URL:     getEnv("LLM_URL", DefaultUpstreamURL),
			APIKey:  getEnv("LLM_API_KEY", getEnv("LLM_KEY", "")),
			Model:   getEnv("LLM_MODEL", "gpt-4o-mini"),
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("LOGIN_RATE_LIMIT", 20),
			WindowDuration:    time.Minute,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
// Missing secrets are a process misconfiguration and fail startup.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is not set")
	}
	if c.AuthPassword == "" {
		return fmt.Errorf("AUTH_PASSWORD is not set")
	}
	if c.Audit.Dir == "" {
		return fmt.Errorf("AUDIT_LOG_DIR cannot be empty")
	}
	if c.Audit.QueueSize <= 0 {
		return fmt.Errorf("AUDIT_QUEUE_SIZE must be > 0")
	}
	if c.Upstream.URL == "" {
		return fmt.Errorf("LLM_URL cannot be empty")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("LOGIN_RATE_LIMIT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
