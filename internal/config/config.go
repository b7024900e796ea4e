// Package config loads server configuration from the environment. A .env
// file, when present, is loaded by main before this runs.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/scrapeforge/scrapeforge/pkg/models"
)

// Config is the process-wide configuration.
type Config struct {
	Addr        string
	Mode        string // "http" or "mcp"
	Environment string

	MaxSessions      int
	SessionTTL       time.Duration
	SweepInterval    time.Duration
	SessionRetention time.Duration
	JobRetention     time.Duration

	RulebookPath     string
	ExportDir        string
	MaxExports       int64
	RateLimitPerHour int
	RateLimitBurst   int
	ChromeEnabled    bool

	DefaultSession models.SessionConfig
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		Addr:        envStr("ADDR", ":8080"),
		Mode:        envStr("SERVER_MODE", "http"),
		Environment: envStr("ENVIRONMENT", "development"),

		MaxSessions:      envInt("MAX_SESSIONS", 50),
		SessionTTL:       envDuration("SESSION_TTL", time.Hour),
		SweepInterval:    envDuration("SWEEP_INTERVAL", 5*time.Minute),
		SessionRetention: envDuration("SESSION_RETENTION", 24*time.Hour),
		JobRetention:     envDuration("JOB_RETENTION", 24*time.Hour),

		RulebookPath:     envStr("RULEBOOK_PATH", "./rules.yaml"),
		ExportDir:        envStr("EXPORT_DIR", "./exports"),
		MaxExports:       int64(envInt("MAX_CONCURRENT_EXPORTS", 4)),
		RateLimitPerHour: envInt("RATE_LIMIT_PER_HOUR", 1000),
		RateLimitBurst:   envInt("RATE_LIMIT_BURST", 20),
		ChromeEnabled:    envBool("CHROME_ENABLED", false),

		DefaultSession: models.SessionConfig{
			RateLimitPerSecond: envFloat("DEFAULT_RATE_LIMIT_PER_SECOND", 1.0),
			MaxRetries:         envInt("DEFAULT_MAX_RETRIES", 3),
			RetryDelayMS:       envInt("DEFAULT_RETRY_DELAY_MS", 1000),
			RequestTimeoutMS:   envInt("DEFAULT_REQUEST_TIMEOUT_MS", 30000),
			UserAgent:          envStr("DEFAULT_USER_AGENT", "ScrapeForge/1.0"),
			FollowRedirects:    true,
		},
	}
}

// Production reports whether the server runs with production logging.
func (c *Config) Production() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
