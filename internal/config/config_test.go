package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "http", cfg.Mode)
	assert.Equal(t, 50, cfg.MaxSessions)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.SessionRetention)
	assert.Equal(t, int64(4), cfg.MaxExports)
	assert.False(t, cfg.ChromeEnabled)
	assert.Equal(t, "ScrapeForge/1.0", cfg.DefaultSession.UserAgent)
	assert.True(t, cfg.DefaultSession.FollowRedirects)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ADDR", ":9999")
	t.Setenv("SERVER_MODE", "mcp")
	t.Setenv("MAX_SESSIONS", "7")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("CHROME_ENABLED", "true")
	t.Setenv("DEFAULT_RATE_LIMIT_PER_SECOND", "2.5")

	cfg := Load()

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "mcp", cfg.Mode)
	assert.Equal(t, 7, cfg.MaxSessions)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.True(t, cfg.ChromeEnabled)
	assert.Equal(t, 2.5, cfg.DefaultSession.RateLimitPerSecond)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MAX_SESSIONS", "lots")
	t.Setenv("SESSION_TTL", "soon")
	t.Setenv("CHROME_ENABLED", "maybe")

	cfg := Load()

	assert.Equal(t, 50, cfg.MaxSessions)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.ChromeEnabled)
}

func TestProduction(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	assert.True(t, Load().Production())

	t.Setenv("ENVIRONMENT", "prod")
	assert.True(t, Load().Production())

	t.Setenv("ENVIRONMENT", "development")
	assert.False(t, Load().Production())
}
