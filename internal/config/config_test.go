package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, "@every 2m", cfg.SweepSchedule)
	assert.Equal(t, 5*time.Minute, cfg.SweepStuckAfter)
	assert.Equal(t, 5, cfg.SweepMaxAttempts)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("EVAL_STUCK_AFTER", "30s")
	t.Setenv("EVAL_MAX_ATTEMPTS", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 30*time.Second, cfg.SweepStuckAfter)
	assert.Equal(t, 3, cfg.SweepMaxAttempts)
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("AI_PROVIDER", "other")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("EVAL_STUCK_AFTER", "soon")

	_, err := LoadConfig()
	assert.Error(t, err)
}
