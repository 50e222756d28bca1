package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("SCORING_POINTS_PER_RESOLUTION", "")
	t.Setenv("REALTIME_REDIS_FANOUT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, int64(10), cfg.Scoring.PointsPerResolution)
	assert.False(t, cfg.Realtime.RedisFanout)
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("SCORING_POINTS_PER_RESOLUTION", "25")
	t.Setenv("REALTIME_REDIS_FANOUT", "true")
	t.Setenv("HTTP_REQUEST_TIMEOUT_SECONDS", "0")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.App.Addr())
	assert.Equal(t, int64(25), cfg.Scoring.PointsPerResolution)
	assert.True(t, cfg.Realtime.RedisFanout)
	assert.Zero(t, cfg.App.RequestTimeout())
	assert.Equal(t, "https://a.example,https://b.example", cfg.App.AllowedOrigins())
}

func TestLoadRejectsNegativePoints(t *testing.T) {
	t.Setenv("SCORING_POINTS_PER_RESOLUTION", "-1")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "one")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadReportsEveryMalformedValue(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("POSTGRES_MAX_CONNS", "many")
	t.Setenv("REALTIME_REDIS_FANOUT", "sometimes")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_MAX_CONNS")
	assert.Contains(t, err.Error(), "REALTIME_REDIS_FANOUT")
}

func TestLoadRequiresSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("AUTH_JWT_SECRET", "real-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "real-secret", cfg.Auth.JWTSecret)
}

func TestLoadRejectsBootstrapPasswordOverBcryptLimit(t *testing.T) {
	t.Setenv("AUTH_BOOTSTRAP_ADMIN_PASSWORD", strings.Repeat("é", 40))
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_BOOTSTRAP_ADMIN_PASSWORD")
}
