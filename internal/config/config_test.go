package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("PORT", "")

	cfg := Load()

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 64, cfg.WSSendBuffer)
	assert.Equal(t, 5*time.Second, cfg.FanoutTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("WS_AUTH_TIMEOUT", "3s")
	t.Setenv("WS_COMMAND_RATE", "2.5")
	t.Setenv("DEBUG_ROUTES", "true")
	t.Setenv("CORS_ORIGINS", "https://app.upflyover.com, ,https://admin.upflyover.com")
	t.Setenv("PUBLIC_BASE_URL", "https://api.upflyover.com/")

	cfg := Load()

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, 3*time.Second, cfg.WSAuthTimeout)
	assert.Equal(t, 2.5, cfg.WSCommandRate)
	assert.True(t, cfg.DebugRoutes)
	assert.Equal(t, []string{"https://app.upflyover.com", "https://admin.upflyover.com"}, cfg.CORSOrigins)
	assert.Equal(t, "https://api.upflyover.com", cfg.PublicBaseURL)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("WS_SEND_BUFFER", "lots")
	t.Setenv("TRACING_ENABLED", "maybe")

	cfg := Load()

	assert.Equal(t, 64, cfg.WSSendBuffer)
	assert.False(t, cfg.TracingEnabled)
}

func TestValidateJWTSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")
	assert.ErrorIs(t, Load().Validate(), ErrInsecureJWTSecret)

	t.Setenv("JWT_SECRET", DefaultJWTSecret)
	assert.ErrorIs(t, Load().Validate(), ErrInsecureJWTSecret)

	t.Setenv("JWT_SECRET", "a-real-secret")
	assert.NoError(t, Load().Validate())

	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("JWT_SECRET", "")
	assert.NoError(t, Load().Validate())
}
