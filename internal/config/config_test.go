package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()

	vars := map[string]string{
		"ERM_PRIMARY.ENV":                     "development",
		"ERM_SERVER.PORT":                     "8080",
		"ERM_SERVER.READ_TIMEOUT":             "30",
		"ERM_SERVER.WRITE_TIMEOUT":            "30",
		"ERM_SERVER.IDLE_TIMEOUT":             "60",
		"ERM_SERVER.CORS_ALLOWED_ORIGINS":     "http://localhost:3000",
		"ERM_DATABASE.HOST":                   "localhost",
		"ERM_DATABASE.PORT":                   "5432",
		"ERM_DATABASE.USER":                   "erm",
		"ERM_DATABASE.PASSWORD":               "erm",
		"ERM_DATABASE.NAME":                   "erm",
		"ERM_DATABASE.SSL_MODE":               "disable",
		"ERM_DATABASE.MAX_OPEN_CONNS":         "25",
		"ERM_DATABASE.MAX_IDLE_CONNS":         "25",
		"ERM_DATABASE.CONN_MAX_LIFETIME":      "300",
		"ERM_DATABASE.CONN_MAX_IDLE_TIME":     "300",
		"ERM_REDIS.ADDRESS":                   "localhost:6379",
		"ERM_AUTH.SECRET_KEY":                 "0123456789abcdef0123456789abcdef",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSAllowedOrigins)

	assert.Equal(t, ServiceName, cfg.Auth.Issuer)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 5, cfg.Auth.MaxLoginAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Auth.LoginWindow)

	require.NotNil(t, cfg.Observability)
	assert.Equal(t, ServiceName, cfg.Observability.ServiceName)
	assert.Equal(t, "development", cfg.Observability.Environment)
	assert.False(t, cfg.Observability.IsProduction())
}

func TestLoadConfig_AuthOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ERM_AUTH.TOKEN_TTL", "30m")
	t.Setenv("ERM_AUTH.MAX_LOGIN_ATTEMPTS", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 3, cfg.Auth.MaxLoginAttempts)
}

func TestLoadConfig_ShortSecretRejected(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ERM_AUTH.SECRET_KEY", "too-short")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestObservabilityConfig_Validate(t *testing.T) {
	cfg := DefaultObservabilityConfig()
	require.NoError(t, cfg.Validate())

	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = DefaultObservabilityConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = DefaultObservabilityConfig()
	cfg.Logging.SlowQueryThreshold = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestObservabilityConfig_GetLogLevel(t *testing.T) {
	cfg := DefaultObservabilityConfig()
	cfg.Logging.Level = ""

	cfg.Environment = "production"
	assert.Equal(t, "info", cfg.GetLogLevel())

	cfg.Environment = "development"
	assert.Equal(t, "debug", cfg.GetLogLevel())

	cfg.Logging.Level = "warn"
	assert.Equal(t, "warn", cfg.GetLogLevel())
}

func TestObservabilityConfig_HealthCheckEnabled(t *testing.T) {
	cfg := DefaultObservabilityConfig()
	assert.True(t, cfg.HealthCheckEnabled("database"))
	assert.True(t, cfg.HealthCheckEnabled("redis"))
	assert.False(t, cfg.HealthCheckEnabled("smtp"))

	cfg.HealthChecks.Enabled = false
	assert.False(t, cfg.HealthCheckEnabled("database"))
}
