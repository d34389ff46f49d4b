package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorageS3, cfg.StorageBackend)
	assert.Equal(t, time.Hour, cfg.JWTAccessTTL)
	assert.Equal(t, 10, cfg.LoginRPM)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_BACKEND", "gcs")
	t.Setenv("RATE_LIMIT_LOGIN_RPM", "25")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, StorageGCS, cfg.StorageBackend)
	assert.Equal(t, 25, cfg.LoginRPM)
}

func TestLoad_EnvWinsOverYAMLOverlay(t *testing.T) {
	clearEnv(t)
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("port: \"7000\"\nlog_level: DEBUG\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	t.Setenv("CONFIG_FILE", f.Name())
	t.Setenv("PORT", "9999")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Port, "env var must win over the YAML overlay")
	assert.Equal(t, "DEBUG", cfg.LogLevel, "overlay value used when no env var is set")
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "PORT", "LOG_LEVEL", "DATABASE_URL", "REDIS_ADDR",
		"STORAGE_BACKEND", "S3_BUCKET", "S3_REGION", "GCS_BUCKET", "GCS_PROJECT_ID",
		"JWT_ISSUER", "JWT_ACCESS_TTL", "JWT_KEY_ROTATE",
		"RATE_LIMIT_LOGIN_RPM", "RATE_LIMIT_INVITATION_RPH", "RATE_LIMIT_LLM_DRAFT_RPM",
		"LLM_SERVICE_URL",
	} {
		t.Setenv(k, "")
	}
}
