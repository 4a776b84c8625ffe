package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, k := range []string{"PORT", "DATASTORE_URL", "MONGO_URL", "REDIS_ADDR", "JWT_SECRET", "CACHE_TTL", "METRICS_ENABLED"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, defaultDatastoreURL, cfg.DatastoreURL)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	assert.True(t, cfg.MetricsEnabled)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Auth.Enabled())
}

func TestLoad_MongoURLFallback(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("DATASTORE_URL", "")
	t.Setenv("MONGO_URL", "mongodb://db:27017/shop")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mongodb://db:27017/shop", cfg.DatastoreURL)

	t.Setenv("DATASTORE_URL", "memory://")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "memory://", cfg.DatastoreURL)
}

func TestLoad_DotenvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=4000\nREDIS_ADDR=cache:6379\n"), 0o600))

	t.Setenv("ENV_FILE", path)
	t.Setenv("PORT", "5000")
	t.Setenv("REDIS_ADDR", "")
	// godotenv sets REDIS_ADDR for the rest of the process; restore it afterwards.
	t.Cleanup(func() { _ = os.Unsetenv("REDIS_ADDR") })
	require.NoError(t, os.Unsetenv("REDIS_ADDR"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("PORT", "not-a-port")
	t.Setenv("CACHE_TTL", "-1s")
	t.Setenv("METRICS_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	assert.True(t, cfg.MetricsEnabled)
}

func TestAuthConfig_Enabled(t *testing.T) {
	c := AuthConfig{JWTSecret: "s", OperatorEmail: "ops@example.com"}
	assert.False(t, c.Enabled())

	c.OperatorPasswordHash = "$2a$10$hash"
	assert.True(t, c.Enabled())
}
