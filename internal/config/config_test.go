package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory so no stray .env is read
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "https://api.chatdeck.dev", cfg.PlatformAPIURL)
	assert.Equal(t, 30*time.Second, cfg.Loader.TTL)
	assert.Equal(t, 30*time.Minute, cfg.Loader.IdleTimeout)
	assert.Equal(t, 12*time.Hour, cfg.Session.Lifetime)
	assert.False(t, cfg.HasRedis())
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoadFromEnvironment(t *testing.T) {
	inTempDir(t)

	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOADER_TTL", "45s")
	t.Setenv("LOADER_MAX_ENTRIES", "500")
	t.Setenv("LOADER_BATCH_CONCURRENCY", "4")
	t.Setenv("SESSION_SECURE_COOKIE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.HasRedis())
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, 45*time.Second, cfg.Loader.TTL)
	assert.Equal(t, uint64(500), cfg.Loader.MaxEntries)
	assert.Equal(t, 4, cfg.Loader.BatchConcurrency)
	assert.True(t, cfg.Session.SecureCookie)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PLATFORM_API_URL=http://platform.internal:8000\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("PLATFORM_API_URL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://platform.internal:8000", cfg.PlatformAPIURL)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad duration", "LOADER_TTL", "soon"},
		{"zero ttl", "LOADER_TTL", "0s"},
		{"relative url", "PLATFORM_API_URL", "/api"},
		{"bad level", "LOG_LEVEL", "loud"},
		{"negative concurrency", "LOADER_BATCH_CONCURRENCY", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inTempDir(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
