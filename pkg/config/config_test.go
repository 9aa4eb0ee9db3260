package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, time.Hour, cfg.JWT.ResetExpiration)
	assert.Equal(t, 2, cfg.Notifications.MaxRetries)
	assert.Equal(t, "local", cfg.Blob.Driver)
	assert.Equal(t, []string{"application/pdf", "image/jpeg", "image/png"}, cfg.Uploads.AllowedMIMEs)
	assert.Equal(t, int64(5*1024*1024), cfg.Uploads.MaxFileSizeBytes)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BLOB_DRIVER", "Cloudinary")
	t.Setenv("NOTIFY_MAX_RETRIES", "0")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("RESET_TOKEN_EXPIRATION", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "cloudinary", cfg.Blob.Driver)
	assert.Equal(t, 0, cfg.Notifications.MaxRetries)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, time.Hour, cfg.JWT.ResetExpiration)
}

func TestSplitAndTrimEmpty(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Empty(t, splitAndTrim(" , "))
}

