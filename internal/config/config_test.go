package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/forgery_test")
	t.Setenv("CSRF_SECRET", strings.Repeat("s", 32))
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, "development", cfg.Server.Environment)
	require.True(t, cfg.IsDevelopment())
	require.Equal(t, 512, cfg.Model.ImageSize)
	require.InDelta(t, 0.5, cfg.Model.ConfidenceThreshold, 1e-9)
	require.Equal(t, int64(50*1024*1024), cfg.Limits.MaxFileSize)
	require.Equal(t, 10, cfg.Limits.MaxBatchSize)
	require.Equal(t, 24*time.Hour, cfg.Security.SessionDuration)
	require.False(t, cfg.Security.SecureCookies)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CSRF_SECRET", strings.Repeat("s", 32))

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadRejectsShortCSRFSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/forgery_test")
	t.Setenv("CSRF_SECRET", "too-short")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "CSRF_SECRET")
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CONFIDENCE_THRESHOLD", "1.5")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "CONFIDENCE_THRESHOLD")
}

func TestLoadRejectsUnknownEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENVIRONMENT", "qa")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "ENVIRONMENT")
}

func TestLoadSecureCookiesInProduction(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.Security.SecureCookies)
}

func TestAllowsExtension(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.True(t, cfg.Limits.AllowsExtension(".jpg"))
	require.True(t, cfg.Limits.AllowsExtension(".TIFF"))
	require.False(t, cfg.Limits.AllowsExtension(".gif"))
	require.False(t, cfg.Limits.AllowsExtension(""))
}

func TestAllowedExtensionsOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ALLOWED_EXTENSIONS", ".png .JPG")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{".png", ".jpg"}, cfg.Limits.AllowedExtensions)
}
