package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "llama-cli", cfg.LlamaBinary)
	assert.Equal(t, "chunk", cfg.StopScanMode)
	assert.Equal(t, 2*time.Second, cfg.TerminateGrace)
	assert.Equal(t, 50, cfg.RunHistorySize)
	assert.Equal(t, time.Hour, cfg.RunHistoryTTL)
	assert.False(t, cfg.AuthEnabled())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("STOP_SCAN_MODE", "window")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000,https://chat.example.com")
	t.Setenv("API_KEY", "k3y")
	t.Setenv("TERMINATE_GRACE", "500ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, "window", cfg.StopScanMode)
	assert.Equal(t, []string{"http://localhost:3000", "https://chat.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 500*time.Millisecond, cfg.TerminateGrace)
	assert.True(t, cfg.AuthEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STOP_SCAN_MODE", "sliding")
	t.Setenv("HTTP_PORT", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STOP_SCAN_MODE")
	assert.Contains(t, err.Error(), "HTTP_PORT")
}

func TestLoad_BadDuration(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RUN_HISTORY_TTL", "forever")

	_, err := Load()
	assert.Error(t, err)
}
