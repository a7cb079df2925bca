package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creach-t/phi3-chat-interface-sub000/internal/auth"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/config"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/params"
)

func TestTokenCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"token", "--subject", "ui", "--ttl", "1h"})
	require.NoError(t, rootCmd.Execute())

	m := auth.NewJWTManager(auth.DefaultJWTConfig("s3cret"))
	claims, err := m.ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "ui", claims.Subject)
}

func TestParamFlagsCoverEveryParameter(t *testing.T) {
	seen := map[string]bool{}
	for flag, name := range paramFlags {
		require.NotNil(t, generateCmd.Flags().Lookup(flag), flag)
		seen[name] = true
	}
	for name := range params.Limits {
		assert.True(t, seen[name], "no flag for %s", name)
	}
}

func TestNewGenerationService(t *testing.T) {
	cfg := &config.Config{
		LlamaBinary:    "llama-cli",
		ModelPath:      "model.gguf",
		StopScanMode:   "window",
		TerminateGrace: 1,
		RunHistorySize: 5,
	}

	svc, err := newGenerationService(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, params.Defaults(), svc.Defaults())

	cfg.StopScanMode = "bogus"
	_, err = newGenerationService(cfg, nil)
	assert.Error(t, err)
}
