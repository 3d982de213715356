package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppConfigDefaults(t *testing.T) {
	os.Unsetenv("PICOTIN_RUNTIME_ROOT")
	os.Unsetenv("PICOTIN_DEBUG")

	cfg, err := NewAppConfig("picotin", "1.2.3", "abc123", "2026-01-01", false)
	require.NoError(t, err)

	assert.Equal(t, DefaultRuntimeRoot, cfg.RuntimeRoot)
	assert.False(t, cfg.Debug)
	assert.Equal(t, "1.2.3", cfg.Version)
}

func TestNewAppConfigRuntimeRootOverride(t *testing.T) {
	t.Setenv("PICOTIN_RUNTIME_ROOT", "/tmp/custom-picotin")
	cfg, err := NewAppConfig("picotin", "1.2.3", "abc123", "2026-01-01", false)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom-picotin", cfg.RuntimeRoot)
}

func TestNewAppConfigDebugOverride(t *testing.T) {
	t.Setenv("PICOTIN_DEBUG", "1")
	cfg, err := NewAppConfig("picotin", "1.2.3", "abc123", "2026-01-01", false)
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
}
