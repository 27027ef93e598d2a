package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 60000, cfg.Budget.MaxContextTokens)
	assert.Equal(t, 4, cfg.Budget.KeepRecentTurns)
	assert.Equal(t, 3, cfg.Diagnose.Window)
	assert.InDelta(t, 0.75, cfg.Diagnose.ErrorRateThreshold, 0.001)
	assert.True(t, cfg.Safety.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Budget, cfg.Budget)
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
model:
  provider: openai
  name: gpt-5
budget:
  max_context_tokens: 120000
sandbox:
  command_timeout: 90s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.Model.Provider)
	assert.Equal(t, "gpt-5", cfg.Model.Name)
	assert.Equal(t, 120000, cfg.Budget.MaxContextTokens)
	assert.Equal(t, 90*time.Second, cfg.Sandbox.CommandTimeout)
	// Untouched knobs keep their defaults.
	assert.Equal(t, 4, cfg.Budget.KeepRecentTurns)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Diagnose.ErrorRateThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Model.Provider = "carrier-pigeon"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Budget.MaxContextTokens = 0
	assert.Error(t, cfg.Validate())
}
