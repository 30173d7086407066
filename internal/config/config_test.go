package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Budgets.StepBudget)
	assert.Equal(t, 50, cfg.Budgets.RoundBudget)
	assert.Equal(t, 120*time.Second, cfg.ReviewTimeout())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
budgets:
  step_budget: 10
  round_budget: 2
  max_concurrent: 2
gateway:
  model: gemini-2.5-pro
  step_timeout: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Budgets.StepBudget)
	assert.Equal(t, 2, cfg.Budgets.RoundBudget)
	assert.Equal(t, "gemini-2.5-pro", cfg.Gateway.Model)
	assert.Equal(t, 30*time.Second, cfg.StepTimeout())
	// Untouched values keep defaults.
	assert.Equal(t, 40, cfg.Budgets.ToolCallBudget)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("PDFHUNTER_MODEL", "gemini-env")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Gateway.APIKey)
	assert.Equal(t, "gemini-env", cfg.Gateway.Model)
}

func TestTimeouts_UnparsableFallsBackToDefault(t *testing.T) {
	cfg := Default()
	cfg.Gateway.StepTimeout = "soon"
	cfg.Gateway.FinalizeTimeout = ""

	assert.Equal(t, 45*time.Second, cfg.StepTimeout())
	assert.Equal(t, 120*time.Second, cfg.FinalizeTimeout())
}

func TestLoad_RejectsNonPositiveBudgets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("budgets:\n  round_budget: -1\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
