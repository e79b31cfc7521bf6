package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "accurate", cfg.Retrieval.Mode)
	assert.Equal(t, 0.5, cfg.Fusion.DirectWeight)
	assert.Equal(t, 0.5, cfg.Fusion.GraphWeight)
	assert.False(t, cfg.Fusion.EnableVector)
	assert.Equal(t, 0.85, cfg.Consolidation.SimilarityThreshold)
	assert.Equal(t, 2000, cfg.Context.TokenBudget)
	assert.Equal(t, 0.3, cfg.Context.ProfileFraction)
	assert.Equal(t, 0.4, cfg.Context.MemoryFraction)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("EVERMEM_RETRIEVAL_MODE", "fast")
	t.Setenv("EVERMEM_FUSION_ENABLE_VECTOR", "true")
	t.Setenv("EVERMEM_CONTEXT_TOKEN_BUDGET", "500")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "fast", cfg.Retrieval.Mode)
	assert.True(t, cfg.Fusion.EnableVector)
	assert.Equal(t, 500, cfg.Context.TokenBudget)
}

func TestLoadConfigInvalidEnvValueFallsBack(t *testing.T) {
	t.Setenv("EVERMEM_CONTEXT_TOKEN_BUDGET", "lots")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.Context.TokenBudget)
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	t.Setenv("EVERMEM_RETRIEVAL_MODE", "turbo")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidatePostgresRequiresDSN(t *testing.T) {
	t.Setenv("EVERMEM_STORAGE_ENGINE", "postgres")

	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("EVERMEM_POSTGRES_DSN", "postgres://localhost/evermem")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Engine)
}

func TestApplyFileOverridesOnlyPresentKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evermem.yaml")
	content := []byte(`
llm:
  provider: openai
  model: gpt-4o-mini
fusion:
  enable_vector: true
  vector_weight: 0.2
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("EVERMEM_CONFIG_FILE", path)
	t.Setenv("EVERMEM_CONTEXT_TOKEN_BUDGET", "800")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.True(t, cfg.Fusion.EnableVector)
	assert.Equal(t, 0.2, cfg.Fusion.VectorWeight)

	// keys absent from the file keep env/default values
	assert.Equal(t, 800, cfg.Context.TokenBudget)
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
}

func TestApplyFileMissingFile(t *testing.T) {
	t.Setenv("EVERMEM_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := LoadConfig()
	assert.Error(t, err)
}
