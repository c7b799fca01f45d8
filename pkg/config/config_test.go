package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMergesOverDefaults(t *testing.T) {
	t.Parallel()
	yamlSrc := `
embedding:
  model_id: custom-embedder
retrieval:
  k: 20
orchestrator:
  strategy: parallel
`
	cfg, err := Load(t.Context(), StreamReader{R: strings.NewReader(yamlSrc)})
	require.NoError(t, err)
	assert.Equal(t, "custom-embedder", cfg.Embedding.ModelID)
	assert.Equal(t, 20, cfg.Retrieval.K)
	assert.Equal(t, "parallel", cfg.Orchestrator.Strategy)
	assert.Equal(t, 32, cfg.Embedding.BatchSize, "unset keys keep their default")
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Orchestrator.Strategy = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroWindowSize(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Chunking.WindowSize = 0
	assert.Error(t, cfg.Validate())
}

func TestAgentEnabledDefaultsToAllWhenEmpty(t *testing.T) {
	t.Parallel()
	cfg := Default()
	assert.True(t, cfg.AgentEnabled("rag"))

	cfg.Agents.Enabled = []string{"rag", "sql"}
	assert.True(t, cfg.AgentEnabled("sql"))
	assert.False(t, cfg.AgentEnabled("python"))
}
