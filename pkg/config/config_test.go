package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 0.7, cfg.Pipeline.CompletionThreshold)
	assert.Equal(t, 5, cfg.Pipeline.TopK)
	assert.Equal(t, "qdrant", cfg.Store.Backend)
	assert.Equal(t, "documents", cfg.Store.Collection)
	assert.Equal(t, "file", cfg.Ledger.Backend)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "nomic-embed-text", cfg.LLM.EmbeddingModel)
	assert.Equal(t, 0, cfg.Pipeline.ChunkSize)
	assert.Equal(t, "legitrag.ingest", cfg.Pipeline.IngestSubject)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LEGITRAG_PIPELINE_COMPLETION_THRESHOLD", "0.5")
	t.Setenv("LEGITRAG_STORE_BACKEND", "memory")
	t.Setenv("LEGITRAG_PIPELINE_MODE", "rules")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Pipeline.CompletionThreshold)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "rules", cfg.Pipeline.Mode)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "legitrag.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  top_k: 9\nledger:\n  backend: memory\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Pipeline.TopK)
	assert.Equal(t, "memory", cfg.Ledger.Backend)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LEGITRAG_PIPELINE_COMPLETION_THRESHOLD", "1.5")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidateCrossField(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Store.Backend = "pgvector"
	assert.ErrorContains(t, Validate(cfg), "postgres_dsn")

	cfg.Store.PostgresDSN = "postgres://localhost/legitrag"
	assert.NoError(t, Validate(cfg))
}
