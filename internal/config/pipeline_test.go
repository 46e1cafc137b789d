package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePipeline(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadPipelineSpec_ResolvesRelativeSourceConfigAndSchema(t *testing.T) {
	path := writePipeline(t, `schema_version: v1
source:
  kind: kafka
  driver: sarama
  config: kafka_source.yml
sinks: [stdout]
`)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "kafka_source.yml"), []byte("schema_version: v1\n"), 0o644))

	cfg, abs, err := LoadPipelineSpec(path)
	require.NoError(t, err)
	assert.Equal(t, SupportedSchema, cfg.SchemaVersion)
	assert.True(t, filepath.IsAbs(abs), "want absolute kafka config path, got %q", abs)
}

func TestLoadPipelineSpec_InvalidSchema(t *testing.T) {
	path := writePipeline(t, `schema_version: v999
sinks: [stdout]
`)
	_, _, err := LoadPipelineSpec(path)
	require.Error(t, err)
}

func TestLoadPipelineSpec_Defaults(t *testing.T) {
	path := writePipeline(t, `sinks: [stdout]
`)
	cfg, _, err := LoadPipelineSpec(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "mt103-to-mt202", cfg.Routing.DefaultKind)

	require.NotNil(t, cfg.Retry.Enabled)
	assert.True(t, *cfg.Retry.Enabled)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 1000, cfg.Retry.InitialIntervalMS)
	assert.Equal(t, 30_000, cfg.Retry.MaxIntervalMS)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, []string{"FAILED", "TIMEOUT"}, cfg.Retry.RetryableStatuses)
	require.NotNil(t, cfg.Retry.DeadLetterOnFailure)
	assert.True(t, *cfg.Retry.DeadLetterOnFailure)
	assert.Equal(t, 5000, cfg.Retry.ShutdownGraceMS)

	require.NotNil(t, cfg.Encryption.Enabled)
	assert.True(t, *cfg.Encryption.Enabled)
	assert.Equal(t, "local", cfg.Encryption.Mode)

	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestLoadPipelineSpec_ExplicitFalseSurvivesDefaults(t *testing.T) {
	path := writePipeline(t, `sinks: [stdout]
retry:
  enabled: false
  dead_letter_on_failure: false
encryption:
  enabled: false
`)
	cfg, _, err := LoadPipelineSpec(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.Retry.Enabled)
	assert.False(t, *cfg.Retry.Enabled)
	require.NotNil(t, cfg.Retry.DeadLetterOnFailure)
	assert.False(t, *cfg.Retry.DeadLetterOnFailure)
	require.NotNil(t, cfg.Encryption.Enabled)
	assert.False(t, *cfg.Encryption.Enabled)
}
