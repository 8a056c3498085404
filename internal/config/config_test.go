package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	m, err := NewManager("")
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	cfg := m.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Server.MaxBatchSize)
	assert.Equal(t, 4, cfg.Server.BatchWorkers)
	assert.Equal(t, "./artifacts", m.GetModelsConfig().ArtifactDir)

	enh := m.GetEnhancementConfig()
	assert.Equal(t, 3, enh.MaxRetries)
	assert.Equal(t, time.Second, enh.BaseBackoff)
	assert.Equal(t, 8*time.Second, enh.MaxBackoff)
	assert.Equal(t, 0.3, enh.Temperature)
	assert.Equal(t, 40, enh.TopK)
	assert.Equal(t, 2000, enh.MaxOutputTokens)
	assert.Empty(t, enh.APIKey)

	assert.Equal(t, time.Hour, m.GetCacheConfig().DefaultTTL)
	assert.False(t, cfg.Records.Kafka.Enabled)
	assert.True(t, m.IsDevelopment())
	assert.False(t, m.IsProduction())
}

func TestNewManager_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MEDIRISK_SERVER_PORT", "9090")
	t.Setenv("MEDIRISK_ENHANCEMENT_MAX_RETRIES", "5")
	t.Setenv("MEDIRISK_LOGGING_LEVEL", "debug")
	t.Setenv("MEDIRISK_ENVIRONMENT", "production")

	m, err := NewManager("")
	require.NoError(t, err)

	assert.Equal(t, 9090, m.GetServerConfig().Port)
	t.Setenv("MEDIRISK_SERVER_BATCH_WORKERS", "8")
	require.NoError(t, m.Reload())
	assert.Equal(t, 8, m.GetServerConfig().BatchWorkers)
	assert.Equal(t, 5, m.GetEnhancementConfig().MaxRetries)
	assert.Equal(t, "debug", m.GetConfig().Logging.Level)
	assert.True(t, m.IsProduction())
}

func TestNewManager_GeminiKeyAlias(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "test-key")

	m, err := NewManager("")
	require.NoError(t, err)
	assert.Equal(t, "test-key", m.GetEnhancementConfig().APIKey)

	t.Setenv("MEDIRISK_ENHANCEMENT_API_KEY", "prefixed-key")
	require.NoError(t, m.Reload())
	assert.Equal(t, "prefixed-key", m.GetEnhancementConfig().APIKey)
}

func TestNewManager_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medirisk.yaml")
	content := `
server:
  port: 7070
models:
  artifact_dir: /srv/models
  domains: [cardiovascular, fetal_health]
enhancement:
  base_backoff: 250ms
  max_backoff: 2s
records:
  kafka:
    enabled: true
    brokers: [kafka-1:9092, kafka-2:9092]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	cfg := m.GetConfig()
	assert.Equal(t, path, m.ConfigFileUsed())
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/srv/models", cfg.Models.ArtifactDir)
	assert.Equal(t, []string{"cardiovascular", "fetal_health"}, cfg.Models.Domains)
	assert.Equal(t, 250*time.Millisecond, cfg.Enhancement.BaseBackoff)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Records.Kafka.Brokers)
	assert.Equal(t, "medirisk.predictions", cfg.Records.Kafka.Topic)
}

func TestNewManager_MissingExplicitFile(t *testing.T) {
	_, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestManager_Validate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"MEDIRISK_SERVER_PORT": "70000"}},
		{"bad batch size", map[string]string{"MEDIRISK_SERVER_MAX_BATCH_SIZE": "0"}},
		{"no batch workers", map[string]string{"MEDIRISK_SERVER_BATCH_WORKERS": "0"}},
		{"no retries", map[string]string{"MEDIRISK_ENHANCEMENT_MAX_RETRIES": "0"}},
		{"backoff inverted", map[string]string{"MEDIRISK_ENHANCEMENT_MAX_BACKOFF": "100ms"}},
		{"bad failure ratio", map[string]string{"MEDIRISK_ENHANCEMENT_BREAKER_FAILURE_RATIO": "1.5"}},
		{"zero attempt timeout", map[string]string{"MEDIRISK_ENHANCEMENT_ATTEMPT_TIMEOUT": "0s"}},
		{"bad log level", map[string]string{"MEDIRISK_LOGGING_LEVEL": "verbose"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			m, err := NewManager("")
			require.NoError(t, err)
			assert.Error(t, m.Validate())
		})
	}
}
