package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, PipelineConfig{}, cfg.Pipeline)
	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, EmbeddingConfig{}, cfg.Embedding)
	assert.NotEqual(t, CheckpointConfig{}, cfg.Checkpoint)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, ProjectsConfig{}, cfg.Projects)
	assert.NotEqual(t, IngestConfig{}, cfg.Ingest)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 5173, cfg.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, 20, cfg.RateLimitRPS)
	assert.Equal(t, 40, cfg.RateLimitBurst)
}

func TestDefaultPipelineConfig(t *testing.T) {
	cfg := DefaultPipelineConfig()
	assert.Equal(t, 30*time.Second, cfg.StepTimeout)
	assert.True(t, cfg.BestEffortCheckpoint)
	assert.True(t, cfg.ResumeEnabled)
	assert.Equal(t, 6, cfg.MemoryLimit)
	assert.Equal(t, 4, cfg.TopK)
	assert.Equal(t, DefaultSystemPrompt, cfg.SystemPrompt)
}

func TestDefaultModelConfigs(t *testing.T) {
	llm := DefaultLLMConfig()
	assert.Equal(t, "gpt-4o-mini", llm.Model)
	assert.InDelta(t, 0.2, llm.Temperature, 1e-9)
	assert.Equal(t, "https://api.openai.com", llm.BaseURL)

	emb := DefaultEmbeddingConfig()
	assert.Equal(t, "text-embedding-3-small", emb.Model)
	assert.Equal(t, 1536, emb.Dimensions)
}

func TestDefaultStorageConfigs(t *testing.T) {
	cp := DefaultCheckpointConfig()
	assert.Equal(t, CheckpointDriverPostgres, cp.Driver)
	assert.Empty(t, cp.DSN)

	vec := DefaultVectorConfig()
	assert.Equal(t, VectorDriverQdrant, vec.Driver)
	assert.Equal(t, "http://qdrant:6333", vec.Qdrant.URL)
	assert.Equal(t, "project_docs", vec.Qdrant.Collection)

	mem := DefaultMemoryConfig()
	assert.Equal(t, MemoryDriverZep, mem.Driver)
	assert.Equal(t, "http://zep:8000", mem.ZepURL)

	projects := DefaultProjectsConfig()
	assert.Equal(t, "/data/projects.json", projects.File)

	ingest := DefaultIngestConfig()
	assert.Equal(t, 1000, ingest.ChunkSize)
	assert.Zero(t, ingest.ChunkOverlap)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 3, cfg.MaxBackups)
	assert.True(t, cfg.Redact)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "ragflow", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}
