// =============================================================================
// 📦 ragflow 默认配置
// =============================================================================
// 提供所有配置项的默认值，与部署编排 (docker compose) 中的服务名保持一致
// =============================================================================
package config

import "time"

// 检查点驱动
const (
	CheckpointDriverPostgres = "postgres"
	CheckpointDriverSQLite   = "sqlite"
	CheckpointDriverRedis    = "redis"
	CheckpointDriverMemory   = "memory"
)

// 向量索引驱动
const (
	VectorDriverQdrant   = "qdrant"
	VectorDriverPgVector = "pgvector"
)

// 记忆驱动
const (
	MemoryDriverZep    = "zep"
	MemoryDriverRedis  = "redis"
	MemoryDriverMemory = "memory"
)

// DefaultSystemPrompt 默认系统提示词
const DefaultSystemPrompt = "You are a concise and reliable assistant. Use the provided context when it is relevant. " +
	"When you rely on document context, cite it with bracketed source markers such as [source]."

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Pipeline:   DefaultPipelineConfig(),
		LLM:        DefaultLLMConfig(),
		Embedding:  DefaultEmbeddingConfig(),
		Checkpoint: DefaultCheckpointConfig(),
		Database:   DefaultDatabaseConfig(),
		Redis:      DefaultRedisConfig(),
		Vector:     DefaultVectorConfig(),
		Memory:     DefaultMemoryConfig(),
		Projects:   DefaultProjectsConfig(),
		Ingest:     DefaultIngestConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        5173,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// DefaultPipelineConfig 返回默认流水线配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		StepTimeout:          30 * time.Second,
		CheckpointTimeout:    5 * time.Second,
		BestEffortCheckpoint: true,
		ResumeEnabled:        true,
		MemoryLimit:          6,
		TopK:                 4,
		SystemPrompt:         DefaultSystemPrompt,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:     "https://api.openai.com",
		Model:       "gpt-4o-mini",
		Temperature: 0.2,
		Timeout:     60 * time.Second,
	}
}

// DefaultEmbeddingConfig 返回默认向量化配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		MaxBatch:   256,
		Timeout:    30 * time.Second,
	}
}

// DefaultCheckpointConfig 返回默认检查点配置
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Driver:      CheckpointDriverPostgres,
		SQLitePath:  "ragflow.db",
		RedisPrefix: "ragflow:checkpoint",
	}
}

// DefaultDatabaseConfig 返回默认连接池配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		MaxOpenConns:        25,
		MaxIdleConns:        5,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultVectorConfig 返回默认向量索引配置
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Driver: VectorDriverQdrant,
		Qdrant: QdrantConfig{
			URL:        "http://qdrant:6333",
			Collection: "project_docs",
			Timeout:    10 * time.Second,
		},
		PgVectorTable: "document_chunks",
	}
}

// DefaultMemoryConfig 返回默认记忆配置
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Driver:          MemoryDriverZep,
		ZepURL:          "http://zep:8000",
		ZepAPIKey:       "dev",
		Timeout:         10 * time.Second,
		RedisPrefix:     "ragflow:memory",
		MaxEntries:      200,
		RegistrationTTL: time.Hour,
	}
}

// DefaultProjectsConfig 返回默认项目配置
func DefaultProjectsConfig() ProjectsConfig {
	return ProjectsConfig{
		File:    "/data/projects.json",
		DocsDir: "/data/docs",
	}
}

// DefaultIngestConfig 返回默认导入配置
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		ChunkSize:   1000,
		BatchSize:   64,
		Concurrency: 4,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
		MaxSizeMB:        10,
		MaxBackups:       3,
		MaxAgeDays:       28,
		Redact:           true,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "ragflow",
		SampleRate:   0.1,
	}
}
