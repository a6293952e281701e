// =============================================================================
// 📦 ragflow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + .env 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvFiles(".env").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 部署环境变量 (OPENAI_API_KEY 等) → RAGFLOW_ 前缀变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 ragflow 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Pipeline 流水线执行与步骤配置
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// LLM 对话模型配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Embedding 向量化模型配置
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// Checkpoint 检查点存储配置
	Checkpoint CheckpointConfig `yaml:"checkpoint" env:"CHECKPOINT"`

	// Database 连接池配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis 配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Vector 向量索引配置
	Vector VectorConfig `yaml:"vector" env:"VECTOR"`

	// Memory 长期记忆配置
	Memory MemoryConfig `yaml:"memory" env:"MEMORY"`

	// Projects 项目注册表与文档目录
	Projects ProjectsConfig `yaml:"projects" env:"PROJECTS"`

	// Ingest 文档导入配置
	Ingest IngestConfig `yaml:"ingest" env:"INGEST"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时（需覆盖一次完整的流式调用）
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 空闲连接超时
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// API Key，为空时不鉴权
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 每个客户端每秒请求数，0 表示不限流
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// WebSocket 允许的 Origin 模式
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// PipelineConfig 流水线配置
type PipelineConfig struct {
	// 单步超时
	StepTimeout time.Duration `yaml:"step_timeout" env:"STEP_TIMEOUT"`
	// 检查点写入超时
	CheckpointTimeout time.Duration `yaml:"checkpoint_timeout" env:"CHECKPOINT_TIMEOUT"`
	// 检查点写入失败时仅记录日志
	BestEffortCheckpoint bool `yaml:"best_effort_checkpoint" env:"BEST_EFFORT_CHECKPOINT"`
	// 允许 /chat 通过 resume 续跑未完成的线程
	ResumeEnabled bool `yaml:"resume_enabled" env:"RESUME_ENABLED"`
	// 召回的记忆条数
	MemoryLimit int `yaml:"memory_limit" env:"MEMORY_LIMIT"`
	// 召回的文档条数
	TopK int `yaml:"top_k" env:"TOP_K"`
	// 系统提示词
	SystemPrompt string `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
}

// LLMConfig 对话模型配置（OpenAI 兼容接口）
type LLMConfig struct {
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 最大输出 Token 数，0 表示不限制
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// EmbeddingConfig 向量化配置，APIKey/BaseURL 为空时沿用 LLM 配置
type EmbeddingConfig struct {
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Model      string        `yaml:"model" env:"MODEL"`
	Dimensions int           `yaml:"dimensions" env:"DIMENSIONS"`
	MaxBatch   int           `yaml:"max_batch" env:"MAX_BATCH"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// CheckpointConfig 检查点存储配置
type CheckpointConfig struct {
	// 驱动: postgres, sqlite, redis, memory
	Driver string `yaml:"driver" env:"DRIVER"`
	// Postgres DSN，为空时按部署环境变量推导
	DSN string `yaml:"dsn" env:"DSN"`
	// SQLite 文件路径
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	// Redis 键前缀
	RedisPrefix string `yaml:"redis_prefix" env:"REDIS_PREFIX"`
	// Redis 检查点过期时间，0 表示永不过期
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// DatabaseConfig 数据库连接池配置
type DatabaseConfig struct {
	// 最大打开连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 连接最大空闲时间
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
	// 健康检查间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 连接 URL（redis://...），优先于 Addr
	URL string `yaml:"url" env:"URL"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// VectorConfig 向量索引配置
type VectorConfig struct {
	// 驱动: qdrant, pgvector
	Driver string `yaml:"driver" env:"DRIVER"`
	// Qdrant 配置
	Qdrant QdrantConfig `yaml:"qdrant" env:"QDRANT"`
	// pgvector 表名
	PgVectorTable string `yaml:"pgvector_table" env:"PGVECTOR_TABLE"`
}

// QdrantConfig Qdrant REST 配置
type QdrantConfig struct {
	// REST 地址
	URL string `yaml:"url" env:"URL"`
	// API Key（可选）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 集合名
	Collection string `yaml:"collection" env:"COLLECTION"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// MemoryConfig 长期记忆配置
type MemoryConfig struct {
	// 驱动: zep, redis, memory
	Driver string `yaml:"driver" env:"DRIVER"`
	// Zep 地址
	ZepURL string `yaml:"zep_url" env:"ZEP_URL"`
	// Zep API Key
	ZepAPIKey string `yaml:"zep_api_key" env:"ZEP_API_KEY"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Redis 键前缀
	RedisPrefix string `yaml:"redis_prefix" env:"REDIS_PREFIX"`
	// Redis 每个会话保留的最大条数
	MaxEntries int `yaml:"max_entries" env:"MAX_ENTRIES"`
	// Redis 会话过期时间，0 表示永不过期
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 会话注册结果的缓存时间
	RegistrationTTL time.Duration `yaml:"registration_ttl" env:"REGISTRATION_TTL"`
}

// ProjectsConfig 项目配置
type ProjectsConfig struct {
	// 项目注册表 JSON 文件
	File string `yaml:"file" env:"FILE"`
	// 待导入的文档目录
	DocsDir string `yaml:"docs_dir" env:"DOCS_DIR"`
}

// IngestConfig 文档导入配置
type IngestConfig struct {
	ChunkSize    int `yaml:"chunk_size" env:"CHUNK_SIZE"`
	ChunkOverlap int `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`
	BatchSize    int `yaml:"batch_size" env:"BATCH_SIZE"`
	Concurrency  int `yaml:"concurrency" env:"CONCURRENCY"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径（stdout, stderr 或文件路径，文件按大小滚动）
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
	// 单个日志文件大小上限 (MB)
	MaxSizeMB int `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	// 保留的旧日志文件数
	MaxBackups int `yaml:"max_backups" env:"MAX_BACKUPS"`
	// 旧日志文件保留天数
	MaxAgeDays int `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	// 日志中的密钥脱敏
	Redact bool `yaml:"redact" env:"REDACT"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	envFiles   []string
	validators []func(*Config) error

	dotenv map[string]string
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "RAGFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithEnvFiles 设置 .env 文件，进程环境变量优先于文件中的同名变量
func (l *Loader) WithEnvFiles(paths ...string) *Loader {
	l.envFiles = append(l.envFiles, paths...)
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 读取 .env 文件（不修改进程环境）
	if err := l.loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}

	// 4. 部署环境变量 (OPENAI_API_KEY, APP_PORT ...)
	if err := l.applyDeploymentEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load deployment env: %w", err)
	}

	// 5. RAGFLOW_ 前缀变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 6. 推导未显式配置的检查点 DSN
	if cfg.Checkpoint.DSN == "" {
		cfg.Checkpoint.DSN = ResolveCheckpointDSN(l.getenv)
	}

	// 7. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadEnvFiles 读取存在的 .env 文件，缺失的文件被忽略
func (l *Loader) loadEnvFiles() error {
	l.dotenv = make(map[string]string)
	for _, path := range l.envFiles {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		values, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		for k, v := range values {
			if _, seen := l.dotenv[k]; !seen {
				l.dotenv[k] = v
			}
		}
	}
	return nil
}

// getenv 先查进程环境，再查 .env 文件，空值视为未设置
func (l *Loader) getenv(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return l.dotenv[key]
}

// deploymentEnv 将部署脚本使用的变量名映射到配置字段
func deploymentEnv(cfg *Config) map[string]reflect.Value {
	return map[string]reflect.Value{
		"OPENAI_API_KEY":    reflect.ValueOf(&cfg.LLM.APIKey).Elem(),
		"OPENAI_BASE_URL":   reflect.ValueOf(&cfg.LLM.BaseURL).Elem(),
		"APP_PORT":          reflect.ValueOf(&cfg.Server.HTTPPort).Elem(),
		"APP_API_KEY":       reflect.ValueOf(&cfg.Server.APIKey).Elem(),
		"ZEP_API_URL":       reflect.ValueOf(&cfg.Memory.ZepURL).Elem(),
		"ZEP_API_KEY":       reflect.ValueOf(&cfg.Memory.ZepAPIKey).Elem(),
		"QDRANT_URL":        reflect.ValueOf(&cfg.Vector.Qdrant.URL).Elem(),
		"QDRANT_COLLECTION": reflect.ValueOf(&cfg.Vector.Qdrant.Collection).Elem(),
		"PROJECTS_FILE":     reflect.ValueOf(&cfg.Projects.File).Elem(),
		"DOCS_DIR":          reflect.ValueOf(&cfg.Projects.DocsDir).Elem(),
		"REDIS_URL":         reflect.ValueOf(&cfg.Redis.URL).Elem(),
	}
}

// applyDeploymentEnv 应用部署环境变量
func (l *Loader) applyDeploymentEnv(cfg *Config) error {
	for key, field := range deploymentEnv(cfg) {
		value := l.getenv(key)
		if value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	// 检查点 DSN: CHECKPOINT_PG_DSN 优先于 POSTGRES_DSN
	for _, key := range []string{"CHECKPOINT_PG_DSN", "POSTGRES_DSN"} {
		if dsn := strings.TrimSpace(l.getenv(key)); dsn != "" {
			cfg.Checkpoint.DSN = dsn
			break
		}
	}
	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := l.getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).WithEnvFiles(".env").Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Pipeline.StepTimeout <= 0 {
		errs = append(errs, "pipeline.step_timeout must be positive")
	}
	if c.Pipeline.MemoryLimit <= 0 {
		errs = append(errs, "pipeline.memory_limit must be positive")
	}
	if c.Pipeline.TopK <= 0 {
		errs = append(errs, "pipeline.top_k must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm.temperature must be between 0 and 2")
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, "embedding.dimensions must be positive")
	}

	switch c.Checkpoint.Driver {
	case CheckpointDriverPostgres:
		if c.Checkpoint.DSN == "" {
			errs = append(errs, "checkpoint.dsn is required for postgres")
		}
	case CheckpointDriverSQLite:
		if c.Checkpoint.SQLitePath == "" {
			errs = append(errs, "checkpoint.sqlite_path is required for sqlite")
		}
	case CheckpointDriverRedis, CheckpointDriverMemory:
	default:
		errs = append(errs, fmt.Sprintf("unknown checkpoint driver %q", c.Checkpoint.Driver))
	}

	switch c.Vector.Driver {
	case VectorDriverQdrant:
		if c.Vector.Qdrant.URL == "" {
			errs = append(errs, "vector.qdrant.url is required")
		}
	case VectorDriverPgVector:
		if c.Checkpoint.DSN == "" {
			errs = append(errs, "pgvector requires a postgres dsn")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown vector driver %q", c.Vector.Driver))
	}

	switch c.Memory.Driver {
	case MemoryDriverZep:
		if c.Memory.ZepURL == "" {
			errs = append(errs, "memory.zep_url is required")
		}
	case MemoryDriverRedis, MemoryDriverMemory:
	default:
		errs = append(errs, fmt.Sprintf("unknown memory driver %q", c.Memory.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// UsesRedis 报告是否有组件需要 Redis 连接
func (c *Config) UsesRedis() bool {
	return c.Checkpoint.Driver == CheckpointDriverRedis || c.Memory.Driver == MemoryDriverRedis
}

// UsesPostgres 报告是否有组件需要 Postgres 连接
func (c *Config) UsesPostgres() bool {
	return c.Checkpoint.Driver == CheckpointDriverPostgres || c.Vector.Driver == VectorDriverPgVector
}
