package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/ragflow/api/handlers"
	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/internal/cache"
	"github.com/BaSui01/ragflow/internal/database"
	"github.com/BaSui01/ragflow/internal/metrics"
	"github.com/BaSui01/ragflow/internal/migration"
	"github.com/BaSui01/ragflow/internal/telemetry"
	"github.com/BaSui01/ragflow/llm/embedding"
	"github.com/BaSui01/ragflow/llm/providers/openaicompat"
	"github.com/BaSui01/ragflow/memory"
	"github.com/BaSui01/ragflow/project"
	"github.com/BaSui01/ragflow/rag"
	"github.com/BaSui01/ragflow/rag/loader"
	"github.com/BaSui01/ragflow/workflow"
	"github.com/BaSui01/ragflow/workflow/steps"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// =============================================================================
// 🧩 依赖装配
// =============================================================================

// App 持有服务运行期的全部组件，启动时构建一次
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	registry  *prometheus.Registry
	collector *metrics.Collector
	telemetry *telemetry.Providers

	db    *database.PoolManager
	redis *cache.Manager

	store    workflow.CheckpointStore
	engine   *workflow.Engine
	ingester handlers.DocumentIngester

	health    *handlers.HealthHandler
	pipeline  *handlers.PipelineHandler
	projects  *handlers.ProjectHandler
	ingestAPI *handlers.IngestHandler

	closers []func() error
}

// NewApp 构建组件。共享连接（Postgres、Redis）或流水线初始化失败时不返回错误：
// 流水线保持未就绪，相关接口返回 503，/health 报告原因。
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, tp *telemetry.Providers) *App {
	a := &App{
		cfg:       cfg,
		logger:    logger,
		registry:  prometheus.NewRegistry(),
		telemetry: tp,
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.collector = metrics.NewCollectorWithRegistry("ragflow", a.registry, logger)

	a.health = handlers.NewHealthHandler(logger)
	a.pipeline = handlers.NewPipelineHandler(nil, logger,
		handlers.WithResume(cfg.Pipeline.ResumeEnabled),
		handlers.WithWebSocketOrigins(cfg.Server.AllowedOrigins...),
	)
	a.projects = handlers.NewProjectHandler(project.NewFileRegistry(cfg.Projects.File, logger), logger)
	a.health.SetGraphReady(a.pipeline.Ready)

	if err := a.initPipeline(ctx); err != nil {
		logger.Error("pipeline initialization failed, chat endpoints return 503", zap.Error(err))
	}
	return a
}

// initPipeline 依次初始化共享连接、检查点存储、检索组件与引擎
func (a *App) initPipeline(ctx context.Context) error {
	cfg := a.cfg

	if err := a.openShared(ctx); err != nil {
		a.health.SetCheckpoint(checkpointLabel(cfg), func(context.Context) error { return err })
		return err
	}

	store, err := a.newCheckpointStore(ctx)
	if err != nil {
		a.health.SetCheckpoint(checkpointLabel(cfg), func(context.Context) error { return err })
		return fmt.Errorf("checkpoint store: %w", err)
	}
	a.store = store
	a.health.SetCheckpoint(checkpointLabel(cfg), store.Ping)

	mem, err := a.newMemoryStore()
	if err != nil {
		return fmt.Errorf("memory store: %w", err)
	}

	embedder := newEmbedder(cfg.Embedding)
	index, err := newVectorIndex(cfg, a.db, a.logger)
	if err != nil {
		return fmt.Errorf("vector index: %w", err)
	}
	a.health.RegisterCheck(handlers.NewPingCheck("vector_"+cfg.Vector.Driver, index.Ping))

	s, err := steps.New(steps.Deps{
		Memory:   mem,
		Embedder: embedder,
		Index:    index,
		LLM:      newLLM(cfg.LLM, a.logger),
	}, stepsConfig(cfg), a.logger)
	if err != nil {
		return err
	}

	graph, err := s.Compile()
	if err != nil {
		return err
	}

	opts := []workflow.EngineOption{workflow.WithMetrics(a.collector)}
	if a.telemetry != nil {
		opts = append(opts, workflow.WithTracer(a.telemetry.Tracer("ragflow/workflow")))
	}
	engine, err := workflow.NewEngine(graph, store, engineConfig(cfg.Pipeline), a.logger, opts...)
	if err != nil {
		return err
	}
	a.engine = engine
	a.pipeline.SetPipeline(engine)

	a.ingester = &meteredIngester{
		next:      newIngester(cfg, embedder, index, a.logger),
		collector: a.collector,
	}
	a.ingestAPI = handlers.NewIngestHandler(a.ingester, cfg.Projects.DocsDir, a.logger)

	a.logger.Info("pipeline ready",
		zap.String("checkpoint_driver", cfg.Checkpoint.Driver),
		zap.String("memory_driver", cfg.Memory.Driver),
		zap.String("vector_driver", cfg.Vector.Driver),
		zap.Strings("steps", stepNames(engine.Steps())),
	)
	return nil
}

// openShared 打开 Postgres 与 Redis 连接（仅在被使用时）
func (a *App) openShared(ctx context.Context) error {
	cfg := a.cfg

	if cfg.UsesPostgres() {
		db, err := database.Open(ctx, config.CheckpointDriverPostgres, cfg.Checkpoint.DSN,
			database.PoolConfigFrom(cfg.Database), a.logger, database.WithStatsRecorder(a.collector))
		if err != nil {
			return err
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
	}

	if cfg.UsesRedis() {
		rc, err := cache.NewManager(ctx, cfg.Redis, a.logger, cache.WithHealthCheck(cfg.Database.HealthCheckInterval))
		if err != nil {
			return err
		}
		a.redis = rc
		a.closers = append(a.closers, rc.Close)
		a.health.RegisterCheck(handlers.NewPingCheck("redis", rc.Ping))
	}
	return nil
}

func (a *App) newCheckpointStore(ctx context.Context) (workflow.CheckpointStore, error) {
	cfg := a.cfg
	switch cfg.Checkpoint.Driver {
	case config.CheckpointDriverPostgres:
		if err := runMigrations(ctx, cfg.Checkpoint.DSN, a.logger); err != nil {
			return nil, err
		}
		return workflow.NewGormCheckpointStore(a.db.DB(), a.logger), nil

	case config.CheckpointDriverSQLite:
		db, err := database.Open(ctx, config.CheckpointDriverSQLite, cfg.Checkpoint.SQLitePath,
			database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, a.logger,
			database.WithStatsRecorder(a.collector))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		store := workflow.NewGormCheckpointStore(db.DB(), a.logger)
		if err := store.AutoMigrate(ctx); err != nil {
			return nil, fmt.Errorf("auto-migrate checkpoints: %w", err)
		}
		return store, nil

	case config.CheckpointDriverRedis:
		return workflow.NewRedisCheckpointStore(a.redis.Client(), cfg.Checkpoint.RedisPrefix, cfg.Checkpoint.TTL, a.logger), nil

	case config.CheckpointDriverMemory:
		a.logger.Warn("using in-memory checkpoints, lineages are lost on restart")
		return workflow.NewMemoryCheckpointStore(), nil

	default:
		return nil, fmt.Errorf("unknown checkpoint driver %q", cfg.Checkpoint.Driver)
	}
}

func (a *App) newMemoryStore() (memory.Store, error) {
	cfg := a.cfg.Memory

	var store memory.Store
	switch cfg.Driver {
	case config.MemoryDriverZep:
		store = memory.NewZepStore(memory.ZepConfig{
			BaseURL: cfg.ZepURL,
			APIKey:  cfg.ZepAPIKey,
			Timeout: cfg.Timeout,
		}, a.logger)
	case config.MemoryDriverRedis:
		store = memory.NewRedisStore(a.redis.Client(), cfg.RedisPrefix, cfg.MaxEntries, cfg.TTL, a.logger)
	case config.MemoryDriverMemory:
		store = memory.NewInMemoryStore()
	default:
		return nil, fmt.Errorf("unknown memory driver %q", cfg.Driver)
	}

	a.health.RegisterCheck(handlers.NewPingCheck("memory_"+cfg.Driver, store.Ping))
	return memory.NewCachedRegistrar(store, cfg.RegistrationTTL), nil
}

// Close 逆序释放资源
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// 🔧 组件构造
// =============================================================================

func newVectorIndex(cfg *config.Config, db *database.PoolManager, logger *zap.Logger) (rag.VectorIndex, error) {
	switch cfg.Vector.Driver {
	case config.VectorDriverQdrant:
		return rag.NewQdrantStore(rag.QdrantConfig{
			URL:        cfg.Vector.Qdrant.URL,
			APIKey:     cfg.Vector.Qdrant.APIKey,
			Collection: cfg.Vector.Qdrant.Collection,
			Timeout:    cfg.Vector.Qdrant.Timeout,
		}, logger), nil
	case config.VectorDriverPgVector:
		if db == nil {
			return nil, fmt.Errorf("pgvector requires a postgres connection")
		}
		return rag.NewPgVectorStore(db.DB(), cfg.Vector.PgVectorTable, logger)
	default:
		return nil, fmt.Errorf("unknown vector driver %q", cfg.Vector.Driver)
	}
}

func newEmbedder(cfg config.EmbeddingConfig) *embedding.OpenAIProvider {
	return embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		MaxBatch:   cfg.MaxBatch,
		Timeout:    cfg.Timeout,
	})
}

func newLLM(cfg config.LLMConfig, logger *zap.Logger) *openaicompat.Provider {
	return openaicompat.New(openaicompat.Config{
		ProviderName:  "openai",
		APIKey:        cfg.APIKey,
		BaseURL:       cfg.BaseURL,
		DefaultModel:  cfg.Model,
		FallbackModel: config.DefaultLLMConfig().Model,
		Timeout:       cfg.Timeout,
	}, logger)
}

func newIngester(cfg *config.Config, embedder rag.DocumentEmbedder, index rag.VectorIndex, logger *zap.Logger) *rag.Ingester {
	ic := rag.DefaultIngestConfig()
	ic.Dimensions = cfg.Embedding.Dimensions
	if cfg.Ingest.BatchSize > 0 {
		ic.BatchSize = cfg.Ingest.BatchSize
	}
	if cfg.Ingest.Concurrency > 0 {
		ic.Concurrency = cfg.Ingest.Concurrency
	}
	if cfg.Ingest.ChunkSize > 0 {
		ic.Chunking.ChunkSize = cfg.Ingest.ChunkSize
		ic.Chunking.ChunkOverlap = cfg.Ingest.ChunkOverlap
	}
	return rag.NewIngester(loader.NewLoaderRegistry(logger), embedder, index, ic, logger)
}

func stepsConfig(cfg *config.Config) steps.Config {
	return steps.Config{
		MemoryLimit:  cfg.Pipeline.MemoryLimit,
		TopK:         cfg.Pipeline.TopK,
		Model:        cfg.LLM.Model,
		Temperature:  steps.Temperature(float32(cfg.LLM.Temperature)),
		MaxTokens:    cfg.LLM.MaxTokens,
		SystemPrompt: cfg.Pipeline.SystemPrompt,
	}
}

func engineConfig(cfg config.PipelineConfig) workflow.EngineConfig {
	return workflow.EngineConfig{
		StepTimeout:          cfg.StepTimeout,
		CheckpointTimeout:    cfg.CheckpointTimeout,
		BestEffortCheckpoint: cfg.BestEffortCheckpoint,
	}
}

// checkpointLabel 健康检查中展示的检查点位置，Postgres DSN 已脱敏
func checkpointLabel(cfg *config.Config) string {
	switch cfg.Checkpoint.Driver {
	case config.CheckpointDriverPostgres:
		return config.RedactDSN(cfg.Checkpoint.DSN)
	case config.CheckpointDriverSQLite:
		return "sqlite://" + cfg.Checkpoint.SQLitePath
	case config.CheckpointDriverRedis:
		return "redis://" + cfg.Checkpoint.RedisPrefix
	default:
		return cfg.Checkpoint.Driver
	}
}

func stepNames(in []workflow.StepName) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

// runMigrations 应用内嵌的检查点表迁移
func runMigrations(ctx context.Context, dsn string, logger *zap.Logger) error {
	m, err := migration.NewMigratorFromURL(dsn)
	if err != nil {
		return fmt.Errorf("open migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(ctx); err != nil {
		return err
	}
	version, dirty, err := m.Version(ctx)
	if err != nil {
		return err
	}
	logger.Info("checkpoint schema ready", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// =============================================================================
// 📥 导入指标
// =============================================================================

// meteredIngester 为导入记录耗时与分块数
type meteredIngester struct {
	next      handlers.DocumentIngester
	collector *metrics.Collector
}

func (m *meteredIngester) Ingest(ctx context.Context, dir, project string) (*rag.IngestResult, error) {
	start := time.Now()
	res, err := m.next.Ingest(ctx, dir, project)
	chunks := 0
	if res != nil {
		chunks = res.Chunks
	}
	m.collector.RecordIngest(project, chunks, time.Since(start), err)
	return res, err
}
