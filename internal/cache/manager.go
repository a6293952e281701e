package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/ragflow/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 Redis 连接管理器
// =============================================================================

// Manager 持有检查点存储与记忆存储共用的 Redis 客户端
type Manager struct {
	client         *redis.Client
	addr           string
	healthInterval time.Duration
	logger         *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// Option 自定义 Manager
type Option func(*Manager)

// WithHealthCheck 设置后台探活间隔，0 表示关闭
func WithHealthCheck(interval time.Duration) Option {
	return func(m *Manager) { m.healthInterval = interval }
}

// Options 把应用配置转换为 go-redis 选项，URL 优先于 Addr
func Options(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		if cfg.Addr == "" {
			return nil, fmt.Errorf("redis addr or url is required")
		}
		opts = &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	return opts, nil
}

// NewManager 创建 Redis 客户端并探活
func NewManager(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	redisOpts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(redisOpts)

	// 测试连接
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		client: client,
		addr:   redisOpts.Addr,
		logger: logger.With(zap.String("component", "redis")),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	// 启动健康检查
	if m.healthInterval > 0 {
		go m.healthCheckLoop()
	}

	m.logger.Info("redis client initialized",
		zap.String("addr", m.addr),
		zap.Int("db", redisOpts.DB),
		zap.Int("pool_size", redisOpts.PoolSize),
	)
	return m, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Client 返回共享客户端
func (m *Manager) Client() redis.UniversalClient {
	return m.client
}

// Addr 返回连接地址，用于健康检查展示
func (m *Manager) Addr() string {
	return m.addr
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	return m.client.Ping(ctx).Err()
}

// Close 关闭客户端，重复调用安全
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	close(m.done)
	m.logger.Info("closing redis client")

	return m.client.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := m.Ping(ctx); err != nil {
				m.logger.Error("redis health check failed", zap.Error(err))
			} else {
				stats := m.client.PoolStats()
				m.logger.Debug("redis health check passed",
					zap.Uint32("total_conns", stats.TotalConns),
					zap.Uint32("idle_conns", stats.IdleConns),
				)
			}
			cancel()
		}
	}
}

// ErrClosed 客户端已关闭
var ErrClosed = fmt.Errorf("redis client is closed")
