package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// pingTimeout bounds every dependency ping.
const pingTimeout = 3 * time.Second

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger *zap.Logger
	checks []HealthCheck
	mu     sync.RWMutex

	checkpointDSN  string
	checkpointPing func(ctx context.Context) error
	graphReady     func() bool
}

// ServiceHealth /health 响应
type ServiceHealth struct {
	Status        string                 `json:"status"`
	Postgres      string                 `json:"postgres"`
	CheckpointDSN string                 `json:"checkpoint_dsn"`
	GraphReady    bool                   `json:"graph_ready"`
	Timestamp     time.Time              `json:"timestamp"`
	Checks        map[string]CheckResult `json:"checks,omitempty"`
}

// ProbeStatus /healthz 与 /ready 响应
type ProbeStatus struct {
	Status    string                 `json:"status"` // "healthy", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:     logger.With(zap.String("component", "health_handler")),
		graphReady: func() bool { return false },
	}
}

// SetCheckpoint 设置检查点存储的 DSN（已脱敏）与探活函数
func (h *HealthHandler) SetCheckpoint(redactedDSN string, ping func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkpointDSN = redactedDSN
	h.checkpointPing = ping
}

// SetGraphReady 设置流水线就绪判断
func (h *HealthHandler) SetGraphReady(ready func() bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ready != nil {
		h.graphReady = ready
	}
}

// RegisterCheck 注册健康检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 报告检查点数据库与流水线状态。数据库不可达时仍返回 200，
// 由 postgres 字段体现。
// @Summary 健康检查
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealth
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	dsn, ping, ready := h.checkpointDSN, h.checkpointPing, h.graphReady
	h.mu.RUnlock()

	status := ServiceHealth{
		Status:        "ok",
		Postgres:      "down",
		CheckpointDSN: dsn,
		GraphReady:    ready(),
		Timestamp:     time.Now(),
	}

	if ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		err := ping(ctx)
		cancel()
		if err == nil {
			status.Postgres = "ok"
		} else {
			h.logger.Error("checkpoint database ping failed", zap.String("dsn", dsn), zap.Error(err))
		}
	}

	status.Checks, _ = h.runChecks(r.Context())
	WriteJSON(w, http.StatusOK, status)
}

// HandleHealthz 存活探针，只检查进程是否在运行
// @Summary 存活探针
// @Tags 健康
// @Produce json
// @Success 200 {object} ProbeStatus
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ProbeStatus{Status: "healthy", Timestamp: time.Now()})
}

// HandleReady 就绪探针：流水线已初始化且所有依赖检查通过
// @Summary 就绪探针
// @Tags 健康
// @Produce json
// @Success 200 {object} ProbeStatus
// @Failure 503 {object} ProbeStatus
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	ready := h.graphReady
	h.mu.RUnlock()

	checks, allHealthy := h.runChecks(r.Context())
	if !ready() {
		checks["pipeline"] = CheckResult{Status: "fail", Message: "Graph not initialized"}
		allHealthy = false
	}

	status := ProbeStatus{Status: "healthy", Timestamp: time.Now(), Checks: checks}
	if !allHealthy {
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// HandleVersion 返回版本信息
// @Summary 版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} map[string]string
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

func (h *HealthHandler) runChecks(ctx context.Context) (map[string]CheckResult, bool) {
	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	allHealthy := true
	for _, check := range checks {
		cctx, cancel := context.WithTimeout(ctx, pingTimeout)
		start := time.Now()
		err := check.Check(cctx)
		latency := time.Since(start)
		cancel()

		result := CheckResult{Status: "pass", Latency: latency.String()}
		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			allHealthy = false
			h.logger.Warn("health check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}
		results[check.Name()] = result
	}
	return results, allHealthy
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// PingCheck 基于 ping 函数的健康检查（数据库、Redis、向量库、记忆服务）
type PingCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingCheck 创建健康检查
func NewPingCheck(name string, ping func(ctx context.Context) error) *PingCheck {
	return &PingCheck{name: name, ping: ping}
}

func (c *PingCheck) Name() string {
	return c.name
}

func (c *PingCheck) Check(ctx context.Context) error {
	return c.ping(ctx)
}
