package main

import (
	"context"
	"net/http"

	"github.com/BaSui01/ragflow/api/handlers"
	"github.com/BaSui01/ragflow/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// 🛣️ 路由
// =============================================================================

// Handler 注册全部路由并套上中间件链
func (a *App) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	// 健康检查与版本
	mux.HandleFunc("GET /health", a.health.HandleHealth)
	mux.HandleFunc("GET /healthz", a.health.HandleHealthz)
	mux.HandleFunc("GET /ready", a.health.HandleReady)
	mux.HandleFunc("GET /version", a.health.HandleVersion(Version, BuildTime, GitCommit))
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))

	// 对话
	mux.HandleFunc("POST /ask", a.pipeline.HandleAsk)
	mux.HandleFunc("POST /chat", a.pipeline.HandleChat)
	mux.HandleFunc("GET /chat/ws", a.pipeline.HandleChatWS)

	// 检查点
	mux.HandleFunc("GET /threads/{thread_id}/checkpoints", a.pipeline.HandleListCheckpoints)
	mux.HandleFunc("GET /threads/{thread_id}/checkpoints/{version}", a.pipeline.HandleGetCheckpoint)
	mux.HandleFunc("DELETE /threads/{thread_id}", a.pipeline.HandleDeleteThread)

	// 项目与导入
	mux.HandleFunc("GET /projects", a.projects.HandleList)
	mux.HandleFunc("POST /projects", a.projects.HandleCreate)
	mux.HandleFunc("POST /ingest", a.handleIngest)

	return Chain(mux,
		Recovery(a.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(a.logger),
		MetricsMiddleware(a.collector),
		OTelTracing(),
		CORS(a.cfg.Server.AllowedOrigins),
		RateLimiter(ctx, float64(a.cfg.Server.RateLimitRPS), a.cfg.Server.RateLimitBurst, a.logger),
		APIKeyAuth(a.cfg.Server.APIKey, publicPaths, a.logger),
	)
}

// handleIngest 流水线未就绪时导入不可用
func (a *App) handleIngest(w http.ResponseWriter, r *http.Request) {
	if a.ingestAPI == nil {
		handlers.WriteErrorMessage(w, r, http.StatusServiceUnavailable,
			types.ErrServiceUnavailable, "ingestion is not available", a.logger)
		return
	}
	a.ingestAPI.HandleIngest(w, r)
}
