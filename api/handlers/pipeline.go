package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/BaSui01/ragflow/api"
	"github.com/BaSui01/ragflow/types"
	"github.com/BaSui01/ragflow/workflow"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 20

// Pipeline is the engine surface used by the HTTP layer. *workflow.Engine
// implements it.
type Pipeline interface {
	Invoke(ctx context.Context, state *workflow.State) (*workflow.State, error)
	Stream(ctx context.Context, state *workflow.State) (<-chan workflow.Update, error)
	ResumeStream(ctx context.Context, resumptionKey string) (<-chan workflow.Update, error)
	History(ctx context.Context, resumptionKey string, limit int) ([]*workflow.Checkpoint, error)
	Version(ctx context.Context, resumptionKey string, version int) (*workflow.Checkpoint, error)
	DeleteThread(ctx context.Context, resumptionKey string) error
}

// =============================================================================
// 💬 流水线 Handler
// =============================================================================

// PipelineHandler 处理 /ask、/chat 与检查点查询
type PipelineHandler struct {
	pipeline    atomic.Pointer[Pipeline]
	allowResume bool
	wsOrigins   []string
	logger      *zap.Logger
}

// PipelineOption 配置 PipelineHandler
type PipelineOption func(*PipelineHandler)

// WithResume 允许 /chat 通过 resume=true 继续未完成的运行
func WithResume(enabled bool) PipelineOption {
	return func(h *PipelineHandler) { h.allowResume = enabled }
}

// WithWebSocketOrigins 设置 WebSocket 允许的跨域来源模式
func WithWebSocketOrigins(patterns ...string) PipelineOption {
	return func(h *PipelineHandler) { h.wsOrigins = patterns }
}

// NewPipelineHandler 创建流水线处理器。p 可以为 nil，此时所有请求返回 503，
// 直到 SetPipeline 被调用。
func NewPipelineHandler(p Pipeline, logger *zap.Logger, opts ...PipelineOption) *PipelineHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &PipelineHandler{logger: logger.With(zap.String("component", "pipeline_handler"))}
	for _, opt := range opts {
		opt(h)
	}
	h.SetPipeline(p)
	return h
}

// SetPipeline 替换当前引擎
func (h *PipelineHandler) SetPipeline(p Pipeline) {
	if p == nil {
		h.pipeline.Store(nil)
		return
	}
	h.pipeline.Store(&p)
}

// Ready 报告引擎是否已初始化
func (h *PipelineHandler) Ready() bool {
	return h.pipeline.Load() != nil
}

func (h *PipelineHandler) engine(w http.ResponseWriter, r *http.Request) (Pipeline, bool) {
	p := h.pipeline.Load()
	if p == nil {
		WriteErrorMessage(w, r, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "Graph not initialized", h.logger)
		return nil, false
	}
	return *p, true
}

// HandleAsk 处理单轮问答
// @Summary 单轮问答
// @Tags 流水线
// @Accept json
// @Produce json
// @Param request body api.AskRequest true "问答请求"
// @Success 200 {object} api.AnswerResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /ask [post]
func (h *PipelineHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	p, ok := h.engine(w, r)
	if !ok {
		return
	}

	var req api.AskRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	state, err := api.FromAsk(req)
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}

	out, err := p.Invoke(r.Context(), state)
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, api.AnswerResponse{Answer: out.Answer})
}

// HandleChat 处理多轮对话。Accept 为 text/event-stream 时以 SSE 推送每一步
// 的更新，否则等待终止更新并返回 answer。
// @Summary 多轮对话
// @Tags 流水线
// @Accept json
// @Produce json,text/event-stream
// @Param request body api.ChatRequest true "对话请求"
// @Success 200 {object} api.AnswerResponse
// @Failure 400 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /chat [post]
func (h *PipelineHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	p, ok := h.engine(w, r)
	if !ok {
		return
	}

	var req api.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	updates, err := h.start(r.Context(), p, req)
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}

	if wantsEventStream(r) {
		sink, ok := newSSESink(w)
		if !ok {
			drain(updates)
			WriteErrorMessage(w, r, http.StatusInternalServerError, types.ErrInternalError, "streaming not supported", h.logger)
			return
		}
		h.pump(r.Context(), updates, sink)
		return
	}

	answer, err := finalAnswer(updates)
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, api.AnswerResponse{Answer: answer})
}

// HandleChatWS 在 WebSocket 上运行一次对话。客户端发送一条 ChatRequest，
// 服务端逐步推送 update 帧，最后发送 done 或 error 帧并关闭连接。
// @Summary WebSocket 对话
// @Tags 流水线
// @Security ApiKeyAuth
// @Router /chat/ws [get]
func (h *PipelineHandler) HandleChatWS(w http.ResponseWriter, r *http.Request) {
	p, ok := h.engine(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.wsOrigins})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	ctx := r.Context()
	sink := &wsSink{conn: conn}

	var req api.ChatRequest
	if err := readWSRequest(ctx, conn, &req); err != nil {
		closeWS(conn, websocket.StatusUnsupportedData, "invalid request", h.logger)
		return
	}

	updates, err := h.start(ctx, p, req)
	if err != nil {
		apiErr := ToAPIError(err)
		_ = sink.Fail(ctx, api.StreamEvent{
			ThreadID: req.ThreadID,
			Error:    &api.ErrorBody{Code: string(apiErr.Code), Message: apiErr.Message},
		})
		closeWS(conn, websocket.StatusPolicyViolation, string(apiErr.Code), h.logger)
		return
	}

	if h.pump(ctx, updates, sink) {
		closeWS(conn, websocket.StatusNormalClosure, "done", h.logger)
		return
	}
	closeWS(conn, websocket.StatusInternalError, "pipeline failed", h.logger)
}

func (h *PipelineHandler) start(ctx context.Context, p Pipeline, req api.ChatRequest) (<-chan workflow.Update, error) {
	state, err := api.FromChat(req)
	if err != nil {
		return nil, err
	}
	if req.Resume {
		if !h.allowResume {
			return nil, types.NewError(types.ErrInvalidRequest, "resume is disabled")
		}
		return p.ResumeStream(ctx, strings.TrimSpace(req.ThreadID))
	}
	return p.Stream(ctx, state)
}

// pump forwards updates to sink and reports whether the run completed. It
// keeps draining after a write failure so the run is never blocked.
func (h *PipelineHandler) pump(ctx context.Context, updates <-chan workflow.Update, sink eventSink) bool {
	var answer string
	sinkOK := true
	for u := range updates {
		ev := api.NewStreamEvent(u)
		if u.Err != nil {
			if sinkOK {
				_ = sink.Fail(ctx, ev)
			}
			return false
		}
		if u.Step == workflow.StepCommitMemory {
			answer = u.Delta.Answer
		}
		if sinkOK {
			if err := sink.Update(ctx, ev); err != nil {
				h.logger.Debug("stream client went away", zap.Error(err))
				sinkOK = false
			}
		}
	}
	if sinkOK {
		_ = sink.Done(ctx, answer)
	}
	return true
}

// finalAnswer drains updates and returns the answer of the terminal update.
func finalAnswer(updates <-chan workflow.Update) (string, error) {
	var answer string
	for u := range updates {
		if u.Err != nil {
			drain(updates)
			return "", u.Err
		}
		if u.Step == workflow.StepCommitMemory {
			answer = u.Delta.Answer
		}
	}
	if answer == "" {
		return "", types.NewError(types.ErrInternalError, "pipeline finished without an answer")
	}
	return answer, nil
}

func drain(updates <-chan workflow.Update) {
	for range updates {
	}
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// =============================================================================
// 🧵 检查点查询
// =============================================================================

// HandleListCheckpoints 列出线程的检查点，最新在前
// @Summary 检查点列表
// @Tags 检查点
// @Produce json
// @Param thread_id path string true "线程 ID"
// @Param limit query int false "最多返回条数"
// @Param state query bool false "是否包含状态快照"
// @Success 200 {object} api.CheckpointList
// @Security ApiKeyAuth
// @Router /threads/{thread_id}/checkpoints [get]
func (h *PipelineHandler) HandleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	p, ok := h.engine(w, r)
	if !ok {
		return
	}
	threadID := strings.TrimSpace(r.PathValue("thread_id"))
	if threadID == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "thread_id is required", h.logger)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be a non-negative integer", h.logger)
			return
		}
		limit = n
	}
	withState := r.URL.Query().Get("state") == "true"

	cps, err := p.History(r.Context(), threadID, limit)
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}

	out := api.CheckpointList{ThreadID: threadID, Checkpoints: make([]api.CheckpointView, 0, len(cps))}
	for _, cp := range cps {
		out.Checkpoints = append(out.Checkpoints, api.NewCheckpointView(cp, withState))
	}
	WriteJSON(w, http.StatusOK, out)
}

// HandleGetCheckpoint 返回线程的某个版本（含状态快照）
// @Summary 检查点详情
// @Tags 检查点
// @Produce json
// @Param thread_id path string true "线程 ID"
// @Param version path int true "版本号"
// @Success 200 {object} api.CheckpointView
// @Failure 404 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /threads/{thread_id}/checkpoints/{version} [get]
func (h *PipelineHandler) HandleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	p, ok := h.engine(w, r)
	if !ok {
		return
	}
	threadID := strings.TrimSpace(r.PathValue("thread_id"))
	version, err := strconv.Atoi(r.PathValue("version"))
	if threadID == "" || err != nil || version < 1 {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "invalid thread_id or version", h.logger)
		return
	}

	cp, err := p.Version(r.Context(), threadID, version)
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, api.NewCheckpointView(cp, true))
}

// HandleDeleteThread 删除线程的全部检查点
// @Summary 删除线程
// @Tags 检查点
// @Param thread_id path string true "线程 ID"
// @Success 204
// @Security ApiKeyAuth
// @Router /threads/{thread_id} [delete]
func (h *PipelineHandler) HandleDeleteThread(w http.ResponseWriter, r *http.Request) {
	p, ok := h.engine(w, r)
	if !ok {
		return
	}
	threadID := strings.TrimSpace(r.PathValue("thread_id"))
	if threadID == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "thread_id is required", h.logger)
		return
	}
	if err := p.DeleteThread(r.Context(), threadID); err != nil {
		if errors.Is(err, workflow.ErrCheckpointNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
