package api

import (
	"time"

	"github.com/BaSui01/ragflow/project"
	"github.com/BaSui01/ragflow/types"
	"github.com/BaSui01/ragflow/workflow"
)

// =============================================================================
// 💬 Pipeline requests
// =============================================================================

// AskRequest is a single-shot question.
// @Description 单轮问答请求
type AskRequest struct {
	// 问题文本
	Question string `json:"question" validate:"required,max=8000" example:"What is X?"`
	// 长期记忆会话 ID
	SessionID string `json:"session_id" validate:"required,max=255" example:"s1"`
	// 项目命名空间，缺省为 default
	Project string `json:"project,omitempty" validate:"max=255" example:"p1"`
	// 可选的检查点线程，缺省为 default
	ThreadID string `json:"thread_id,omitempty" validate:"max=255"`
}

// ChatRequest is a multi-turn chat invocation.
// @Description 多轮对话请求
type ChatRequest struct {
	// 对话历史，最新一轮在最后
	Messages []types.Message `json:"messages" validate:"required_without=Resume,dive"`
	// 长期记忆会话 ID
	SessionID string `json:"session_id" validate:"required_without=Resume,max=255"`
	// 项目命名空间
	Project string `json:"project,omitempty" validate:"max=255"`
	// 检查点线程 ID（恢复键）
	ThreadID string `json:"thread_id" validate:"required,max=255"`
	// 从该线程最近一次未完成的运行继续
	Resume bool `json:"resume,omitempty"`
}

// AnswerResponse carries the final answer.
// @Description 回答响应
type AnswerResponse struct {
	Answer string `json:"answer" example:"X is Y [doc1]"`
}

// StreamEvent is one step update sent over SSE or WebSocket.
// @Description 流水线单步更新
type StreamEvent struct {
	ThreadID string         `json:"thread_id"`
	Step     string         `json:"step,omitempty"`
	Version  int            `json:"version,omitempty"`
	Delta    workflow.Delta `json:"delta"`
	Error    *ErrorBody     `json:"error,omitempty"`
}

// ErrorBody is the error payload of a stream event.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewStreamEvent converts an engine update.
func NewStreamEvent(u workflow.Update) StreamEvent {
	ev := StreamEvent{
		ThreadID: u.ResumptionKey,
		Step:     string(u.Step),
		Version:  u.Version,
		Delta:    u.Delta,
	}
	if u.Err != nil {
		code := types.GetErrorCode(u.Err)
		if code == "" {
			code = types.ErrInternalError
		}
		ev.Error = &ErrorBody{Code: string(code), Message: u.Err.Error()}
	}
	return ev
}

// =============================================================================
// 🧵 Checkpoint inspection
// =============================================================================

// CheckpointView is the public projection of a checkpoint.
// @Description 检查点快照
type CheckpointView struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"thread_id"`
	Version   int             `json:"version"`
	ParentID  string          `json:"parent_id,omitempty"`
	Step      string          `json:"step"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	State     *workflow.State `json:"state,omitempty"`
}

// NewCheckpointView converts a checkpoint. The state is included only when
// withState is true.
func NewCheckpointView(cp *workflow.Checkpoint, withState bool) CheckpointView {
	v := CheckpointView{
		ID:        cp.ID,
		ThreadID:  cp.ThreadID,
		Version:   cp.Version,
		ParentID:  cp.ParentID,
		Step:      string(cp.Step),
		Status:    string(cp.Status),
		Error:     cp.Error,
		CreatedAt: cp.CreatedAt,
	}
	if withState {
		v.State = cp.State
	}
	return v
}

// CheckpointList is the response of the lineage listing.
type CheckpointList struct {
	ThreadID    string           `json:"thread_id"`
	Checkpoints []CheckpointView `json:"checkpoints"`
}

// =============================================================================
// 📁 Projects and ingestion
// =============================================================================

// ProjectRequest creates a project.
// @Description 创建项目请求
type ProjectRequest struct {
	Name  string `json:"name" validate:"required,max=255" example:"p1"`
	Color string `json:"color" validate:"required,max=32" example:"#4f46e5"`
}

// ProjectList is the response of GET /projects.
type ProjectList struct {
	Projects []project.Project `json:"projects"`
}

// OKResponse acknowledges a write.
type OKResponse struct {
	OK bool `json:"ok"`
}

// IngestRequest starts an ingestion run.
// @Description 文档导入请求
type IngestRequest struct {
	Project string `json:"project,omitempty" validate:"max=255" example:"p1"`
}

// IngestResponse reports an ingestion run.
type IngestResponse struct {
	Status     string `json:"status"`
	Chunks     int    `json:"chunks"`
	Documents  int    `json:"documents"`
	Project    string `json:"project"`
	DurationMS int64  `json:"duration_ms"`
}
