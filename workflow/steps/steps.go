package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/memory"
	"github.com/BaSui01/ragflow/rag"
	"github.com/BaSui01/ragflow/types"
	"github.com/BaSui01/ragflow/workflow"
	"go.uber.org/zap"
)

// DefaultSystemPrompt is the reasoning instruction used when none is configured.
const DefaultSystemPrompt = "You are a concise and reliable assistant. " +
	"Use the provided context when it is relevant. " +
	"When you rely on document context, cite it with bracketed source markers such as [source]."

// QueryEmbedder embeds a single query text.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// DocumentSearcher runs similarity search over the document index.
type DocumentSearcher interface {
	Search(ctx context.Context, vector []float32, filter rag.Filter, topK int) ([]rag.Hit, error)
}

// Config tunes the steps.
type Config struct {
	MemoryLimit  int      `yaml:"memory_limit" json:"memory_limit"`
	TopK         int      `yaml:"top_k" json:"top_k"`
	Model        string   `yaml:"model" json:"model"`
	Temperature  *float32 `yaml:"temperature" json:"temperature"` // nil means 0.2; 0 is deterministic
	MaxTokens    int      `yaml:"max_tokens" json:"max_tokens"`
	SystemPrompt string   `yaml:"system_prompt" json:"system_prompt"`
}

// DefaultConfig returns six memory snippets, four documents and temperature 0.2.
func DefaultConfig() Config {
	return Config{
		MemoryLimit:  6,
		TopK:         4,
		Model:        "gpt-4o-mini",
		Temperature:  Temperature(0.2),
		SystemPrompt: DefaultSystemPrompt,
	}
}

// Temperature returns a pointer for Config.Temperature.
func Temperature(v float32) *float32 {
	return &v
}

// Deps are the collaborators the steps call.
type Deps struct {
	Memory   memory.Store
	Embedder QueryEmbedder
	Index    DocumentSearcher
	LLM      llm.Provider
}

// Steps holds the collaborators shared by every invocation.
type Steps struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates deps and fills config defaults.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Steps, error) {
	switch {
	case deps.Memory == nil:
		return nil, fmt.Errorf("steps: memory store is required")
	case deps.Embedder == nil:
		return nil, fmt.Errorf("steps: embedder is required")
	case deps.Index == nil:
		return nil, fmt.Errorf("steps: document index is required")
	case deps.LLM == nil:
		return nil, fmt.Errorf("steps: llm provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	def := DefaultConfig()
	if cfg.MemoryLimit <= 0 {
		cfg.MemoryLimit = def.MemoryLimit
	}
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Temperature == nil {
		cfg.Temperature = def.Temperature
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = def.SystemPrompt
	}

	return &Steps{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "pipeline_steps")),
	}, nil
}

// Registry binds the four steps to their state names.
func (s *Steps) Registry() *workflow.Registry {
	return workflow.NewRegistry().
		Register(workflow.StepRecallMemory, s.RecallMemory).
		Register(workflow.StepRecallDocuments, s.RecallDocuments).
		Register(workflow.StepReason, s.Reason).
		Register(workflow.StepCommitMemory, s.CommitMemory)
}

// Compile builds the pipeline graph for these steps.
func (s *Steps) Compile() (*workflow.Graph, error) {
	return workflow.Compile(s.Registry())
}

func (s *Steps) stepLogger(ctx context.Context, st *workflow.State, step workflow.StepName) *zap.Logger {
	l := s.logger.With(
		zap.String("step", string(step)),
		zap.String("session_id", st.SessionID),
		zap.String("project", st.Project),
	)
	if rid, ok := types.RequestID(ctx); ok {
		l = l.With(zap.String("request_id", rid))
	}
	return l
}

// RecallMemory replaces the context with the most recent memory snippets.
func (s *Steps) RecallMemory(ctx context.Context, st *workflow.State) error {
	logger := s.stepLogger(ctx, st, workflow.StepRecallMemory)

	if err := s.deps.Memory.EnsureSession(ctx, st.Project, st.SessionID); err != nil {
		if !types.IsCode(err, types.ErrMemoryRegistration) {
			err = types.NewError(types.ErrMemoryRegistration, "register memory session").WithCause(err)
		}
		logger.Warn("memory registration failed, continuing", zap.Error(err))
	}

	snippets, err := s.deps.Memory.QueryRecent(ctx, st.Project, st.SessionID, s.cfg.MemoryLimit)
	if err != nil {
		degraded := types.NewError(types.ErrRetrievalDegraded, "memory recall failed").WithCause(err)
		logger.Warn("memory recall degraded", zap.Error(degraded))
		snippets = nil
	}
	if len(snippets) > s.cfg.MemoryLimit {
		snippets = snippets[len(snippets)-s.cfg.MemoryLimit:]
	}

	st.Context = append(make([]string, 0, len(snippets)), snippets...)
	logger.Debug("memory recalled", zap.Int("snippets", len(snippets)))
	return nil
}

// RecallDocuments appends the top document hits for the query text. An empty
// query leaves the state unchanged.
func (s *Steps) RecallDocuments(ctx context.Context, st *workflow.State) error {
	logger := s.stepLogger(ctx, st, workflow.StepRecallDocuments)

	query := strings.TrimSpace(st.QueryText())
	if query == "" {
		logger.Debug("empty query, skipping document recall")
		return nil
	}

	hits, err := s.searchDocuments(ctx, query, st.Project)
	if err != nil {
		logger.Warn("document recall degraded", zap.Error(err))
		return nil
	}

	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		lines = append(lines, h.ContextLine())
	}
	st.AppendContext(lines...)
	logger.Debug("documents recalled", zap.Int("hits", len(hits)))
	return nil
}

func (s *Steps) searchDocuments(ctx context.Context, query, project string) ([]rag.Hit, error) {
	vec, err := s.deps.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, types.NewError(types.ErrRetrievalDegraded, "embed query").WithCause(err)
	}
	if len(vec) == 0 {
		return nil, types.NewError(types.ErrRetrievalDegraded, "embedder returned an empty vector")
	}

	hits, err := s.deps.Index.Search(ctx, vec, rag.Filter{Project: project}, s.cfg.TopK)
	if err != nil {
		return nil, types.NewError(types.ErrRetrievalDegraded, "search documents").WithCause(err)
	}

	rag.SortHits(hits)
	if len(hits) > s.cfg.TopK {
		hits = hits[:s.cfg.TopK]
	}
	return hits, nil
}

// BuildPrompt renders the user prompt from the context lines and the query.
func BuildPrompt(contextLines []string, query string) string {
	return "Context:\n" + strings.Join(contextLines, "\n") + "\n\nQuestion:\n" + query + "\n"
}

// Reason asks the model for an answer and sets it on the state.
func (s *Steps) Reason(ctx context.Context, st *workflow.State) error {
	logger := s.stepLogger(ctx, st, workflow.StepReason)

	prompt := BuildPrompt(st.Context, st.QueryText())
	user := llm.TextMessage(llm.RoleUser, prompt)
	if st.IsMultiTurn() {
		user = llm.PartsMessage(llm.RoleUser, types.TextPart(prompt))
	}

	req := &llm.ChatRequest{
		Model: s.cfg.Model,
		Messages: []llm.Message{
			llm.TextMessage(llm.RoleSystem, s.cfg.SystemPrompt),
			user,
		},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: *s.cfg.Temperature,
	}
	if tid, ok := types.TraceID(ctx); ok {
		req.TraceID = tid
	}

	resp, err := s.deps.LLM.Completion(ctx, req)
	if err != nil {
		if types.IsCode(err, types.ErrUpstreamModel) || types.IsCode(err, types.ErrUpstreamTimeout) {
			return err
		}
		return types.NewError(types.ErrUpstreamModel, "completion failed").
			WithCause(err).
			WithProvider(s.deps.LLM.Name())
	}

	answer := resp.FirstText()
	if answer == "" {
		return types.NewError(types.ErrUpstreamModel, "model returned no content").
			WithProvider(s.deps.LLM.Name())
	}
	if err := st.SetAnswer(answer); err != nil {
		return types.NewError(types.ErrInternalError, "set answer").WithCause(err)
	}

	logger.Debug("answer generated",
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return nil
}

// CommitMemory stores the question and the answer as one exchange.
func (s *Steps) CommitMemory(ctx context.Context, st *workflow.State) error {
	if st.Answer == "" {
		return types.NewError(types.ErrInternalError, "commit without answer")
	}

	err := s.deps.Memory.AppendExchange(ctx, st.Project, st.SessionID, st.QueryText(), st.Answer)
	if err != nil {
		if types.IsCode(err, types.ErrMemory) {
			return err
		}
		return types.NewError(types.ErrMemory, "commit exchange").WithCause(err)
	}

	s.stepLogger(ctx, st, workflow.StepCommitMemory).Debug("exchange committed")
	return nil
}
