package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/ragflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrNothingToResume is returned when a lineage has no incomplete run.
var ErrNothingToResume = errors.New("nothing to resume")

// Run modes, used as log fields and metric labels.
const (
	ModeInvoke = "invoke"
	ModeStream = "stream"
	ModeResume = "resume"
)

// MetricsRecorder receives engine measurements.
type MetricsRecorder interface {
	ObserveStep(step, status string, duration time.Duration)
	ObserveRun(mode, status string, duration time.Duration)
	IncCheckpointFailure(step string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveStep(string, string, time.Duration) {}
func (nopMetrics) ObserveRun(string, string, time.Duration)  {}
func (nopMetrics) IncCheckpointFailure(string)               {}

// EngineConfig tunes execution.
type EngineConfig struct {
	// StepTimeout bounds every step; each step performs at most a few network calls.
	StepTimeout time.Duration `yaml:"step_timeout" json:"step_timeout"`
	// CheckpointTimeout bounds every checkpoint write.
	CheckpointTimeout time.Duration `yaml:"checkpoint_timeout" json:"checkpoint_timeout"`
	// BestEffortCheckpoint logs checkpoint failures instead of aborting the run.
	BestEffortCheckpoint bool `yaml:"best_effort_checkpoint" json:"best_effort_checkpoint"`
}

// DefaultEngineConfig returns the default execution settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		StepTimeout:          30 * time.Second,
		CheckpointTimeout:    5 * time.Second,
		BestEffortCheckpoint: true,
	}
}

// Update is emitted after every step transition in streaming mode.
type Update struct {
	ResumptionKey string   `json:"resumption_key"`
	Step          StepName `json:"step"`
	Delta         Delta    `json:"delta"`
	Version       int      `json:"version,omitempty"`
	Err           error    `json:"-"`
}

// Engine executes a compiled graph and checkpoints after every step.
//
// Steps run on a context detached from caller cancellation: once started, a
// run completes or fails as a whole.
type Engine struct {
	graph   *Graph
	store   CheckpointStore
	cfg     EngineConfig
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics MetricsRecorder
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewEngine creates an engine over a compiled graph.
func NewEngine(graph *Graph, store CheckpointStore, cfg EngineConfig, logger *zap.Logger, opts ...EngineOption) (*Engine, error) {
	if graph == nil {
		return nil, types.NewError(types.ErrPipelineNotCompiled, "graph is nil")
	}
	if store == nil {
		return nil, types.NewError(types.ErrCheckpoint, "checkpoint store is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultEngineConfig().StepTimeout
	}
	if cfg.CheckpointTimeout <= 0 {
		cfg.CheckpointTimeout = DefaultEngineConfig().CheckpointTimeout
	}

	e := &Engine{
		graph:   graph,
		store:   store,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "pipeline_engine")),
		tracer:  otel.Tracer("ragflow/workflow"),
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Invoke runs every step and returns the final state.
func (e *Engine) Invoke(ctx context.Context, state *State) (*State, error) {
	st, err := e.prepare(state)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, ModeInvoke, st, e.graph.Entry(), "", func(Update) {})
}

// Stream runs every step and emits one Update per transition. The channel is
// closed after the final step, or after a single Update carrying Err.
func (e *Engine) Stream(ctx context.Context, state *State) (<-chan Update, error) {
	st, err := e.prepare(state)
	if err != nil {
		return nil, err
	}
	return e.streamFrom(ctx, ModeStream, st, e.graph.Entry(), ""), nil
}

// Resume continues the latest incomplete run of a lineage from the step after
// the last completed one.
func (e *Engine) Resume(ctx context.Context, resumptionKey string) (*State, error) {
	cp, start, err := e.resumePoint(ctx, resumptionKey)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, ModeResume, cp.State, start, cp.ID, func(Update) {})
}

// ResumeStream is the streaming form of Resume.
func (e *Engine) ResumeStream(ctx context.Context, resumptionKey string) (<-chan Update, error) {
	cp, start, err := e.resumePoint(ctx, resumptionKey)
	if err != nil {
		return nil, err
	}
	return e.streamFrom(ctx, ModeResume, cp.State, start, cp.ID), nil
}

// Latest returns the newest checkpoint of a lineage.
func (e *Engine) Latest(ctx context.Context, resumptionKey string) (*Checkpoint, error) {
	cp, err := e.store.LoadLatest(ctx, resumptionKey)
	if err != nil {
		if errors.Is(err, ErrCheckpointNotFound) {
			return nil, err
		}
		return nil, types.NewError(types.ErrCheckpoint, "load latest checkpoint").WithCause(err)
	}
	return cp, nil
}

// History returns up to limit checkpoints of a lineage, newest first.
func (e *Engine) History(ctx context.Context, resumptionKey string, limit int) ([]*Checkpoint, error) {
	cps, err := e.store.List(ctx, resumptionKey, limit)
	if err != nil {
		return nil, types.NewError(types.ErrCheckpoint, "list checkpoints").WithCause(err)
	}
	return cps, nil
}

// Version returns one checkpoint of a lineage.
func (e *Engine) Version(ctx context.Context, resumptionKey string, version int) (*Checkpoint, error) {
	cp, err := e.store.LoadVersion(ctx, resumptionKey, version)
	if err != nil {
		if errors.Is(err, ErrCheckpointNotFound) {
			return nil, err
		}
		return nil, types.NewError(types.ErrCheckpoint, "load checkpoint version").WithCause(err)
	}
	return cp, nil
}

// DeleteThread removes a whole lineage.
func (e *Engine) DeleteThread(ctx context.Context, resumptionKey string) error {
	if err := e.store.DeleteThread(ctx, resumptionKey); err != nil {
		return types.NewError(types.ErrCheckpoint, "delete thread").WithCause(err)
	}
	e.logger.Info("thread deleted", zap.String("resumption_key", resumptionKey))
	return nil
}

// Steps returns the execution order.
func (e *Engine) Steps() []StepName {
	return e.graph.Order()
}

func (e *Engine) prepare(state *State) (*State, error) {
	if state == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "state is nil")
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	st := state.Clone()
	st.ApplyDefaults()
	return st, nil
}

func (e *Engine) resumePoint(ctx context.Context, key string) (*Checkpoint, StepName, error) {
	cp, err := e.store.LoadLatest(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCheckpointNotFound) {
			return nil, "", ErrNothingToResume
		}
		return nil, "", types.NewError(types.ErrCheckpoint, "load latest checkpoint").WithCause(err)
	}
	if !cp.Resumable() || cp.State == nil {
		return nil, "", ErrNothingToResume
	}
	start, _ := Next(cp.Step)
	cp.State.ApplyDefaults()

	e.logger.Info("resuming pipeline",
		zap.String("resumption_key", key),
		zap.Int("version", cp.Version),
		zap.String("last_step", string(cp.Step)),
		zap.String("next_step", string(start)),
	)
	return cp, start, nil
}

func (e *Engine) streamFrom(ctx context.Context, mode string, st *State, start StepName, parentID string) <-chan Update {
	// Buffered for every step plus a trailing error, so the run never blocks
	// on a consumer that went away.
	ch := make(chan Update, len(e.graph.order)+1)
	go func() {
		defer close(ch)
		_, err := e.run(ctx, mode, st, start, parentID, func(u Update) { ch <- u })
		if err != nil {
			ch <- Update{ResumptionKey: st.ResumptionKey, Err: err}
		}
	}()
	return ch
}

func (e *Engine) run(ctx context.Context, mode string, state *State, start StepName, parentID string, emit func(Update)) (*State, error) {
	ctx = context.WithoutCancel(ctx)
	ctx = types.WithThreadID(ctx, state.ResumptionKey)
	ctx, span := e.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.mode", mode),
		attribute.String("workflow.resumption_key", state.ResumptionKey),
		attribute.String("workflow.start_step", string(start)),
	))
	defer span.End()

	logger := e.logger.With(
		zap.String("mode", mode),
		zap.String("resumption_key", state.ResumptionKey),
		zap.String("session_id", state.SessionID),
		zap.String("project", state.Project),
	)
	if rid, ok := types.RequestID(ctx); ok {
		logger = logger.With(zap.String("request_id", rid))
	}

	runStart := time.Now()
	logger.Info("pipeline started", zap.String("start_step", string(start)))

	cur := state
	step := start
	for step != StepDone {
		fn, ok := e.graph.step(step)
		if !ok {
			err := types.Errorf(types.ErrPipelineNotCompiled, "no function for step %q", step)
			e.finishWithError(span, logger, mode, runStart, err)
			return nil, err
		}

		next, err := e.execStep(ctx, logger, step, fn, cur)
		if err != nil {
			if _, cpErr := e.checkpoint(ctx, logger, cur, step, CheckpointFailed, parentID, err); cpErr != nil {
				logger.Warn("failed to record failed run", zap.Error(cpErr))
			}
			e.finishWithError(span, logger, mode, runStart, err)
			return nil, err
		}

		following, _ := Next(step)
		status := CheckpointRunning
		if following == StepDone {
			status = CheckpointDone
		}

		cp, err := e.checkpoint(ctx, logger, next, step, status, parentID, nil)
		if err != nil {
			e.finishWithError(span, logger, mode, runStart, err)
			return nil, err
		}

		update := Update{
			ResumptionKey: next.ResumptionKey,
			Step:          step,
			Delta:         diffState(cur, next),
		}
		if cp != nil {
			parentID = cp.ID
			update.Version = cp.Version
		}
		if following == StepDone {
			update.Delta.Answer = next.Answer
		}
		emit(update)

		cur = next
		step = following
	}

	e.metrics.ObserveRun(mode, "ok", time.Since(runStart))
	logger.Info("pipeline completed",
		zap.Duration("duration", time.Since(runStart)),
		zap.Int("context_size", len(cur.Context)),
	)
	return cur, nil
}

func (e *Engine) execStep(ctx context.Context, logger *zap.Logger, step StepName, fn StepFunc, cur *State) (*State, error) {
	stepCtx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()

	stepCtx, span := e.tracer.Start(stepCtx, "workflow.step", trace.WithAttributes(
		attribute.String("workflow.step", string(step)),
	))
	defer span.End()

	start := time.Now()
	work := cur.Clone()
	err := fn(stepCtx, work)
	if err == nil {
		err = checkOwnership(step, cur, work)
	}
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.ObserveStep(string(step), "error", duration)
		logger.Error("step failed",
			zap.String("step", string(step)),
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, fmt.Errorf("step %s: %w", step, err)
	}

	e.metrics.ObserveStep(string(step), "ok", duration)
	logger.Debug("step completed",
		zap.String("step", string(step)),
		zap.Duration("duration", duration),
	)
	return work, nil
}

func (e *Engine) checkpoint(ctx context.Context, logger *zap.Logger, state *State, step StepName, status CheckpointStatus, parentID string, stepErr error) (*Checkpoint, error) {
	cp := &Checkpoint{
		ThreadID: state.ResumptionKey,
		ParentID: parentID,
		Step:     step,
		Status:   status,
		State:    state.Clone(),
	}
	if stepErr != nil {
		cp.Error = stepErr.Error()
	}

	cpCtx, cancel := context.WithTimeout(ctx, e.cfg.CheckpointTimeout)
	defer cancel()

	if err := e.store.Save(cpCtx, cp); err != nil {
		e.metrics.IncCheckpointFailure(string(step))
		if e.cfg.BestEffortCheckpoint || stepErr != nil {
			logger.Warn("checkpoint save failed, continuing",
				zap.String("step", string(step)),
				zap.Error(err),
			)
			return nil, nil
		}
		return nil, types.NewError(types.ErrCheckpoint, "save checkpoint").WithCause(err)
	}
	return cp, nil
}

func (e *Engine) finishWithError(span trace.Span, logger *zap.Logger, mode string, start time.Time, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.metrics.ObserveRun(mode, "error", time.Since(start))
	logger.Error("pipeline failed",
		zap.String("code", string(types.GetErrorCode(err))),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)
}

// checkOwnership enforces which fields each step may change.
func checkOwnership(step StepName, prev, next *State) error {
	violation := func(field string) error {
		return types.Errorf(types.ErrInternalError, "step %s must not modify %s", step, field)
	}

	if next.SessionID != prev.SessionID {
		return violation("session_id")
	}
	if next.Project != prev.Project {
		return violation("project")
	}
	if next.Question != prev.Question {
		return violation("question")
	}
	if next.ResumptionKey != prev.ResumptionKey {
		return violation("resumption_key")
	}
	if len(next.Messages) != len(prev.Messages) {
		return violation("messages")
	}

	switch step {
	case StepRecallMemory:
		// first writer of context, replaces it
	case StepRecallDocuments:
		if !hasPrefix(next.Context, prev.Context) {
			return violation("existing context")
		}
	default:
		if !equalStrings(next.Context, prev.Context) {
			return violation("context")
		}
	}

	if step != StepReason && next.Answer != prev.Answer {
		return violation("answer")
	}
	if step == StepReason && prev.Answer != "" && next.Answer != prev.Answer {
		return violation("answer")
	}
	return nil
}
