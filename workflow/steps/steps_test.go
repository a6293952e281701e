package steps

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/rag"
	"github.com/BaSui01/ragflow/testutil"
	"github.com/BaSui01/ragflow/testutil/fixtures"
	"github.com/BaSui01/ragflow/testutil/mocks"
	"github.com/BaSui01/ragflow/types"
	"github.com/BaSui01/ragflow/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

type harness struct {
	memory   *mocks.MockMemoryStore
	embedder *mocks.MockEmbedder
	index    *mocks.MockVectorIndex
	llm      *mocks.MockProvider
	steps    *Steps
}

func newHarness(t *testing.T, mem *mocks.MockMemoryStore, index *mocks.MockVectorIndex, provider *mocks.MockProvider) *harness {
	t.Helper()
	h := &harness{
		memory:   mem,
		embedder: mocks.NewMockEmbedder(8),
		index:    index,
		llm:      provider,
	}
	s, err := New(Deps{Memory: mem, Embedder: h.embedder, Index: index, LLM: provider}, Config{}, zap.NewNop())
	require.NoError(t, err)
	h.steps = s
	return h
}

func (h *harness) engine(t *testing.T) (*workflow.Engine, *workflow.MemoryCheckpointStore) {
	t.Helper()
	graph, err := h.steps.Compile()
	require.NoError(t, err)
	store := workflow.NewMemoryCheckpointStore()
	engine, err := workflow.NewEngine(graph, store, workflow.DefaultEngineConfig(), zap.NewNop())
	require.NoError(t, err)
	return engine, store
}

func askState(session, project, question string) *workflow.State {
	st := workflow.NewState(session, project)
	st.Question = question
	return st
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{}, Config{}, nil)
	assert.Error(t, err)

	s, err := New(Deps{
		Memory:   mocks.NewMockMemoryStore(),
		Embedder: mocks.NewMockEmbedder(4),
		Index:    mocks.NewMockVectorIndex(),
		LLM:      mocks.NewMockProvider(),
	}, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), s.cfg)
}

func TestRecallMemory_ReplacesContext(t *testing.T) {
	h := newHarness(t, mocks.NewMockMemoryStore("A", "B"), mocks.NewMockVectorIndex(), mocks.NewMockProvider())
	st := askState("s1", "p1", "q")
	st.Context = []string{"stale"}

	require.NoError(t, h.steps.RecallMemory(context.Background(), st))

	assert.Equal(t, []string{"A", "B"}, st.Context)
	assert.Equal(t, []int{6}, h.memory.QueryLimits())
	assert.Equal(t, []string{"p1::s1"}, h.memory.Registrations())
}

func TestRecallMemory_RegistrationFailureIsNotFatal(t *testing.T) {
	mem := mocks.NewMockMemoryStore("A").WithRegisterError(errors.New("zep down"))
	h := newHarness(t, mem, mocks.NewMockVectorIndex(), mocks.NewMockProvider())
	st := askState("s1", "p1", "q")

	require.NoError(t, h.steps.RecallMemory(context.Background(), st))
	assert.Equal(t, []string{"A"}, st.Context)
}

func TestRecallMemory_QueryFailureDegradesToEmpty(t *testing.T) {
	mem := mocks.NewMockMemoryStore("A").WithQueryError(errors.New("unreachable"))
	h := newHarness(t, mem, mocks.NewMockVectorIndex(), mocks.NewMockProvider())
	st := askState("s1", "p1", "q")
	st.Context = []string{"stale"}

	require.NoError(t, h.steps.RecallMemory(context.Background(), st))
	assert.Empty(t, st.Context)
	assert.NotNil(t, st.Context)
}

func TestRecallMemory_CapsToLimit(t *testing.T) {
	mem := mocks.NewMockMemoryStore("1", "2", "3", "4", "5", "6", "7", "8")
	h := newHarness(t, mem, mocks.NewMockVectorIndex(), mocks.NewMockProvider())
	st := askState("s1", "p1", "q")

	require.NoError(t, h.steps.RecallMemory(context.Background(), st))
	assert.Equal(t, []string{"3", "4", "5", "6", "7", "8"}, st.Context)
}

func TestRecallDocuments_AppendsSortedHits(t *testing.T) {
	index := mocks.NewMockVectorIndex(
		rag.Hit{Text: "doc2", Score: 0.5},
		rag.Hit{Text: "doc1", Score: 0.9},
		rag.Hit{Text: "cited", Source: "guide.md", Score: 0.7},
	)
	h := newHarness(t, mocks.NewMockMemoryStore(), index, mocks.NewMockProvider())
	st := askState("s1", "p1", "What is X?")
	st.Context = []string{"A", "B"}

	require.NoError(t, h.steps.RecallDocuments(context.Background(), st))

	assert.Equal(t, []string{
		"A",
		"B",
		"DOC: doc1 (score=0.900)",
		"DOC: [guide.md] cited (score=0.700)",
		"DOC: doc2 (score=0.500)",
	}, st.Context)
	assert.Equal(t, []string{"What is X?"}, h.embedder.Queries())
	assert.Equal(t, []mocks.SearchCall{{Filter: rag.Filter{Project: "p1"}, TopK: 4}}, index.Searches())
}

func TestRecallDocuments_CapsToTopK(t *testing.T) {
	var hits []rag.Hit
	for i := 0; i < 7; i++ {
		hits = append(hits, rag.Hit{Text: "d", Score: float64(i) / 10})
	}
	h := newHarness(t, mocks.NewMockMemoryStore(), mocks.NewMockVectorIndex(hits...), mocks.NewMockProvider())
	st := askState("s1", "p1", "q")

	require.NoError(t, h.steps.RecallDocuments(context.Background(), st))
	assert.Len(t, st.Context, 4)
	assert.Equal(t, "DOC: d (score=0.600)", st.Context[0])
}

func TestRecallDocuments_EmptyQueryIsNoop(t *testing.T) {
	h := newHarness(t, mocks.NewMockMemoryStore(), mocks.NewMockVectorIndex(fixtures.ScoredHits()...), mocks.NewMockProvider())

	st := askState("s1", "p1", "   ")
	st.Context = []string{"A"}
	require.NoError(t, h.steps.RecallDocuments(context.Background(), st))
	assert.Equal(t, []string{"A"}, st.Context)

	// messages without any user text
	st = workflow.NewState("s1", "p1")
	st.Messages = []types.Message{fixtures.AssistantMessage("hello")}
	require.NoError(t, h.steps.RecallDocuments(context.Background(), st))
	assert.Empty(t, st.Context)

	assert.Empty(t, h.embedder.Queries())
	assert.Empty(t, h.index.Searches())
}

func TestRecallDocuments_DegradedRetrieval(t *testing.T) {
	tests := []struct {
		name     string
		embedErr error
		indexErr error
	}{
		{name: "embedding fails", embedErr: errors.New("openai down")},
		{name: "search fails", indexErr: types.NewError(types.ErrVectorIndex, "qdrant down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := mocks.NewMockVectorIndex(fixtures.ScoredHits()...).WithError(tt.indexErr)
			h := newHarness(t, mocks.NewMockMemoryStore(), index, mocks.NewMockProvider())
			h.embedder.WithError(tt.embedErr)

			st := askState("s1", "p1", "q")
			st.Context = []string{"A"}
			require.NoError(t, h.steps.RecallDocuments(context.Background(), st))
			assert.Equal(t, []string{"A"}, st.Context)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	assert.Equal(t, "Context:\nA\nB\n\nQuestion:\nWhy?\n", BuildPrompt([]string{"A", "B"}, "Why?"))
	assert.Equal(t, "Context:\n\n\nQuestion:\nWhy?\n", BuildPrompt(nil, "Why?"))
}

func TestReason_SingleShot(t *testing.T) {
	provider := mocks.NewSuccessProvider("  X is Y [doc1]  ")
	h := newHarness(t, mocks.NewMockMemoryStore(), mocks.NewMockVectorIndex(), provider)
	st := askState("s1", "p1", "What is X?")
	st.Context = []string{"A", "DOC: doc1 (score=0.900)"}

	require.NoError(t, h.steps.Reason(context.Background(), st))
	assert.Equal(t, "X is Y [doc1]", st.Answer)

	call := provider.GetLastCall()
	require.NotNil(t, call)
	req := call.Request
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.InDelta(t, 0.2, req.Temperature, 1e-6)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, DefaultSystemPrompt, req.Messages[0].Content)
	assert.Equal(t, llm.RoleUser, req.Messages[1].Role)
	assert.Equal(t, "Context:\nA\nDOC: doc1 (score=0.900)\n\nQuestion:\nWhat is X?\n", req.Messages[1].Content)
	assert.Empty(t, req.Messages[1].Parts)
}

func TestReason_MultiTurnUsesContentParts(t *testing.T) {
	provider := mocks.NewSuccessProvider("hello there")
	h := newHarness(t, mocks.NewMockMemoryStore(), mocks.NewMockVectorIndex(), provider)
	st := workflow.NewState("s1", "p1")
	st.Messages = []types.Message{fixtures.UserMessage("hi")}

	require.NoError(t, h.steps.Reason(context.Background(), st))

	user := provider.GetLastCall().Request.Messages[1]
	assert.Empty(t, user.Content)
	assert.Equal(t, []types.ContentPart{types.TextPart(BuildPrompt([]string{}, "hi"))}, user.Parts)
}

func TestReason_ZeroTemperatureIsKept(t *testing.T) {
	provider := mocks.NewSuccessProvider("ok")
	s, err := New(Deps{
		Memory:   mocks.NewMockMemoryStore(),
		Embedder: mocks.NewMockEmbedder(4),
		Index:    mocks.NewMockVectorIndex(),
		LLM:      provider,
	}, Config{Temperature: Temperature(0)}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Reason(context.Background(), askState("s1", "p1", "q")))
	assert.Zero(t, provider.GetLastCall().Request.Temperature)
}

func TestReason_Failures(t *testing.T) {
	tests := []struct {
		name     string
		provider *mocks.MockProvider
	}{
		{name: "transport error", provider: mocks.NewErrorProvider(errors.New("connection reset"))},
		{name: "upstream error", provider: mocks.NewErrorProvider(types.NewError(types.ErrUpstreamModel, "429"))},
		{name: "empty content", provider: mocks.NewSuccessProvider("   ")},
		{name: "no choices", provider: mocks.NewMockProvider().WithCompletionFunc(
			func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
				return fixtures.EmptyResponse(), nil
			})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, mocks.NewMockMemoryStore(), mocks.NewMockVectorIndex(), tt.provider)
			st := askState("s1", "p1", "q")

			err := h.steps.Reason(context.Background(), st)
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrUpstreamModel))
			assert.Empty(t, st.Answer)
			assert.Equal(t, 1, tt.provider.GetCallCount())
		})
	}
}

func TestReason_PartsResponse(t *testing.T) {
	provider := mocks.NewMockProvider().WithCompletionFunc(func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return fixtures.PartsResponse("X ", "is Y"), nil
	})
	h := newHarness(t, mocks.NewMockMemoryStore(), mocks.NewMockVectorIndex(), provider)
	st := askState("s1", "p1", "q")

	require.NoError(t, h.steps.Reason(context.Background(), st))
	assert.Equal(t, "X is Y", st.Answer)
}

func TestCommitMemory(t *testing.T) {
	mem := mocks.NewMockMemoryStore()
	h := newHarness(t, mem, mocks.NewMockVectorIndex(), mocks.NewMockProvider())
	st := askState("s1", "p1", "What is X?")
	st.Answer = "X is Y"

	require.NoError(t, h.steps.CommitMemory(context.Background(), st))
	assert.Equal(t, []mocks.Exchange{{Project: "p1", SessionID: "s1", User: "What is X?", Assistant: "X is Y"}}, mem.Exchanges())
}

func TestCommitMemory_Errors(t *testing.T) {
	mem := mocks.NewMockMemoryStore().WithAppendError(errors.New("write failed"))
	h := newHarness(t, mem, mocks.NewMockVectorIndex(), mocks.NewMockProvider())
	st := askState("s1", "p1", "q")

	err := h.steps.CommitMemory(context.Background(), st)
	assert.True(t, types.IsCode(err, types.ErrInternalError))

	st.Answer = "a"
	err = h.steps.CommitMemory(context.Background(), st)
	assert.True(t, types.IsCode(err, types.ErrMemory))
}

func TestPipeline_ContextRoundTrip(t *testing.T) {
	provider := mocks.NewSuccessProvider("answer")
	h := newHarness(t, mocks.NewMockMemoryStore("A", "B"), mocks.NewMockVectorIndex(fixtures.ScoredHits()...), provider)
	engine, _ := h.engine(t)

	out, err := engine.Invoke(testutil.TestContext(t), askState("s1", "p1", "q"))
	require.NoError(t, err)

	want := "A\nB\nDOC: doc1 (score=0.900)\nDOC: doc2 (score=0.500)"
	assert.Equal(t, want, strings.Join(out.Context, "\n"))
	assert.Contains(t, provider.GetLastCall().Request.Messages[1].Content, "Context:\n"+want+"\n\n")
}

func TestPipeline_EndToEndAsk(t *testing.T) {
	mem := mocks.NewMockMemoryStore()
	h := newHarness(t, mem, mocks.NewMockVectorIndex(fixtures.ScoredHits()...), mocks.NewSuccessProvider("X is Y [doc1]"))
	engine, store := h.engine(t)

	out, err := engine.Invoke(testutil.TestContext(t), askState("s1", "p1", "What is X?"))
	require.NoError(t, err)

	assert.Equal(t, "X is Y [doc1]", out.Answer)
	assert.Equal(t, []mocks.Exchange{{Project: "p1", SessionID: "s1", User: "What is X?", Assistant: "X is Y [doc1]"}}, mem.Exchanges())

	latest, err := store.LoadLatest(context.Background(), workflow.DefaultResumptionKey)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepCommitMemory, latest.Step)
	assert.Equal(t, workflow.CheckpointDone, latest.Status)
	assert.Equal(t, 4, latest.Version)
}

func TestPipeline_MultiTurnStream(t *testing.T) {
	mem := mocks.NewMockMemoryStore("earlier")
	provider := mocks.NewSuccessProvider("hello!")
	h := newHarness(t, mem, mocks.NewMockVectorIndex(fixtures.ScoredHits()...), provider)
	engine, _ := h.engine(t)

	st := workflow.NewState("s1", "p1")
	st.Messages = []types.Message{fixtures.UserMessage("hi")}
	st.ResumptionKey = "thread-1"

	ch, err := engine.Stream(testutil.TestContext(t), st)
	require.NoError(t, err)
	updates := testutil.CollectUpdates(t, ch, 5*time.Second)

	require.Len(t, updates, 4)
	for _, u := range updates {
		assert.NoError(t, u.Err)
		assert.Equal(t, "thread-1", u.ResumptionKey)
	}
	assert.Equal(t, workflow.StepCommitMemory, updates[3].Step)
	assert.Equal(t, "hello!", updates[3].Delta.Answer)

	assert.Equal(t, []string{"hi"}, h.embedder.Queries())
	user := provider.GetLastCall().Request.Messages[1]
	require.Len(t, user.Parts, 1)
	assert.True(t, strings.HasSuffix(user.Parts[0].Text, "Question:\nhi\n"))
	assert.Equal(t, []mocks.Exchange{{Project: "p1", SessionID: "s1", User: "hi", Assistant: "hello!"}}, mem.Exchanges())
}

func TestPipeline_ImageOnlyTurnUsesOlderQuestion(t *testing.T) {
	mem := mocks.NewMockMemoryStore()
	provider := mocks.NewSuccessProvider("It is Paris.")
	h := newHarness(t, mem, mocks.NewMockVectorIndex(fixtures.ScoredHits()...), provider)
	engine, _ := h.engine(t)

	st := workflow.NewState("s1", "p1")
	st.Messages = []types.Message{
		fixtures.UserMessage("older question"),
		fixtures.AssistantMessage("answer"),
		{Role: types.RoleUser, Content: []types.ContentPart{{Type: types.ContentImage, ImageURL: "https://example.com/a.png"}}},
	}
	st.ResumptionKey = "thread-img"

	out, err := engine.Invoke(testutil.TestContext(t), st)
	require.NoError(t, err)
	assert.Equal(t, "It is Paris.", out.Answer)

	assert.Equal(t, []string{"older question"}, h.embedder.Queries())
	assert.Len(t, h.index.Searches(), 1)
	user := provider.GetLastCall().Request.Messages[1]
	require.Len(t, user.Parts, 1)
	assert.True(t, strings.HasSuffix(user.Parts[0].Text, "Question:\nolder question\n"))
	assert.Equal(t, []mocks.Exchange{{Project: "p1", SessionID: "s1", User: "older question", Assistant: "It is Paris."}}, mem.Exchanges())
}

func TestPipeline_ModelFailureSkipsCommit(t *testing.T) {
	mem := mocks.NewMockMemoryStore("A")
	h := newHarness(t, mem, mocks.NewMockVectorIndex(), mocks.NewErrorProvider(errors.New("boom")))
	engine, _ := h.engine(t)

	_, err := engine.Invoke(testutil.TestContext(t), askState("s1", "p1", "q"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUpstreamModel))
	assert.Empty(t, mem.Exchanges())
}

func TestPipeline_DegradedRetrievalStillAnswers(t *testing.T) {
	mem := mocks.NewMockMemoryStore().WithQueryError(errors.New("zep down"))
	index := mocks.NewMockVectorIndex().WithError(errors.New("qdrant down"))
	h := newHarness(t, mem, index, mocks.NewSuccessProvider("best effort"))
	engine, _ := h.engine(t)

	out, err := engine.Invoke(testutil.TestContext(t), askState("s1", "p1", "q"))
	require.NoError(t, err)
	assert.Equal(t, "best effort", out.Answer)
	assert.Empty(t, out.Context)
	assert.Len(t, mem.Exchanges(), 1)
}

func TestPipeline_TwoRunsCommitTwice(t *testing.T) {
	mem := mocks.NewMockMemoryStore()
	h := newHarness(t, mem, mocks.NewMockVectorIndex(), mocks.NewSuccessProvider("same"))
	engine, _ := h.engine(t)

	for i := 0; i < 2; i++ {
		_, err := engine.Invoke(testutil.TestContext(t), askState("s1", "p1", "q"))
		require.NoError(t, err)
	}
	assert.Len(t, mem.Exchanges(), 2)
}

func TestPipeline_InvalidRequestMakesNoCalls(t *testing.T) {
	mem := mocks.NewMockMemoryStore()
	provider := mocks.NewMockProvider()
	h := newHarness(t, mem, mocks.NewMockVectorIndex(), provider)
	engine, _ := h.engine(t)

	_, err := engine.Invoke(testutil.TestContext(t), askState("", "p1", "x"))
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
	assert.Zero(t, mem.CallCount())
	assert.Zero(t, provider.GetCallCount())
	assert.Empty(t, h.embedder.Queries())
}

func TestRecallDocuments_ContextOrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		memSnippets := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 0, 6).Draw(t, "memory")
		scores := rapid.SliceOfN(rapid.Float64Range(0, 1), 0, 10).Draw(t, "scores")

		hits := make([]rag.Hit, len(scores))
		for i, s := range scores {
			hits[i] = rag.Hit{Text: "d", Score: s}
		}

		s, err := New(Deps{
			Memory:   mocks.NewMockMemoryStore(memSnippets...),
			Embedder: mocks.NewMockEmbedder(4),
			Index:    mocks.NewMockVectorIndex(hits...),
			LLM:      mocks.NewMockProvider(),
		}, Config{}, nil)
		if err != nil {
			t.Fatal(err)
		}

		st := askState("s", "p", "q")
		ctx := context.Background()
		if err := s.RecallMemory(ctx, st); err != nil {
			t.Fatal(err)
		}
		if err := s.RecallDocuments(ctx, st); err != nil {
			t.Fatal(err)
		}

		if len(st.Context) > len(memSnippets)+4 {
			t.Fatalf("context grew by more than top-k: %d", len(st.Context))
		}
		for i, m := range memSnippets {
			if st.Context[i] != m {
				t.Fatalf("memory prefix broken at %d", i)
			}
		}
		docs := st.Context[len(memSnippets):]
		for i := 1; i < len(docs); i++ {
			if docs[i-1] < docs[i] {
				// same text and fixed-width scores sort lexically like numbers
				t.Fatalf("documents not in descending score order: %q before %q", docs[i-1], docs[i])
			}
		}
	})
}
