package api

import (
	"testing"

	"github.com/BaSui01/ragflow/types"
	"github.com/BaSui01/ragflow/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFromAsk(t *testing.T) {
	st, err := FromAsk(AskRequest{Question: " What is X? ", SessionID: "s1", Project: "p1"})
	require.NoError(t, err)

	assert.Equal(t, "What is X?", st.Question)
	assert.Equal(t, "s1", st.SessionID)
	assert.Equal(t, "p1", st.Project)
	assert.Equal(t, workflow.DefaultResumptionKey, st.ResumptionKey)
	assert.Equal(t, []string{}, st.Context)
	assert.Empty(t, st.Answer)
	assert.Empty(t, st.Messages)
}

func TestFromAsk_Defaults(t *testing.T) {
	st, err := FromAsk(AskRequest{Question: "q", SessionID: "s1", ThreadID: "t-9"})
	require.NoError(t, err)
	assert.Equal(t, workflow.DefaultProject, st.Project)
	assert.Equal(t, "t-9", st.ResumptionKey)
}

func TestFromAsk_Invalid(t *testing.T) {
	tests := []struct {
		name string
		req  AskRequest
		msg  string
	}{
		{name: "missing session", req: AskRequest{Question: "x"}, msg: "session_id is required"},
		{name: "blank session", req: AskRequest{Question: "x", SessionID: "   "}, msg: "session_id is required"},
		{name: "missing question", req: AskRequest{SessionID: "s1"}, msg: "question is required"},
		{name: "blank question", req: AskRequest{SessionID: "s1", Question: "  \n"}, msg: "question is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := FromAsk(tt.req)
			require.Error(t, err)
			assert.Nil(t, st)
			assert.True(t, types.IsCode(err, types.ErrInvalidRequest))

			e, ok := types.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.msg, e.Message)
		})
	}
}

func TestFromChat(t *testing.T) {
	msgs := []types.Message{
		types.NewTextMessage(types.RoleUser, "first"),
		types.NewTextMessage(types.RoleAssistant, "reply"),
		types.NewTextMessage(types.RoleUser, "hi"),
	}
	st, err := FromChat(ChatRequest{Messages: msgs, SessionID: "s1", ThreadID: "t1"})
	require.NoError(t, err)

	assert.Equal(t, "t1", st.ResumptionKey)
	assert.Equal(t, workflow.DefaultProject, st.Project)
	assert.True(t, st.IsMultiTurn())
	assert.Equal(t, "hi", st.QueryText())

	// the state owns its copy of the history
	msgs[2].Content[0].Text = "changed"
	assert.Equal(t, "hi", st.QueryText())
}

func TestFromChat_Invalid(t *testing.T) {
	hi := []types.Message{types.NewTextMessage(types.RoleUser, "hi")}
	tests := []struct {
		name string
		req  ChatRequest
		msg  string
	}{
		{name: "missing thread", req: ChatRequest{Messages: hi, SessionID: "s1"}, msg: "thread_id is required"},
		{name: "missing session", req: ChatRequest{Messages: hi, ThreadID: "t1"}, msg: "session_id is required"},
		{name: "missing messages", req: ChatRequest{SessionID: "s1", ThreadID: "t1"}, msg: "messages is required"},
		{
			name: "bad role",
			req: ChatRequest{
				Messages:  []types.Message{{Role: "robot", Content: []types.ContentPart{types.TextPart("x")}}},
				SessionID: "s1",
				ThreadID:  "t1",
			},
			msg: "messages[0].role must be one of [user assistant system]",
		},
		{
			name: "bad part type",
			req: ChatRequest{
				Messages:  []types.Message{{Role: types.RoleUser, Content: []types.ContentPart{{Type: "audio"}}}},
				SessionID: "s1",
				ThreadID:  "t1",
			},
			msg: "messages[0].content[0].type must be one of [text image]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromChat(tt.req)
			require.Error(t, err)
			e, ok := types.AsError(err)
			require.True(t, ok)
			assert.Equal(t, types.ErrInvalidRequest, e.Code)
			assert.Equal(t, tt.msg, e.Message)
		})
	}
}

func TestFromChat_Resume(t *testing.T) {
	st, err := FromChat(ChatRequest{ThreadID: "t1", Resume: true})
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = FromChat(ChatRequest{Resume: true})
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
}

func TestExtractLastUserText(t *testing.T) {
	msgs := []types.Message{
		types.NewTextMessage(types.RoleUser, "older"),
		{
			Role: types.RoleUser,
			Content: []types.ContentPart{
				types.TextPart("look at this"),
				{Type: types.ContentImage, ImageURL: "http://img"},
				types.TextPart("and this"),
			},
		},
		types.NewTextMessage(types.RoleAssistant, "ok"),
	}
	assert.Equal(t, "and this", ExtractLastUserText(msgs))
	assert.Empty(t, ExtractLastUserText(nil))
	assert.Empty(t, ExtractLastUserText([]types.Message{types.NewTextMessage(types.RoleAssistant, "only")}))
}

func TestFromChat_QueryTextProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "turns")
		msgs := make([]types.Message, 0, n+1)
		for i := 0; i < n; i++ {
			role := rapid.SampledFrom([]types.Role{types.RoleUser, types.RoleAssistant}).Draw(t, "role")
			msgs = append(msgs, types.NewTextMessage(role, rapid.StringMatching(`[a-z]{1,6}`).Draw(t, "text")))
		}
		last := rapid.StringMatching(`[a-z]{1,6}`).Draw(t, "last")
		msgs = append(msgs, types.NewTextMessage(types.RoleUser, last))

		st, err := FromChat(ChatRequest{Messages: msgs, SessionID: "s", ThreadID: "t"})
		if err != nil {
			t.Fatal(err)
		}
		if st.QueryText() != last {
			t.Fatalf("query text %q, want %q", st.QueryText(), last)
		}
	})
}
