package workflow

import (
	"errors"
	"strings"

	"github.com/BaSui01/ragflow/types"
)

const (
	// DefaultProject namespaces memory and documents when a request names none.
	DefaultProject = "default"
	// DefaultResumptionKey is the lineage used by single-shot invocations.
	DefaultResumptionKey = "default"
)

// ErrAnswerAlreadySet is returned when a step tries to overwrite the answer.
var ErrAnswerAlreadySet = errors.New("answer already set")

// State is the record threaded through every pipeline step.
//
// Field ownership per step:
//   - RecallMemory replaces Context.
//   - RecallDocuments appends to Context.
//   - Reason sets Answer once.
//   - CommitMemory only reads.
type State struct {
	SessionID     string          `json:"session_id"`
	Project       string          `json:"project"`
	Question      string          `json:"question,omitempty"`
	Messages      []types.Message `json:"messages,omitempty"`
	Context       []string        `json:"context"`
	Answer        string          `json:"answer"`
	ResumptionKey string          `json:"resumption_key"`
}

// NewState creates a state with defaults applied.
func NewState(sessionID, project string) *State {
	s := &State{
		SessionID:     sessionID,
		Project:       project,
		Context:       []string{},
		ResumptionKey: DefaultResumptionKey,
	}
	s.ApplyDefaults()
	return s
}

// ApplyDefaults fills project, context and resumption key when unset.
func (s *State) ApplyDefaults() {
	if strings.TrimSpace(s.Project) == "" {
		s.Project = DefaultProject
	}
	if s.Context == nil {
		s.Context = []string{}
	}
	if s.ResumptionKey == "" {
		s.ResumptionKey = DefaultResumptionKey
	}
}

// IsMultiTurn reports whether the state was built from a message history.
func (s *State) IsMultiTurn() bool {
	return strings.TrimSpace(s.Question) == "" && len(s.Messages) > 0
}

// QueryText returns the question, or the last user text of the message history.
func (s *State) QueryText() string {
	if strings.TrimSpace(s.Question) != "" {
		return s.Question
	}
	return types.LastUserText(s.Messages)
}

// Validate checks the invariants required before pipeline entry.
func (s *State) Validate() error {
	if strings.TrimSpace(s.SessionID) == "" {
		return types.NewError(types.ErrInvalidRequest, "session_id is required")
	}
	if strings.TrimSpace(s.Question) == "" && len(s.Messages) == 0 {
		return types.NewError(types.ErrInvalidRequest, "either question or messages is required")
	}
	return nil
}

// SetAnswer sets the answer exactly once.
func (s *State) SetAnswer(answer string) error {
	if s.Answer != "" {
		return ErrAnswerAlreadySet
	}
	s.Answer = answer
	return nil
}

// AppendContext appends snippets after the existing context.
func (s *State) AppendContext(lines ...string) {
	s.Context = append(s.Context, lines...)
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = types.CloneMessages(s.Messages)
	out.Context = append(make([]string, 0, len(s.Context)), s.Context...)
	return &out
}

// Delta is the part of the state a step changed.
type Delta struct {
	Context []string `json:"context,omitempty"`
	Answer  string   `json:"answer,omitempty"`
}

// IsEmpty reports whether the delta carries no change.
func (d Delta) IsEmpty() bool {
	return d.Context == nil && d.Answer == ""
}

func diffState(prev, next *State) Delta {
	var d Delta
	if !equalStrings(prev.Context, next.Context) {
		d.Context = append([]string{}, next.Context...)
	}
	if prev.Answer != next.Answer {
		d.Answer = next.Answer
	}
	return d
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hasPrefix(full, prefix []string) bool {
	if len(prefix) > len(full) {
		return false
	}
	return equalStrings(full[:len(prefix)], prefix)
}
