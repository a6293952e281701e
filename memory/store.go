package memory

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultProject is used when a session has no project.
const DefaultProject = "default"

// Store is long-term conversation memory keyed by (project, session).
// Implementations must be safe for concurrent use.
type Store interface {
	// EnsureSession registers the session identity. Idempotent.
	EnsureSession(ctx context.Context, project, sessionID string) error
	// QueryRecent returns up to limit stored message texts, oldest first.
	QueryRecent(ctx context.Context, project, sessionID string, limit int) ([]string, error)
	// AppendExchange stores one user turn followed by one assistant turn.
	AppendExchange(ctx context.Context, project, sessionID, userText, assistantText string) error
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// SessionKey namespaces a session by project.
func SessionKey(project, sessionID string) string {
	project = strings.TrimSpace(project)
	if project == "" {
		project = DefaultProject
	}
	return project + "::" + sessionID
}

// Entry is one stored message.
type Entry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func exchange(userText, assistantText string) []Entry {
	now := time.Now().UTC()
	return []Entry{
		{Role: "user", Content: userText, CreatedAt: now},
		{Role: "assistant", Content: assistantText, CreatedAt: now},
	}
}

func tail(entries []Entry, limit int) []string {
	if limit <= 0 {
		return []string{}
	}
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Content)
	}
	return out
}

// InMemoryStore keeps sessions in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Entry
	users    map[string]bool
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string][]Entry),
		users:    make(map[string]bool),
	}
}

func (s *InMemoryStore) EnsureSession(_ context.Context, project, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[SessionKey(project, sessionID)] = true
	return nil
}

func (s *InMemoryStore) QueryRecent(_ context.Context, project, sessionID string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.sessions[SessionKey(project, sessionID)], limit), nil
}

func (s *InMemoryStore) AppendExchange(_ context.Context, project, sessionID, userText, assistantText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := SessionKey(project, sessionID)
	s.sessions[key] = append(s.sessions[key], exchange(userText, assistantText)...)
	return nil
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

// Entries returns a copy of everything stored for a session.
func (s *InMemoryStore) Entries(project, sessionID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.sessions[SessionKey(project, sessionID)]...)
}

// Registered reports whether EnsureSession was called for the session.
func (s *InMemoryStore) Registered(project, sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[SessionKey(project, sessionID)]
}
