package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrCheckpointNotFound is returned when a lineage or version does not exist.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// CheckpointStatus describes the run at the time the snapshot was taken.
type CheckpointStatus string

const (
	CheckpointRunning CheckpointStatus = "running"
	CheckpointDone    CheckpointStatus = "done"
	CheckpointFailed  CheckpointStatus = "failed"
)

// Checkpoint is a durable snapshot of the state after a step completed.
// ThreadID is the resumption key. Versions start at 1 and increase by one per
// save within a thread.
type Checkpoint struct {
	ID        string           `json:"id"`
	ThreadID  string           `json:"thread_id"`
	Version   int              `json:"version"`
	ParentID  string           `json:"parent_id,omitempty"`
	Step      StepName         `json:"step"`
	Status    CheckpointStatus `json:"status"`
	State     *State           `json:"state"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Resumable reports whether a run stopped after this checkpoint can continue.
func (c *Checkpoint) Resumable() bool {
	if c == nil || c.Status != CheckpointRunning {
		return false
	}
	next, ok := Next(c.Step)
	return ok && next != StepDone
}

// CheckpointStore persists checkpoint lineages keyed by resumption key.
// Implementations must be safe for concurrent use.
type CheckpointStore interface {
	// Save assigns ID (when empty), Version and CreatedAt, then persists cp.
	Save(ctx context.Context, cp *Checkpoint) error
	// LoadLatest returns the highest version of a thread or ErrCheckpointNotFound.
	LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error)
	// LoadVersion returns one version of a thread or ErrCheckpointNotFound.
	LoadVersion(ctx context.Context, threadID string, version int) (*Checkpoint, error)
	// List returns up to limit checkpoints of a thread, newest first. limit <= 0 means all.
	List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error)
	// DeleteThread removes a whole lineage.
	DeleteThread(ctx context.Context, threadID string) error
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

func prepareCheckpoint(cp *Checkpoint, version int) error {
	if cp == nil {
		return fmt.Errorf("checkpoint is nil")
	}
	if cp.ThreadID == "" {
		return fmt.Errorf("checkpoint thread id is required")
	}
	if cp.ID == "" {
		cp.ID = "ckpt_" + uuid.NewString()
	}
	cp.Version = version
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	return nil
}

// =============================================================================
// In-memory store
// =============================================================================

// MemoryCheckpointStore keeps lineages in process memory.
type MemoryCheckpointStore struct {
	threads map[string][]*Checkpoint
	mu      sync.RWMutex
}

// NewMemoryCheckpointStore creates an empty in-memory store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{threads: make(map[string][]*Checkpoint)}
}

func (s *MemoryCheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cp == nil {
		return fmt.Errorf("checkpoint is nil")
	}
	if err := prepareCheckpoint(cp, len(s.threads[cp.ThreadID])+1); err != nil {
		return err
	}
	stored := *cp
	stored.State = cp.State.Clone()
	s.threads[cp.ThreadID] = append(s.threads[cp.ThreadID], &stored)
	return nil
}

func (s *MemoryCheckpointStore) LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lineage := s.threads[threadID]
	if len(lineage) == 0 {
		return nil, ErrCheckpointNotFound
	}
	return copyCheckpoint(lineage[len(lineage)-1]), nil
}

func (s *MemoryCheckpointStore) LoadVersion(ctx context.Context, threadID string, version int) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lineage := s.threads[threadID]
	if version < 1 || version > len(lineage) {
		return nil, ErrCheckpointNotFound
	}
	return copyCheckpoint(lineage[version-1]), nil
}

func (s *MemoryCheckpointStore) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lineage := s.threads[threadID]
	out := make([]*Checkpoint, 0, len(lineage))
	for _, cp := range lineage {
		out = append(out, copyCheckpoint(cp))
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryCheckpointStore) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

func (s *MemoryCheckpointStore) Ping(ctx context.Context) error {
	return nil
}

func copyCheckpoint(cp *Checkpoint) *Checkpoint {
	out := *cp
	out.State = cp.State.Clone()
	return &out
}

func sortNewestFirst(cps []*Checkpoint) {
	sort.SliceStable(cps, func(i, j int) bool {
		return cps[i].Version > cps[j].Version
	})
}
