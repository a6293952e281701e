package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/ragflow/llm/retry"
	"github.com/BaSui01/ragflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticLoader struct {
	docs []Document
	err  error
}

func (l staticLoader) LoadDir(context.Context, string) ([]Document, error) {
	return l.docs, l.err
}

type fakeEmbedder struct {
	dims     int
	failures atomic.Int64
	calls    atomic.Int64
	err      error
}

func (e *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.failures.Load() > 0 {
		e.failures.Add(-1)
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, e.dims)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

type recordingIndex struct {
	mu        sync.Mutex
	ensured   []int
	points    []Point
	upserts   int
	ensureErr error
}

func (r *recordingIndex) EnsureCollection(_ context.Context, dims int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensured = append(r.ensured, dims)
	return r.ensureErr
}

func (r *recordingIndex) Upsert(_ context.Context, points []Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	r.points = append(r.points, points...)
	return nil
}

func (r *recordingIndex) Search(context.Context, []float32, Filter, int) ([]Hit, error) {
	return nil, nil
}

func (r *recordingIndex) Ping(context.Context) error { return nil }

func fastRetry() retry.Policy {
	return retry.Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestIngester_Ingest(t *testing.T) {
	docs := []Document{
		{ID: "a.md", Source: "/data/docs/a.md", Content: strings.Repeat("a", 25)},
		{ID: "b.txt", Source: "/data/docs/b.txt", Content: "short"},
	}
	emb := &fakeEmbedder{dims: 3}
	idx := &recordingIndex{}

	in := NewIngester(staticLoader{docs: docs}, emb, idx, IngestConfig{
		Dimensions: 3,
		BatchSize:  2,
		Chunking:   ChunkingConfig{ChunkSize: 10},
		Retry:      fastRetry(),
	}, zap.NewNop())

	res, err := in.Ingest(context.Background(), "/data/docs", "  acme ")
	require.NoError(t, err)

	assert.Equal(t, "acme", res.Project)
	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, 4, res.Chunks)
	assert.Equal(t, []int{3}, idx.ensured)
	assert.Equal(t, int64(2), emb.calls.Load())
	assert.Equal(t, 2, idx.upserts)

	require.Len(t, idx.points, 4)
	ids := map[string]bool{}
	for _, p := range idx.points {
		assert.Equal(t, "acme", p.Project)
		assert.Len(t, p.Vector, 3)
		assert.Equal(t, float32(len(p.Text)), p.Vector[0])
		ids[p.ID] = true
	}
	assert.Len(t, ids, 4)
	assert.Equal(t, "/data/docs/a.md", idx.points[0].Source)
	assert.Equal(t, "short", idx.points[3].Text)
	assert.Equal(t, "/data/docs/b.txt", idx.points[3].Source)
}

func TestIngester_DefaultProject(t *testing.T) {
	idx := &recordingIndex{}
	in := NewIngester(staticLoader{docs: []Document{{ID: "x", Content: "hello"}}}, &fakeEmbedder{dims: 1536}, idx, IngestConfig{}, nil)

	res, err := in.Ingest(context.Background(), "/docs", "")
	require.NoError(t, err)
	assert.Equal(t, "default", res.Project)
	assert.Equal(t, []int{1536}, idx.ensured)
	assert.Equal(t, "default", idx.points[0].Project)
}

func TestIngester_NothingToIngest(t *testing.T) {
	emb := &fakeEmbedder{dims: 3}
	idx := &recordingIndex{}
	in := NewIngester(staticLoader{docs: []Document{{ID: "blank", Content: "   "}}}, emb, idx, IngestConfig{Dimensions: 3}, nil)

	res, err := in.Ingest(context.Background(), "/docs", "p")
	require.NoError(t, err)
	assert.Zero(t, res.Chunks)
	assert.Zero(t, emb.calls.Load())
	assert.Zero(t, idx.upserts)
}

func TestIngester_RetriesTransientEmbeddingErrors(t *testing.T) {
	emb := &fakeEmbedder{dims: 2, err: types.NewError(types.ErrEmbedding, "rate limited").WithRetryable(true)}
	emb.failures.Store(1)
	idx := &recordingIndex{}

	in := NewIngester(staticLoader{docs: []Document{{ID: "x", Content: "hello"}}}, emb, idx,
		IngestConfig{Dimensions: 2, Retry: fastRetry()}, nil)

	res, err := in.Ingest(context.Background(), "/docs", "p")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, int64(2), emb.calls.Load())
}

func TestIngester_PermanentEmbeddingError(t *testing.T) {
	emb := &fakeEmbedder{dims: 2, err: types.NewError(types.ErrEmbedding, "bad key")}
	emb.failures.Store(10)
	idx := &recordingIndex{}

	in := NewIngester(staticLoader{docs: []Document{{ID: "x", Content: "hello"}}}, emb, idx,
		IngestConfig{Dimensions: 2, Retry: fastRetry()}, nil)

	_, err := in.Ingest(context.Background(), "/docs", "p")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrEmbedding))
	assert.Equal(t, int64(1), emb.calls.Load())
	assert.Zero(t, idx.upserts)
}

func TestIngester_DimensionMismatch(t *testing.T) {
	in := NewIngester(staticLoader{docs: []Document{{ID: "x", Content: "hello"}}}, &fakeEmbedder{dims: 4}, &recordingIndex{},
		IngestConfig{Dimensions: 3, Retry: fastRetry()}, nil)

	_, err := in.Ingest(context.Background(), "/docs", "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 3")
}

func TestIngester_EnsureCollectionError(t *testing.T) {
	idx := &recordingIndex{ensureErr: types.NewError(types.ErrVectorIndex, "down")}
	emb := &fakeEmbedder{dims: 3}
	in := NewIngester(staticLoader{}, emb, idx, IngestConfig{Dimensions: 3}, nil)

	_, err := in.Ingest(context.Background(), "/docs", "p")
	assert.True(t, types.IsCode(err, types.ErrVectorIndex))
	assert.Zero(t, emb.calls.Load())
}

func TestIngester_LoadError(t *testing.T) {
	in := NewIngester(staticLoader{err: errors.New("no such dir")}, &fakeEmbedder{dims: 3}, &recordingIndex{}, IngestConfig{Dimensions: 3}, nil)

	_, err := in.Ingest(context.Background(), "/missing", "p")
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
}
