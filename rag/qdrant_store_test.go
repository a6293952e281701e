package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/BaSui01/ragflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func TestQdrantStore_EnsureCollection_CreatesMissing(t *testing.T) {
	t.Parallel()

	var gets, puts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/project_docs", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		switch r.Method {
		case http.MethodGet:
			gets.Add(1)
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, `{"status":{"error":"Not found"}}`)
		case http.MethodPut:
			puts.Add(1)
			var body struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, 1536, body.Vectors.Size)
			assert.Equal(t, "Cosine", body.Vectors.Distance)
			writeJSON(w, `{"status":"ok","result":true}`)
		}
	}))
	defer srv.Close()

	store := NewQdrantStore(QdrantConfig{URL: srv.URL + "/", APIKey: "secret"}, zap.NewNop())

	require.NoError(t, store.EnsureCollection(context.Background(), 1536))
	require.NoError(t, store.EnsureCollection(context.Background(), 1536))

	assert.Equal(t, int64(1), gets.Load())
	assert.Equal(t, int64(1), puts.Load())
}

func TestQdrantStore_EnsureCollection_Existing(t *testing.T) {
	t.Parallel()

	var puts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			puts.Add(1)
		}
		writeJSON(w, `{"status":"ok","result":{}}`)
	}))
	defer srv.Close()

	store := NewQdrantStore(QdrantConfig{URL: srv.URL, Collection: "docs"}, nil)
	require.NoError(t, store.EnsureCollection(context.Background(), 8))
	assert.Zero(t, puts.Load())
}

func TestQdrantStore_EnsureCollection_RaceConflictIsOK(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	store := NewQdrantStore(QdrantConfig{URL: srv.URL}, nil)
	assert.NoError(t, store.EnsureCollection(context.Background(), 4))
}

func TestQdrantStore_EnsureCollection_InvalidSize(t *testing.T) {
	t.Parallel()

	store := NewQdrantStore(QdrantConfig{URL: "http://127.0.0.1:1"}, nil)
	err := store.EnsureCollection(context.Background(), 0)
	assert.True(t, types.IsCode(err, types.ErrVectorIndex))
}

func TestQdrantStore_Upsert(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/collections/docs/points", r.URL.Path)
		assert.Equal(t, "wait=true", r.URL.RawQuery)
		calls.Add(1)

		var req struct {
			Points []struct {
				ID      string         `json:"id"`
				Vector  []float32      `json:"vector"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Points, 2) {
			assert.Equal(t, "p1", req.Points[0].ID)
			assert.Equal(t, []float32{0.1, 0.2}, req.Points[0].Vector)
			assert.Equal(t, map[string]any{"text": "alpha", "source": "a.md", "project": "acme"}, req.Points[0].Payload)
		}
		writeJSON(w, `{"status":"ok","result":{"operation_id":1}}`)
	}))
	defer srv.Close()

	store := NewQdrantStore(QdrantConfig{URL: srv.URL, Collection: "docs"}, nil)
	err := store.Upsert(context.Background(), []Point{
		{ID: "p1", Vector: []float32{0.1, 0.2}, Text: "alpha", Source: "a.md", Project: "acme"},
		{ID: "p2", Vector: []float32{0.3, 0.4}, Text: "beta", Source: "b.md", Project: "acme"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())

	// nothing to write, no request
	require.NoError(t, store.Upsert(context.Background(), nil))
	assert.Equal(t, int64(1), calls.Load())
}

func TestQdrantStore_Upsert_RejectsInvalidPoints(t *testing.T) {
	t.Parallel()

	store := NewQdrantStore(QdrantConfig{URL: "http://127.0.0.1:1"}, nil)

	err := store.Upsert(context.Background(), []Point{{Vector: []float32{1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty id")

	err = store.Upsert(context.Background(), []Point{{ID: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no vector")
}

func TestQdrantStore_Search_FiltersByProject(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/collections/project_docs/points/search", r.URL.Path)

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, float64(4), req["limit"])
		assert.Equal(t, true, req["with_payload"])
		assert.Equal(t, false, req["with_vector"])
		assert.Equal(t, map[string]any{
			"must": []any{map[string]any{"key": "project", "match": map[string]any{"value": "acme"}}},
		}, req["filter"])

		writeJSON(w, `{"result":[
			{"id":"1","score":0.9,"payload":{"text":"  doc one  ","source":"one.md","project":"acme"}},
			{"id":"2","score":0.5,"payload":{"text":"doc two","project":"acme"}}
		]}`)
	}))
	defer srv.Close()

	store := NewQdrantStore(QdrantConfig{URL: srv.URL}, nil)
	hits, err := store.Search(context.Background(), []float32{0.1, 0.2}, Filter{Project: "acme"}, 4)
	require.NoError(t, err)

	assert.Equal(t, []Hit{
		{Text: "doc one", Source: "one.md", Score: 0.9},
		{Text: "doc two", Score: 0.5},
	}, hits)
	assert.Equal(t, "[one.md] doc one", hits[0].Formatted())
	assert.Equal(t, "doc two", hits[1].Formatted())
}

func TestQdrantStore_Search_NoProjectOmitsFilter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, hasFilter := req["filter"]
		assert.False(t, hasFilter)
		writeJSON(w, `{"result":[]}`)
	}))
	defer srv.Close()

	store := NewQdrantStore(QdrantConfig{URL: srv.URL}, nil)
	hits, err := store.Search(context.Background(), []float32{1}, Filter{}, 2)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQdrantStore_Search_ZeroTopK(t *testing.T) {
	t.Parallel()

	store := NewQdrantStore(QdrantConfig{URL: "http://127.0.0.1:1"}, nil)
	hits, err := store.Search(context.Background(), []float32{1}, Filter{}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQdrantStore_Search_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	store := NewQdrantStore(QdrantConfig{URL: srv.URL}, nil)
	_, err := store.Search(context.Background(), []float32{1}, Filter{Project: "p"}, 4)
	require.Error(t, err)

	assert.True(t, types.IsCode(err, types.ErrVectorIndex))
	assert.True(t, types.IsRetryable(err))
	assert.True(t, strings.Contains(err.Error(), "overloaded"))
}

func TestQdrantStore_Search_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	store := NewQdrantStore(QdrantConfig{URL: url}, nil)
	_, err := store.Search(context.Background(), []float32{1}, Filter{}, 4)
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
}

func TestQdrantStore_CountAndPing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections":
			writeJSON(w, `{"result":{"collections":[]}}`)
		case "/collections/project_docs/points/count":
			var req map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, true, req["exact"])
			assert.NotNil(t, req["filter"])
			writeJSON(w, `{"result":{"count":7}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := NewQdrantStore(QdrantConfig{URL: srv.URL}, nil)
	require.NoError(t, store.Ping(context.Background()))

	n, err := store.Count(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestSortHits_StableDescending(t *testing.T) {
	hits := []Hit{
		{Text: "a", Score: 0.2},
		{Text: "b", Score: 0.9},
		{Text: "c", Score: 0.2},
		{Text: "d", Score: 0.5},
	}
	SortHits(hits)

	got := make([]string, len(hits))
	for i, h := range hits {
		got[i] = h.Text
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, got)
}

func TestHit_ContextLine(t *testing.T) {
	assert.Equal(t, "DOC: doc1 (score=0.900)", Hit{Text: "doc1", Score: 0.9}.ContextLine())
	assert.Equal(t, "DOC: [a.md] x (score=0.123)", Hit{Text: "x", Source: "a.md", Score: 0.12345}.ContextLine())
}
