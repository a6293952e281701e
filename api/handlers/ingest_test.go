package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/ragflow/rag"
	"github.com/BaSui01/ragflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngester struct {
	dir, project string
	err          error
}

func (f *fakeIngester) Ingest(_ context.Context, dir, project string) (*rag.IngestResult, error) {
	f.dir, f.project = dir, project
	if f.err != nil {
		return nil, f.err
	}
	if project == "" {
		project = "default"
	}
	return &rag.IngestResult{Project: project, Documents: 2, Chunks: 7, Duration: 1500 * time.Millisecond}, nil
}

func TestIngestHandler(t *testing.T) {
	ing := &fakeIngester{}
	h := NewIngestHandler(ing, "/app/docs", nil)

	w := httptest.NewRecorder()
	h.HandleIngest(w, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(`{"project":"p1"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ingested","chunks":7,"documents":2,"project":"p1","duration_ms":1500}`, w.Body.String())
	assert.Equal(t, "/app/docs", ing.dir)
	assert.Equal(t, "p1", ing.project)
}

func TestIngestHandler_EmptyBodyUsesDefaultProject(t *testing.T) {
	ing := &fakeIngester{}
	h := NewIngestHandler(ing, "/app/docs", nil)

	w := httptest.NewRecorder()
	h.HandleIngest(w, httptest.NewRequest(http.MethodPost, "/ingest", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"project":"default"`)
}

func TestIngestHandler_Failure(t *testing.T) {
	ing := &fakeIngester{err: types.NewError(types.ErrEmbedding, "embedding service down")}
	h := NewIngestHandler(ing, "/app/docs", nil)

	w := httptest.NewRecorder()
	h.HandleIngest(w, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, string(types.ErrEmbedding), decodeError(t, w).Error.Code)
}
