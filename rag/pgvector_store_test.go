package rag

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/BaSui01/ragflow/types"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupPgVector(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PgVectorStore) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{})
	require.NoError(t, err)

	store, err := NewPgVectorStore(gormDB, "", zap.NewNop())
	require.NoError(t, err)
	return mockDB, mock, store
}

func TestNewPgVectorStore_Validation(t *testing.T) {
	_, err := NewPgVectorStore(nil, "", nil)
	assert.Error(t, err)

	_, _, store := setupPgVector(t)
	_, err = NewPgVectorStore(store.db, "chunks; DROP TABLE x", nil)
	assert.Error(t, err)
}

func TestPgVectorStore_EnsureCollection(t *testing.T) {
	_, mock, store := setupPgVector(t)

	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS vector`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS document_chunks .*embedding vector\(1536\)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_document_chunks_project`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureCollection(context.Background(), 1536))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorStore_EnsureCollection_Error(t *testing.T) {
	_, mock, store := setupPgVector(t)

	mock.ExpectExec(`CREATE EXTENSION`).WillReturnError(errors.New("permission denied"))

	err := store.EnsureCollection(context.Background(), 1536)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrVectorIndex))
}

func TestPgVectorStore_Upsert(t *testing.T) {
	_, mock, store := setupPgVector(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "document_chunks" .* ON CONFLICT \("id"\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := store.Upsert(context.Background(), []Point{
		{ID: "a", Vector: []float32{1, 0}, Text: "alpha", Source: "a.md", Project: "acme"},
		{ID: "b", Vector: []float32{0, 1}, Text: "beta", Project: "acme"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorStore_Upsert_EmptyIsNoop(t *testing.T) {
	_, mock, store := setupPgVector(t)

	require.NoError(t, store.Upsert(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorStore_Search(t *testing.T) {
	_, mock, store := setupPgVector(t)

	rows := sqlmock.NewRows([]string{"text", "source", "score"}).
		AddRow("doc one", "one.md", 0.91).
		AddRow("doc two", "", 0.42)
	mock.ExpectQuery(`SELECT text, source, 1 - \(embedding <=> \$1\) AS score FROM "document_chunks" WHERE project = \$2 ORDER BY score DESC LIMIT`).
		WillReturnRows(rows)

	hits, err := store.Search(context.Background(), []float32{0.1, 0.2}, Filter{Project: "acme"}, 4)
	require.NoError(t, err)
	assert.Equal(t, []Hit{
		{Text: "doc one", Source: "one.md", Score: 0.91},
		{Text: "doc two", Score: 0.42},
	}, hits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorStore_Search_Error(t *testing.T) {
	_, mock, store := setupPgVector(t)

	mock.ExpectQuery(`SELECT text, source`).WillReturnError(errors.New("connection reset"))

	_, err := store.Search(context.Background(), []float32{1}, Filter{Project: "acme"}, 4)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrVectorIndex))
	assert.True(t, types.IsRetryable(err))
}

func TestPgVectorStore_Search_ZeroTopK(t *testing.T) {
	_, mock, store := setupPgVector(t)

	hits, err := store.Search(context.Background(), []float32{1}, Filter{}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.NoError(t, mock.ExpectationsWereMet())
}
