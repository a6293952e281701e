package rag

import (
	"context"
	"fmt"
	"regexp"

	"github.com/BaSui01/ragflow/types"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultPgVectorTable holds embedded chunks when no table is configured.
const DefaultPgVectorTable = "document_chunks"

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// chunkRecord is the row layout of the chunk table.
type chunkRecord struct {
	ID        string          `gorm:"primaryKey;size:64"`
	Project   string          `gorm:"size:255;not null;index"`
	Source    string          `gorm:"type:text"`
	Text      string          `gorm:"type:text;not null"`
	Embedding pgvector.Vector `gorm:"type:vector"`
}

// PgVectorStore implements VectorIndex on Postgres with the pgvector
// extension. Scores are cosine similarity, 1 - (embedding <=> query).
type PgVectorStore struct {
	db     *gorm.DB
	table  string
	logger *zap.Logger
}

// NewPgVectorStore creates a pgvector-backed index over table.
func NewPgVectorStore(db *gorm.DB, table string, logger *zap.Logger) (*PgVectorStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pgvector store: db is nil")
	}
	if table == "" {
		table = DefaultPgVectorTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("pgvector store: invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgVectorStore{
		db:     db,
		table:  table,
		logger: logger.With(zap.String("component", "pgvector_store")),
	}, nil
}

// EnsureCollection installs the extension and creates the chunk table.
func (s *PgVectorStore) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return types.NewError(types.ErrVectorIndex, "vector size must be > 0")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id VARCHAR(64) PRIMARY KEY,
	project VARCHAR(255) NOT NULL,
	source TEXT,
	text TEXT NOT NULL,
	embedding vector(%d)
)`, s.table, dimensions),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_project ON %s (project)", s.table, s.table),
	}

	db := s.db.WithContext(ctx)
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return types.NewError(types.ErrVectorIndex, "ensure pgvector table").WithCause(err)
		}
	}
	return nil
}

func (s *PgVectorStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	recs := make([]chunkRecord, 0, len(points))
	for i, p := range points {
		if p.ID == "" {
			return types.Errorf(types.ErrVectorIndex, "point[%d] has empty id", i)
		}
		recs = append(recs, chunkRecord{
			ID:        p.ID,
			Project:   p.Project,
			Source:    p.Source,
			Text:      p.Text,
			Embedding: pgvector.NewVector(p.Vector),
		})
	}

	err := s.db.WithContext(ctx).
		Table(s.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"project", "source", "text", "embedding"}),
		}).
		Create(&recs).Error
	if err != nil {
		return types.NewError(types.ErrVectorIndex, "upsert chunks").WithCause(err).WithRetryable(true)
	}

	s.logger.Debug("pgvector upsert completed", zap.Int("count", len(points)))
	return nil
}

func (s *PgVectorStore) Search(ctx context.Context, vector []float32, filter Filter, topK int) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}
	if len(vector) == 0 {
		return nil, types.NewError(types.ErrVectorIndex, "query vector is required")
	}

	var rows []struct {
		Text   string
		Source string
		Score  float64
	}

	q := s.db.WithContext(ctx).
		Table(s.table).
		Select("text, source, 1 - (embedding <=> ?) AS score", pgvector.NewVector(vector))
	if filter.Project != "" {
		q = q.Where("project = ?", filter.Project)
	}
	if err := q.Order("score DESC").Limit(topK).Scan(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrVectorIndex, "search chunks").WithCause(err).WithRetryable(true)
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, Hit{Text: r.Text, Source: r.Source, Score: r.Score})
	}
	return hits, nil
}

func (s *PgVectorStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
