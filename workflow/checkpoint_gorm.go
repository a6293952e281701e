package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// checkpointRecord is the row layout of the pipeline_checkpoints table.
type checkpointRecord struct {
	ID        string    `gorm:"primaryKey;size:64"`
	ThreadID  string    `gorm:"size:255;not null;uniqueIndex:idx_pipeline_checkpoints_thread_version,priority:1"`
	Version   int       `gorm:"not null;uniqueIndex:idx_pipeline_checkpoints_thread_version,priority:2"`
	ParentID  string    `gorm:"size:64"`
	Step      string    `gorm:"size:64;not null"`
	Status    string    `gorm:"size:16;not null"`
	State     string    `gorm:"type:text;not null"`
	Error     string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null"`
}

func (checkpointRecord) TableName() string {
	return "pipeline_checkpoints"
}

// GormCheckpointStore persists checkpoints in a SQL database through GORM.
// Postgres is the production target; the schema is owned by internal/migration.
type GormCheckpointStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormCheckpointStore creates a SQL-backed store.
func NewGormCheckpointStore(db *gorm.DB, logger *zap.Logger) *GormCheckpointStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormCheckpointStore{
		db:     db,
		logger: logger.With(zap.String("component", "gorm_checkpoint_store")),
	}
}

// AutoMigrate creates the checkpoint table. Used for sqlite and tests; Postgres
// deployments run the embedded SQL migrations instead.
func (s *GormCheckpointStore) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&checkpointRecord{})
}

// maxSaveAttempts bounds retries when a concurrent writer took the version.
const maxSaveAttempts = 5

// Save appends cp to its lineage. On Postgres the lineage is serialized with a
// transaction-scoped advisory lock keyed by thread id; other dialects rely on
// the unique (thread_id, version) index and retry on conflict.
func (s *GormCheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("checkpoint is nil")
	}

	var err error
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.insertNext(tx, cp)
		})
		if err == nil || !isUniqueViolation(err) {
			break
		}
		s.logger.Debug("checkpoint version taken, retrying",
			zap.String("thread_id", cp.ThreadID),
			zap.Int("attempt", attempt),
		)
	}
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	s.logger.Debug("checkpoint saved",
		zap.String("thread_id", cp.ThreadID),
		zap.Int("version", cp.Version),
		zap.String("step", string(cp.Step)),
	)
	return nil
}

func (s *GormCheckpointStore) insertNext(tx *gorm.DB, cp *Checkpoint) error {
	if tx.Dialector.Name() == "postgres" {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", cp.ThreadID).Error; err != nil {
			return fmt.Errorf("lock lineage: %w", err)
		}
	}

	var maxVersion int
	if err := tx.Model(&checkpointRecord{}).
		Where("thread_id = ?", cp.ThreadID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&maxVersion).Error; err != nil {
		return fmt.Errorf("read latest version: %w", err)
	}

	if err := prepareCheckpoint(cp, maxVersion+1); err != nil {
		return err
	}

	rec, err := toRecord(cp)
	if err != nil {
		return err
	}
	return tx.Create(rec).Error
}

// isUniqueViolation reports a (thread_id, version) or primary key collision.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

func (s *GormCheckpointStore) LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	var rec checkpointRecord
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("version DESC").
		Take(&rec).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return fromRecord(&rec)
}

func (s *GormCheckpointStore) LoadVersion(ctx context.Context, threadID string, version int) (*Checkpoint, error) {
	var rec checkpointRecord
	err := s.db.WithContext(ctx).
		Where("thread_id = ? AND version = ?", threadID, version).
		Take(&rec).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return fromRecord(&rec)
}

func (s *GormCheckpointStore) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	q := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("version DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []checkpointRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	out := make([]*Checkpoint, 0, len(recs))
	for i := range recs {
		cp, err := fromRecord(&recs[i])
		if err != nil {
			s.logger.Warn("skipping unreadable checkpoint", zap.String("id", recs[i].ID), zap.Error(err))
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *GormCheckpointStore) DeleteThread(ctx context.Context, threadID string) error {
	return s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Delete(&checkpointRecord{}).Error
}

func (s *GormCheckpointStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func toRecord(cp *Checkpoint) (*checkpointRecord, error) {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return &checkpointRecord{
		ID:        cp.ID,
		ThreadID:  cp.ThreadID,
		Version:   cp.Version,
		ParentID:  cp.ParentID,
		Step:      string(cp.Step),
		Status:    string(cp.Status),
		State:     string(state),
		Error:     cp.Error,
		CreatedAt: cp.CreatedAt,
	}, nil
}

func fromRecord(rec *checkpointRecord) (*Checkpoint, error) {
	var state State
	if err := json.Unmarshal([]byte(rec.State), &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &Checkpoint{
		ID:        rec.ID,
		ThreadID:  rec.ThreadID,
		Version:   rec.Version,
		ParentID:  rec.ParentID,
		Step:      StepName(rec.Step),
		Status:    CheckpointStatus(rec.Status),
		State:     &state,
		Error:     rec.Error,
		CreatedAt: rec.CreatedAt,
	}, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrCheckpointNotFound
	}
	return err
}
