package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCheckpointStore keeps each checkpoint as a JSON string and indexes a
// lineage with a sorted set scored by version.
//
// Keys:
//
//	{prefix}:checkpoint:{id}        checkpoint JSON
//	{prefix}:thread:{thread}        ZSET member=id score=version
//	{prefix}:thread:{thread}:seq    version counter
type RedisCheckpointStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCheckpointStore creates a Redis-backed store. ttl <= 0 keeps keys forever.
func NewRedisCheckpointStore(client redis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *RedisCheckpointStore {
	if prefix == "" {
		prefix = "ragflow"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCheckpointStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "redis_checkpoint_store")),
	}
}

func (s *RedisCheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("checkpoint is nil")
	}
	if cp.ThreadID == "" {
		return fmt.Errorf("checkpoint thread id is required")
	}

	version, err := s.client.Incr(ctx, s.seqKey(cp.ThreadID)).Result()
	if err != nil {
		return fmt.Errorf("allocate checkpoint version: %w", err)
	}
	if err := prepareCheckpoint(cp, int(version)); err != nil {
		return err
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	threadKey := s.threadKey(cp.ThreadID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.checkpointKey(cp.ID), data, s.ttl)
		pipe.ZAdd(ctx, threadKey, redis.Z{Score: float64(cp.Version), Member: cp.ID})
		if s.ttl > 0 {
			pipe.Expire(ctx, threadKey, s.ttl)
			pipe.Expire(ctx, s.seqKey(cp.ThreadID), s.ttl)
		}
		return nil
	})
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

func (s *RedisCheckpointStore) LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	ids, err := s.client.ZRevRange(ctx, s.threadKey(threadID), 0, 0).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrCheckpointNotFound
	}
	return s.load(ctx, ids[0])
}

func (s *RedisCheckpointStore) LoadVersion(ctx context.Context, threadID string, version int) (*Checkpoint, error) {
	score := strconv.Itoa(version)
	ids, err := s.client.ZRangeByScore(ctx, s.threadKey(threadID), &redis.ZRangeBy{
		Min: score,
		Max: score,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrCheckpointNotFound
	}
	return s.load(ctx, ids[0])
}

func (s *RedisCheckpointStore) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, s.threadKey(threadID), 0, stop).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*Checkpoint, 0, len(ids))
	for _, id := range ids {
		cp, err := s.load(ctx, id)
		if err != nil {
			s.logger.Warn("failed to load checkpoint", zap.String("id", id), zap.Error(err))
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *RedisCheckpointStore) DeleteThread(ctx context.Context, threadID string) error {
	threadKey := s.threadKey(threadID)
	ids, err := s.client.ZRange(ctx, threadKey, 0, -1).Result()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(ids)+2)
	for _, id := range ids {
		keys = append(keys, s.checkpointKey(id))
	}
	keys = append(keys, threadKey, s.seqKey(threadID))
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisCheckpointStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisCheckpointStore) load(ctx context.Context, id string) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, s.checkpointKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCheckpointNotFound
		}
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *RedisCheckpointStore) checkpointKey(id string) string {
	return fmt.Sprintf("%s:checkpoint:%s", s.prefix, id)
}

func (s *RedisCheckpointStore) threadKey(threadID string) string {
	return fmt.Sprintf("%s:thread:%s", s.prefix, threadID)
}

func (s *RedisCheckpointStore) seqKey(threadID string) string {
	return fmt.Sprintf("%s:thread:%s:seq", s.prefix, threadID)
}
