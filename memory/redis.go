package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/ragflow/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore keeps each session as a Redis list of JSON entries.
//
// Keys:
//
//	{prefix}:memory:{session key}   LIST of Entry JSON, oldest first
//	{prefix}:memory:sessions        SET of registered session keys
type RedisStore struct {
	client     redis.UniversalClient
	prefix     string
	maxEntries int64
	ttl        time.Duration
	logger     *zap.Logger
}

// NewRedisStore creates a Redis-backed Store. maxEntries <= 0 keeps every
// entry; ttl <= 0 never expires a session.
func NewRedisStore(client redis.UniversalClient, prefix string, maxEntries int, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "ragflow"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client:     client,
		prefix:     prefix,
		maxEntries: int64(maxEntries),
		ttl:        ttl,
		logger:     logger.With(zap.String("component", "redis_memory")),
	}
}

func (s *RedisStore) EnsureSession(ctx context.Context, project, sessionID string) error {
	if err := s.client.SAdd(ctx, s.sessionsKey(), SessionKey(project, sessionID)).Err(); err != nil {
		return types.NewError(types.ErrMemoryRegistration, "register redis session").WithCause(err)
	}
	return nil
}

func (s *RedisStore) QueryRecent(ctx context.Context, project, sessionID string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	raw, err := s.client.LRange(ctx, s.listKey(project, sessionID), int64(-limit), -1).Result()
	if err != nil {
		return nil, types.NewError(types.ErrMemory, "query redis memory").WithCause(err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			s.logger.Warn("skipping unreadable memory entry", zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	return tail(entries, limit), nil
}

func (s *RedisStore) AppendExchange(ctx context.Context, project, sessionID, userText, assistantText string) error {
	entries := exchange(userText, assistantText)
	values := make([]any, 0, len(entries))
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal memory entry: %w", err)
		}
		values = append(values, b)
	}

	key := s.listKey(project, sessionID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		if s.maxEntries > 0 {
			pipe.LTrim(ctx, key, -s.maxEntries, -1)
		}
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return types.NewError(types.ErrMemory, "append redis memory").WithCause(err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) listKey(project, sessionID string) string {
	return fmt.Sprintf("%s:memory:%s", s.prefix, SessionKey(project, sessionID))
}

func (s *RedisStore) sessionsKey() string {
	return s.prefix + ":memory:sessions"
}
