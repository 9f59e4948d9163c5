package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is a Redis-backed Store. Bounding comes from Redis itself:
// each session list is trimmed to maxTurns and expires after the TTL.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	maxTurns  int
	ttl       time.Duration
}

// RedisOption configures a RedisStore
type RedisOption func(*RedisStore)

// WithRedisKeyPrefix sets a custom prefix for session keys
func WithRedisKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.keyPrefix = prefix
	}
}

// WithRedisMaxTurns caps how many turns each session retains
func WithRedisMaxTurns(n int) RedisOption {
	return func(s *RedisStore) {
		s.maxTurns = n
	}
}

// WithRedisTTL sets how long an idle session survives
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore creates a Redis-backed session store
func NewRedisStore(client *redis.Client, options ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: "shield:session:",
		maxTurns:  20,
		ttl:       time.Hour,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// AddTurn implements Store
func (s *RedisStore) AddTurn(ctx context.Context, sessionID string, turn Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	key := s.key(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store turn: %w", err)
	}
	return nil
}

// History implements Store
func (s *RedisStore) History(ctx context.Context, sessionID string) ([]Turn, error) {
	values, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session history: %w", err)
	}

	turns := make([]Turn, 0, len(values))
	for _, v := range values {
		var t Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Reset implements Store
func (s *RedisStore) Reset(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	return nil
}

// Close implements Store
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(sessionID string) string {
	return s.keyPrefix + sessionID
}
