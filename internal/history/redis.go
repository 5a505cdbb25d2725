package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sha1n/relic-rag/internal/domain"
)

// RedisStore keeps each conversation in a Redis list of JSON encoded turns.
type RedisStore struct {
	client   *redis.Client
	maxTurns int
	ttl      time.Duration
}

// NewRedisStore wraps an existing client. A ttl of zero keeps conversations until cleared.
func NewRedisStore(client *redis.Client, maxTurns int, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:   client,
		maxTurns: normalizeMaxTurns(maxTurns),
		ttl:      ttl,
	}
}

// DialRedis parses a redis:// URL, connects and pings the server.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opt.Addr, err)
	}
	return client, nil
}

// Append pushes and trims inside one MULTI/EXEC, so concurrent appends to
// the same conversation never interleave.
func (s *RedisStore) Append(ctx context.Context, user, conversationID string, turns ...domain.Turn) error {
	key, err := Key(user, conversationID)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}

	values := make([]any, 0, len(turns))
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("failed to encode turn: %w", err)
		}
		values = append(values, data)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, -int64(s.maxTurns), -1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// History returns the stored turns. Entries that fail to decode are skipped.
func (s *RedisStore) History(ctx context.Context, user, conversationID string) ([]domain.Turn, error) {
	key, err := Key(user, conversationID)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	turns := make([]domain.Turn, 0, len(raw))
	for _, entry := range raw {
		var turn domain.Turn
		if err := json.Unmarshal([]byte(entry), &turn); err != nil {
			slog.Warn("Skipping undecodable history entry", "key", key, "error", err)
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Clear deletes the conversation key.
func (s *RedisStore) Clear(ctx context.Context, user, conversationID string) error {
	key, err := Key(user, conversationID)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
