package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"medreport/internal/models"
	"medreport/internal/redis"
)

const redisKeyPrefix = "medreport:chat:"

// RedisStore keeps each session as a capped list that expires after ttl
// without activity.
type RedisStore struct {
	client   *redis.Client
	maxTurns int
	ttl      time.Duration
}

func NewRedisStore(client *redis.Client, maxTurns int, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, maxTurns: maxTurns, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return redisKeyPrefix + sessionID
}

func (s *RedisStore) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	items, err := s.client.Range(ctx, s.key(sessionID))
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	history := make([]models.Message, 0, len(items))
	for _, item := range items {
		var msg models.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		history = append(history, msg)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, s.key(sessionID), s.ttl); err != nil {
			return nil, fmt.Errorf("refresh chat history ttl: %w", err)
		}
	}
	return models.LastTurns(history, s.maxTurns), nil
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, msgs ...models.Message) error {
	values := make([]string, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode chat message: %w", err)
		}
		values = append(values, string(b))
	}
	if err := s.client.PushTrimmed(ctx, s.key(sessionID), values, int64(s.maxTurns), s.ttl); err != nil {
		return fmt.Errorf("append chat history: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID))
}
