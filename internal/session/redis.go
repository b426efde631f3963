package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "civic:whatsapp:pending:"

type redisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) PendingStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &redisStore{rdb: rdb, ttl: ttl}
}

func (s *redisStore) Save(ctx context.Context, conversationID string, report PendingReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode pending report: %w", err)
	}
	return s.rdb.Set(ctx, keyPrefix+conversationID, payload, s.ttl).Err()
}

func (s *redisStore) Get(ctx context.Context, conversationID string) (PendingReport, error) {
	payload, err := s.rdb.Get(ctx, keyPrefix+conversationID).Bytes()
	if errors.Is(err, redis.Nil) {
		return PendingReport{}, ErrNotFound
	}
	if err != nil {
		return PendingReport{}, err
	}

	var report PendingReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return PendingReport{}, fmt.Errorf("decode pending report: %w", err)
	}
	return report, nil
}

func (s *redisStore) Delete(ctx context.Context, conversationID string) error {
	return s.rdb.Del(ctx, keyPrefix+conversationID).Err()
}
