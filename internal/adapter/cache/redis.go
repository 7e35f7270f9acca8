// Package cache provides Redis and in-memory implementations of the
// short-lived state collaborators: PKCE flow state, consumed-code
// tracking, and access-check caching.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/builder-auth/internal/domain"
	"github.com/smallbiznis/builder-auth/internal/repository"
)

const (
	flowStateKeyPrefix    = "oauth:flow:"
	consumedCodeKeyPrefix = "oauth:code:"
	accessCacheKeyPrefix  = "oauth:access:"
)

var (
	_ repository.FlowStateStore   = (*RedisStateStore)(nil)
	_ repository.CodeConsumer     = (*RedisCodeConsumer)(nil)
	_ repository.AccessRepository = (*CachedAccessRepo)(nil)
)

// RedisStateStore implements FlowStateStore backed by Redis.
type RedisStateStore struct {
	client redis.UniversalClient
}

// NewRedisStateStore constructs a Redis-backed flow state store.
func NewRedisStateStore(client redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// SaveState stores the encoded flow state payload with TTL.
func (s *RedisStateStore) SaveState(ctx context.Context, key string, data domain.FlowState, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, flowStateKeyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// TakeState loads and removes the state payload in one round trip.
func (s *RedisStateStore) TakeState(ctx context.Context, key string) (*domain.FlowState, error) {
	bytes, err := s.client.GetDel(ctx, flowStateKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	var state domain.FlowState
	if err := json.Unmarshal(bytes, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &state, nil
}

// RedisCodeConsumer marks redeemed code token ids in Redis.
type RedisCodeConsumer struct {
	client redis.UniversalClient
}

func NewRedisCodeConsumer(client redis.UniversalClient) *RedisCodeConsumer {
	return &RedisCodeConsumer{client: client}
}

// Consume uses SETNX so exactly one caller wins the first redemption.
func (c *RedisCodeConsumer) Consume(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	first, err := c.client.SetNX(ctx, consumedCodeKeyPrefix+tokenID, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark code consumed: %w", err)
	}
	return first, nil
}

// CachedAccessRepo memoizes access checks for a short window. Revocation
// therefore takes up to the cache TTL to be observed.
type CachedAccessRepo struct {
	next   repository.AccessRepository
	client redis.UniversalClient
	ttl    time.Duration
}

func NewCachedAccessRepo(next repository.AccessRepository, client redis.UniversalClient, ttl time.Duration) *CachedAccessRepo {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedAccessRepo{next: next, client: client, ttl: ttl}
}

func (r *CachedAccessRepo) UserHasAccessTo(ctx context.Context, userID, projectID string) (bool, error) {
	key := accessCacheKeyPrefix + userID + ":" + projectID
	if cached, err := r.client.Get(ctx, key).Result(); err == nil {
		return cached == "1", nil
	}

	allowed, err := r.next.UserHasAccessTo(ctx, userID, projectID)
	if err != nil {
		return false, err
	}

	value := "0"
	if allowed {
		value = "1"
	}
	// Cache failures are not fatal; the next check just hits the source.
	_ = r.client.Set(ctx, key, value, r.ttl).Err()
	return allowed, nil
}
