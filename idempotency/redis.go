package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paygate-labs/x402-gateway-go/types"
)

// RedisStore is a deduplication store for load-balanced deployments where
// retries of the same proof may land on different instances.
type RedisStore struct {
	client       *redis.Client
	ttl          time.Duration
	pollInterval time.Duration
}

// NewRedisStore creates a store backed by Redis.
func NewRedisStore(addr string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client:       redis.NewClient(&redis.Options{Addr: addr}),
		ttl:          ttl,
		pollInterval: 100 * time.Millisecond,
	}
}

func (s *RedisStore) resultKey(key string) string {
	return "settle:result:" + key
}

func (s *RedisStore) inflightKey(key string) string {
	return "settle:inflight:" + key
}

// CheckAndMark returns a cached result, reports an in-flight settlement, or
// atomically claims the key for this caller via SETNX.
func (s *RedisStore) CheckAndMark(ctx context.Context, key string) (*types.SettleResult, bool, error) {

	// Return the cached result when the proof has already settled
	cached, err := s.getResult(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if cached != nil {
		return cached, false, nil
	}

	// Claim the in-flight marker; losing the race means another instance
	// is settling this proof right now
	claimed, err := s.client.SetNX(ctx, s.inflightKey(key), "1", s.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	return nil, !claimed, nil
}

// WaitForResult polls for the result of an in-flight settlement until the
// context is done.
func (s *RedisStore) WaitForResult(ctx context.Context, key string) (*types.SettleResult, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			result, err := s.getResult(ctx, key)
			if err != nil {
				return nil, err
			}
			if result != nil {
				return result, nil
			}

			// The in-flight marker disappearing without a result means
			// the other attempt failed
			exists, err := s.client.Exists(ctx, s.inflightKey(key)).Result()
			if err != nil {
				return nil, err
			}
			if exists == 0 {
				return nil, ErrNoSettlement
			}
		}
	}
}

// Complete caches the captured result and clears the in-flight marker.
func (s *RedisStore) Complete(ctx context.Context, key string, result types.SettleResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.resultKey(key), payload, s.ttl).Err(); err != nil {
		return err
	}
	return s.client.Del(ctx, s.inflightKey(key)).Err()
}

// Fail clears the in-flight marker so the proof can be retried.
func (s *RedisStore) Fail(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.inflightKey(key)).Err()
}

func (s *RedisStore) getResult(ctx context.Context, key string) (*types.SettleResult, error) {
	payload, err := s.client.Get(ctx, s.resultKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var result types.SettleResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
