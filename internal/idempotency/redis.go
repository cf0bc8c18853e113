package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "idempotency:v1:"
	inProgressMarker = "__in_progress__"
)

type storedRecord struct {
	ResourceID string    `json:"resource_id"`
	Response   string    `json:"response"`
	CreatedAt  time.Time `json:"created_at"`
}

// RedisGuard stores reservations and results in Redis. The in-progress marker
// is written with SetNX so only one concurrent caller wins a key; expiry is
// handled by Redis TTLs, which stand in for a sweep job.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard builds a guard over the given client with the record TTL.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

// CheckAndReserve atomically claims the key or replays the stored result.
func (g *RedisGuard) CheckAndReserve(ctx context.Context, key string) (Result, error) {
	cacheKey := keyPrefix + key

	val, err := g.client.Get(ctx, cacheKey).Result()
	switch {
	case err == nil:
		if val == inProgressMarker {
			return Result{}, ErrReservationRace
		}
		var rec storedRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return Result{}, fmt.Errorf("decode stored idempotency record: %w", err)
		}
		return Result{ResourceID: rec.ResourceID, Response: []byte(rec.Response)}, nil
	case err != redis.Nil:
		return Result{}, fmt.Errorf("idempotency lookup: %w", err)
	}

	won, err := g.client.SetNX(ctx, cacheKey, inProgressMarker, g.ttl).Result()
	if err != nil {
		return Result{}, fmt.Errorf("idempotency reservation: %w", err)
	}
	if !won {
		// Lost the race between Get and SetNX.
		return Result{}, ErrReservationRace
	}
	return Result{Fresh: true}, nil
}

// SaveResult persists the outcome under the key for the full TTL window.
func (g *RedisGuard) SaveResult(ctx context.Context, key, resourceID string, response []byte) error {
	rec := storedRecord{ResourceID: resourceID, Response: string(response), CreatedAt: time.Now().UTC()}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	if err := g.client.Set(ctx, keyPrefix+key, payload, g.ttl).Err(); err != nil {
		return fmt.Errorf("persist idempotency record: %w", err)
	}
	return nil
}

// Release drops a reservation whose operation failed, so a retry can proceed.
func (g *RedisGuard) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, keyPrefix+key).Err()
}
