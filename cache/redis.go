package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time interface check.
var _ Cache = (*Redis)(nil)

// keyPrefix namespaces snapshot keys so the cache can share a Redis
// database with other tenants.
const keyPrefix = "stockledger:avail:"

// Redis is a snapshot cache shared across processes. Snapshots are
// stored as JSON under stockledger:avail:<sku> with a TTL, so stale
// entries expire on their own.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing client; the caller owns its configuration.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func key(skuID string) string {
	return keyPrefix + skuID
}

func (r *Redis) Get(ctx context.Context, skuID string) (*Snapshot, error) {
	val, err := r.client.Get(ctx, key(skuID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: redis get: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("cache: decode snapshot for %s: %w", skuID, err)
	}
	return &snap, nil
}

func (r *Redis) Set(ctx context.Context, snap *Snapshot, ttl time.Duration) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("cache: encode snapshot for %s: %w", snap.SKUID, err)
	}
	if err := r.client.Set(ctx, key(snap.SKUID), b, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, skuID string) error {
	if err := r.client.Del(ctx, key(skuID)).Err(); err != nil {
		return fmt.Errorf("cache: redis del: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
