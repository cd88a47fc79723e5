// Package cache provides the advisory availability snapshot cache
// behind lock-free display reads. Snapshots may lag the authoritative
// store; nothing that changes quantities is ever decided on one.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when no fresh snapshot exists for a SKU.
var ErrMiss = errors.New("cache: miss")

// Snapshot is a point-in-time availability view of one SKU.
type Snapshot struct {
	SKUID     string    `json:"sku_id"`
	Total     int64     `json:"total_quantity"`
	Reserved  int64     `json:"reserved_quantity"`
	Available int64     `json:"available_quantity"`
	Level     string    `json:"level"`
	AsOf      time.Time `json:"as_of"`
}

// Cache stores availability snapshots keyed by SKU.
type Cache interface {
	Get(ctx context.Context, skuID string) (*Snapshot, error)
	Set(ctx context.Context, snap *Snapshot, ttl time.Duration) error
	Invalidate(ctx context.Context, skuID string) error
	Close() error
}
