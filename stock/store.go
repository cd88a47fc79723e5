package stock

import (
	"context"
)

// Store is the read contract for stock records. All mutation goes
// through the engine's transactional write path, which is the only
// writer for this entity.
type Store interface {
	Get(ctx context.Context, skuID string) (*Record, error)
	BatchGet(ctx context.Context, skuIDs []string) ([]*Record, error)
	ListLow(ctx context.Context, level Level, opts ListOpts) ([]*Record, error)
}

// ListOpts bounds low-stock listings.
type ListOpts struct {
	Limit  int
	Offset int
}
