package audit

import (
	"context"
	"time"
)

// Store is the read contract for the audit ledger. Entries are written
// only by the engine, inside the same transaction as the mutation they
// describe, and are never updated or deleted.
type Store interface {
	List(ctx context.Context, skuID string, opts QueryOpts) ([]*Entry, error)
}

// QueryOpts bounds an audit trail query. Zero times are unbounded;
// results are ordered by created_at ascending.
type QueryOpts struct {
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}
