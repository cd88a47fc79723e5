package store

import (
	"context"
	"time"

	"github.com/quayside/stockledger/audit"
	"github.com/quayside/stockledger/id"
	"github.com/quayside/stockledger/reservation"
	"github.com/quayside/stockledger/stock"
)

// Store is the unified storage interface for all ledger entities.
// Instead of embedding the per-entity sub-interfaces, we explicitly
// declare all methods to avoid naming conflicts.
//
// Reads are snapshot reads taken outside any lock and may observe state
// from before a concurrent Update commits; they never observe a state
// where the reserved/total invariant is broken.
type Store interface {
	// Stock reads
	GetStock(ctx context.Context, skuID string) (*stock.Record, error)
	BatchGetStock(ctx context.Context, skuIDs []string) ([]*stock.Record, error)
	ListLowStock(ctx context.Context, level stock.Level, opts stock.ListOpts) ([]*stock.Record, error)

	// Reservation reads
	GetReservation(ctx context.Context, reservationID id.ReservationID) (*reservation.Reservation, error)
	ListReservations(ctx context.Context, q reservation.Query) ([]*reservation.Reservation, error)
	ListExpiredReservations(ctx context.Context, asOf time.Time, limit int) ([]*reservation.Reservation, error)

	// Audit reads
	ListAuditEntries(ctx context.Context, skuID string, opts audit.QueryOpts) ([]*audit.Entry, error)

	// Update runs fn inside a single atomic critical section that holds an
	// exclusive lock per SKU in skuIDs. Callers must pass skuIDs sorted
	// ascending and deduplicated; implementations acquire locks in exactly
	// that order, which is what makes overlapping multi-SKU batches
	// deadlock-free. If fn returns an error the transaction rolls back and
	// no write is visible to any reader.
	Update(ctx context.Context, skuIDs []string, fn func(ctx context.Context, tx Tx) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the transactional view handed to an Update callback. Reads see
// the transaction's own writes; writes become visible atomically when
// the callback returns nil. Audit entries are insert-only by
// construction: no update or delete path exists.
type Tx interface {
	GetStock(ctx context.Context, skuID string) (*stock.Record, error)
	InsertStock(ctx context.Context, r *stock.Record) error
	UpdateStock(ctx context.Context, r *stock.Record) error

	GetReservation(ctx context.Context, reservationID id.ReservationID) (*reservation.Reservation, error)
	InsertReservation(ctx context.Context, rsv *reservation.Reservation) error
	UpdateReservation(ctx context.Context, rsv *reservation.Reservation) error

	AppendAuditEntry(ctx context.Context, e *audit.Entry) error
}
