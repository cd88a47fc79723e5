// Package plugin provides an extensible plugin system for the stock
// ledger. Plugins can hook into lifecycle events to extend
// functionality: audit trails, metric export, event feeds.
package plugin

import (
	"context"
	"time"

	"github.com/quayside/stockledger/audit"
	"github.com/quayside/stockledger/reservation"
	"github.com/quayside/stockledger/stock"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized. The ledger passes
// itself as l; plugins that need it assert to *stockledger.Ledger.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Stock lifecycle hooks
// ──────────────────────────────────────────────────

// OnStockCreated is called when a new stock record is created.
type OnStockCreated interface {
	Plugin
	OnStockCreated(ctx context.Context, rec *stock.Record) error
}

// OnReserved is called after a reservation commits. rec is the stock
// record as of the commit.
type OnReserved interface {
	Plugin
	OnReserved(ctx context.Context, rsv *reservation.Reservation, rec *stock.Record) error
}

// OnReleased is called after a reservation is released, whether by the
// caller or by the expiry reaper.
type OnReleased interface {
	Plugin
	OnReleased(ctx context.Context, rsv *reservation.Reservation, rec *stock.Record) error
}

// OnDeducted is called once per committed Deduct batch with the audit
// entries the batch produced, one per line in input order.
type OnDeducted interface {
	Plugin
	OnDeducted(ctx context.Context, entries []*audit.Entry) error
}

// OnAdjusted is called after a manual adjustment or restock commits.
type OnAdjusted interface {
	Plugin
	OnAdjusted(ctx context.Context, e *audit.Entry, rec *stock.Record) error
}

// ──────────────────────────────────────────────────
// Audit feed hooks
// ──────────────────────────────────────────────────

// OnAuditAppended is called for every audit entry written, in commit
// order. Consuming this feed is the supported way to observe every
// quantity change without polling.
type OnAuditAppended interface {
	Plugin
	OnAuditAppended(ctx context.Context, e *audit.Entry) error
}

// ──────────────────────────────────────────────────
// Threshold hooks
// ──────────────────────────────────────────────────

// OnLowStock is called when a committed mutation worsens a record's
// stock level into warning territory or beyond. It fires on the
// transition, not on every operation at a low level.
type OnLowStock interface {
	Plugin
	OnLowStock(ctx context.Context, rec *stock.Record, level stock.Level) error
}

// OnInvariantViolation is called when a stock record is observed with
// reserved outside [0, total]. This signals a bug or corrupted storage.
type OnInvariantViolation interface {
	Plugin
	OnInvariantViolation(ctx context.Context, skuID string, total, reserved int64) error
}

// ──────────────────────────────────────────────────
// Reaper hooks
// ──────────────────────────────────────────────────

// OnReservationExpired is called when the reaper releases an expired
// reservation. OnReleased fires as well for the same reservation.
type OnReservationExpired interface {
	Plugin
	OnReservationExpired(ctx context.Context, rsv *reservation.Reservation, rec *stock.Record) error
}

// OnSweepCompleted is called after each reaper sweep.
type OnSweepCompleted interface {
	Plugin
	OnSweepCompleted(ctx context.Context, released int, elapsed time.Duration) error
}
