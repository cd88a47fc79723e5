package stockledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/quayside/stockledger/audit"
	"github.com/quayside/stockledger/cache"
	"github.com/quayside/stockledger/id"
	"github.com/quayside/stockledger/reservation"
	"github.com/quayside/stockledger/stock"
	"go.opentelemetry.io/otel/attribute"
)

// ──────────────────────────────────────────────────
// Stock reads
// ──────────────────────────────────────────────────

// GetStock returns the authoritative record for one SKU. A record
// observed with reserved outside [0, total] is reported and returned
// as an error rather than served.
func (l *Ledger) GetStock(ctx context.Context, skuID string) (*stock.Record, error) {
	ctx, span := l.startSpan(ctx, "stockledger.GetStock",
		attribute.String("sku_id", skuID),
	)
	var err error
	defer func() { endSpan(span, err) }()

	if skuID == "" {
		err = ValidationError{Field: "sku_id", Message: "required"}
		return nil, err
	}

	var rec *stock.Record
	rec, err = l.store.GetStock(ctx, skuID)
	if err != nil {
		return nil, err
	}
	if !rec.CheckInvariant() {
		err = InvariantViolationError{SKUID: rec.SKUID, Total: rec.TotalQuantity, Reserved: rec.ReservedQuantity}
		l.reportInvariant(ctx, err)
		return nil, err
	}
	return rec, nil
}

// BatchGetStock returns records for the given SKUs in input order.
// Unknown SKUs are silently omitted; this is a display read.
func (l *Ledger) BatchGetStock(ctx context.Context, skuIDs []string) ([]*stock.Record, error) {
	ctx, span := l.startSpan(ctx, "stockledger.BatchGetStock",
		attribute.Int("skus", len(skuIDs)),
	)
	var err error
	defer func() { endSpan(span, err) }()

	if len(skuIDs) == 0 {
		return []*stock.Record{}, nil
	}

	var recs []*stock.Record
	recs, err = l.store.BatchGetStock(ctx, skuIDs)
	return recs, err
}

// GetAvailability returns an advisory availability snapshot for
// display. It serves from the snapshot cache when one is configured
// and falls back to the store on a miss; the snapshot may lag the
// authoritative record, and reservations must never be decided on it.
func (l *Ledger) GetAvailability(ctx context.Context, skuID string) (*cache.Snapshot, error) {
	ctx, span := l.startSpan(ctx, "stockledger.GetAvailability",
		attribute.String("sku_id", skuID),
	)
	var err error
	defer func() { endSpan(span, err) }()

	if skuID == "" {
		err = ValidationError{Field: "sku_id", Message: "required"}
		return nil, err
	}

	if l.cache != nil {
		snap, cerr := l.cache.Get(ctx, skuID)
		if cerr == nil {
			return snap, nil
		}
		if !errors.Is(cerr, cache.ErrMiss) {
			l.logger.Warn("availability cache read failed",
				"sku_id", skuID,
				"error", cerr,
			)
		}
	}

	var rec *stock.Record
	rec, err = l.store.GetStock(ctx, skuID)
	if err != nil {
		return nil, err
	}
	snap := l.snapshotOf(rec)
	if l.cache != nil {
		_ = l.cache.Set(ctx, snap, l.cacheTTL) //nolint:errcheck // best-effort cache fill
	}
	return snap, nil
}

// ListLowStock returns active records whose level is at least as
// urgent as the given one: ListLowStock(LevelWarning) includes
// critical and out-of-stock records too.
func (l *Ledger) ListLowStock(ctx context.Context, level stock.Level, opts stock.ListOpts) ([]*stock.Record, error) {
	ctx, span := l.startSpan(ctx, "stockledger.ListLowStock",
		attribute.String("level", string(level)),
	)
	var err error
	defer func() { endSpan(span, err) }()

	if !level.Valid() {
		err = ValidationError{Field: "level", Message: fmt.Sprintf("unknown level %q", level)}
		return nil, err
	}

	var recs []*stock.Record
	recs, err = l.store.ListLowStock(ctx, level, opts)
	return recs, err
}

// ──────────────────────────────────────────────────
// Audit reads
// ──────────────────────────────────────────────────

// GetAuditTrail returns a SKU's audit entries ordered by creation time
// ascending, optionally bounded to [From, To).
func (l *Ledger) GetAuditTrail(ctx context.Context, skuID string, opts audit.QueryOpts) ([]*audit.Entry, error) {
	ctx, span := l.startSpan(ctx, "stockledger.GetAuditTrail",
		attribute.String("sku_id", skuID),
	)
	var err error
	defer func() { endSpan(span, err) }()

	if skuID == "" {
		err = ValidationError{Field: "sku_id", Message: "required"}
		return nil, err
	}

	var entries []*audit.Entry
	entries, err = l.store.ListAuditEntries(ctx, skuID, opts)
	return entries, err
}

// ──────────────────────────────────────────────────
// Reservation reads
// ──────────────────────────────────────────────────

// GetReservation returns one reservation by id.
func (l *Ledger) GetReservation(ctx context.Context, reservationID id.ReservationID) (*reservation.Reservation, error) {
	ctx, span := l.startSpan(ctx, "stockledger.GetReservation",
		attribute.String("reservation_id", reservationID.String()),
	)
	var err error
	defer func() { endSpan(span, err) }()

	if reservationID.IsNil() {
		err = ValidationError{Field: "reservation_id", Message: "required"}
		return nil, err
	}

	var rsv *reservation.Reservation
	rsv, err = l.store.GetReservation(ctx, reservationID)
	return rsv, err
}

// ListReservations lists reservations filtered by SKU, caller
// reference, and active state.
func (l *Ledger) ListReservations(ctx context.Context, q reservation.Query) ([]*reservation.Reservation, error) {
	ctx, span := l.startSpan(ctx, "stockledger.ListReservations",
		attribute.String("sku_id", q.SKUID),
	)
	var err error
	defer func() { endSpan(span, err) }()

	var rsvs []*reservation.Reservation
	rsvs, err = l.store.ListReservations(ctx, q)
	return rsvs, err
}
