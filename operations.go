package stockledger

import (
	"context"
	"fmt"
	"time"

	"github.com/quayside/stockledger/audit"
	"github.com/quayside/stockledger/id"
	"github.com/quayside/stockledger/reservation"
	"github.com/quayside/stockledger/stock"
	"github.com/quayside/stockledger/store"
	"github.com/quayside/stockledger/types"
	"go.opentelemetry.io/otel/attribute"
)

// ──────────────────────────────────────────────────
// Stock Management
// ──────────────────────────────────────────────────

// CreateStockInput describes a new stock record.
type CreateStockInput struct {
	SKUID             string
	InitialQuantity   int64
	WarningThreshold  int64
	CriticalThreshold int64
	Operator          string
}

// CreateStock creates the record for a SKU. An initial quantity above
// zero is written as a RESTOCK entry from zero so that replaying the
// SKU's audit trail from an empty snapshot reconciles.
func (l *Ledger) CreateStock(ctx context.Context, in CreateStockInput) (*stock.Record, error) {
	ctx, span := l.startSpan(ctx, "stockledger.CreateStock",
		attribute.String("sku_id", in.SKUID),
		attribute.Int64("initial_quantity", in.InitialQuantity),
	)
	var err error
	defer func() { endSpan(span, err) }()

	switch {
	case in.SKUID == "":
		err = ValidationError{Field: "sku_id", Message: "required"}
	case in.InitialQuantity < 0:
		err = ValidationError{Field: "initial_quantity", Message: "must not be negative"}
	case in.WarningThreshold < 0:
		err = ValidationError{Field: "warning_threshold", Message: "must not be negative"}
	case in.CriticalThreshold < 0:
		err = ValidationError{Field: "critical_threshold", Message: "must not be negative"}
	case in.CriticalThreshold > in.WarningThreshold:
		err = ValidationError{Field: "critical_threshold", Message: "must not exceed warning_threshold"}
	}
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	op := l.operatorOr(in.Operator)
	rec := &stock.Record{
		Entity:            types.NewEntityAt(now),
		SKUID:             in.SKUID,
		TotalQuantity:     in.InitialQuantity,
		WarningThreshold:  in.WarningThreshold,
		CriticalThreshold: in.CriticalThreshold,
		Active:            true,
	}

	var entry *audit.Entry
	err = l.store.Update(ctx, []string{in.SKUID}, func(ctx context.Context, tx store.Tx) error {
		if txErr := tx.InsertStock(ctx, rec); txErr != nil {
			return txErr
		}
		if in.InitialQuantity == 0 {
			return nil
		}
		entry = &audit.Entry{
			ID:             id.NewAuditEntryID(),
			SKUID:          in.SKUID,
			Type:           audit.TypeRestock,
			QuantityChange: in.InitialQuantity,
			QuantityBefore: 0,
			QuantityAfter:  in.InitialQuantity,
			Reason:         "initial stock",
			Operator:       op,
			CreatedAt:      now,
		}
		return tx.AppendAuditEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("stock record created",
		"sku_id", rec.SKUID,
		"total", rec.TotalQuantity,
		"warning_threshold", rec.WarningThreshold,
		"critical_threshold", rec.CriticalThreshold,
	)
	l.plugins.EmitStockCreated(ctx, rec)
	// A record born at or below its warning threshold alerts right away.
	if entry != nil {
		l.afterCommit(ctx, rec, stock.LevelNormal, entry)
	} else {
		l.afterCommit(ctx, rec, stock.LevelNormal)
	}
	return rec, nil
}

// SetThresholds replaces a record's warning and critical thresholds.
// Thresholds carry no quantity change, so no audit entry is written.
func (l *Ledger) SetThresholds(ctx context.Context, skuID string, warning, critical int64) (*stock.Record, error) {
	ctx, span := l.startSpan(ctx, "stockledger.SetThresholds",
		attribute.String("sku_id", skuID),
	)
	var err error
	defer func() { endSpan(span, err) }()

	switch {
	case skuID == "":
		err = ValidationError{Field: "sku_id", Message: "required"}
	case warning < 0:
		err = ValidationError{Field: "warning_threshold", Message: "must not be negative"}
	case critical < 0:
		err = ValidationError{Field: "critical_threshold", Message: "must not be negative"}
	case critical > warning:
		err = ValidationError{Field: "critical_threshold", Message: "must not exceed warning_threshold"}
	}
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	var (
		rec       *stock.Record
		prevLevel stock.Level
	)
	err = l.store.Update(ctx, []string{skuID}, func(ctx context.Context, tx store.Tx) error {
		var txErr error
		rec, txErr = tx.GetStock(ctx, skuID)
		if txErr != nil {
			return txErr
		}
		prevLevel = rec.Level()
		rec.WarningThreshold = warning
		rec.CriticalThreshold = critical
		rec.TouchAt(now)
		return tx.UpdateStock(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("stock thresholds updated",
		"sku_id", skuID,
		"warning_threshold", warning,
		"critical_threshold", critical,
	)
	l.afterCommit(ctx, rec, prevLevel)
	return rec, nil
}

// SetActive retires (false) or restores (true) a stock record. Retired
// records refuse new reservations and direct deductions but keep their
// history; records are never deleted.
func (l *Ledger) SetActive(ctx context.Context, skuID string, active bool) (*stock.Record, error) {
	ctx, span := l.startSpan(ctx, "stockledger.SetActive",
		attribute.String("sku_id", skuID),
		attribute.Bool("active", active),
	)
	var err error
	defer func() { endSpan(span, err) }()

	if skuID == "" {
		err = ValidationError{Field: "sku_id", Message: "required"}
		return nil, err
	}

	now := l.clock.Now()
	var (
		rec     *stock.Record
		changed bool
	)
	err = l.store.Update(ctx, []string{skuID}, func(ctx context.Context, tx store.Tx) error {
		var txErr error
		rec, txErr = tx.GetStock(ctx, skuID)
		if txErr != nil {
			return txErr
		}
		if rec.Active == active {
			return nil
		}
		rec.Active = active
		rec.TouchAt(now)
		changed = true
		return tx.UpdateStock(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		l.logger.Info("stock record active flag changed",
			"sku_id", skuID,
			"active", active,
		)
		l.refreshSnapshot(ctx, rec)
	}
	return rec, nil
}

// ──────────────────────────────────────────────────
// Reserve
// ──────────────────────────────────────────────────

// ReserveInput describes a stock hold to take.
type ReserveInput struct {
	SKUID       string
	Quantity    int64
	Kind        reservation.Kind
	ReferenceID string
	TTL         time.Duration
	Operator    string
}

// Reserve places a hold of Quantity units on a SKU, shrinking its
// available quantity without changing the total. Every call creates a
// fresh reservation; callers that need idempotency deduplicate on
// their own ReferenceID before calling.
func (l *Ledger) Reserve(ctx context.Context, in ReserveInput) (*reservation.Reservation, error) {
	ctx, span := l.startSpan(ctx, "stockledger.Reserve",
		attribute.String("sku_id", in.SKUID),
		attribute.Int64("quantity", in.Quantity),
		attribute.String("kind", string(in.Kind)),
	)
	var err error
	defer func() { endSpan(span, err) }()

	switch {
	case in.SKUID == "":
		err = ValidationError{Field: "sku_id", Message: "required"}
	case in.Quantity <= 0:
		err = ValidationError{Field: "quantity", Message: "must be positive"}
	case !in.Kind.Valid():
		err = ValidationError{Field: "kind", Message: fmt.Sprintf("unknown kind %q", in.Kind)}
	case in.TTL <= 0:
		err = ValidationError{Field: "ttl", Message: "must be positive"}
	}
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	rsv := &reservation.Reservation{
		Entity:      types.NewEntityAt(now),
		ID:          id.NewReservationID(),
		SKUID:       in.SKUID,
		Kind:        in.Kind,
		ReferenceID: in.ReferenceID,
		Quantity:    in.Quantity,
		ExpiresAt:   now.Add(in.TTL),
		Active:      true,
	}

	var (
		rec       *stock.Record
		prevLevel stock.Level
		entry     *audit.Entry
	)
	err = l.store.Update(ctx, []string{in.SKUID}, func(ctx context.Context, tx store.Tx) error {
		var txErr error
		rec, txErr = tx.GetStock(ctx, in.SKUID)
		if txErr != nil {
			return txErr
		}
		if !rec.CheckInvariant() {
			return InvariantViolationError{SKUID: rec.SKUID, Total: rec.TotalQuantity, Reserved: rec.ReservedQuantity}
		}
		if !rec.Active {
			return ErrInactiveStock
		}
		if avail := rec.Available(); avail < in.Quantity {
			return InsufficientStockError{SKUID: in.SKUID, Requested: in.Quantity, Available: avail}
		}
		prevLevel = rec.Level()

		before := rec.ReservedQuantity
		rec.ReservedQuantity += in.Quantity
		rec.TouchAt(now)

		entry = &audit.Entry{
			ID:             id.NewAuditEntryID(),
			SKUID:          in.SKUID,
			Type:           audit.TypeReserve,
			QuantityChange: in.Quantity,
			QuantityBefore: before,
			QuantityAfter:  rec.ReservedQuantity,
			ReservationID:  rsv.ID,
			Reference:      in.ReferenceID,
			Operator:       l.operatorOr(in.Operator),
			CreatedAt:      now,
		}

		if txErr = tx.UpdateStock(ctx, rec); txErr != nil {
			return txErr
		}
		if txErr = tx.InsertReservation(ctx, rsv); txErr != nil {
			return txErr
		}
		return tx.AppendAuditEntry(ctx, entry)
	})
	if err != nil {
		l.reportInvariant(ctx, err)
		return nil, err
	}

	l.logger.Debug("stock reserved",
		"sku_id", in.SKUID,
		"reservation_id", rsv.ID,
		"quantity", in.Quantity,
		"available", rec.Available(),
		"expires_at", rsv.ExpiresAt,
	)
	l.plugins.EmitReserved(ctx, rsv, rec)
	l.afterCommit(ctx, rec, prevLevel, entry)
	return rsv, nil
}

// ──────────────────────────────────────────────────
// Release
// ──────────────────────────────────────────────────

// ReleaseResult reports what Release did.
type ReleaseResult struct {
	ReservationID id.ReservationID `json:"reservation_id"`
	SKUID         string           `json:"sku_id"`
	Quantity      int64            `json:"quantity"`
	Released      bool             `json:"released"`
	Expired       bool             `json:"expired"`
}

// Release returns a reservation's quantity to the available pool.
// Releasing an already-inactive reservation is an idempotent no-op
// reported as success with Released=false; retries and races with the
// expiry reaper are safe.
func (l *Ledger) Release(ctx context.Context, reservationID id.ReservationID) (*ReleaseResult, error) {
	ctx, span := l.startSpan(ctx, "stockledger.Release",
		attribute.String("reservation_id", reservationID.String()),
	)
	var err error
	defer func() { endSpan(span, err) }()

	var result *ReleaseResult
	result, _, _, err = l.releaseAs(ctx, reservationID, l.operator)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// releaseAs is the shared release path for callers and the reaper. It
// returns the post-release reservation and stock record so the reaper
// can emit expiry events without re-reading.
func (l *Ledger) releaseAs(ctx context.Context, reservationID id.ReservationID, operator string) (*ReleaseResult, *reservation.Reservation, *stock.Record, error) {
	if reservationID.IsNil() {
		return nil, nil, nil, ValidationError{Field: "reservation_id", Message: "required"}
	}

	// Snapshot read first: it resolves the SKU to lock and lets the
	// already-inactive case return without taking the lock at all.
	rsv, err := l.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, nil, nil, err
	}

	now := l.clock.Now()
	result := &ReleaseResult{
		ReservationID: reservationID,
		SKUID:         rsv.SKUID,
		Quantity:      rsv.Quantity,
		Expired:       rsv.Expired(now),
	}
	if !rsv.Active {
		return result, rsv, nil, nil
	}

	var (
		rec       *stock.Record
		prevLevel stock.Level
		entry     *audit.Entry
		released  bool
		floored   bool
	)
	err = l.store.Update(ctx, []string{rsv.SKUID}, func(ctx context.Context, tx store.Tx) error {
		cur, txErr := tx.GetReservation(ctx, reservationID)
		if txErr != nil {
			return txErr
		}
		if !cur.Active {
			// Another releaser won the race; nothing to write.
			rsv = cur
			return nil
		}
		rec, txErr = tx.GetStock(ctx, cur.SKUID)
		if txErr != nil {
			return txErr
		}
		prevLevel = rec.Level()

		before := rec.ReservedQuantity
		after := before - cur.Quantity
		if after < 0 {
			floored = true
			after = 0
		}
		rec.ReservedQuantity = after
		rec.TouchAt(now)

		cur.Active = false
		releasedAt := now
		cur.ReleasedAt = &releasedAt
		cur.TouchAt(now)
		rsv = cur
		released = true

		entry = &audit.Entry{
			ID:             id.NewAuditEntryID(),
			SKUID:          cur.SKUID,
			Type:           audit.TypeRelease,
			QuantityChange: after - before,
			QuantityBefore: before,
			QuantityAfter:  after,
			ReservationID:  cur.ID,
			Reference:      cur.ReferenceID,
			Operator:       operator,
			CreatedAt:      now,
		}

		if txErr = tx.UpdateStock(ctx, rec); txErr != nil {
			return txErr
		}
		if txErr = tx.UpdateReservation(ctx, cur); txErr != nil {
			return txErr
		}
		return tx.AppendAuditEntry(ctx, entry)
	})
	if err != nil {
		l.reportInvariant(ctx, err)
		return nil, nil, nil, err
	}

	result.Released = released
	result.Expired = rsv.Expired(now)
	if !released {
		return result, rsv, nil, nil
	}

	if floored {
		// The hold exceeded the reserved quantity on record. The
		// release still proceeds (it moves state toward consistency)
		// but the corruption is reported.
		l.reportInvariant(ctx, InvariantViolationError{
			SKUID:    rsv.SKUID,
			Total:    rec.TotalQuantity,
			Reserved: entry.QuantityBefore - rsv.Quantity,
		})
	}

	l.logger.Debug("reservation released",
		"sku_id", rsv.SKUID,
		"reservation_id", rsv.ID,
		"quantity", rsv.Quantity,
		"operator", operator,
		"expired", result.Expired,
	)
	l.plugins.EmitReleased(ctx, rsv, rec)
	l.afterCommit(ctx, rec, prevLevel, entry)
	return result, rsv, rec, nil
}

// ──────────────────────────────────────────────────
// Deduct
// ──────────────────────────────────────────────────

// DeductItem is one line of a deduction batch. A zero ReservationID
// deducts directly from available stock; a set one consumes that
// reservation, which must be active, on the same SKU, and for exactly
// this quantity.
type DeductItem struct {
	SKUID         string
	Quantity      int64
	ReservationID id.ReservationID
}

// DeductInput describes a deduction batch. The batch commits
// atomically: one failing line leaves every SKU untouched.
type DeductInput struct {
	Items     []DeductItem
	Reference string
	Operator  string
}

// DeductionResult reports a committed deduction batch.
type DeductionResult struct {
	Reference string
	Deducted  int64
	Entries   []*audit.Entry
	Records   map[string]*stock.Record
}

// Deduct permanently removes stock, with or without reservations
// backing the lines. All SKUs in the batch are locked in ascending
// order and every line is validated before any quantity moves.
func (l *Ledger) Deduct(ctx context.Context, in DeductInput) (*DeductionResult, error) {
	ctx, span := l.startSpan(ctx, "stockledger.Deduct",
		attribute.Int("items", len(in.Items)),
		attribute.String("reference", in.Reference),
	)
	var err error
	defer func() { endSpan(span, err) }()

	if len(in.Items) == 0 {
		err = ValidationError{Field: "items", Message: "at least one item is required"}
		return nil, err
	}
	seenReservations := make(map[string]struct{})
	skuIDs := make([]string, 0, len(in.Items))
	for i, item := range in.Items {
		if item.SKUID == "" {
			err = ValidationError{Field: fmt.Sprintf("items[%d].sku_id", i), Message: "required"}
			return nil, err
		}
		if item.Quantity <= 0 {
			err = ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "must be positive"}
			return nil, err
		}
		if !item.ReservationID.IsNil() {
			rid := item.ReservationID.String()
			if _, dup := seenReservations[rid]; dup {
				err = ValidationError{Field: fmt.Sprintf("items[%d].reservation_id", i), Message: "duplicate reservation in batch"}
				return nil, err
			}
			seenReservations[rid] = struct{}{}
		}
		skuIDs = append(skuIDs, item.SKUID)
	}
	skus := sortSKUIDs(skuIDs)

	now := l.clock.Now()
	op := l.operatorOr(in.Operator)

	var (
		records    map[string]*stock.Record
		prevLevels map[string]stock.Level
		entries    []*audit.Entry
	)
	err = l.store.Update(ctx, skus, func(ctx context.Context, tx store.Tx) error {
		records = make(map[string]*stock.Record, len(skus))
		prevLevels = make(map[string]stock.Level, len(skus))
		for _, skuID := range skus {
			rec, txErr := tx.GetStock(ctx, skuID)
			if txErr != nil {
				return txErr
			}
			if !rec.CheckInvariant() {
				return InvariantViolationError{SKUID: rec.SKUID, Total: rec.TotalQuantity, Reserved: rec.ReservedQuantity}
			}
			records[skuID] = rec
			prevLevels[skuID] = rec.Level()
		}

		// Validate and apply line by line against the transaction-local
		// copies. A failing line aborts before anything is staged, so
		// the batch stays all-or-nothing. Repeated SKUs consume
		// availability cumulatively.
		consumed := make([]*reservation.Reservation, 0)
		entries = make([]*audit.Entry, 0, len(in.Items))
		for _, item := range in.Items {
			rec := records[item.SKUID]
			before := rec.TotalQuantity

			if item.ReservationID.IsNil() {
				if !rec.Active {
					return ErrInactiveStock
				}
				if avail := rec.Available(); avail < item.Quantity {
					return InsufficientStockError{SKUID: item.SKUID, Requested: item.Quantity, Available: avail}
				}
				rec.TotalQuantity -= item.Quantity
			} else {
				rsv, txErr := tx.GetReservation(ctx, item.ReservationID)
				if txErr != nil {
					return txErr
				}
				switch {
				case !rsv.Active:
					return ReservationMismatchError{ReservationID: item.ReservationID.String(), SKUID: item.SKUID, Reason: "reservation is no longer active"}
				case rsv.SKUID != item.SKUID:
					return ReservationMismatchError{ReservationID: item.ReservationID.String(), SKUID: item.SKUID, Reason: fmt.Sprintf("reservation holds sku %s", rsv.SKUID)}
				case rsv.Quantity != item.Quantity:
					return ReservationMismatchError{ReservationID: item.ReservationID.String(), SKUID: item.SKUID, Reason: fmt.Sprintf("reservation quantity %d, deduction quantity %d", rsv.Quantity, item.Quantity)}
				}
				rec.ReservedQuantity -= item.Quantity
				rec.TotalQuantity -= item.Quantity
				rsv.Active = false
				releasedAt := now
				rsv.ReleasedAt = &releasedAt
				rsv.TouchAt(now)
				consumed = append(consumed, rsv)
			}

			if !rec.CheckInvariant() {
				return InvariantViolationError{SKUID: rec.SKUID, Total: rec.TotalQuantity, Reserved: rec.ReservedQuantity}
			}
			rec.TouchAt(now)

			entries = append(entries, &audit.Entry{
				ID:             id.NewAuditEntryID(),
				SKUID:          item.SKUID,
				Type:           audit.TypeDeduct,
				QuantityChange: -item.Quantity,
				QuantityBefore: before,
				QuantityAfter:  rec.TotalQuantity,
				ReservationID:  item.ReservationID,
				Reference:      in.Reference,
				Operator:       op,
				CreatedAt:      now,
			})
		}

		for _, skuID := range skus {
			if txErr := tx.UpdateStock(ctx, records[skuID]); txErr != nil {
				return txErr
			}
		}
		for _, rsv := range consumed {
			if txErr := tx.UpdateReservation(ctx, rsv); txErr != nil {
				return txErr
			}
		}
		for _, e := range entries {
			if txErr := tx.AppendAuditEntry(ctx, e); txErr != nil {
				return txErr
			}
		}
		return nil
	})
	if err != nil {
		l.reportInvariant(ctx, err)
		return nil, err
	}

	result := &DeductionResult{
		Reference: in.Reference,
		Entries:   entries,
		Records:   records,
	}
	for _, e := range entries {
		result.Deducted += -e.QuantityChange
	}

	l.logger.Debug("stock deducted",
		"reference", in.Reference,
		"items", len(in.Items),
		"skus", len(skus),
		"deducted", result.Deducted,
	)
	l.plugins.EmitDeducted(ctx, entries)
	for _, e := range entries {
		l.plugins.EmitAuditAppended(ctx, e)
	}
	for _, skuID := range skus {
		rec := records[skuID]
		l.refreshSnapshot(ctx, rec)
		l.notifyLowStock(ctx, rec, prevLevels[skuID])
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Adjust
// ──────────────────────────────────────────────────

// AdjustInput describes a manual correction or restock.
type AdjustInput struct {
	SKUID     string
	Delta     int64
	Reason    string
	Reference string
	Operator  string
}

// AdjustmentResult reports a committed adjustment.
type AdjustmentResult struct {
	Record *stock.Record
	Entry  *audit.Entry
}

// Adjust changes a SKU's total quantity by a signed delta: restocks,
// spoilage, recounts. A positive delta is written as RESTOCK, a
// negative one as ADJUST. A negative delta may not push the total
// below the reserved quantity.
func (l *Ledger) Adjust(ctx context.Context, in AdjustInput) (*AdjustmentResult, error) {
	ctx, span := l.startSpan(ctx, "stockledger.Adjust",
		attribute.String("sku_id", in.SKUID),
		attribute.Int64("delta", in.Delta),
	)
	var err error
	defer func() { endSpan(span, err) }()

	switch {
	case in.SKUID == "":
		err = ValidationError{Field: "sku_id", Message: "required"}
	case in.Delta == 0:
		err = ValidationError{Field: "delta", Message: "must not be zero"}
	case in.Reason == "":
		err = ValidationError{Field: "reason", Message: "required"}
	}
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	entryType := audit.TypeAdjust
	if in.Delta > 0 {
		entryType = audit.TypeRestock
	}

	var (
		rec       *stock.Record
		prevLevel stock.Level
		entry     *audit.Entry
	)
	err = l.store.Update(ctx, []string{in.SKUID}, func(ctx context.Context, tx store.Tx) error {
		var txErr error
		rec, txErr = tx.GetStock(ctx, in.SKUID)
		if txErr != nil {
			return txErr
		}
		if !rec.CheckInvariant() {
			return InvariantViolationError{SKUID: rec.SKUID, Total: rec.TotalQuantity, Reserved: rec.ReservedQuantity}
		}
		if rec.TotalQuantity+in.Delta < rec.ReservedQuantity {
			return InvalidAdjustmentError{SKUID: in.SKUID, Delta: in.Delta, Total: rec.TotalQuantity, Reserved: rec.ReservedQuantity}
		}
		prevLevel = rec.Level()

		before := rec.TotalQuantity
		rec.TotalQuantity += in.Delta
		rec.TouchAt(now)

		entry = &audit.Entry{
			ID:             id.NewAuditEntryID(),
			SKUID:          in.SKUID,
			Type:           entryType,
			QuantityChange: in.Delta,
			QuantityBefore: before,
			QuantityAfter:  rec.TotalQuantity,
			Reference:      in.Reference,
			Reason:         in.Reason,
			Operator:       l.operatorOr(in.Operator),
			CreatedAt:      now,
		}

		if txErr = tx.UpdateStock(ctx, rec); txErr != nil {
			return txErr
		}
		return tx.AppendAuditEntry(ctx, entry)
	})
	if err != nil {
		l.reportInvariant(ctx, err)
		return nil, err
	}

	l.logger.Debug("stock adjusted",
		"sku_id", in.SKUID,
		"delta", in.Delta,
		"type", entryType,
		"reason", in.Reason,
		"total", rec.TotalQuantity,
	)
	l.plugins.EmitAdjusted(ctx, entry, rec)
	l.afterCommit(ctx, rec, prevLevel, entry)
	return &AdjustmentResult{Record: rec, Entry: entry}, nil
}
