package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/quayside/stockledger/audit"
	"github.com/quayside/stockledger/id"
	"github.com/quayside/stockledger/reservation"
	"github.com/quayside/stockledger/stock"
)

// Row mapping for the three tables. Column lists and scanners live
// here so every query in store.go selects the same shape.

// ==================== Stock rows ====================

const stockColumns = `sku_id, total_quantity, reserved_quantity, warning_threshold, critical_threshold, is_active, created_at, updated_at`

func scanStock(row pgx.Row) (*stock.Record, error) {
	var r stock.Record
	err := row.Scan(
		&r.SKUID,
		&r.TotalQuantity,
		&r.ReservedQuantity,
		&r.WarningThreshold,
		&r.CriticalThreshold,
		&r.Active,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ==================== Reservation rows ====================

const reservationColumns = `id, sku_id, kind, reference_id, quantity, expires_at, is_active, released_at, created_at, updated_at`

func scanReservation(row pgx.Row) (*reservation.Reservation, error) {
	var (
		r     reservation.Reservation
		rawID string
		kind  string
	)
	err := row.Scan(
		&rawID,
		&r.SKUID,
		&kind,
		&r.ReferenceID,
		&r.Quantity,
		&r.ExpiresAt,
		&r.Active,
		&r.ReleasedAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Kind = reservation.Kind(kind)
	r.ID, err = id.ParseReservationID(rawID)
	if err != nil {
		return nil, fmt.Errorf("reservation id %q: %w", rawID, err)
	}
	return &r, nil
}

// ==================== Audit rows ====================

const auditColumns = `id, sku_id, transaction_type, quantity_change, quantity_before, quantity_after, reservation_id, reference, reason, operator, created_at`

func scanAuditEntry(row pgx.Row) (*audit.Entry, error) {
	var (
		e         audit.Entry
		rawID     string
		entryType string
		rsvID     *string
	)
	err := row.Scan(
		&rawID,
		&e.SKUID,
		&entryType,
		&e.QuantityChange,
		&e.QuantityBefore,
		&e.QuantityAfter,
		&rsvID,
		&e.Reference,
		&e.Reason,
		&e.Operator,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Type = audit.Type(entryType)
	e.ID, err = id.ParseAuditEntryID(rawID)
	if err != nil {
		return nil, fmt.Errorf("audit entry id %q: %w", rawID, err)
	}
	if rsvID != nil {
		e.ReservationID, err = id.ParseReservationID(*rsvID)
		if err != nil {
			return nil, fmt.Errorf("audit reservation id %q: %w", *rsvID, err)
		}
	}
	return &e, nil
}

// nullableID returns the TEXT value for an optional id column, NULL
// when the id is nil.
func nullableID(v id.ID) any {
	if v.IsNil() {
		return nil
	}
	return v.String()
}
