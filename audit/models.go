package audit

import (
	"time"

	"github.com/quayside/stockledger/id"
)

// Type identifies which operation produced an entry.
type Type string

const (
	TypeReserve Type = "reserve"
	TypeRelease Type = "release"
	TypeDeduct  Type = "deduct"
	TypeAdjust  Type = "adjust"
	TypeRestock Type = "restock"
)

// Valid reports whether t is a known entry type.
func (t Type) Valid() bool {
	switch t {
	case TypeReserve, TypeRelease, TypeDeduct, TypeAdjust, TypeRestock:
		return true
	default:
		return false
	}
}

// Entry is one immutable record of a quantity-changing operation.
// Entries are never updated or deleted; replaying a SKU's entries from
// an initial snapshot reproduces its current quantities.
//
// QuantityBefore/QuantityAfter track whichever quantity the operation
// affects: reserved for RESERVE and RELEASE, total for DEDUCT, ADJUST
// and RESTOCK. A DEDUCT that consumed a reservation carries its id so
// replay knows to decrement the reserved quantity as well.
type Entry struct {
	ID             id.AuditEntryID  `json:"id"`
	SKUID          string           `json:"sku_id"`
	Type           Type             `json:"transaction_type"`
	QuantityChange int64            `json:"quantity_change"`
	QuantityBefore int64            `json:"quantity_before"`
	QuantityAfter  int64            `json:"quantity_after"`
	ReservationID  id.ReservationID `json:"reservation_id,omitempty"`
	Reference      string           `json:"reference"`
	Reason         string           `json:"reason,omitempty"`
	Operator       string           `json:"operator"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Clone returns a copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}
