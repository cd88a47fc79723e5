package reservation

import (
	"time"

	"github.com/quayside/stockledger/id"
	"github.com/quayside/stockledger/types"
)

// Kind tags what a hold was taken for. It carries no behavioral
// difference today but stays enumerable for future hold sources.
type Kind string

const (
	KindCart  Kind = "cart"
	KindOrder Kind = "order"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCart, KindOrder:
		return true
	default:
		return false
	}
}

// Reservation is one temporary claim on stock. It is created by Reserve
// and terminated exactly once: by Release, by a reservation-backed
// Deduct, or by the expiry reaper. Once inactive it is immutable and
// never reactivated.
type Reservation struct {
	types.Entity
	ID          id.ReservationID `json:"id"`
	SKUID       string           `json:"sku_id"`
	Kind        Kind             `json:"kind"`
	ReferenceID string           `json:"reference_id"`
	Quantity    int64            `json:"quantity"`
	ExpiresAt   time.Time        `json:"expires_at"`
	Active      bool             `json:"is_active"`
	ReleasedAt  *time.Time       `json:"released_at,omitempty"`
}

// Expired reports whether the reservation is past its expiry as of now.
func (r *Reservation) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Clone returns a deep copy of the reservation.
func (r *Reservation) Clone() *Reservation {
	c := *r
	if r.ReleasedAt != nil {
		t := *r.ReleasedAt
		c.ReleasedAt = &t
	}
	return &c
}
