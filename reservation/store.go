package reservation

import (
	"context"
	"time"

	"github.com/quayside/stockledger/id"
)

// Store is the read contract for the reservation registry: lookup by id,
// by SKU, by caller reference, and by "active and expired as of T" for
// the expiry reaper. The engine is the registry's only writer.
type Store interface {
	Get(ctx context.Context, reservationID id.ReservationID) (*Reservation, error)
	List(ctx context.Context, q Query) ([]*Reservation, error)
	ListExpired(ctx context.Context, asOf time.Time, limit int) ([]*Reservation, error)
}

// Query filters reservation listings. Zero fields are ignored.
type Query struct {
	SKUID       string
	ReferenceID string
	ActiveOnly  bool
	Limit       int
	Offset      int
}
