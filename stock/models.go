package stock

import (
	"github.com/quayside/stockledger/types"
)

// Level classifies a record's urgency from its current snapshot.
type Level string

const (
	LevelNormal     Level = "normal"
	LevelWarning    Level = "warning"
	LevelCritical   Level = "critical"
	LevelOutOfStock Level = "out_of_stock"
)

// severity orders levels from least to most urgent.
var severity = map[Level]int{
	LevelNormal:     0,
	LevelWarning:    1,
	LevelCritical:   2,
	LevelOutOfStock: 3,
}

// AtLeast reports whether l is at least as urgent as other.
func (l Level) AtLeast(other Level) bool {
	return severity[l] >= severity[other]
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	_, ok := severity[l]
	return ok
}

// Record tracks the quantities owned and held for one SKU.
// Quantities are mutated only through the ledger engine; the invariant
// 0 <= ReservedQuantity <= TotalQuantity holds at every commit point.
type Record struct {
	types.Entity
	SKUID             string `json:"sku_id"`
	TotalQuantity     int64  `json:"total_quantity"`
	ReservedQuantity  int64  `json:"reserved_quantity"`
	WarningThreshold  int64  `json:"warning_threshold"`
	CriticalThreshold int64  `json:"critical_threshold"`
	Active            bool   `json:"is_active"`
}

// Available returns the quantity that can currently be reserved or
// deducted directly: total minus reserved, floored at zero.
func (r *Record) Available() int64 {
	avail := r.TotalQuantity - r.ReservedQuantity
	if avail < 0 {
		return 0
	}
	return avail
}

// Level classifies the record's urgency from its current snapshot.
func (r *Record) Level() Level {
	avail := r.Available()
	switch {
	case avail == 0:
		return LevelOutOfStock
	case avail <= r.CriticalThreshold:
		return LevelCritical
	case avail <= r.WarningThreshold:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// CheckInvariant reports whether the reserved/total invariant holds.
func (r *Record) CheckInvariant() bool {
	return r.ReservedQuantity >= 0 && r.ReservedQuantity <= r.TotalQuantity
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}
