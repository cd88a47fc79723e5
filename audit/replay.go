package audit

import "fmt"

// Snapshot is the pair of quantities a replay starts from and arrives at.
type Snapshot struct {
	Total    int64
	Reserved int64
}

// Replay applies a SKU's entries, oldest first, to an initial snapshot
// and returns the resulting quantities. Reconciliation compares the
// result against the live record; any divergence means entries were
// lost, mutated, or written outside the engine.
func Replay(initial Snapshot, entries []*Entry) (Snapshot, error) {
	s := initial
	for _, e := range entries {
		switch e.Type {
		case TypeReserve, TypeRelease:
			s.Reserved += e.QuantityChange
		case TypeDeduct:
			s.Total += e.QuantityChange
			if !e.ReservationID.IsNil() {
				// A reservation-backed deduction consumed the hold too.
				s.Reserved += e.QuantityChange
			}
		case TypeAdjust, TypeRestock:
			s.Total += e.QuantityChange
		default:
			return Snapshot{}, fmt.Errorf("audit: replay %s: unknown entry type %q", e.ID, e.Type)
		}

		if s.Reserved < 0 || s.Reserved > s.Total {
			return Snapshot{}, fmt.Errorf("audit: replay %s: invariant broken (total=%d reserved=%d)",
				e.ID, s.Total, s.Reserved)
		}
	}
	return s, nil
}
