// Package memory provides an in-memory Store implementation. It is the
// default backend and the one the test suite runs against: fully
// transactional, safe for concurrent use, and empty on every restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quayside/stockledger"
	"github.com/quayside/stockledger/audit"
	"github.com/quayside/stockledger/id"
	"github.com/quayside/stockledger/reservation"
	"github.com/quayside/stockledger/stock"
	"github.com/quayside/stockledger/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Stock records keyed by SKU id
	stocks map[string]*stock.Record

	// Reservations keyed by reservation id
	reservations map[string]*reservation.Reservation

	// Append-only audit trail, in commit order
	entries []*audit.Entry

	// Per-SKU critical-section locks, created on first use
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	closed bool
}

func New() *Store {
	return &Store{
		stocks:       make(map[string]*stock.Record),
		reservations: make(map[string]*reservation.Reservation),
		entries:      make([]*audit.Entry, 0),
		locks:        make(map[string]*sync.Mutex),
	}
}

// ──────────────────────────────────────────────
// Stock reads
// ──────────────────────────────────────────────

func (s *Store) GetStock(_ context.Context, skuID string) (*stock.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.stocks[skuID]; ok {
		return r.Clone(), nil
	}
	return nil, stockledger.ErrStockNotFound
}

func (s *Store) BatchGetStock(_ context.Context, skuIDs []string) ([]*stock.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*stock.Record, 0, len(skuIDs))
	for _, skuID := range skuIDs {
		if r, ok := s.stocks[skuID]; ok {
			result = append(result, r.Clone())
		}
	}
	return result, nil
}

func (s *Store) ListLowStock(_ context.Context, level stock.Level, opts stock.ListOpts) ([]*stock.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*stock.Record, 0)
	for _, r := range s.stocks {
		if r.Active && r.Level().AtLeast(level) {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SKUID < result[j].SKUID })

	// Apply limit/offset
	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

// ──────────────────────────────────────────────
// Reservation reads
// ──────────────────────────────────────────────

func (s *Store) GetReservation(_ context.Context, reservationID id.ReservationID) (*reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rsv, ok := s.reservations[reservationID.String()]; ok {
		return rsv.Clone(), nil
	}
	return nil, stockledger.ErrReservationNotFound
}

func (s *Store) ListReservations(_ context.Context, q reservation.Query) ([]*reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*reservation.Reservation, 0)
	for _, rsv := range s.reservations {
		if q.SKUID != "" && rsv.SKUID != q.SKUID {
			continue
		}
		if q.ReferenceID != "" && rsv.ReferenceID != q.ReferenceID {
			continue
		}
		if q.ActiveOnly && !rsv.Active {
			continue
		}
		result = append(result, rsv.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})

	start := q.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + q.Limit
	if q.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) ListExpiredReservations(_ context.Context, asOf time.Time, limit int) ([]*reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*reservation.Reservation, 0)
	for _, rsv := range s.reservations {
		if rsv.Active && rsv.Expired(asOf) {
			result = append(result, rsv.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ExpiresAt.Equal(result[j].ExpiresAt) {
			return result[i].ExpiresAt.Before(result[j].ExpiresAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ──────────────────────────────────────────────
// Audit reads
// ──────────────────────────────────────────────

func (s *Store) ListAuditEntries(_ context.Context, skuID string, opts audit.QueryOpts) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Entries are appended in commit order, so the slice is already
	// sorted by created_at ascending.
	result := make([]*audit.Entry, 0)
	for _, e := range s.entries {
		if e.SKUID != skuID {
			continue
		}
		if !opts.From.IsZero() && e.CreatedAt.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && !e.CreatedAt.Before(opts.To) {
			continue
		}
		result = append(result, e.Clone())
	}

	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

// ──────────────────────────────────────────────
// Transactional writes
// ──────────────────────────────────────────────

// Update locks the given SKUs one by one in the order passed, runs fn
// against a staged write set, and applies the whole set under the store
// lock only if fn succeeds. Callers pass skuIDs sorted ascending, which
// keeps overlapping batches deadlock-free.
func (s *Store) Update(ctx context.Context, skuIDs []string, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return stockledger.ErrStoreClosed
	}

	locks := make([]*sync.Mutex, 0, len(skuIDs))
	for _, skuID := range skuIDs {
		locks = append(locks, s.lockFor(skuID))
	}
	for _, l := range locks {
		l.Lock()
	}
	defer func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}()

	tx := &memTx{
		s:            s,
		stocks:       make(map[string]*stock.Record),
		reservations: make(map[string]*reservation.Reservation),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for skuID, r := range tx.stocks {
		s.stocks[skuID] = r
	}
	for rid, rsv := range tx.reservations {
		s.reservations[rid] = rsv
	}
	s.entries = append(s.entries, tx.entries...)
	return nil
}

func (s *Store) lockFor(skuID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[skuID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[skuID] = l
	}
	return l
}

// memTx stages writes in private maps until the Update callback returns
// nil. Reads see the staged state first, then the committed state.
type memTx struct {
	s            *Store
	stocks       map[string]*stock.Record
	reservations map[string]*reservation.Reservation
	entries      []*audit.Entry
}

var _ store.Tx = (*memTx)(nil)

func (tx *memTx) GetStock(_ context.Context, skuID string) (*stock.Record, error) {
	if r, ok := tx.stocks[skuID]; ok {
		return r.Clone(), nil
	}

	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	if r, ok := tx.s.stocks[skuID]; ok {
		return r.Clone(), nil
	}
	return nil, stockledger.ErrStockNotFound
}

func (tx *memTx) InsertStock(_ context.Context, r *stock.Record) error {
	if _, staged := tx.stocks[r.SKUID]; staged {
		return stockledger.ErrStockExists
	}
	tx.s.mu.RLock()
	_, exists := tx.s.stocks[r.SKUID]
	tx.s.mu.RUnlock()
	if exists {
		return stockledger.ErrStockExists
	}

	tx.stocks[r.SKUID] = r.Clone()
	return nil
}

func (tx *memTx) UpdateStock(_ context.Context, r *stock.Record) error {
	if _, staged := tx.stocks[r.SKUID]; !staged {
		tx.s.mu.RLock()
		_, exists := tx.s.stocks[r.SKUID]
		tx.s.mu.RUnlock()
		if !exists {
			return stockledger.ErrStockNotFound
		}
	}

	tx.stocks[r.SKUID] = r.Clone()
	return nil
}

func (tx *memTx) GetReservation(_ context.Context, reservationID id.ReservationID) (*reservation.Reservation, error) {
	if rsv, ok := tx.reservations[reservationID.String()]; ok {
		return rsv.Clone(), nil
	}

	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	if rsv, ok := tx.s.reservations[reservationID.String()]; ok {
		return rsv.Clone(), nil
	}
	return nil, stockledger.ErrReservationNotFound
}

func (tx *memTx) InsertReservation(_ context.Context, rsv *reservation.Reservation) error {
	rid := rsv.ID.String()
	if _, staged := tx.reservations[rid]; staged {
		return fmt.Errorf("memory: duplicate reservation id %s", rid)
	}
	tx.s.mu.RLock()
	_, exists := tx.s.reservations[rid]
	tx.s.mu.RUnlock()
	if exists {
		return fmt.Errorf("memory: duplicate reservation id %s", rid)
	}

	tx.reservations[rid] = rsv.Clone()
	return nil
}

func (tx *memTx) UpdateReservation(_ context.Context, rsv *reservation.Reservation) error {
	rid := rsv.ID.String()
	if _, staged := tx.reservations[rid]; !staged {
		tx.s.mu.RLock()
		_, exists := tx.s.reservations[rid]
		tx.s.mu.RUnlock()
		if !exists {
			return stockledger.ErrReservationNotFound
		}
	}

	tx.reservations[rid] = rsv.Clone()
	return nil
}

func (tx *memTx) AppendAuditEntry(_ context.Context, e *audit.Entry) error {
	tx.entries = append(tx.entries, e.Clone())
	return nil
}

// ──────────────────────────────────────────────
// Store management
// ──────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return stockledger.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
