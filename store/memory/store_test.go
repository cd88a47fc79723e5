package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quayside/stockledger"
	"github.com/quayside/stockledger/audit"
	"github.com/quayside/stockledger/id"
	"github.com/quayside/stockledger/reservation"
	"github.com/quayside/stockledger/stock"
	"github.com/quayside/stockledger/store"
	"github.com/quayside/stockledger/store/memory"
	"github.com/quayside/stockledger/types"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func record(skuID string, total, reserved int64) *stock.Record {
	return &stock.Record{
		Entity:           types.NewEntityAt(base),
		SKUID:            skuID,
		TotalQuantity:    total,
		ReservedQuantity: reserved,
		Active:           true,
	}
}

func hold(skuID string, qty int64, expiresAt time.Time) *reservation.Reservation {
	return &reservation.Reservation{
		Entity:    types.NewEntityAt(base),
		ID:        id.NewReservationID(),
		SKUID:     skuID,
		Kind:      reservation.KindCart,
		Quantity:  qty,
		ExpiresAt: expiresAt,
		Active:    true,
	}
}

func seedRecord(t *testing.T, s *memory.Store, rec *stock.Record) {
	t.Helper()
	err := s.Update(context.Background(), []string{rec.SKUID}, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertStock(ctx, rec)
	})
	if err != nil {
		t.Fatalf("seed %s: %v", rec.SKUID, err)
	}
}

func TestUpdateCommitsAtomically(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	rsv := hold("sku-1", 5, base.Add(time.Hour))
	err := s.Update(ctx, []string{"sku-1"}, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertStock(ctx, record("sku-1", 100, 5)); err != nil {
			return err
		}
		if err := tx.InsertReservation(ctx, rsv); err != nil {
			return err
		}
		return tx.AppendAuditEntry(ctx, &audit.Entry{
			ID: id.NewAuditEntryID(), SKUID: "sku-1", Type: audit.TypeReserve,
			QuantityChange: 5, CreatedAt: base,
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	rec, err := s.GetStock(ctx, "sku-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.TotalQuantity != 100 || rec.ReservedQuantity != 5 {
		t.Errorf("record = %d/%d, want 100/5", rec.TotalQuantity, rec.ReservedQuantity)
	}
	if _, err := s.GetReservation(ctx, rsv.ID); err != nil {
		t.Errorf("reservation not committed: %v", err)
	}
	entries, err := s.ListAuditEntries(ctx, "sku-1", audit.QueryOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
}

func TestUpdateRollsBackOnError(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	seedRecord(t, s, record("sku-rb", 100, 0))

	sentinel := errors.New("abort")
	rsv := hold("sku-rb", 5, base.Add(time.Hour))
	err := s.Update(ctx, []string{"sku-rb"}, func(ctx context.Context, tx store.Tx) error {
		rec, err := tx.GetStock(ctx, "sku-rb")
		if err != nil {
			return err
		}
		rec.ReservedQuantity = 50
		if err := tx.UpdateStock(ctx, rec); err != nil {
			return err
		}
		if err := tx.InsertReservation(ctx, rsv); err != nil {
			return err
		}
		if err := tx.AppendAuditEntry(ctx, &audit.Entry{
			ID: id.NewAuditEntryID(), SKUID: "sku-rb", Type: audit.TypeReserve, CreatedAt: base,
		}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	// Nothing staged may leak.
	rec, err := s.GetStock(ctx, "sku-rb")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ReservedQuantity != 0 {
		t.Errorf("reserved = %d after rollback, want 0", rec.ReservedQuantity)
	}
	if _, err := s.GetReservation(ctx, rsv.ID); !errors.Is(err, stockledger.ErrReservationNotFound) {
		t.Errorf("reservation leaked: %v", err)
	}
	entries, err := s.ListAuditEntries(ctx, "sku-rb", audit.QueryOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %d after rollback, want 0", len(entries))
	}
}

func TestTxReadsSeeStagedWrites(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	err := s.Update(ctx, []string{"sku-stage"}, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertStock(ctx, record("sku-stage", 10, 0)); err != nil {
			return err
		}
		rec, err := tx.GetStock(ctx, "sku-stage")
		if err != nil {
			return err
		}
		if rec.TotalQuantity != 10 {
			t.Errorf("staged read = %d, want 10", rec.TotalQuantity)
		}
		rec.TotalQuantity = 20
		if err := tx.UpdateStock(ctx, rec); err != nil {
			return err
		}
		rec, err = tx.GetStock(ctx, "sku-stage")
		if err != nil {
			return err
		}
		if rec.TotalQuantity != 20 {
			t.Errorf("second staged read = %d, want 20", rec.TotalQuantity)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestInsertStockDuplicate(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	seedRecord(t, s, record("sku-dup", 10, 0))

	err := s.Update(ctx, []string{"sku-dup"}, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertStock(ctx, record("sku-dup", 5, 0))
	})
	if !errors.Is(err, stockledger.ErrStockExists) {
		t.Errorf("expected ErrStockExists, got %v", err)
	}
}

func TestUpdateMissingRows(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	err := s.Update(ctx, []string{"sku-none"}, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateStock(ctx, record("sku-none", 1, 0))
	})
	if !errors.Is(err, stockledger.ErrStockNotFound) {
		t.Errorf("expected ErrStockNotFound, got %v", err)
	}

	err = s.Update(ctx, []string{"sku-none"}, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateReservation(ctx, hold("sku-none", 1, base))
	})
	if !errors.Is(err, stockledger.ErrReservationNotFound) {
		t.Errorf("expected ErrReservationNotFound, got %v", err)
	}
}

func TestGetStockReturnsCopies(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	seedRecord(t, s, record("sku-copy", 10, 0))

	rec, err := s.GetStock(ctx, "sku-copy")
	if err != nil {
		t.Fatal(err)
	}
	rec.TotalQuantity = 999

	again, err := s.GetStock(ctx, "sku-copy")
	if err != nil {
		t.Fatal(err)
	}
	if again.TotalQuantity != 10 {
		t.Errorf("store state mutated through a read: total = %d", again.TotalQuantity)
	}
}

func TestBatchGetStockOrder(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	seedRecord(t, s, record("sku-x", 1, 0))
	seedRecord(t, s, record("sku-y", 2, 0))

	recs, err := s.BatchGetStock(ctx, []string{"sku-y", "sku-missing", "sku-x"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].SKUID != "sku-y" || recs[1].SKUID != "sku-x" {
		t.Errorf("unexpected batch result: %v", recs)
	}
}

func TestListLowStock(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	mk := func(skuID string, total int64, active bool) *stock.Record {
		r := record(skuID, total, 0)
		r.WarningThreshold = 20
		r.CriticalThreshold = 5
		r.Active = active
		return r
	}
	for _, r := range []*stock.Record{
		mk("sku-a", 100, true),
		mk("sku-b", 15, true),
		mk("sku-c", 3, true),
		mk("sku-d", 2, false),
	} {
		seedRecord(t, s, r)
	}

	recs, err := s.ListLowStock(ctx, stock.LevelWarning, stock.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	// Inactive sku-d is excluded; order is by SKU id.
	if len(recs) != 2 || recs[0].SKUID != "sku-b" || recs[1].SKUID != "sku-c" {
		t.Fatalf("unexpected listing: %v", recs)
	}

	recs, err = s.ListLowStock(ctx, stock.LevelWarning, stock.ListOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].SKUID != "sku-c" {
		t.Errorf("unexpected paged listing: %v", recs)
	}
}

func TestListReservationFilters(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	seedRecord(t, s, record("sku-f", 100, 0))

	active := hold("sku-f", 1, base.Add(time.Hour))
	active.ReferenceID = "ref-1"
	inactive := hold("sku-f", 2, base.Add(time.Hour))
	inactive.ReferenceID = "ref-1"
	inactive.Active = false
	other := hold("sku-g", 3, base.Add(time.Hour))

	err := s.Update(ctx, []string{"sku-f", "sku-g"}, func(ctx context.Context, tx store.Tx) error {
		for _, rsv := range []*reservation.Reservation{active, inactive, other} {
			if err := tx.InsertReservation(ctx, rsv); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.ListReservations(ctx, reservation.Query{SKUID: "sku-f"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("by sku = %d, want 2", len(got))
	}

	got, err = s.ListReservations(ctx, reservation.Query{ReferenceID: "ref-1", ActiveOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID.String() != active.ID.String() {
		t.Errorf("active by ref = %v", got)
	}
}

func TestListExpiredReservations(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	seedRecord(t, s, record("sku-e", 100, 0))

	early := hold("sku-e", 1, base.Add(time.Minute))
	late := hold("sku-e", 2, base.Add(2*time.Minute))
	fresh := hold("sku-e", 3, base.Add(time.Hour))
	dead := hold("sku-e", 4, base.Add(time.Minute))
	dead.Active = false

	err := s.Update(ctx, []string{"sku-e"}, func(ctx context.Context, tx store.Tx) error {
		for _, rsv := range []*reservation.Reservation{late, fresh, early, dead} {
			if err := tx.InsertReservation(ctx, rsv); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.ListExpiredReservations(ctx, base.Add(5*time.Minute), 0)
	if err != nil {
		t.Fatal(err)
	}
	// Only active expired holds, soonest expiry first.
	if len(got) != 2 || got[0].ID.String() != early.ID.String() || got[1].ID.String() != late.ID.String() {
		t.Fatalf("unexpected expired listing: %v", got)
	}

	got, err = s.ListExpiredReservations(ctx, base.Add(5*time.Minute), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID.String() != early.ID.String() {
		t.Errorf("limit ignored: %v", got)
	}
}

func TestAuditEntryWindow(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	seedRecord(t, s, record("sku-w", 10, 0))

	appendAt := func(at time.Time) {
		err := s.Update(ctx, []string{"sku-w"}, func(ctx context.Context, tx store.Tx) error {
			return tx.AppendAuditEntry(ctx, &audit.Entry{
				ID: id.NewAuditEntryID(), SKUID: "sku-w", Type: audit.TypeAdjust, CreatedAt: at,
			})
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	appendAt(base)
	appendAt(base.Add(time.Minute))
	appendAt(base.Add(2 * time.Minute))

	got, err := s.ListAuditEntries(ctx, "sku-w", audit.QueryOpts{
		From: base.Add(time.Minute),
		To:   base.Add(2 * time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}
	// From is inclusive, To exclusive.
	if len(got) != 1 || !got[0].CreatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected window result: %v", got)
	}

	got, err = s.ListAuditEntries(ctx, "sku-w", audit.QueryOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !got[0].CreatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("unexpected paged result: %v", got)
	}
}

func TestClosedStore(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping before close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx); !errors.Is(err, stockledger.ErrStoreClosed) {
		t.Errorf("ping after close = %v, want ErrStoreClosed", err)
	}
	err := s.Update(ctx, []string{"sku-1"}, func(ctx context.Context, tx store.Tx) error {
		return nil
	})
	if !errors.Is(err, stockledger.ErrStoreClosed) {
		t.Errorf("update after close = %v, want ErrStoreClosed", err)
	}
}
