package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/quayside/stockledger"
	"github.com/quayside/stockledger/audit"
	"github.com/quayside/stockledger/id"
	"github.com/quayside/stockledger/reservation"
	"github.com/quayside/stockledger/stock"
	"github.com/quayside/stockledger/store"
	"github.com/quayside/stockledger/store/sqlite"
	"github.com/quayside/stockledger/types"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.Open(filepath.Join(t.TempDir(), "stock.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func seedStock(t *testing.T, s *sqlite.Store, skuID string, total, reserved int64) {
	t.Helper()
	err := s.Update(context.Background(), []string{skuID}, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertStock(ctx, &stock.Record{
			Entity:            types.NewEntityAt(base),
			SKUID:             skuID,
			TotalQuantity:     total,
			ReservedQuantity:  reserved,
			WarningThreshold:  20,
			CriticalThreshold: 5,
			Active:            true,
		})
	})
	if err != nil {
		t.Fatalf("seed %s: %v", skuID, err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openStore(t)
	// A second run discovers every version already applied.
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestStockRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedStock(t, s, "sku-1", 100, 30)

	rec, err := s.GetStock(ctx, "sku-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.TotalQuantity != 100 || rec.ReservedQuantity != 30 {
		t.Errorf("record = %d/%d, want 100/30", rec.TotalQuantity, rec.ReservedQuantity)
	}
	if rec.WarningThreshold != 20 || rec.CriticalThreshold != 5 || !rec.Active {
		t.Errorf("unexpected fields: %+v", rec)
	}
	if !rec.CreatedAt.Equal(base) {
		t.Errorf("created_at = %v, want %v", rec.CreatedAt, base)
	}

	if _, err := s.GetStock(ctx, "sku-ghost"); !errors.Is(err, stockledger.ErrStockNotFound) {
		t.Errorf("expected ErrStockNotFound, got %v", err)
	}
}

func TestInsertStockDuplicate(t *testing.T) {
	s := openStore(t)
	seedStock(t, s, "sku-dup", 10, 0)

	err := s.Update(context.Background(), []string{"sku-dup"}, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertStock(ctx, &stock.Record{
			Entity: types.NewEntityAt(base), SKUID: "sku-dup", TotalQuantity: 1, Active: true,
		})
	})
	if !errors.Is(err, stockledger.ErrStockExists) {
		t.Errorf("expected ErrStockExists, got %v", err)
	}
}

func TestUpdateRollsBackOnError(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedStock(t, s, "sku-rb", 100, 0)

	sentinel := errors.New("abort")
	err := s.Update(ctx, []string{"sku-rb"}, func(ctx context.Context, tx store.Tx) error {
		rec, err := tx.GetStock(ctx, "sku-rb")
		if err != nil {
			return err
		}
		rec.ReservedQuantity = 50
		if err := tx.UpdateStock(ctx, rec); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}

	rec, err := s.GetStock(ctx, "sku-rb")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ReservedQuantity != 0 {
		t.Errorf("reserved = %d after rollback, want 0", rec.ReservedQuantity)
	}
}

func TestReservationRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedStock(t, s, "sku-r", 100, 10)

	rsv := &reservation.Reservation{
		Entity:      types.NewEntityAt(base),
		ID:          id.NewReservationID(),
		SKUID:       "sku-r",
		Kind:        reservation.KindOrder,
		ReferenceID: "order-1",
		Quantity:    10,
		ExpiresAt:   base.Add(time.Hour),
		Active:      true,
	}
	err := s.Update(ctx, []string{"sku-r"}, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertReservation(ctx, rsv)
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.GetReservation(ctx, rsv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != reservation.KindOrder || got.Quantity != 10 || got.ReferenceID != "order-1" {
		t.Errorf("unexpected reservation: %+v", got)
	}
	if !got.Active || got.ReleasedAt != nil {
		t.Errorf("expected active with nil released_at, got active=%v released_at=%v", got.Active, got.ReleasedAt)
	}
	if !got.ExpiresAt.Equal(base.Add(time.Hour)) {
		t.Errorf("expires_at = %v, want %v", got.ExpiresAt, base.Add(time.Hour))
	}

	// Terminate and confirm the nullable column round-trips.
	releasedAt := base.Add(30 * time.Minute)
	err = s.Update(ctx, []string{"sku-r"}, func(ctx context.Context, tx store.Tx) error {
		got.Active = false
		got.ReleasedAt = &releasedAt
		return tx.UpdateReservation(ctx, got)
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err = s.GetReservation(ctx, rsv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Active || got.ReleasedAt == nil || !got.ReleasedAt.Equal(releasedAt) {
		t.Errorf("termination did not round-trip: active=%v released_at=%v", got.Active, got.ReleasedAt)
	}

	if _, err := s.GetReservation(ctx, id.NewReservationID()); !errors.Is(err, stockledger.ErrReservationNotFound) {
		t.Errorf("expected ErrReservationNotFound, got %v", err)
	}
}

func TestListExpiredReservations(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedStock(t, s, "sku-exp", 100, 0)

	mk := func(expiresAt time.Time, active bool) *reservation.Reservation {
		return &reservation.Reservation{
			Entity:    types.NewEntityAt(base),
			ID:        id.NewReservationID(),
			SKUID:     "sku-exp",
			Kind:      reservation.KindCart,
			Quantity:  1,
			ExpiresAt: expiresAt,
			Active:    active,
		}
	}
	early := mk(base.Add(time.Minute), true)
	late := mk(base.Add(2*time.Minute), true)
	fresh := mk(base.Add(time.Hour), true)
	dead := mk(base.Add(time.Minute), false)

	err := s.Update(ctx, []string{"sku-exp"}, func(ctx context.Context, tx store.Tx) error {
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

	got, err := s.ListExpiredReservations(ctx, base.Add(5*time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID.String() != early.ID.String() || got[1].ID.String() != late.ID.String() {
		t.Fatalf("unexpected expired listing: %v", got)
	}
}

func TestListLowStockLevels(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedStock(t, s, "sku-ok", 100, 0)
	seedStock(t, s, "sku-warn", 100, 85)
	seedStock(t, s, "sku-crit", 100, 96)
	seedStock(t, s, "sku-out", 100, 100)

	tests := []struct {
		level stock.Level
		want  []string
	}{
		{stock.LevelWarning, []string{"sku-crit", "sku-out", "sku-warn"}},
		{stock.LevelCritical, []string{"sku-crit", "sku-out"}},
		{stock.LevelOutOfStock, []string{"sku-out"}},
		{stock.LevelNormal, []string{"sku-crit", "sku-ok", "sku-out", "sku-warn"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			recs, err := s.ListLowStock(ctx, tt.level, stock.ListOpts{})
			if err != nil {
				t.Fatal(err)
			}
			if len(recs) != len(tt.want) {
				t.Fatalf("got %d records, want %d", len(recs), len(tt.want))
			}
			for i, skuID := range tt.want {
				if recs[i].SKUID != skuID {
					t.Errorf("position %d: got %s, want %s", i, recs[i].SKUID, skuID)
				}
			}
		})
	}
}

func TestAuditEntries(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedStock(t, s, "sku-a", 100, 0)

	rsvID := id.NewReservationID()
	entries := []*audit.Entry{
		{
			ID: id.NewAuditEntryID(), SKUID: "sku-a", Type: audit.TypeRestock,
			QuantityChange: 100, QuantityAfter: 100, Operator: "system", CreatedAt: base,
		},
		{
			ID: id.NewAuditEntryID(), SKUID: "sku-a", Type: audit.TypeReserve,
			QuantityChange: 30, QuantityAfter: 30, ReservationID: rsvID,
			Reference: "cart-1", Operator: "api", CreatedAt: base.Add(time.Minute),
		},
	}
	err := s.Update(ctx, []string{"sku-a"}, func(ctx context.Context, tx store.Tx) error {
		for _, e := range entries {
			if err := tx.AppendAuditEntry(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.ListAuditEntries(ctx, "sku-a", audit.QueryOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	// The restock's reservation id column is NULL and scans back nil.
	if !got[0].ReservationID.IsNil() {
		t.Errorf("restock entry carries reservation id %s", got[0].ReservationID)
	}
	if got[1].ReservationID.String() != rsvID.String() {
		t.Errorf("reserve entry reservation id = %s, want %s", got[1].ReservationID, rsvID)
	}

	windowed, err := s.ListAuditEntries(ctx, "sku-a", audit.QueryOpts{To: base.Add(time.Minute)})
	if err != nil {
		t.Fatal(err)
	}
	if len(windowed) != 1 || windowed[0].Type != audit.TypeRestock {
		t.Errorf("unexpected windowed result: %v", windowed)
	}
}

func TestQuantityChecksEnforcedBySchema(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedStock(t, s, "sku-chk", 10, 0)

	// The schema refuses reserved > total no matter what the caller
	// stages.
	err := s.Update(ctx, []string{"sku-chk"}, func(ctx context.Context, tx store.Tx) error {
		rec, err := tx.GetStock(ctx, "sku-chk")
		if err != nil {
			return err
		}
		rec.ReservedQuantity = 11
		return tx.UpdateStock(ctx, rec)
	})
	if err == nil {
		t.Fatal("expected constraint violation for reserved > total")
	}

	rec, err := s.GetStock(ctx, "sku-chk")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ReservedQuantity != 0 {
		t.Errorf("reserved = %d after refused write, want 0", rec.ReservedQuantity)
	}
}
