package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quayside/stockledger"
	"github.com/quayside/stockledger/reservation"
	"github.com/quayside/stockledger/stock"
	"github.com/quayside/stockledger/store"
	"github.com/quayside/stockledger/store/postgres"
	"github.com/quayside/stockledger/types"
)

// openStore connects to the database named by TEST_DATABASE_URL. Tests
// skip when it is unset so the suite passes without infrastructure.
func openStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := postgres.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

// newSKU returns a SKU id unique to this run so tests can share one
// database without cleanup.
func newSKU() string {
	return fmt.Sprintf("sku-test-%s", uuid.NewString())
}

func TestStockRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	skuID := newSKU()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	err := s.Update(ctx, []string{skuID}, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertStock(ctx, &stock.Record{
			Entity:            types.NewEntityAt(base),
			SKUID:             skuID,
			TotalQuantity:     100,
			ReservedQuantity:  30,
			WarningThreshold:  20,
			CriticalThreshold: 5,
			Active:            true,
		})
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	rec, err := s.GetStock(ctx, skuID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.TotalQuantity != 100 || rec.ReservedQuantity != 30 {
		t.Errorf("record = %d/%d, want 100/30", rec.TotalQuantity, rec.ReservedQuantity)
	}
	if !rec.CreatedAt.Equal(base) {
		t.Errorf("created_at = %v, want %v", rec.CreatedAt, base)
	}

	if _, err := s.GetStock(ctx, newSKU()); !errors.Is(err, stockledger.ErrStockNotFound) {
		t.Errorf("expected ErrStockNotFound, got %v", err)
	}
}

func TestUpdateRollsBackOnError(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	skuID := newSKU()

	err := s.Update(ctx, []string{skuID}, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertStock(ctx, &stock.Record{
			Entity: types.NewEntity(), SKUID: skuID, TotalQuantity: 100, Active: true,
		})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	sentinel := errors.New("abort")
	err = s.Update(ctx, []string{skuID}, func(ctx context.Context, tx store.Tx) error {
		rec, err := tx.GetStock(ctx, skuID)
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

	rec, err := s.GetStock(ctx, skuID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ReservedQuantity != 0 {
		t.Errorf("reserved = %d after rollback, want 0", rec.ReservedQuantity)
	}
}

func TestInsertStockDuplicate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	skuID := newSKU()

	insert := func() error {
		return s.Update(ctx, []string{skuID}, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertStock(ctx, &stock.Record{
				Entity: types.NewEntity(), SKUID: skuID, TotalQuantity: 1, Active: true,
			})
		})
	}
	if err := insert(); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := insert(); !errors.Is(err, stockledger.ErrStockExists) {
		t.Errorf("expected ErrStockExists, got %v", err)
	}
}

func TestLedgerOnPostgres(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	skuID := newSKU()

	l := stockledger.New(s, stockledger.WithSweepInterval(0))
	if err := l.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = l.Stop() })

	_, err := l.CreateStock(ctx, stockledger.CreateStockInput{
		SKUID:             skuID,
		InitialQuantity:   100,
		WarningThreshold:  20,
		CriticalThreshold: 5,
	})
	if err != nil {
		t.Fatalf("create stock: %v", err)
	}

	rsv, err := l.Reserve(ctx, stockledger.ReserveInput{
		SKUID:       skuID,
		Quantity:    30,
		Kind:        reservation.KindCart,
		ReferenceID: uuid.NewString(),
		TTL:         15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	res, err := l.Deduct(ctx, stockledger.DeductInput{
		Items: []stockledger.DeductItem{
			{SKUID: skuID, Quantity: 30, ReservationID: rsv.ID},
		},
	})
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if res.Deducted != 30 {
		t.Errorf("deducted = %d, want 30", res.Deducted)
	}

	avail, err := l.GetAvailability(ctx, skuID)
	if err != nil {
		t.Fatal(err)
	}
	if avail.Total != 70 || avail.Reserved != 0 || avail.Available != 70 {
		t.Errorf("availability = %+v, want 70/0/70", avail)
	}
}
