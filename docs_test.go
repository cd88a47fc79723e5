package stockledger_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/quayside/stockledger"
	"github.com/quayside/stockledger/reservation"
	"github.com/quayside/stockledger/stock"
	"github.com/quayside/stockledger/store/memory"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		// Initialize the ledger
		l := stockledger.New(store,
			stockledger.WithLogger(slog.Default()),
			stockledger.WithSweepInterval(30*time.Second),
			stockledger.WithOperator("docs"),
		)

		// Start the engine
		ctx := context.Background()
		if err := l.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer l.Stop()

		// Create a stock record
		rec, err := l.CreateStock(ctx, stockledger.CreateStockInput{
			SKUID:             "sku-tshirt-m",
			InitialQuantity:   100,
			WarningThreshold:  20,
			CriticalThreshold: 5,
		})
		if err != nil {
			t.Fatal(err)
		}
		if rec.Available() != 100 {
			t.Fatalf("available = %d, want 100", rec.Available())
		}

		// Hold two units for a cart
		rsv, err := l.Reserve(ctx, stockledger.ReserveInput{
			SKUID:       "sku-tshirt-m",
			Quantity:    2,
			Kind:        reservation.KindCart,
			ReferenceID: "cart_123",
			TTL:         15 * time.Minute,
		})
		if err != nil {
			t.Fatal(err)
		}

		// The hold shrinks availability without touching the total
		snap, err := l.GetAvailability(ctx, "sku-tshirt-m")
		if err != nil {
			t.Fatal(err)
		}
		if snap.Available != 98 || snap.Total != 100 {
			t.Fatalf("snapshot = %d/%d, want 98/100", snap.Available, snap.Total)
		}

		// Checkout: consume the reservation
		result, err := l.Deduct(ctx, stockledger.DeductInput{
			Items: []stockledger.DeductItem{
				{SKUID: "sku-tshirt-m", Quantity: 2, ReservationID: rsv.ID},
			},
			Reference: "order_456",
		})
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("deducted %d units\n", result.Deducted)

		// Restock outside the order flow
		adj, err := l.Adjust(ctx, stockledger.AdjustInput{
			SKUID:  "sku-tshirt-m",
			Delta:  500,
			Reason: "weekly restock",
		})
		if err != nil {
			t.Fatal(err)
		}
		if adj.Record.TotalQuantity != 598 {
			t.Fatalf("total = %d, want 598", adj.Record.TotalQuantity)
		}
	})

	// Test stock level examples
	t.Run("LevelExamples", func(t *testing.T) {
		rec := &stock.Record{
			SKUID:             "sku-demo",
			TotalQuantity:     100,
			ReservedQuantity:  95,
			WarningThreshold:  20,
			CriticalThreshold: 5,
			Active:            true,
		}

		_ = rec.Available() // 5
		_ = rec.Level()     // stock.LevelCritical

		if !rec.Level().AtLeast(stock.LevelWarning) {
			t.Fatalf("level %s should rank at least warning", rec.Level())
		}
	})
}
