// Package stockledger provides a composable stock reservation and deduction
// engine for Go applications.
//
// Stockledger is designed as a library, not a service. Import it directly into
// your Go application and put it in front of your inventory tables. It provides:
//
//   - Atomic reserve / release / deduct / adjust operations per SKU
//   - Time-limited holds with a background expiry sweeper
//   - An append-only audit trail that replays to the current quantities
//   - Threshold-driven stock levels (normal, warning, critical, out of stock)
//   - Pluggable storage (in-memory, PostgreSQL, SQLite)
//   - Extension hooks for metrics, external audit trails, and change feeds
//
// # Quick Start
//
// Create a ledger instance with your preferred store:
//
//	import (
//	    "github.com/quayside/stockledger"
//	    "github.com/quayside/stockledger/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.Open(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create ledger
//	l := stockledger.New(store)
//
//	// Start the ledger (runs migrations, begins the expiry sweeper)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// Stock records track quantities for a SKU. The SKU id is yours; the ledger
// treats it as an opaque key:
//
//	rec, err := l.CreateStock(ctx, stockledger.CreateStockInput{
//	    SKUID:             "sku-tshirt-m",
//	    InitialQuantity:   100,
//	    WarningThreshold:  20,
//	    CriticalThreshold: 5,
//	})
//
// Reservations hold stock without consuming it. Available quantity shrinks,
// total does not. Every hold carries a TTL and is swept back automatically
// when it lapses:
//
//	rsv, err := l.Reserve(ctx, stockledger.ReserveInput{
//	    SKUID:       "sku-tshirt-m",
//	    Quantity:    2,
//	    Kind:        reservation.KindCart,
//	    ReferenceID: cartID,
//	    TTL:         15 * time.Minute,
//	})
//
// Deductions consume stock permanently, either against a reservation or
// directly from available quantity. A batch commits all-or-nothing:
//
//	result, err := l.Deduct(ctx, stockledger.DeductInput{
//	    Items: []stockledger.DeductItem{
//	        {SKUID: "sku-tshirt-m", Quantity: 2, ReservationID: rsv.ID},
//	    },
//	    Reference: orderID,
//	})
//
// Adjustments correct totals outside the order flow, for restocks, spoilage,
// or recounts:
//
//	_, err := l.Adjust(ctx, stockledger.AdjustInput{
//	    SKUID:  "sku-tshirt-m",
//	    Delta:  500,
//	    Reason: "weekly restock",
//	})
//
// # Consistency
//
// Every committed record satisfies 0 <= reserved <= total, and available is
// always max(0, total - reserved). Writes take per-SKU exclusive locks;
// multi-SKU batches lock in ascending SKU order so overlapping batches cannot
// deadlock. Validation happens before any quantity moves, and a failing line
// rolls back the whole batch.
//
// Every mutation appends a signed audit entry recording the quantity before
// and after. Replaying a SKU's trail from an empty record reproduces its
// current quantities, which makes the trail a reconciliation source, not just
// a log.
//
// # Extensions
//
// Behavior is extended through plugins registered at construction:
//
//   - observability: operation counters and latency histograms via a
//     pluggable metric factory (Prometheus adapter included)
//   - audit_hook: mirrors lifecycle events to an external audit trail
//     backend (MongoDB recorder included)
//   - feed: streams committed audit entries to a message bus (Kafka
//     publisher included)
//
// Plugins observe committed state. They cannot veto an operation and their
// failures never fail the ledger.
//
// # TypeID
//
// Ledger-generated entities use TypeID for globally unique, type-safe
// identifiers:
//
//	rsv_01h2xcejqtf2nbrexx3vqjhp41  // Reservation ID
//	aud_01h455vb4pex5vsknk084sn02q  // Audit entry ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package stockledger
