// Package observability provides a metrics extension that records
// operation counts and latencies via a pluggable MetricFactory. The
// promfactory subpackage adapts Prometheus; any other metrics system
// can implement the factory in a few lines.
package observability

import (
	"context"
	"time"

	"github.com/quayside/stockledger/audit"
	"github.com/quayside/stockledger/plugin"
	"github.com/quayside/stockledger/reservation"
	"github.com/quayside/stockledger/stock"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnStockCreated       = (*MetricsExtension)(nil)
	_ plugin.OnReserved           = (*MetricsExtension)(nil)
	_ plugin.OnReleased           = (*MetricsExtension)(nil)
	_ plugin.OnDeducted           = (*MetricsExtension)(nil)
	_ plugin.OnAdjusted           = (*MetricsExtension)(nil)
	_ plugin.OnLowStock           = (*MetricsExtension)(nil)
	_ plugin.OnInvariantViolation = (*MetricsExtension)(nil)
	_ plugin.OnReservationExpired = (*MetricsExtension)(nil)
	_ plugin.OnSweepCompleted     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide operation metrics.
// Register it as a Ledger plugin to automatically track stock flow.
type MetricsExtension struct {
	factory MetricFactory

	// Stock metrics
	StockCreated Counter
	Reserved     Counter
	Released     Counter
	Deducted     Counter
	Adjusted     Counter
	Restocked    Counter

	// Quantity flow
	ReservedQuantity Counter
	DeductedQuantity Counter
	DeductBatchSize  Histogram

	// Threshold metrics
	LowStockWarning  Counter
	LowStockCritical Counter
	OutOfStock       Counter

	// Integrity metrics
	InvariantViolations Counter

	// Reaper metrics
	ReservationsExpired Counter
	SweepRuns           Counter
	SweepReleased       Counter
	SweepLatency        Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided
// MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Stock metrics
		StockCreated: factory.Counter("stockledger.stock.created"),
		Reserved:     factory.Counter("stockledger.stock.reserved"),
		Released:     factory.Counter("stockledger.stock.released"),
		Deducted:     factory.Counter("stockledger.stock.deducted"),
		Adjusted:     factory.Counter("stockledger.stock.adjusted"),
		Restocked:    factory.Counter("stockledger.stock.restocked"),

		// Quantity flow
		ReservedQuantity: factory.Counter("stockledger.quantity.reserved"),
		DeductedQuantity: factory.Counter("stockledger.quantity.deducted"),
		DeductBatchSize:  factory.Histogram("stockledger.deduct.batch.size"),

		// Threshold metrics
		LowStockWarning:  factory.Counter("stockledger.lowstock.warning"),
		LowStockCritical: factory.Counter("stockledger.lowstock.critical"),
		OutOfStock:       factory.Counter("stockledger.lowstock.out_of_stock"),

		// Integrity metrics
		InvariantViolations: factory.Counter("stockledger.invariant.violations"),

		// Reaper metrics
		ReservationsExpired: factory.Counter("stockledger.reservation.expired"),
		SweepRuns:           factory.Counter("stockledger.sweep.runs"),
		SweepReleased:       factory.Counter("stockledger.sweep.released"),
		SweepLatency:        factory.Histogram("stockledger.sweep.latency_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Stock lifecycle hooks
// ──────────────────────────────────────────────────

// OnStockCreated implements plugin.OnStockCreated.
func (m *MetricsExtension) OnStockCreated(_ context.Context, _ *stock.Record) error {
	m.StockCreated.Inc()
	return nil
}

// OnReserved implements plugin.OnReserved.
func (m *MetricsExtension) OnReserved(_ context.Context, rsv *reservation.Reservation, _ *stock.Record) error {
	m.Reserved.Inc()
	m.ReservedQuantity.Add(float64(rsv.Quantity))
	return nil
}

// OnReleased implements plugin.OnReleased.
func (m *MetricsExtension) OnReleased(_ context.Context, _ *reservation.Reservation, _ *stock.Record) error {
	m.Released.Inc()
	return nil
}

// OnDeducted implements plugin.OnDeducted.
func (m *MetricsExtension) OnDeducted(_ context.Context, entries []*audit.Entry) error {
	m.Deducted.Inc()
	m.DeductBatchSize.Observe(float64(len(entries)))
	for _, e := range entries {
		m.DeductedQuantity.Add(float64(-e.QuantityChange))
	}
	return nil
}

// OnAdjusted implements plugin.OnAdjusted.
func (m *MetricsExtension) OnAdjusted(_ context.Context, e *audit.Entry, _ *stock.Record) error {
	if e.Type == audit.TypeRestock {
		m.Restocked.Inc()
	} else {
		m.Adjusted.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Monitoring hooks
// ──────────────────────────────────────────────────

// OnLowStock implements plugin.OnLowStock.
func (m *MetricsExtension) OnLowStock(_ context.Context, _ *stock.Record, level stock.Level) error {
	switch level {
	case stock.LevelWarning:
		m.LowStockWarning.Inc()
	case stock.LevelCritical:
		m.LowStockCritical.Inc()
	case stock.LevelOutOfStock:
		m.OutOfStock.Inc()
	}
	return nil
}

// OnInvariantViolation implements plugin.OnInvariantViolation.
func (m *MetricsExtension) OnInvariantViolation(_ context.Context, _ string, _, _ int64) error {
	m.InvariantViolations.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Reaper hooks
// ──────────────────────────────────────────────────

// OnReservationExpired implements plugin.OnReservationExpired.
func (m *MetricsExtension) OnReservationExpired(_ context.Context, _ *reservation.Reservation, _ *stock.Record) error {
	m.ReservationsExpired.Inc()
	return nil
}

// OnSweepCompleted implements plugin.OnSweepCompleted.
func (m *MetricsExtension) OnSweepCompleted(_ context.Context, released int, elapsed time.Duration) error {
	m.SweepRuns.Inc()
	m.SweepReleased.Add(float64(released))
	m.SweepLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}
