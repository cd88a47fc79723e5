package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/quayside/stockledger/audit"
	"github.com/quayside/stockledger/reservation"
	"github.com/quayside/stockledger/stock"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onStockCreated         []OnStockCreated
	onReserved             []OnReserved
	onReleased             []OnReleased
	onDeducted             []OnDeducted
	onAdjusted             []OnAdjusted
	onAuditAppended        []OnAuditAppended
	onLowStock             []OnLowStock
	onInvariantViolation   []OnInvariantViolation
	onReservationExpired   []OnReservationExpired
	onSweepCompleted       []OnSweepCompleted
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnStockCreated); ok {
		r.onStockCreated = append(r.onStockCreated, v)
	}
	if v, ok := p.(OnReserved); ok {
		r.onReserved = append(r.onReserved, v)
	}
	if v, ok := p.(OnReleased); ok {
		r.onReleased = append(r.onReleased, v)
	}
	if v, ok := p.(OnDeducted); ok {
		r.onDeducted = append(r.onDeducted, v)
	}
	if v, ok := p.(OnAdjusted); ok {
		r.onAdjusted = append(r.onAdjusted, v)
	}
	if v, ok := p.(OnAuditAppended); ok {
		r.onAuditAppended = append(r.onAuditAppended, v)
	}
	if v, ok := p.(OnLowStock); ok {
		r.onLowStock = append(r.onLowStock, v)
	}
	if v, ok := p.(OnInvariantViolation); ok {
		r.onInvariantViolation = append(r.onInvariantViolation, v)
	}
	if v, ok := p.(OnReservationExpired); ok {
		r.onReservationExpired = append(r.onReservationExpired, v)
	}
	if v, ok := p.(OnSweepCompleted); ok {
		r.onSweepCompleted = append(r.onSweepCompleted, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnStockCreated)(nil)).Elem(), "OnStockCreated")
	checkInterface(reflect.TypeOf((*OnReserved)(nil)).Elem(), "OnReserved")
	checkInterface(reflect.TypeOf((*OnReleased)(nil)).Elem(), "OnReleased")
	checkInterface(reflect.TypeOf((*OnDeducted)(nil)).Elem(), "OnDeducted")
	checkInterface(reflect.TypeOf((*OnAdjusted)(nil)).Elem(), "OnAdjusted")
	checkInterface(reflect.TypeOf((*OnAuditAppended)(nil)).Elem(), "OnAuditAppended")
	checkInterface(reflect.TypeOf((*OnLowStock)(nil)).Elem(), "OnLowStock")
	checkInterface(reflect.TypeOf((*OnInvariantViolation)(nil)).Elem(), "OnInvariantViolation")
	checkInterface(reflect.TypeOf((*OnReservationExpired)(nil)).Elem(), "OnReservationExpired")
	checkInterface(reflect.TypeOf((*OnSweepCompleted)(nil)).Elem(), "OnSweepCompleted")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, ledger)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitStockCreated emits a stock created event.
func (r *Registry) EmitStockCreated(ctx context.Context, rec *stock.Record) {
	r.mu.RLock()
	plugins := r.onStockCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnStockCreated(ctx, rec)
		}); err != nil {
			r.logger.Warn("plugin OnStockCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitReserved emits a reservation created event.
func (r *Registry) EmitReserved(ctx context.Context, rsv *reservation.Reservation, rec *stock.Record) {
	r.mu.RLock()
	plugins := r.onReserved
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReserved(ctx, rsv, rec)
		}); err != nil {
			r.logger.Warn("plugin OnReserved failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitReleased emits a reservation released event.
func (r *Registry) EmitReleased(ctx context.Context, rsv *reservation.Reservation, rec *stock.Record) {
	r.mu.RLock()
	plugins := r.onReleased
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReleased(ctx, rsv, rec)
		}); err != nil {
			r.logger.Warn("plugin OnReleased failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDeducted emits a deduction committed event.
func (r *Registry) EmitDeducted(ctx context.Context, entries []*audit.Entry) {
	r.mu.RLock()
	plugins := r.onDeducted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDeducted(ctx, entries)
		}); err != nil {
			r.logger.Warn("plugin OnDeducted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAdjusted emits an adjustment committed event.
func (r *Registry) EmitAdjusted(ctx context.Context, e *audit.Entry, rec *stock.Record) {
	r.mu.RLock()
	plugins := r.onAdjusted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAdjusted(ctx, e, rec)
		}); err != nil {
			r.logger.Warn("plugin OnAdjusted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAuditAppended emits one event per committed audit entry.
func (r *Registry) EmitAuditAppended(ctx context.Context, e *audit.Entry) {
	r.mu.RLock()
	plugins := r.onAuditAppended
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAuditAppended(ctx, e)
		}); err != nil {
			r.logger.Warn("plugin OnAuditAppended failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitLowStock emits a low stock transition event.
func (r *Registry) EmitLowStock(ctx context.Context, rec *stock.Record, level stock.Level) {
	r.mu.RLock()
	plugins := r.onLowStock
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnLowStock(ctx, rec, level)
		}); err != nil {
			r.logger.Warn("plugin OnLowStock failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInvariantViolation emits an invariant violation event.
func (r *Registry) EmitInvariantViolation(ctx context.Context, skuID string, total, reserved int64) {
	r.mu.RLock()
	plugins := r.onInvariantViolation
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvariantViolation(ctx, skuID, total, reserved)
		}); err != nil {
			r.logger.Warn("plugin OnInvariantViolation failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitReservationExpired emits a reservation expired event.
func (r *Registry) EmitReservationExpired(ctx context.Context, rsv *reservation.Reservation, rec *stock.Record) {
	r.mu.RLock()
	plugins := r.onReservationExpired
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReservationExpired(ctx, rsv, rec)
		}); err != nil {
			r.logger.Warn("plugin OnReservationExpired failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSweepCompleted emits a sweep completed event.
func (r *Registry) EmitSweepCompleted(ctx context.Context, released int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onSweepCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSweepCompleted(ctx, released, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnSweepCompleted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins must never block the reservation pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
