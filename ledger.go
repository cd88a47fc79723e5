package stockledger

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/quayside/stockledger/audit"
	"github.com/quayside/stockledger/cache"
	"github.com/quayside/stockledger/clock"
	"github.com/quayside/stockledger/plugin"
	"github.com/quayside/stockledger/stock"
	"github.com/quayside/stockledger/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Ledger is the stock reservation and deduction engine.
type Ledger struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   clock.Clock
	tracer  trace.Tracer
	cache   cache.Cache

	// Background workers
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Configuration
	sweepInterval    time.Duration
	sweepBatchSize   int
	sweepConcurrency int
	cacheTTL         time.Duration
	operator         string
}

// New creates a new Ledger instance backed by the given store.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:            s,
		plugins:          plugin.NewRegistry(),
		logger:           slog.Default(),
		clock:            clock.NewSystem(),
		stopChan:         make(chan struct{}),
		sweepInterval:    30 * time.Second,
		sweepBatchSize:   256,
		sweepConcurrency: 4,
		cacheTTL:         5 * time.Second,
		operator:         "system",
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithClock sets the time source. Tests inject a fixed clock to drive
// reservation expiry deterministically.
func WithClock(c clock.Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithSweepInterval sets how often the expiry reaper runs. Zero
// disables the background worker; SweepExpired stays callable.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Ledger) {
		l.sweepInterval = d
	}
}

// WithSweepBatchSize caps how many expired reservations one sweep
// releases.
func WithSweepBatchSize(n int) Option {
	return func(l *Ledger) {
		l.sweepBatchSize = n
	}
}

// WithSweepConcurrency bounds how many releases one sweep runs in
// parallel.
func WithSweepConcurrency(n int) Option {
	return func(l *Ledger) {
		l.sweepConcurrency = n
	}
}

// WithAvailabilityCache installs an advisory availability snapshot
// cache consulted by GetAvailability and refreshed after every
// committed mutation.
func WithAvailabilityCache(c cache.Cache) Option {
	return func(l *Ledger) {
		l.cache = c
	}
}

// WithCacheTTL sets how long availability snapshots stay fresh.
func WithCacheTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		l.cacheTTL = ttl
	}
}

// WithTracer enables tracing spans on every public operation.
func WithTracer(t trace.Tracer) Option {
	return func(l *Ledger) {
		l.tracer = t
	}
}

// WithOperator sets the operator name stamped on audit entries when the
// caller does not provide one.
func WithOperator(name string) Option {
	return func(l *Ledger) {
		l.operator = name
	}
}

// Start migrates the store, initializes plugins, and launches the
// expiry reaper.
func (l *Ledger) Start(ctx context.Context) error {
	// Migrate database
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	// Initialize plugins
	l.plugins.EmitInit(ctx, l)

	// Start expiry reaper
	if l.sweepInterval > 0 {
		l.wg.Add(1)
		go l.reaperWorker(ctx)
	}

	l.logger.Info("stock ledger started",
		"sweep_interval", l.sweepInterval,
		"sweep_batch_size", l.sweepBatchSize,
		"sweep_concurrency", l.sweepConcurrency,
	)

	return nil
}

// Stop shuts down the Ledger.
func (l *Ledger) Stop() error {
	close(l.stopChan)
	l.wg.Wait()

	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	if l.cache != nil {
		_ = l.cache.Close() //nolint:errcheck // best-effort cache shutdown
	}
	return l.store.Close()
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// sortSKUIDs returns the distinct SKU ids in ascending order. Every
// multi-SKU write locks in this order, which keeps overlapping batches
// deadlock-free.
func sortSKUIDs(skuIDs []string) []string {
	out := make([]string, 0, len(skuIDs))
	seen := make(map[string]struct{}, len(skuIDs))
	for _, skuID := range skuIDs {
		if _, ok := seen[skuID]; ok {
			continue
		}
		seen[skuID] = struct{}{}
		out = append(out, skuID)
	}
	sort.Strings(out)
	return out
}

// operatorOr returns op, falling back to the configured default.
func (l *Ledger) operatorOr(op string) string {
	if op != "" {
		return op
	}
	return l.operator
}

// startSpan opens a tracing span when a tracer is configured.
func (l *Ledger) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if l.tracer == nil {
		return ctx, nil
	}
	return l.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on the span, if any, and closes it.
func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// afterCommit handles everything that follows a committed single-SKU
// mutation: audit feed emission, snapshot refresh, low-stock
// transition detection. All of it runs outside the SKU lock and none
// of it can fail the operation.
func (l *Ledger) afterCommit(ctx context.Context, rec *stock.Record, prevLevel stock.Level, entries ...*audit.Entry) {
	for _, e := range entries {
		l.plugins.EmitAuditAppended(ctx, e)
	}
	if rec == nil {
		return
	}
	l.refreshSnapshot(ctx, rec)
	l.notifyLowStock(ctx, rec, prevLevel)
}

// snapshotOf captures the record's quantities for the advisory cache.
func (l *Ledger) snapshotOf(rec *stock.Record) *cache.Snapshot {
	return &cache.Snapshot{
		SKUID:     rec.SKUID,
		Total:     rec.TotalQuantity,
		Reserved:  rec.ReservedQuantity,
		Available: rec.Available(),
		Level:     string(rec.Level()),
		AsOf:      l.clock.Now(),
	}
}

// refreshSnapshot pushes the record's current quantities into the
// availability cache, best-effort.
func (l *Ledger) refreshSnapshot(ctx context.Context, rec *stock.Record) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Set(ctx, l.snapshotOf(rec), l.cacheTTL); err != nil {
		l.logger.Warn("availability snapshot refresh failed",
			"sku_id", rec.SKUID,
			"error", err,
		)
	}
}

// notifyLowStock fires OnLowStock when a mutation worsened the
// record's level into warning territory or beyond. Transitions only:
// staying at a low level does not re-fire.
func (l *Ledger) notifyLowStock(ctx context.Context, rec *stock.Record, prevLevel stock.Level) {
	level := rec.Level()
	if level == prevLevel {
		return
	}
	if !level.AtLeast(stock.LevelWarning) || !level.AtLeast(prevLevel) {
		return
	}
	l.logger.Warn("stock level dropped",
		"sku_id", rec.SKUID,
		"level", level,
		"previous_level", prevLevel,
		"available", rec.Available(),
	)
	l.plugins.EmitLowStock(ctx, rec, level)
}

// reportInvariant logs and emits when err carries a broken
// reserved/total invariant. Called after the transaction rolled back
// (or, for reads, after the corrupt row was observed).
func (l *Ledger) reportInvariant(ctx context.Context, err error) {
	var iv InvariantViolationError
	if !errors.As(err, &iv) {
		return
	}
	l.logger.Error("stock invariant violated",
		"sku_id", iv.SKUID,
		"total", iv.Total,
		"reserved", iv.Reserved,
	)
	l.plugins.EmitInvariantViolation(ctx, iv.SKUID, iv.Total, iv.Reserved)
}
