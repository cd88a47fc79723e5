// Package audithook mirrors ledger lifecycle events to an external
// audit trail backend.
//
// The ledger's own audit entries stay the source of truth; this
// extension forwards a summarized trail event per operation to
// whatever compliance or monitoring system the host application runs.
// It defines a local Recorder interface so the package does not import
// any backend directly. Callers inject a RecorderFunc adapter (or a
// backend such as the mongotrail subpackage) at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quayside/stockledger/audit"
	"github.com/quayside/stockledger/plugin"
	"github.com/quayside/stockledger/reservation"
	"github.com/quayside/stockledger/stock"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnStockCreated       = (*Extension)(nil)
	_ plugin.OnReserved           = (*Extension)(nil)
	_ plugin.OnReleased           = (*Extension)(nil)
	_ plugin.OnDeducted           = (*Extension)(nil)
	_ plugin.OnAdjusted           = (*Extension)(nil)
	_ plugin.OnLowStock           = (*Extension)(nil)
	_ plugin.OnInvariantViolation = (*Extension)(nil)
	_ plugin.OnReservationExpired = (*Extension)(nil)
	_ plugin.OnSweepCompleted     = (*Extension)(nil)
)

// Recorder is the interface that trail backends must implement.
// It is defined locally so that this package does not depend on any
// concrete backend; callers inject one at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *TrailEvent) error
}

// TrailEvent is one summarized lifecycle event sent to a trail
// backend. It deliberately carries less than an audit.Entry: the trail
// answers "what happened to this resource", not "what exact quantity
// math ran".
type TrailEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *TrailEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *TrailEvent) error {
	return f(ctx, event)
}

// Extension mirrors ledger lifecycle events to a trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits trail events through the
// provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Stock lifecycle hooks
// ──────────────────────────────────────────────────

// OnStockCreated implements plugin.OnStockCreated.
func (e *Extension) OnStockCreated(ctx context.Context, rec *stock.Record) error {
	return e.record(ctx, ActionStockCreated, SeverityInfo, OutcomeSuccess,
		ResourceStock, rec.SKUID, CategoryInventory, nil,
		"total_quantity", rec.TotalQuantity,
		"warning_threshold", rec.WarningThreshold,
		"critical_threshold", rec.CriticalThreshold,
	)
}

// OnReserved implements plugin.OnReserved.
func (e *Extension) OnReserved(ctx context.Context, rsv *reservation.Reservation, rec *stock.Record) error {
	return e.record(ctx, ActionStockReserved, SeverityInfo, OutcomeSuccess,
		ResourceStock, rec.SKUID, CategoryReservation, nil,
		"reservation_id", rsv.ID.String(),
		"kind", string(rsv.Kind),
		"quantity", rsv.Quantity,
		"available", rec.Available(),
	)
}

// OnReleased implements plugin.OnReleased.
func (e *Extension) OnReleased(ctx context.Context, rsv *reservation.Reservation, rec *stock.Record) error {
	return e.record(ctx, ActionStockReleased, SeverityInfo, OutcomeSuccess,
		ResourceStock, rec.SKUID, CategoryReservation, nil,
		"reservation_id", rsv.ID.String(),
		"quantity", rsv.Quantity,
		"available", rec.Available(),
	)
}

// OnDeducted implements plugin.OnDeducted. One trail event per batch
// line keeps the trail per-resource.
func (e *Extension) OnDeducted(ctx context.Context, entries []*audit.Entry) error {
	for _, entry := range entries {
		err := e.record(ctx, ActionStockDeducted, SeverityInfo, OutcomeSuccess,
			ResourceStock, entry.SKUID, CategoryInventory, nil,
			"quantity", -entry.QuantityChange,
			"reservation_id", entry.ReservationID.String(),
			"reference", entry.Reference,
			"operator", entry.Operator,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// OnAdjusted implements plugin.OnAdjusted.
func (e *Extension) OnAdjusted(ctx context.Context, entry *audit.Entry, rec *stock.Record) error {
	action := ActionStockAdjusted
	if entry.Type == audit.TypeRestock {
		action = ActionStockRestocked
	}

	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceStock, rec.SKUID, CategoryInventory, nil,
		"quantity_change", entry.QuantityChange,
		"total_quantity", rec.TotalQuantity,
		"reason", entry.Reason,
		"operator", entry.Operator,
	)
}

// ──────────────────────────────────────────────────
// Monitoring hooks
// ──────────────────────────────────────────────────

// OnLowStock implements plugin.OnLowStock. Severity tracks how far the
// availability has fallen.
func (e *Extension) OnLowStock(ctx context.Context, rec *stock.Record, level stock.Level) error {
	severity := SeverityWarning
	switch level {
	case stock.LevelCritical:
		severity = SeverityError
	case stock.LevelOutOfStock:
		severity = SeverityCritical
	}

	return e.record(ctx, ActionLowStock, severity, OutcomeSuccess,
		ResourceStock, rec.SKUID, CategoryInventory, nil,
		"level", string(level),
		"available", rec.Available(),
		"reserved", rec.ReservedQuantity,
	)
}

// OnInvariantViolation implements plugin.OnInvariantViolation.
func (e *Extension) OnInvariantViolation(ctx context.Context, skuID string, total, reserved int64) error {
	return e.record(ctx, ActionInvariantViolation, SeverityCritical, OutcomeFailure,
		ResourceStock, skuID, CategoryIntegrity, nil,
		"total_quantity", total,
		"reserved_quantity", reserved,
	)
}

// ──────────────────────────────────────────────────
// Reaper hooks
// ──────────────────────────────────────────────────

// OnReservationExpired implements plugin.OnReservationExpired.
func (e *Extension) OnReservationExpired(ctx context.Context, rsv *reservation.Reservation, rec *stock.Record) error {
	return e.record(ctx, ActionReservationExpired, SeverityInfo, OutcomeSuccess,
		ResourceReservation, rsv.ID.String(), CategoryReservation, nil,
		"sku_id", rsv.SKUID,
		"quantity", rsv.Quantity,
		"expired_at", rsv.ExpiresAt,
		"available", rec.Available(),
	)
}

// OnSweepCompleted implements plugin.OnSweepCompleted.
func (e *Extension) OnSweepCompleted(ctx context.Context, released int, elapsed time.Duration) error {
	return e.record(ctx, ActionSweepCompleted, SeverityInfo, OutcomeSuccess,
		ResourceSweep, "", CategoryMaintenance, nil,
		"released", released,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends a trail event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &TrailEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audithook: failed to record trail event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
