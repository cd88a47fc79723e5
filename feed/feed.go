// Package feed publishes committed audit entries to a message broker.
//
// The engine never pushes domain events itself; consumers that want a
// change stream subscribe to this feed instead of polling GetAuditTrail.
// Publication is best-effort and happens after commit: a broker outage
// can drop feed messages but never blocks or fails a stock operation,
// and the audit ledger in the store remains the source of truth to
// reconcile against.
package feed

import (
	"context"
	"log/slog"

	"github.com/quayside/stockledger/audit"
	"github.com/quayside/stockledger/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin          = (*Extension)(nil)
	_ plugin.OnAuditAppended = (*Extension)(nil)
	_ plugin.OnShutdown      = (*Extension)(nil)
)

// Publisher is the broker-facing side of the feed. Implementations
// must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e *audit.Entry) error
	Close() error
}

// Extension forwards every committed audit entry to a Publisher.
type Extension struct {
	publisher Publisher
	logger    *slog.Logger
}

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger for the extension.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}

// New creates an Extension publishing through p.
func New(p Publisher, opts ...Option) *Extension {
	e := &Extension{
		publisher: p,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-feed" }

// OnAuditAppended implements plugin.OnAuditAppended. Failures are
// logged and swallowed so a broker outage never surfaces as an
// operation error.
func (e *Extension) OnAuditAppended(ctx context.Context, entry *audit.Entry) error {
	if err := e.publisher.Publish(ctx, entry); err != nil {
		e.logger.Warn("feed: publish audit entry",
			"entry_id", entry.ID.String(),
			"sku_id", entry.SKUID,
			"type", string(entry.Type),
			"error", err,
		)
	}
	return nil
}

// OnShutdown implements plugin.OnShutdown.
func (e *Extension) OnShutdown(context.Context) error {
	return e.publisher.Close()
}
