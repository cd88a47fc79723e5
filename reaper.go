package stockledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// reaperOperator is stamped on audit entries written by sweep releases.
const reaperOperator = "reaper"

// reaperWorker drives periodic expiry sweeps until Stop.
func (l *Ledger) reaperWorker(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return

		case <-ticker.C:
			if _, err := l.SweepExpired(ctx); err != nil {
				l.logger.Error("expiry sweep failed",
					"error", err,
				)
			}
		}
	}
}

// SweepExpired releases every active reservation whose expiry has
// passed, up to the configured batch size, and returns how many it
// released. The background worker calls this on every tick; it is
// also safe to call directly, for tests or an event-driven deployment.
// Release is idempotent, so overlapping sweeps and caller races only
// cost wasted work.
func (l *Ledger) SweepExpired(ctx context.Context) (int, error) {
	ctx, span := l.startSpan(ctx, "stockledger.SweepExpired")
	var err error
	defer func() { endSpan(span, err) }()

	start := time.Now()
	asOf := l.clock.Now()

	candidates, err := l.store.ListExpiredReservations(ctx, asOf, l.sweepBatchSize)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	var (
		released atomic.Int64
		mu       sync.Mutex
		merr     MultiError
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.sweepConcurrency)
	for _, candidate := range candidates {
		g.Go(func() error {
			res, rsv, rec, relErr := l.releaseAs(gctx, candidate.ID, reaperOperator)
			if relErr != nil {
				if errors.Is(relErr, ErrReservationNotFound) {
					return nil
				}
				mu.Lock()
				merr.Add(fmt.Errorf("release %s: %w", candidate.ID, relErr))
				mu.Unlock()
				return nil
			}
			if res.Released {
				released.Add(1)
				l.plugins.EmitReservationExpired(gctx, rsv, rec)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers report failures through merr

	elapsed := time.Since(start)
	n := int(released.Load())
	l.plugins.EmitSweepCompleted(ctx, n, elapsed)
	l.logger.Debug("expiry sweep completed",
		"candidates", len(candidates),
		"released", n,
		"elapsed_ms", elapsed.Milliseconds(),
	)

	if merr.HasErrors() {
		err = merr
		return n, err
	}
	return n, nil
}
