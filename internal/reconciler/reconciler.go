// Package reconciler re-drives payouts the claim path gave up on. The ledger
// never retries a mover call inline; failed payouts and pending payouts whose
// mover call never came back land here instead.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/openreward/reward-distributor/internal/adapter"
	"github.com/openreward/reward-distributor/internal/domain"
	"github.com/openreward/reward-distributor/internal/ledger"
	"github.com/openreward/reward-distributor/internal/logger"
)

const RECONCILE_CYCLE_INTERVAL = time.Minute // Time to sleep between cycles

// Config holds configuration for the payout reconciler
type Config struct {
	BatchSize      int           // Payouts to pick up per cycle
	WorkerPoolSize int           // Concurrent mover calls
	PendingAge     time.Duration // Pending payouts older than this are treated as stuck
	MaxRetries     uint64        // Mover attempts per payout per cycle
	Interval       time.Duration // Time between cycles; zero means RECONCILE_CYCLE_INTERVAL
}

// Reconciler is a long-running background task in the sweeper mold
type Reconciler struct {
	config    *Config
	ledger    *ledger.Ledger
	clock     adapter.Clock
	pool      pond.Pool
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// New creates a new payout reconciler
func New(config *Config, l *ledger.Ledger, clock adapter.Clock) *Reconciler {
	if config.Interval == 0 {
		config.Interval = RECONCILE_CYCLE_INTERVAL
	}

	return &Reconciler{
		config:    config,
		ledger:    l,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the reconciler's name
func (r *Reconciler) Name() string {
	return "payout-reconciler"
}

// Start begins the reconciler's main loop
func (r *Reconciler) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("reconciler already running")
	}
	defer func() {
		r.running.Store(false)
		close(r.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting payout reconciler",
		zap.Int("batch_size", r.config.BatchSize),
		zap.Int("worker_pool_size", r.config.WorkerPoolSize),
		zap.Duration("pending_age", r.config.PendingAge),
	)

	r.pool = pond.NewPool(
		r.config.WorkerPoolSize,
		pond.WithQueueSize(r.config.BatchSize),
		pond.WithContext(ctx),
	)
	defer r.pool.StopAndWait()

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Payout reconciler stopping due to context cancellation", zap.Error(ctx.Err()))
			return nil
		case <-r.stopChan:
			logger.InfoCtx(ctx, "Payout reconciler stop requested")
			return nil
		default:
			if err := r.runCycle(ctx); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.ErrorCtx(ctx, err)
				}
			}
			if !r.sleep(ctx, r.config.Interval) {
				return nil
			}
		}
	}
}

// Stop gracefully stops the reconciler with timeout support
func (r *Reconciler) Stop(ctx context.Context) error {
	if !r.running.CompareAndSwap(true, false) {
		return nil // Already stopped
	}

	logger.InfoCtx(ctx, "Stopping payout reconciler")
	close(r.stopChan)

	select {
	case <-r.stoppedCh:
		logger.InfoCtx(ctx, "Payout reconciler stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Payout reconciler stop interrupted by context timeout")
		return ctx.Err()
	}
}

// runCycle picks up one batch of unreconciled payouts and retries each on the
// worker pool with exponential backoff
func (r *Reconciler) runCycle(ctx context.Context) error {
	payouts, err := r.ledger.ListUnreconciledPayouts(ctx, r.config.PendingAge, r.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list unreconciled payouts: %w", err)
	}
	if len(payouts) == 0 {
		return nil
	}

	logger.InfoCtx(ctx, "Found payouts to reconcile", zap.Int("count", len(payouts)))

	group := r.pool.NewGroup()
	for _, payout := range payouts {
		group.Submit(func() {
			r.reconcileOne(ctx, payout)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("reconcile batch failed: %w", err)
	}

	return nil
}

// reconcileOne retries a single payout until it pays out or retries run out
func (r *Reconciler) reconcileOne(ctx context.Context, payout *domain.Payout) {
	operation := func() error {
		err := r.ledger.ReconcilePayout(ctx, payout.ID)
		if err == nil {
			return nil
		}
		// Only mover failures are worth retrying; anything else needs a human
		if errors.Is(err, domain.ErrPayoutFailed) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.config.MaxRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("payout reconciliation exhausted retries: %w", err),
			zap.Uint64("payout_id", payout.ID),
			zap.String("recipient", payout.Recipient),
		)
		return
	}

	logger.InfoCtx(ctx, "Reconciled payout",
		zap.Uint64("payout_id", payout.ID),
		zap.String("amount", payout.Amount.String()),
	)
}

// sleep waits for the given duration, returning false if interrupted
func (r *Reconciler) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-r.clock.After(d):
		return true
	case <-ctx.Done():
		return false
	case <-r.stopChan:
		return false
	}
}
