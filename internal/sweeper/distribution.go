package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/openreward/reward-distributor/internal/adapter"
	"github.com/openreward/reward-distributor/internal/domain"
	"github.com/openreward/reward-distributor/internal/ledger"
	"github.com/openreward/reward-distributor/internal/logger"
)

const SWEEP_CYCLE_INTERVAL = 5 * time.Minute // Time to sleep between sweep cycles

// DistributionSweeperConfig holds configuration for the distribution sweeper
type DistributionSweeperConfig struct {
	BatchSize int           // Distributions to sweep per cycle
	Interval  time.Duration // Time between cycles; zero means SWEEP_CYCLE_INTERVAL
}

// distributionSweeper closes Merkle distributions whose claim window elapsed
// and returns their unclaimed remainders to the issuer pool
type distributionSweeper struct {
	config    *DistributionSweeperConfig
	ledger    *ledger.Ledger
	clock     adapter.Clock
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewDistributionSweeper creates a new distribution sweeper
func NewDistributionSweeper(config *DistributionSweeperConfig, l *ledger.Ledger, clock adapter.Clock) Sweeper {
	if config.Interval == 0 {
		config.Interval = SWEEP_CYCLE_INTERVAL
	}

	return &distributionSweeper{
		config:    config,
		ledger:    l,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the sweeper's name
func (s *distributionSweeper) Name() string {
	return "distribution-sweeper"
}

// Start begins the sweeper's main loop
func (s *distributionSweeper) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sweeper already running")
	}
	defer func() {
		s.running.Store(false)
		close(s.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting distribution sweeper",
		zap.Int("batch_size", s.config.BatchSize),
		zap.Duration("interval", s.config.Interval),
	)

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Distribution sweeper stopping due to context cancellation", zap.Error(ctx.Err()))
			return nil
		case <-s.stopChan:
			logger.InfoCtx(ctx, "Distribution sweeper stop requested")
			return nil
		default:
			if err := s.runSweepCycle(ctx); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.ErrorCtx(ctx, err)
				}
			}
			if !s.sleep(ctx, s.config.Interval) {
				return nil
			}
		}
	}
}

// Stop gracefully stops the sweeper with timeout support
func (s *distributionSweeper) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil // Already stopped
	}

	logger.InfoCtx(ctx, "Stopping distribution sweeper")
	close(s.stopChan)

	select {
	case <-s.stoppedCh:
		logger.InfoCtx(ctx, "Distribution sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Distribution sweeper stop interrupted by context timeout")
		return ctx.Err()
	}
}

// runSweepCycle sweeps one batch of expired open distributions
func (s *distributionSweeper) runSweepCycle(ctx context.Context) error {
	expired, err := s.ledger.ListExpiredDistributions(ctx, s.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list expired distributions: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	logger.InfoCtx(ctx, "Found expired distributions to sweep", zap.Int("count", len(expired)))

	for _, dist := range expired {
		swept, err := s.ledger.SweepExpired(ctx, dist.ID)
		if err != nil {
			// Another sweeper instance may have gotten there first
			if domain.IsStateConflict(err) {
				continue
			}
			logger.ErrorCtx(ctx, err, zap.Uint64("distribution_id", dist.ID))
			continue
		}

		logger.InfoCtx(ctx, "Swept expired distribution",
			zap.Uint64("distribution_id", dist.ID),
			zap.String("swept_amount", swept.String()),
		)
	}

	return nil
}

// sleep waits for the given duration, returning false if interrupted
func (s *distributionSweeper) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-s.clock.After(d):
		return true
	case <-ctx.Done():
		return false
	case <-s.stopChan:
		return false
	}
}
