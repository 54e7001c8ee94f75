package sweeper_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openreward/reward-distributor/internal/adapter"
	"github.com/openreward/reward-distributor/internal/ledger"
	"github.com/openreward/reward-distributor/internal/messaging"
	"github.com/openreward/reward-distributor/internal/store"
	"github.com/openreward/reward-distributor/internal/sweeper"
	"github.com/openreward/reward-distributor/internal/token"
)

func newSweeperFixture() (*ledger.Ledger, sweeper.Sweeper) {
	l := ledger.New(ledger.Config{}, store.NewMemoryStore(), token.NewNoopMover(), adapter.NewClock(), messaging.NewNoopPublisher())
	s := sweeper.NewDistributionSweeper(&sweeper.DistributionSweeperConfig{
		BatchSize: 10,
		Interval:  10 * time.Millisecond,
	}, l, adapter.NewClock())
	return l, s
}

func TestDistributionSweeper_SweepsExpired(t *testing.T) {
	l, s := newSweeperFixture()
	ctx := context.Background()

	dist, err := l.CreateMerkleDistribution(ctx, ledger.CreateDistributionParams{
		Root:        common.HexToHash("0x01"),
		TotalAmount: big.NewInt(1000),
		Window:      time.Millisecond,
	})
	require.NoError(t, err)

	open, err := l.CreateMerkleDistribution(ctx, ledger.CreateDistributionParams{
		Root:        common.HexToHash("0x02"),
		TotalAmount: big.NewInt(500),
		Window:      time.Hour,
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond) // let the first window lapse

	go func() {
		_ = s.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		got, err := l.GetMerkleDistribution(ctx, dist.ID)
		return err == nil && got.Closed()
	}, 2*time.Second, 10*time.Millisecond, "sweeper never closed the expired distribution")

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))

	swept, err := l.GetMerkleDistribution(ctx, dist.ID)
	require.NoError(t, err)
	require.NotNil(t, swept.SweptAmount)
	assert.Equal(t, int64(1000), swept.SweptAmount.Int64())

	// The open window is untouched
	still, err := l.GetMerkleDistribution(ctx, open.ID)
	require.NoError(t, err)
	assert.False(t, still.Closed())

	locked, err := l.TotalLocked(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(500), locked.Int64())
}

func TestDistributionSweeper_StartStop(t *testing.T) {
	_, s := newSweeperFixture()
	ctx := context.Background()

	assert.Equal(t, "distribution-sweeper", s.Name())

	started := make(chan error, 1)
	go func() {
		started <- s.Start(ctx)
	}()
	time.Sleep(50 * time.Millisecond)

	// Starting twice is refused while running
	second := make(chan error, 1)
	go func() {
		second <- s.Start(ctx)
	}()
	select {
	case err := <-second:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("second Start did not return")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	require.NoError(t, <-started)

	// Stopping again is a no-op
	assert.NoError(t, s.Stop(stopCtx))
}

func TestDistributionSweeper_ContextCancellation(t *testing.T) {
	_, s := newSweeperFixture()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop on context cancellation")
	}
}
