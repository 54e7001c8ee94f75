package store_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openreward/reward-distributor/internal/domain"
	"github.com/openreward/reward-distributor/internal/store"
)

const testAddr = "0x1111111111111111111111111111111111111111"

func pendingPayout(kind domain.EntitlementKind, entitlementID uint64, amount int64) *domain.Payout {
	return &domain.Payout{
		EntitlementKind: kind,
		EntitlementID:   entitlementID,
		Recipient:       testAddr,
		Amount:          big.NewInt(amount),
	}
}

func storeLocked(t *testing.T, s store.Store) int64 {
	t.Helper()
	locked, err := s.TotalLocked(context.Background())
	require.NoError(t, err)
	return locked.Int64()
}

func TestMemoryStore_GrantRoundTrip(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	grant, err := s.CreateDirectGrant(ctx, &domain.DirectGrant{
		Recipient: testAddr,
		Amount:    big.NewInt(100),
		Reason:    "bonus",
		CreatedAt: now,
	})
	require.NoError(t, err)
	assert.NotZero(t, grant.ID)
	assert.Equal(t, uint64(1), grant.Revision)
	assert.Equal(t, now, grant.CreatedAt)
	assert.Equal(t, int64(100), storeLocked(t, s))

	got, err := s.GetDirectGrant(ctx, grant.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, grant.Amount, got.Amount)
	assert.False(t, got.Settled)

	// Getters return (nil, nil) for unknown ids
	missing, err := s.GetDirectGrant(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	grant, err := s.CreateDirectGrant(ctx, &domain.DirectGrant{
		Recipient: testAddr,
		Amount:    big.NewInt(100),
	})
	require.NoError(t, err)

	// Mutating a returned record must not leak into the store
	grant.Amount.SetInt64(999)
	grant.Settled = true

	got, err := s.GetDirectGrant(ctx, grant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Amount.Int64())
	assert.False(t, got.Settled)
}

func TestMemoryStore_SettleGrant(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	grant, err := s.CreateDirectGrant(ctx, &domain.DirectGrant{Recipient: testAddr, Amount: big.NewInt(250)})
	require.NoError(t, err)

	payout, err := s.SettleDirectGrant(ctx, grant.ID, grant.Revision, now, pendingPayout(domain.EntitlementDirectGrant, grant.ID, 250))
	require.NoError(t, err)
	assert.NotZero(t, payout.ID)
	assert.Equal(t, domain.PayoutStatePending, payout.State)
	assert.Equal(t, now, payout.CreatedAt)
	assert.Zero(t, storeLocked(t, s))

	settled, err := s.GetDirectGrant(ctx, grant.ID)
	require.NoError(t, err)
	assert.True(t, settled.Settled)
	require.NotNil(t, settled.SettledAt)
	assert.Equal(t, uint64(2), settled.Revision)

	// A stale revision is a conflict, a missing id is not found
	_, err = s.SettleDirectGrant(ctx, grant.ID, grant.Revision, now, pendingPayout(domain.EntitlementDirectGrant, grant.ID, 250))
	assert.ErrorIs(t, err, domain.ErrRevisionConflict)
	_, err = s.SettleDirectGrant(ctx, 999, 1, now, pendingPayout(domain.EntitlementDirectGrant, 999, 1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStore_DuplicateSchedule(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	sched := &domain.VestingSchedule{
		ExternalKey:   "grant-1",
		Beneficiary:   testAddr,
		TotalAmount:   big.NewInt(1000),
		StartTime:     time.Now(),
		TotalDuration: time.Hour,
		AmountClaimed: new(big.Int),
	}

	first, err := s.CreateVestingSchedule(ctx, sched)
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	_, err = s.CreateVestingSchedule(ctx, sched)
	assert.ErrorIs(t, err, domain.ErrDuplicateSchedule)

	// Only the first create moved the counter
	assert.Equal(t, int64(1000), storeLocked(t, s))

	other := *sched
	other.Beneficiary = "0x2222222222222222222222222222222222222222"
	_, err = s.CreateVestingSchedule(ctx, &other)
	assert.NoError(t, err)
}

func TestMemoryStore_VestingClaimAndRevoke(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	sched, err := s.CreateVestingSchedule(ctx, &domain.VestingSchedule{
		ExternalKey:   "grant-1",
		Beneficiary:   testAddr,
		TotalAmount:   big.NewInt(1000),
		StartTime:     now,
		TotalDuration: time.Hour,
		Revocable:     true,
		AmountClaimed: new(big.Int),
	})
	require.NoError(t, err)

	payout, err := s.ApplyVestingClaim(ctx, sched.ID, sched.Revision, big.NewInt(400), pendingPayout(domain.EntitlementVesting, sched.ID, 400))
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatePending, payout.State)
	assert.Equal(t, int64(600), storeLocked(t, s))

	claimed, err := s.GetVestingSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), claimed.AmountClaimed.Int64())
	assert.Equal(t, uint64(2), claimed.Revision)

	// Revoke at cap 500: 500 forfeited, 100 still locked for the beneficiary
	err = s.RevokeVestingSchedule(ctx, sched.ID, claimed.Revision, now, big.NewInt(500), big.NewInt(500))
	require.NoError(t, err)
	assert.Equal(t, int64(100), storeLocked(t, s))

	revoked, err := s.GetVestingSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.True(t, revoked.Revoked)
	require.NotNil(t, revoked.VestedCap)
	assert.Equal(t, int64(500), revoked.VestedCap.Int64())

	err = s.RevokeVestingSchedule(ctx, sched.ID, claimed.Revision, now, big.NewInt(500), big.NewInt(500))
	assert.ErrorIs(t, err, domain.ErrRevisionConflict)
}

func TestMemoryStore_MerkleClaims(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	dist, err := s.CreateMerkleDistribution(ctx, &domain.MerkleDistribution{
		Root:           common.HexToHash("0xdeadbeef"),
		TotalAmount:    big.NewInt(1500),
		AmountClaimed:  new(big.Int),
		WindowDuration: 7 * 24 * time.Hour,
		CreatedAt:      now,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), storeLocked(t, s))

	claimed, err := s.IsLeafClaimed(ctx, dist.ID, 2)
	require.NoError(t, err)
	assert.False(t, claimed)

	claim := &domain.MerkleClaim{
		DistributionID: dist.ID,
		LeafIndex:      2,
		Recipient:      testAddr,
		Amount:         big.NewInt(300),
		ClaimedAt:      now,
	}
	_, err = s.ApplyMerkleClaim(ctx, dist.ID, dist.Revision, claim, pendingPayout(domain.EntitlementMerkle, dist.ID, 300))
	require.NoError(t, err)
	assert.Equal(t, int64(1200), storeLocked(t, s))

	claimed, err = s.IsLeafClaimed(ctx, dist.ID, 2)
	require.NoError(t, err)
	assert.True(t, claimed)

	// The same leaf cannot be recorded twice regardless of revision
	after, err := s.GetMerkleDistribution(ctx, dist.ID)
	require.NoError(t, err)
	_, err = s.ApplyMerkleClaim(ctx, dist.ID, after.Revision, claim, pendingPayout(domain.EntitlementMerkle, dist.ID, 300))
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	assert.Equal(t, int64(1200), storeLocked(t, s))

	// Close with the remainder; the counter drops to zero
	err = s.CloseMerkleDistribution(ctx, dist.ID, after.Revision, now.Add(8*24*time.Hour), big.NewInt(1200))
	require.NoError(t, err)
	assert.Zero(t, storeLocked(t, s))

	closed, err := s.GetMerkleDistribution(ctx, dist.ID)
	require.NoError(t, err)
	assert.True(t, closed.Closed())
	assert.Equal(t, int64(1200), closed.SweptAmount.Int64())
}

func TestMemoryStore_ListExpiredOpenDistributions(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mk := func(created time.Time, window time.Duration) *domain.MerkleDistribution {
		dist, err := s.CreateMerkleDistribution(ctx, &domain.MerkleDistribution{
			Root:           common.HexToHash("0x01"),
			TotalAmount:    big.NewInt(10),
			AmountClaimed:  new(big.Int),
			WindowDuration: window,
			CreatedAt:      created,
		})
		require.NoError(t, err)
		return dist
	}

	expired1 := mk(base, 24*time.Hour)
	expired2 := mk(base, 48*time.Hour)
	open := mk(base, 30*24*time.Hour)
	closedDist := mk(base, time.Hour)
	require.NoError(t, s.CloseMerkleDistribution(ctx, closedDist.ID, closedDist.Revision, base.Add(2*time.Hour), big.NewInt(10)))

	now := base.Add(3 * 24 * time.Hour)
	expired, err := s.ListExpiredOpenDistributions(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, expired1.ID, expired[0].ID)
	assert.Equal(t, expired2.ID, expired[1].ID)
	_ = open

	// Limit caps the batch
	expired, err = s.ListExpiredOpenDistributions(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, expired1.ID, expired[0].ID)
}

func TestMemoryStore_PayoutLifecycle(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	grant, err := s.CreateDirectGrant(ctx, &domain.DirectGrant{Recipient: testAddr, Amount: big.NewInt(50)})
	require.NoError(t, err)
	payout, err := s.SettleDirectGrant(ctx, grant.ID, grant.Revision, now, pendingPayout(domain.EntitlementDirectGrant, grant.ID, 50))
	require.NoError(t, err)

	ref := "0xabc123"
	require.NoError(t, s.UpdatePayoutState(ctx, payout.ID, domain.PayoutStatePaid, &ref))

	paid, err := s.GetPayout(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatePaid, paid.State)
	require.NotNil(t, paid.Receipt)
	assert.Equal(t, ref, *paid.Receipt)
	assert.Equal(t, 1, paid.Attempts)

	assert.ErrorIs(t, s.UpdatePayoutState(ctx, 999, domain.PayoutStateFailed, nil), domain.ErrNotFound)
}

func TestMemoryStore_ListUnreconciledPayouts(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	settle := func(amount int64, at time.Time) *domain.Payout {
		grant, err := s.CreateDirectGrant(ctx, &domain.DirectGrant{Recipient: testAddr, Amount: big.NewInt(amount)})
		require.NoError(t, err)
		payout, err := s.SettleDirectGrant(ctx, grant.ID, grant.Revision, at, pendingPayout(domain.EntitlementDirectGrant, grant.ID, amount))
		require.NoError(t, err)
		return payout
	}

	failed := settle(10, base)
	require.NoError(t, s.UpdatePayoutState(ctx, failed.ID, domain.PayoutStateFailed, nil))

	stalePending := settle(20, base)

	freshPending := settle(30, base.Add(50*time.Minute))

	paid := settle(40, base)
	ref := "0xdef"
	require.NoError(t, s.UpdatePayoutState(ctx, paid.ID, domain.PayoutStatePaid, &ref))

	// Failed payouts always qualify; pending ones only once they go stale
	now := base.Add(time.Hour)
	stuck, err := s.ListUnreconciledPayouts(ctx, now, 30*time.Minute, 0)
	require.NoError(t, err)
	require.Len(t, stuck, 2)
	assert.Equal(t, failed.ID, stuck[0].ID)
	assert.Equal(t, stalePending.ID, stuck[1].ID)
	_ = freshPending
}

func TestMemoryStore_SumOutstanding(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	// Unsettled grant: 100 outstanding
	grant, err := s.CreateDirectGrant(ctx, &domain.DirectGrant{Recipient: testAddr, Amount: big.NewInt(100)})
	require.NoError(t, err)
	_ = grant

	// Revoked schedule claimed 100 of a 400 cap: 300 outstanding
	sched, err := s.CreateVestingSchedule(ctx, &domain.VestingSchedule{
		ExternalKey:   "k",
		Beneficiary:   testAddr,
		TotalAmount:   big.NewInt(1000),
		StartTime:     now,
		TotalDuration: time.Hour,
		Revocable:     true,
		AmountClaimed: new(big.Int),
	})
	require.NoError(t, err)
	_, err = s.ApplyVestingClaim(ctx, sched.ID, sched.Revision, big.NewInt(100), pendingPayout(domain.EntitlementVesting, sched.ID, 100))
	require.NoError(t, err)
	require.NoError(t, s.RevokeVestingSchedule(ctx, sched.ID, sched.Revision+1, now, big.NewInt(400), big.NewInt(600)))

	// Open distribution with one 300 claim: 1200 outstanding
	dist, err := s.CreateMerkleDistribution(ctx, &domain.MerkleDistribution{
		Root:           common.HexToHash("0x02"),
		TotalAmount:    big.NewInt(1500),
		AmountClaimed:  new(big.Int),
		WindowDuration: time.Hour,
		CreatedAt:      now,
	})
	require.NoError(t, err)
	_, err = s.ApplyMerkleClaim(ctx, dist.ID, dist.Revision, &domain.MerkleClaim{
		DistributionID: dist.ID,
		LeafIndex:      0,
		Recipient:      testAddr,
		Amount:         big.NewInt(300),
		ClaimedAt:      now,
	}, pendingPayout(domain.EntitlementMerkle, dist.ID, 300))
	require.NoError(t, err)

	outstanding, err := s.SumOutstanding(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1600), outstanding.Int64())

	// The maintained counter agrees with the recomputation
	assert.Equal(t, int64(1600), storeLocked(t, s))
}
