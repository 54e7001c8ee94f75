package store

import (
	"context"
	"math/big"
	"time"

	"github.com/openreward/reward-distributor/internal/domain"
)

// Store defines the persistence interface for the distribution ledger.
//
// Mutating methods that take an expectedRevision apply an optimistic check and
// return domain.ErrRevisionConflict when the stored revision moved underneath
// the caller. Every method that moves entitlement value also moves the
// aggregate totalLocked counter inside the same transaction; the counter is
// never updated as a separate step. Getters return (nil, nil) when the record
// does not exist.
type Store interface {
	// CreateDirectGrant records a new grant, assigns its ID and adds its
	// amount to totalLocked
	CreateDirectGrant(ctx context.Context, grant *domain.DirectGrant) (*domain.DirectGrant, error)
	// GetDirectGrant retrieves a grant by ID
	GetDirectGrant(ctx context.Context, id uint64) (*domain.DirectGrant, error)
	// SettleDirectGrant marks the grant settled, subtracts its amount from
	// totalLocked and inserts the pending payout, all in one transaction
	SettleDirectGrant(ctx context.Context, id uint64, expectedRevision uint64, settledAt time.Time, payout *domain.Payout) (*domain.Payout, error)

	// CreateVestingSchedule records a new schedule and adds its total to
	// totalLocked; returns domain.ErrDuplicateSchedule when a schedule already
	// exists for the same (beneficiary, external key)
	CreateVestingSchedule(ctx context.Context, schedule *domain.VestingSchedule) (*domain.VestingSchedule, error)
	// GetVestingSchedule retrieves a schedule by ID
	GetVestingSchedule(ctx context.Context, id uint64) (*domain.VestingSchedule, error)
	// ApplyVestingClaim adds paid to the schedule's claimed amount, subtracts
	// it from totalLocked and inserts the pending payout
	ApplyVestingClaim(ctx context.Context, id uint64, expectedRevision uint64, paid *big.Int, payout *domain.Payout) (*domain.Payout, error)
	// RevokeVestingSchedule freezes the schedule at vestedCap and subtracts
	// the forfeited remainder from totalLocked
	RevokeVestingSchedule(ctx context.Context, id uint64, expectedRevision uint64, revokedAt time.Time, vestedCap, forfeited *big.Int) error

	// CreateMerkleDistribution records a new distribution and adds its total
	// to totalLocked
	CreateMerkleDistribution(ctx context.Context, dist *domain.MerkleDistribution) (*domain.MerkleDistribution, error)
	// GetMerkleDistribution retrieves a distribution by ID
	GetMerkleDistribution(ctx context.Context, id uint64) (*domain.MerkleDistribution, error)
	// IsLeafClaimed checks whether a leaf of a distribution was already claimed
	IsLeafClaimed(ctx context.Context, distributionID, leafIndex uint64) (bool, error)
	// ApplyMerkleClaim records a leaf claim, updates the distribution's
	// claimed amount, subtracts the claim from totalLocked and inserts the
	// pending payout; returns domain.ErrAlreadyClaimed when the leaf index was
	// claimed concurrently
	ApplyMerkleClaim(ctx context.Context, distributionID uint64, expectedRevision uint64, claim *domain.MerkleClaim, payout *domain.Payout) (*domain.Payout, error)
	// CloseMerkleDistribution marks the distribution closed and subtracts the
	// swept remainder from totalLocked
	CloseMerkleDistribution(ctx context.Context, distributionID uint64, expectedRevision uint64, closedAt time.Time, sweptAmount *big.Int) error
	// ListExpiredOpenDistributions returns open distributions whose claim
	// window elapsed before now
	ListExpiredOpenDistributions(ctx context.Context, now time.Time, limit int) ([]*domain.MerkleDistribution, error)

	// GetPayout retrieves a payout by ID
	GetPayout(ctx context.Context, id uint64) (*domain.Payout, error)
	// UpdatePayoutState transitions a payout and bumps its attempt counter;
	// receipt is stored when the state is paid
	UpdatePayoutState(ctx context.Context, id uint64, state domain.PayoutState, receipt *string) error
	// ListUnreconciledPayouts returns failed payouts plus pending payouts
	// older than pendingAge, for the reconciler
	ListUnreconciledPayouts(ctx context.Context, now time.Time, pendingAge time.Duration, limit int) ([]*domain.Payout, error)

	// TotalLocked returns the aggregate obligated-but-unpaid value
	TotalLocked(ctx context.Context) (*big.Int, error)
	// SumOutstanding recomputes the aggregate from per-entitlement remainders;
	// used to cross-check TotalLocked for drift
	SumOutstanding(ctx context.Context) (*big.Int, error)
}
