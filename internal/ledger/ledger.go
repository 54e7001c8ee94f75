// Package ledger implements the distribution ledger: the authoritative record
// of token entitlements (direct grants, vesting schedules, Merkle airdrop
// distributions) and the payouts they authorize.
//
// Every mutation runs under a per-record lock, applies an optimistic revision
// check in the store, and moves the aggregate totalLocked counter inside the
// same store transaction as the record change. The Token Mover is only called
// after that transaction commits; a mover failure leaves the record settled
// and the payout marked failed for out-of-band reconciliation.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/openreward/reward-distributor/internal/adapter"
	"github.com/openreward/reward-distributor/internal/domain"
	"github.com/openreward/reward-distributor/internal/logger"
	"github.com/openreward/reward-distributor/internal/merkle"
	"github.com/openreward/reward-distributor/internal/messaging"
	"github.com/openreward/reward-distributor/internal/store"
	"github.com/openreward/reward-distributor/internal/token"
	"github.com/openreward/reward-distributor/internal/vesting"
)

// Config holds ledger tuning knobs
type Config struct {
	// LockWait bounds how long a mutation waits for the per-record lock
	LockWait time.Duration
	// PayoutTimeout bounds each Token Mover call
	PayoutTimeout time.Duration
}

// Ledger coordinates entitlement state, the persistence layer, the Token
// Mover and the event publisher
type Ledger struct {
	store         store.Store
	mover         token.Mover
	clock         adapter.Clock
	events        messaging.Publisher
	locks         *keyedLocks
	payoutTimeout time.Duration
}

// New creates a new distribution ledger
func New(cfg Config, s store.Store, mover token.Mover, clock adapter.Clock, events messaging.Publisher) *Ledger {
	if cfg.LockWait == 0 {
		cfg.LockWait = 5 * time.Second
	}
	if cfg.PayoutTimeout == 0 {
		cfg.PayoutTimeout = 30 * time.Second
	}

	return &Ledger{
		store:         s,
		mover:         mover,
		clock:         clock,
		events:        events,
		locks:         newKeyedLocks(clock, cfg.LockWait),
		payoutTimeout: cfg.PayoutTimeout,
	}
}

// CreateDirectGrant records a new grant and adds its amount to totalLocked
func (l *Ledger) CreateDirectGrant(ctx context.Context, recipient string, amount *big.Int, reason string) (*domain.DirectGrant, error) {
	if !domain.ValidAddress(recipient) {
		return nil, fmt.Errorf("%w: bad recipient address", domain.ErrInvalidAmount)
	}
	if !domain.ValidAmount(amount) {
		return nil, domain.ErrInvalidAmount
	}

	grant, err := l.store.CreateDirectGrant(ctx, &domain.DirectGrant{
		Recipient: domain.NormalizeAddress(recipient),
		Amount:    amount,
		Reason:    reason,
		CreatedAt: l.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	l.publishEvent(ctx, domain.EventTypeCreated, domain.EntitlementDirectGrant, grant.ID, grant.Recipient, grant.Amount, nil, nil)
	return grant, nil
}

// GetDirectGrant retrieves a grant by ID
func (l *Ledger) GetDirectGrant(ctx context.Context, id uint64) (*domain.DirectGrant, error) {
	grant, err := l.store.GetDirectGrant(ctx, id)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return nil, domain.ErrNotFound
	}
	return grant, nil
}

// SettleDirectGrant pays a grant in full, exactly once. The grant is marked
// settled and totalLocked reduced before the mover is called; a mover failure
// returns ErrPayoutFailed with the payout left in the failed state.
func (l *Ledger) SettleDirectGrant(ctx context.Context, id uint64) (*domain.Payout, error) {
	key := lockKey{kind: domain.EntitlementDirectGrant, id: id}
	if err := l.locks.Acquire(ctx, key); err != nil {
		return nil, err
	}
	defer l.locks.Release(key)

	grant, err := l.store.GetDirectGrant(ctx, id)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return nil, domain.ErrNotFound
	}
	if grant.Settled {
		return nil, domain.ErrAlreadySettled
	}

	now := l.clock.Now()
	payout, err := l.store.SettleDirectGrant(ctx, id, grant.Revision, now, &domain.Payout{
		EntitlementKind: domain.EntitlementDirectGrant,
		EntitlementID:   id,
		Recipient:       grant.Recipient,
		Amount:          grant.Amount,
	})
	if err != nil {
		l.logIfIntegrity(ctx, err, zap.Uint64("grant_id", id))
		return nil, err
	}

	l.publishEvent(ctx, domain.EventTypeSettled, domain.EntitlementDirectGrant, id, grant.Recipient, grant.Amount, nil, &payout.ID)
	return l.executePayout(ctx, payout)
}

// CreateVestingParams carries the caller-supplied schedule parameters
type CreateVestingParams struct {
	Beneficiary string
	ExternalKey string
	TotalAmount *big.Int
	StartTime   time.Time
	Cliff       time.Duration
	Duration    time.Duration
	Revocable   bool
}

// CreateVestingSchedule records a new schedule and adds its total to
// totalLocked. At most one schedule may exist per (beneficiary, external key).
func (l *Ledger) CreateVestingSchedule(ctx context.Context, params CreateVestingParams) (*domain.VestingSchedule, error) {
	if !domain.ValidAddress(params.Beneficiary) {
		return nil, fmt.Errorf("%w: bad beneficiary address", domain.ErrInvalidAmount)
	}
	if params.ExternalKey == "" {
		return nil, fmt.Errorf("%w: missing external key", domain.ErrInvalidSchedule)
	}
	if err := vesting.Validate(params.TotalAmount, params.Cliff, params.Duration); err != nil {
		return nil, err
	}

	startTime := params.StartTime
	if startTime.IsZero() {
		startTime = l.clock.Now()
	}

	sched, err := l.store.CreateVestingSchedule(ctx, &domain.VestingSchedule{
		ExternalKey:   params.ExternalKey,
		Beneficiary:   domain.NormalizeAddress(params.Beneficiary),
		TotalAmount:   params.TotalAmount,
		StartTime:     startTime,
		CliffDuration: params.Cliff,
		TotalDuration: params.Duration,
		Revocable:     params.Revocable,
		AmountClaimed: new(big.Int),
		CreatedAt:     l.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	l.publishEvent(ctx, domain.EventTypeCreated, domain.EntitlementVesting, sched.ID, sched.Beneficiary, sched.TotalAmount, nil, nil)
	return sched, nil
}

// GetVestingSchedule retrieves a schedule by ID
func (l *Ledger) GetVestingSchedule(ctx context.Context, id uint64) (*domain.VestingSchedule, error) {
	sched, err := l.store.GetVestingSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, domain.ErrNotFound
	}
	return sched, nil
}

// ClaimableAmount returns the vested-but-unclaimed portion of a schedule at
// the current instant
func (l *Ledger) ClaimableAmount(ctx context.Context, id uint64) (*big.Int, error) {
	sched, err := l.GetVestingSchedule(ctx, id)
	if err != nil {
		return nil, err
	}

	claimable, err := vesting.ClaimableAmount(sched, l.clock.Now())
	if err != nil {
		l.logIfIntegrity(ctx, err, zap.Uint64("schedule_id", id))
		return nil, err
	}
	return claimable, nil
}

// ClaimVested pays out everything vested and unclaimed on the schedule.
// A zero claimable amount is ErrNothingToClaim, not a zero-value payout.
func (l *Ledger) ClaimVested(ctx context.Context, id uint64) (*domain.Payout, error) {
	key := lockKey{kind: domain.EntitlementVesting, id: id}
	if err := l.locks.Acquire(ctx, key); err != nil {
		return nil, err
	}
	defer l.locks.Release(key)

	sched, err := l.store.GetVestingSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, domain.ErrNotFound
	}

	claimable, err := vesting.ClaimableAmount(sched, l.clock.Now())
	if err != nil {
		l.logIfIntegrity(ctx, err, zap.Uint64("schedule_id", id))
		return nil, err
	}
	if claimable.Sign() == 0 {
		return nil, domain.ErrNothingToClaim
	}

	payout, err := l.store.ApplyVestingClaim(ctx, id, sched.Revision, claimable, &domain.Payout{
		EntitlementKind: domain.EntitlementVesting,
		EntitlementID:   id,
		Recipient:       sched.Beneficiary,
		Amount:          claimable,
	})
	if err != nil {
		l.logIfIntegrity(ctx, err, zap.Uint64("schedule_id", id))
		return nil, err
	}

	l.publishEvent(ctx, domain.EventTypeClaimed, domain.EntitlementVesting, id, sched.Beneficiary, claimable, nil, &payout.ID)
	return l.executePayout(ctx, payout)
}

// RevokeVestingSchedule terminates a revocable schedule early. The amount
// vested at revocation time stays claimable forever; the unvested remainder is
// forfeited and removed from totalLocked. Returns the forfeited amount.
func (l *Ledger) RevokeVestingSchedule(ctx context.Context, id uint64) (*big.Int, error) {
	key := lockKey{kind: domain.EntitlementVesting, id: id}
	if err := l.locks.Acquire(ctx, key); err != nil {
		return nil, err
	}
	defer l.locks.Release(key)

	sched, err := l.store.GetVestingSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, domain.ErrNotFound
	}
	if !sched.Revocable {
		return nil, domain.ErrNotRevocable
	}
	if sched.Revoked {
		return nil, domain.ErrAlreadyRevoked
	}

	now := l.clock.Now()
	vestedCap := vesting.VestedAmount(sched, now)
	if sched.AmountClaimed.Cmp(vestedCap) > 0 {
		err := fmt.Errorf("%w: claimed amount exceeds vested amount", domain.ErrInvalidState)
		l.logIfIntegrity(ctx, err, zap.Uint64("schedule_id", id))
		return nil, err
	}
	forfeited := new(big.Int).Sub(sched.TotalAmount, vestedCap)

	if err := l.store.RevokeVestingSchedule(ctx, id, sched.Revision, now, vestedCap, forfeited); err != nil {
		l.logIfIntegrity(ctx, err, zap.Uint64("schedule_id", id))
		return nil, err
	}

	l.publishEvent(ctx, domain.EventTypeRevoked, domain.EntitlementVesting, id, sched.Beneficiary, forfeited, nil, nil)
	return forfeited, nil
}

// CreateDistributionParams carries the parameters of a published airdrop batch
type CreateDistributionParams struct {
	Root        common.Hash
	TotalAmount *big.Int
	Window      time.Duration
	MetadataRef string
}

// CreateMerkleDistribution publishes an airdrop batch and adds its total to
// totalLocked. Individual leaves are claimed against the root with a proof.
func (l *Ledger) CreateMerkleDistribution(ctx context.Context, params CreateDistributionParams) (*domain.MerkleDistribution, error) {
	if !domain.ValidAmount(params.TotalAmount) {
		return nil, domain.ErrInvalidAmount
	}
	if params.Window <= 0 {
		return nil, fmt.Errorf("%w: non-positive claim window", domain.ErrInvalidSchedule)
	}
	if params.Root == (common.Hash{}) {
		return nil, fmt.Errorf("%w: zero merkle root", domain.ErrInvalidSchedule)
	}

	dist, err := l.store.CreateMerkleDistribution(ctx, &domain.MerkleDistribution{
		Root:           params.Root,
		TotalAmount:    params.TotalAmount,
		AmountClaimed:  new(big.Int),
		WindowDuration: params.Window,
		MetadataRef:    params.MetadataRef,
		// The claim window is measured from this instant
		CreatedAt: l.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	l.publishEvent(ctx, domain.EventTypeCreated, domain.EntitlementMerkle, dist.ID, "", dist.TotalAmount, nil, nil)
	return dist, nil
}

// GetMerkleDistribution retrieves a distribution by ID
func (l *Ledger) GetMerkleDistribution(ctx context.Context, id uint64) (*domain.MerkleDistribution, error) {
	dist, err := l.store.GetMerkleDistribution(ctx, id)
	if err != nil {
		return nil, err
	}
	if dist == nil {
		return nil, domain.ErrNotFound
	}
	return dist, nil
}

// ClaimLeafParams carries one leaf claim with its proof path
type ClaimLeafParams struct {
	DistributionID uint64
	LeafIndex      uint64
	Recipient      string
	Amount         *big.Int
	Proof          []common.Hash
}

// ClaimMerkleLeaf settles one leaf of a distribution, at most once per leaf
// index, only inside the claim window, only with a proof that recomputes the
// published root.
func (l *Ledger) ClaimMerkleLeaf(ctx context.Context, params ClaimLeafParams) (*domain.Payout, error) {
	if !domain.ValidAddress(params.Recipient) {
		return nil, fmt.Errorf("%w: bad recipient address", domain.ErrInvalidAmount)
	}
	if !domain.ValidAmount(params.Amount) {
		return nil, domain.ErrInvalidAmount
	}

	key := lockKey{kind: domain.EntitlementMerkle, id: params.DistributionID}
	if err := l.locks.Acquire(ctx, key); err != nil {
		return nil, err
	}
	defer l.locks.Release(key)

	dist, err := l.store.GetMerkleDistribution(ctx, params.DistributionID)
	if err != nil {
		return nil, err
	}
	if dist == nil {
		return nil, domain.ErrNotFound
	}
	if dist.Closed() {
		return nil, domain.ErrDistributionClosed
	}

	now := l.clock.Now()
	if dist.Expired(now) {
		return nil, domain.ErrExpiredWindow
	}

	recipient := domain.NormalizeAddress(params.Recipient)
	if !merkle.Verify(dist.Root, params.LeafIndex, common.HexToAddress(recipient), params.Amount, params.Proof) {
		return nil, domain.ErrInvalidProof
	}

	claimed, err := l.store.IsLeafClaimed(ctx, params.DistributionID, params.LeafIndex)
	if err != nil {
		return nil, err
	}
	if claimed {
		return nil, domain.ErrAlreadyClaimed
	}

	if params.Amount.Cmp(dist.Remaining()) > 0 {
		err := fmt.Errorf("%w: proven leaf amount exceeds distribution remainder", domain.ErrInvalidState)
		l.logIfIntegrity(ctx, err, zap.Uint64("distribution_id", params.DistributionID), zap.Uint64("leaf_index", params.LeafIndex))
		return nil, err
	}

	payout, err := l.store.ApplyMerkleClaim(ctx, params.DistributionID, dist.Revision, &domain.MerkleClaim{
		DistributionID: params.DistributionID,
		LeafIndex:      params.LeafIndex,
		Recipient:      recipient,
		Amount:         params.Amount,
		ClaimedAt:      now,
	}, &domain.Payout{
		EntitlementKind: domain.EntitlementMerkle,
		EntitlementID:   params.DistributionID,
		Recipient:       recipient,
		Amount:          params.Amount,
	})
	if err != nil {
		l.logIfIntegrity(ctx, err, zap.Uint64("distribution_id", params.DistributionID))
		return nil, err
	}

	leafIndex := params.LeafIndex
	l.publishEvent(ctx, domain.EventTypeClaimed, domain.EntitlementMerkle, params.DistributionID, recipient, params.Amount, &leafIndex, &payout.ID)
	return l.executePayout(ctx, payout)
}

// SweepExpired closes an expired distribution and returns its unclaimed
// remainder to the issuer pool. Settled claims are kept; only the remainder
// stops being claimable. Returns the swept amount.
func (l *Ledger) SweepExpired(ctx context.Context, distributionID uint64) (*big.Int, error) {
	key := lockKey{kind: domain.EntitlementMerkle, id: distributionID}
	if err := l.locks.Acquire(ctx, key); err != nil {
		return nil, err
	}
	defer l.locks.Release(key)

	dist, err := l.store.GetMerkleDistribution(ctx, distributionID)
	if err != nil {
		return nil, err
	}
	if dist == nil {
		return nil, domain.ErrNotFound
	}
	if dist.Closed() {
		return nil, domain.ErrDistributionClosed
	}
	if !dist.Expired(l.clock.Now()) {
		return nil, domain.ErrNotExpired
	}

	remaining := dist.Remaining()
	if remaining.Sign() < 0 {
		err := fmt.Errorf("%w: claimed amount exceeds distribution total", domain.ErrInvalidState)
		l.logIfIntegrity(ctx, err, zap.Uint64("distribution_id", distributionID))
		return nil, err
	}

	if err := l.store.CloseMerkleDistribution(ctx, distributionID, dist.Revision, l.clock.Now(), remaining); err != nil {
		l.logIfIntegrity(ctx, err, zap.Uint64("distribution_id", distributionID))
		return nil, err
	}

	l.publishEvent(ctx, domain.EventTypeSwept, domain.EntitlementMerkle, distributionID, "", remaining, nil, nil)
	return remaining, nil
}

// ListExpiredDistributions returns open distributions whose window elapsed,
// for the sweeper
func (l *Ledger) ListExpiredDistributions(ctx context.Context, limit int) ([]*domain.MerkleDistribution, error) {
	return l.store.ListExpiredOpenDistributions(ctx, l.clock.Now(), limit)
}

// GetPayout retrieves a payout by ID
func (l *Ledger) GetPayout(ctx context.Context, id uint64) (*domain.Payout, error) {
	payout, err := l.store.GetPayout(ctx, id)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, domain.ErrNotFound
	}
	return payout, nil
}

// ListUnreconciledPayouts returns failed payouts plus pending payouts older
// than pendingAge, for the reconciler
func (l *Ledger) ListUnreconciledPayouts(ctx context.Context, pendingAge time.Duration, limit int) ([]*domain.Payout, error) {
	return l.store.ListUnreconciledPayouts(ctx, l.clock.Now(), pendingAge, limit)
}

// ReconcilePayout re-drives the mover for a payout stuck in failed or stale
// pending. Paid payouts are left alone.
func (l *Ledger) ReconcilePayout(ctx context.Context, id uint64) error {
	payout, err := l.store.GetPayout(ctx, id)
	if err != nil {
		return err
	}
	if payout == nil {
		return domain.ErrNotFound
	}
	if payout.State == domain.PayoutStatePaid {
		return nil
	}

	_, err = l.executePayout(ctx, payout)
	return err
}

// TotalLocked returns the aggregate obligated-but-unpaid value
func (l *Ledger) TotalLocked(ctx context.Context) (*big.Int, error) {
	return l.store.TotalLocked(ctx)
}

// VerifyAggregate cross-checks the maintained totalLocked counter against the
// sum of per-entitlement remainders. Drift is a bug, reported as ErrInvalidState.
func (l *Ledger) VerifyAggregate(ctx context.Context) error {
	locked, err := l.store.TotalLocked(ctx)
	if err != nil {
		return err
	}
	outstanding, err := l.store.SumOutstanding(ctx)
	if err != nil {
		return err
	}

	if locked.Cmp(outstanding) != 0 {
		err := fmt.Errorf("%w: totalLocked %s drifted from outstanding sum %s",
			domain.ErrInvalidState, locked.String(), outstanding.String())
		l.logIfIntegrity(ctx, err)
		return err
	}
	return nil
}

// executePayout drives the committed payout through the Token Mover with its
// own timeout. Never called inside a store transaction.
func (l *Ledger) executePayout(ctx context.Context, payout *domain.Payout) (*domain.Payout, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.payoutTimeout)
	defer cancel()

	receipt, err := l.mover.Transfer(callCtx, payout.Recipient, payout.Amount)
	if err != nil {
		if uerr := l.store.UpdatePayoutState(context.WithoutCancel(ctx), payout.ID, domain.PayoutStateFailed, nil); uerr != nil {
			logger.ErrorCtx(ctx, fmt.Errorf("CRITICAL: failed to record payout failure: %w", uerr),
				zap.Uint64("payout_id", payout.ID))
		}
		payout.State = domain.PayoutStateFailed
		payout.Attempts++
		return payout, fmt.Errorf("%w: %s", domain.ErrPayoutFailed, err)
	}

	if uerr := l.store.UpdatePayoutState(context.WithoutCancel(ctx), payout.ID, domain.PayoutStatePaid, &receipt.Reference); uerr != nil {
		// The transfer went out; losing the paid marker risks a double send at
		// reconciliation time, so this is the loudest failure the ledger has.
		logger.ErrorCtx(ctx, fmt.Errorf("CRITICAL: transfer succeeded but payout state update failed: %w", uerr),
			zap.Uint64("payout_id", payout.ID), zap.String("receipt", receipt.Reference))
	}
	payout.State = domain.PayoutStatePaid
	payout.Receipt = &receipt.Reference
	payout.Attempts++
	return payout, nil
}

// logIfIntegrity escalates integrity-class errors; state-conflict and
// validation outcomes pass through silently
func (l *Ledger) logIfIntegrity(ctx context.Context, err error, fields ...zap.Field) {
	if domain.IsIntegrity(err) {
		logger.ErrorCtx(ctx, fmt.Errorf("CRITICAL: ledger integrity violation: %w", err), fields...)
	}
}

// publishEvent emits a lifecycle event after a committed mutation. Publishing
// is best-effort; failures are logged and never unwind ledger state.
func (l *Ledger) publishEvent(ctx context.Context, eventType domain.EventType, kind domain.EntitlementKind, entitlementID uint64, recipient string, amount *big.Int, leafIndex, payoutID *uint64) {
	event := &domain.EntitlementEvent{
		EventID:         ulid.Make().String(),
		EventType:       eventType,
		EntitlementKind: kind,
		EntitlementID:   entitlementID,
		Recipient:       recipient,
		LeafIndex:       leafIndex,
		PayoutID:        payoutID,
		Timestamp:       l.clock.Now(),
	}
	if amount != nil {
		event.Amount = amount.String()
	}

	if err := l.events.PublishEntitlementEvent(ctx, event); err != nil {
		logger.WarnCtx(ctx, "failed to publish entitlement event",
			zap.String("event_type", string(eventType)), zap.Error(err))
	}
}
