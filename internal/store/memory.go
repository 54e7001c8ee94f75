package store

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/openreward/reward-distributor/internal/domain"
)

// memoryStore is a mutex-guarded in-memory Store with the same transactional
// semantics as the Postgres implementation. Used for tests and store-free
// deployments.
type memoryStore struct {
	mu sync.RWMutex

	grants        map[uint64]*domain.DirectGrant
	schedules     map[uint64]*domain.VestingSchedule
	scheduleKeys  map[string]uint64 // beneficiary + "\x00" + external key -> schedule ID
	distributions map[uint64]*domain.MerkleDistribution
	claims        map[uint64]map[uint64]*domain.MerkleClaim // distribution ID -> leaf index -> claim
	payouts       map[uint64]*domain.Payout

	nextGrantID    uint64
	nextScheduleID uint64
	nextDistID     uint64
	nextPayoutID   uint64

	totalLocked *big.Int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() Store {
	return &memoryStore{
		grants:        make(map[uint64]*domain.DirectGrant),
		schedules:     make(map[uint64]*domain.VestingSchedule),
		scheduleKeys:  make(map[string]uint64),
		distributions: make(map[uint64]*domain.MerkleDistribution),
		claims:        make(map[uint64]map[uint64]*domain.MerkleClaim),
		payouts:       make(map[uint64]*domain.Payout),
		totalLocked:   new(big.Int),
	}
}

func (s *memoryStore) CreateDirectGrant(ctx context.Context, grant *domain.DirectGrant) (*domain.DirectGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextGrantID++
	stored := copyGrant(grant)
	stored.ID = s.nextGrantID
	stored.Revision = 1
	s.grants[stored.ID] = stored
	s.totalLocked.Add(s.totalLocked, stored.Amount)

	return copyGrant(stored), nil
}

func (s *memoryStore) GetDirectGrant(ctx context.Context, id uint64) (*domain.DirectGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, ok := s.grants[id]
	if !ok {
		return nil, nil
	}
	return copyGrant(grant), nil
}

func (s *memoryStore) SettleDirectGrant(ctx context.Context, id uint64, expectedRevision uint64, settledAt time.Time, payout *domain.Payout) (*domain.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.grants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if grant.Revision != expectedRevision {
		return nil, domain.ErrRevisionConflict
	}

	settled := settledAt
	grant.Settled = true
	grant.SettledAt = &settled
	grant.Revision++
	s.totalLocked.Sub(s.totalLocked, grant.Amount)

	return s.insertPayout(payout, settledAt), nil
}

func (s *memoryStore) CreateVestingSchedule(ctx context.Context, schedule *domain.VestingSchedule) (*domain.VestingSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := schedule.Beneficiary + "\x00" + schedule.ExternalKey
	if _, exists := s.scheduleKeys[key]; exists {
		return nil, domain.ErrDuplicateSchedule
	}

	s.nextScheduleID++
	stored := copySchedule(schedule)
	stored.ID = s.nextScheduleID
	stored.Revision = 1
	if stored.AmountClaimed == nil {
		stored.AmountClaimed = new(big.Int)
	}
	s.schedules[stored.ID] = stored
	s.scheduleKeys[key] = stored.ID
	s.totalLocked.Add(s.totalLocked, stored.TotalAmount)

	return copySchedule(stored), nil
}

func (s *memoryStore) GetVestingSchedule(ctx context.Context, id uint64) (*domain.VestingSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedule, ok := s.schedules[id]
	if !ok {
		return nil, nil
	}
	return copySchedule(schedule), nil
}

func (s *memoryStore) ApplyVestingClaim(ctx context.Context, id uint64, expectedRevision uint64, paid *big.Int, payout *domain.Payout) (*domain.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, ok := s.schedules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if schedule.Revision != expectedRevision {
		return nil, domain.ErrRevisionConflict
	}

	schedule.AmountClaimed = new(big.Int).Add(schedule.AmountClaimed, paid)
	schedule.Revision++
	s.totalLocked.Sub(s.totalLocked, paid)

	return s.insertPayout(payout, time.Now()), nil
}

func (s *memoryStore) RevokeVestingSchedule(ctx context.Context, id uint64, expectedRevision uint64, revokedAt time.Time, vestedCap, forfeited *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, ok := s.schedules[id]
	if !ok {
		return domain.ErrNotFound
	}
	if schedule.Revision != expectedRevision {
		return domain.ErrRevisionConflict
	}

	revoked := revokedAt
	schedule.Revoked = true
	schedule.RevokedAt = &revoked
	schedule.VestedCap = new(big.Int).Set(vestedCap)
	schedule.Revision++
	s.totalLocked.Sub(s.totalLocked, forfeited)

	return nil
}

func (s *memoryStore) CreateMerkleDistribution(ctx context.Context, dist *domain.MerkleDistribution) (*domain.MerkleDistribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextDistID++
	stored := copyDistribution(dist)
	stored.ID = s.nextDistID
	stored.Revision = 1
	if stored.AmountClaimed == nil {
		stored.AmountClaimed = new(big.Int)
	}
	s.distributions[stored.ID] = stored
	s.claims[stored.ID] = make(map[uint64]*domain.MerkleClaim)
	s.totalLocked.Add(s.totalLocked, stored.TotalAmount)

	return copyDistribution(stored), nil
}

func (s *memoryStore) GetMerkleDistribution(ctx context.Context, id uint64) (*domain.MerkleDistribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dist, ok := s.distributions[id]
	if !ok {
		return nil, nil
	}
	return copyDistribution(dist), nil
}

func (s *memoryStore) IsLeafClaimed(ctx context.Context, distributionID, leafIndex uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	leaves, ok := s.claims[distributionID]
	if !ok {
		return false, nil
	}
	_, claimed := leaves[leafIndex]
	return claimed, nil
}

func (s *memoryStore) ApplyMerkleClaim(ctx context.Context, distributionID uint64, expectedRevision uint64, claim *domain.MerkleClaim, payout *domain.Payout) (*domain.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dist, ok := s.distributions[distributionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if dist.Revision != expectedRevision {
		return nil, domain.ErrRevisionConflict
	}
	if _, exists := s.claims[distributionID][claim.LeafIndex]; exists {
		return nil, domain.ErrAlreadyClaimed
	}

	stored := &domain.MerkleClaim{
		DistributionID: distributionID,
		LeafIndex:      claim.LeafIndex,
		Recipient:      claim.Recipient,
		Amount:         new(big.Int).Set(claim.Amount),
		ClaimedAt:      claim.ClaimedAt,
	}
	s.claims[distributionID][claim.LeafIndex] = stored

	dist.AmountClaimed = new(big.Int).Add(dist.AmountClaimed, claim.Amount)
	dist.Revision++
	s.totalLocked.Sub(s.totalLocked, claim.Amount)

	return s.insertPayout(payout, claim.ClaimedAt), nil
}

func (s *memoryStore) CloseMerkleDistribution(ctx context.Context, distributionID uint64, expectedRevision uint64, closedAt time.Time, sweptAmount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dist, ok := s.distributions[distributionID]
	if !ok {
		return domain.ErrNotFound
	}
	if dist.Revision != expectedRevision {
		return domain.ErrRevisionConflict
	}

	closed := closedAt
	dist.ClosedAt = &closed
	dist.SweptAmount = new(big.Int).Set(sweptAmount)
	dist.Revision++
	s.totalLocked.Sub(s.totalLocked, sweptAmount)

	return nil
}

func (s *memoryStore) ListExpiredOpenDistributions(ctx context.Context, now time.Time, limit int) ([]*domain.MerkleDistribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []*domain.MerkleDistribution
	for _, dist := range s.distributions {
		if !dist.Closed() && dist.Expired(now) {
			expired = append(expired, copyDistribution(dist))
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (s *memoryStore) GetPayout(ctx context.Context, id uint64) (*domain.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payout, ok := s.payouts[id]
	if !ok {
		return nil, nil
	}
	return copyPayout(payout), nil
}

func (s *memoryStore) UpdatePayoutState(ctx context.Context, id uint64, state domain.PayoutState, receipt *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payout, ok := s.payouts[id]
	if !ok {
		return domain.ErrNotFound
	}

	payout.State = state
	payout.Attempts++
	payout.UpdatedAt = time.Now()
	if receipt != nil {
		ref := *receipt
		payout.Receipt = &ref
	}

	return nil
}

func (s *memoryStore) ListUnreconciledPayouts(ctx context.Context, now time.Time, pendingAge time.Duration, limit int) ([]*domain.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stuck []*domain.Payout
	for _, payout := range s.payouts {
		switch payout.State {
		case domain.PayoutStateFailed:
			stuck = append(stuck, copyPayout(payout))
		case domain.PayoutStatePending:
			if now.Sub(payout.CreatedAt) >= pendingAge {
				stuck = append(stuck, copyPayout(payout))
			}
		}
	}
	sort.Slice(stuck, func(i, j int) bool { return stuck[i].ID < stuck[j].ID })
	if limit > 0 && len(stuck) > limit {
		stuck = stuck[:limit]
	}
	return stuck, nil
}

func (s *memoryStore) TotalLocked(ctx context.Context) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return new(big.Int).Set(s.totalLocked), nil
}

func (s *memoryStore) SumOutstanding(ctx context.Context) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := new(big.Int)
	for _, grant := range s.grants {
		if !grant.Settled {
			sum.Add(sum, grant.Amount)
		}
	}
	for _, schedule := range s.schedules {
		total := schedule.TotalAmount
		if schedule.Revoked {
			total = schedule.VestedCap
		}
		sum.Add(sum, new(big.Int).Sub(total, schedule.AmountClaimed))
	}
	for _, dist := range s.distributions {
		if !dist.Closed() {
			sum.Add(sum, dist.Remaining())
		}
	}
	return sum, nil
}

// insertPayout assigns an ID and stores a pending payout; caller holds the lock
func (s *memoryStore) insertPayout(payout *domain.Payout, at time.Time) *domain.Payout {
	s.nextPayoutID++
	stored := copyPayout(payout)
	stored.ID = s.nextPayoutID
	stored.State = domain.PayoutStatePending
	stored.CreatedAt = at
	stored.UpdatedAt = at
	s.payouts[stored.ID] = stored
	return copyPayout(stored)
}

func copyGrant(g *domain.DirectGrant) *domain.DirectGrant {
	out := *g
	out.Amount = new(big.Int).Set(g.Amount)
	if g.SettledAt != nil {
		settled := *g.SettledAt
		out.SettledAt = &settled
	}
	return &out
}

func copySchedule(s *domain.VestingSchedule) *domain.VestingSchedule {
	out := *s
	out.TotalAmount = new(big.Int).Set(s.TotalAmount)
	if s.AmountClaimed != nil {
		out.AmountClaimed = new(big.Int).Set(s.AmountClaimed)
	}
	if s.VestedCap != nil {
		out.VestedCap = new(big.Int).Set(s.VestedCap)
	}
	if s.RevokedAt != nil {
		revoked := *s.RevokedAt
		out.RevokedAt = &revoked
	}
	return &out
}

func copyDistribution(d *domain.MerkleDistribution) *domain.MerkleDistribution {
	out := *d
	out.TotalAmount = new(big.Int).Set(d.TotalAmount)
	if d.AmountClaimed != nil {
		out.AmountClaimed = new(big.Int).Set(d.AmountClaimed)
	}
	if d.SweptAmount != nil {
		out.SweptAmount = new(big.Int).Set(d.SweptAmount)
	}
	if d.ClosedAt != nil {
		closed := *d.ClosedAt
		out.ClosedAt = &closed
	}
	return &out
}

func copyPayout(p *domain.Payout) *domain.Payout {
	out := *p
	out.Amount = new(big.Int).Set(p.Amount)
	if p.Receipt != nil {
		ref := *p.Receipt
		out.Receipt = &ref
	}
	return &out
}
