// Package vesting computes released amounts for linear-after-cliff vesting
// schedules. All functions are pure; the ledger owns the mutable records.
package vesting

import (
	"math/big"
	"time"

	"github.com/openreward/reward-distributor/internal/domain"
)

// Validate checks vesting parameters at creation time.
// A zero total duration is rejected outright (division guard), as is a cliff
// longer than the total duration.
func Validate(amount *big.Int, cliff, duration time.Duration) error {
	if !domain.ValidAmount(amount) {
		return domain.ErrInvalidAmount
	}
	if duration <= 0 {
		return domain.ErrInvalidSchedule
	}
	if cliff < 0 || cliff > duration {
		return domain.ErrInvalidSchedule
	}
	return nil
}

// VestedAmount returns the amount vested at the given instant.
//
// Zero before the cliff, the full amount at or after the total duration, and
// totalAmount * elapsed / totalDuration in between, with big-integer floor
// division so repeated claims can never round up past the total. For revoked
// schedules the result is capped at the amount locked in at revocation.
func VestedAmount(s *domain.VestingSchedule, now time.Time) *big.Int {
	vested := linearVested(s, now)
	if s.Revoked && s.VestedCap != nil && vested.Cmp(s.VestedCap) > 0 {
		vested = new(big.Int).Set(s.VestedCap)
	}
	return vested
}

// ClaimableAmount returns the portion vested at now that has not been claimed.
// A negative result means the stored record is corrupt and is surfaced as
// ErrInvalidState, never silently clamped.
func ClaimableAmount(s *domain.VestingSchedule, now time.Time) (*big.Int, error) {
	claimed := s.AmountClaimed
	if claimed == nil {
		claimed = new(big.Int)
	}
	claimable := new(big.Int).Sub(VestedAmount(s, now), claimed)
	if claimable.Sign() < 0 {
		return nil, domain.ErrInvalidState
	}
	return claimable, nil
}

// FullyVested reports whether the schedule has nothing left to release:
// either everything vested and was claimed, or the schedule was revoked and
// the locked-in amount was claimed.
func FullyVested(s *domain.VestingSchedule, now time.Time) bool {
	claimable, err := ClaimableAmount(s, now)
	if err != nil {
		return false
	}
	if s.Revoked {
		return claimable.Sign() == 0
	}
	return claimable.Sign() == 0 && !now.Before(s.StartTime.Add(s.TotalDuration))
}

func linearVested(s *domain.VestingSchedule, now time.Time) *big.Int {
	if now.Before(s.StartTime.Add(s.CliffDuration)) {
		return new(big.Int)
	}
	if !now.Before(s.StartTime.Add(s.TotalDuration)) {
		return new(big.Int).Set(s.TotalAmount)
	}

	elapsed := now.Sub(s.StartTime)
	vested := new(big.Int).Mul(s.TotalAmount, big.NewInt(int64(elapsed)))
	return vested.Quo(vested, big.NewInt(int64(s.TotalDuration)))
}
