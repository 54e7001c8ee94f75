package domain

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EntitlementKind tags the three entitlement variants tracked by the ledger
type EntitlementKind string

const (
	EntitlementDirectGrant EntitlementKind = "direct_grant"
	EntitlementVesting     EntitlementKind = "vesting_schedule"
	EntitlementMerkle      EntitlementKind = "merkle_distribution"
)

// PayoutState tracks the lifecycle of an authorized payout against the Token Mover
type PayoutState string

const (
	// PayoutStatePending means the ledger transition is committed but the mover has not confirmed yet
	PayoutStatePending PayoutState = "pending"
	// PayoutStatePaid means the mover confirmed the transfer
	PayoutStatePaid PayoutState = "paid"
	// PayoutStateFailed means the mover call failed; the record stays settled and
	// the payout waits for out-of-band reconciliation
	PayoutStateFailed PayoutState = "failed"
)

// DirectGrant is an entitlement that is immediately eligible and paid in full once
type DirectGrant struct {
	ID        uint64
	Recipient string
	Amount    *big.Int
	Reason    string
	Settled   bool
	SettledAt *time.Time
	Revision  uint64
	CreatedAt time.Time
}

// VestingSchedule releases an entitlement linearly after an initial cliff.
// TotalAmount is immutable; a revocation records VestedCap, the amount locked
// in at revocation time, which bounds all further vesting.
type VestingSchedule struct {
	ID            uint64
	ExternalKey   string
	Beneficiary   string
	TotalAmount   *big.Int
	StartTime     time.Time
	CliffDuration time.Duration
	TotalDuration time.Duration
	Revocable     bool
	AmountClaimed *big.Int
	Revoked       bool
	RevokedAt     *time.Time
	VestedCap     *big.Int
	Revision      uint64
	CreatedAt     time.Time
}

// MerkleDistribution is a published airdrop batch. Individual (recipient, amount)
// leaves are claimed against Root with a proof, each at most once, only inside
// the claim window [CreatedAt, CreatedAt+WindowDuration].
type MerkleDistribution struct {
	ID             uint64
	Root           common.Hash
	TotalAmount    *big.Int
	AmountClaimed  *big.Int
	WindowDuration time.Duration
	MetadataRef    string
	ClosedAt       *time.Time
	SweptAmount    *big.Int
	Revision       uint64
	CreatedAt      time.Time
}

// Expired reports whether the claim window has elapsed at the given instant
func (d *MerkleDistribution) Expired(now time.Time) bool {
	return now.After(d.CreatedAt.Add(d.WindowDuration))
}

// Closed reports whether the distribution has been closed (swept or exhausted)
func (d *MerkleDistribution) Closed() bool {
	return d.ClosedAt != nil
}

// Remaining returns the unclaimed remainder of the distribution
func (d *MerkleDistribution) Remaining() *big.Int {
	return new(big.Int).Sub(d.TotalAmount, d.AmountClaimed)
}

// MerkleClaim records a single settled leaf of a distribution
type MerkleClaim struct {
	DistributionID uint64
	LeafIndex      uint64
	Recipient      string
	Amount         *big.Int
	ClaimedAt      time.Time
}

// Payout is the ledger's record of a single authorized transfer. It is inserted
// in the same transaction as the entitlement state change that authorized it.
type Payout struct {
	ID              uint64
	EntitlementKind EntitlementKind
	EntitlementID   uint64
	Recipient       string
	Amount          *big.Int
	State           PayoutState
	Receipt         *string
	Attempts        int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ValidAddress checks whether s is a well-formed 0x hex address
func ValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// NormalizeAddress converts an address to its EIP-55 checksummed form
func NormalizeAddress(address string) string {
	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		return common.HexToAddress(address).String()
	}
	return address
}

// ValidAmount checks that an amount is present and strictly positive
func ValidAmount(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}
