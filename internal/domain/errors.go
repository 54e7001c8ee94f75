package domain

import "errors"

// Validation errors: caller mistakes, rejected before any state change
var (
	// ErrInvalidAmount is returned when an amount is missing, zero or negative
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidSchedule is returned when vesting parameters are inconsistent
	// (zero duration, cliff longer than duration)
	ErrInvalidSchedule = errors.New("invalid vesting schedule")

	// ErrDuplicateSchedule is returned when a schedule already exists for the
	// same beneficiary and external key
	ErrDuplicateSchedule = errors.New("duplicate vesting schedule")
)

// State-conflict errors: expected outcomes of concurrent or adversarial
// activity, surfaced verbatim and never logged as faults
var (
	// ErrNotFound is returned when the referenced entitlement does not exist
	ErrNotFound = errors.New("entitlement not found")

	// ErrAlreadySettled is returned when settling a grant that was already paid
	ErrAlreadySettled = errors.New("grant already settled")

	// ErrAlreadyClaimed is returned when a Merkle leaf was already claimed
	ErrAlreadyClaimed = errors.New("leaf already claimed")

	// ErrAlreadyRevoked is returned when revoking a schedule twice
	ErrAlreadyRevoked = errors.New("schedule already revoked")

	// ErrNotRevocable is returned when revoking a non-revocable schedule
	ErrNotRevocable = errors.New("schedule is not revocable")

	// ErrNothingToClaim signals a no-op claim (claimable amount is zero)
	ErrNothingToClaim = errors.New("nothing to claim")

	// ErrExpiredWindow is returned when claiming outside the distribution window
	ErrExpiredWindow = errors.New("claim window expired")

	// ErrNotExpired is returned when sweeping a distribution whose window is still open
	ErrNotExpired = errors.New("claim window not yet expired")

	// ErrInvalidProof is returned when a Merkle proof does not recompute the root
	ErrInvalidProof = errors.New("invalid merkle proof")

	// ErrDistributionClosed is returned when claiming from a swept or exhausted distribution
	ErrDistributionClosed = errors.New("distribution closed")
)

// Integrity errors: indicate a bug or corrupted storage. The affected record
// must not be mutated further; these are logged at high severity.
var (
	// ErrInvalidState is returned when stored numbers are inconsistent
	// (negative claimable, claimed above total, drifted aggregate)
	ErrInvalidState = errors.New("invalid ledger state")

	// ErrRevisionConflict is returned when an optimistic revision check fails
	// under the record lock, meaning an unexpected concurrent writer
	ErrRevisionConflict = errors.New("revision conflict")
)

// Operational errors, distinct from the classes above
var (
	// ErrPayoutFailed is returned when the ledger transition committed but the
	// Token Mover call failed. Never retried on this call path; the payout is
	// left for out-of-band reconciliation.
	ErrPayoutFailed = errors.New("payout failed")

	// ErrLockTimeout is returned when the per-record lock could not be
	// acquired within the configured bound
	ErrLockTimeout = errors.New("lock acquisition timed out")
)

// IsValidation reports whether err is a caller-input validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidSchedule) ||
		errors.Is(err, ErrDuplicateSchedule)
}

// IsStateConflict reports whether err is an expected state-conflict outcome
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadySettled) ||
		errors.Is(err, ErrAlreadyClaimed) ||
		errors.Is(err, ErrAlreadyRevoked) ||
		errors.Is(err, ErrNotRevocable) ||
		errors.Is(err, ErrNothingToClaim) ||
		errors.Is(err, ErrExpiredWindow) ||
		errors.Is(err, ErrNotExpired) ||
		errors.Is(err, ErrInvalidProof) ||
		errors.Is(err, ErrDistributionClosed)
}

// IsIntegrity reports whether err indicates record corruption or an unexpected
// concurrent writer
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrInvalidState) || errors.Is(err, ErrRevisionConflict)
}
