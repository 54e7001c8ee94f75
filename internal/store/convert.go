package store

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openreward/reward-distributor/internal/domain"
	"github.com/openreward/reward-distributor/internal/store/schema"
)

// parseAmount converts a stored numeric string back into a big.Int. Postgres
// may render the numeric with a fractional part (e.g. "0.000"), so anything
// after the decimal point is dropped.
func parseAmount(s string) (*big.Int, error) {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	if s == "" || s == "-" {
		s = "0"
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: unparseable amount %q", domain.ErrInvalidState, s)
	}
	return amount, nil
}

func parseOptionalAmount(s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	return parseAmount(*s)
}

func grantToDomain(row *schema.DirectGrant) (*domain.DirectGrant, error) {
	amount, err := parseAmount(row.Amount)
	if err != nil {
		return nil, err
	}
	return &domain.DirectGrant{
		ID:        row.ID,
		Recipient: row.Recipient,
		Amount:    amount,
		Reason:    row.Reason,
		Settled:   row.Settled,
		SettledAt: row.SettledAt,
		Revision:  row.Revision,
		CreatedAt: row.CreatedAt,
	}, nil
}

func scheduleToDomain(row *schema.VestingSchedule) (*domain.VestingSchedule, error) {
	total, err := parseAmount(row.TotalAmount)
	if err != nil {
		return nil, err
	}
	claimed, err := parseAmount(row.AmountClaimed)
	if err != nil {
		return nil, err
	}
	vestedCap, err := parseOptionalAmount(row.VestedCap)
	if err != nil {
		return nil, err
	}
	return &domain.VestingSchedule{
		ID:            row.ID,
		ExternalKey:   row.ExternalKey,
		Beneficiary:   row.Beneficiary,
		TotalAmount:   total,
		StartTime:     row.StartTime,
		CliffDuration: time.Duration(row.CliffSeconds) * time.Second,
		TotalDuration: time.Duration(row.DurationSeconds) * time.Second,
		Revocable:     row.Revocable,
		AmountClaimed: claimed,
		Revoked:       row.Revoked,
		RevokedAt:     row.RevokedAt,
		VestedCap:     vestedCap,
		Revision:      row.Revision,
		CreatedAt:     row.CreatedAt,
	}, nil
}

func distributionToDomain(row *schema.MerkleDistribution) (*domain.MerkleDistribution, error) {
	total, err := parseAmount(row.TotalAmount)
	if err != nil {
		return nil, err
	}
	claimed, err := parseAmount(row.AmountClaimed)
	if err != nil {
		return nil, err
	}
	swept, err := parseOptionalAmount(row.SweptAmount)
	if err != nil {
		return nil, err
	}
	return &domain.MerkleDistribution{
		ID:             row.ID,
		Root:           common.HexToHash(row.Root),
		TotalAmount:    total,
		AmountClaimed:  claimed,
		WindowDuration: time.Duration(row.WindowSeconds) * time.Second,
		MetadataRef:    row.MetadataRef,
		ClosedAt:       row.ClosedAt,
		SweptAmount:    swept,
		Revision:       row.Revision,
		CreatedAt:      row.CreatedAt,
	}, nil
}

func payoutToDomain(row *schema.Payout) (*domain.Payout, error) {
	amount, err := parseAmount(row.Amount)
	if err != nil {
		return nil, err
	}
	return &domain.Payout{
		ID:              row.ID,
		EntitlementKind: domain.EntitlementKind(row.EntitlementKind),
		EntitlementID:   row.EntitlementID,
		Recipient:       row.Recipient,
		Amount:          amount,
		State:           domain.PayoutState(row.State),
		Receipt:         row.Receipt,
		Attempts:        row.Attempts,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}, nil
}

func payoutToSchema(payout *domain.Payout, at time.Time) *schema.Payout {
	return &schema.Payout{
		EntitlementKind: string(payout.EntitlementKind),
		EntitlementID:   payout.EntitlementID,
		Recipient:       payout.Recipient,
		Amount:          payout.Amount.String(),
		State:           string(domain.PayoutStatePending),
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}
