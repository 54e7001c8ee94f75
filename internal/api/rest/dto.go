package rest

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openreward/reward-distributor/internal/domain"
)

// Amounts cross the wire as decimal strings; they do not fit in JSON numbers.

type createGrantRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	Reason    string `json:"reason"`
}

type grantResponse struct {
	ID        uint64     `json:"id"`
	Recipient string     `json:"recipient"`
	Amount    string     `json:"amount"`
	Reason    string     `json:"reason,omitempty"`
	Settled   bool       `json:"settled"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type createScheduleRequest struct {
	Beneficiary     string     `json:"beneficiary" binding:"required"`
	ExternalKey     string     `json:"external_key" binding:"required"`
	TotalAmount     string     `json:"total_amount" binding:"required"`
	StartTime       *time.Time `json:"start_time"`
	CliffSeconds    int64      `json:"cliff_seconds"`
	DurationSeconds int64      `json:"duration_seconds" binding:"required"`
	Revocable       bool       `json:"revocable"`
}

type scheduleResponse struct {
	ID              uint64     `json:"id"`
	ExternalKey     string     `json:"external_key"`
	Beneficiary     string     `json:"beneficiary"`
	TotalAmount     string     `json:"total_amount"`
	StartTime       time.Time  `json:"start_time"`
	CliffSeconds    int64      `json:"cliff_seconds"`
	DurationSeconds int64      `json:"duration_seconds"`
	Revocable       bool       `json:"revocable"`
	AmountClaimed   string     `json:"amount_claimed"`
	Revoked         bool       `json:"revoked"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
	VestedCap       *string    `json:"vested_cap,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type claimableResponse struct {
	ScheduleID uint64 `json:"schedule_id"`
	Claimable  string `json:"claimable"`
}

type createDistributionRequest struct {
	Root          string `json:"root" binding:"required"`
	TotalAmount   string `json:"total_amount" binding:"required"`
	WindowSeconds int64  `json:"window_seconds" binding:"required"`
	MetadataRef   string `json:"metadata_ref"`
}

type distributionResponse struct {
	ID            uint64     `json:"id"`
	Root          string     `json:"root"`
	TotalAmount   string     `json:"total_amount"`
	AmountClaimed string     `json:"amount_claimed"`
	WindowSeconds int64      `json:"window_seconds"`
	MetadataRef   string     `json:"metadata_ref,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	SweptAmount   *string    `json:"swept_amount,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type claimLeafRequest struct {
	LeafIndex uint64   `json:"leaf_index"`
	Recipient string   `json:"recipient" binding:"required"`
	Amount    string   `json:"amount" binding:"required"`
	Proof     []string `json:"proof"`
}

type payoutResponse struct {
	ID              uint64    `json:"id"`
	EntitlementKind string    `json:"entitlement_kind"`
	EntitlementID   uint64    `json:"entitlement_id"`
	Recipient       string    `json:"recipient"`
	Amount          string    `json:"amount"`
	State           string    `json:"state"`
	Receipt         *string   `json:"receipt,omitempty"`
	Attempts        int       `json:"attempts"`
	CreatedAt       time.Time `json:"created_at"`
}

type sweepResponse struct {
	DistributionID uint64 `json:"distribution_id"`
	SweptAmount    string `json:"swept_amount"`
}

type totalLockedResponse struct {
	TotalLocked string `json:"total_locked"`
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a decimal integer", s)
	}
	return amount, nil
}

func parseProof(hexes []string) ([]common.Hash, error) {
	proof := make([]common.Hash, 0, len(hexes))
	for _, h := range hexes {
		b, err := decodeHash(h)
		if err != nil {
			return nil, err
		}
		proof = append(proof, b)
	}
	return proof, nil
}

func decodeHash(s string) (common.Hash, error) {
	b := common.FromHex(s)
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%q is not a 32-byte hex hash", s)
	}
	return common.BytesToHash(b), nil
}

func toGrantResponse(g *domain.DirectGrant) grantResponse {
	return grantResponse{
		ID:        g.ID,
		Recipient: g.Recipient,
		Amount:    g.Amount.String(),
		Reason:    g.Reason,
		Settled:   g.Settled,
		SettledAt: g.SettledAt,
		CreatedAt: g.CreatedAt,
	}
}

func toScheduleResponse(s *domain.VestingSchedule) scheduleResponse {
	resp := scheduleResponse{
		ID:              s.ID,
		ExternalKey:     s.ExternalKey,
		Beneficiary:     s.Beneficiary,
		TotalAmount:     s.TotalAmount.String(),
		StartTime:       s.StartTime,
		CliffSeconds:    int64(s.CliffDuration / time.Second),
		DurationSeconds: int64(s.TotalDuration / time.Second),
		Revocable:       s.Revocable,
		AmountClaimed:   s.AmountClaimed.String(),
		Revoked:         s.Revoked,
		RevokedAt:       s.RevokedAt,
		CreatedAt:       s.CreatedAt,
	}
	if s.VestedCap != nil {
		vestedCap := s.VestedCap.String()
		resp.VestedCap = &vestedCap
	}
	return resp
}

func toDistributionResponse(d *domain.MerkleDistribution) distributionResponse {
	resp := distributionResponse{
		ID:            d.ID,
		Root:          d.Root.Hex(),
		TotalAmount:   d.TotalAmount.String(),
		AmountClaimed: d.AmountClaimed.String(),
		WindowSeconds: int64(d.WindowDuration / time.Second),
		MetadataRef:   d.MetadataRef,
		ClosedAt:      d.ClosedAt,
		CreatedAt:     d.CreatedAt,
	}
	if d.SweptAmount != nil {
		swept := d.SweptAmount.String()
		resp.SweptAmount = &swept
	}
	return resp
}

func toPayoutResponse(p *domain.Payout) payoutResponse {
	return payoutResponse{
		ID:              p.ID,
		EntitlementKind: string(p.EntitlementKind),
		EntitlementID:   p.EntitlementID,
		Recipient:       p.Recipient,
		Amount:          p.Amount.String(),
		State:           string(p.State),
		Receipt:         p.Receipt,
		Attempts:        p.Attempts,
		CreatedAt:       p.CreatedAt,
	}
}
