package token

import (
	"context"
	"math/big"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openreward/reward-distributor/internal/logger"
)

// noopMover acknowledges every transfer without touching a chain. Used when no
// RPC endpoint is configured, matching the mock payout path of the demo stack.
type noopMover struct{}

// NewNoopMover creates a mover that only logs transfers
func NewNoopMover() Mover {
	return &noopMover{}
}

func (m *noopMover) Transfer(ctx context.Context, to string, amount *big.Int) (*Receipt, error) {
	ref := uuid.NewString()
	logger.InfoCtx(ctx, "Simulated token transfer",
		zap.String("to", to),
		zap.String("amount", amount.String()),
		zap.String("reference", ref),
	)
	return &Receipt{Reference: ref}, nil
}
