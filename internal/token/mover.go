// Package token provides the Token Mover collaborator: the fungible-token
// ledger that actually moves balances when the distribution ledger authorizes
// a payout.
package token

import (
	"context"
	"errors"
	"math/big"
)

// ErrInsufficientSupply is returned when the operator account does not hold
// enough tokens to cover a transfer
var ErrInsufficientSupply = errors.New("insufficient token supply")

// Receipt is the mover's proof of a completed transfer
type Receipt struct {
	// Reference identifies the transfer on the mover's side: a transaction
	// hash for the on-chain mover, an opaque id for the local one
	Reference string
}

// Mover defines the Token Mover interface consumed by the ledger.
// Transfer is a fallible external call with its own timeout; it is never part
// of the ledger's atomic state transition.
type Mover interface {
	// Transfer moves amount base units to the given address, exactly once per call
	Transfer(ctx context.Context, to string, amount *big.Int) (*Receipt, error)
}
