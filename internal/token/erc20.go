package token

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/openreward/reward-distributor/internal/adapter"
	"github.com/openreward/reward-distributor/internal/domain"
)

var (
	transferSelector  = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	balanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
)

// ERC20Config holds the on-chain mover configuration
type ERC20Config struct {
	TokenAddress string
	OperatorKey  string // hex-encoded secp256k1 private key
	GasLimit     uint64
}

// erc20Mover submits ERC-20 transfer transactions from the operator account
type erc20Mover struct {
	client   adapter.EthClient
	token    common.Address
	key      *ecdsa.PrivateKey
	operator common.Address
	gasLimit uint64
	chainID  *big.Int
}

// NewERC20Mover creates a mover backed by an ERC-20 contract. The chain ID is
// fetched once at construction and reused for EIP-155 signing.
func NewERC20Mover(ctx context.Context, client adapter.EthClient, cfg ERC20Config) (Mover, error) {
	if !common.IsHexAddress(cfg.TokenAddress) {
		return nil, fmt.Errorf("invalid token address: %s", cfg.TokenAddress)
	}

	key, err := crypto.HexToECDSA(cfg.OperatorKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse operator key: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain ID: %w", err)
	}

	return &erc20Mover{
		client:   client,
		token:    common.HexToAddress(cfg.TokenAddress),
		key:      key,
		operator: crypto.PubkeyToAddress(key.PublicKey),
		gasLimit: cfg.GasLimit,
		chainID:  chainID,
	}, nil
}

// Transfer submits a transfer(recipient, amount) transaction and returns its hash.
// The operator balance is checked first so an underfunded pool surfaces as
// ErrInsufficientSupply instead of an opaque revert.
func (m *erc20Mover) Transfer(ctx context.Context, to string, amount *big.Int) (*Receipt, error) {
	if !domain.ValidAddress(to) {
		return nil, fmt.Errorf("invalid recipient address: %s", to)
	}

	balance, err := m.operatorBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read operator balance: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientSupply, balance, amount)
	}

	nonce, err := m.client.PendingNonceAt(ctx, m.operator)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	gasPrice, err := m.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      m.gasLimit,
		To:       &m.token,
		Value:    new(big.Int),
		Data:     transferCalldata(common.HexToAddress(to), amount),
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(m.chainID), m.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := m.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	return &Receipt{Reference: signed.Hash().Hex()}, nil
}

func (m *erc20Mover) operatorBalance(ctx context.Context) (*big.Int, error) {
	data := append([]byte{}, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(m.operator.Bytes(), 32)...)

	out, err := m.client.CallContract(ctx, ethereum.CallMsg{To: &m.token, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	return new(big.Int).SetBytes(out), nil
}

func transferCalldata(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 68)
	data = append(data, transferSelector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}
