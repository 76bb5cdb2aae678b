// Package eth implements the transfer client against a JSON-RPC
// ledger endpoint, signing value transfers with a configured funding
// key.
package eth

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"

	"batch-disburser/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// transferGasLimit is the gas cost of a plain value transfer.
const transferGasLimit = 21000

var weiPerToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type transferClient struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	logger  *slog.Logger
}

// NewTransferClient dials the RPC endpoint and loads the signing key.
// An unloadable key is a batch-level fatal condition, surfaced here so
// callers can abort before any remote call.
func NewTransferClient(ctx context.Context, rpcURL string, chainID int64, privateKeyHex string, logger *slog.Logger) (domain.TransferClient, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("%w: signing key is not configured", domain.ErrPrecondition)
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot load signing key: %v", domain.ErrPrecondition, err)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger RPC at %s: %w", rpcURL, err)
	}

	return &transferClient{
		client:  client,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
		logger:  logger.With("component", "transfer-client"),
	}, nil
}

// Balance returns the balance of address in wei.
func (c *transferClient) Balance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	balance, err := c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance of %s: %w", address, err)
	}
	return balance, nil
}

// SubmitTransfer signs and submits a value transfer of amount (a
// decimal token string) to the recipient and returns the transaction
// hash.
func (c *transferClient) SubmitTransfer(ctx context.Context, to string, amount string) (string, error) {
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("invalid recipient address %q", to)
	}
	value, err := parseAmount(amount)
	if err != nil {
		return "", err
	}

	balance, err := c.client.BalanceAt(ctx, c.from, nil)
	if err != nil {
		return "", fmt.Errorf("failed to read funding balance: %w", err)
	}
	if balance.Cmp(value) < 0 {
		return "", fmt.Errorf("insufficient balance: have %s wei, need %s wei", balance, value)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", fmt.Errorf("failed to fetch nonce: %w", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch gas price: %w", err)
	}

	recipient := common.HexToAddress(to)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &recipient,
		Value:    value,
		Gas:      transferGasLimit,
		GasPrice: gasPrice,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transfer to %s: %w", to, err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("failed to submit transfer to %s: %w", to, err)
	}

	hash := signed.Hash().Hex()
	c.logger.Info("transfer submitted", "to", to, "amount", amount, "tx", hash)
	return hash, nil
}

// parseAmount converts a decimal token amount ("10.5") into wei.
func parseAmount(amount string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(amount)
	if !ok || r.Sign() <= 0 {
		return nil, fmt.Errorf("invalid transfer amount %q", amount)
	}
	wei := new(big.Rat).Mul(r, new(big.Rat).SetInt(weiPerToken))
	if !wei.IsInt() {
		return nil, fmt.Errorf("amount %q has more than 18 decimal places", amount)
	}
	return wei.Num(), nil
}
