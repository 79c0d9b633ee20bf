// Package oracle implements the NFT ownership oracle against an ERC-721
// contract over an Ethereum JSON-RPC endpoint. Reads are eth_call; transfers
// are signed transactions from the marketplace operator key, confirmed by
// receipt before the engine treats the transfer as done.
package oracle

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/gavelhq/gavel/internal/domain"
)

// ERC-721 method selectors, first four bytes of the keccak method hash.
var (
	selOwnerOf          = ethcrypto.Keccak256([]byte("ownerOf(uint256)"))[:4]
	selGetApproved      = ethcrypto.Keccak256([]byte("getApproved(uint256)"))[:4]
	selIsApprovedForAll = ethcrypto.Keccak256([]byte("isApprovedForAll(address,address)"))[:4]
	selTransferFrom     = ethcrypto.Keccak256([]byte("transferFrom(address,address,uint256)"))[:4]
)

const (
	defaultGasLimit       = 150_000
	defaultReceiptTimeout = 2 * time.Minute
	receiptPollInterval   = 2 * time.Second
)

// Config holds the chain endpoint and contract the oracle talks to.
type Config struct {
	RPCURL         string
	Contract       common.Address
	ChainID        int64
	GasLimit       uint64
	ReceiptTimeout time.Duration
}

// ETH is a domain.OwnershipOracle backed by an ERC-721 contract.
type ETH struct {
	client         *ethclient.Client
	contract       common.Address
	chainID        *big.Int
	key            *ecdsa.PrivateKey
	operator       common.Address
	gasLimit       uint64
	receiptTimeout time.Duration
	logger         *slog.Logger
}

// Dial connects to the RPC endpoint and returns an oracle signing with key.
func Dial(ctx context.Context, cfg Config, key *ecdsa.PrivateKey, logger *slog.Logger) (*ETH, error) {
	if cfg.ChainID == 0 {
		return nil, errors.New("oracle: chain id must be set")
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("oracle: dial %s: %w", cfg.RPCURL, err)
	}

	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	receiptTimeout := cfg.ReceiptTimeout
	if receiptTimeout == 0 {
		receiptTimeout = defaultReceiptTimeout
	}

	return &ETH{
		client:         client,
		contract:       cfg.Contract,
		chainID:        big.NewInt(cfg.ChainID),
		key:            key,
		operator:       ethcrypto.PubkeyToAddress(key.PublicKey),
		gasLimit:       gasLimit,
		receiptTimeout: receiptTimeout,
		logger:         logger.With(slog.String("component", "oracle")),
	}, nil
}

// Operator is the address the oracle signs transfers with. Sellers must have
// approved it on the contract.
func (o *ETH) Operator() common.Address {
	return o.operator
}

// Close releases the underlying RPC connection.
func (o *ETH) Close() {
	o.client.Close()
}

func padUint(v int64) []byte {
	return common.BigToHash(new(big.Int).SetInt64(v)).Bytes()
}

func padAddress(addr common.Address) []byte {
	return common.LeftPadBytes(addr.Bytes(), 32)
}

func (o *ETH) call(ctx context.Context, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &o.contract, Data: data}
	out, err := o.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, err
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("oracle: short return data (%d bytes)", len(out))
	}
	return out, nil
}

func (o *ETH) OwnerOf(ctx context.Context, assetID int64) (common.Address, error) {
	data := append(append([]byte{}, selOwnerOf...), padUint(assetID)...)
	out, err := o.call(ctx, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("oracle: ownerOf(%d): %w", assetID, err)
	}
	return common.BytesToAddress(out[12:32]), nil
}

func (o *ETH) GetApproved(ctx context.Context, assetID int64) (common.Address, error) {
	data := append(append([]byte{}, selGetApproved...), padUint(assetID)...)
	out, err := o.call(ctx, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("oracle: getApproved(%d): %w", assetID, err)
	}
	return common.BytesToAddress(out[12:32]), nil
}

func (o *ETH) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	data := append(append([]byte{}, selIsApprovedForAll...), padAddress(owner)...)
	data = append(data, padAddress(operator)...)
	out, err := o.call(ctx, data)
	if err != nil {
		return false, fmt.Errorf("oracle: isApprovedForAll: %w", err)
	}
	return out[31] != 0, nil
}

// TransferFrom submits a transferFrom transaction signed by the operator key
// and blocks until the receipt confirms it. A reverted transaction is an
// error; the engine treats it like any other transfer failure.
func (o *ETH) TransferFrom(ctx context.Context, from, to common.Address, assetID int64) error {
	data := append(append([]byte{}, selTransferFrom...), padAddress(from)...)
	data = append(data, padAddress(to)...)
	data = append(data, padUint(assetID)...)

	nonce, err := o.client.PendingNonceAt(ctx, o.operator)
	if err != nil {
		return fmt.Errorf("oracle: pending nonce: %w", err)
	}
	gasPrice, err := o.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("oracle: suggest gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, o.contract, big.NewInt(0), o.gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(o.chainID), o.key)
	if err != nil {
		return fmt.Errorf("oracle: sign transfer: %w", err)
	}
	if err := o.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("oracle: send transfer: %w", err)
	}

	o.logger.InfoContext(ctx, "asset transfer submitted",
		slog.Int64("asset_id", assetID),
		slog.String("tx", signed.Hash().Hex()),
	)
	return o.waitMined(ctx, signed.Hash())
}

func (o *ETH) waitMined(ctx context.Context, hash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, o.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := o.client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("oracle: transfer %s reverted", hash.Hex())
			}
			return nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return fmt.Errorf("oracle: receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("oracle: transfer %s not mined: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Compile-time interface check.
var _ domain.OwnershipOracle = (*ETH)(nil)
