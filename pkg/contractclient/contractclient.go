// Package contractclient is the reference go-ethereum-backed implementation
// of the adapter interfaces the core engine depends on: reading lending-pool
// state and submitting liquidator-contract transactions. The concrete ABI of
// any given lending protocol is an external-collaborator concern (spec.md
// §1); this package supplies the plumbing (call, pack, sign, send, wait) and
// takes the ABI and method names as configuration, exactly like the
// teacher's ContractClient.
package contractclient

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps one contract's ABI and address over a shared RPC connection,
// signing and sending transactions with its own private key. It is the
// building block every adapter in this package is built from.
type Client struct {
	eth        *ethclient.Client
	address    common.Address
	abi        abi.ABI
	privateKey *ecdsa.PrivateKey
	myAddr     common.Address
	chainID    *big.Int
}

// NewContractClient returns a Client bound to address using abi, signing
// transactions with privateKey.
func NewContractClient(eth *ethclient.Client, address common.Address, contractABI abi.ABI, privateKey *ecdsa.PrivateKey, chainID *big.Int) *Client {
	return &Client{
		eth:        eth,
		address:    address,
		abi:        contractABI,
		privateKey: privateKey,
		myAddr:     crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    chainID,
	}
}

// ContractAddress returns the address this client is bound to.
func (c *Client) ContractAddress() common.Address {
	return c.address
}

// Call performs a read-only eth_call against method and unpacks the result
// into out (a pointer to a struct or slice matching the ABI's outputs).
func (c *Client) Call(ctx context.Context, out interface{}, method string, args ...interface{}) error {
	calldata, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("contractclient: pack %s: %w", method, err)
	}

	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: calldata}, nil)
	if err != nil {
		return fmt.Errorf("contractclient: call %s: %w", method, err)
	}

	if err := c.abi.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("contractclient: unpack %s: %w", method, err)
	}
	return nil
}

// Send approves/invokes method with args, signs, and submits the
// transaction, returning its hash. Gas is estimated automatically.
func (c *Client) Send(ctx context.Context, method string, args ...interface{}) (common.Hash, error) {
	return c.SendRaw(ctx, func() ([]byte, error) { return c.abi.Pack(method, args...) })
}

// SendRaw submits a transaction whose calldata is produced by buildCalldata,
// used for pre-encoded payloads that skip ABI packing entirely.
func (c *Client) SendRaw(ctx context.Context, buildCalldata func() ([]byte, error)) (common.Hash, error) {
	calldata, err := buildCalldata()
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: build calldata: %w", err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.myAddr)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: fetch nonce: %w", err)
	}

	gasTipCap, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: suggest tip: %w", err)
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: fetch head: %w", err)
	}
	gasFeeCap := new(big.Int).Add(gasTipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: c.myAddr,
		To:   &c.address,
		Data: calldata,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &c.address,
		Data:      calldata,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: send tx: %w", err)
	}
	return signed.Hash(), nil
}

// WaitForTransaction polls for tx's receipt, returning an error if it
// reverted.
func (c *Client) WaitForTransaction(ctx context.Context, tx common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, tx)
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, fmt.Errorf("contractclient: tx %s reverted", tx)
			}
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
