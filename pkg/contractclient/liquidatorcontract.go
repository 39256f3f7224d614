package contractclient

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// LiquidatorContractClient implements adapter.LiquidatorContract against the
// deployed liquidator contract, grounded on the same approve/send/wait shape
// the teacher's Swap method used (pack calldata, submit, poll receipt).
type LiquidatorContractClient struct {
	contract *Client
}

// NewLiquidatorContractClient returns a LiquidatorContract adapter bound to
// contract, the deployed liquidator contract's Client.
func NewLiquidatorContractClient(contract *Client) *LiquidatorContractClient {
	return &LiquidatorContractClient{contract: contract}
}

// Liquidate submits a from-scratch liquidation call.
func (l *LiquidatorContractClient) Liquidate(ctx context.Context, user, collateralAsset, debtAsset common.Address, debtToCover *uint256.Int, swapCalldata []byte, minAmountOut *uint256.Int) (common.Hash, error) {
	return l.contract.Send(ctx, "liquidationCall",
		collateralAsset, debtAsset, user, debtToCover.ToBig(), swapCalldata, minAmountOut.ToBig())
}

// ExecutePreencoded submits a fully pre-built liquidation calldata blob.
func (l *LiquidatorContractClient) ExecutePreencoded(ctx context.Context, calldata []byte) (common.Hash, error) {
	return l.contract.SendRaw(ctx, func() ([]byte, error) { return calldata, nil })
}

// RescueTokens sweeps token's balance on the liquidator contract to
// recipient.
func (l *LiquidatorContractClient) RescueTokens(ctx context.Context, token, recipient common.Address) (common.Hash, error) {
	return l.contract.Send(ctx, "rescueTokens", token, recipient)
}
