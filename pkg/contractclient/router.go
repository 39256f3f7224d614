package contractclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"sentinel/internal/swaprouter"
	"sentinel/pkg/fixedpoint"
)

// DEXRouter is a concrete swaprouter.Router backed by an on-chain swap
// router/quoter pair, grounded on the teacher's Swap method: approve, quote,
// then (at execution time, via the liquidator contract) submit.
type DEXRouter struct {
	id          string
	chainIDs    []uint64
	quoter      *Client
	quoteMethod string
	fee         uint32
}

// NewDEXRouter returns a Router named id, quoting through quoter's
// quoteMethod (a single-hop quoter call taking tokenIn, tokenOut, fee,
// amountIn and returning amountOut).
func NewDEXRouter(id string, chainIDs []uint64, quoter *Client, quoteMethod string, fee uint32) *DEXRouter {
	return &DEXRouter{id: id, chainIDs: chainIDs, quoter: quoter, quoteMethod: quoteMethod, fee: fee}
}

// ID is a stable identifier for this router.
func (d *DEXRouter) ID() string { return d.id }

// SupportedChains lists the chain IDs this router can quote on.
func (d *DEXRouter) SupportedChains() []uint64 { return d.chainIDs }

// GetRoute resolves a fresh single-hop route for params via the configured
// quoter contract.
func (d *DEXRouter) GetRoute(ctx context.Context, params swaprouter.SwapParams) (swaprouter.SwapRoute, error) {
	var amountOut *big.Int
	if err := d.quoter.Call(ctx, &amountOut, d.quoteMethod, params.TokenIn, params.TokenOut, d.fee, params.AmountIn.ToBig()); err != nil {
		return swaprouter.SwapRoute{}, fmt.Errorf("contractclient: quote %s: %w", d.id, err)
	}

	out, _ := uint256.FromBig(amountOut)
	minOut := fixedpoint.ApplyBPS(out, params.SlippageBps)

	return swaprouter.SwapRoute{
		RouterID:     d.id,
		TokenIn:      params.TokenIn,
		TokenOut:     params.TokenOut,
		AmountIn:     params.AmountIn,
		AmountOut:    out,
		Path:         []common.Address{params.TokenIn, params.TokenOut},
		PoolFees:     []uint32{d.fee},
		MinAmountOut: minOut,
	}, nil
}

// EncodeRoute ABI-encodes route into calldata for the configured swap
// adapter contract.
func (d *DEXRouter) EncodeRoute(route swaprouter.SwapRoute) ([]byte, error) {
	return d.quoter.abi.Pack("exactInputSingle",
		route.TokenIn, route.TokenOut, d.fee,
		route.AmountIn.ToBig(), route.MinAmountOut.ToBig())
}

// CreateDirectRoute builds a 1:1 fallback route with 0.5% slippage, used
// when no real route can be found.
func (d *DEXRouter) CreateDirectRoute(tokenIn, tokenOut common.Address, amountIn *uint256.Int) swaprouter.SwapRoute {
	minOut := fixedpoint.ApplyBPS(amountIn, 50) // 0.5%
	return swaprouter.SwapRoute{
		RouterID:     d.id + ":direct",
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     amountIn,
		AmountOut:    amountIn,
		Path:         []common.Address{tokenIn, tokenOut},
		MinAmountOut: minOut,
	}
}
