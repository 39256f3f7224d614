package contractclient

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDEXRouter_CreateDirectRoute(t *testing.T) {
	tokenIn := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenOut := common.HexToAddress("0x2222222222222222222222222222222222222222")
	amountIn := uint256.NewInt(1_000_000)

	router := NewDEXRouter("test-dex", []uint64{1}, nil, "quote", 500)
	route := router.CreateDirectRoute(tokenIn, tokenOut, amountIn)

	assert.Equal(t, "test-dex:direct", route.RouterID)
	assert.Equal(t, tokenIn, route.TokenIn)
	assert.Equal(t, tokenOut, route.TokenOut)
	assert.Equal(t, amountIn, route.AmountOut)
	// 0.5% slippage off a 1,000,000 input
	assert.Equal(t, uint256.NewInt(995_000), route.MinAmountOut)
}

func TestDEXRouter_EncodeRoute(t *testing.T) {
	quoterClient := NewContractClient(nil, common.Address{}, mustParseTestABI(t), mustGenerateKey(t), nil)
	router := NewDEXRouter("test-dex", []uint64{1}, quoterClient, "quote", 500)

	route := router.CreateDirectRoute(
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		uint256.NewInt(1_000_000),
	)

	_, err := router.EncodeRoute(route)
	require.Error(t, err) // the test ABI has no exactInputSingle method
}

func TestDEXRouter_IDAndChains(t *testing.T) {
	router := NewDEXRouter("test-dex", []uint64{1, 42161}, nil, "quote", 3000)
	assert.Equal(t, "test-dex", router.ID())
	assert.Equal(t, []uint64{1, 42161}, router.SupportedChains())
}
