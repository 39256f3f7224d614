package contractclient

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testABIJSON = `[
	{"type":"function","name":"liquidationCall","inputs":[
		{"name":"collateralAsset","type":"address"},
		{"name":"debtAsset","type":"address"},
		{"name":"user","type":"address"},
		{"name":"debtToCover","type":"uint256"},
		{"name":"swapCalldata","type":"bytes"},
		{"name":"minAmountOut","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"rescueTokens","inputs":[
		{"name":"token","type":"address"},
		{"name":"recipient","type":"address"}
	],"outputs":[]},
	{"type":"function","name":"quote","inputs":[
		{"name":"tokenIn","type":"address"},
		{"name":"tokenOut","type":"address"},
		{"name":"fee","type":"uint24"},
		{"name":"amountIn","type":"uint256"}
	],"outputs":[{"name":"amountOut","type":"uint256"}]}
]`

func mustParseTestABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(testABIJSON))
	require.NoError(t, err)
	return parsed
}

func mustGenerateKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func TestNewContractClient_ContractAddress(t *testing.T) {
	addr := common.HexToAddress("0xabcabcabcabcabcabcabcabcabcabcabcabcabc")
	client := NewContractClient(nil, addr, mustParseTestABI(t), mustGenerateKey(t), big.NewInt(1))

	assert.Equal(t, addr, client.ContractAddress())
}

func TestSendRaw_BuildCalldataError(t *testing.T) {
	client := NewContractClient(nil, common.Address{}, mustParseTestABI(t), mustGenerateKey(t), big.NewInt(1))

	wantErr := errors.New("build failed")
	_, err := client.SendRaw(context.Background(), func() ([]byte, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}
