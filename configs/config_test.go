package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDeploymentTOML = `
assets_file = "assets.yaml"

[chain]
chain_id = 1
rpc_urls = ["${TEST_RPC_URL}"]
ws_url = "wss://example.test"
gas_price_gwei = 30
gas_limit = 500000
swap_adapter_name = "uniswap_v3"

[protocol]
close_factor_bps = 5000
default_bonus_bps = 500
liquidator_address = "0x1111111111111111111111111111111111111111"
pool_address = "0x2222222222222222222222222222222222222222"
profit_receiver = "0x3333333333333333333333333333333333333333"

[bot.position]
critical_hf = 1.0
hot_hf = 1.05
warm_hf = 1.15
critical_trigger_distance_pct = 1
hot_trigger_distance_pct = 3
warm_trigger_distance_pct = 5
dust_threshold_usd = 10
bad_debt_hf_threshold = 0.5

[bot.tier]
critical_ms = 1000
hot_ms = 5000
warm_ms = 30000
cold_ms = 300000

[bot.scanner]
seed_hf_max = 1.2
seed_limit = 500
bootstrap_interval_sec = 3600
dual_oracle_interval_sec = 60
heartbeat_interval_sec = 30
reconnect_delay_sec = 5

[bot.staging]
hf_threshold = 1.1
ttl_sec = 5
price_deviation_bps = 50
min_debt_usd_to_stage = 100

[bot.liquidation]
min_profit_usd = 25
slippage_bps = 100
max_retries = 3
dispatch_capacity = 64
`

const testAssetsYAML = `
assets:
  - symbol: WETH
    token: "0x4444444444444444444444444444444444444444"
    oracle: "0x5555555555555555555555555555555555555555"
    oracle_type: standard
    decimals: 18
    staleness_sec: 3600
    priority: 1
    liquidation_bonus_bps: 750
    active: true
  - symbol: stETH
    token: "0x6666666666666666666666666666666666666666"
    oracle: "0x7777777777777777777777777777777777777777"
    oracle_type: dual_oracle
    decimals: 18
    staleness_sec: 7200
    priority: 2
    liquidation_bonus_bps: 0
    active: true
`

func writeTestConfigFiles(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deployment.toml"), []byte(testDeploymentTOML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets.yaml"), []byte(testAssetsYAML), 0o644))
	return filepath.Join(dir, "deployment.toml")
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TEST_RPC_URL", "https://rpc.example.test")
	path := writeTestConfigFiles(t)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), cfg.Deployment.Chain.ChainID)
	assert.Equal(t, []string{"https://rpc.example.test"}, cfg.Deployment.Chain.RPCUrls)
	assert.Len(t, cfg.Assets.Assets, 2)
	assert.Equal(t, "WETH", cfg.Assets.Assets[0].Symbol)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestConfig_ToTierThresholds(t *testing.T) {
	t.Setenv("TEST_RPC_URL", "https://rpc.example.test")
	cfg, err := LoadConfig(writeTestConfigFiles(t))
	require.NoError(t, err)

	thresholds := cfg.ToTierThresholds()
	assert.Equal(t, 1.0, thresholds.CriticalHF)
	assert.Equal(t, 1.05, thresholds.HotHF)
	assert.Equal(t, 1.15, thresholds.WarmHF)
}

func TestConfig_ToBadDebtConfig(t *testing.T) {
	t.Setenv("TEST_RPC_URL", "https://rpc.example.test")
	cfg, err := LoadConfig(writeTestConfigFiles(t))
	require.NoError(t, err)

	badDebt := cfg.ToBadDebtConfig()
	assert.Equal(t, 10.0, badDebt.DustThresholdUSD)
	assert.Equal(t, 0.5, badDebt.BadDebtHFThreshold)
}

func TestConfig_AddressAccessors(t *testing.T) {
	t.Setenv("TEST_RPC_URL", "https://rpc.example.test")
	cfg, err := LoadConfig(writeTestConfigFiles(t))
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), cfg.LiquidatorAddress())
	assert.Equal(t, common.HexToAddress("0x2222222222222222222222222222222222222222"), cfg.PoolAddress())
	assert.Equal(t, common.HexToAddress("0x3333333333333333333333333333333333333333"), cfg.ProfitReceiver())
}

func TestConfig_DualOracleAssets(t *testing.T) {
	t.Setenv("TEST_RPC_URL", "https://rpc.example.test")
	cfg, err := LoadConfig(writeTestConfigFiles(t))
	require.NoError(t, err)

	dualOracles := cfg.DualOracleAssets()
	require.Len(t, dualOracles, 1)
	assert.Equal(t, common.HexToAddress("0x7777777777777777777777777777777777777777"), dualOracles[0])
}

func TestConfig_HeartbeatStaleness(t *testing.T) {
	t.Setenv("TEST_RPC_URL", "https://rpc.example.test")
	cfg, err := LoadConfig(writeTestConfigFiles(t))
	require.NoError(t, err)

	staleness := cfg.HeartbeatStaleness()
	assert.Len(t, staleness, 2)
	assert.Equal(t, int64(3600), int64(staleness[common.HexToAddress("0x5555555555555555555555555555555555555555")].Seconds()))
}

func TestConfig_ToBonusSource(t *testing.T) {
	t.Setenv("TEST_RPC_URL", "https://rpc.example.test")
	cfg, err := LoadConfig(writeTestConfigFiles(t))
	require.NoError(t, err)

	bonuses := cfg.ToBonusSource()
	assert.Equal(t, uint16(750), bonuses.LiquidationBonusBps(common.HexToAddress("0x4444444444444444444444444444444444444444")))
	// stETH overrides with 0, so it falls back to the protocol default.
	assert.Equal(t, uint16(500), bonuses.LiquidationBonusBps(common.HexToAddress("0x6666666666666666666666666666666666666666")))
	assert.Equal(t, uint16(500), bonuses.LiquidationBonusBps(common.HexToAddress("0x9999999999999999999999999999999999999999")))
}

func TestConfig_MinProfitUSDAndSlippageBps(t *testing.T) {
	t.Setenv("TEST_RPC_URL", "https://rpc.example.test")
	cfg, err := LoadConfig(writeTestConfigFiles(t))
	require.NoError(t, err)

	minProfit, ok := cfg.MinProfitUSD()
	assert.True(t, ok)
	assert.Equal(t, 25.0, minProfit)

	slippage, ok := cfg.SlippageBps()
	assert.True(t, ok)
	assert.Equal(t, uint16(100), slippage)
}

func TestConfig_ToScannerConfig(t *testing.T) {
	t.Setenv("TEST_RPC_URL", "https://rpc.example.test")
	cfg, err := LoadConfig(writeTestConfigFiles(t))
	require.NoError(t, err)

	scannerCfg := cfg.ToScannerConfig()
	assert.Equal(t, 1.2, scannerCfg.SeedHFMax)
	assert.Equal(t, 500, scannerCfg.SeedLimit)
	assert.Equal(t, 3, scannerCfg.MaxRetries)
	assert.Equal(t, 64, scannerCfg.DispatchCapacity)
}
