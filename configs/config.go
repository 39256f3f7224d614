// Package configs loads the deployment TOML and assets YAML files and
// translates them into the typed config structs the core components
// consume. Nothing under internal/ parses raw config files directly; this
// package is the single place a file on disk becomes a Go struct.
package configs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"sentinel/internal/liquidator"
	"sentinel/internal/position"
	"sentinel/internal/prestage"
	"sentinel/internal/scanner"
)

// ChainConfig selects the RPC/WS endpoints and gas parameters for one chain.
type ChainConfig struct {
	ChainID         uint64   `toml:"chain_id"`
	RPCUrls         []string `toml:"rpc_urls"`
	WSUrl           string   `toml:"ws_url"`
	GasPriceGwei    float64  `toml:"gas_price_gwei"`
	GasLimit        uint64   `toml:"gas_limit"`
	SwapAdapterName string   `toml:"swap_adapter_name"`
}

// ProtocolConfig names the lending protocol's deployed addresses and
// liquidation economics.
type ProtocolConfig struct {
	CloseFactorBps    uint16 `toml:"close_factor_bps"`
	DefaultBonusBps   uint16 `toml:"default_bonus_bps"`
	LiquidatorAddress string `toml:"liquidator_address"`
	PoolAddress       string `toml:"pool_address"`
	ProfitReceiver    string `toml:"profit_receiver"`
}

// PositionConfig carries the tier classification thresholds.
type PositionConfig struct {
	CriticalHF              float64 `toml:"critical_hf"`
	HotHF                   float64 `toml:"hot_hf"`
	WarmHF                  float64 `toml:"warm_hf"`
	CriticalTriggerDistance float64 `toml:"critical_trigger_distance_pct"`
	HotTriggerDistance      float64 `toml:"hot_trigger_distance_pct"`
	WarmTriggerDistance     float64 `toml:"warm_trigger_distance_pct"`
	DustThresholdUSD        float64 `toml:"dust_threshold_usd"`
	BadDebtHFThreshold      float64 `toml:"bad_debt_hf_threshold"`
}

// TierConfig carries the per-tier re-evaluation cadence, in milliseconds.
type TierConfig struct {
	CriticalMs int `toml:"critical_ms"`
	HotMs      int `toml:"hot_ms"`
	WarmMs     int `toml:"warm_ms"`
	ColdMs     int `toml:"cold_ms"`
}

// ScannerConfig carries the scheduler cadences and seeding limits.
type ScannerConfig struct {
	SeedHFMax             float64 `toml:"seed_hf_max"`
	SeedLimit             int     `toml:"seed_limit"`
	BootstrapIntervalSec  int     `toml:"bootstrap_interval_sec"`
	DualOracleIntervalSec int     `toml:"dual_oracle_interval_sec"`
	HeartbeatIntervalSec  int     `toml:"heartbeat_interval_sec"`
	ReconnectDelaySec     int     `toml:"reconnect_delay_sec"`
}

// StagingConfig carries the pre-staging pipeline's gating thresholds.
type StagingConfig struct {
	HFThreshold       float64 `toml:"hf_threshold"`
	TTLSec            int     `toml:"ttl_sec"`
	PriceDeviationBps int64   `toml:"price_deviation_bps"`
	MinDebtUSDToStage float64 `toml:"min_debt_usd_to_stage"`
}

// LiquidationConfig carries the execution-time profitability gate.
type LiquidationConfig struct {
	MinProfitUSD     float64 `toml:"min_profit_usd"`
	SlippageBps      uint16  `toml:"slippage_bps"`
	MaxRetries       int     `toml:"max_retries"`
	DispatchCapacity int     `toml:"dispatch_capacity"`
}

// BotConfig groups the tunables belonging to the core engine rather than
// chain or protocol identity.
type BotConfig struct {
	Position    PositionConfig    `toml:"position"`
	Tier        TierConfig        `toml:"tier"`
	Scanner     ScannerConfig     `toml:"scanner"`
	Staging     StagingConfig     `toml:"staging"`
	Liquidation LiquidationConfig `toml:"liquidation"`
}

// DeploymentConfig is the raw shape of the top-level TOML deployment file.
type DeploymentConfig struct {
	Chain      ChainConfig    `toml:"chain"`
	Protocol   ProtocolConfig `toml:"protocol"`
	AssetsFile string         `toml:"assets_file"`
	Bot        BotConfig      `toml:"bot"`
}

// AssetConfig is one entry of the assets YAML file: the immutable,
// process-wide record spec.md §3 calls "Asset".
type AssetConfig struct {
	Symbol              string `yaml:"symbol"`
	Token               string `yaml:"token"`
	Oracle              string `yaml:"oracle"`
	OracleType          string `yaml:"oracle_type"` // standard|redstone|pyth|dual_oracle|pendle_pt
	Decimals            uint8  `yaml:"decimals"`
	StalenessSec        int    `yaml:"staleness_sec"`
	Priority            uint8  `yaml:"priority"`
	LiquidationBonusBps uint16 `yaml:"liquidation_bonus_bps"`
	MaturityUnix        *int64 `yaml:"maturity_unix,omitempty"`
	Active              bool   `yaml:"active"`
}

// AssetsFile is the raw shape of the assets YAML file.
type AssetsFile struct {
	Assets []AssetConfig `yaml:"assets"`
}

// Config is the fully loaded, not-yet-translated deployment: the TOML
// deployment struct plus its referenced assets file.
type Config struct {
	Deployment DeploymentConfig
	Assets     AssetsFile
}

// LoadConfig reads path as TOML into a DeploymentConfig, expands ${VAR}
// patterns in every RPC/WS URL field against the process environment, then
// loads the assets file it references (resolved relative to path's
// directory unless absolute).
func LoadConfig(path string) (*Config, error) {
	var dep DeploymentConfig
	if _, err := toml.DecodeFile(path, &dep); err != nil {
		return nil, fmt.Errorf("configs: decode deployment toml: %w", err)
	}

	for i, url := range dep.Chain.RPCUrls {
		dep.Chain.RPCUrls[i] = os.Expand(url, os.Getenv)
	}
	dep.Chain.WSUrl = os.Expand(dep.Chain.WSUrl, os.Getenv)

	assetsPath := dep.AssetsFile
	if !filepath.IsAbs(assetsPath) {
		assetsPath = filepath.Join(filepath.Dir(path), assetsPath)
	}
	data, err := os.ReadFile(assetsPath)
	if err != nil {
		return nil, fmt.Errorf("configs: read assets file: %w", err)
	}
	var assets AssetsFile
	if err := yaml.Unmarshal(data, &assets); err != nil {
		return nil, fmt.Errorf("configs: parse assets yaml: %w", err)
	}

	return &Config{Deployment: dep, Assets: assets}, nil
}

// ToTierThresholds translates the bot.position section into the tracker's
// classification cutoffs.
func (c *Config) ToTierThresholds() position.TierThresholds {
	p := c.Deployment.Bot.Position
	if p == (PositionConfig{}) {
		return position.DefaultTierThresholds()
	}
	return position.TierThresholds{
		CriticalHF:              p.CriticalHF,
		HotHF:                   p.HotHF,
		WarmHF:                  p.WarmHF,
		CriticalTriggerDistance: p.CriticalTriggerDistance,
		HotTriggerDistance:      p.HotTriggerDistance,
		WarmTriggerDistance:     p.WarmTriggerDistance,
	}
}

// ToTierIntervals translates the bot.tier section into the tracker's
// per-tier re-evaluation cadence.
func (c *Config) ToTierIntervals() position.TierIntervals {
	t := c.Deployment.Bot.Tier
	if t == (TierConfig{}) {
		return position.DefaultTierIntervals()
	}
	return position.TierIntervals{
		Critical: time.Duration(t.CriticalMs) * time.Millisecond,
		Hot:      time.Duration(t.HotMs) * time.Millisecond,
		Warm:     time.Duration(t.WarmMs) * time.Millisecond,
		Cold:     time.Duration(t.ColdMs) * time.Millisecond,
	}
}

// ToBadDebtConfig translates the bot.position section's dust/bad-debt
// thresholds.
func (c *Config) ToBadDebtConfig() position.BadDebtConfig {
	p := c.Deployment.Bot.Position
	if p.DustThresholdUSD == 0 && p.BadDebtHFThreshold == 0 {
		return position.DefaultBadDebtConfig()
	}
	return position.BadDebtConfig{
		DustThresholdUSD:   p.DustThresholdUSD,
		BadDebtHFThreshold: p.BadDebtHFThreshold,
	}
}

// ToPreStagingConfig translates the bot.staging section.
func (c *Config) ToPreStagingConfig() prestage.PreStagingConfig {
	s := c.Deployment.Bot.Staging
	if s == (StagingConfig{}) {
		return prestage.DefaultPreStagingConfig()
	}
	return prestage.PreStagingConfig{
		StagingHFThreshold:         s.HFThreshold,
		StagedTxTTL:                time.Duration(s.TTLSec) * time.Second,
		PriceDeviationThresholdBps: s.PriceDeviationBps,
		MinDebtUSDToStage:          s.MinDebtUSDToStage,
	}
}

// ToScannerConfig translates the bot.scanner and bot.liquidation sections
// into the scheduler cadences scanner.Scanner runs on.
func (c *Config) ToScannerConfig() scanner.Config {
	sc := c.Deployment.Bot.Scanner
	liq := c.Deployment.Bot.Liquidation
	if sc == (ScannerConfig{}) {
		return scanner.DefaultConfig()
	}

	intervals := c.ToTierIntervals()
	cfg := scanner.DefaultConfig()
	cfg.SeedHFMax = sc.SeedHFMax
	cfg.SeedLimit = sc.SeedLimit
	cfg.CriticalInterval = intervals.Critical
	cfg.HotInterval = intervals.Hot
	cfg.WarmInterval = intervals.Warm
	cfg.ColdInterval = intervals.Cold
	if sc.BootstrapIntervalSec > 0 {
		cfg.BootstrapInterval = time.Duration(sc.BootstrapIntervalSec) * time.Second
	}
	if sc.DualOracleIntervalSec > 0 {
		cfg.DualOracleInterval = time.Duration(sc.DualOracleIntervalSec) * time.Second
	}
	if sc.HeartbeatIntervalSec > 0 {
		cfg.HeartbeatInterval = time.Duration(sc.HeartbeatIntervalSec) * time.Second
	}
	if sc.ReconnectDelaySec > 0 {
		cfg.ReconnectDelay = time.Duration(sc.ReconnectDelaySec) * time.Second
	}
	if liq.MaxRetries > 0 {
		cfg.MaxRetries = liq.MaxRetries
	}
	if liq.DispatchCapacity > 0 {
		cfg.DispatchCapacity = liq.DispatchCapacity
	}
	return cfg
}

// assetBonusSource resolves each asset's configured liquidation bonus by
// token address, falling back to the protocol default.
type assetBonusSource struct {
	bonuses map[common.Address]uint16
	def     uint16
}

func (a assetBonusSource) LiquidationBonusBps(asset common.Address) uint16 {
	if bps, ok := a.bonuses[asset]; ok {
		return bps
	}
	return a.def
}

// ToBonusSource builds a liquidator.BonusSource from the assets file,
// falling back to protocol.default_bonus_bps for any asset that doesn't
// override it.
func (c *Config) ToBonusSource() liquidator.BonusSource {
	bonuses := make(map[common.Address]uint16, len(c.Assets.Assets))
	for _, a := range c.Assets.Assets {
		if a.LiquidationBonusBps == 0 {
			continue
		}
		bonuses[common.HexToAddress(a.Token)] = a.LiquidationBonusBps
	}
	return assetBonusSource{bonuses: bonuses, def: c.Deployment.Protocol.DefaultBonusBps}
}

// LiquidatorAddress resolves the protocol section's liquidator contract
// address.
func (c *Config) LiquidatorAddress() common.Address {
	return common.HexToAddress(c.Deployment.Protocol.LiquidatorAddress)
}

// PoolAddress resolves the protocol section's lending pool address.
func (c *Config) PoolAddress() common.Address {
	return common.HexToAddress(c.Deployment.Protocol.PoolAddress)
}

// ProfitReceiver resolves the protocol section's profit-receiver address.
func (c *Config) ProfitReceiver() common.Address {
	return common.HexToAddress(c.Deployment.Protocol.ProfitReceiver)
}

// DualOracleAssets returns the oracle addresses of every asset configured
// with the dual_oracle oracle type, for seeding the DualOracleMonitor.
func (c *Config) DualOracleAssets() []common.Address {
	var out []common.Address
	for _, a := range c.Assets.Assets {
		if a.OracleType == "dual_oracle" {
			out = append(out, common.HexToAddress(a.Oracle))
		}
	}
	return out
}

// HeartbeatStaleness returns the per-oracle expected update interval,
// derived from each asset's staleness_sec, for seeding the
// HeartbeatPredictor.
func (c *Config) HeartbeatStaleness() map[common.Address]time.Duration {
	out := make(map[common.Address]time.Duration, len(c.Assets.Assets))
	for _, a := range c.Assets.Assets {
		if a.Oracle == "" || a.StalenessSec == 0 {
			continue
		}
		out[common.HexToAddress(a.Oracle)] = time.Duration(a.StalenessSec) * time.Second
	}
	return out
}

// MinProfitUSD and SlippageBps resolve the bot.liquidation section; the ok
// result is false when the field was left at its zero value, signaling the
// caller to keep the liquidator package's own built-in default.
func (c *Config) MinProfitUSD() (value float64, ok bool) {
	v := c.Deployment.Bot.Liquidation.MinProfitUSD
	return v, v != 0
}

func (c *Config) SlippageBps() (value uint16, ok bool) {
	v := c.Deployment.Bot.Liquidation.SlippageBps
	return v, v != 0
}
