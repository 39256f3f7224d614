package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"

	"sentinel/configs"
	"sentinel/internal/adapter"
	"sentinel/internal/db"
	"sentinel/internal/liquidator"
	"sentinel/internal/oracle"
	"sentinel/internal/prestage"
	"sentinel/internal/scanner"
	"sentinel/internal/swaprouter"
	"sentinel/internal/tracker"
	"sentinel/internal/trigger"
	"sentinel/internal/util"
	"sentinel/pkg/contractclient"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to the deployment TOML config")
	liquidatorABIPath := flag.String("liquidator-abi", "", "path to the liquidator contract's Hardhat/Foundry build artifact")
	poolABIPath := flag.String("pool-abi", "", "path to the lending pool contract's Hardhat/Foundry build artifact")
	discoveryURL := flag.String("discovery-url", "", "optional position-discovery HTTP API base URL")
	dsn := flag.String("dsn", "", "optional MySQL DSN for the liquidation audit log; recording is skipped if empty")
	flag.Parse()

	log := util.NewLogger("sentinel")

	if err := run(*configPath, *liquidatorABIPath, *poolABIPath, *discoveryURL, *dsn, log); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(configPath, liquidatorABIPath, poolABIPath, discoveryURL, dsn string, log *util.Logger) error {
	_ = godotenv.Load()

	encryptedPK := os.Getenv("ENC_PK")
	if encryptedPK == "" {
		return fmt.Errorf("ENC_PK not set")
	}
	key := os.Getenv("KEY")
	if key == "" {
		return fmt.Errorf("KEY not set")
	}
	pkHex, err := util.Decrypt([]byte(key), encryptedPK)
	if err != nil {
		return fmt.Errorf("decrypt signer key: %w", err)
	}
	privateKey, err := crypto.HexToECDSA(pkHex)
	if err != nil {
		return fmt.Errorf("parse signer key: %w", err)
	}
	log.Printf("signer address %s", crypto.PubkeyToAddress(privateKey.PublicKey))

	cfg, err := configs.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Deployment.Chain.RPCUrls) == 0 {
		return fmt.Errorf("config: no rpc_urls configured")
	}

	eth, err := ethclient.Dial(cfg.Deployment.Chain.RPCUrls[0])
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	chainID := cfg.Deployment.Chain.ChainID
	chainIDBig := new(big.Int).SetUint64(chainID)

	liquidatorABI, err := util.LoadABIFromHardhatArtifact(liquidatorABIPath)
	if err != nil {
		return fmt.Errorf("load liquidator abi: %w", err)
	}
	poolABI, err := util.LoadABIFromHardhatArtifact(poolABIPath)
	if err != nil {
		return fmt.Errorf("load pool abi: %w", err)
	}

	liquidatorClient := contractclient.NewContractClient(eth, cfg.LiquidatorAddress(), liquidatorABI, privateKey, chainIDBig)
	poolClient := contractclient.NewContractClient(eth, cfg.PoolAddress(), poolABI, privateKey, chainIDBig)

	provider := contractclient.NewLendingPoolProvider(eth, poolClient, "getUserCollaterals", "getUserDebts")
	liquidatorContract := contractclient.NewLiquidatorContractClient(liquidatorClient)

	swapRegistry := swaprouter.NewRegistry()

	var discovery adapter.PositionDiscovery
	if discoveryURL != "" {
		discovery = contractclient.NewHTTPPositionDiscovery(discoveryURL, http.DefaultClient)
	}

	oracleMonitor := oracle.NewMonitor()
	dualOracleMonitor := oracle.NewDualOracleMonitor(cfg.DualOracleAssets())
	heartbeat := oracle.NewHeartbeatPredictor(cfg.HeartbeatStaleness())

	t := tracker.New(oracleMonitor, trigger.NewIndex())
	preStager := prestage.WithConfig(cfg.ToPreStagingConfig())

	liq := liquidator.New(liquidatorContract, cfg.ToBonusSource(), swapRegistry, chainID, cfg.ProfitReceiver())
	if minProfit, ok := cfg.MinProfitUSD(); ok {
		liq = liq.WithMinProfit(minProfit)
	}
	if slippage, ok := cfg.SlippageBps(); ok {
		liq = liq.WithSlippage(slippage)
	}

	var eventSource adapter.EventSource
	if cfg.Deployment.Chain.WSUrl != "" {
		wsClient, err := ethclient.Dial(cfg.Deployment.Chain.WSUrl)
		if err != nil {
			return fmt.Errorf("dial ws rpc: %w", err)
		}
		// Filter queries and the log decoder are protocol-specific and must
		// be supplied by the deployer; left zero-valued/nil here.
		eventSource = contractclient.NewLogEventSource(wsClient, ethereum.FilterQuery{}, ethereum.FilterQuery{}, nil)
	}

	sc := scanner.New(t, oracleMonitor, dualOracleMonitor, heartbeat, preStager, liq, swapRegistry, chainID, provider, eventSource, discovery, cfg.ToScannerConfig())

	if dsn != "" {
		recorder, err := db.NewRecorder(dsn)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer recorder.Close()
		sc = sc.WithRecorder(recorder)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("bootstrapping")
	if err := sc.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	log.Printf("running")
	if err := sc.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("scanner run: %w", err)
	}

	log.Printf("shutdown complete")
	return nil
}
