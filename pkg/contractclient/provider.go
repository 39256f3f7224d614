package contractclient

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"

	"sentinel/internal/adapter"
)

// rawCollateral and rawDebt are the ABI output shapes PositionData decodes
// into; field names must match the pool contract's named tuple outputs.
type rawCollateral struct {
	Asset                common.Address
	Amount               *big.Int
	Price                *big.Int
	Decimals             uint8
	LiquidationThreshold uint16
	Enabled              bool
}

type rawDebt struct {
	Asset    common.Address
	Amount   *big.Int
	Price    *big.Int
	Decimals uint8
}

// LendingPoolProvider implements adapter.ChainProvider against a
// configurable lending-pool contract. Method names are configuration
// because the concrete ABI of any given protocol is out of this engine's
// specified scope.
type LendingPoolProvider struct {
	eth               *ethclient.Client
	pool              *Client
	collateralsMethod string
	debtsMethod       string
}

// NewLendingPoolProvider returns a ChainProvider calling collateralsMethod
// and debtsMethod on pool, each taking a single user address argument.
func NewLendingPoolProvider(eth *ethclient.Client, pool *Client, collateralsMethod, debtsMethod string) *LendingPoolProvider {
	return &LendingPoolProvider{eth: eth, pool: pool, collateralsMethod: collateralsMethod, debtsMethod: debtsMethod}
}

// PositionData returns user's current collateral and debt composition.
func (p *LendingPoolProvider) PositionData(ctx context.Context, user common.Address) ([]adapter.CollateralEntry, []adapter.DebtEntry, error) {
	var rawCollaterals []rawCollateral
	if err := p.pool.Call(ctx, &rawCollaterals, p.collateralsMethod, user); err != nil {
		return nil, nil, fmt.Errorf("contractclient: fetch collaterals: %w", err)
	}
	var rawDebts []rawDebt
	if err := p.pool.Call(ctx, &rawDebts, p.debtsMethod, user); err != nil {
		return nil, nil, fmt.Errorf("contractclient: fetch debts: %w", err)
	}

	collaterals := make([]adapter.CollateralEntry, 0, len(rawCollaterals))
	for _, c := range rawCollaterals {
		amount, _ := uint256.FromBig(c.Amount)
		price, _ := uint256.FromBig(c.Price)
		collaterals = append(collaterals, adapter.CollateralEntry{
			Asset:                c.Asset,
			Amount:               amount,
			Price:                price,
			Decimals:             c.Decimals,
			LiquidationThreshold: c.LiquidationThreshold,
			Enabled:              c.Enabled,
		})
	}

	debts := make([]adapter.DebtEntry, 0, len(rawDebts))
	for _, d := range rawDebts {
		amount, _ := uint256.FromBig(d.Amount)
		price, _ := uint256.FromBig(d.Price)
		debts = append(debts, adapter.DebtEntry{
			Asset:    d.Asset,
			Amount:   amount,
			Price:    price,
			Decimals: d.Decimals,
		})
	}

	return collaterals, debts, nil
}

// PositionsBatch fetches positions for many users with bounded concurrency,
// returning one result per user regardless of individual failures.
func (p *LendingPoolProvider) PositionsBatch(ctx context.Context, users []common.Address, concurrency int) ([]adapter.PositionResult, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]adapter.PositionResult, len(users))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, user := range users {
		wg.Add(1)
		go func(i int, user common.Address) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			collaterals, debts, err := p.PositionData(ctx, user)
			results[i] = adapter.PositionResult{User: user, Collaterals: collaterals, Debts: debts, Err: err}
		}(i, user)
	}
	wg.Wait()

	return results, nil
}

// BlockNumber returns the current chain head.
func (p *LendingPoolProvider) BlockNumber(ctx context.Context) (uint64, error) {
	return p.eth.BlockNumber(ctx)
}

// ChainID returns the chain this provider is connected to.
func (p *LendingPoolProvider) ChainID(ctx context.Context) (uint64, error) {
	id, err := p.eth.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

// HealthCheck reports whether the underlying connection is usable.
func (p *LendingPoolProvider) HealthCheck(ctx context.Context) error {
	_, err := p.eth.BlockNumber(ctx)
	return err
}
