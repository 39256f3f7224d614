// Package adapter defines the external-collaborator interfaces the core
// engine depends on: chain data, event streams, optional position
// discovery, swap routing, and transaction signing. Concrete
// implementations (a real RPC client, a WebSocket log subscriber, a
// concrete ECDSA signer) live outside this module; the core only ever
// depends on these interfaces.
package adapter

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CollateralEntry is one collateral line item returned by a chain provider's
// position query.
type CollateralEntry struct {
	Asset                common.Address
	Amount               *uint256.Int
	Price                *uint256.Int
	Decimals             uint8
	LiquidationThreshold uint16
	Enabled              bool
}

// DebtEntry is one debt line item returned by a chain provider's position
// query.
type DebtEntry struct {
	Asset    common.Address
	Amount   *uint256.Int
	Price    *uint256.Int
	Decimals uint8
}

// PositionResult pairs a user with either a decoded position or the error
// encountered fetching it, as returned by PositionsBatch.
type PositionResult struct {
	User        common.Address
	Collaterals []CollateralEntry
	Debts       []DebtEntry
	Err         error
}

// ChainProvider is the read surface onto the lending protocol: position
// data, batched lookups, and basic chain metadata.
type ChainProvider interface {
	// PositionData returns user's current collateral and debt composition.
	PositionData(ctx context.Context, user common.Address) ([]CollateralEntry, []DebtEntry, error)
	// PositionsBatch fetches positions for many users with bounded
	// concurrency, returning one result per user regardless of individual
	// failures.
	PositionsBatch(ctx context.Context, users []common.Address, concurrency int) ([]PositionResult, error)
	// BlockNumber returns the current chain head.
	BlockNumber(ctx context.Context) (uint64, error)
	// ChainID returns the chain this provider is connected to.
	ChainID(ctx context.Context) (uint64, error)
	// HealthCheck reports whether the underlying connection is usable.
	HealthCheck(ctx context.Context) error
}

// OracleUpdate is one price-feed tick from the event source.
type OracleUpdate struct {
	Oracle     common.Address
	Asset      common.Address
	Price      *uint256.Int
	RoundID    uint64
	Timestamp  int64
	Block      uint64
	Tx         common.Hash
	OracleType int
}

// PoolEventKind tags the lending-protocol action a PoolEvent reports.
type PoolEventKind int

const (
	// Supply is a collateral deposit.
	Supply PoolEventKind = iota
	// Withdraw is a collateral withdrawal.
	Withdraw
	// Borrow is a new debt draw.
	Borrow
	// Repay is a debt repayment.
	Repay
	// LiquidationCall is a completed liquidation performed by any actor.
	LiquidationCall
)

// PoolEvent is one lending-protocol state change affecting a user.
type PoolEvent struct {
	Kind   PoolEventKind
	User   common.Address
	Assets []common.Address
	Amount *uint256.Int
	Block  uint64
	Tx     common.Hash
}

// EventSource streams the chain events the scanner reacts to. All three
// streams are at-least-once; the scanner must treat duplicates as no-ops
// via idempotent upsert.
type EventSource interface {
	// OracleUpdates streams price-feed ticks until ctx is cancelled.
	OracleUpdates(ctx context.Context) (<-chan OracleUpdate, error)
	// PoolEvents streams lending-protocol state changes until ctx is
	// cancelled.
	PoolEvents(ctx context.Context) (<-chan PoolEvent, error)
	// NewHeads streams block numbers as they land until ctx is cancelled.
	NewHeads(ctx context.Context) (<-chan uint64, error)
}

// CandidateUser is one entry from a position-discovery bootstrap page.
type CandidateUser struct {
	User common.Address
	HF   float64
}

// PositionDiscovery is an optional HTTP source of candidate users below a
// maximum health factor, used only to seed the initial bootstrap; its
// absence is not an error, the scanner falls back to pool-event-only
// discovery.
type PositionDiscovery interface {
	// CandidatesBelowHF returns one page of users at or below maxHF.
	CandidatesBelowHF(ctx context.Context, maxHF float64, page int, pageSize int) ([]CandidateUser, bool, error)
}

// Signer submits signed transactions and manages its own nonce.
type Signer interface {
	// Send signs and submits a transaction, returning its hash.
	Send(ctx context.Context, to common.Address, calldata []byte, value *uint256.Int) (common.Hash, error)
	// SyncNonce re-reads the nonce from chain, used after a revert to
	// recover from drift.
	SyncNonce(ctx context.Context) error
	// Address returns the signer's own address.
	Address() common.Address
}

// LiquidatorContract is the minimal surface the liquidator package needs
// from the on-chain liquidator contract: submit a liquidation, or a
// pre-encoded one, then sweep proceeds to the profit receiver.
type LiquidatorContract interface {
	// Liquidate submits a from-scratch liquidation call.
	Liquidate(ctx context.Context, user, collateralAsset, debtAsset common.Address, debtToCover *uint256.Int, swapCalldata []byte, minAmountOut *uint256.Int) (common.Hash, error)
	// ExecutePreencoded submits a fully pre-built liquidation calldata blob.
	ExecutePreencoded(ctx context.Context, calldata []byte) (common.Hash, error)
	// RescueTokens sweeps token's balance on the liquidator contract to
	// recipient.
	RescueTokens(ctx context.Context, token, recipient common.Address) (common.Hash, error)
}
