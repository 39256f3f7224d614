// Package swaprouter maps chain IDs to an ordered list of swap routers and
// caches routes on a logarithmic amount bucket so similarly-sized requests
// share an entry.
package swaprouter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"sentinel/pkg/fixedpoint"
)

// SwapParams describes a requested swap for route lookup.
type SwapParams struct {
	TokenIn       common.Address
	TokenOut      common.Address
	AmountIn      *uint256.Int
	DecimalsIn    uint8
	MultiHop      bool
	SlippageBps   uint16
	Recipient     *common.Address
}

// SwapRoute is a resolved swap path, ready for calldata encoding.
type SwapRoute struct {
	RouterID     string
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *uint256.Int
	AmountOut    *uint256.Int
	Path         []common.Address
	PoolFees     []uint32
	MinAmountOut *uint256.Int
}

// IsZero reports whether this is the default, unset route.
func (r SwapRoute) IsZero() bool {
	return r.RouterID == "" && r.AmountOut == nil
}

// Router is one swap backend (a DEX aggregator, a single AMM, etc).
type Router interface {
	// ID is a stable identifier for this router, used as a cache-key
	// component and in logs.
	ID() string
	// SupportedChains lists the chain IDs this router can quote on.
	SupportedChains() []uint64
	// GetRoute resolves a fresh route for params, making any network calls
	// the router needs.
	GetRoute(ctx context.Context, params SwapParams) (SwapRoute, error)
	// EncodeRoute ABI-encodes route into calldata for the configured swap
	// adapter contract.
	EncodeRoute(route SwapRoute) ([]byte, error)
	// CreateDirectRoute builds a 1:1 fallback route with 0.5% slippage,
	// used when no real route can be found.
	CreateDirectRoute(tokenIn, tokenOut common.Address, amountIn *uint256.Int) SwapRoute
}

// cacheKey identifies a cached route by token pair and logarithmic amount
// bucket.
type cacheKey struct {
	tokenIn  common.Address
	tokenOut common.Address
	bucket   int
}

type cacheEntry struct {
	route     SwapRoute
	expiresAt time.Time
}

// bucketsPerDecade controls the logarithmic amount-bucketing resolution:
// 100 buckets per decade means a ~2.3% amount change can still hit cache.
const bucketsPerDecade = 100

// DefaultCacheTTL is how long a cached route is considered fresh.
const DefaultCacheTTL = 5 * time.Second

// amountBucket maps an amount to a logarithmic bucket index so similarly
// sized requests share a cache entry.
func amountBucket(amount *uint256.Int) int {
	f := fixedpoint.ToFloat(amount)
	if f <= 0 {
		return 0
	}
	return int(math.Floor(math.Log10(f) * bucketsPerDecade))
}

// Registry maps chain ID to an ordered list of routers, with a shared
// cross-router route cache.
type Registry struct {
	mu      sync.RWMutex
	routers map[uint64][]Router
	cache   map[cacheKey]cacheEntry
	ttl     time.Duration
}

// NewRegistry returns an empty swap router registry.
func NewRegistry() *Registry {
	return &Registry{
		routers: make(map[uint64][]Router),
		cache:   make(map[cacheKey]cacheEntry),
		ttl:     DefaultCacheTTL,
	}
}

// Register adds router to every chain ID it declares support for.
func (r *Registry) Register(router Router) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, chainID := range router.SupportedChains() {
		r.routers[chainID] = append(r.routers[chainID], router)
	}
}

// GetRouteCached returns a cached route for params if one is fresh,
// otherwise resolves and caches a new one from the first router on chainID
// that succeeds.
func (r *Registry) GetRouteCached(ctx context.Context, chainID uint64, params SwapParams) (SwapRoute, error) {
	key := cacheKey{tokenIn: params.TokenIn, tokenOut: params.TokenOut, bucket: amountBucket(params.AmountIn)}

	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.route, nil
	}

	route, err := r.GetRouteWithFallback(ctx, chainID, params)
	if err != nil {
		return SwapRoute{}, err
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{route: route, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return route, nil
}

// GetRouteWithFallback tries each router registered for chainID in order,
// logging and continuing past individual failures.
func (r *Registry) GetRouteWithFallback(ctx context.Context, chainID uint64, params SwapParams) (SwapRoute, error) {
	r.mu.RLock()
	routers := append([]Router(nil), r.routers[chainID]...)
	r.mu.RUnlock()

	if len(routers) == 0 {
		return SwapRoute{}, fmt.Errorf("swaprouter: no routers for chain %d", chainID)
	}

	var lastErr error
	for _, router := range routers {
		route, err := router.GetRoute(ctx, params)
		if err != nil {
			lastErr = fmt.Errorf("swaprouter: %s: %w", router.ID(), err)
			continue
		}
		return route, nil
	}

	if lastErr == nil {
		lastErr = errors.New("swaprouter: no routers")
	}
	return SwapRoute{}, lastErr
}

// InvalidateBucket drops any cached route for the given pair's bucket,
// primarily used in tests; production cleanup relies on TTL expiry.
func (r *Registry) InvalidateBucket(tokenIn, tokenOut common.Address, amount *uint256.Int) {
	key := cacheKey{tokenIn: tokenIn, tokenOut: tokenOut, bucket: amountBucket(amount)}
	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
}

// SweepExpired removes every cache entry past its TTL and returns the count
// removed.
func (r *Registry) SweepExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	removed := 0
	for k, v := range r.cache {
		if now.After(v.expiresAt) {
			delete(r.cache, k)
			removed++
		}
	}
	return removed
}
