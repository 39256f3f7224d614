package contractclient

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"sentinel/internal/adapter"
)

// LogDecoder turns one raw chain log into a decoded OracleUpdate or
// PoolEvent; the concrete log layout (event signature, topic/data
// positions) is protocol-specific and lives outside this package, matching
// spec.md §1's "ABI of specific lending/swap contracts" non-goal.
type LogDecoder interface {
	DecodeOracleUpdate(log types.Log) (adapter.OracleUpdate, bool, error)
	DecodePoolEvent(log types.Log) (adapter.PoolEvent, bool, error)
}

// LogEventSource implements adapter.EventSource by subscribing to raw chain
// logs and running them through a LogDecoder.
type LogEventSource struct {
	eth           *ethclient.Client
	oracleQuery   ethereum.FilterQuery
	poolQuery     ethereum.FilterQuery
	decoder       LogDecoder
}

// NewLogEventSource returns an EventSource filtering oracleQuery for price
// feed logs and poolQuery for lending-pool logs, decoding both via decoder.
func NewLogEventSource(eth *ethclient.Client, oracleQuery, poolQuery ethereum.FilterQuery, decoder LogDecoder) *LogEventSource {
	return &LogEventSource{eth: eth, oracleQuery: oracleQuery, poolQuery: poolQuery, decoder: decoder}
}

// OracleUpdates streams price-feed ticks until ctx is cancelled.
func (s *LogEventSource) OracleUpdates(ctx context.Context) (<-chan adapter.OracleUpdate, error) {
	rawLogs := make(chan types.Log)
	sub, err := s.eth.SubscribeFilterLogs(ctx, s.oracleQuery, rawLogs)
	if err != nil {
		return nil, fmt.Errorf("contractclient: subscribe oracle logs: %w", err)
	}

	out := make(chan adapter.OracleUpdate)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					return
				}
			case raw, ok := <-rawLogs:
				if !ok {
					return
				}
				update, matched, err := s.decoder.DecodeOracleUpdate(raw)
				if err != nil || !matched {
					continue
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// PoolEvents streams lending-protocol state changes until ctx is cancelled.
func (s *LogEventSource) PoolEvents(ctx context.Context) (<-chan adapter.PoolEvent, error) {
	rawLogs := make(chan types.Log)
	sub, err := s.eth.SubscribeFilterLogs(ctx, s.poolQuery, rawLogs)
	if err != nil {
		return nil, fmt.Errorf("contractclient: subscribe pool logs: %w", err)
	}

	out := make(chan adapter.PoolEvent)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					return
				}
			case raw, ok := <-rawLogs:
				if !ok {
					return
				}
				event, matched, err := s.decoder.DecodePoolEvent(raw)
				if err != nil || !matched {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// NewHeads streams block numbers as they land until ctx is cancelled.
func (s *LogEventSource) NewHeads(ctx context.Context) (<-chan uint64, error) {
	heads := make(chan *types.Header)
	sub, err := s.eth.SubscribeNewHead(ctx, heads)
	if err != nil {
		return nil, fmt.Errorf("contractclient: subscribe new heads: %w", err)
	}

	out := make(chan uint64)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					return
				}
			case head, ok := <-heads:
				if !ok {
					return
				}
				select {
				case out <- head.Number.Uint64():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
