// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package swaponly indexes raw pair swaps and nothing else. One fleet
// covers every pool's pair contract, so swap history can be rebuilt
// without the per-wallet balance reads the full LP family pays for.
package swaponly

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/dfklabs/indexd/chainrpc"
	"github.com/dfklabs/indexd/dfk"
	"github.com/dfklabs/indexd/fleet"
	"github.com/dfklabs/indexd/indexdb"
	"github.com/dfklabs/indexd/log"
	"github.com/dfklabs/indexd/progress"
)

var logger = log.WithContext("pkg", "swaponly")

// PairEventsABI is the UniswapV2-style Swap event every DFK pair emits.
const PairEventsABI = `[
	{"name":"Swap","type":"event","inputs":[
		{"name":"sender","type":"address","indexed":true},
		{"name":"amount0In","type":"uint256"},
		{"name":"amount1In","type":"uint256"},
		{"name":"amount0Out","type":"uint256"},
		{"name":"amount1Out","type":"uint256"},
		{"name":"to","type":"address","indexed":true}]}
]`

// Config lists the pair contracts to watch on one chain.
type Config struct {
	Chain dfk.ChainID
	Pairs []common.Address
}

// Source appends every matched Swap to the swap_events table.
type Source struct {
	store  *indexdb.DB
	config Config

	contract *chainrpc.Contract
	swapID   common.Hash
	pairs    map[common.Address]bool
}

func NewSource(pool *chainrpc.Pool, store *indexdb.DB, config Config) (*Source, error) {
	if len(config.Pairs) == 0 {
		return nil, errors.New("no pair contracts to index")
	}
	c := pool.Bind(config.Chain, config.Pairs[0], PairEventsABI)
	swapID, err := c.EventID("Swap")
	if err != nil {
		return nil, err
	}
	pairs := make(map[common.Address]bool, len(config.Pairs))
	for _, p := range config.Pairs {
		pairs[p] = true
	}
	return &Source{store: store, config: config, contract: c, swapID: swapID, pairs: pairs}, nil
}

func (s *Source) Family() string     { return "swaponly" }
func (s *Source) Chain() dfk.ChainID { return s.config.Chain }

func (s *Source) Addresses() []common.Address { return s.config.Pairs }

func (s *Source) Topics() [][]common.Hash {
	return [][]common.Hash{{s.swapID}}
}

// Process appends swap rows; duplicates are skipped by (txHash, logIndex).
func (s *Source) Process(_ context.Context, logs []types.Log) (progress.Counters, error) {
	counters := progress.Counters{}
	var rows []*indexdb.SwapEvent
	for _, lg := range logs {
		if len(lg.Topics) < 3 || lg.Topics[0] != s.swapID || !s.pairs[lg.Address] {
			continue
		}
		row, err := s.decodeSwap(lg)
		if err != nil {
			// one undecodable log must not poison the chunk
			logger.Warn("skipping undecodable swap", "tx", lg.TxHash, "err", err)
			counters["decodeErrors"]++
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) > 0 {
		n, err := s.store.InsertSwapEvents(rows)
		if err != nil {
			return nil, err
		}
		counters["swap"] += uint64(n)
	}
	return counters, nil
}

func (s *Source) decodeSwap(lg types.Log) (*indexdb.SwapEvent, error) {
	values, err := s.contract.UnpackLogValues("Swap", lg.Data)
	if err != nil {
		return nil, err
	}
	if len(values) < 4 {
		return nil, errors.New("swap data too short")
	}
	payload, err := json.Marshal(map[string]string{
		"amount0In":  values[0].(*big.Int).String(),
		"amount1In":  values[1].(*big.Int).String(),
		"amount0Out": values[2].(*big.Int).String(),
		"amount1Out": values[3].(*big.Int).String(),
		"to":         common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
	})
	if err != nil {
		return nil, err
	}
	return &indexdb.SwapEvent{
		TxHash:      lg.TxHash.Hex(),
		LogIndex:    lg.Index,
		Pair:        lg.Address.Hex(),
		Sender:      common.BytesToAddress(lg.Topics[1].Bytes()).Hex(),
		Payload:     payload,
		BlockNumber: lg.BlockNumber,
	}, nil
}

// Scope names the swap-only checkpoint scope on a chain.
func Scope(chain dfk.ChainID) string {
	return "swaps-" + chain.String()
}

// Workers is the default fleet width.
const Workers = 5

// PoolSpec builds the single swap-only fleet spec for a chain. Pair
// addresses are resolved once from the gardener's pool table; pools
// without an LP token are skipped.
func PoolSpec(ctx context.Context, pool *chainrpc.Pool, store *indexdb.DB, chain dfk.ChainID, workers int) (*fleet.PoolSpec, error) {
	addrs, ok := dfk.Registry[chain]
	if !ok || addrs.MasterGardener == (common.Address{}) {
		return nil, errors.Errorf("no gardener contract registered for chain %s", chain)
	}
	var pairs []common.Address
	for pid := uint64(0); pid < dfk.PoolCount; pid++ {
		lpToken, err := pool.GetPoolLPToken(ctx, chain, addrs.MasterGardener, pid)
		if err != nil {
			return nil, errors.WithMessagef(err, "resolve lp token for pool %d", pid)
		}
		if lpToken == (common.Address{}) {
			logger.Debug("pool has no lp token, skipping pair", "pid", pid)
			continue
		}
		pairs = append(pairs, lpToken)
	}
	src, err := NewSource(pool, store, Config{Chain: chain, Pairs: pairs})
	if err != nil {
		return nil, err
	}
	return &fleet.PoolSpec{
		Family:     "swaponly",
		Scope:      Scope(chain),
		Chain:      chain,
		Workers:    workers,
		MinWorkers: fleet.MinWorkersDefault,
		BatchSize:  fleet.BatchSizeDefault,
		Source:     src,
	}, nil
}
