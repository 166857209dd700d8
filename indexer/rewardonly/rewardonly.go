// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package rewardonly indexes harvest mints across every staking pool in
// one fleet. It skips the staker-table maintenance of the full LP
// family, so reward history backfills at plain getLogs speed.
package rewardonly

import (
	"context"
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

var logger = log.WithContext("pkg", "rewardonly")

// HarvestEventABI covers only the gardener's Harvest mint.
const HarvestEventABI = `[
	{"name":"Harvest","type":"event","inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"pid","type":"uint256","indexed":true},
		{"name":"amount","type":"uint256"}]}
]`

// Config selects the gardener contract of one chain. All pool ids are
// captured; there is no per-pool fleet.
type Config struct {
	Chain    dfk.ChainID
	Gardener common.Address
}

// Source appends every Harvest to the reward_events table.
type Source struct {
	store  *indexdb.DB
	config Config

	contract  *chainrpc.Contract
	harvestID common.Hash
}

func NewSource(pool *chainrpc.Pool, store *indexdb.DB, config Config) (*Source, error) {
	c := pool.Bind(config.Chain, config.Gardener, HarvestEventABI)
	harvestID, err := c.EventID("Harvest")
	if err != nil {
		return nil, err
	}
	return &Source{store: store, config: config, contract: c, harvestID: harvestID}, nil
}

func (s *Source) Family() string     { return "rewardonly" }
func (s *Source) Chain() dfk.ChainID { return s.config.Chain }

func (s *Source) Addresses() []common.Address {
	return []common.Address{s.config.Gardener}
}

func (s *Source) Topics() [][]common.Hash {
	return [][]common.Hash{{s.harvestID}}
}

// Process appends harvest rows for every pool id; duplicates are skipped
// by (txHash, logIndex).
func (s *Source) Process(_ context.Context, logs []types.Log) (progress.Counters, error) {
	counters := progress.Counters{}
	var rows []*indexdb.RewardEvent
	for _, lg := range logs {
		if len(lg.Topics) < 3 || lg.Topics[0] != s.harvestID || lg.Address != s.config.Gardener {
			continue
		}
		values, err := s.contract.UnpackLogValues("Harvest", lg.Data)
		if err != nil {
			logger.Warn("skipping undecodable harvest", "tx", lg.TxHash, "err", err)
			counters["decodeErrors"]++
			continue
		}
		amount, ok := values[0].(*big.Int)
		if !ok {
			logger.Warn("harvest amount has unexpected type", "tx", lg.TxHash)
			counters["decodeErrors"]++
			continue
		}
		rows = append(rows, &indexdb.RewardEvent{
			TxHash:      lg.TxHash.Hex(),
			LogIndex:    lg.Index,
			Pid:         lg.Topics[2].Big().Uint64(),
			Wallet:      common.BytesToAddress(lg.Topics[1].Bytes()).Hex(),
			Amount:      amount,
			BlockNumber: lg.BlockNumber,
		})
	}
	if len(rows) > 0 {
		n, err := s.store.InsertRewardEvents(rows)
		if err != nil {
			return nil, err
		}
		counters["harvest"] += uint64(n)
	}
	return counters, nil
}

// Scope names the reward-only checkpoint scope on a chain.
func Scope(chain dfk.ChainID) string {
	return "rewards-" + chain.String()
}

// Workers is the default fleet width.
const Workers = 5

// PoolSpec builds the single reward-only fleet spec for a chain.
func PoolSpec(pool *chainrpc.Pool, store *indexdb.DB, chain dfk.ChainID, workers int) (*fleet.PoolSpec, error) {
	addrs, ok := dfk.Registry[chain]
	if !ok || addrs.MasterGardener == (common.Address{}) {
		return nil, errors.Errorf("no gardener contract registered for chain %s", chain)
	}
	src, err := NewSource(pool, store, Config{Chain: chain, Gardener: addrs.MasterGardener})
	if err != nil {
		return nil, err
	}
	return &fleet.PoolSpec{
		Family:     "rewardonly",
		Scope:      Scope(chain),
		Chain:      chain,
		Workers:    workers,
		MinWorkers: fleet.MinWorkersDefault,
		BatchSize:  fleet.BatchSizeDefault,
		Source:     src,
	}, nil
}
