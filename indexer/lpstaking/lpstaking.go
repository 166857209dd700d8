// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package lpstaking indexes the MasterGardener LP staking contract: live
// staker positions per pool, raw pair swaps and harvest events. The
// Harmony variant runs the same decoder without swap and harvest tables.
package lpstaking

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"time"

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

var logger = log.WithContext("pkg", "lpstaking")

// GardenerEventsABI covers the staking events plus the pair Swap; all
// decoded positionally from topics and data.
const GardenerEventsABI = `[
	{"name":"Deposit","type":"event","inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"pid","type":"uint256","indexed":true},
		{"name":"amount","type":"uint256"}]},
	{"name":"Withdraw","type":"event","inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"pid","type":"uint256","indexed":true},
		{"name":"amount","type":"uint256"}]},
	{"name":"EmergencyWithdraw","type":"event","inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"pid","type":"uint256","indexed":true},
		{"name":"amount","type":"uint256"}]},
	{"name":"Harvest","type":"event","inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"pid","type":"uint256","indexed":true},
		{"name":"amount","type":"uint256"}]},
	{"name":"Swap","type":"event","inputs":[
		{"name":"sender","type":"address","indexed":true},
		{"name":"amount0In","type":"uint256"},
		{"name":"amount1In","type":"uint256"},
		{"name":"amount0Out","type":"uint256"},
		{"name":"amount1Out","type":"uint256"},
		{"name":"to","type":"address","indexed":true}]}
]`

// Config selects one pool on one chain.
type Config struct {
	Chain    dfk.ChainID
	Pid      uint64
	Gardener common.Address
	LPToken  common.Address // pair address; zero disables swap capture
	Profiles common.Address // zero disables summoner-name lookups
	// WithSwapsAndHarvest is false on Harmony, which keeps only the
	// staker table.
	WithSwapsAndHarvest bool
}

// Source decodes staking logs for a single pool and maintains the
// staker table with live on-chain balances.
type Source struct {
	pool   *chainrpc.Pool
	store  *indexdb.DB
	config Config

	contract *chainrpc.Contract
	topics   map[common.Hash]string
}

func NewSource(pool *chainrpc.Pool, store *indexdb.DB, config Config) (*Source, error) {
	c := pool.Bind(config.Chain, config.Gardener, GardenerEventsABI)
	names := []string{"Deposit", "Withdraw", "EmergencyWithdraw"}
	if config.WithSwapsAndHarvest {
		names = append(names, "Harvest")
		if config.LPToken != (common.Address{}) {
			names = append(names, "Swap")
		}
	}
	topics := make(map[common.Hash]string, len(names))
	for _, name := range names {
		id, err := c.EventID(name)
		if err != nil {
			return nil, err
		}
		topics[id] = name
	}
	return &Source{pool: pool, store: store, config: config, contract: c, topics: topics}, nil
}

func (s *Source) Family() string     { return "lpstaking" }
func (s *Source) Chain() dfk.ChainID { return s.config.Chain }

func (s *Source) Addresses() []common.Address {
	addrs := []common.Address{s.config.Gardener}
	if s.config.WithSwapsAndHarvest && s.config.LPToken != (common.Address{}) {
		addrs = append(addrs, s.config.LPToken)
	}
	return addrs
}

func (s *Source) Topics() [][]common.Hash {
	ids := make([]common.Hash, 0, len(s.topics))
	for id := range s.topics {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Hex() < ids[j].Hex()
	})
	return [][]common.Hash{ids}
}

type lastAction struct {
	kind     indexdb.ActivityType
	amount   *big.Int
	block    uint64
	logIndex uint
	txHash   string
}

// Process applies one chunk of logs: keeps the last staking action per
// wallet, re-reads each touched wallet's live balance, and appends raw
// swap and harvest rows.
func (s *Source) Process(ctx context.Context, logs []types.Log) (progress.Counters, error) {
	counters := progress.Counters{}
	touched := map[common.Address]lastAction{}
	var swaps []*indexdb.SwapEvent
	var rewards []*indexdb.RewardEvent

	for _, lg := range logs {
		if len(lg.Topics) == 0 {
			continue
		}
		name, ok := s.topics[lg.Topics[0]]
		if !ok {
			continue
		}
		switch name {
		case "Deposit", "Withdraw", "EmergencyWithdraw", "Harvest":
			if lg.Address != s.config.Gardener || len(lg.Topics) < 3 {
				continue
			}
			pid := lg.Topics[2].Big().Uint64()
			if pid != s.config.Pid {
				continue
			}
			wallet := common.BytesToAddress(lg.Topics[1].Bytes())
			values, err := s.contract.UnpackLogValues(name, lg.Data)
			if err != nil {
				return nil, errors.WithMessagef(err, "decode %s at %s", name, lg.TxHash)
			}
			amount, ok := values[0].(*big.Int)
			if !ok {
				return nil, errors.Errorf("%s amount has unexpected type at %s", name, lg.TxHash)
			}
			if name == "Harvest" {
				rewards = append(rewards, &indexdb.RewardEvent{
					TxHash:      lg.TxHash.Hex(),
					LogIndex:    lg.Index,
					Pid:         pid,
					Wallet:      wallet.Hex(),
					Amount:      amount,
					BlockNumber: lg.BlockNumber,
				})
				continue
			}
			prev, seen := touched[wallet]
			if !seen || lg.BlockNumber > prev.block ||
				(lg.BlockNumber == prev.block && lg.Index > prev.logIndex) {
				touched[wallet] = lastAction{
					kind:     indexdb.ActivityType(name),
					amount:   amount,
					block:    lg.BlockNumber,
					logIndex: lg.Index,
					txHash:   lg.TxHash.Hex(),
				}
			}
			counters[actionCounter(name)]++
		case "Swap":
			if lg.Address != s.config.LPToken || len(lg.Topics) < 3 {
				continue
			}
			row, err := s.decodeSwap(lg)
			if err != nil {
				return nil, err
			}
			swaps = append(swaps, row)
		}
	}

	for _, wallet := range sortedWallets(touched) {
		action := touched[wallet]
		if err := s.refreshStaker(ctx, wallet, action); err != nil {
			return nil, err
		}
		counters["stakers"]++
	}

	if len(swaps) > 0 {
		n, err := s.store.InsertSwapEvents(swaps)
		if err != nil {
			return nil, err
		}
		counters["swap"] += uint64(n)
	}
	if len(rewards) > 0 {
		n, err := s.store.InsertRewardEvents(rewards)
		if err != nil {
			return nil, err
		}
		counters["harvest"] += uint64(n)
	}
	return counters, nil
}

func actionCounter(name string) string {
	switch name {
	case "Deposit":
		return "deposit"
	case "Withdraw":
		return "withdraw"
	default:
		return "emergencyWithdraw"
	}
}

func sortedWallets(touched map[common.Address]lastAction) []common.Address {
	out := make([]common.Address, 0, len(touched))
	for w := range touched {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

// refreshStaker re-reads userInfo.amount on chain. The live balance is
// authoritative; amounts from events are recorded only as last activity.
func (s *Source) refreshStaker(ctx context.Context, wallet common.Address, action lastAction) error {
	info, err := s.pool.GetUserInfo(ctx, s.config.Chain, s.config.Gardener, s.config.Pid, wallet)
	if err != nil {
		return errors.WithMessagef(err, "userInfo %s pid %d", wallet, s.config.Pid)
	}
	name := ""
	if s.config.Profiles != (common.Address{}) {
		name, err = s.pool.GetProfileName(ctx, s.config.Chain, s.config.Profiles, wallet)
		if err != nil {
			logger.Debug("profile lookup failed", "wallet", wallet, "err", err)
		}
	}
	return s.store.UpsertStaker(&indexdb.Staker{
		Pid:          s.config.Pid,
		Wallet:       wallet.Hex(),
		StakedLP:     info.Amount,
		SummonerName: name,
		LastActivity: indexdb.StakerActivity{
			Type:        action.kind,
			Amount:      action.amount,
			BlockNumber: action.block,
			TxHash:      action.txHash,
		},
	})
}

func (s *Source) decodeSwap(lg types.Log) (*indexdb.SwapEvent, error) {
	values, err := s.contract.UnpackLogValues("Swap", lg.Data)
	if err != nil {
		return nil, errors.WithMessagef(err, "decode Swap at %s", lg.TxHash)
	}
	if len(values) < 4 {
		return nil, errors.Errorf("Swap data too short at %s", lg.TxHash)
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

// PoolScope names the checkpoint scope of one staking pool.
func PoolScope(chain dfk.ChainID, pid uint64) string {
	return fmt.Sprintf("lp-%s-pool%d", chain, pid)
}

// WorkersPerPool is the default fleet width per staking pool.
const WorkersPerPool = 5

// PoolSpecs builds the fleet specs for every pool on a chain; the
// LP token of each pool is resolved once via poolInfo. Used by "start
// all".
func PoolSpecs(ctx context.Context, pool *chainrpc.Pool, store *indexdb.DB,
	chain dfk.ChainID, interval time.Duration) ([]fleet.PoolSpec, error) {
	addrs, ok := dfk.Registry[chain]
	if !ok || addrs.MasterGardener == (common.Address{}) {
		return nil, errors.Errorf("no gardener contract registered for chain %s", chain)
	}
	var rangeStart uint64
	withExtras := chain != dfk.ChainHarmony
	if chain == dfk.ChainHarmony {
		rangeStart = dfk.HarmonyGenesisBlock
	}

	specs := make([]fleet.PoolSpec, 0, dfk.PoolCount)
	for pid := uint64(0); pid < dfk.PoolCount; pid++ {
		lpToken, err := pool.GetPoolLPToken(ctx, chain, addrs.MasterGardener, pid)
		if err != nil {
			return nil, errors.WithMessagef(err, "resolve lp token for pool %d", pid)
		}
		src, err := NewSource(pool, store, Config{
			Chain:               chain,
			Pid:                 pid,
			Gardener:            addrs.MasterGardener,
			LPToken:             lpToken,
			Profiles:            addrs.Profiles,
			WithSwapsAndHarvest: withExtras,
		})
		if err != nil {
			return nil, err
		}
		ps := fleet.PoolSpec{
			Family:     "lpstaking",
			Scope:      PoolScope(chain, pid),
			Chain:      chain,
			Workers:    WorkersPerPool,
			MinWorkers: fleet.MinWorkersDefault,
			BatchSize:  fleet.BatchSizeDefault,
			Interval:   interval,
			RangeStart: rangeStart,
			Source:     src,
		}
		if lpToken != (common.Address{}) {
			ps.LPToken = lpToken.Hex()
		}
		specs = append(specs, ps)
	}
	return specs, nil
}
