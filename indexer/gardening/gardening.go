// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package gardening indexes gardening quest rewards. A RewardMinted on
// the reward contract is attributed to a quest type by looking at the
// quest events in the same transaction, with an on-chain view call as
// the fallback.
package gardening

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

var logger = log.WithContext("pkg", "gardening")

// MaxQuestType is the highest quest-type id counted as gardening.
// Rewards resolving outside [0, MaxQuestType] are dropped.
const MaxQuestType = 14

const QuestEventsABI = `[
	{"name":"RewardMinted","type":"event","inputs":[
		{"name":"questId","type":"uint256","indexed":true},
		{"name":"player","type":"address","indexed":true},
		{"name":"item","type":"address"},
		{"name":"amount","type":"uint256"}]},
	{"name":"QuestCompleted","type":"event","inputs":[
		{"name":"questId","type":"uint256","indexed":true},
		{"name":"player","type":"address","indexed":true},
		{"name":"heroId","type":"uint256"},
		{"name":"questType","type":"uint8"}]},
	{"name":"ExpeditionIterationProcessed","type":"event","inputs":[
		{"name":"questId","type":"uint256","indexed":true},
		{"name":"player","type":"address","indexed":true},
		{"name":"questType","type":"uint8"},
		{"name":"iterations","type":"uint256"}]}
]`

// Config wires the quest and reward contracts of one chain.
type Config struct {
	Chain       dfk.ChainID
	QuestCore   common.Address
	QuestReward common.Address
}

// Source decodes reward mints and resolves their quest type from
// same-transaction context.
type Source struct {
	pool   *chainrpc.Pool
	store  *indexdb.DB
	config Config

	contract   *chainrpc.Contract
	reward     common.Hash
	completed  common.Hash
	expedition common.Hash
}

func NewSource(pool *chainrpc.Pool, store *indexdb.DB, config Config) (*Source, error) {
	c := pool.Bind(config.Chain, config.QuestCore, QuestEventsABI)
	s := &Source{pool: pool, store: store, config: config, contract: c}
	var err error
	if s.reward, err = c.EventID("RewardMinted"); err != nil {
		return nil, err
	}
	if s.completed, err = c.EventID("QuestCompleted"); err != nil {
		return nil, err
	}
	if s.expedition, err = c.EventID("ExpeditionIterationProcessed"); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) Family() string     { return "gardening" }
func (s *Source) Chain() dfk.ChainID { return s.config.Chain }

func (s *Source) Addresses() []common.Address {
	return []common.Address{s.config.QuestReward, s.config.QuestCore}
}

func (s *Source) Topics() [][]common.Hash {
	return [][]common.Hash{{s.reward, s.completed, s.expedition}}
}

type questContext struct {
	questType uint8
	source    indexdb.GardeningSource
}

// Process resolves each reward's quest type: QuestCompleted in the same
// tx first, ExpeditionIterationProcessed second, getQuest view last.
// Only quest types within the gardening range are recorded.
func (s *Source) Process(ctx context.Context, logs []types.Log) (progress.Counters, error) {
	counters := progress.Counters{}

	// same-tx quest context, QuestCompleted preferred
	contexts := map[common.Hash]questContext{}
	for _, lg := range logs {
		if len(lg.Topics) == 0 {
			continue
		}
		switch lg.Topics[0] {
		case s.completed:
			qt, err := s.questTypeFrom("QuestCompleted", lg, 1)
			if err != nil {
				return nil, err
			}
			contexts[lg.TxHash] = questContext{questType: qt, source: indexdb.SourceManualQuest}
		case s.expedition:
			if _, ok := contexts[lg.TxHash]; ok {
				continue
			}
			qt, err := s.questTypeFrom("ExpeditionIterationProcessed", lg, 0)
			if err != nil {
				return nil, err
			}
			contexts[lg.TxHash] = questContext{questType: qt, source: indexdb.SourceExpedition}
		}
	}

	var rows []*indexdb.GardeningReward
	for _, lg := range logs {
		if len(lg.Topics) < 3 || lg.Topics[0] != s.reward || lg.Address != s.config.QuestReward {
			continue
		}
		values, err := s.contract.UnpackLogValues("RewardMinted", lg.Data)
		if err != nil {
			return nil, errors.WithMessagef(err, "decode RewardMinted at %s", lg.TxHash)
		}
		item, ok := values[0].(common.Address)
		if !ok {
			return nil, errors.Errorf("RewardMinted item has unexpected type at %s", lg.TxHash)
		}
		amount, ok := values[1].(*big.Int)
		if !ok {
			return nil, errors.Errorf("RewardMinted amount has unexpected type at %s", lg.TxHash)
		}

		qc, ok := contexts[lg.TxHash]
		if !ok {
			questID := lg.Topics[1].Big()
			qt, err := s.pool.GetQuestType(ctx, s.config.Chain, s.config.QuestCore, questID)
			if err != nil {
				logger.Warn("quest type unresolved, skipping reward", "tx", lg.TxHash, "err", err)
				counters["unresolved"]++
				continue
			}
			qc = questContext{questType: qt, source: indexdb.SourceManualQuest}
		}
		if qc.questType > MaxQuestType {
			counters["nonGardening"]++
			continue
		}

		rows = append(rows, &indexdb.GardeningReward{
			TxHash:      lg.TxHash.Hex(),
			LogIndex:    lg.Index,
			Wallet:      common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
			QuestType:   qc.questType,
			Source:      qc.source,
			ItemAddress: item.Hex(),
			Amount:      amount,
			BlockNumber: lg.BlockNumber,
		})
	}

	if len(rows) > 0 {
		n, err := s.store.InsertGardeningRewards(rows)
		if err != nil {
			return nil, err
		}
		counters["rewards"] += uint64(n)
	}
	return counters, nil
}

// questTypeFrom pulls the uint8 quest type at position pos of the
// event's data section.
func (s *Source) questTypeFrom(name string, lg types.Log, pos int) (uint8, error) {
	values, err := s.contract.UnpackLogValues(name, lg.Data)
	if err != nil {
		return 0, errors.WithMessagef(err, "decode %s at %s", name, lg.TxHash)
	}
	if len(values) <= pos {
		return 0, errors.Errorf("%s tuple too short at %s", name, lg.TxHash)
	}
	qt, ok := values[pos].(uint8)
	if !ok {
		return 0, errors.Errorf("%s questType has unexpected type at %s", name, lg.TxHash)
	}
	return qt, nil
}

// Scope names the gardening checkpoint scope on a chain.
func Scope(chain dfk.ChainID) string {
	return "gq-" + chain.String()
}

// PoolSpec builds the gardening fleet spec for a chain.
func PoolSpec(pool *chainrpc.Pool, store *indexdb.DB, chain dfk.ChainID, workers int) (*fleet.PoolSpec, error) {
	addrs, ok := dfk.Registry[chain]
	if !ok || addrs.QuestCore == (common.Address{}) {
		return nil, errors.Errorf("no quest contract registered for chain %s", chain)
	}
	src, err := NewSource(pool, store, Config{
		Chain:       chain,
		QuestCore:   addrs.QuestCore,
		QuestReward: addrs.QuestReward,
	})
	if err != nil {
		return nil, err
	}
	return &fleet.PoolSpec{
		Family:     "gardening",
		Scope:      Scope(chain),
		Chain:      chain,
		Workers:    workers,
		MinWorkers: fleet.MinWorkersDefault,
		BatchSize:  fleet.BatchSizeDefault,
		Source:     src,
	}, nil
}
