// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package pve indexes hunt (DFK) and patrol (Metis) completions with
// their reward mints. Hunts are enriched at the log's block: party luck
// from getHeroV3 and the scavenger bonus from getPetV2 both require an
// archive RPC.
package pve

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

var logger = log.WithContext("pkg", "pve")

// Event tuples are decoded positionally; the field positions below were
// checked against fixture transactions, nominal names in ABI dumps are
// not trusted.
const HuntEventsABI = `[
	{"name":"HuntCompleted","type":"event","inputs":[
		{"name":"player","type":"address","indexed":true},
		{"name":"huntId","type":"uint256"},
		{"name":"activityId","type":"uint256"},
		{"name":"victory","type":"bool"},
		{"name":"heroIds","type":"uint256[]"},
		{"name":"petIds","type":"uint256[]"}]},
	{"name":"HuntRewardMinted","type":"event","inputs":[
		{"name":"player","type":"address","indexed":true},
		{"name":"huntId","type":"uint256"},
		{"name":"item","type":"address"},
		{"name":"amount","type":"uint256"}]},
	{"name":"HuntEquipmentMinted","type":"event","inputs":[
		{"name":"player","type":"address","indexed":true},
		{"name":"huntId","type":"uint256"},
		{"name":"item","type":"address"},
		{"name":"amount","type":"uint256"}]},
	{"name":"HuntPetBonusReceived","type":"event","inputs":[
		{"name":"player","type":"address","indexed":true},
		{"name":"petId","type":"uint256"},
		{"name":"bonus","type":"uint256"}]}
]`

const PatrolEventsABI = `[
	{"name":"PatrolCompleted","type":"event","inputs":[
		{"name":"player","type":"address","indexed":true},
		{"name":"patrolId","type":"uint256"},
		{"name":"activityId","type":"uint256"},
		{"name":"victory","type":"bool"},
		{"name":"heroIds","type":"uint256[]"},
		{"name":"petIds","type":"uint256[]"}]},
	{"name":"PatrolRewardMinted","type":"event","inputs":[
		{"name":"player","type":"address","indexed":true},
		{"name":"patrolId","type":"uint256"},
		{"name":"item","type":"address"},
		{"name":"amount","type":"uint256"}]},
	{"name":"PatrolEquipmentMinted","type":"event","inputs":[
		{"name":"player","type":"address","indexed":true},
		{"name":"patrolId","type":"uint256"},
		{"name":"item","type":"address"},
		{"name":"amount","type":"uint256"}]}
]`

// Config selects the hunt or patrol variant.
type Config struct {
	Chain    dfk.ChainID
	HuntCore common.Address
	HeroCore common.Address
	PetCore  common.Address
	// Enrich turns on per-completion archive reads; off for Metis
	// patrols.
	Enrich bool
}

// Source decodes PvE logs grouped by transaction.
type Source struct {
	pool   *chainrpc.Pool
	store  *indexdb.DB
	config Config

	contract  *chainrpc.Contract
	completed common.Hash
	reward    common.Hash
	equipment common.Hash
	petBonus  common.Hash
}

func NewSource(pool *chainrpc.Pool, store *indexdb.DB, config Config) (*Source, error) {
	abiJSON := PatrolEventsABI
	prefix := "Patrol"
	if config.Chain == dfk.ChainDFK {
		abiJSON = HuntEventsABI
		prefix = "Hunt"
	}
	c := pool.Bind(config.Chain, config.HuntCore, abiJSON)
	s := &Source{pool: pool, store: store, config: config, contract: c}
	var err error
	if s.completed, err = c.EventID(prefix + "Completed"); err != nil {
		return nil, err
	}
	if s.reward, err = c.EventID(prefix + "RewardMinted"); err != nil {
		return nil, err
	}
	if s.equipment, err = c.EventID(prefix + "EquipmentMinted"); err != nil {
		return nil, err
	}
	if config.Chain == dfk.ChainDFK {
		if s.petBonus, err = c.EventID("HuntPetBonusReceived"); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Source) Family() string {
	if s.config.Chain == dfk.ChainDFK {
		return "pve-hunts"
	}
	return "pve-patrols"
}

func (s *Source) Chain() dfk.ChainID { return s.config.Chain }

func (s *Source) Addresses() []common.Address {
	return []common.Address{s.config.HuntCore}
}

func (s *Source) Topics() [][]common.Hash {
	ids := []common.Hash{s.completed, s.reward, s.equipment}
	if s.petBonus != (common.Hash{}) {
		ids = append(ids, s.petBonus)
	}
	return [][]common.Hash{ids}
}

func (s *Source) eventName(topic common.Hash) string {
	prefix := "Patrol"
	if s.config.Chain == dfk.ChainDFK {
		prefix = "Hunt"
	}
	switch topic {
	case s.completed:
		return prefix + "Completed"
	case s.reward:
		return prefix + "RewardMinted"
	case s.equipment:
		return prefix + "EquipmentMinted"
	default:
		return "HuntPetBonusReceived"
	}
}

type completion struct {
	log        types.Log
	activityID uint64
	player     common.Address
	victory    bool
	heroIDs    []uint64
	petIDs     []uint64
}

// Process groups logs by transaction, skips defeats, enriches victories
// and writes completion plus reward rows.
func (s *Source) Process(ctx context.Context, logs []types.Log) (progress.Counters, error) {
	counters := progress.Counters{}
	byTx := map[common.Hash][]types.Log{}
	var order []common.Hash
	for _, lg := range logs {
		if len(lg.Topics) == 0 {
			continue
		}
		if _, ok := byTx[lg.TxHash]; !ok {
			order = append(order, lg.TxHash)
		}
		byTx[lg.TxHash] = append(byTx[lg.TxHash], lg)
	}

	var completions []*indexdb.PvECompletion
	var rewards []*indexdb.PvEReward
	for _, tx := range order {
		group := byTx[tx]
		comp, err := s.findCompletion(group)
		if err != nil {
			return nil, err
		}
		if comp == nil {
			// reward logs without a completion in the same range; the
			// completion's chunk will pick them up on its own pass
			logger.Debug("orphan reward logs, no completion in tx", "tx", tx)
			continue
		}
		if !comp.victory {
			counters["defeats"]++
			continue
		}

		var partyLuck uint64
		var scavengerPct *float64
		if s.config.Enrich {
			partyLuck, scavengerPct, err = s.enrich(ctx, comp)
			if err != nil {
				return nil, err
			}
		}

		completions = append(completions, &indexdb.PvECompletion{
			TxHash:            tx.Hex(),
			ChainID:           s.config.Chain,
			ActivityID:        comp.activityID,
			Player:            comp.player.Hex(),
			HeroIDs:           comp.heroIDs,
			PetIDs:            comp.petIDs,
			PartyLuck:         partyLuck,
			ScavengerBonusPct: scavengerPct,
			BlockNumber:       comp.log.BlockNumber,
		})
		for _, lg := range group {
			if lg.Topics[0] != s.reward && lg.Topics[0] != s.equipment {
				continue
			}
			row, err := s.decodeReward(lg, comp, partyLuck, scavengerPct)
			if err != nil {
				return nil, err
			}
			rewards = append(rewards, row)
		}
	}

	if len(completions) > 0 {
		s.registerActivities(completions)
		n, err := s.store.InsertPvECompletions(completions)
		if err != nil {
			return nil, err
		}
		counters["completions"] += uint64(n)
	}
	if len(rewards) > 0 {
		n, err := s.store.InsertPvERewards(rewards)
		if err != nil {
			return nil, err
		}
		counters["rewards"] += uint64(n)
	}
	return counters, nil
}

// registerActivities keeps the activity registry in step with the ids
// seen on chain. A failure only costs display metadata.
func (s *Source) registerActivities(completions []*indexdb.PvECompletion) {
	seen := map[uint64]bool{}
	for _, c := range completions {
		if seen[c.ActivityID] {
			continue
		}
		seen[c.ActivityID] = true
		if err := s.store.UpsertPvEActivity(s.config.Chain, s.activityType(), c.ActivityID, ""); err != nil {
			logger.Debug("activity registration failed", "activity", c.ActivityID, "err", err)
		}
	}
}

func (s *Source) activityType() string {
	if s.config.Chain == dfk.ChainDFK {
		return "hunt"
	}
	return "patrol"
}

func (s *Source) findCompletion(group []types.Log) (*completion, error) {
	for _, lg := range group {
		if lg.Topics[0] != s.completed {
			continue
		}
		values, err := s.contract.UnpackLogValues(s.eventName(s.completed), lg.Data)
		if err != nil {
			return nil, errors.WithMessagef(err, "decode completion at %s", lg.TxHash)
		}
		if len(values) < 5 {
			return nil, errors.Errorf("completion tuple too short at %s", lg.TxHash)
		}
		if len(lg.Topics) < 2 {
			return nil, errors.Errorf("completion missing player topic at %s", lg.TxHash)
		}
		activityID, ok := values[1].(*big.Int)
		if !ok {
			return nil, errors.Errorf("completion activityId has unexpected type at %s", lg.TxHash)
		}
		victory, ok := values[2].(bool)
		if !ok {
			return nil, errors.Errorf("completion victory flag has unexpected type at %s", lg.TxHash)
		}
		heroIDs, err := toUint64s(values[3])
		if err != nil {
			return nil, errors.WithMessagef(err, "completion heroIds at %s", lg.TxHash)
		}
		petIDs, err := toUint64s(values[4])
		if err != nil {
			return nil, errors.WithMessagef(err, "completion petIds at %s", lg.TxHash)
		}
		return &completion{
			log:        lg,
			activityID: activityID.Uint64(),
			player:     common.BytesToAddress(lg.Topics[1].Bytes()),
			victory:    victory,
			heroIDs:    heroIDs,
			petIDs:     petIDs,
		}, nil
	}
	return nil, nil
}

func toUint64s(v any) ([]uint64, error) {
	ints, ok := v.([]*big.Int)
	if !ok {
		return nil, errors.New("not a uint256 array")
	}
	out := make([]uint64, len(ints))
	for i, n := range ints {
		out[i] = n.Uint64()
	}
	return out, nil
}

// enrich reads hero luck and pet bonuses at the completion's block.
// Pinning the block matters: a hero levelled after the hunt must not
// leak its new luck into old completions.
func (s *Source) enrich(ctx context.Context, comp *completion) (uint64, *float64, error) {
	block := new(big.Int).SetUint64(comp.log.BlockNumber)
	var partyLuck uint64
	for _, heroID := range comp.heroIDs {
		snap, err := s.pool.GetHeroV3(ctx, s.config.Chain, s.config.HeroCore, heroID, block)
		if err != nil {
			return 0, nil, errors.WithMessagef(err, "getHeroV3 %d", heroID)
		}
		partyLuck += uint64(snap.Stats.Luck)
	}
	var best float64
	found := false
	for _, petID := range comp.petIDs {
		snap, err := s.pool.GetPetV2(ctx, s.config.Chain, s.config.PetCore, petID, block)
		if err != nil {
			return 0, nil, errors.WithMessagef(err, "getPetV2 %d", petID)
		}
		if pct := snap.ScavengerPct(); pct > 0 {
			found = true
			if pct > best {
				best = pct
			}
		}
	}
	if !found {
		return partyLuck, nil, nil
	}
	return partyLuck, &best, nil
}

func (s *Source) decodeReward(lg types.Log, comp *completion, partyLuck uint64, scavengerPct *float64) (*indexdb.PvEReward, error) {
	name := s.eventName(lg.Topics[0])
	values, err := s.contract.UnpackLogValues(name, lg.Data)
	if err != nil {
		return nil, errors.WithMessagef(err, "decode %s at %s", name, lg.TxHash)
	}
	if len(values) < 3 {
		return nil, errors.Errorf("%s tuple too short at %s", name, lg.TxHash)
	}
	item, ok := values[1].(common.Address)
	if !ok {
		return nil, errors.Errorf("%s item has unexpected type at %s", name, lg.TxHash)
	}
	amount, ok := values[2].(*big.Int)
	if !ok {
		return nil, errors.Errorf("%s amount has unexpected type at %s", name, lg.TxHash)
	}
	return &indexdb.PvEReward{
		TxHash:            lg.TxHash.Hex(),
		LogIndex:          lg.Index,
		ChainID:           s.config.Chain,
		ActivityID:        comp.activityID,
		ItemAddress:       item.Hex(),
		Amount:            amount,
		Equipment:         lg.Topics[0] == s.equipment,
		PartyLuck:         partyLuck,
		ScavengerBonusPct: scavengerPct,
		BlockNumber:       lg.BlockNumber,
	}, nil
}

// Scope names the PvE checkpoint scope on a chain.
func Scope(chain dfk.ChainID) string {
	return "pve-" + chain.String()
}

// PoolSpec builds the single PvE fleet spec for a chain.
func PoolSpec(pool *chainrpc.Pool, store *indexdb.DB, chain dfk.ChainID, workers int) (*fleet.PoolSpec, error) {
	addrs, ok := dfk.Registry[chain]
	if !ok || addrs.HuntCore == (common.Address{}) {
		return nil, errors.Errorf("no PvE contract registered for chain %s", chain)
	}
	src, err := NewSource(pool, store, Config{
		Chain:    chain,
		HuntCore: addrs.HuntCore,
		HeroCore: addrs.HeroCore,
		PetCore:  addrs.PetCore,
		Enrich:   chain == dfk.ChainDFK,
	})
	if err != nil {
		return nil, err
	}
	return &fleet.PoolSpec{
		Family:     "pve",
		Scope:      Scope(chain),
		Chain:      chain,
		Workers:    workers,
		MinWorkers: fleet.MinWorkersPvE,
		BatchSize:  fleet.BatchSizePvE,
		Source:     src,
	}, nil
}
