// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package pve

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfklabs/indexd/chainrpc"
	"github.com/dfklabs/indexd/dfk"
	"github.com/dfklabs/indexd/indexdb"
)

var (
	huntCore = common.HexToAddress("0x1111")
	heroCore = common.HexToAddress("0x2222")
	petCore  = common.HexToAddress("0x3333")
	player   = common.HexToAddress("0xaaaa")
	itemAddr = common.HexToAddress("0xcccc")
)

var huntsABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(HuntEventsABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

type heroDef struct {
	luck uint16
}

type petDef struct {
	bonus  uint16
	scalar uint16
}

type enrichClient struct {
	heroes map[uint64]heroDef
	pets   map[uint64]petDef
	// block numbers seen on view calls
	blocks []uint64
}

func (c *enrichClient) BlockNumber(context.Context) (uint64, error) { return 0, nil }

func (c *enrichClient) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (c *enrichClient) CallContract(_ context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if blockNumber != nil {
		c.blocks = append(c.blocks, blockNumber.Uint64())
	}
	id := new(big.Int).SetBytes(msg.Data[len(msg.Data)-32:]).Uint64()
	switch *msg.To {
	case heroCore:
		parsed, _ := abi.JSON(strings.NewReader(chainrpc.HeroCoreABI))
		hero := struct {
			Id    *big.Int
			Stats struct {
				Strength, Agility, Intelligence, Wisdom uint16
				Luck, Vitality, Endurance, Dexterity    uint16
			}
		}{Id: new(big.Int).SetUint64(id)}
		hero.Stats.Luck = c.heroes[id].luck
		return parsed.Methods["getHeroV3"].Outputs.Pack(hero)
	case petCore:
		parsed, _ := abi.JSON(strings.NewReader(chainrpc.PetCoreABI))
		pet := struct {
			Id                *big.Int
			Rarity            uint8
			CombatBonus       uint16
			CombatBonusScalar uint16
		}{Id: new(big.Int).SetUint64(id), CombatBonus: c.pets[id].bonus, CombatBonusScalar: c.pets[id].scalar}
		return parsed.Methods["getPetV2"].Outputs.Pack(pet)
	}
	return nil, nil
}

func completedLog(t *testing.T, tx byte, block uint64, activityID uint64, victory bool,
	heroIDs, petIDs []uint64) types.Log {
	t.Helper()
	data, err := huntsABI.Events["HuntCompleted"].Inputs.NonIndexed().Pack(
		big.NewInt(77), new(big.Int).SetUint64(activityID), victory,
		bigs(heroIDs), bigs(petIDs))
	require.NoError(t, err)
	return types.Log{
		Address:     huntCore,
		Topics:      []common.Hash{huntsABI.Events["HuntCompleted"].ID, common.BytesToHash(player.Bytes())},
		Data:        data,
		BlockNumber: block,
		Index:       0,
		TxHash:      common.BytesToHash([]byte{tx}),
	}
}

func rewardLog(t *testing.T, event string, tx byte, block uint64, index uint, amount int64) types.Log {
	t.Helper()
	data, err := huntsABI.Events[event].Inputs.NonIndexed().Pack(
		big.NewInt(77), itemAddr, big.NewInt(amount))
	require.NoError(t, err)
	return types.Log{
		Address:     huntCore,
		Topics:      []common.Hash{huntsABI.Events[event].ID, common.BytesToHash(player.Bytes())},
		Data:        data,
		BlockNumber: block,
		Index:       index,
		TxHash:      common.BytesToHash([]byte{tx}),
	}
}

func bigs(ids []uint64) []*big.Int {
	out := make([]*big.Int, len(ids))
	for i, id := range ids {
		out[i] = new(big.Int).SetUint64(id)
	}
	return out
}

func newTestSource(t *testing.T, client *enrichClient, enrich bool) (*Source, *indexdb.DB) {
	t.Helper()
	store, err := indexdb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pool := chainrpc.NewPool(chainrpc.Config{})
	pool.SetClient(dfk.ChainDFK, client)

	src, err := NewSource(pool, store, Config{
		Chain:    dfk.ChainDFK,
		HuntCore: huntCore,
		HeroCore: heroCore,
		PetCore:  petCore,
		Enrich:   enrich,
	})
	require.NoError(t, err)
	return src, store
}

func TestVictoryWithEnrichment(t *testing.T) {
	client := &enrichClient{
		heroes: map[uint64]heroDef{101: {luck: 30}, 102: {luck: 25}},
		pets: map[uint64]petDef{
			201: {bonus: dfk.ScavengerRare, scalar: 15},
			202: {bonus: 45, scalar: 20}, // not a scavenger
		},
	}
	src, store := newTestSource(t, client, true)

	logs := []types.Log{
		completedLog(t, 1, 5000, 3, true, []uint64{101, 102}, []uint64{201, 202}),
		rewardLog(t, "HuntRewardMinted", 1, 5000, 1, 2),
		rewardLog(t, "HuntEquipmentMinted", 1, 5000, 2, 1),
	}
	counters, err := src.Process(context.Background(), logs)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), counters["completions"])
	assert.Equal(t, uint64(2), counters["rewards"])

	for _, b := range client.blocks {
		assert.Equal(t, uint64(5000), b, "views pinned to the completion block")
	}

	agg, err := store.PvEAggregate(dfk.ChainDFK, 3, itemAddr.Hex(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, agg.TotalCompletions)
	assert.Equal(t, 2, agg.TotalDrops)
	assert.Equal(t, float64(55), agg.AvgPartyLuck, "30+25")
	assert.Equal(t, float64(15), agg.AvgScavengerPct, "best scavenger tier wins")
}

func TestDefeatIsSkipped(t *testing.T) {
	client := &enrichClient{}
	src, store := newTestSource(t, client, true)

	logs := []types.Log{
		completedLog(t, 1, 5000, 3, false, []uint64{101}, nil),
		rewardLog(t, "HuntRewardMinted", 1, 5000, 1, 2),
	}
	counters, err := src.Process(context.Background(), logs)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), counters["defeats"])
	assert.Zero(t, counters["completions"])
	assert.Zero(t, counters["rewards"])
	assert.Empty(t, client.blocks, "defeats must not trigger archive reads")

	agg, err := store.PvEAggregate(dfk.ChainDFK, 3, itemAddr.Hex(), nil)
	require.NoError(t, err)
	assert.Zero(t, agg.TotalCompletions)
}

func TestOrphanRewardsIgnored(t *testing.T) {
	src, store := newTestSource(t, &enrichClient{}, true)

	logs := []types.Log{rewardLog(t, "HuntRewardMinted", 9, 5000, 1, 2)}
	counters, err := src.Process(context.Background(), logs)
	require.NoError(t, err)
	assert.Zero(t, counters["rewards"])

	agg, err := store.PvEAggregate(dfk.ChainDFK, 3, itemAddr.Hex(), nil)
	require.NoError(t, err)
	assert.Zero(t, agg.TotalDrops)
}

func TestNoScavengerLeavesNull(t *testing.T) {
	client := &enrichClient{
		heroes: map[uint64]heroDef{101: {luck: 10}},
		pets:   map[uint64]petDef{202: {bonus: 45, scalar: 20}},
	}
	src, store := newTestSource(t, client, true)

	logs := []types.Log{
		completedLog(t, 1, 6000, 7, true, []uint64{101}, []uint64{202}),
		rewardLog(t, "HuntRewardMinted", 1, 6000, 1, 1),
	}
	_, err := src.Process(context.Background(), logs)
	require.NoError(t, err)

	// NULL scavenger treated as 0 in averages
	agg, err := store.PvEAggregate(dfk.ChainDFK, 7, itemAddr.Hex(), nil)
	require.NoError(t, err)
	assert.Equal(t, float64(0), agg.AvgScavengerPct)
}

func TestReprocessingIsIdempotent(t *testing.T) {
	client := &enrichClient{heroes: map[uint64]heroDef{101: {luck: 10}}}
	src, store := newTestSource(t, client, true)

	logs := []types.Log{
		completedLog(t, 1, 5000, 3, true, []uint64{101}, nil),
		rewardLog(t, "HuntRewardMinted", 1, 5000, 1, 2),
	}
	_, err := src.Process(context.Background(), logs)
	require.NoError(t, err)
	counters, err := src.Process(context.Background(), logs)
	require.NoError(t, err)
	assert.Zero(t, counters["completions"])
	assert.Zero(t, counters["rewards"])

	agg, err := store.PvEAggregate(dfk.ChainDFK, 3, itemAddr.Hex(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, agg.TotalCompletions)
	assert.Equal(t, 1, agg.TotalDrops)
}

func TestPatrolVariant(t *testing.T) {
	store, err := indexdb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pool := chainrpc.NewPool(chainrpc.Config{})
	src, err := NewSource(pool, store, Config{
		Chain:    dfk.ChainMetis,
		HuntCore: huntCore,
	})
	require.NoError(t, err)

	assert.Equal(t, "pve-patrols", src.Family())
	assert.Len(t, src.Topics()[0], 3, "patrols have no pet bonus event")
}
