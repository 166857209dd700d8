// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package infer

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfklabs/indexd/dfk"
	"github.com/dfklabs/indexd/indexdb"
)

const itemAddr = "0x00000000000000000000000000000000000000aa"

func TestInferBaseRate(t *testing.T) {
	rate := Infer(&indexdb.PvEAggregates{
		TotalDrops:       375,
		TotalCompletions: 2500,
		AvgPartyLuck:     200,
		AvgScavengerPct:  10,
	})
	assert.InDelta(t, 0.15, rate.ObservedRate, 1e-12)
	assert.InDelta(t, 0.04, rate.LuckContribution, 1e-12)
	assert.InDelta(t, 0.10, rate.ScavengerBonusValue, 1e-12)
	assert.InDelta(t, 0.01, rate.CalculatedBaseRate, 1e-12)
	assert.InDelta(t, 0.1365, rate.ConfidenceLower, 5e-4)
	assert.InDelta(t, 0.1645, rate.ConfidenceUpper, 5e-4)
}

func TestInferFloorsAtZero(t *testing.T) {
	rate := Infer(&indexdb.PvEAggregates{
		TotalDrops:       1,
		TotalCompletions: 100,
		AvgPartyLuck:     500,
		AvgScavengerPct:  25,
	})
	// 0.01 observed, 0.1 luck, 0.25 scavenger
	assert.Zero(t, rate.CalculatedBaseRate)
	assert.GreaterOrEqual(t, rate.ConfidenceLower, 0.0)
}

func TestInferBoundsClamped(t *testing.T) {
	rate := Infer(&indexdb.PvEAggregates{TotalDrops: 2, TotalCompletions: 2})
	assert.InDelta(t, 1.0, rate.ObservedRate, 1e-12)
	assert.LessOrEqual(t, rate.ConfidenceUpper, 1.0)
	assert.Greater(t, rate.ConfidenceLower, 0.0)

	rate = Infer(&indexdb.PvEAggregates{TotalDrops: 0, TotalCompletions: 50})
	assert.Zero(t, rate.ObservedRate)
	assert.InDelta(t, 0.0, rate.ConfidenceLower, 1e-12)
	assert.Greater(t, rate.ConfidenceUpper, 0.0)
}

func seedPvE(t *testing.T, store *indexdb.DB, completions, drops int, luck uint64, scav *float64) {
	t.Helper()
	var cRows []*indexdb.PvECompletion
	var rRows []*indexdb.PvEReward
	for i := 0; i < completions; i++ {
		cRows = append(cRows, &indexdb.PvECompletion{
			TxHash: fmt.Sprintf("0x%04x", i), ChainID: dfk.ChainDFK, ActivityID: 1,
			Player: "0xp", HeroIDs: []uint64{1}, PartyLuck: luck,
			ScavengerBonusPct: scav, BlockNumber: uint64(i),
		})
	}
	for i := 0; i < drops; i++ {
		rRows = append(rRows, &indexdb.PvEReward{
			TxHash: fmt.Sprintf("0x%04x", i), LogIndex: 1, ChainID: dfk.ChainDFK, ActivityID: 1,
			ItemAddress: itemAddr, Amount: big.NewInt(1), PartyLuck: luck,
			ScavengerBonusPct: scav, BlockNumber: uint64(i),
		})
	}
	_, err := store.InsertPvECompletions(cRows)
	require.NoError(t, err)
	_, err = store.InsertPvERewards(rRows)
	require.NoError(t, err)
}

func TestServiceDropRate(t *testing.T) {
	store, err := indexdb.NewMem()
	require.NoError(t, err)
	defer store.Close()
	seedPvE(t, store, 100, 20, 150, nil)

	svc := NewService(store)
	rate, err := svc.DropRate(context.Background(), dfk.ChainDFK, 1, itemAddr, nil)
	require.NoError(t, err)
	require.NotNil(t, rate)
	assert.Equal(t, 20, rate.TotalDrops)
	assert.Equal(t, 100, rate.TotalCompletions)
	assert.InDelta(t, 0.2, rate.ObservedRate, 1e-12)
	assert.InDelta(t, 150.0, rate.AvgPartyLuck, 1e-12)
	// 0.2 - 0.0002*150 = 0.17
	assert.InDelta(t, 0.17, rate.CalculatedBaseRate, 1e-12)
}

func TestServiceNoCompletionsIsNil(t *testing.T) {
	store, err := indexdb.NewMem()
	require.NoError(t, err)
	defer store.Close()

	svc := NewService(store)
	rate, err := svc.DropRate(context.Background(), dfk.ChainDFK, 9, itemAddr, nil)
	require.NoError(t, err)
	assert.Nil(t, rate)
}

func TestServiceScavengerFilter(t *testing.T) {
	store, err := indexdb.NewMem()
	require.NoError(t, err)
	defer store.Close()
	ten := 10.0
	seedPvE(t, store, 50, 25, 0, &ten)

	svc := NewService(store)
	rate, err := svc.DropRate(context.Background(), dfk.ChainDFK, 1, itemAddr, &ten)
	require.NoError(t, err)
	require.NotNil(t, rate)
	assert.Equal(t, 50, rate.TotalCompletions)
	assert.InDelta(t, 10.0, rate.AvgScavengerBonusPct, 1e-12)
	// 0.5 observed minus the 10% scavenger bonus
	assert.InDelta(t, 0.4, rate.CalculatedBaseRate, 1e-12)

	fifteen := 15.0
	rate, err = svc.DropRate(context.Background(), dfk.ChainDFK, 1, itemAddr, &fifteen)
	require.NoError(t, err)
	assert.Nil(t, rate, "no parties under that filter")
}

func TestServiceDropRates(t *testing.T) {
	store, err := indexdb.NewMem()
	require.NoError(t, err)
	defer store.Close()
	seedPvE(t, store, 10, 5, 0, nil)
	require.NoError(t, store.UpsertPvELootItem(dfk.ChainDFK, itemAddr, "Gold Pile", "item", "common"))
	require.NoError(t, store.UpsertPvELootItem(dfk.ChainDFK, "0xbb", "Shard", "item", "rare"))

	svc := NewService(store)
	rates, err := svc.DropRates(context.Background(), dfk.ChainDFK, 1)
	require.NoError(t, err)
	require.Len(t, rates, 2, "every item reports against the activity's completions")
	byAddr := map[string]*DropRate{}
	for _, r := range rates {
		byAddr[r.ItemAddress] = r
	}
	assert.Equal(t, "Gold Pile", byAddr[itemAddr].ItemName)
	assert.Equal(t, 5, byAddr[itemAddr].TotalDrops)
	assert.Zero(t, byAddr["0xbb"].TotalDrops, "known item that never dropped")
}

func TestWilsonInterval(t *testing.T) {
	lower, upper := wilson(0.15, 2500)
	assert.InDelta(t, 0.136, lower, 1e-3)
	assert.InDelta(t, 0.165, upper, 1e-3)
}
