// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bargain

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfklabs/indexd/dfk"
	"github.com/dfklabs/indexd/genes"
	"github.com/dfklabs/indexd/indexdb"
	"github.com/dfklabs/indexd/summon"
)

func seedHero(t *testing.T, store *indexdb.DB, id uint64, realm dfk.Realm, rarity, generation, summonsLeft int, price float64) {
	t.Helper()
	wei, _ := new(big.Float).Mul(big.NewFloat(price), big.NewFloat(1e18)).Int(nil)
	token := "JEWEL"
	if realm == dfk.RealmCrystalvale {
		token = "CRYSTAL"
	}
	require.NoError(t, store.UpsertTavernHeroes([]*indexdb.TavernHero{{
		HeroID: id, Realm: realm, MainClass: 3, SubClass: 1,
		Rarity: rarity, Level: 5, Generation: generation,
		Active1: 8, Active2: 2, Passive1: 24, Passive2: 17,
		Summons: 5 - summonsLeft, MaxSummons: 5,
		SalePriceWei: wei, PriceNative: price, NativeToken: token,
		GenesStatus: indexdb.GenesPending, BatchID: "b",
	}}))
	var e genes.Expanded
	for s := 0; s < genes.SlotCount; s++ {
		for d := 0; d < genes.DepthCount; d++ {
			e.Slots[s][d] = uint8(s)
		}
	}
	require.NoError(t, store.SetHeroGenes(id, &e))
}

func newJob(t *testing.T) (*Job, *indexdb.DB) {
	t.Helper()
	store, err := indexdb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.SetTokenPrice("CRYSTAL", 2.0))
	require.NoError(t, store.SetTokenPrice("JEWEL", 0.5))
	return NewJob(store, summon.Basic{}), store
}

func TestRunScoresSameRealmPairs(t *testing.T) {
	job, store := newJob(t)
	seedHero(t, store, 1, dfk.RealmCrystalvale, 0, 0, 2, 10)
	seedHero(t, store, 2, dfk.RealmCrystalvale, 0, 1, 2, 20)
	seedHero(t, store, 3, dfk.RealmSunderedIsles, 0, 0, 2, 5)

	report, err := job.Run(context.Background(), Regular)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalHeroes)
	// only the cv pair; the lone sd hero has no partner
	require.Equal(t, 1, report.PairsScored)
	p := report.TopPairs[0]
	assert.Equal(t, uint64(1), p.HeroID1)
	assert.Equal(t, uint64(2), p.HeroID2)
	assert.InDelta(t, 30.0, p.PurchaseCost, 1e-9)
	// 6 + 2·max(0,1)
	assert.InDelta(t, 8.0, p.SummonCost, 1e-9)
	// ⌊(0+1+2)/4⌋ = 0, floored to one tear
	assert.InDelta(t, 0.05, p.TearCost, 1e-9)
	assert.InDelta(t, 38.05, p.TotalCost, 1e-9)
	assert.InDelta(t, 76.10, p.TotalCostUsd, 1e-6)
	assert.InDelta(t, p.ExpectedTTS/p.TotalCost, p.Efficiency, 1e-12)

	cache, err := store.GetBargainCache("regular")
	require.NoError(t, err)
	require.NotNil(t, cache)
	assert.Equal(t, 1, cache.TotalPairsScored)
	assert.Equal(t, map[string]float64{"CRYSTAL": 2.0, "JEWEL": 0.5}, cache.TokenPrices)
	var pairs []*Pair
	require.NoError(t, json.Unmarshal(cache.TopPairs, &pairs))
	require.Len(t, pairs, 1)
}

func TestDarkSummonCostAndEligibility(t *testing.T) {
	job, store := newJob(t)
	// no free summons left: dark-only candidates
	seedHero(t, store, 1, dfk.RealmCrystalvale, 1, 3, 0, 1)
	seedHero(t, store, 2, dfk.RealmCrystalvale, 1, 5, 0, 1)

	report, err := job.Run(context.Background(), Regular)
	require.NoError(t, err)
	assert.Zero(t, report.PairsScored, "spent heroes cannot regular-summon")

	// the cache row is refreshed even when nothing qualified
	cache, err := store.GetBargainCache("regular")
	require.NoError(t, err)
	require.NotNil(t, cache)
	assert.Zero(t, cache.TotalPairsScored)
	assert.JSONEq(t, "[]", string(cache.TopPairs))

	report, err = job.Run(context.Background(), Dark)
	require.NoError(t, err)
	require.Equal(t, 1, report.PairsScored)
	p := report.TopPairs[0]
	// (6 + 2·5) / 4
	assert.InDelta(t, 4.0, p.SummonCost, 1e-9)
	// ⌊(3+5+2)/4⌋ = 2 tears
	assert.InDelta(t, 0.10, p.TearCost, 1e-9)
}

func TestDarkPairCostBreakdown(t *testing.T) {
	store, err := indexdb.NewMem()
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.SetTokenPrice("CRYSTAL", 0.20))
	seedHero(t, store, 1, dfk.RealmCrystalvale, 4, 5, 0, 100)
	seedHero(t, store, 2, dfk.RealmCrystalvale, 4, 7, 0, 150)

	job := NewJob(store, summon.Basic{})
	report, err := job.Run(context.Background(), Dark)
	require.NoError(t, err)
	require.Equal(t, 1, report.PairsScored)

	p := report.TopPairs[0]
	assert.InDelta(t, 250.0, p.PurchaseCost, 1e-9)
	// (6 + 2·7) / 4
	assert.InDelta(t, 5.0, p.SummonCost, 1e-9)
	// ⌊(5+7+2)/4⌋ = 3 tears
	assert.InDelta(t, 0.15, p.TearCost, 1e-9)
	assert.InDelta(t, 255.15, p.TotalCost, 1e-9)
	assert.InDelta(t, 51.03, p.TotalCostUsd, 1e-6)
	assert.InDelta(t, p.ExpectedTTS/p.TotalCost, p.Efficiency, 1e-12)
}

func TestPendingGenesSkipped(t *testing.T) {
	job, store := newJob(t)
	seedHero(t, store, 1, dfk.RealmCrystalvale, 0, 0, 2, 1)
	seedHero(t, store, 2, dfk.RealmCrystalvale, 0, 0, 2, 1)
	// hero 3 never backfilled: not a candidate at all
	wei := big.NewInt(1)
	require.NoError(t, store.UpsertTavernHeroes([]*indexdb.TavernHero{{
		HeroID: 3, Realm: dfk.RealmCrystalvale, MaxSummons: 5,
		SalePriceWei: wei, PriceNative: 1, NativeToken: "CRYSTAL",
		GenesStatus: indexdb.GenesPending, BatchID: "b",
	}}))

	report, err := job.Run(context.Background(), Regular)
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalHeroes)
	assert.Equal(t, 1, report.PairsScored)
}

type failingEngine struct{ summon.Basic }

func (failingEngine) SummoningProbabilities(*genes.Expanded, *genes.Expanded, int, int) (*summon.Probabilities, error) {
	return nil, errors.New("boom")
}

func TestEngineFailureCountsSkip(t *testing.T) {
	store, err := indexdb.NewMem()
	require.NoError(t, err)
	defer store.Close()
	seedHero(t, store, 1, dfk.RealmCrystalvale, 0, 0, 2, 1)
	seedHero(t, store, 2, dfk.RealmCrystalvale, 0, 0, 2, 1)

	job := NewJob(store, failingEngine{})
	report, err := job.Run(context.Background(), Regular)
	require.NoError(t, err)
	assert.Zero(t, report.PairsScored)
	assert.Equal(t, 1, report.Skips["engineError"])
}

func TestSelectTopBucketsAndCaps(t *testing.T) {
	var pairs []*Pair
	for i := 0; i < TopPerBucket+50; i++ {
		pairs = append(pairs, &Pair{Rarity1: 0, Rarity2: 2, Efficiency: float64(i)})
	}
	for i := 0; i < 10; i++ {
		pairs = append(pairs, &Pair{Rarity1: 4, Rarity2: 4, Efficiency: 10000 + float64(i)})
	}

	top := selectTop(pairs)
	assert.Len(t, top, TopPerBucket+10)
	assert.InDelta(t, 10009, top[0].Efficiency, 1e-12, "sorted by efficiency across buckets")
	// the rarity-0 bucket kept only its best TopPerBucket
	minKept := float64(50)
	for _, p := range top {
		if p.Rarity1 == 0 {
			assert.GreaterOrEqual(t, p.Efficiency, minKept)
		}
	}
}

func TestRunAllPublishesBothTypes(t *testing.T) {
	job, store := newJob(t)
	seedHero(t, store, 1, dfk.RealmCrystalvale, 0, 0, 2, 1)
	seedHero(t, store, 2, dfk.RealmCrystalvale, 0, 0, 2, 1)

	require.NoError(t, job.RunAll(context.Background()))
	for _, st := range []string{"regular", "dark"} {
		cache, err := store.GetBargainCache(st)
		require.NoError(t, err)
		require.NotNil(t, cache, st)
	}
}
