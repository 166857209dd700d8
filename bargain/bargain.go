// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package bargain scores hero pairs from the marketplace snapshot: for
// each summon type it enumerates same-realm pairs among the cheapest
// genes-complete heroes, prices the full summon, asks the summon engine
// for the expected trait-tier score and publishes the most efficient
// pairs per rarity bucket.
package bargain

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/dfklabs/indexd/dfk"
	"github.com/dfklabs/indexd/genes"
	"github.com/dfklabs/indexd/indexdb"
	"github.com/dfklabs/indexd/log"
	"github.com/dfklabs/indexd/metrics"
	"github.com/dfklabs/indexd/summon"
)

var logger = log.WithContext("pkg", "bargain")

var metricPairs = metrics.LazyLoad(func() metrics.CountVecMeter {
	return metrics.CounterVec("bargain_pairs_total", []string{"summonType", "outcome"})
})

// SummonType selects the cost model and eligibility rule.
type SummonType string

const (
	Regular SummonType = "regular"
	Dark    SummonType = "dark"
)

const (
	// PerRarity caps candidates per rarity bucket.
	PerRarity = 150
	// TopPerBucket caps published pairs per min-rarity bucket.
	TopPerBucket = 200
	// MaxPairs caps the published cache.
	MaxPairs = 1000

	summonCostBase   = 6.0
	summonCostPerGen = 2.0
	darkCostDivisor  = 4.0
	tearCostEach     = 0.05
)

// Pair is one scored candidate pair as published to the cache.
type Pair struct {
	HeroID1       uint64    `json:"heroId1"`
	HeroID2       uint64    `json:"heroId2"`
	Realm         dfk.Realm `json:"realm"`
	Rarity1       int       `json:"rarity1"`
	Rarity2       int       `json:"rarity2"`
	PurchaseCost  float64   `json:"purchaseCost"`
	SummonCost    float64   `json:"summonCost"`
	TearCost      float64   `json:"tearCost"`
	TotalCost     float64   `json:"totalCost"`
	TotalCostUsd  float64   `json:"totalCostUsd"`
	ExpectedTTS   float64   `json:"expectedTTS"`
	EliteChance   float64   `json:"eliteChance"`
	ExaltedChance float64   `json:"exaltedChance"`
	Efficiency    float64   `json:"efficiency"`
}

// Report summarises one scoring run.
type Report struct {
	SummonType  SummonType
	TotalHeroes int
	PairsScored int
	Skips       map[string]int
	TopPairs    []*Pair
}

// Job scores pairs and publishes the cache.
type Job struct {
	store  *indexdb.DB
	engine summon.Engine
}

func NewJob(store *indexdb.DB, engine summon.Engine) *Job {
	return &Job{store: store, engine: engine}
}

// RunAll scores both summon types.
func (j *Job) RunAll(ctx context.Context) error {
	for _, st := range []SummonType{Regular, Dark} {
		if _, err := j.Run(ctx, st); err != nil {
			return errors.WithMessagef(err, "scoring %s pairs", st)
		}
	}
	return nil
}

// Run scores one summon type and upserts its cache row.
func (j *Job) Run(ctx context.Context, summonType SummonType) (*Report, error) {
	start := time.Now()
	prices := j.tokenPrices()

	heroes, err := j.store.BargainCandidates(summonType == Regular, PerRarity)
	if err != nil {
		return nil, err
	}
	report := &Report{
		SummonType:  summonType,
		TotalHeroes: len(heroes),
		Skips:       map[string]int{},
	}

	byRealm := map[dfk.Realm][]*indexdb.TavernHero{}
	for _, h := range heroes {
		byRealm[h.Realm] = append(byRealm[h.Realm], h)
	}

	var scored []*Pair
	for _, group := range byRealm {
		for i := 0; i < len(group); i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			for k := i + 1; k < len(group); k++ {
				pair, reason := j.score(group[i], group[k], summonType, prices)
				if pair == nil {
					report.Skips[reason]++
					metricPairs().AddWithLabel(1, map[string]string{
						"summonType": string(summonType), "outcome": reason})
					continue
				}
				report.PairsScored++
				scored = append(scored, pair)
			}
		}
	}
	metricPairs().AddWithLabel(int64(report.PairsScored), map[string]string{
		"summonType": string(summonType), "outcome": "scored"})

	report.TopPairs = selectTop(scored)
	topJSON, err := json.Marshal(report.TopPairs)
	if err != nil {
		return nil, err
	}
	if err := j.store.UpsertBargainCache(&indexdb.BargainCache{
		SummonType:       string(summonType),
		TotalHeroes:      report.TotalHeroes,
		TotalPairsScored: report.PairsScored,
		TokenPrices:      prices,
		TopPairs:         topJSON,
	}); err != nil {
		return nil, err
	}
	logger.Info("bargain cache published",
		"summonType", summonType, "heroes", report.TotalHeroes,
		"scored", report.PairsScored, "published", len(report.TopPairs),
		"skips", report.Skips, "elapsed", time.Since(start))
	return report, nil
}

// tokenPrices loads the native-token USD prices, tolerating gaps: the
// efficiency ranking is price-free, USD figures are advisory.
func (j *Job) tokenPrices() map[string]float64 {
	prices := map[string]float64{}
	for _, token := range []string{"CRYSTAL", "JEWEL"} {
		price, err := j.store.GetTokenPrice(token)
		if err != nil {
			logger.Warn("token price unavailable", "token", token, "err", err)
			continue
		}
		prices[token] = price
	}
	return prices
}

func (j *Job) score(h1, h2 *indexdb.TavernHero, summonType SummonType, prices map[string]float64) (*Pair, string) {
	g1, g2 := expandedGenes(h1), expandedGenes(h2)
	if g1 == nil || g2 == nil {
		return nil, "missingGenes"
	}

	purchase := h1.PriceNative + h2.PriceNative
	maxGen := h1.Generation
	if h2.Generation > maxGen {
		maxGen = h2.Generation
	}
	summonCost := summonCostBase + summonCostPerGen*float64(maxGen)
	if summonType == Dark {
		summonCost /= darkCostDivisor
	}
	tearCount := (h1.Generation + h2.Generation + 2) / 4
	if tearCount < 1 {
		tearCount = 1
	}
	tearCost := tearCostEach * float64(tearCount)
	totalCost := purchase + summonCost + tearCost
	if totalCost <= 0 {
		return nil, "zeroCost"
	}

	probs, err := j.engine.SummoningProbabilities(g1, g2, h1.Rarity, h2.Rarity)
	if err != nil {
		return nil, "engineError"
	}
	tts, err := j.engine.TTSProbabilities(probs)
	if err != nil {
		return nil, "engineError"
	}
	elite, err := j.engine.EliteExaltedChances(tts.SlotTierProbs)
	if err != nil {
		return nil, "engineError"
	}

	return &Pair{
		HeroID1:       h1.HeroID,
		HeroID2:       h2.HeroID,
		Realm:         h1.Realm,
		Rarity1:       h1.Rarity,
		Rarity2:       h2.Rarity,
		PurchaseCost:  purchase,
		SummonCost:    summonCost,
		TearCost:      tearCost,
		TotalCost:     totalCost,
		TotalCostUsd:  totalCost * prices[h1.NativeToken],
		ExpectedTTS:   tts.ExpectedTTS,
		EliteChance:   elite.EliteChance,
		ExaltedChance: elite.ExaltedChance,
		Efficiency:    tts.ExpectedTTS / totalCost,
	}, ""
}

// selectTop buckets pairs by the lower of the two rarities, keeps the
// most efficient TopPerBucket of each, and returns the union sorted by
// efficiency.
func selectTop(pairs []*Pair) []*Pair {
	buckets := map[int][]*Pair{}
	for _, p := range pairs {
		r := p.Rarity1
		if p.Rarity2 < r {
			r = p.Rarity2
		}
		buckets[r] = append(buckets[r], p)
	}
	// empty runs still publish a JSON array, not null
	out := []*Pair{}
	for _, bucket := range buckets {
		sort.Slice(bucket, func(i, k int) bool { return bucket[i].Efficiency > bucket[k].Efficiency })
		if len(bucket) > TopPerBucket {
			bucket = bucket[:TopPerBucket]
		}
		out = append(out, bucket...)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Efficiency > out[k].Efficiency })
	if len(out) > MaxPairs {
		out = out[:MaxPairs]
	}
	return out
}

// expandedGenes rebuilds a gene ladder from a snapshot row: dominants
// from the expressed hero fields, recessives from the backfilled gene
// columns. Passive ability ids drop to their raw gene band.
func expandedGenes(h *indexdb.TavernHero) *genes.Expanded {
	if h.Recessives == nil {
		return nil
	}
	var e genes.Expanded
	e.Slots[genes.SlotClass][0] = uint8(h.MainClass)
	e.Slots[genes.SlotSubClass][0] = uint8(h.SubClass)
	e.Slots[genes.SlotProfession][0] = uint8(h.Profession)
	e.Slots[genes.SlotPassive1][0] = passiveGene(h.Passive1)
	e.Slots[genes.SlotPassive2][0] = passiveGene(h.Passive2)
	e.Slots[genes.SlotActive1][0] = uint8(h.Active1)
	e.Slots[genes.SlotActive2][0] = uint8(h.Active2)
	for s := 0; s < genes.SlotCount; s++ {
		for r := 0; r < 3; r++ {
			e.Slots[s][r+1] = h.Recessives[s][r]
		}
	}
	return &e
}

// passiveGene maps a passive ability id back to its gene value.
func passiveGene(id int) uint8 {
	if id >= 16 {
		return uint8(id - 16)
	}
	return uint8(id)
}
