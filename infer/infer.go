// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package infer turns observed PvE completions and drops into base
// drop-rate estimates. The observed rate is corrected for the party's
// luck and scavenger-pet bonuses and bracketed with a Wilson interval.
package infer

import (
	"context"
	"math"
	"sort"

	"github.com/dfklabs/indexd/dfk"
	"github.com/dfklabs/indexd/indexdb"
)

// wilsonZ is the 95% two-sided normal quantile.
const wilsonZ = 1.96

// DropRate is the inferred base rate of one (activity, item) pair.
type DropRate struct {
	ChainID              dfk.ChainID `json:"chainId"`
	ActivityID           uint64      `json:"activityId"`
	ItemAddress          string      `json:"itemAddress"`
	ItemName             string      `json:"itemName,omitempty"`
	ScavengerPctFilter   *float64    `json:"scavengerPctFilter,omitempty"`
	TotalDrops           int         `json:"totalDrops"`
	TotalCompletions     int         `json:"totalCompletions"`
	AvgPartyLuck         float64     `json:"avgPartyLuck"`
	AvgScavengerBonusPct float64     `json:"avgScavengerBonusPct"`
	ObservedRate         float64     `json:"observedRate"`
	LuckContribution     float64     `json:"luckContribution"`
	ScavengerBonusValue  float64     `json:"scavengerBonusValue"`
	CalculatedBaseRate   float64     `json:"calculatedBaseRate"`
	ConfidenceLower      float64     `json:"confidenceLower"`
	ConfidenceUpper      float64     `json:"confidenceUpper"`
}

// Service computes drop rates over the indexed PvE tables.
type Service struct {
	store *indexdb.DB
}

func NewService(store *indexdb.DB) *Service {
	return &Service{store: store}
}

// DropRate infers the base rate for one item of one activity,
// optionally restricted to parties with an exact scavenger bonus. Nil
// when nothing completed under the filter.
func (s *Service) DropRate(ctx context.Context, chainID dfk.ChainID, activityID uint64, itemAddress string, scavengerPctFilter *float64) (*DropRate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	agg, err := s.store.PvEAggregate(chainID, activityID, itemAddress, scavengerPctFilter)
	if err != nil {
		return nil, err
	}
	if agg.TotalCompletions == 0 {
		return nil, nil
	}
	rate := Infer(agg)
	rate.ChainID = chainID
	rate.ActivityID = activityID
	rate.ItemAddress = itemAddress
	rate.ScavengerPctFilter = scavengerPctFilter
	return rate, nil
}

// DropRates infers rates for every known loot item of an activity.
// Items nobody completed against are skipped.
func (s *Service) DropRates(ctx context.Context, chainID dfk.ChainID, activityID uint64) ([]*DropRate, error) {
	items, err := s.store.ListPvELootItems(chainID)
	if err != nil {
		return nil, err
	}
	out := make([]*DropRate, 0, len(items))
	for addr, name := range items {
		rate, err := s.DropRate(ctx, chainID, activityID, addr, nil)
		if err != nil {
			return nil, err
		}
		if rate == nil {
			continue
		}
		rate.ItemName = name
		out = append(out, rate)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ItemAddress < out[k].ItemAddress })
	return out, nil
}

// Activity is one registered hunt or patrol id.
type Activity struct {
	ChainID      dfk.ChainID `json:"chainId"`
	ActivityType string      `json:"activityType"`
	ActivityID   uint64      `json:"activityId"`
	Name         string      `json:"name,omitempty"`
}

// Activities lists the activity registry for a chain: the seeded names
// plus every id the indexers have seen.
func (s *Service) Activities(ctx context.Context, chainID dfk.ChainID) ([]*Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.store.ListPvEActivities(chainID)
	if err != nil {
		return nil, err
	}
	out := make([]*Activity, 0, len(rows))
	for _, r := range rows {
		out = append(out, &Activity{
			ChainID:      chainID,
			ActivityType: r.ActivityType,
			ActivityID:   r.ActivityID,
			Name:         r.Name,
		})
	}
	return out, nil
}

// Infer is the pure calculation over precomputed aggregates. The caller
// guarantees TotalCompletions > 0.
func Infer(agg *indexdb.PvEAggregates) *DropRate {
	observed := float64(agg.TotalDrops) / float64(agg.TotalCompletions)
	luck := dfk.LuckRatePerPoint * agg.AvgPartyLuck
	scavenger := agg.AvgScavengerPct / 100
	base := observed - luck - scavenger
	if base < 0 {
		base = 0
	}
	lower, upper := wilson(observed, agg.TotalCompletions)
	return &DropRate{
		TotalDrops:           agg.TotalDrops,
		TotalCompletions:     agg.TotalCompletions,
		AvgPartyLuck:         agg.AvgPartyLuck,
		AvgScavengerBonusPct: agg.AvgScavengerPct,
		ObservedRate:         observed,
		LuckContribution:     luck,
		ScavengerBonusValue:  scavenger,
		CalculatedBaseRate:   base,
		ConfidenceLower:      lower,
		ConfidenceUpper:      upper,
	}
}

// wilson is the 95% score interval around an observed proportion,
// clamped to [0, 1].
func wilson(p float64, n int) (lower, upper float64) {
	if p > 1 {
		// stackable items can drop more than once per completion; the
		// interval is only defined for a proportion
		p = 1
	}
	fn := float64(n)
	z2 := wilsonZ * wilsonZ
	denom := 1 + z2/fn
	center := (p + z2/(2*fn)) / denom
	margin := wilsonZ * math.Sqrt((p*(1-p)+z2/(4*fn))/fn) / denom
	lower = center - margin
	upper = center + margin
	if lower < 0 {
		lower = 0
	}
	if upper > 1 {
		upper = 1
	}
	return lower, upper
}
