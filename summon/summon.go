// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package summon models the offspring of a hero pair: per-slot gene
// probabilities, the expected trait-tier score of the summon and the
// chance of rolling elite or exalted abilities. The Engine interface
// lets a richer external calculator replace the built-in model.
package summon

import (
	"github.com/pkg/errors"

	"github.com/dfklabs/indexd/genes"
)

// inheritanceWeights is the chance a parent passes each depth:
// dominant, R1, R2, R3.
var inheritanceWeights = [genes.DepthCount]float64{0.75, 0.1875, 0.046875, 0.015625}

// SlotProbs maps a gene value to its summon probability within a slot.
type SlotProbs map[uint8]float64

// Probabilities is the per-slot offspring gene distribution.
type Probabilities struct {
	Slots [genes.SlotCount]SlotProbs
}

// TTS is the trait-tier-score distribution of the summon. SlotTierProbs
// holds, per ability slot (active1, active2, passive1, passive2), the
// probability of each tier 0..3.
type TTS struct {
	ExpectedTTS   float64
	SlotTierProbs [4][4]float64
}

// EliteExalted is the chance of at least one elite (tier 2) or exalted
// (tier 3) ability on the summon.
type EliteExalted struct {
	EliteChance   float64
	ExaltedChance float64
}

// Engine is the summoning calculator collaborator.
type Engine interface {
	SummoningProbabilities(g1, g2 *genes.Expanded, rarity1, rarity2 int) (*Probabilities, error)
	TTSProbabilities(p *Probabilities) (*TTS, error)
	EliteExaltedChances(slotTierProbs [4][4]float64) (*EliteExalted, error)
}

// Basic is the built-in Engine: straight Mendelian inheritance with the
// standard depth weights and no mutation modelling.
type Basic struct{}

var _ Engine = Basic{}

// SummoningProbabilities combines both parents' gene ladders, each
// parent contributing half.
func (Basic) SummoningProbabilities(g1, g2 *genes.Expanded, rarity1, rarity2 int) (*Probabilities, error) {
	if g1 == nil || g2 == nil {
		return nil, errors.New("both parents need decoded genes")
	}
	if rarity1 < 0 || rarity2 < 0 {
		return nil, errors.New("negative rarity")
	}
	var p Probabilities
	for s := 0; s < genes.SlotCount; s++ {
		probs := SlotProbs{}
		for d := 0; d < genes.DepthCount; d++ {
			probs[g1.Slots[s][d]] += inheritanceWeights[d] / 2
			probs[g2.Slots[s][d]] += inheritanceWeights[d] / 2
		}
		p.Slots[s] = probs
	}
	return &p, nil
}

// abilitySlots lists the gene slots feeding the trait score, in
// TTS order.
var abilitySlots = [4]int{
	genes.SlotActive1,
	genes.SlotActive2,
	genes.SlotPassive1,
	genes.SlotPassive2,
}

// passive ability genes sit in the shifted id band
var passiveSlot = map[int]bool{
	genes.SlotPassive1: true,
	genes.SlotPassive2: true,
}

// TTSProbabilities folds the ability-slot distributions into tier
// probabilities and the expected trait-tier score.
func (Basic) TTSProbabilities(p *Probabilities) (*TTS, error) {
	if p == nil {
		return nil, errors.New("nil probabilities")
	}
	var tts TTS
	for i, slot := range abilitySlots {
		for gene, prob := range p.Slots[slot] {
			id := int(gene)
			if passiveSlot[slot] {
				id += 16
			}
			tier := genes.AbilityTier(id)
			tts.SlotTierProbs[i][tier] += prob
			tts.ExpectedTTS += float64(tier) * prob
		}
	}
	return &tts, nil
}

// EliteExaltedChances is the chance at least one slot rolls tier 2+
// respectively tier 3.
func (Basic) EliteExaltedChances(slotTierProbs [4][4]float64) (*EliteExalted, error) {
	noneElite, noneExalted := 1.0, 1.0
	for _, tiers := range slotTierProbs {
		noneElite *= tiers[0] + tiers[1]
		noneExalted *= tiers[0] + tiers[1] + tiers[2]
	}
	return &EliteExalted{
		EliteChance:   clamp01(1 - noneElite),
		ExaltedChance: clamp01(1 - noneExalted),
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
