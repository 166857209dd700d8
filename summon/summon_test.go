// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package summon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfklabs/indexd/genes"
)

func uniformParent(v uint8) *genes.Expanded {
	var e genes.Expanded
	for s := 0; s < genes.SlotCount; s++ {
		for d := 0; d < genes.DepthCount; d++ {
			e.Slots[s][d] = v
		}
	}
	return &e
}

func TestSummoningProbabilitiesSumToOne(t *testing.T) {
	g1 := uniformParent(1)
	g2 := uniformParent(2)
	g2.Slots[0][1] = 1 // shared recessive in the class slot

	p, err := Basic{}.SummoningProbabilities(g1, g2, 0, 2)
	require.NoError(t, err)
	for s := 0; s < genes.SlotCount; s++ {
		var sum float64
		for _, prob := range p.Slots[s] {
			sum += prob
		}
		assert.InDelta(t, 1.0, sum, 1e-12, "slot %d", s)
	}
	// class slot: all of parent 1 plus parent 2's R1 land on gene 1
	assert.InDelta(t, 0.5+0.1875/2, p.Slots[0][1], 1e-12)
}

func TestSummoningProbabilitiesIdenticalParents(t *testing.T) {
	g := uniformParent(5)
	p, err := Basic{}.SummoningProbabilities(g, g, 1, 1)
	require.NoError(t, err)
	for s := 0; s < genes.SlotCount; s++ {
		require.Len(t, p.Slots[s], 1)
		assert.InDelta(t, 1.0, p.Slots[s][5], 1e-12)
	}
}

func TestSummoningProbabilitiesNilParent(t *testing.T) {
	_, err := Basic{}.SummoningProbabilities(nil, uniformParent(1), 0, 0)
	assert.Error(t, err)
}

func TestTTSProbabilities(t *testing.T) {
	// actives fixed at gene 14 (exalted), passives at gene 14 (id 30,
	// exalted after the passive band shift)
	g := uniformParent(14)
	p, err := Basic{}.SummoningProbabilities(g, g, 0, 0)
	require.NoError(t, err)

	tts, err := Basic{}.TTSProbabilities(p)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, tts.ExpectedTTS, 1e-12, "four guaranteed exalted slots")
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 1.0, tts.SlotTierProbs[i][3], 1e-12)
	}
}

func TestTTSProbabilitiesBasicGenes(t *testing.T) {
	// gene 0 is a basic ability in both bands
	g := uniformParent(0)
	p, err := Basic{}.SummoningProbabilities(g, g, 0, 0)
	require.NoError(t, err)
	tts, err := Basic{}.TTSProbabilities(p)
	require.NoError(t, err)
	assert.Zero(t, tts.ExpectedTTS)
}

func TestEliteExaltedChances(t *testing.T) {
	var probs [4][4]float64
	for i := 0; i < 4; i++ {
		probs[i] = [4]float64{0.5, 0.3, 0.15, 0.05}
	}
	ee, err := Basic{}.EliteExaltedChances(probs)
	require.NoError(t, err)
	// 1 - 0.8^4 and 1 - 0.95^4
	assert.InDelta(t, 1-0.8*0.8*0.8*0.8, ee.EliteChance, 1e-12)
	assert.InDelta(t, 1-0.95*0.95*0.95*0.95, ee.ExaltedChance, 1e-12)
}

func TestEliteExaltedChancesCertain(t *testing.T) {
	var probs [4][4]float64
	probs[0] = [4]float64{0, 0, 0, 1}
	for i := 1; i < 4; i++ {
		probs[i] = [4]float64{1, 0, 0, 0}
	}
	ee, err := Basic{}.EliteExaltedChances(probs)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, ee.EliteChance, 1e-12)
	assert.InDelta(t, 1.0, ee.ExaltedChance, 1e-12)
}
