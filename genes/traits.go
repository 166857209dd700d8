// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package genes

// Ability tier points. Active abilities: basic 0-7, advanced 8-11, elite
// 12-13, exalted 14. Passive abilities occupy the shifted band 16-30.
// Ids outside both bands score zero.
func abilityTierPoints(id int) int {
	switch {
	case id >= 0 && id <= 7:
		return 0
	case id >= 8 && id <= 11:
		return 1
	case id >= 12 && id <= 13:
		return 2
	case id == 14:
		return 3
	case id >= 16 && id <= 23:
		return 0
	case id >= 24 && id <= 27:
		return 1
	case id >= 28 && id <= 29:
		return 2
	case id == 30:
		return 3
	default:
		return 0
	}
}

// AbilityTier returns the tier points of a single ability id.
func AbilityTier(id int) int {
	return abilityTierPoints(id)
}

// TraitScore sums ability tier points over the four ability slots.
func TraitScore(active1, active2, passive1, passive2 int) int {
	return abilityTierPoints(active1) +
		abilityTierPoints(active2) +
		abilityTierPoints(passive1) +
		abilityTierPoints(passive2)
}

// Stats is the eight primary hero stats.
type Stats struct {
	Strength     int
	Agility      int
	Intelligence int
	Wisdom       int
	Luck         int
	Vitality     int
	Endurance    int
	Dexterity    int
}

// Sum is the combat power of a stat block.
func (s Stats) Sum() int {
	return s.Strength + s.Agility + s.Intelligence + s.Wisdom +
		s.Luck + s.Vitality + s.Endurance + s.Dexterity
}

// CombatPower is the sum of the eight primary stats.
func CombatPower(s Stats) int {
	return s.Sum()
}
