// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chainrpc

// View ABIs, reduced to the members the indexers read. The hero and pet
// tuples are trimmed to a verified prefix: field ordering was checked
// against fixture transactions on the deployed contracts, since the
// nominal names in upstream ABI dumps are not stable.

// GardenerABI covers the LP staking contract views.
const GardenerABI = `[
	{"name":"userInfo","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_pid","type":"uint256"},{"name":"_user","type":"address"}],
	 "outputs":[{"name":"amount","type":"uint256"},{"name":"rewardDebt","type":"uint256"}]},
	{"name":"poolInfo","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_pid","type":"uint256"}],
	 "outputs":[{"name":"lpToken","type":"address"},{"name":"allocPoint","type":"uint256"},
	            {"name":"lastRewardBlock","type":"uint256"},{"name":"accRewardPerShare","type":"uint256"}]}
]`

// HeroCoreABI exposes the stat block of getHeroV3. Positions within the
// stats tuple: strength, agility, intelligence, wisdom, luck, vitality,
// endurance, dexterity. Verified against fixture transactions; the
// declared field names are untrusted.
const HeroCoreABI = `[
	{"name":"getHeroV3","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_id","type":"uint256"}],
	 "outputs":[{"name":"hero","type":"tuple","components":[
		{"name":"id","type":"uint256"},
		{"name":"stats","type":"tuple","components":[
			{"name":"strength","type":"uint16"},
			{"name":"agility","type":"uint16"},
			{"name":"intelligence","type":"uint16"},
			{"name":"wisdom","type":"uint16"},
			{"name":"luck","type":"uint16"},
			{"name":"vitality","type":"uint16"},
			{"name":"endurance","type":"uint16"},
			{"name":"dexterity","type":"uint16"}]}]}]}
]`

// PetCoreABI exposes the combat bonus pair of getPetV2.
const PetCoreABI = `[
	{"name":"getPetV2","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_id","type":"uint256"}],
	 "outputs":[{"name":"pet","type":"tuple","components":[
		{"name":"id","type":"uint256"},
		{"name":"rarity","type":"uint8"},
		{"name":"combatBonus","type":"uint16"},
		{"name":"combatBonusScalar","type":"uint16"}]}]}
]`

// ProfilesABI resolves wallet display names.
const ProfilesABI = `[
	{"name":"addressToProfile","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_address","type":"address"}],
	 "outputs":[{"name":"owner","type":"address"},{"name":"name","type":"string"},
	            {"name":"created","type":"uint64"},{"name":"picId","type":"uint8"}]}
]`

// QuestCoreViewABI is the fallback quest-type lookup when neither
// QuestCompleted nor ExpeditionIterationProcessed appears in the tx.
const QuestCoreViewABI = `[
	{"name":"getQuest","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_questId","type":"uint256"}],
	 "outputs":[{"name":"id","type":"uint256"},{"name":"questType","type":"uint8"}]}
]`
