// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package indexdb

import (
	"strings"

	"github.com/dfklabs/indexd/genes"
)

const checkpointSchema = `
create table if not exists checkpoints (
	indexerName TEXT PRIMARY KEY,
	indexerType TEXT NOT NULL,
	scope TEXT NOT NULL,
	lpToken TEXT,
	rangeStart INTEGER NOT NULL,
	rangeEnd INTEGER,
	lastIndexedBlock INTEGER NOT NULL,
	totalEventsIndexed INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'idle',
	lastError TEXT,
	updatedAt INTEGER NOT NULL
);
`

const stakerSchema = `
create table if not exists stakers (
	pid INTEGER NOT NULL,
	wallet TEXT NOT NULL,
	stakedLP TEXT NOT NULL,
	summonerName TEXT,
	lastActivityType TEXT NOT NULL,
	lastActivityAmount TEXT NOT NULL,
	lastActivityBlock INTEGER NOT NULL,
	lastActivityTx TEXT NOT NULL,
	lastUpdatedAt INTEGER NOT NULL,
	UNIQUE(pid, wallet)
);
CREATE INDEX if not exists stakersWallet on stakers(wallet);
`

const eventSchema = `
create table if not exists swap_events (
	txHash TEXT NOT NULL,
	logIndex INTEGER NOT NULL,
	pair TEXT NOT NULL,
	sender TEXT NOT NULL,
	payload TEXT NOT NULL,
	blockNumber INTEGER NOT NULL,
	UNIQUE(txHash, logIndex)
);
CREATE INDEX if not exists swapBlock on swap_events(blockNumber);

create table if not exists reward_events (
	txHash TEXT NOT NULL,
	logIndex INTEGER NOT NULL,
	pid INTEGER NOT NULL,
	wallet TEXT NOT NULL,
	amount TEXT NOT NULL,
	blockNumber INTEGER NOT NULL,
	UNIQUE(txHash, logIndex)
);
CREATE INDEX if not exists rewardWallet on reward_events(wallet);
`

const pveSchema = `
create table if not exists pve_activities (
	chainId INTEGER NOT NULL,
	activityType TEXT NOT NULL,
	activityId INTEGER NOT NULL,
	name TEXT,
	UNIQUE(chainId, activityType, activityId)
);

create table if not exists pve_loot_items (
	chainId INTEGER NOT NULL,
	itemAddress TEXT NOT NULL,
	name TEXT,
	itemType TEXT,
	rarity TEXT,
	UNIQUE(chainId, itemAddress)
);

create table if not exists pve_completions (
	txHash TEXT PRIMARY KEY,
	chainId INTEGER NOT NULL,
	activityId INTEGER NOT NULL,
	player TEXT NOT NULL,
	heroIds TEXT NOT NULL,
	petIds TEXT NOT NULL,
	partyLuck INTEGER NOT NULL,
	scavengerBonusPct REAL,
	blockNumber INTEGER NOT NULL
);
CREATE INDEX if not exists pveCompletionActivity on pve_completions(chainId, activityId);

create table if not exists pve_rewards (
	txHash TEXT NOT NULL,
	logIndex INTEGER NOT NULL,
	chainId INTEGER NOT NULL,
	activityId INTEGER NOT NULL,
	itemAddress TEXT NOT NULL,
	amount TEXT NOT NULL,
	equipment INTEGER NOT NULL DEFAULT 0,
	partyLuck INTEGER NOT NULL,
	scavengerBonusPct REAL,
	blockNumber INTEGER NOT NULL,
	UNIQUE(txHash, logIndex)
);
CREATE INDEX if not exists pveRewardItem on pve_rewards(chainId, activityId, itemAddress);
`

const gardeningSchema = `
create table if not exists gardening_quest_rewards (
	txHash TEXT NOT NULL,
	logIndex INTEGER NOT NULL,
	wallet TEXT NOT NULL,
	questType INTEGER NOT NULL,
	source TEXT NOT NULL,
	itemAddress TEXT NOT NULL,
	amount TEXT NOT NULL,
	blockNumber INTEGER NOT NULL,
	UNIQUE(txHash, logIndex)
);
CREATE INDEX if not exists gardeningWallet on gardening_quest_rewards(wallet);
`

const tournamentSchema = `
create table if not exists pvp_tournaments (
	tournamentId INTEGER PRIMARY KEY,
	format TEXT NOT NULL,
	partySize INTEGER NOT NULL,
	restrictions TEXT NOT NULL,
	rewards TEXT,
	hostPlayer TEXT NOT NULL,
	opponentPlayer TEXT,
	winnerPlayer TEXT,
	typeSignature TEXT NOT NULL
);
CREATE INDEX if not exists tournamentSignature on pvp_tournaments(typeSignature);

create table if not exists tournament_placements (
	tournamentId INTEGER NOT NULL,
	player TEXT NOT NULL,
	placement INTEGER NOT NULL,
	UNIQUE(tournamentId, player)
);

create table if not exists hero_tournament_snapshots (
	tournamentId INTEGER NOT NULL,
	heroId INTEGER NOT NULL,
	owner TEXT NOT NULL,
	placement INTEGER NOT NULL,
	mainClass INTEGER NOT NULL,
	subClass INTEGER NOT NULL,
	level INTEGER NOT NULL,
	rarity INTEGER NOT NULL,
	generation INTEGER NOT NULL,
	strength INTEGER NOT NULL,
	agility INTEGER NOT NULL,
	intelligence INTEGER NOT NULL,
	wisdom INTEGER NOT NULL,
	luck INTEGER NOT NULL,
	vitality INTEGER NOT NULL,
	endurance INTEGER NOT NULL,
	dexterity INTEGER NOT NULL,
	active1 INTEGER NOT NULL,
	active2 INTEGER NOT NULL,
	passive1 INTEGER NOT NULL,
	passive2 INTEGER NOT NULL,
	statGenes TEXT,
	summonsRemaining INTEGER NOT NULL,
	combatPower INTEGER NOT NULL,
	UNIQUE(tournamentId, heroId)
);
`

const bargainSchema = `
create table if not exists bargain_hunter_cache (
	summonType TEXT PRIMARY KEY,
	totalHeroes INTEGER NOT NULL,
	totalPairsScored INTEGER NOT NULL,
	tokenPrices TEXT NOT NULL,
	topPairs TEXT NOT NULL,
	computedAt INTEGER NOT NULL
);

create table if not exists token_price_graph (
	token TEXT PRIMARY KEY,
	priceUsd REAL NOT NULL,
	updatedAt INTEGER NOT NULL
);
`

// tavernHeroSchema is assembled at init because the 36 recessive gene
// columns follow the slot order defined by the genes package.
var tavernHeroSchema = func() string {
	var b strings.Builder
	b.WriteString(`
create table if not exists tavern_heroes (
	heroId INTEGER PRIMARY KEY,
	realm TEXT NOT NULL,
	mainClass INTEGER NOT NULL,
	subClass INTEGER NOT NULL,
	profession INTEGER NOT NULL,
	rarity INTEGER NOT NULL,
	level INTEGER NOT NULL,
	generation INTEGER NOT NULL,
	strength INTEGER NOT NULL,
	agility INTEGER NOT NULL,
	intelligence INTEGER NOT NULL,
	wisdom INTEGER NOT NULL,
	luck INTEGER NOT NULL,
	vitality INTEGER NOT NULL,
	endurance INTEGER NOT NULL,
	dexterity INTEGER NOT NULL,
	hp INTEGER NOT NULL,
	mp INTEGER NOT NULL,
	stamina INTEGER NOT NULL,
	active1 INTEGER NOT NULL,
	active2 INTEGER NOT NULL,
	passive1 INTEGER NOT NULL,
	passive2 INTEGER NOT NULL,
	summons INTEGER NOT NULL,
	maxSummons INTEGER NOT NULL,
	stonesUsed INTEGER,
	traitScore INTEGER NOT NULL,
	combatPower INTEGER NOT NULL,
	salePriceWei TEXT NOT NULL,
	priceNative REAL NOT NULL,
	nativeToken TEXT NOT NULL,
	genesStatus TEXT NOT NULL DEFAULT 'pending',
	batchId TEXT NOT NULL,
	indexedAt INTEGER NOT NULL`)
	for _, slot := range genes.SlotNames {
		for r := 1; r <= 3; r++ {
			b.WriteString(",\n\t")
			b.WriteString(geneColumn(slot, r))
			b.WriteString(" INTEGER")
		}
	}
	b.WriteString(`
);
CREATE INDEX if not exists tavernBatch on tavern_heroes(batchId);
CREATE INDEX if not exists tavernGenes on tavern_heroes(genesStatus);
CREATE INDEX if not exists tavernPrice on tavern_heroes(realm, rarity, priceNative);
`)
	return b.String()
}()

func geneColumn(slot string, r int) string {
	return slot + "R" + string(rune('0'+r))
}

func allSchemas() string {
	return checkpointSchema +
		stakerSchema +
		eventSchema +
		pveSchema +
		gardeningSchema +
		tournamentSchema +
		bargainSchema +
		tavernHeroSchema
}
