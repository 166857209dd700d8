// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package dfk holds the chain and game constants shared by all indexer
// families: chain ids, marketplace realms, pool enumeration and the
// per-chain contract registry.
package dfk

import (
	"github.com/ethereum/go-ethereum/common"
)

// ChainID identifies one of the supported EVM chains.
type ChainID uint64

const (
	// ChainDFK is DFK Chain (Crystalvale).
	ChainDFK ChainID = 53935
	// ChainMetis is Metis Andromeda (Sundered Isles).
	ChainMetis ChainID = 1088
	// ChainHarmony is Harmony shard 0 (Serendale legacy).
	ChainHarmony ChainID = 1666600000
)

func (c ChainID) String() string {
	switch c {
	case ChainDFK:
		return "dfk"
	case ChainMetis:
		return "metis"
	case ChainHarmony:
		return "harmony"
	default:
		return "unknown"
	}
}

// Realm tags a marketplace shard.
type Realm string

const (
	RealmCrystalvale   Realm = "cv"
	RealmSunderedIsles Realm = "sd"
)

// Hero id ranges used for realm inference when the listing carries no
// network field. Crystalvale heroes live in [1e12, 2e12), Sundered Isles
// heroes at and above 2e12.
const (
	HeroIDRealmBase = 1_000_000_000_000
	HeroIDRealmStep = 1_000_000_000_000
)

// RealmOfHeroID infers the realm from the raw hero id. The boolean is
// false for ids outside any known realm band.
func RealmOfHeroID(id uint64) (Realm, bool) {
	switch {
	case id >= HeroIDRealmBase && id < HeroIDRealmBase+HeroIDRealmStep:
		return RealmCrystalvale, true
	case id >= 2*HeroIDRealmBase:
		return RealmSunderedIsles, true
	default:
		return "", false
	}
}

// RealmOfNetwork maps the marketplace API network tag to a realm.
func RealmOfNetwork(network string) (Realm, bool) {
	switch network {
	case "met":
		return RealmSunderedIsles, true
	case "dfk", "avax":
		return RealmCrystalvale, true
	default:
		return "", false
	}
}

// PoolCount is the number of liquidity pools in the LP staking contract.
// Pool ids are the fixed enumeration [0, PoolCount).
const PoolCount = 14

// HarmonyGenesisBlock is the first block of interest on Harmony; the
// staking contract did not exist before it.
const HarmonyGenesisBlock = 16_350_000

// Scavenger combat-bonus ids by pet tier. A pet whose combat bonus matches
// one of these grants an additive drop-rate bonus of the mapped percent.
var ScavengerBonusPct = map[uint16]float64{
	ScavengerCommon: 10,
	ScavengerRare:   15,
	ScavengerMythic: 25,
}

const (
	ScavengerCommon uint16 = 130
	ScavengerRare   uint16 = 131
	ScavengerMythic uint16 = 132
)

// LuckRatePerPoint is the per-point drop-rate contribution of party luck
// subtracted when inferring base rates.
const LuckRatePerPoint = 0.0002

// Addresses groups the contract addresses an indexer family needs on one
// chain.
type Addresses struct {
	MasterGardener common.Address // LP staking contract
	QuestCore      common.Address
	QuestReward    common.Address
	HuntCore       common.Address // PvE hunts (DFK) / patrols (Metis)
	HeroCore       common.Address
	PetCore        common.Address
	Profiles       common.Address
	PowerToken     common.Address // CRYSTAL on DFK, JEWEL elsewhere
}

// Registry maps each supported chain to its contract addresses.
var Registry = map[ChainID]Addresses{
	ChainDFK: {
		MasterGardener: common.HexToAddress("0xad2ea7b7e49be15918e4917736e86ff7feea57c6"),
		QuestCore:      common.HexToAddress("0x530fff22987e137e7c8d2adcc4c15eb45b4fa752"),
		QuestReward:    common.HexToAddress("0x04b9da42306b023f3572e106b11d82aad9d32ebb"),
		HuntCore:       common.HexToAddress("0xe259e8386d38467f0e7ffedb69c3c9c935dfaefc"),
		HeroCore:       common.HexToAddress("0xeb9b61b145d6489be575d3603f4a704810e143df"),
		PetCore:        common.HexToAddress("0x1990f87d6bc9d9385917e3eda0a7674411c3cd7f"),
		Profiles:       common.HexToAddress("0xc4cd8c14d40ef389de0a73cf90a4f4b70f102969"),
		PowerToken:     common.HexToAddress("0x04b9da42306b023f3572e106b11d82aad9d32ebb"),
	},
	ChainMetis: {
		HuntCore:   common.HexToAddress("0x6ff019415ee105acf2ac52483a33f5b43eadb8d0"),
		HeroCore:   common.HexToAddress("0xe1d8cef18d4912dc0e1d70efb90b885b79c21f89"),
		PetCore:    common.HexToAddress("0x99317bf19c5d3a8d36fe7fa79e2d23338287b225"),
		PowerToken: common.HexToAddress("0x77f2656d04e158f915bc22f07b779d94c1dc47ff"),
	},
	ChainHarmony: {
		MasterGardener: common.HexToAddress("0xdb30643c71ac9e2122ca0341ed77d09d5f99f924"),
		Profiles:       common.HexToAddress("0xabd4741948374b1f5dd5dd7599ac1f85a34cacdd"),
	},
}

// LootItem is a known reward contract with display metadata. Drops from
// addresses outside this list still index; they just render unnamed.
type LootItem struct {
	Chain   ChainID
	Address common.Address
	Name    string
	Type    string
	Rarity  string
}

// KnownLootItems seeds metadata for the common hunt drops.
var KnownLootItems = []LootItem{
	{ChainDFK, common.HexToAddress("0x576c260513204392f0ec0bc865450872025cb1ca"), "Gold", "currency", "common"},
	{ChainDFK, common.HexToAddress("0x24ea0d436d3c2602fbfefbe6a16bbc304c963d04"), "Gaia's Tears", "material", "common"},
	{ChainDFK, common.HexToAddress("0x75e8d8676d774c9429fbb148b30e304b5542ac3d"), "Shvās Rune", "rune", "rare"},
	{ChainDFK, common.HexToAddress("0x8f655142104478724bbc72664042ea09ebbf7b38"), "Moksha Rune", "rune", "rare"},
}

// PvEActivity names a hunt or patrol id on one chain.
type PvEActivity struct {
	Chain ChainID
	Type  string
	ID    uint64
	Name  string
}

// KnownPvEActivities seeds display names for the launch hunts. Ids
// outside this list register off the chain as they are seen.
var KnownPvEActivities = []PvEActivity{
	{ChainDFK, "hunt", 1, "Mad Boar"},
	{ChainDFK, "hunt", 2, "Bad Motherclucker"},
}
