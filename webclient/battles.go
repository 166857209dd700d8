// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package webclient

import (
	"context"
	"encoding/json"
	"net/http"
)

// BattleHero is a hero's frozen state inside a battle record.
type BattleHero struct {
	ID         uint64 `json:"id,string"`
	Owner      string `json:"owner"`
	MainClass  int    `json:"mainClass"`
	SubClass   int    `json:"subClass"`
	Level      int    `json:"level"`
	Rarity     int    `json:"rarity"`
	Generation int    `json:"generation"`

	Strength     int `json:"strength"`
	Agility      int `json:"agility"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
	Luck         int `json:"luck"`
	Vitality     int `json:"vitality"`
	Endurance    int `json:"endurance"`
	Dexterity    int `json:"dexterity"`

	Active1  int `json:"active1"`
	Active2  int `json:"active2"`
	Passive1 int `json:"passive1"`
	Passive2 int `json:"passive2"`

	StatGenes        string `json:"statGenes"`
	SummonsRemaining int    `json:"summonsRemaining"`
}

// Battle is one finished PvP tournament with its restriction set and
// both final teams.
type Battle struct {
	ID         uint64 `json:"id,string"`
	Format     string `json:"format"`
	PartyCount int    `json:"partyCount"`

	MinLevel             int    `json:"minLevel"`
	MaxLevel             int    `json:"maxLevel"`
	MinRarity            int    `json:"minRarity"`
	MaxRarity            int    `json:"maxRarity"`
	UniqueHeroes         bool   `json:"uniqueHeroes"`
	NoTripleClass        bool   `json:"noTripleClass"`
	ExcludedClassMask    uint32 `json:"excludedClassMask"`
	ConsolationClassMask uint32 `json:"consolationClassMask"`
	OriginRealmMask      uint32 `json:"originRealmMask"`
	IncludedClass        *int   `json:"includedClass"`
	MinStat              int    `json:"minStat"`
	MaxStat              int    `json:"maxStat"`
	MinTeamScore         int    `json:"minTeamScore"`
	MaxTeamScore         int    `json:"maxTeamScore"`

	Rewards json.RawMessage `json:"rewards"`

	HostPlayer     string `json:"hostPlayer"`
	OpponentPlayer string `json:"opponentPlayer"`
	WinnerPlayer   string `json:"winnerPlayer"`

	WinnerHeroes   []*BattleHero `json:"winnerHeroes"`
	FinalistHeroes []*BattleHero `json:"finalistHeroes"`
}

// BattlesClient pages through finished tournaments, newest first.
type BattlesClient struct {
	*Client
}

func NewBattles(url string, hc *http.Client) *BattlesClient {
	return &BattlesClient{newClient("battles", url, hc)}
}

const battlesQuery = `query($first: Int!, $skip: Int!) {
	battles(first: $first, skip: $skip, orderBy: id, orderDirection: desc) {
		id format partyCount
		minLevel maxLevel minRarity maxRarity
		uniqueHeroes noTripleClass
		excludedClassMask consolationClassMask originRealmMask
		includedClass minStat maxStat minTeamScore maxTeamScore
		rewards hostPlayer opponentPlayer winnerPlayer
		winnerHeroes { id owner mainClass subClass level rarity generation
			strength agility intelligence wisdom luck vitality endurance dexterity
			active1 active2 passive1 passive2 statGenes summonsRemaining }
		finalistHeroes { id owner mainClass subClass level rarity generation
			strength agility intelligence wisdom luck vitality endurance dexterity
			active1 active2 passive1 passive2 statGenes summonsRemaining }
	}
}`

// FetchBattles returns one page; an empty slice ends pagination.
func (b *BattlesClient) FetchBattles(ctx context.Context, first, skip int) ([]*Battle, error) {
	var out struct {
		Battles []*Battle `json:"battles"`
	}
	err := b.queryGraphQL(ctx, battlesQuery,
		map[string]any{"first": first, "skip": skip}, &out)
	if err != nil {
		return nil, err
	}
	return out.Battles, nil
}
