// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package webclient

import (
	"context"
	"net/http"
)

// Listing is one hero for sale as the marketplace API returns it.
// SalePrice stays a decimal wei string until normalisation.
type Listing struct {
	ID         uint64 `json:"id"`
	Network    string `json:"network"`
	Rarity     int    `json:"rarity"`
	Generation int    `json:"generation"`
	MainClass  int    `json:"mainClass"`
	SubClass   int    `json:"subClass"`
	Profession int    `json:"profession"`
	Level      int    `json:"level"`

	Strength     int `json:"strength"`
	Agility      int `json:"agility"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
	Luck         int `json:"luck"`
	Vitality     int `json:"vitality"`
	Endurance    int `json:"endurance"`
	Dexterity    int `json:"dexterity"`
	HP           int `json:"hp"`
	MP           int `json:"mp"`
	Stamina      int `json:"stamina"`

	Active1  int `json:"active1"`
	Active2  int `json:"active2"`
	Passive1 int `json:"passive1"`
	Passive2 int `json:"passive2"`

	Summons     int    `json:"summons"`
	MaxSummons  int    `json:"maxSummons"`
	SummonStone string `json:"summonStone"` // contract address, empty or zero for none

	SalePrice string `json:"salePrice"`
}

// MarketplaceClient pages through the hero sale listings.
type MarketplaceClient struct {
	*Client
}

func NewMarketplace(url string, hc *http.Client) *MarketplaceClient {
	return &MarketplaceClient{newClient("marketplace", url, hc)}
}

type marketplacePage struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// FetchPage returns one window of listings; an empty slice means the
// window is past the end.
func (m *MarketplaceClient) FetchPage(ctx context.Context, limit, offset int) ([]*Listing, error) {
	var out []*Listing
	if err := m.postJSON(ctx, marketplacePage{Limit: limit, Offset: offset}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
