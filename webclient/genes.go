// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package webclient

import (
	"context"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
)

// GenesClient fetches raw gene integers for single heroes.
type GenesClient struct {
	*Client
}

func NewGenes(url string, hc *http.Client) *GenesClient {
	return &GenesClient{newClient("genes", url, hc)}
}

const heroGenesQuery = `query($heroId: ID!) {
	hero(id: $heroId) {
		statGenes
		visualGenes
	}
}`

// HeroGenes holds the two raw gene integers as decimal strings.
type HeroGenes struct {
	StatGenes   string `json:"statGenes"`
	VisualGenes string `json:"visualGenes"`
}

// FetchHeroGenes returns the hero's genes, or an error when the hero is
// unknown to the API.
func (g *GenesClient) FetchHeroGenes(ctx context.Context, heroID uint64) (*HeroGenes, error) {
	var out struct {
		Hero *HeroGenes `json:"hero"`
	}
	err := g.queryGraphQL(ctx, heroGenesQuery,
		map[string]any{"heroId": strconv.FormatUint(heroID, 10)}, &out)
	if err != nil {
		return nil, err
	}
	if out.Hero == nil {
		return nil, errors.Errorf("hero %d not found", heroID)
	}
	return out.Hero, nil
}
