// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package bargains serves the published bargain-pair caches.
package bargains

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/dfklabs/indexd/api/utils"
	"github.com/dfklabs/indexd/indexdb"
)

type Bargains struct {
	store *indexdb.DB
}

func New(store *indexdb.DB) *Bargains {
	return &Bargains{store: store}
}

// cacheView flattens the stored cache for the wire.
type cacheView struct {
	SummonType       string             `json:"summonType"`
	TotalHeroes      int                `json:"totalHeroes"`
	TotalPairsScored int                `json:"totalPairsScored"`
	TokenPrices      map[string]float64 `json:"tokenPrices"`
	TopPairs         json.RawMessage    `json:"topPairs"`
	ComputedAt       time.Time          `json:"computedAt"`
}

func (b *Bargains) handleGetCache(w http.ResponseWriter, req *http.Request) error {
	summonType := mux.Vars(req)["summonType"]
	if summonType != "regular" && summonType != "dark" {
		return utils.BadRequest(errors.Errorf("summon type %q, want regular or dark", summonType))
	}
	cache, err := b.store.GetBargainCache(summonType)
	if err != nil {
		return err
	}
	if cache == nil {
		return utils.NotFound(errors.Errorf("no %s bargain cache computed yet", summonType))
	}
	return utils.WriteJSON(w, cacheView{
		SummonType:       cache.SummonType,
		TotalHeroes:      cache.TotalHeroes,
		TotalPairsScored: cache.TotalPairsScored,
		TokenPrices:      cache.TokenPrices,
		TopPairs:         cache.TopPairs,
		ComputedAt:       cache.ComputedAt,
	})
}

func (b *Bargains) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/{summonType}").
		Methods(http.MethodGet).
		Name("GET /bargains/{summonType}").
		HandlerFunc(utils.WrapHandlerFunc(b.handleGetCache))
}
