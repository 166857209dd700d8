// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package indexdb

import (
	"database/sql"
	"encoding/json"
	"time"
)

// BargainCache is the published top-K pair cache for one summon type.
type BargainCache struct {
	SummonType       string
	TotalHeroes      int
	TotalPairsScored int
	TokenPrices      map[string]float64
	TopPairs         json.RawMessage
	ComputedAt       time.Time
}

// UpsertBargainCache replaces the cache row for a summon type.
func (d *DB) UpsertBargainCache(c *BargainCache) error {
	prices, err := json.Marshal(c.TokenPrices)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(`INSERT INTO bargain_hunter_cache
		(summonType, totalHeroes, totalPairsScored, tokenPrices, topPairs, computedAt)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(summonType) DO UPDATE SET
			totalHeroes = excluded.totalHeroes,
			totalPairsScored = excluded.totalPairsScored,
			tokenPrices = excluded.tokenPrices,
			topPairs = excluded.topPairs,
			computedAt = excluded.computedAt`,
		c.SummonType, c.TotalHeroes, c.TotalPairsScored, string(prices), string(c.TopPairs), d.now().Unix())
	return err
}

// GetBargainCache returns the cache for a summon type, or nil.
func (d *DB) GetBargainCache(summonType string) (*BargainCache, error) {
	row := d.db.QueryRow(`SELECT summonType, totalHeroes, totalPairsScored, tokenPrices, topPairs, computedAt
		FROM bargain_hunter_cache WHERE summonType = ?`, summonType)
	var (
		c          BargainCache
		prices     string
		topPairs   string
		computedAt int64
	)
	err := row.Scan(&c.SummonType, &c.TotalHeroes, &c.TotalPairsScored, &prices, &topPairs, &computedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(prices), &c.TokenPrices); err != nil {
		return nil, err
	}
	c.TopPairs = json.RawMessage(topPairs)
	c.ComputedAt = time.Unix(computedAt, 0)
	return &c, nil
}

// SetTokenPrice updates the USD price of a token symbol.
func (d *DB) SetTokenPrice(token string, priceUsd float64) error {
	_, err := d.db.Exec(`INSERT INTO token_price_graph (token, priceUsd, updatedAt) VALUES (?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET priceUsd = excluded.priceUsd, updatedAt = excluded.updatedAt`,
		token, priceUsd, d.now().Unix())
	return err
}

// GetTokenPrice returns the USD price of a token symbol.
func (d *DB) GetTokenPrice(token string) (float64, error) {
	var price float64
	err := d.db.QueryRow("SELECT priceUsd FROM token_price_graph WHERE token = ?", token).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return price, err
}
