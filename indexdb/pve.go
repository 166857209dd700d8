// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package indexdb

import (
	"database/sql"
	"encoding/json"
	"math/big"

	"github.com/dfklabs/indexd/dfk"
)

// PvECompletion is one victorious activity run, keyed by txHash.
type PvECompletion struct {
	TxHash            string
	ChainID           dfk.ChainID
	ActivityID        uint64
	Player            string
	HeroIDs           []uint64
	PetIDs            []uint64
	PartyLuck         uint64
	ScavengerBonusPct *float64
	BlockNumber       uint64
}

// PvEReward is one minted reward or equipment drop, keyed by
// (txHash, logIndex). Luck and scavenger context are denormalized from
// the completion for inference queries.
type PvEReward struct {
	TxHash            string
	LogIndex          uint
	ChainID           dfk.ChainID
	ActivityID        uint64
	ItemAddress       string
	Amount            *big.Int
	Equipment         bool
	PartyLuck         uint64
	ScavengerBonusPct *float64
	BlockNumber       uint64
}

// InsertPvECompletions appends completions, skipping replayed txs.
func (d *DB) InsertPvECompletions(rows []*PvECompletion) (int, error) {
	inserted := 0
	err := d.execInTx(func(tx *sql.Tx) error {
		for _, c := range rows {
			heroIDs, _ := json.Marshal(c.HeroIDs)
			petIDs, _ := json.Marshal(c.PetIDs)
			var scav any
			if c.ScavengerBonusPct != nil {
				scav = *c.ScavengerBonusPct
			}
			res, err := tx.Exec(`INSERT INTO pve_completions
				(txHash, chainId, activityId, player, heroIds, petIds, partyLuck, scavengerBonusPct, blockNumber)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(txHash) DO NOTHING`,
				c.TxHash, uint64(c.ChainID), c.ActivityID, c.Player, string(heroIDs), string(petIDs),
				c.PartyLuck, scav, c.BlockNumber)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			inserted += int(n)
		}
		return nil
	})
	return inserted, err
}

// InsertPvERewards appends reward rows, skipping duplicates.
func (d *DB) InsertPvERewards(rows []*PvEReward) (int, error) {
	inserted := 0
	err := d.execInTx(func(tx *sql.Tx) error {
		for _, r := range rows {
			var scav any
			if r.ScavengerBonusPct != nil {
				scav = *r.ScavengerBonusPct
			}
			equipment := 0
			if r.Equipment {
				equipment = 1
			}
			res, err := tx.Exec(`INSERT INTO pve_rewards
				(txHash, logIndex, chainId, activityId, itemAddress, amount, equipment, partyLuck, scavengerBonusPct, blockNumber)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(txHash, logIndex) DO NOTHING`,
				r.TxHash, r.LogIndex, uint64(r.ChainID), r.ActivityID, r.ItemAddress, r.Amount.String(),
				equipment, r.PartyLuck, scav, r.BlockNumber)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			inserted += int(n)
		}
		return nil
	})
	return inserted, err
}

// UpsertPvEActivity registers an activity id for a chain. Registrations
// straight off the chain carry no name; they never blank a seeded one.
func (d *DB) UpsertPvEActivity(chainID dfk.ChainID, activityType string, activityID uint64, name string) error {
	_, err := d.db.Exec(`INSERT INTO pve_activities (chainId, activityType, activityId, name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chainId, activityType, activityId) DO UPDATE SET name = excluded.name
		WHERE excluded.name != ''`,
		uint64(chainID), activityType, activityID, name)
	return err
}

// UpsertPvELootItem backfills known loot-item metadata.
func (d *DB) UpsertPvELootItem(chainID dfk.ChainID, itemAddress, name, itemType, rarity string) error {
	_, err := d.db.Exec(`INSERT INTO pve_loot_items (chainId, itemAddress, name, itemType, rarity)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chainId, itemAddress) DO UPDATE SET
			name = excluded.name, itemType = excluded.itemType, rarity = excluded.rarity`,
		uint64(chainID), itemAddress, name, itemType, rarity)
	return err
}

// PvEAggregates feeds the drop-rate inference: reward and completion
// counts with luck and scavenger averages, optionally filtered to a
// single scavenger tier.
type PvEAggregates struct {
	TotalDrops       int
	TotalCompletions int
	AvgPartyLuck     float64
	AvgScavengerPct  float64
}

// PvEAggregate computes the aggregates for (activityID, itemAddress).
// NULL scavenger bonuses average as zero.
func (d *DB) PvEAggregate(chainID dfk.ChainID, activityID uint64, itemAddress string, scavengerPctFilter *float64) (*PvEAggregates, error) {
	var agg PvEAggregates

	rewardQuery := `SELECT COUNT(*), COALESCE(AVG(partyLuck), 0), COALESCE(AVG(COALESCE(scavengerBonusPct, 0)), 0)
		FROM pve_rewards WHERE chainId = ? AND activityId = ? AND itemAddress = ?`
	rewardArgs := []any{uint64(chainID), activityID, itemAddress}
	completionQuery := `SELECT COUNT(*) FROM pve_completions WHERE chainId = ? AND activityId = ?`
	completionArgs := []any{uint64(chainID), activityID}
	if scavengerPctFilter != nil {
		rewardQuery += " AND COALESCE(scavengerBonusPct, 0) = ?"
		rewardArgs = append(rewardArgs, *scavengerPctFilter)
		completionQuery += " AND COALESCE(scavengerBonusPct, 0) = ?"
		completionArgs = append(completionArgs, *scavengerPctFilter)
	}

	if err := d.db.QueryRow(rewardQuery, rewardArgs...).
		Scan(&agg.TotalDrops, &agg.AvgPartyLuck, &agg.AvgScavengerPct); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(completionQuery, completionArgs...).Scan(&agg.TotalCompletions); err != nil {
		return nil, err
	}
	return &agg, nil
}

// PvEActivityRow is one registered activity.
type PvEActivityRow struct {
	ActivityType string
	ActivityID   uint64
	Name         string
}

// ListPvEActivities lists the registered activities for a chain.
func (d *DB) ListPvEActivities(chainID dfk.ChainID) ([]*PvEActivityRow, error) {
	rows, err := d.db.Query(`SELECT activityType, activityId, COALESCE(name, '')
		FROM pve_activities WHERE chainId = ? ORDER BY activityType, activityId`, uint64(chainID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*PvEActivityRow
	for rows.Next() {
		r := new(PvEActivityRow)
		if err := rows.Scan(&r.ActivityType, &r.ActivityID, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListPvELootItems lists the known items for a chain.
func (d *DB) ListPvELootItems(chainID dfk.ChainID) (map[string]string, error) {
	rows, err := d.db.Query("SELECT itemAddress, COALESCE(name, '') FROM pve_loot_items WHERE chainId = ?", uint64(chainID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var addr, name string
		if err := rows.Scan(&addr, &name); err != nil {
			return nil, err
		}
		out[addr] = name
	}
	return out, rows.Err()
}
