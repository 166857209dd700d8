// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package indexdb

import (
	"database/sql"
	"math/big"
)

// GardeningSource tags how the quest type was resolved.
type GardeningSource string

const (
	SourceManualQuest GardeningSource = "manual_quest"
	SourceExpedition  GardeningSource = "expedition"
)

// GardeningReward is one RewardMinted from a gardening quest.
type GardeningReward struct {
	TxHash      string
	LogIndex    uint
	Wallet      string
	QuestType   uint8
	Source      GardeningSource
	ItemAddress string
	Amount      *big.Int
	BlockNumber uint64
}

// InsertGardeningRewards appends rows, skipping duplicates.
func (d *DB) InsertGardeningRewards(rows []*GardeningReward) (int, error) {
	inserted := 0
	err := d.execInTx(func(tx *sql.Tx) error {
		for _, r := range rows {
			res, err := tx.Exec(`INSERT INTO gardening_quest_rewards
				(txHash, logIndex, wallet, questType, source, itemAddress, amount, blockNumber)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(txHash, logIndex) DO NOTHING`,
				r.TxHash, r.LogIndex, r.Wallet, r.QuestType, string(r.Source),
				r.ItemAddress, r.Amount.String(), r.BlockNumber)
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

// CountGardeningRewards is a test and status helper.
func (d *DB) CountGardeningRewards() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM gardening_quest_rewards").Scan(&n)
	return n, err
}
