// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package indexdb

import (
	"database/sql"
	"math/big"
)

// SwapEvent is one raw LP swap, stored append-only. Payload carries the
// decoded event fields as JSON for downstream analytics.
type SwapEvent struct {
	TxHash      string
	LogIndex    uint
	Pair        string
	Sender      string
	Payload     []byte
	BlockNumber uint64
}

// RewardEvent is one harvest mint, stored append-only.
type RewardEvent struct {
	TxHash      string
	LogIndex    uint
	Pid         uint64
	Wallet      string
	Amount      *big.Int
	BlockNumber uint64
}

// InsertSwapEvents appends swaps, skipping duplicates by (txHash,
// logIndex). It returns the number of rows actually written.
func (d *DB) InsertSwapEvents(events []*SwapEvent) (int, error) {
	inserted := 0
	err := d.execInTx(func(tx *sql.Tx) error {
		for _, e := range events {
			res, err := tx.Exec(`INSERT INTO swap_events (txHash, logIndex, pair, sender, payload, blockNumber)
				VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(txHash, logIndex) DO NOTHING`,
				e.TxHash, e.LogIndex, e.Pair, e.Sender, string(e.Payload), e.BlockNumber)
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

// InsertRewardEvents appends harvests, skipping duplicates.
func (d *DB) InsertRewardEvents(events []*RewardEvent) (int, error) {
	inserted := 0
	err := d.execInTx(func(tx *sql.Tx) error {
		for _, e := range events {
			res, err := tx.Exec(`INSERT INTO reward_events (txHash, logIndex, pid, wallet, amount, blockNumber)
				VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(txHash, logIndex) DO NOTHING`,
				e.TxHash, e.LogIndex, e.Pid, e.Wallet, e.Amount.String(), e.BlockNumber)
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

// CountSwapEvents is a test and status helper.
func (d *DB) CountSwapEvents() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM swap_events").Scan(&n)
	return n, err
}

// CountRewardEvents is a test and status helper.
func (d *DB) CountRewardEvents() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM reward_events").Scan(&n)
	return n, err
}
