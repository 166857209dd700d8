// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package indexdb

import (
	"database/sql"
	"math/big"
	"time"
)

// ActivityType is the last staking action seen for a wallet.
type ActivityType string

const (
	ActivityDeposit           ActivityType = "Deposit"
	ActivityWithdraw          ActivityType = "Withdraw"
	ActivityEmergencyWithdraw ActivityType = "EmergencyWithdraw"
)

// Staker is the live LP position of one wallet in one pool. StakedLP is
// the on-chain userInfo.amount re-read at index time, not a running sum.
type Staker struct {
	Pid          uint64
	Wallet       string
	StakedLP     *big.Int
	SummonerName string
	LastActivity StakerActivity
	LastUpdated  time.Time
}

type StakerActivity struct {
	Type        ActivityType
	Amount      *big.Int
	BlockNumber uint64
	TxHash      string
}

// UpsertStaker writes or replaces the (pid, wallet) row.
func (d *DB) UpsertStaker(s *Staker) error {
	var name any
	if s.SummonerName != "" {
		name = s.SummonerName
	}
	_, err := d.db.Exec(`INSERT INTO stakers
		(pid, wallet, stakedLP, summonerName, lastActivityType, lastActivityAmount, lastActivityBlock, lastActivityTx, lastUpdatedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pid, wallet) DO UPDATE SET
			stakedLP = excluded.stakedLP,
			summonerName = COALESCE(excluded.summonerName, stakers.summonerName),
			lastActivityType = excluded.lastActivityType,
			lastActivityAmount = excluded.lastActivityAmount,
			lastActivityBlock = excluded.lastActivityBlock,
			lastActivityTx = excluded.lastActivityTx,
			lastUpdatedAt = excluded.lastUpdatedAt`,
		s.Pid, s.Wallet, s.StakedLP.String(), name,
		string(s.LastActivity.Type), s.LastActivity.Amount.String(),
		s.LastActivity.BlockNumber, s.LastActivity.TxHash, d.now().Unix())
	return err
}

// GetStaker returns the (pid, wallet) row or nil.
func (d *DB) GetStaker(pid uint64, wallet string) (*Staker, error) {
	row := d.db.QueryRow(`SELECT pid, wallet, stakedLP, summonerName, lastActivityType,
		lastActivityAmount, lastActivityBlock, lastActivityTx, lastUpdatedAt
		FROM stakers WHERE pid = ? AND wallet = ?`, pid, wallet)
	var (
		s            Staker
		stakedLP     string
		summonerName sql.NullString
		amount       string
		updatedAt    int64
	)
	err := row.Scan(&s.Pid, &s.Wallet, &stakedLP, &summonerName, &s.LastActivity.Type,
		&amount, &s.LastActivity.BlockNumber, &s.LastActivity.TxHash, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.StakedLP, _ = new(big.Int).SetString(stakedLP, 10)
	s.LastActivity.Amount, _ = new(big.Int).SetString(amount, 10)
	s.SummonerName = summonerName.String
	s.LastUpdated = time.Unix(updatedAt, 0)
	return &s, nil
}

// CountStakers returns the number of wallets tracked for a pool.
func (d *DB) CountStakers(pid uint64) (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM stakers WHERE pid = ?", pid).Scan(&n)
	return n, err
}
