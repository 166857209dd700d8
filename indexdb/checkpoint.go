// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package indexdb

import (
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Status of a checkpoint row.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Checkpoint is the persistent progress row of one worker. A nil RangeEnd
// means the worker tracks the chain head.
type Checkpoint struct {
	IndexerName        string
	IndexerType        string
	Scope              string
	LPToken            string
	RangeStart         uint64
	RangeEnd           *uint64
	LastIndexedBlock   uint64
	TotalEventsIndexed uint64
	Status             Status
	LastError          string
	UpdatedAt          time.Time
}

// TargetBlock resolves the effective end of the assigned range against
// the current chain head.
func (c *Checkpoint) TargetBlock(head uint64) uint64 {
	if c.RangeEnd != nil {
		return *c.RangeEnd
	}
	return head
}

// Remaining is the number of unindexed blocks against head.
func (c *Checkpoint) Remaining(head uint64) uint64 {
	target := c.TargetBlock(head)
	if c.LastIndexedBlock >= target {
		return 0
	}
	return target - c.LastIndexedBlock
}

// CheckpointPatch is a partial update; nil fields are left untouched.
// AddEvents accumulates onto the running total rather than replacing it.
type CheckpointPatch struct {
	LastIndexedBlock *uint64
	AddEvents        *uint64
	Status           *Status
	LastError        *string
}

// GetCheckpoint returns the row for name, or nil when absent.
func (d *DB) GetCheckpoint(name string) (*Checkpoint, error) {
	stmt, err := d.stmts.Prepare(`SELECT indexerName, indexerType, scope, lpToken, rangeStart, rangeEnd,
		lastIndexedBlock, totalEventsIndexed, status, lastError, updatedAt FROM checkpoints WHERE indexerName = ?`)
	if err != nil {
		return nil, err
	}
	return scanCheckpoint(stmt.QueryRow(name))
}

func scanCheckpoint(row *sql.Row) (*Checkpoint, error) {
	var (
		c         Checkpoint
		lpToken   sql.NullString
		rangeEnd  sql.NullInt64
		lastError sql.NullString
		updatedAt int64
	)
	err := row.Scan(&c.IndexerName, &c.IndexerType, &c.Scope, &lpToken, &c.RangeStart, &rangeEnd,
		&c.LastIndexedBlock, &c.TotalEventsIndexed, &c.Status, &lastError, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.LPToken = lpToken.String
	if rangeEnd.Valid {
		end := uint64(rangeEnd.Int64)
		c.RangeEnd = &end
	}
	c.LastError = lastError.String
	c.UpdatedAt = time.Unix(updatedAt, 0)
	return &c, nil
}

// InitCheckpoint inserts the row iff missing and returns the stored row.
func (d *DB) InitCheckpoint(name, indexerType, scope string, rangeStart uint64, rangeEnd *uint64) (*Checkpoint, error) {
	var end any
	if rangeEnd != nil {
		end = int64(*rangeEnd)
	}
	_, err := d.db.Exec(`INSERT INTO checkpoints
		(indexerName, indexerType, scope, rangeStart, rangeEnd, lastIndexedBlock, status, updatedAt)
		VALUES (?, ?, ?, ?, ?, ?, 'idle', ?)
		ON CONFLICT(indexerName) DO NOTHING`,
		name, indexerType, scope, rangeStart, end, rangeStart, d.now().Unix())
	if err != nil {
		return nil, err
	}
	return d.GetCheckpoint(name)
}

// SetCheckpointLPToken stamps the pool's pair address on the row.
func (d *DB) SetCheckpointLPToken(name, lpToken string) error {
	res, err := d.db.Exec("UPDATE checkpoints SET lpToken = ?, updatedAt = ? WHERE indexerName = ?",
		lpToken, d.now().Unix(), name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.WithMessage(ErrNotFound, "checkpoint "+name)
	}
	return nil
}

// UpdateCheckpoint applies a partial update and bumps updatedAt.
func (d *DB) UpdateCheckpoint(name string, patch CheckpointPatch) error {
	sets := []string{"updatedAt = ?"}
	args := []any{d.now().Unix()}
	if patch.LastIndexedBlock != nil {
		sets = append(sets, "lastIndexedBlock = ?")
		args = append(args, *patch.LastIndexedBlock)
	}
	if patch.AddEvents != nil {
		sets = append(sets, "totalEventsIndexed = totalEventsIndexed + ?")
		args = append(args, *patch.AddEvents)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.LastError != nil {
		sets = append(sets, "lastError = ?")
		if *patch.LastError == "" {
			args = append(args, nil)
		} else {
			args = append(args, *patch.LastError)
		}
	}
	args = append(args, name)
	res, err := d.db.Exec("UPDATE checkpoints SET "+strings.Join(sets, ", ")+" WHERE indexerName = ?", args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.WithMessage(ErrNotFound, "checkpoint "+name)
	}
	return nil
}

// ShrinkRangeEnd trims the donor's range during a steal. It refuses to
// shrink below the blocks already indexed.
func (d *DB) ShrinkRangeEnd(name string, newEnd uint64) error {
	res, err := d.db.Exec(`UPDATE checkpoints SET rangeEnd = ?, updatedAt = ?
		WHERE indexerName = ? AND lastIndexedBlock <= ?`,
		newEnd, d.now().Unix(), name, newEnd)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.WithMessage(ErrNotFound, "shrink "+name)
	}
	return nil
}

// ReassignRange points the thief at its stolen range. lastIndexedBlock
// restarts at the new rangeStart and status returns to idle.
func (d *DB) ReassignRange(name string, start uint64, end *uint64) error {
	var endArg any
	if end != nil {
		endArg = int64(*end)
	}
	res, err := d.db.Exec(`UPDATE checkpoints SET rangeStart = ?, rangeEnd = ?,
		lastIndexedBlock = ?, status = 'idle', updatedAt = ? WHERE indexerName = ?`,
		start, endArg, start, d.now().Unix(), name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.WithMessage(ErrNotFound, "reassign "+name)
	}
	return nil
}

// DeleteCheckpoint removes the row. This is the only legal reset.
func (d *DB) DeleteCheckpoint(name string) error {
	_, err := d.db.Exec("DELETE FROM checkpoints WHERE indexerName = ?", name)
	return err
}

// ListCheckpoints returns all rows whose name starts with prefix, in name
// order. An empty prefix lists everything. Matching is by raw prefix, not
// LIKE: worker names contain underscores, which LIKE treats as wildcards.
func (d *DB) ListCheckpoints(prefix string) ([]*Checkpoint, error) {
	rows, err := d.db.Query(`SELECT indexerName, indexerType, scope, lpToken, rangeStart, rangeEnd,
		lastIndexedBlock, totalEventsIndexed, status, lastError, updatedAt
		FROM checkpoints WHERE substr(indexerName, 1, ?) = ? ORDER BY indexerName`, len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCheckpoints(rows)
}

// ScopeCheckpoints returns the rows of one worker pool, in name order.
// Exact match on the scope column: one pool's scope can be a prefix of
// another's (pool1 vs pool10), so prefix matching is not safe here.
func (d *DB) ScopeCheckpoints(scope string) ([]*Checkpoint, error) {
	rows, err := d.db.Query(`SELECT indexerName, indexerType, scope, lpToken, rangeStart, rangeEnd,
		lastIndexedBlock, totalEventsIndexed, status, lastError, updatedAt
		FROM checkpoints WHERE scope = ? ORDER BY indexerName`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCheckpoints(rows)
}

func scanCheckpoints(rows *sql.Rows) ([]*Checkpoint, error) {
	var out []*Checkpoint
	for rows.Next() {
		var (
			c         Checkpoint
			lpToken   sql.NullString
			rangeEnd  sql.NullInt64
			lastError sql.NullString
			updatedAt int64
		)
		if err := rows.Scan(&c.IndexerName, &c.IndexerType, &c.Scope, &lpToken, &c.RangeStart, &rangeEnd,
			&c.LastIndexedBlock, &c.TotalEventsIndexed, &c.Status, &lastError, &updatedAt); err != nil {
			return nil, err
		}
		c.LPToken = lpToken.String
		if rangeEnd.Valid {
			end := uint64(rangeEnd.Int64)
			c.RangeEnd = &end
		}
		c.LastError = lastError.String
		c.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, &c)
	}
	return out, rows.Err()
}
