// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package indexdb owns the relational store behind all indexer families:
// checkpoints, staker balances, append-only event tables, marketplace hero
// snapshots, tournament records and the bargain cache. It is built on
// sqlite via database/sql; duplicate rows are detected through the
// driver's typed constraint errors, never by matching error text.
package indexdb

import (
	"database/sql"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// ErrDuplicate is returned (or swallowed at insert sites) when a unique
// key already holds a row.
var ErrDuplicate = errors.New("duplicate row")

// ErrNotFound is returned by point lookups that match nothing.
var ErrNotFound = errors.New("not found")

// DB wraps the sqlite handle and the prepared-statement cache.
type DB struct {
	path  string
	db    *sql.DB
	stmts *stmtCache
	now   func() time.Time
}

// New creates or opens the index db at the given path.
func New(path string) (indexDB *DB, err error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	defer func() {
		if indexDB == nil {
			db.Close()
		}
	}()
	if _, err := db.Exec(allSchemas()); err != nil {
		return nil, errors.WithMessage(err, "create schema")
	}
	return &DB{
		path:  path,
		db:    db,
		stmts: newStmtCache(db),
		now:   time.Now,
	}, nil
}

// NewMem creates an index db in ram. Each call gets a private database.
func NewMem() (*DB, error) {
	return New(":memory:")
}

// Close closes the db.
func (d *DB) Close() {
	d.stmts.Clear()
	d.db.Close()
}

// Raw exposes the underlying handle for status queries and tests.
func (d *DB) Raw() *sql.DB { return d.db }

func (d *DB) Path() string {
	return d.path
}

// execInTx runs proc inside one transaction.
func (d *DB) execInTx(proc func(*sql.Tx) error) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	if err := proc(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// IsDuplicate classifies the driver error for a unique-key clash. This is
// the only sanctioned way to detect replayed rows; matching error text is
// forbidden.
func IsDuplicate(err error) bool {
	if errors.Is(err, ErrDuplicate) {
		return true
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrConstraint &&
			(serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
				serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	return false
}
