// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package fleet runs pools of range workers: the per-worker controller,
// the work-steal arbiter that rebalances uneven ranges, and the pool
// supervisor with its RPC failsafe.
package fleet

import (
	"context"

	"github.com/pkg/errors"

	"github.com/dfklabs/indexd/chainrpc"
	"github.com/dfklabs/indexd/co"
	"github.com/dfklabs/indexd/dfk"
	"github.com/dfklabs/indexd/indexdb"
	"github.com/dfklabs/indexd/log"
	"github.com/dfklabs/indexd/progress"
	"github.com/dfklabs/indexd/scan"
)

var logger = log.WithContext("pkg", "fleet")

// Batch sizes per family. PvE batches stay smaller because each log
// triggers archive view calls.
const (
	BatchSizeDefault = 200_000
	BatchSizePvE     = 100_000
)

// WorkerSpec names one worker of a pool.
type WorkerSpec struct {
	Name      string
	Scope     string
	WorkerID  int
	Chain     dfk.ChainID
	BatchSize uint64
	Source    scan.Source
}

// Controller drives a single worker run: lease, one batch, steal on
// completion. Re-entrant calls for the same worker name return
// ErrAlreadyRunning without side effects.
type Controller struct {
	store   *indexdb.DB
	pool    *chainrpc.Pool
	scanner *scan.Scanner
	tracker *progress.Tracker
	leases  *co.LeaseMap
	arbiter *Arbiter
}

func NewController(store *indexdb.DB, pool *chainrpc.Pool, scanner *scan.Scanner,
	tracker *progress.Tracker, leases *co.LeaseMap, arbiter *Arbiter) *Controller {
	return &Controller{
		store:   store,
		pool:    pool,
		scanner: scanner,
		tracker: tracker,
		leases:  leases,
		arbiter: arbiter,
	}
}

// RunOnce performs one wake of the worker: read checkpoint and head, run
// at most one batch, then consult the arbiter if the assigned range is
// done.
func (c *Controller) RunOnce(ctx context.Context, w WorkerSpec) error {
	release, err := c.leases.Acquire(w.Name)
	if err != nil {
		return err
	}
	defer release()

	cp, err := c.store.GetCheckpoint(w.Name)
	if err != nil {
		return err
	}
	if cp == nil {
		return errors.Errorf("checkpoint %q not initialized", w.Name)
	}

	head, err := c.pool.HeadBlock(ctx, w.Chain)
	if err != nil {
		status := indexdb.StatusError
		msg := err.Error()
		if uerr := c.store.UpdateCheckpoint(w.Name, indexdb.CheckpointPatch{
			Status: &status, LastError: &msg,
		}); uerr != nil {
			logger.Error("failed to record head probe error", "worker", w.Name, "err", uerr)
		}
		return err
	}

	target := cp.TargetBlock(head)
	if cp.LastIndexedBlock >= target {
		if cp.RangeEnd != nil {
			if cp.Status != indexdb.StatusComplete {
				status := indexdb.StatusComplete
				if err := c.store.UpdateCheckpoint(w.Name, indexdb.CheckpointPatch{Status: &status}); err != nil {
					return err
				}
			}
			c.steal(ctx, w, head)
		}
		return nil
	}

	end := cp.LastIndexedBlock + w.BatchSize
	if end > target {
		end = target
	}

	status := indexdb.StatusRunning
	if err := c.store.UpdateCheckpoint(w.Name, indexdb.CheckpointPatch{Status: &status}); err != nil {
		return err
	}
	c.tracker.Begin(w.Scope, w.WorkerID, cp.RangeStart, target, cp.LastIndexedBlock, target)

	res, err := c.scanner.Run(ctx, w.Source, scan.Batch{
		Name:     w.Name,
		Scope:    w.Scope,
		WorkerID: w.WorkerID,
		From:     cp.LastIndexedBlock,
		To:       end,
		RangeEnd: cp.RangeEnd,
	})
	if err != nil {
		c.tracker.Fail(w.Scope, w.WorkerID, err.Error())
		return err
	}
	c.tracker.Finish(w.Scope, w.WorkerID, res.Complete)

	if res.Complete {
		c.steal(ctx, w, head)
	}
	return nil
}

// steal asks the arbiter for leftover work once this worker's own range
// is exhausted. A granted steal takes effect on the next wake.
func (c *Controller) steal(_ context.Context, w WorkerSpec, head uint64) {
	st, err := c.arbiter.TrySteal(w.Name, w.Scope, head)
	if err != nil {
		logger.Warn("steal attempt failed", "worker", w.Name, "err", err)
		return
	}
	if st == nil {
		return
	}
	logger.Info("stole range from sibling",
		"thief", w.Name, "donor", st.Donor,
		"from", st.ThiefStart, "to", st.ThiefEnd)
}
