// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package fleet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dfklabs/indexd/chainrpc"
	"github.com/dfklabs/indexd/co"
	"github.com/dfklabs/indexd/dfk"
	"github.com/dfklabs/indexd/indexdb"
	"github.com/dfklabs/indexd/metrics"
	"github.com/dfklabs/indexd/progress"
	"github.com/dfklabs/indexd/scan"
	"github.com/dfklabs/indexd/sched"
)

// ErrRPCFailed marks a pool start that never got a chain head.
var ErrRPCFailed = errors.New("rpc_failed")

// Minimum worker counts the failsafe will not go below.
const (
	MinWorkersDefault = 3
	MinWorkersPvE     = 1
)

const (
	headProbeBackoff = 2 * time.Second
	failsafeWait     = 3 * time.Second
	// PoolStagger spaces pool starts so 14 pools do not slam the RPC at
	// once.
	PoolStagger = time.Second
)

var metricFailsafe = metrics.LazyLoad(func() metrics.CountVecMeter {
	return metrics.CounterVec("fleet_failsafe_downsizes_total", []string{"scope"})
})

// PoolSpec configures one worker pool over a contiguous block range.
type PoolSpec struct {
	Family     string
	Scope      string
	Chain      dfk.ChainID
	Workers    int
	MinWorkers int
	BatchSize  uint64
	Interval   time.Duration
	RangeStart uint64
	LPToken    string // pair address, recorded on the checkpoint rows
	Source     scan.Source
}

// WorkerName derives the checkpoint row name of worker i (1-based).
func WorkerName(scope string, i int) string {
	return fmt.Sprintf("%s-w%d", scope, i)
}

// Supervisor starts and stops worker pools, downsizing on persistent RPC
// failures.
type Supervisor struct {
	store      *indexdb.DB
	pool       *chainrpc.Pool
	controller *Controller
	scheduler  *sched.Scheduler
	leases     *co.LeaseMap
	tracker    *progress.Tracker

	mu     sync.Mutex
	active map[string]int

	probeBackoff time.Duration
	downsizeWait time.Duration
}

func NewSupervisor(store *indexdb.DB, pool *chainrpc.Pool, controller *Controller,
	scheduler *sched.Scheduler, leases *co.LeaseMap, tracker *progress.Tracker) *Supervisor {
	return &Supervisor{
		store:        store,
		pool:         pool,
		controller:   controller,
		scheduler:    scheduler,
		leases:       leases,
		tracker:      tracker,
		active:       make(map[string]int),
		probeBackoff: headProbeBackoff,
		downsizeWait: failsafeWait,
	}
}

// probeHead reads the chain head with a single retry.
func (s *Supervisor) probeHead(ctx context.Context, chain dfk.ChainID) (uint64, error) {
	head, err := s.pool.HeadBlock(ctx, chain)
	if err == nil {
		return head, nil
	}
	logger.Warn("head probe failed, retrying once", "chain", chain, "err", err)
	select {
	case <-time.After(s.probeBackoff):
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	head, err = s.pool.HeadBlock(ctx, chain)
	if err != nil {
		return 0, errors.WithMessage(ErrRPCFailed, err.Error())
	}
	return head, nil
}

type workerRange struct {
	start uint64
	end   *uint64
}

// partition divides [start, head] into n ranges. The last worker tails
// the head with an open range end.
func partition(start, head uint64, n int) []workerRange {
	if head < start {
		head = start
	}
	total := head - start + 1
	size := total / uint64(n)
	if size == 0 {
		size = 1
	}
	out := make([]workerRange, n)
	for i := 0; i < n; i++ {
		s := start + uint64(i)*size
		if s > head {
			s = head
		}
		out[i] = workerRange{start: s}
		if i < n-1 {
			e := s + size - 1
			if e > head {
				e = head
			}
			out[i].end = &e
		}
	}
	return out
}

// StartPool launches the pool, downsizing by one worker after every two
// consecutive launch failures until MinWorkers is reached.
func (s *Supervisor) StartPool(ctx context.Context, spec PoolSpec) error {
	if spec.Workers < 1 {
		return errors.New("pool needs at least one worker")
	}
	if spec.MinWorkers < 1 {
		spec.MinWorkers = 1
	}
	n := spec.Workers
	consecutive := 0
	for {
		err := s.launch(ctx, spec, n)
		if err == nil {
			s.mu.Lock()
			s.active[spec.Scope] = n
			s.mu.Unlock()
			logger.Info("pool started", "scope", spec.Scope, "workers", n)
			return nil
		}
		consecutive++
		logger.Warn("pool launch failed", "scope", spec.Scope, "workers", n,
			"consecutiveFailures", consecutive, "err", err)
		if consecutive < 2 {
			continue
		}
		if n <= spec.MinWorkers {
			return err
		}
		s.StopPool(spec.Scope)
		metricFailsafe().AddWithLabel(1, map[string]string{"scope": spec.Scope})
		select {
		case <-time.After(s.downsizeWait):
		case <-ctx.Done():
			return ctx.Err()
		}
		n--
		consecutive = 0
	}
}

func (s *Supervisor) launch(ctx context.Context, spec PoolSpec, n int) error {
	head, err := s.probeHead(ctx, spec.Chain)
	if err != nil {
		return err
	}

	// drop stale triggers from a previous (larger) launch
	s.scheduler.StopPrefix(spec.Scope + "-w")

	interval := spec.Interval
	if interval <= 0 {
		interval = sched.DefaultInterval
	}
	ranges := partition(spec.RangeStart, head, n)
	for i, r := range ranges {
		name := WorkerName(spec.Scope, i+1)
		if _, err := s.store.InitCheckpoint(name, spec.Family, spec.Scope, r.start, r.end); err != nil {
			return errors.WithMessagef(err, "init checkpoint %s", name)
		}
		if spec.LPToken != "" {
			if err := s.store.SetCheckpointLPToken(name, spec.LPToken); err != nil {
				return errors.WithMessagef(err, "stamp lp token on %s", name)
			}
		}
		ws := WorkerSpec{
			Name:      name,
			Scope:     spec.Scope,
			WorkerID:  i + 1,
			Chain:     spec.Chain,
			BatchSize: spec.BatchSize,
			Source:    spec.Source,
		}
		delay := time.Duration(i) * interval / time.Duration(n)
		err := s.scheduler.Register(name, interval, delay, func(ctx context.Context) {
			if err := s.controller.RunOnce(ctx, ws); err != nil && !errors.Is(err, co.ErrAlreadyRunning) {
				logger.Warn("worker run failed", "worker", ws.Name, "err", err)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// StartPools starts several pools with a fixed stagger between them.
// Failures are collected; healthy pools keep running.
func (s *Supervisor) StartPools(ctx context.Context, specs []PoolSpec) error {
	var failed []string
	var lastErr error
	for i, spec := range specs {
		if i > 0 {
			select {
			case <-time.After(PoolStagger):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := s.StartPool(ctx, spec); err != nil {
			failed = append(failed, spec.Scope)
			lastErr = err
		}
	}
	if lastErr != nil {
		return errors.WithMessagef(lastErr, "failed pools %v", failed)
	}
	return nil
}

// StopPool clears the pool's triggers, leases and live progress. The
// checkpoint rows stay, so a later start resumes where it left off.
func (s *Supervisor) StopPool(scope string) {
	// the -w separator keeps pool1 from matching pool10..pool13
	s.scheduler.StopPrefix(scope + "-w")
	s.leases.ClearPrefix(scope + "-w")
	s.tracker.Clear(scope)
	s.mu.Lock()
	delete(s.active, scope)
	s.mu.Unlock()
}

// ResetPool stops the pool and deletes its checkpoints. Event rows are
// kept; re-indexing over them is idempotent.
func (s *Supervisor) ResetPool(scope string) error {
	s.StopPool(scope)
	cps, err := s.store.ScopeCheckpoints(scope)
	if err != nil {
		return err
	}
	for _, cp := range cps {
		if err := s.store.DeleteCheckpoint(cp.IndexerName); err != nil {
			return err
		}
	}
	return nil
}

// WorkerCountSummary reports the effective worker count per running
// pool, after any failsafe downsizing.
func (s *Supervisor) WorkerCountSummary() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.active))
	for scope, n := range s.active {
		out[scope] = n
	}
	return out
}
