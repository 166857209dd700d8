// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package node is the composition root: it owns the store, the chain
// RPC pool, the scheduler and the live progress tracker, and exposes
// the indexer families as named start/stop/reset units for the API and
// the command line.
package node

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dfklabs/indexd/bargain"
	"github.com/dfklabs/indexd/chainrpc"
	"github.com/dfklabs/indexd/co"
	"github.com/dfklabs/indexd/dfk"
	"github.com/dfklabs/indexd/fleet"
	"github.com/dfklabs/indexd/indexdb"
	"github.com/dfklabs/indexd/indexer/battles"
	"github.com/dfklabs/indexd/indexer/gardening"
	"github.com/dfklabs/indexd/indexer/lpstaking"
	"github.com/dfklabs/indexd/indexer/pve"
	"github.com/dfklabs/indexd/indexer/rewardonly"
	"github.com/dfklabs/indexd/indexer/swaponly"
	"github.com/dfklabs/indexd/indexer/tavern"
	"github.com/dfklabs/indexd/infer"
	"github.com/dfklabs/indexd/log"
	"github.com/dfklabs/indexd/progress"
	"github.com/dfklabs/indexd/scan"
	"github.com/dfklabs/indexd/sched"
	"github.com/dfklabs/indexd/summon"
	"github.com/dfklabs/indexd/webclient"
)

var logger = log.WithContext("pkg", "node")

// ErrUnknownFamily names a family the node does not run.
var ErrUnknownFamily = errors.New("unknown indexer family")

// family is one start/stop/reset unit.
type family struct {
	name    string
	start   func(ctx context.Context) error
	stop    func()
	reset   func() error
	running func() bool
}

// Node wires every component and owns their lifecycles.
type Node struct {
	cfg     *Config
	store   *indexdb.DB
	pool    *chainrpc.Pool
	tracker *progress.Tracker
	sched   *sched.Scheduler
	leases  *co.LeaseMap
	sup     *fleet.Supervisor
	inferer *infer.Service

	tavernSnap *tavern.Snapshot
	backfill   *tavern.Backfill
	pvp        *battles.Indexer
	bargainJob *bargain.Job

	mu       sync.Mutex
	families map[string]*family
}

// New builds a node from config. Nothing starts until StartFamily.
func New(cfg *Config) (*Node, error) {
	endpoints, err := cfg.chainEndpoints()
	if err != nil {
		return nil, err
	}
	path := cfg.DataPath
	if path == "" {
		path = ":memory:"
	}
	store, err := indexdb.New(path)
	if err != nil {
		return nil, err
	}
	if err := seedRegistry(store, cfg); err != nil {
		store.Close()
		return nil, errors.WithMessage(err, "seed registry")
	}

	pool := chainrpc.NewPool(chainrpc.Config{Endpoints: endpoints})
	tracker := progress.NewTracker()
	scheduler := sched.New()
	leases := co.NewLeaseMap()
	scanner := scan.New(pool, store, tracker)
	controller := fleet.NewController(store, pool, scanner, tracker, leases, fleet.NewArbiter(store))
	sup := fleet.NewSupervisor(store, pool, controller, scheduler, leases, tracker)

	n := &Node{
		cfg:     cfg,
		store:   store,
		pool:    pool,
		tracker: tracker,
		sched:   scheduler,
		leases:  leases,
		sup:     sup,
		inferer: infer.NewService(store),
		tavernSnap: tavern.NewSnapshot(store, tracker, tavern.Config{
			Marketplace: webclient.NewMarketplace(cfg.MarketplaceURL, nil),
			StoneTiers:  cfg.stoneTiers(),
		}),
		backfill:   tavern.NewBackfill(store, webclient.NewGenes(cfg.GenesURL, nil), cfg.BackfillWorkers),
		pvp:        battles.New(store, tracker, webclient.NewBattles(cfg.BattlesURL, nil)),
		bargainJob: bargain.NewJob(store, summon.Basic{}),
		families:   map[string]*family{},
	}
	n.registerFamilies(endpoints)
	return n, nil
}

// seedRegistry writes the known loot-item and activity metadata plus any
// configured token prices. Every write is an idempotent upsert.
func seedRegistry(store *indexdb.DB, cfg *Config) error {
	for _, item := range dfk.KnownLootItems {
		if err := store.UpsertPvELootItem(item.Chain, item.Address.Hex(), item.Name, item.Type, item.Rarity); err != nil {
			return err
		}
	}
	for _, act := range dfk.KnownPvEActivities {
		if err := store.UpsertPvEActivity(act.Chain, act.Type, act.ID, act.Name); err != nil {
			return err
		}
	}
	for token, price := range cfg.TokenPrices {
		if err := store.SetTokenPrice(token, price); err != nil {
			return err
		}
	}
	return nil
}

// registerFamilies declares every family the configured chains support.
func (n *Node) registerFamilies(endpoints map[dfk.ChainID]string) {
	interval := n.cfg.Interval

	if _, ok := endpoints[dfk.ChainDFK]; ok {
		n.addFleetFamily("lp-dfk", func(ctx context.Context) ([]fleet.PoolSpec, error) {
			return lpstaking.PoolSpecs(ctx, n.pool, n.store, dfk.ChainDFK, interval)
		})
		n.addFleetFamily("pve-dfk", func(context.Context) ([]fleet.PoolSpec, error) {
			spec, err := pve.PoolSpec(n.pool, n.store, dfk.ChainDFK, fleet.MinWorkersDefault)
			if err != nil {
				return nil, err
			}
			return []fleet.PoolSpec{*spec}, nil
		})
		n.addFleetFamily("gardening", func(context.Context) ([]fleet.PoolSpec, error) {
			spec, err := gardening.PoolSpec(n.pool, n.store, dfk.ChainDFK, lpstaking.WorkersPerPool)
			if err != nil {
				return nil, err
			}
			return []fleet.PoolSpec{*spec}, nil
		})
		n.addFleetFamily("swaps-dfk", func(ctx context.Context) ([]fleet.PoolSpec, error) {
			spec, err := swaponly.PoolSpec(ctx, n.pool, n.store, dfk.ChainDFK, swaponly.Workers)
			if err != nil {
				return nil, err
			}
			return []fleet.PoolSpec{*spec}, nil
		})
		n.addFleetFamily("rewards-dfk", func(context.Context) ([]fleet.PoolSpec, error) {
			spec, err := rewardonly.PoolSpec(n.pool, n.store, dfk.ChainDFK, rewardonly.Workers)
			if err != nil {
				return nil, err
			}
			return []fleet.PoolSpec{*spec}, nil
		})
	}
	if _, ok := endpoints[dfk.ChainMetis]; ok {
		n.addFleetFamily("pve-metis", func(context.Context) ([]fleet.PoolSpec, error) {
			spec, err := pve.PoolSpec(n.pool, n.store, dfk.ChainMetis, fleet.MinWorkersPvE)
			if err != nil {
				return nil, err
			}
			return []fleet.PoolSpec{*spec}, nil
		})
	}
	if _, ok := endpoints[dfk.ChainHarmony]; ok {
		n.addFleetFamily("lp-harmony", func(ctx context.Context) ([]fleet.PoolSpec, error) {
			return lpstaking.PoolSpecs(ctx, n.pool, n.store, dfk.ChainHarmony, interval)
		})
	}

	if n.cfg.MarketplaceURL != "" {
		n.addJobFamily("tavern", n.cfg.snapshotInterval(), func(ctx context.Context) {
			if _, err := n.tavernSnap.Run(ctx); err != nil {
				logger.Warn("marketplace snapshot failed", "err", err)
				return
			}
			if n.cfg.GenesURL == "" {
				return
			}
			if _, err := n.backfill.Run(ctx); err != nil {
				logger.Warn("gene backfill failed", "err", err)
			}
		})
	}
	if n.cfg.BattlesURL != "" {
		n.addJobFamily("pvp", n.cfg.snapshotInterval(), func(ctx context.Context) {
			if _, err := n.pvp.Run(ctx); err != nil {
				logger.Warn("tournament pass failed", "err", err)
			}
		})
	}
	n.addJobFamily("bargain", n.cfg.snapshotInterval(), func(ctx context.Context) {
		if err := n.bargainJob.RunAll(ctx); err != nil {
			logger.Warn("bargain scoring failed", "err", err)
		}
	})
}

// addFleetFamily wraps a set of scanner pools as one unit. Specs are
// rebuilt on every start so contract lookups see the live chain.
func (n *Node) addFleetFamily(name string, build func(ctx context.Context) ([]fleet.PoolSpec, error)) {
	var mu sync.Mutex
	var scopes []string
	n.families[name] = &family{
		name: name,
		start: func(ctx context.Context) error {
			specs, err := build(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			scopes = scopes[:0]
			for _, spec := range specs {
				scopes = append(scopes, spec.Scope)
			}
			mu.Unlock()
			return n.sup.StartPools(ctx, specs)
		},
		stop: func() {
			mu.Lock()
			defer mu.Unlock()
			for _, scope := range scopes {
				n.sup.StopPool(scope)
			}
		},
		reset: func() error {
			mu.Lock()
			defer mu.Unlock()
			for _, scope := range scopes {
				if err := n.sup.ResetPool(scope); err != nil {
					return err
				}
			}
			return nil
		},
		running: func() bool {
			mu.Lock()
			defer mu.Unlock()
			counts := n.sup.WorkerCountSummary()
			for _, scope := range scopes {
				if counts[scope] > 0 {
					return true
				}
			}
			return false
		},
	}
}

// addJobFamily wraps a periodic single-task job.
func (n *Node) addJobFamily(name string, interval time.Duration, fn func(ctx context.Context)) {
	n.families[name] = &family{
		name: name,
		start: func(context.Context) error {
			err := n.sched.Register(name, interval, 0, fn)
			if errors.Is(err, sched.ErrAlreadyRegistered) {
				return nil
			}
			return err
		},
		stop: func() {
			n.sched.Stop(name)
			n.tracker.Clear(name)
		},
		reset: func() error {
			n.sched.Stop(name)
			n.tracker.Clear(name)
			return nil
		},
		running: func() bool {
			_, ok := n.sched.Stats(name)
			return ok
		},
	}
}

// Families lists the registered family names, sorted.
func (n *Node) Families() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, 0, len(n.families))
	for name := range n.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n *Node) lookup(name string) (*family, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, ok := n.families[name]
	if !ok {
		return nil, errors.WithMessage(ErrUnknownFamily, name)
	}
	return f, nil
}

// StartFamily starts one family.
func (n *Node) StartFamily(ctx context.Context, name string) error {
	f, err := n.lookup(name)
	if err != nil {
		return err
	}
	logger.Info("starting family", "family", name)
	return f.start(ctx)
}

// StopFamily stops a family's triggers and clears its leases and live
// progress. Checkpoints survive for the next start.
func (n *Node) StopFamily(name string) error {
	f, err := n.lookup(name)
	if err != nil {
		return err
	}
	logger.Info("stopping family", "family", name)
	f.stop()
	return nil
}

// ResetFamily stops the family and deletes its checkpoints.
func (n *Node) ResetFamily(name string) error {
	f, err := n.lookup(name)
	if err != nil {
		return err
	}
	logger.Info("resetting family", "family", name)
	return f.reset()
}

// StartAll starts every family; failures are collected so healthy
// families keep running.
func (n *Node) StartAll(ctx context.Context) error {
	var failed []string
	var lastErr error
	for _, name := range n.Families() {
		if err := n.StartFamily(ctx, name); err != nil {
			logger.Warn("family failed to start", "family", name, "err", err)
			failed = append(failed, name)
			lastErr = err
		}
	}
	if lastErr != nil {
		return errors.WithMessagef(lastErr, "failed families %v", failed)
	}
	return nil
}

// FamilyStatus is the API-facing state of one family.
type FamilyStatus struct {
	Running bool           `json:"running"`
	Workers map[string]int `json:"workers,omitempty"`
}

// Status reports every family with its effective worker counts.
func (n *Node) Status() map[string]FamilyStatus {
	counts := n.sup.WorkerCountSummary()
	out := map[string]FamilyStatus{}
	n.mu.Lock()
	defer n.mu.Unlock()
	for name, f := range n.families {
		st := FamilyStatus{Running: f.running()}
		for scope, c := range counts {
			if scopeBelongs(name, scope) {
				if st.Workers == nil {
					st.Workers = map[string]int{}
				}
				st.Workers[scope] = c
			}
		}
		out[name] = st
	}
	return out
}

// scopeBelongs matches supervisor scopes back to family names.
func scopeBelongs(familyName, scope string) bool {
	switch familyName {
	case "lp-dfk":
		return strings.HasPrefix(scope, "lp-dfk-pool")
	case "lp-harmony":
		return strings.HasPrefix(scope, "lp-harmony-pool")
	case "pve-dfk":
		return scope == pve.Scope(dfk.ChainDFK)
	case "pve-metis":
		return scope == pve.Scope(dfk.ChainMetis)
	case "gardening":
		return scope == gardening.Scope(dfk.ChainDFK)
	case "swaps-dfk":
		return scope == swaponly.Scope(dfk.ChainDFK)
	case "rewards-dfk":
		return scope == rewardonly.Scope(dfk.ChainDFK)
	default:
		return false
	}
}

// Tracker exposes the live progress observatory.
func (n *Node) Tracker() *progress.Tracker { return n.tracker }

// Store exposes the index db for read paths.
func (n *Node) Store() *indexdb.DB { return n.store }

// Inference exposes the drop-rate service.
func (n *Node) Inference() *infer.Service { return n.inferer }

// Close stops everything and closes the store.
func (n *Node) Close() {
	logger.Info("shutting down")
	n.sched.Shutdown()
	n.leases.Clear()
	n.store.Close()
}
