// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package sched runs named periodic triggers with overlap suppression.
// A tick that finds its task still in flight returns immediately; stop
// clears the trigger but never interrupts an in-flight run.
package sched

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dfklabs/indexd/co"
	"github.com/dfklabs/indexd/log"
	"github.com/dfklabs/indexd/metrics"
)

var logger = log.WithContext("pkg", "sched")

var metricTicks = metrics.LazyLoad(func() metrics.CountVecMeter {
	return metrics.CounterVec("sched_ticks_total", []string{"task", "outcome"})
})

// DefaultInterval is the tick period unless a task overrides it.
const DefaultInterval = 60 * time.Second

// ErrAlreadyRegistered is returned when a live task name is reused.
var ErrAlreadyRegistered = errors.New("task already registered")

// TaskStats is the public view of one trigger.
type TaskStats struct {
	Name          string        `json:"name"`
	Interval      time.Duration `json:"interval"`
	Running       bool          `json:"running"`
	LastRunAt     *time.Time    `json:"lastRunAt,omitempty"`
	RunsCompleted uint64        `json:"runsCompleted"`
}

type task struct {
	name     string
	interval time.Duration
	delay    time.Duration
	fn       func(context.Context)

	cancel   context.CancelFunc
	inflight co.InFlight

	mu            sync.Mutex
	lastRunAt     *time.Time
	runsCompleted uint64
}

// Scheduler owns all registered triggers. Safe for concurrent use.
type Scheduler struct {
	mu    sync.Mutex
	tasks map[string]*task
	goes  co.Goes

	ctx    context.Context
	cancel context.CancelFunc
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:  make(map[string]*task),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register installs a trigger and starts ticking after initialDelay.
// Names must be unique; re-registering a live name is an error.
func (s *Scheduler) Register(name string, interval, initialDelay time.Duration, fn func(context.Context)) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; ok {
		return errors.WithMessage(ErrAlreadyRegistered, name)
	}
	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{name: name, interval: interval, delay: initialDelay, fn: fn, cancel: cancel}
	s.tasks[name] = t
	s.goes.Go(func() { t.loop(ctx) })
	return nil
}

func (t *task) loop(ctx context.Context) {
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return
		}
	}
	t.fire(ctx)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.fire(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (t *task) fire(ctx context.Context) {
	if !t.inflight.TryBegin() {
		metricTicks().AddWithLabel(1, map[string]string{"task": t.name, "outcome": "suppressed"})
		logger.Debug("tick suppressed, previous run still in flight", "task", t.name)
		return
	}
	defer t.inflight.End()
	t.fn(ctx)
	now := time.Now()
	t.mu.Lock()
	t.lastRunAt = &now
	t.runsCompleted++
	t.mu.Unlock()
	metricTicks().AddWithLabel(1, map[string]string{"task": t.name, "outcome": "run"})
}

// RunNow fires the task out of band, subject to the same overlap
// suppression. Returns false for unknown names.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.goes.Go(func() { t.fire(s.ctx) })
	return true
}

// Stop removes one trigger. The in-flight run, if any, finishes on its
// own.
func (s *Scheduler) Stop(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return false
	}
	t.cancel()
	delete(s.tasks, name)
	return true
}

// StopPrefix removes every trigger whose name starts with prefix and
// returns how many were stopped.
func (s *Scheduler) StopPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for name, t := range s.tasks {
		if strings.HasPrefix(name, prefix) {
			t.cancel()
			delete(s.tasks, name)
			n++
		}
	}
	return n
}

// StopAll removes every trigger.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	for name, t := range s.tasks {
		t.cancel()
		delete(s.tasks, name)
	}
	s.mu.Unlock()
}

// Shutdown stops everything and waits for in-flight runs to drain.
func (s *Scheduler) Shutdown() {
	s.StopAll()
	s.cancel()
	s.goes.Wait()
}

// Stats returns the trigger view, or false for unknown names.
func (s *Scheduler) Stats(name string) (TaskStats, bool) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return TaskStats{}, false
	}
	return t.stats(), true
}

// List returns stats for every trigger matching prefix ("" for all).
func (s *Scheduler) List(prefix string) []TaskStats {
	s.mu.Lock()
	var tasks []*task
	for name, t := range s.tasks {
		if strings.HasPrefix(name, prefix) {
			tasks = append(tasks, t)
		}
	}
	s.mu.Unlock()
	out := make([]TaskStats, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.stats())
	}
	return out
}

func (t *task) stats() TaskStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskStats{
		Name:          t.name,
		Interval:      t.interval,
		Running:       t.inflight.Running(),
		LastRunAt:     t.lastRunAt,
		RunsCompleted: t.runsCompleted,
	}
}
