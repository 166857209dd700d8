// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package progress is the in-memory observatory: live per-worker batch
// state, aggregated per scope and globally. Persistence stays in the
// checkpoint store; this view exists for the control API and logs.
package progress

import (
	"sync"
	"time"

	"github.com/dfklabs/indexd/metrics"
)

var metricEventsIndexed = metrics.LazyLoad(func() metrics.CountVecMeter {
	return metrics.CounterVec("events_indexed_total", []string{"scope", "kind"})
})

var metricWorkersRunning = metrics.LazyLoad(func() metrics.GaugeVecMeter {
	return metrics.GaugeVec("workers_running", []string{"scope"})
})

// Counters tallies indexed rows by event kind.
type Counters map[string]uint64

// Add merges other into c.
func (c Counters) Add(other Counters) {
	for kind, n := range other {
		c[kind] += n
	}
}

// Total sums all kinds.
func (c Counters) Total() uint64 {
	var n uint64
	for _, v := range c {
		n += v
	}
	return n
}

// Clone returns an independent copy.
func (c Counters) Clone() Counters {
	out := make(Counters, len(c))
	for kind, n := range c {
		out[kind] = n
	}
	return out
}

// WorkerStatus is the live view of one worker's batch.
type WorkerStatus struct {
	Scope           string     `json:"scope"`
	WorkerID        int        `json:"workerId"`
	IsRunning       bool       `json:"isRunning"`
	RangeStart      uint64     `json:"rangeStart"`
	RangeEnd        uint64     `json:"rangeEnd"`
	CurrentBlock    uint64     `json:"currentBlock"`
	TargetBlock     uint64     `json:"targetBlock"`
	Counters        Counters   `json:"counters"`
	PercentComplete float64    `json:"percentComplete"`
	StartedAt       time.Time  `json:"startedAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	LastError       string     `json:"lastError,omitempty"`
}

// Aggregate is the rolled-up view of a scope (or of everything).
type Aggregate struct {
	Scope           string         `json:"scope"`
	IsRunning       bool           `json:"isRunning"`
	CurrentBlock    uint64         `json:"currentBlock"`
	TargetBlock     uint64         `json:"targetBlock"`
	Counters        Counters       `json:"counters"`
	PercentComplete float64        `json:"percentComplete"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`
	BlocksPerSec    float64        `json:"blocksPerSec"`
	ETASeconds      *float64       `json:"etaSeconds,omitempty"`
	Workers         []WorkerStatus `json:"workers"`
}

type sample struct {
	at     time.Time
	blocks uint64
}

const throughputWindow = 5 * time.Minute

type workerEntry struct {
	status  WorkerStatus
	samples []sample
}

type key struct {
	scope    string
	workerID int
}

// Tracker holds every worker entry. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	entries map[key]*workerEntry

	now func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		entries: make(map[key]*workerEntry),
		now:     time.Now,
	}
}

func percent(current, start, end uint64) float64 {
	if end <= start {
		return 100
	}
	if current <= start {
		return 0
	}
	p := float64(current-start) / float64(end-start) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Begin registers a worker starting a batch. Any previous state for the
// same (scope, worker) is replaced, its counters reset.
func (t *Tracker) Begin(scope string, workerID int, rangeStart, rangeEnd, currentBlock, targetBlock uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.entries[key{scope, workerID}] = &workerEntry{
		status: WorkerStatus{
			Scope:           scope,
			WorkerID:        workerID,
			IsRunning:       true,
			RangeStart:      rangeStart,
			RangeEnd:        rangeEnd,
			CurrentBlock:    currentBlock,
			TargetBlock:     targetBlock,
			Counters:        Counters{},
			PercentComplete: percent(currentBlock, rangeStart, rangeEnd),
			StartedAt:       now,
			UpdatedAt:       now,
		},
		samples: []sample{{at: now, blocks: currentBlock}},
	}
	metricWorkersRunning().SetWithLabel(int64(t.runningLocked(scope)), map[string]string{"scope": scope})
}

// Advance records indexed progress within the current batch.
func (t *Tracker) Advance(scope string, workerID int, currentBlock uint64, delta Counters) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key{scope, workerID}]
	if !ok {
		return
	}
	now := t.now()
	if currentBlock > e.status.CurrentBlock {
		e.status.CurrentBlock = currentBlock
	}
	e.status.Counters.Add(delta)
	e.status.PercentComplete = percent(e.status.CurrentBlock, e.status.RangeStart, e.status.RangeEnd)
	e.status.UpdatedAt = now
	e.samples = append(e.samples, sample{at: now, blocks: e.status.CurrentBlock})
	e.trimSamples(now)
	for kind, n := range delta {
		metricEventsIndexed().AddWithLabel(int64(n), map[string]string{"scope": scope, "kind": kind})
	}
}

func (e *workerEntry) trimSamples(now time.Time) {
	cutoff := now.Add(-throughputWindow)
	i := 0
	for i < len(e.samples)-1 && e.samples[i].at.Before(cutoff) {
		i++
	}
	e.samples = e.samples[i:]
}

// Finish marks a worker's batch over. complete distinguishes a range
// fully indexed from an idle stop.
func (t *Tracker) Finish(scope string, workerID int, complete bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key{scope, workerID}]
	if !ok {
		return
	}
	now := t.now()
	e.status.IsRunning = false
	e.status.UpdatedAt = now
	if complete {
		done := now
		e.status.CompletedAt = &done
		e.status.PercentComplete = 100
	}
	metricWorkersRunning().SetWithLabel(int64(t.runningLocked(scope)), map[string]string{"scope": scope})
}

// Fail marks a worker's batch failed with the error text.
func (t *Tracker) Fail(scope string, workerID int, errText string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key{scope, workerID}]
	if !ok {
		return
	}
	e.status.IsRunning = false
	e.status.LastError = errText
	e.status.UpdatedAt = t.now()
	metricWorkersRunning().SetWithLabel(int64(t.runningLocked(scope)), map[string]string{"scope": scope})
}

// Clear drops every entry of a scope, e.g. after a reset.
func (t *Tracker) Clear(scope string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.entries {
		if k.scope == scope {
			delete(t.entries, k)
		}
	}
	metricWorkersRunning().SetWithLabel(0, map[string]string{"scope": scope})
}

func (t *Tracker) runningLocked(scope string) int {
	n := 0
	for k, e := range t.entries {
		if k.scope == scope && e.status.IsRunning {
			n++
		}
	}
	return n
}

// Worker returns a snapshot of one worker, or false if unknown.
func (t *Tracker) Worker(scope string, workerID int) (WorkerStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key{scope, workerID}]
	if !ok {
		return WorkerStatus{}, false
	}
	s := e.status
	s.Counters = s.Counters.Clone()
	return s, true
}

// Scope aggregates all workers of one scope.
func (t *Tracker) Scope(scope string) Aggregate {
	t.mu.Lock()
	defer t.mu.Unlock()
	var workers []*workerEntry
	for k, e := range t.entries {
		if k.scope == scope {
			workers = append(workers, e)
		}
	}
	return t.aggregateLocked(scope, workers)
}

// Scopes lists every scope with at least one entry.
func (t *Tracker) Scopes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for k := range t.entries {
		if !seen[k.scope] {
			seen[k.scope] = true
			out = append(out, k.scope)
		}
	}
	return out
}

// Global aggregates every worker across every scope.
func (t *Tracker) Global() Aggregate {
	t.mu.Lock()
	defer t.mu.Unlock()
	var workers []*workerEntry
	for _, e := range t.entries {
		workers = append(workers, e)
	}
	return t.aggregateLocked("", workers)
}

func (t *Tracker) aggregateLocked(scope string, entries []*workerEntry) Aggregate {
	agg := Aggregate{Scope: scope, Counters: Counters{}}
	if len(entries) == 0 {
		return agg
	}
	var percentSum float64
	var completedMax time.Time
	allComplete := true
	var rate float64
	var remaining uint64
	for _, e := range entries {
		s := e.status
		agg.IsRunning = agg.IsRunning || s.IsRunning
		if s.CurrentBlock > agg.CurrentBlock {
			agg.CurrentBlock = s.CurrentBlock
		}
		if s.TargetBlock > agg.TargetBlock {
			agg.TargetBlock = s.TargetBlock
		}
		agg.Counters.Add(s.Counters)
		percentSum += s.PercentComplete
		if s.CompletedAt == nil {
			allComplete = false
		} else if s.CompletedAt.After(completedMax) {
			completedMax = *s.CompletedAt
		}
		rate += e.rate()
		if s.RangeEnd > s.CurrentBlock {
			remaining += s.RangeEnd - s.CurrentBlock
		}
		ws := s
		ws.Counters = s.Counters.Clone()
		agg.Workers = append(agg.Workers, ws)
	}
	agg.PercentComplete = percentSum / float64(len(entries))
	if allComplete {
		agg.CompletedAt = &completedMax
	}
	agg.BlocksPerSec = rate
	if rate > 0 && remaining > 0 {
		eta := float64(remaining) / rate
		agg.ETASeconds = &eta
	}
	return agg
}

// rate is the worker's blocks/sec over the retained window.
func (e *workerEntry) rate() float64 {
	if !e.status.IsRunning || len(e.samples) < 2 {
		return 0
	}
	first := e.samples[0]
	last := e.samples[len(e.samples)-1]
	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 || last.blocks <= first.blocks {
		return 0
	}
	return float64(last.blocks-first.blocks) / elapsed
}
