// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package co

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ErrAlreadyRunning is returned when a named lease is already held.
var ErrAlreadyRunning = errors.New("already_running")

// LeaseMap hands out at most one lease per name. It serializes worker
// runs: a second acquire for the same worker name fails fast instead of
// blocking.
type LeaseMap struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLeaseMap() *LeaseMap {
	return &LeaseMap{held: make(map[string]struct{})}
}

// Acquire takes the lease for name. The returned release function is
// idempotent.
func (l *LeaseMap) Acquire(name string) (release func(), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[name]; ok {
		return nil, ErrAlreadyRunning
	}
	l.held[name] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, nil
}

// Held reports whether the lease for name is currently taken.
func (l *LeaseMap) Held(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[name]
	return ok
}

// Clear drops every lease. Used by scheduler stop-all.
func (l *LeaseMap) Clear() {
	l.mu.Lock()
	l.held = make(map[string]struct{})
	l.mu.Unlock()
}

// ClearPrefix drops every lease whose name starts with prefix. Used when
// a single pool is stopped.
func (l *LeaseMap) ClearPrefix(prefix string) {
	l.mu.Lock()
	for name := range l.held {
		if strings.HasPrefix(name, prefix) {
			delete(l.held, name)
		}
	}
	l.mu.Unlock()
}
