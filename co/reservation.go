// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package co

import (
	"sync"
	"time"
)

// ReservationMap is an atomic test-and-set map with TTL, used to
// serialize thieves competing for the same work-steal donor. A
// reservation older than its TTL is never respected.
type ReservationMap struct {
	mu  sync.Mutex
	m   map[string]time.Time // key -> expiry
	now func() time.Time
}

func NewReservationMap() *ReservationMap {
	return &ReservationMap{m: make(map[string]time.Time), now: time.Now}
}

// TryReserve reserves key for ttl. It fails only if a live reservation
// exists; expired entries are overwritten.
func (r *ReservationMap) TryReserve(key string, ttl time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if exp, ok := r.m[key]; ok && r.now().Before(exp) {
		return false
	}
	r.m[key] = r.now().Add(ttl)
	return true
}

// Reserved reports whether a live reservation exists for key.
func (r *ReservationMap) Reserved(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.m[key]
	return ok && r.now().Before(exp)
}

// Release drops the reservation for key.
func (r *ReservationMap) Release(key string) {
	r.mu.Lock()
	delete(r.m, key)
	r.mu.Unlock()
}

// Clear drops all reservations.
func (r *ReservationMap) Clear() {
	r.mu.Lock()
	r.m = make(map[string]time.Time)
	r.mu.Unlock()
}
