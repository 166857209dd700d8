// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package co

import "sync/atomic"

// InFlight is a compare-and-swap overlap suppressor. A tick that finds
// the flag set returns immediately instead of piling up behind a slow
// batch.
type InFlight struct {
	flag atomic.Bool
}

// TryBegin sets the flag, reporting false if a run is already in flight.
func (f *InFlight) TryBegin() bool {
	return f.flag.CompareAndSwap(false, true)
}

// End clears the flag.
func (f *InFlight) End() {
	f.flag.Store(false)
}

// Running reports whether a run is in flight.
func (f *InFlight) Running() bool {
	return f.flag.Load()
}
