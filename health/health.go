// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package health reports process liveness: the store must answer and,
// once indexing has begun, progress must still be moving.
package health

import (
	"time"

	"github.com/dfklabs/indexd/indexdb"
	"github.com/dfklabs/indexd/progress"
)

// defaultStaleAfter marks progress stale when no worker advanced within
// the window while claiming to run.
const defaultStaleAfter = 10 * time.Minute

type Status struct {
	Healthy        bool       `json:"healthy"`
	StoreOK        bool       `json:"storeOk"`
	WorkersRunning int        `json:"workersRunning"`
	LastAdvance    *time.Time `json:"lastAdvance,omitempty"`
}

type Health struct {
	store      *indexdb.DB
	tracker    *progress.Tracker
	staleAfter time.Duration

	now func() time.Time
}

func New(store *indexdb.DB, tracker *progress.Tracker) *Health {
	return &Health{
		store:      store,
		tracker:    tracker,
		staleAfter: defaultStaleAfter,
		now:        time.Now,
	}
}

// Status checks the store and the live progress view. A node with no
// running workers is healthy; one whose workers stopped advancing is
// not.
func (h *Health) Status() *Status {
	st := &Status{StoreOK: h.store.Raw().Ping() == nil}

	var lastAdvance time.Time
	global := h.tracker.Global()
	for _, w := range global.Workers {
		if w.IsRunning {
			st.WorkersRunning++
		}
		if w.UpdatedAt.After(lastAdvance) {
			lastAdvance = w.UpdatedAt
		}
	}
	if !lastAdvance.IsZero() {
		t := lastAdvance
		st.LastAdvance = &t
	}

	st.Healthy = st.StoreOK
	if st.WorkersRunning > 0 && h.now().Sub(lastAdvance) > h.staleAfter {
		st.Healthy = false
	}
	return st
}
