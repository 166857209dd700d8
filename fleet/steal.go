// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package fleet

import (
	"time"

	"github.com/dfklabs/indexd/co"
	"github.com/dfklabs/indexd/indexdb"
	"github.com/dfklabs/indexd/metrics"
)

var metricSteals = metrics.LazyLoad(func() metrics.CountVecMeter {
	return metrics.CounterVec("fleet_steals_total", []string{"scope"})
})

const (
	// MinSteal is the smallest half-range worth moving; below this the
	// donor finishes faster alone.
	MinSteal = 500_000
	// ReservationTTL bounds how long a crashed thief can pin a donor.
	ReservationTTL = 60 * time.Second
)

// Steal describes an executed range transfer.
type Steal struct {
	Donor        string
	NewDonorEnd  uint64
	ThiefStart   uint64
	ThiefEnd     uint64
	BlocksStolen uint64
}

// Arbiter serializes concurrent thieves competing for the same donor.
// Reservations exist only for that; the checkpoint rows are the source
// of truth for ranges.
type Arbiter struct {
	store        *indexdb.DB
	reservations *co.ReservationMap
	minSteal     uint64
}

func NewArbiter(store *indexdb.DB) *Arbiter {
	return &Arbiter{
		store:        store,
		reservations: co.NewReservationMap(),
		minSteal:     MinSteal,
	}
}

// TrySteal picks the sibling with the most remaining work and takes the
// upper half of its range. Returns nil when no donor qualifies. The
// donor shrinks before the thief is reassigned, so a crash in between
// leaves the stolen half temporarily unowned rather than doubly owned;
// the reservation TTL unblocks the next attempt.
func (a *Arbiter) TrySteal(thief, scope string, head uint64) (*Steal, error) {
	siblings, err := a.store.ScopeCheckpoints(scope)
	if err != nil {
		return nil, err
	}

	var best *indexdb.Checkpoint
	var bestRemaining uint64
	for _, s := range siblings {
		if s.IndexerName == thief || s.Status == indexdb.StatusComplete {
			continue
		}
		// the tail worker keeps its open range end; shrinking it would
		// leave new blocks unowned
		if s.RangeEnd == nil {
			continue
		}
		if a.reservations.Reserved(s.IndexerName) {
			continue
		}
		remaining := s.Remaining(head)
		if remaining < 2*a.minSteal {
			continue
		}
		if remaining > bestRemaining {
			best = s
			bestRemaining = remaining
		}
	}
	if best == nil {
		return nil, nil
	}

	if !a.reservations.TryReserve(best.IndexerName, ReservationTTL) {
		return nil, nil
	}
	defer a.reservations.Release(best.IndexerName)

	stolen := bestRemaining / 2
	if stolen < a.minSteal {
		return nil, nil
	}
	donorTarget := best.TargetBlock(head)
	newDonorEnd := donorTarget - stolen

	if err := a.store.ShrinkRangeEnd(best.IndexerName, newDonorEnd); err != nil {
		return nil, err
	}
	// ranges are inclusive on both ends; the thief picks up one block
	// past the donor's new end
	thiefStart := newDonorEnd + 1
	thiefEnd := donorTarget
	if err := a.store.ReassignRange(thief, thiefStart, &thiefEnd); err != nil {
		return nil, err
	}

	metricSteals().AddWithLabel(1, map[string]string{"scope": scope})
	return &Steal{
		Donor:        best.IndexerName,
		NewDonorEnd:  newDonorEnd,
		ThiefStart:   thiefStart,
		ThiefEnd:     thiefEnd,
		BlocksStolen: thiefEnd - thiefStart,
	}, nil
}
