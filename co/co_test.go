// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package co

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoes(t *testing.T) {
	var g Goes
	ch := make(chan int, 2)
	g.Go(func() { ch <- 1 })
	g.Go(func() { ch <- 2 })
	<-g.Done()
	assert.Len(t, ch, 2)
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", RetryPolicy{Attempts: 5, Base: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Retry(context.Background(), "op", RetryPolicy{
		Attempts:  5,
		Base:      time.Millisecond,
		Retryable: func(err error) bool { return !errors.Is(err, fatal) },
	}, func() error {
		calls++
		return fatal
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(errors.Cause(err), fatal))
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "getLogs", RetryPolicy{Attempts: 3, Base: time.Millisecond}, func() error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "getLogs")
}

func TestRetryBackoffGrowth(t *testing.T) {
	p := RetryPolicy{Base: time.Second, MaxDelay: 10 * time.Second}
	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 10*time.Second, p.Backoff(5))
}

func TestLeaseMap(t *testing.T) {
	l := NewLeaseMap()

	release, err := l.Acquire("unified_pool_3_w2")
	require.NoError(t, err)
	assert.True(t, l.Held("unified_pool_3_w2"))

	_, err = l.Acquire("unified_pool_3_w2")
	assert.True(t, errors.Is(err, ErrAlreadyRunning))

	release()
	release() // idempotent
	assert.False(t, l.Held("unified_pool_3_w2"))

	_, err = l.Acquire("unified_pool_3_w2")
	assert.NoError(t, err)
}

func TestReservationTTL(t *testing.T) {
	r := NewReservationMap()
	now := time.Now()
	r.now = func() time.Time { return now }

	require.True(t, r.TryReserve("w1", time.Minute))
	assert.False(t, r.TryReserve("w1", time.Minute))
	assert.True(t, r.Reserved("w1"))

	// expired reservations are never respected
	now = now.Add(61 * time.Second)
	assert.False(t, r.Reserved("w1"))
	assert.True(t, r.TryReserve("w1", time.Minute))

	r.Release("w1")
	assert.False(t, r.Reserved("w1"))
}

func TestInFlight(t *testing.T) {
	var f InFlight
	require.True(t, f.TryBegin())
	assert.False(t, f.TryBegin())
	assert.True(t, f.Running())
	f.End()
	assert.True(t, f.TryBegin())
	f.End()
}
