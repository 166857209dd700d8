// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package co

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// RetryPolicy bounds a retry loop. Delay before attempt n (n >= 1) is
// Base·2^(n-1) plus up to Jitter of random noise, capped at MaxDelay when
// MaxDelay is non-zero.
type RetryPolicy struct {
	Attempts  int
	Base      time.Duration
	MaxDelay  time.Duration
	Jitter    time.Duration
	Retryable func(error) bool
}

// Backoff returns the delay to sleep before retry attempt n (0-based
// count of failures so far).
func (p RetryPolicy) Backoff(n int) time.Duration {
	d := p.Base << uint(n)
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Retry runs fn until it succeeds, the policy is exhausted, fn returns a
// non-retryable error, or ctx is cancelled. The returned error is the last
// attempt's, annotated with the operation label.
func Retry(ctx context.Context, label string, p RetryPolicy, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Backoff(i - 1)):
			}
		}
		if last = fn(); last == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(last) {
			break
		}
	}
	return errors.WithMessage(last, label)
}
