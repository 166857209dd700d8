// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package chainrpc owns the process-wide pool of chain clients and
// contract bindings. Every outbound call runs through the shared retry
// policy so transient transport failures never surface directly into a
// batch.
package chainrpc

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"github.com/dfklabs/indexd/co"
	"github.com/dfklabs/indexd/dfk"
	"github.com/dfklabs/indexd/log"
	"github.com/dfklabs/indexd/metrics"
)

var logger = log.WithContext("pkg", "chainrpc")

var metricRetries = metrics.LazyLoad(func() metrics.CountVecMeter {
	return metrics.CounterVec("rpc_retries_total", []string{"op"})
})

// Client is the slice of ethclient the indexers consume. *ethclient.Client
// satisfies it; tests inject fakes.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config maps each chain to its RPC endpoint. DFK and Metis endpoints
// must be archive nodes: PvE enrichment reads hero state at historical
// blocks.
type Config struct {
	Endpoints map[dfk.ChainID]string
}

// Pool caches one client per chain and one binding per contract address,
// created lazily on first use.
type Pool struct {
	config Config

	mu      sync.Mutex
	clients map[dfk.ChainID]Client

	bindingsMu sync.Mutex
	bindings   map[string]*Contract

	views *viewCache
}

// NewPool creates an empty pool. No connection is dialed until a chain
// is first used.
func NewPool(config Config) *Pool {
	return &Pool{
		config:   config,
		clients:  make(map[dfk.ChainID]Client),
		bindings: make(map[string]*Contract),
		views:    newViewCache(),
	}
}

// SetClient pins a client for a chain, bypassing dialing. Used by tests
// and by callers that manage their own connections.
func (p *Pool) SetClient(chain dfk.ChainID, c Client) {
	p.mu.Lock()
	p.clients[chain] = c
	p.mu.Unlock()
}

// client returns the cached client for a chain, dialing on first use.
func (p *Pool) client(chain dfk.ChainID) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[chain]; ok {
		return c, nil
	}
	endpoint, ok := p.config.Endpoints[chain]
	if !ok {
		return nil, errors.Errorf("no RPC endpoint configured for chain %s", chain)
	}
	c, err := ethclient.Dial(endpoint)
	if err != nil {
		return nil, errors.WithMessagef(err, "dial %s", chain)
	}
	p.clients[chain] = c
	return c, nil
}

// retryPolicy is the shared transport policy: 5 attempts, 1s base with
// exponential growth and jitter.
func retryPolicy() co.RetryPolicy {
	return co.RetryPolicy{
		Attempts:  5,
		Base:      time.Second,
		Jitter:    250 * time.Millisecond,
		Retryable: IsRetryable,
	}
}

// IsRetryable classifies transport errors. HTTP 429 and 5xx retry; other
// HTTP statuses do not. JSON-RPC level errors (reverts, unknown methods)
// are deterministic and never retry. Anything else that reached the wire
// (resets, timeouts, DNS failures) retries. Decode errors never pass
// through the retry wrapper, so they are not considered here.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}
	var jsonErr rpc.Error
	if errors.As(err, &jsonErr) {
		return false
	}
	return true
}

// withRetry wraps fn in the shared policy; op names the call for log
// attribution.
func (p *Pool) withRetry(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	return co.Retry(ctx, op, retryPolicy(), func() error {
		if attempt > 0 {
			metricRetries().AddWithLabel(1, map[string]string{"op": op})
			logger.Debug("retrying rpc call", "op", op, "attempt", attempt)
		}
		attempt++
		return fn()
	})
}

// HeadBlock returns the chain head number.
func (p *Pool) HeadBlock(ctx context.Context, chain dfk.ChainID) (uint64, error) {
	c, err := p.client(chain)
	if err != nil {
		return 0, err
	}
	var head uint64
	err = p.withRetry(ctx, "blockNumber", func() error {
		var err error
		head, err = c.BlockNumber(ctx)
		return err
	})
	return head, err
}

// FilterLogs fetches logs for the query, bounded by the caller to the
// chunk size the upstream RPC accepts.
func (p *Pool) FilterLogs(ctx context.Context, chain dfk.ChainID, q ethereum.FilterQuery) ([]types.Log, error) {
	c, err := p.client(chain)
	if err != nil {
		return nil, err
	}
	var logs []types.Log
	err = p.withRetry(ctx, "getLogs", func() error {
		var err error
		logs, err = c.FilterLogs(ctx, q)
		return err
	})
	return logs, err
}

// call executes an eth_call at the given block (nil for latest) with
// retry on transport failures.
func (p *Pool) call(ctx context.Context, chain dfk.ChainID, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c, err := p.client(chain)
	if err != nil {
		return nil, err
	}
	var out []byte
	err = p.withRetry(ctx, "call", func() error {
		var err error
		out, err = c.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}
