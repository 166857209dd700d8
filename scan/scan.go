// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package scan walks a block range in fixed chunks, feeds matched logs to
// a family-specific source and commits the checkpoint. One bad chunk is
// skipped without poisoning the batch; the checkpoint never advances past
// an unfetched chunk.
package scan

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/dfklabs/indexd/chainrpc"
	"github.com/dfklabs/indexd/dfk"
	"github.com/dfklabs/indexd/indexdb"
	"github.com/dfklabs/indexd/log"
	"github.com/dfklabs/indexd/metrics"
	"github.com/dfklabs/indexd/progress"
)

var logger = log.WithContext("pkg", "scan")

var metricChunksFailed = metrics.LazyLoad(func() metrics.CountVecMeter {
	return metrics.CounterVec("scan_chunks_failed_total", []string{"family"})
})

var metricLogsFetched = metrics.LazyLoad(func() metrics.CountVecMeter {
	return metrics.CounterVec("scan_logs_fetched_total", []string{"family"})
})

const (
	// ChunkSize bounds a single getLogs; public RPCs reject wider spans.
	ChunkSize = 2000
	// ChunkDelay spaces consecutive getLogs against rate limits.
	ChunkDelay = 50 * time.Millisecond
)

// Source is a family-specific log consumer. Process must be idempotent:
// failed batches are re-run over the same range and rely on unique-key
// upserts for de-duplication.
type Source interface {
	Family() string
	Chain() dfk.ChainID
	Addresses() []common.Address
	// Topics is the getLogs topic filter; Topics[0] is the OR-set of
	// every event kind the family decodes.
	Topics() [][]common.Hash
	Process(ctx context.Context, logs []types.Log) (progress.Counters, error)
}

// Batch names one checkpointed range pass.
type Batch struct {
	Name     string // checkpoint row
	Scope    string
	WorkerID int
	From     uint64
	To       uint64
	RangeEnd *uint64 // nil tails the head
}

// Result reports how far a batch actually got.
type Result struct {
	AdvancedTo uint64
	Complete   bool
	Counters   progress.Counters
}

// Scanner drives chunked log fetching for any source.
type Scanner struct {
	pool    *chainrpc.Pool
	store   *indexdb.DB
	tracker *progress.Tracker

	chunkSize  uint64
	chunkDelay time.Duration
}

func New(pool *chainrpc.Pool, store *indexdb.DB, tracker *progress.Tracker) *Scanner {
	return &Scanner{
		pool:       pool,
		store:      store,
		tracker:    tracker,
		chunkSize:  ChunkSize,
		chunkDelay: ChunkDelay,
	}
}

// Run scans [b.From, b.To] for src and commits the checkpoint. A source
// error aborts the batch: the checkpoint is marked error and the cursor
// stays put so the next pass re-processes the same range.
func (s *Scanner) Run(ctx context.Context, src Source, b Batch) (*Result, error) {
	counters := progress.Counters{}
	var failedFrom *uint64

	for start := b.From; start <= b.To; start += s.chunkSize {
		end := start + s.chunkSize - 1
		if end > b.To {
			end = b.To
		}
		logs, err := s.pool.FilterLogs(ctx, src.Chain(), ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: src.Addresses(),
			Topics:    src.Topics(),
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, s.abort(b, ctx.Err())
			}
			logger.Warn("chunk fetch failed, skipping",
				"family", src.Family(), "scope", b.Scope, "from", start, "to", end, "err", err)
			metricChunksFailed().AddWithLabel(1, map[string]string{"family": src.Family()})
			if failedFrom == nil {
				f := start
				failedFrom = &f
			}
		} else {
			metricLogsFetched().AddWithLabel(int64(len(logs)), map[string]string{"family": src.Family()})
			delta, err := src.Process(ctx, logs)
			if err != nil {
				return nil, s.abort(b, err)
			}
			counters.Add(delta)
			s.tracker.Advance(b.Scope, b.WorkerID, end, delta)
		}
		if end < b.To {
			select {
			case <-time.After(s.chunkDelay):
			case <-ctx.Done():
				return nil, s.abort(b, ctx.Err())
			}
		}
	}

	advancedTo := b.To
	if failedFrom != nil && *failedFrom <= advancedTo {
		if *failedFrom == b.From {
			advancedTo = b.From
		} else {
			advancedTo = *failedFrom - 1
		}
	}

	status := indexdb.StatusIdle
	if b.RangeEnd != nil && advancedTo >= *b.RangeEnd {
		status = indexdb.StatusComplete
	}
	total := counters.Total()
	clearErr := ""
	if err := s.store.UpdateCheckpoint(b.Name, indexdb.CheckpointPatch{
		LastIndexedBlock: &advancedTo,
		AddEvents:        &total,
		Status:           &status,
		LastError:        &clearErr,
	}); err != nil {
		return nil, err
	}

	logger.Debug("batch committed",
		"family", src.Family(), "name", b.Name, "from", b.From, "advancedTo", advancedTo,
		"events", total, "status", status)
	return &Result{
		AdvancedTo: advancedTo,
		Complete:   status == indexdb.StatusComplete,
		Counters:   counters,
	}, nil
}

// abort records a batch failure without moving the cursor.
func (s *Scanner) abort(b Batch, cause error) error {
	status := indexdb.StatusError
	msg := cause.Error()
	if err := s.store.UpdateCheckpoint(b.Name, indexdb.CheckpointPatch{
		Status:    &status,
		LastError: &msg,
	}); err != nil {
		logger.Error("failed to record batch error", "name", b.Name, "err", err)
	}
	return cause
}
