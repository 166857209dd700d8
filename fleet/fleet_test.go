// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package fleet

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfklabs/indexd/chainrpc"
	"github.com/dfklabs/indexd/co"
	"github.com/dfklabs/indexd/dfk"
	"github.com/dfklabs/indexd/indexdb"
	"github.com/dfklabs/indexd/progress"
	"github.com/dfklabs/indexd/scan"
	"github.com/dfklabs/indexd/sched"
)

type fakeClient struct {
	head      uint64
	headErrs  atomic.Int64 // remaining BlockNumber failures
	headCalls atomic.Int64
}

func (f *fakeClient) BlockNumber(context.Context) (uint64, error) {
	f.headCalls.Add(1)
	if f.headErrs.Load() > 0 {
		f.headErrs.Add(-1)
		return 0, rpc.HTTPError{StatusCode: 404}
	}
	return f.head, nil
}

func (f *fakeClient) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeClient) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("not used")
}

type nullSource struct {
	processed atomic.Int64
}

func (s *nullSource) Family() string              { return "test" }
func (s *nullSource) Chain() dfk.ChainID          { return dfk.ChainDFK }
func (s *nullSource) Addresses() []common.Address { return nil }
func (s *nullSource) Topics() [][]common.Hash     { return nil }

func (s *nullSource) Process(context.Context, []types.Log) (progress.Counters, error) {
	s.processed.Add(1)
	return nil, nil
}

type harness struct {
	store      *indexdb.DB
	client     *fakeClient
	tracker    *progress.Tracker
	leases     *co.LeaseMap
	arbiter    *Arbiter
	controller *Controller
	scheduler  *sched.Scheduler
	supervisor *Supervisor
}

func newHarness(t *testing.T, head uint64) *harness {
	t.Helper()
	store, err := indexdb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client := &fakeClient{head: head}
	pool := chainrpc.NewPool(chainrpc.Config{})
	pool.SetClient(dfk.ChainDFK, client)

	tracker := progress.NewTracker()
	scanner := scan.New(pool, store, tracker)
	leases := co.NewLeaseMap()
	arbiter := NewArbiter(store)
	controller := NewController(store, pool, scanner, tracker, leases, arbiter)
	scheduler := sched.New()
	t.Cleanup(scheduler.Shutdown)
	supervisor := NewSupervisor(store, pool, controller, scheduler, leases, tracker)
	supervisor.probeBackoff = time.Millisecond
	supervisor.downsizeWait = time.Millisecond
	return &harness{
		store: store, client: client, tracker: tracker, leases: leases,
		arbiter: arbiter, controller: controller, scheduler: scheduler, supervisor: supervisor,
	}
}

func spec(name string, batchSize uint64, src scan.Source) WorkerSpec {
	return WorkerSpec{
		Name: name, Scope: "test-dfk", WorkerID: 1,
		Chain: dfk.ChainDFK, BatchSize: batchSize, Source: src,
	}
}

func TestControllerBatches(t *testing.T) {
	h := newHarness(t, 10_000)
	end := uint64(5000)
	_, err := h.store.InitCheckpoint("test-dfk-w1", "test", "test-dfk", 0, &end)
	require.NoError(t, err)

	w := spec("test-dfk-w1", 3000, &nullSource{})
	require.NoError(t, h.controller.RunOnce(context.Background(), w))

	cp, _ := h.store.GetCheckpoint("test-dfk-w1")
	assert.Equal(t, uint64(3000), cp.LastIndexedBlock, "one batch, capped by batch size")
	assert.Equal(t, indexdb.StatusIdle, cp.Status)

	require.NoError(t, h.controller.RunOnce(context.Background(), w))
	cp, _ = h.store.GetCheckpoint("test-dfk-w1")
	assert.Equal(t, uint64(5000), cp.LastIndexedBlock)
	assert.Equal(t, indexdb.StatusComplete, cp.Status)

	// a third wake with nothing to do is a no-op
	require.NoError(t, h.controller.RunOnce(context.Background(), w))
	cp, _ = h.store.GetCheckpoint("test-dfk-w1")
	assert.Equal(t, indexdb.StatusComplete, cp.Status)
}

func TestControllerTailsHead(t *testing.T) {
	h := newHarness(t, 4000)
	_, err := h.store.InitCheckpoint("test-dfk-w1", "test", "test-dfk", 0, nil)
	require.NoError(t, err)

	w := spec("test-dfk-w1", BatchSizeDefault, &nullSource{})
	require.NoError(t, h.controller.RunOnce(context.Background(), w))

	cp, _ := h.store.GetCheckpoint("test-dfk-w1")
	assert.Equal(t, uint64(4000), cp.LastIndexedBlock, "open range runs to head")
	assert.Equal(t, indexdb.StatusIdle, cp.Status, "head-tailing workers never complete")

	// head moves, next wake picks up the delta
	h.client.head = 4500
	require.NoError(t, h.controller.RunOnce(context.Background(), w))
	cp, _ = h.store.GetCheckpoint("test-dfk-w1")
	assert.Equal(t, uint64(4500), cp.LastIndexedBlock)
}

func TestControllerReentrancy(t *testing.T) {
	h := newHarness(t, 1000)
	_, err := h.store.InitCheckpoint("test-dfk-w1", "test", "test-dfk", 0, nil)
	require.NoError(t, err)

	release, err := h.leases.Acquire("test-dfk-w1")
	require.NoError(t, err)
	defer release()

	err = h.controller.RunOnce(context.Background(), spec("test-dfk-w1", 1000, &nullSource{}))
	assert.ErrorIs(t, err, co.ErrAlreadyRunning)

	cp, _ := h.store.GetCheckpoint("test-dfk-w1")
	assert.Equal(t, uint64(0), cp.LastIndexedBlock, "no side effects")
}

func TestControllerHeadProbeFailure(t *testing.T) {
	h := newHarness(t, 1000)
	_, err := h.store.InitCheckpoint("test-dfk-w1", "test", "test-dfk", 0, nil)
	require.NoError(t, err)

	h.client.headErrs.Store(100)
	err = h.controller.RunOnce(context.Background(), spec("test-dfk-w1", 1000, &nullSource{}))
	require.Error(t, err)

	cp, _ := h.store.GetCheckpoint("test-dfk-w1")
	assert.Equal(t, indexdb.StatusError, cp.Status)
	assert.NotEmpty(t, cp.LastError)
}

func TestStealHalvesBiggestDonor(t *testing.T) {
	h := newHarness(t, 4_000_000)

	thiefEnd := uint64(1000)
	_, err := h.store.InitCheckpoint("test-dfk-w1", "test", "test-dfk", 0, &thiefEnd)
	require.NoError(t, err)
	donorEnd := uint64(3_000_000)
	_, err = h.store.InitCheckpoint("test-dfk-w2", "test", "test-dfk", 0, &donorEnd)
	require.NoError(t, err)
	smallEnd := uint64(600_000)
	_, err = h.store.InitCheckpoint("test-dfk-w3", "test", "test-dfk", 0, &smallEnd)
	require.NoError(t, err)

	st, err := h.arbiter.TrySteal("test-dfk-w1", "test-dfk", 4_000_000)
	require.NoError(t, err)
	require.NotNil(t, st)

	assert.Equal(t, "test-dfk-w2", st.Donor, "w3 is below 2*MinSteal")
	assert.Equal(t, uint64(1_500_000), st.NewDonorEnd)
	assert.Equal(t, uint64(1_500_001), st.ThiefStart)
	assert.Equal(t, uint64(3_000_000), st.ThiefEnd)
	assert.Equal(t, uint64(1_499_999), st.BlocksStolen)

	donor, _ := h.store.GetCheckpoint("test-dfk-w2")
	require.NotNil(t, donor.RangeEnd)
	assert.Equal(t, uint64(1_500_000), *donor.RangeEnd)

	thief, _ := h.store.GetCheckpoint("test-dfk-w1")
	assert.Equal(t, uint64(1_500_001), thief.RangeStart)
	require.NotNil(t, thief.RangeEnd)
	assert.Equal(t, uint64(3_000_000), *thief.RangeEnd)
	assert.Equal(t, uint64(1_500_001), thief.LastIndexedBlock, "cursor restarts at stolen start")
	assert.Equal(t, indexdb.StatusIdle, thief.Status)
}

func TestStealSplitsAtDonorCursor(t *testing.T) {
	h := newHarness(t, 60_000_000)

	thiefEnd := uint64(10_000_000)
	_, err := h.store.InitCheckpoint("test-dfk-w1", "test", "test-dfk", 0, &thiefEnd)
	require.NoError(t, err)
	donorEnd := uint64(50_000_000)
	_, err = h.store.InitCheckpoint("test-dfk-w2", "test", "test-dfk", 10_000_001, &donorEnd)
	require.NoError(t, err)
	cursor := uint64(15_000_000)
	require.NoError(t, h.store.UpdateCheckpoint("test-dfk-w2", indexdb.CheckpointPatch{LastIndexedBlock: &cursor}))

	st, err := h.arbiter.TrySteal("test-dfk-w1", "test-dfk", 60_000_000)
	require.NoError(t, err)
	require.NotNil(t, st)

	// half of the donor's remaining work, not half of its whole range
	assert.Equal(t, uint64(32_500_000), st.NewDonorEnd)
	assert.Equal(t, uint64(32_500_001), st.ThiefStart)
	assert.Equal(t, uint64(50_000_000), st.ThiefEnd)
	assert.Equal(t, uint64(17_499_999), st.BlocksStolen)

	donor, _ := h.store.GetCheckpoint("test-dfk-w2")
	assert.Equal(t, uint64(15_000_000), donor.LastIndexedBlock, "donor cursor untouched")
	require.NotNil(t, donor.RangeEnd)
	assert.Equal(t, uint64(32_500_000), *donor.RangeEnd)
}

func TestStealSkipsIneligibleDonors(t *testing.T) {
	h := newHarness(t, 1_000_000)

	thiefEnd := uint64(1000)
	_, err := h.store.InitCheckpoint("test-dfk-w1", "test", "test-dfk", 0, &thiefEnd)
	require.NoError(t, err)
	smallEnd := uint64(900_000) // remaining < 2*MinSteal
	_, err = h.store.InitCheckpoint("test-dfk-w2", "test", "test-dfk", 0, &smallEnd)
	require.NoError(t, err)
	bigEnd := uint64(5_000_000)
	_, err = h.store.InitCheckpoint("test-dfk-w3", "test", "test-dfk", 0, &bigEnd)
	require.NoError(t, err)
	st := indexdb.StatusComplete
	require.NoError(t, h.store.UpdateCheckpoint("test-dfk-w3", indexdb.CheckpointPatch{Status: &st}))
	// tail worker: plenty remaining but its open range end must stay
	_, err = h.store.InitCheckpoint("test-dfk-w4", "test", "test-dfk", 0, nil)
	require.NoError(t, err)

	got, err := h.arbiter.TrySteal("test-dfk-w1", "test-dfk", 1_000_000)
	require.NoError(t, err)
	assert.Nil(t, got, "no eligible donor")
}

func TestStealRespectsReservation(t *testing.T) {
	h := newHarness(t, 4_000_000)

	thiefEnd := uint64(1000)
	_, err := h.store.InitCheckpoint("test-dfk-w1", "test", "test-dfk", 0, &thiefEnd)
	require.NoError(t, err)
	donorEnd := uint64(3_000_000)
	_, err = h.store.InitCheckpoint("test-dfk-w2", "test", "test-dfk", 0, &donorEnd)
	require.NoError(t, err)

	require.True(t, h.arbiter.reservations.TryReserve("test-dfk-w2", time.Minute))
	got, err := h.arbiter.TrySteal("test-dfk-w1", "test-dfk", 4_000_000)
	require.NoError(t, err)
	assert.Nil(t, got, "reserved donor is off limits")

	h.arbiter.reservations.Release("test-dfk-w2")
	got, err = h.arbiter.TrySteal("test-dfk-w1", "test-dfk", 4_000_000)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestPartition(t *testing.T) {
	ranges := partition(0, 99, 4)
	require.Len(t, ranges, 4)
	assert.Equal(t, uint64(0), ranges[0].start)
	require.NotNil(t, ranges[0].end)
	assert.Equal(t, uint64(24), *ranges[0].end)
	assert.Equal(t, uint64(75), ranges[3].start)
	assert.Nil(t, ranges[3].end, "last worker tails the head")

	single := partition(16_350_000, 20_000_000, 1)
	require.Len(t, single, 1)
	assert.Equal(t, uint64(16_350_000), single[0].start)
	assert.Nil(t, single[0].end)
}

func TestSupervisorStartsPool(t *testing.T) {
	h := newHarness(t, 100_000)
	src := &nullSource{}

	err := h.supervisor.StartPool(context.Background(), PoolSpec{
		Family: "test", Scope: "test-dfk", Chain: dfk.ChainDFK,
		Workers: 4, MinWorkers: 3, BatchSize: BatchSizeDefault,
		Interval: time.Hour, LPToken: "0x2222", Source: src,
	})
	require.NoError(t, err)

	cps, err := h.store.ListCheckpoints("test-dfk")
	require.NoError(t, err)
	require.Len(t, cps, 4)
	assert.Nil(t, cps[3].RangeEnd)
	assert.Equal(t, "0x2222", cps[0].LPToken)

	assert.Equal(t, map[string]int{"test-dfk": 4}, h.supervisor.WorkerCountSummary())
	assert.Len(t, h.scheduler.List("test-dfk"), 4)

	h.supervisor.StopPool("test-dfk")
	assert.Empty(t, h.scheduler.List("test-dfk"))
	assert.Empty(t, h.supervisor.WorkerCountSummary())
}

func TestSupervisorFailsafeDownsizes(t *testing.T) {
	h := newHarness(t, 100_000)
	// each launch probes twice; fail the first two launches (4 probes),
	// then recover
	h.client.headErrs.Store(4)

	err := h.supervisor.StartPool(context.Background(), PoolSpec{
		Family: "test", Scope: "test-dfk", Chain: dfk.ChainDFK,
		Workers: 5, MinWorkers: 3, BatchSize: BatchSizeDefault,
		Interval: time.Hour, Source: &nullSource{},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"test-dfk": 4}, h.supervisor.WorkerCountSummary(),
		"two consecutive failures cost one worker")
	cps, _ := h.store.ListCheckpoints("test-dfk")
	assert.Len(t, cps, 4)
}

func TestSupervisorGivesUpAtFloor(t *testing.T) {
	h := newHarness(t, 100_000)
	h.client.headErrs.Store(1000)

	err := h.supervisor.StartPool(context.Background(), PoolSpec{
		Family: "test", Scope: "test-dfk", Chain: dfk.ChainDFK,
		Workers: 4, MinWorkers: 3, BatchSize: BatchSizeDefault,
		Interval: time.Hour, Source: &nullSource{},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRPCFailed)
	assert.Empty(t, h.supervisor.WorkerCountSummary())
}

func TestResetPoolDeletesCheckpoints(t *testing.T) {
	h := newHarness(t, 100_000)
	require.NoError(t, h.supervisor.StartPool(context.Background(), PoolSpec{
		Family: "test", Scope: "test-dfk", Chain: dfk.ChainDFK,
		Workers: 3, MinWorkers: 3, BatchSize: BatchSizeDefault,
		Interval: time.Hour, Source: &nullSource{},
	}))

	require.NoError(t, h.supervisor.ResetPool("test-dfk"))
	cps, err := h.store.ListCheckpoints("test-dfk")
	require.NoError(t, err)
	assert.Empty(t, cps)
}
