package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tributary/internal/logging"
	"tributary/offsets/memory"
)

func TestWatchdogRemovesDroppedBuffers(t *testing.T) {
	r := newRig(t, memory.New(), testLimits())
	buf := r.addBuffer(testPartition)
	buf.SetDropped(true)

	w := NewWatchdog(r.buffers, r.flow, r.exec, logging.L())
	w.RunOnce()

	assert.Nil(t, r.buffers.Get(testPartition))
	assert.Empty(t, r.src.Calls(), "no pull may be issued for a dropped partition")
}

func TestWatchdogLeavesLivePartitionsAlone(t *testing.T) {
	r := newRig(t, memory.New(), testLimits())
	r.addBuffer(testPartition) // fresh, alive

	w := NewWatchdog(r.buffers, r.flow, r.exec, logging.L())
	w.RunOnce()

	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, r.src.Calls())
}

func TestWatchdogResumesStalePartition(t *testing.T) {
	limits := testLimits()
	limits.PullAliveWindow = 20 * time.Millisecond
	r := newRig(t, memory.New(), limits)
	buf := r.addBuffer(testPartition)
	buf.SetAckOffset(271)
	time.Sleep(30 * time.Millisecond)

	w := NewWatchdog(r.buffers, r.flow, r.exec, logging.L())
	w.RunOnce()

	require.Eventually(t, func() bool {
		for _, c := range r.src.Calls() {
			if c.Offset == 271 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "stale partition was not resumed at its checkpoint")
	assert.True(t, buf.IsPullAlive())
}

func TestWatchdogPrefersParkedRequest(t *testing.T) {
	limits := testLimits()
	limits.PullAliveWindow = 20 * time.Millisecond
	r := newRig(t, memory.New(), limits)
	r.addBuffer(testPartition)
	r.flow.Park(testPartition, NewPullRequest(testPartition, "*", 888, 32))
	time.Sleep(30 * time.Millisecond)

	w := NewWatchdog(r.buffers, r.flow, r.exec, logging.L())
	w.RunOnce()

	require.Eventually(t, func() bool {
		for _, c := range r.src.Calls() {
			if c.Offset == 888 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	assert.False(t, r.flow.Contains(testPartition))
}

func TestWatchdogSkipsSustainedBackpressure(t *testing.T) {
	limits := testLimits()
	limits.PullAliveWindow = 20 * time.Millisecond
	limits.AccumulationThreshold = 10
	r := newRig(t, memory.New(), limits)
	buf := r.addBuffer(testPartition)
	buf.PutMessages(makeMessages(0, 19)) // over the watermark
	r.flow.Park(testPartition, NewPullRequest(testPartition, "*", 20, 32))
	time.Sleep(30 * time.Millisecond)

	w := NewWatchdog(r.buffers, r.flow, r.exec, logging.L())
	w.RunOnce()

	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, r.src.Calls(), "backpressured partition must not be force-resumed")
	assert.True(t, r.flow.Contains(testPartition), "parked request must stay parked")
}

func TestPersisterFlushesUnpersistedProgress(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	r := newRig(t, store, testLimits())
	buf := r.addBuffer(testPartition)
	msgs := makeMessages(100, 119)
	buf.PutMessages(msgs)
	buf.Ack(msgs)
	require.False(t, buf.IsPersisted())

	pt := NewPersister(r.buffers, store, logging.L())
	pt.RunOnce()

	off, err := store.Fetch(testPartition)
	require.NoError(t, err)
	assert.Equal(t, int64(119), off)
	assert.True(t, buf.IsPersisted())
	assert.Equal(t, 1, store.Persists())

	// nothing new: the next cycle is a no-op
	pt.RunOnce()
	assert.Equal(t, 1, store.Persists())
}

func TestPersisterRetriesNextCycleOnFailure(t *testing.T) {
	r := newRig(t, failingStore{}, testLimits())
	buf := r.addBuffer(testPartition)
	msgs := makeMessages(100, 101)
	buf.PutMessages(msgs)
	buf.Ack(msgs)

	pt := NewPersister(r.buffers, failingStore{}, logging.L())
	pt.RunOnce()
	assert.False(t, buf.IsPersisted(), "failed flush must stay pending for the next cycle")
}

func TestPersisterSkipsCleanBuffers(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	r := newRig(t, store, testLimits())
	r.addBuffer(testPartition) // no progress yet, persisted by construction

	pt := NewPersister(r.buffers, store, logging.L())
	pt.RunOnce()
	assert.Equal(t, 0, store.Persists())
}
