package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tributary/internal/logging"
	"tributary/offsets"
	"tributary/sink"
	"tributary/source"
)

var testPartition = source.Partition{Topic: "orders", Queue: 3}

func testLimits() Limits {
	return Limits{
		AccumulationThreshold: 10240,
		ResumeThreshold:       1024,
		SpanThreshold:         5000,
		PullAliveWindow:       10 * time.Minute,
	}
}

func makeMessages(from, to int64) []source.Message {
	out := make([]source.Message, 0, to-from+1)
	for off := from; off <= to; off++ {
		out = append(out, source.Message{
			Offset:     off,
			Payload:    []byte("payload"),
			Properties: map[string]string{"k": "v"},
		})
	}
	return out
}

type pullCall struct {
	Partition source.Partition
	Offset    int64
}

type fakeSource struct {
	mu       sync.Mutex
	calls    []pullCall
	PullFunc func(p source.Partition, offset int64, max int) (source.PullResult, error)
}

func (f *fakeSource) Configure(any) error { return nil }
func (f *fakeSource) Close() error        { return nil }

func (f *fakeSource) Partitions(topic string) ([]source.Partition, error) {
	return []source.Partition{testPartition}, nil
}

func (f *fakeSource) Pull(_ context.Context, p source.Partition, _ string, offset int64, max int) (source.PullResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, pullCall{Partition: p, Offset: offset})
	fn := f.PullFunc
	f.mu.Unlock()
	if fn == nil {
		// a real broker long-polls when there is nothing new; slow the
		// chain down so tests do not spin hot
		time.Sleep(2 * time.Millisecond)
		return source.PullResult{Status: source.PullNoNew, NextOffset: offset}, nil
	}
	return fn(p, offset, max)
}

func (f *fakeSource) Calls() []pullCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pullCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeSink struct {
	mu      sync.Mutex
	batches [][]sink.Event
	fail    error
}

func (f *fakeSink) Configure(any) error { return nil }
func (f *fakeSink) Close() error        { return nil }

func (f *fakeSink) Deliver(batch []sink.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	cp := make([]sink.Event, len(batch))
	copy(cp, batch)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeSink) Batches() [][]sink.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]sink.Event, len(f.batches))
	copy(out, f.batches)
	return out
}

// failingStore errors on every operation.
type failingStore struct{}

func (failingStore) Update(source.Partition, int64, bool) error { return errors.New("store down") }
func (failingStore) Persist(source.Partition) error             { return errors.New("store down") }
func (failingStore) Fetch(source.Partition) (int64, error)      { return -1, errors.New("store down") }
func (failingStore) Close() error                               { return nil }

// countingStore wraps another store and counts persist round trips.
type countingStore struct {
	offsets.Store
	mu       sync.Mutex
	persists int
}

func (c *countingStore) Persist(p source.Partition) error {
	c.mu.Lock()
	c.persists++
	c.mu.Unlock()
	return c.Store.Persist(p)
}

func (c *countingStore) Persists() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persists
}

// rig bundles a fully wired core with fake edges for scenario tests.
type rig struct {
	src     *fakeSource
	snk     *fakeSink
	store   offsets.Store
	buffers *BufferRegistry
	flow    *FlowControlRegistry
	resets  *ResetTable
	pool    *Pool
	exec    *Executor
	sched   *Scheduler
	limits  Limits
}

func newRig(t *testing.T, store offsets.Store, limits Limits) *rig {
	t.Helper()
	r := &rig{
		src:     &fakeSource{},
		snk:     &fakeSink{},
		store:   store,
		buffers: NewBufferRegistry(),
		flow:    NewFlowControlRegistry(),
		resets:  NewResetTable(),
		pool:    NewPool(2),
		limits:  limits,
	}
	t.Cleanup(r.pool.Close)
	r.exec = NewExecutor(context.Background(), r.src, r.store, r.buffers, r.flow, r.resets, r.pool,
		logging.L(), ExecutorOptions{
			Filter:          "*",
			PullBatchSize:   32,
			RedeliveryDelay: 10 * time.Millisecond,
			CorrectAttempts: 5,
		})
	meta := EventMeta{Topic: testPartition.Topic, Tag: "*", Extra: "src-1"}
	r.sched = NewScheduler(r.buffers, r.flow, r.exec, r.store, r.snk, 100, meta, logging.L())
	return r
}

func (r *rig) addBuffer(p source.Partition) *Buffer {
	b := NewBuffer(p, r.limits)
	r.buffers.Put(p, b)
	return b
}
