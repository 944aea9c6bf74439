package engine

import (
	"sync"

	"tributary/source"
)

// BufferRegistry is the live set of partition buffers, shared by the
// scheduler, the executor callbacks, and the background tasks.
type BufferRegistry struct {
	mu sync.RWMutex
	m  map[source.Partition]*Buffer
}

func NewBufferRegistry() *BufferRegistry {
	return &BufferRegistry{m: make(map[source.Partition]*Buffer)}
}

func (r *BufferRegistry) Get(p source.Partition) *Buffer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.m[p]
}

func (r *BufferRegistry) Put(p source.Partition, b *Buffer) {
	r.mu.Lock()
	r.m[p] = b
	r.mu.Unlock()
}

func (r *BufferRegistry) Delete(p source.Partition) {
	r.mu.Lock()
	delete(r.m, p)
	r.mu.Unlock()
}

func (r *BufferRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// Range calls fn for each buffer over a snapshot of the registry; fn
// returning false stops the walk. Taking a snapshot keeps fn free to
// mutate the registry.
func (r *BufferRegistry) Range(fn func(p source.Partition, b *Buffer) bool) {
	r.mu.RLock()
	snapshot := make(map[source.Partition]*Buffer, len(r.m))
	for p, b := range r.m {
		snapshot[p] = b
	}
	r.mu.RUnlock()
	for p, b := range snapshot {
		if !fn(p, b) {
			return
		}
	}
}

// FlowControlRegistry holds the parked pull request of each partition whose
// pulling is suspended. A partition present here has no pull in flight.
type FlowControlRegistry struct {
	mu sync.Mutex
	m  map[source.Partition]*PullRequest
}

func NewFlowControlRegistry() *FlowControlRegistry {
	return &FlowControlRegistry{m: make(map[source.Partition]*PullRequest)}
}

func (r *FlowControlRegistry) Park(p source.Partition, req *PullRequest) {
	r.mu.Lock()
	r.m[p] = req
	r.mu.Unlock()
}

// Take removes and returns the parked request, if any.
func (r *FlowControlRegistry) Take(p source.Partition) (*PullRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.m[p]
	if ok {
		delete(r.m, p)
	}
	return req, ok
}

func (r *FlowControlRegistry) Contains(p source.Partition) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.m[p]
	return ok
}

func (r *FlowControlRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// ResetTable records externally requested offset overrides, applied to the
// next pull request issued for the partition.
type ResetTable struct {
	mu sync.Mutex
	m  map[source.Partition]int64
}

func NewResetTable() *ResetTable {
	return &ResetTable{m: make(map[source.Partition]int64)}
}

func (t *ResetTable) Set(p source.Partition, off int64) {
	t.mu.Lock()
	t.m[p] = off
	t.mu.Unlock()
}

// Take removes and returns the pending override, if any.
func (t *ResetTable) Take(p source.Partition) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	off, ok := t.m[p]
	if ok {
		delete(t.m, p)
	}
	return off, ok
}
