package engine

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tributary/source"
)

// Limits are the flow-control and liveness thresholds of a partition buffer.
// AccumulationThreshold and ResumeThreshold form a hysteresis band: pulling
// stops at the high watermark and resumes only below the low one.
type Limits struct {
	AccumulationThreshold int
	ResumeThreshold       int
	SpanThreshold         int64
	PullAliveWindow       time.Duration
}

// Buffer stages pulled-but-unprocessed messages of one partition and tracks
// acknowledgment progress. ackOffset is the highest contiguous acknowledged
// offset; window holds acknowledged offsets beyond a gap, waiting for the
// gap to close.
type Buffer struct {
	partition source.Partition
	limits    Limits

	lastPull atomic.Int64 // unix nanos of the last pull attempt
	dropped  atomic.Bool

	mu        sync.RWMutex
	staged    map[int64]source.Message
	order     []int64 // staged offsets, ascending
	window    []int64 // acked offsets > ackOffset, ascending
	maxOffset int64
	ackOffset int64
	persisted bool
}

func NewBuffer(p source.Partition, limits Limits) *Buffer {
	b := &Buffer{
		partition: p,
		limits:    limits,
		staged:    make(map[int64]source.Message),
		persisted: true,
	}
	b.lastPull.Store(time.Now().UnixNano())
	return b
}

func (b *Buffer) Partition() source.Partition { return b.partition }

// PutMessages stages a pulled batch by offset.
func (b *Buffer) PutMessages(msgs []source.Message) {
	if len(msgs) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range msgs {
		if _, dup := b.staged[m.Offset]; !dup {
			b.order = insertSorted(b.order, m.Offset)
		}
		b.staged[m.Offset] = m
		if m.Offset > b.maxOffset {
			b.maxOffset = m.Offset
		}
	}
}

// Peek returns up to n lowest-offset staged messages without removing them.
// Repeated calls with no intervening Ack return the same messages.
func (b *Buffer) Peek(n int) []source.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n > len(b.order) {
		n = len(b.order)
	}
	out := make([]source.Message, 0, n)
	for _, off := range b.order[:n] {
		out = append(out, b.staged[off])
	}
	return out
}

// Ack removes the given messages from the staged set and advances ackOffset
// through the maximal contiguous prefix. Offsets beyond a gap stay in the
// window until the gap closes, so the checkpoint only ever represents a
// fully contiguous prefix.
func (b *Buffer) Ack(msgs []source.Message) {
	if len(msgs) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range msgs {
		if _, ok := b.staged[m.Offset]; ok {
			delete(b.staged, m.Offset)
			b.order = removeSorted(b.order, m.Offset)
		}
		b.window = insertSorted(b.window, m.Offset)
	}

	if b.ackOffset <= 0 {
		b.ackOffset = b.window[0] - 1
	}

	for len(b.window) > 0 {
		switch {
		case b.window[0] == b.ackOffset+1:
			b.ackOffset++
			b.window = b.window[1:]
			b.persisted = false
		case b.window[0] <= b.ackOffset:
			// already covered by the checkpoint, drop without advancing
			b.window = b.window[1:]
		default:
			return
		}
	}
}

func (b *Buffer) HasPending() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.staged) > 0
}

func (b *Buffer) StagedCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.staged)
}

// WindowSpan is the distance between the lowest and highest acknowledged
// offsets not yet contiguous with the checkpoint.
func (b *Buffer) WindowSpan() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.window) == 0 {
		return 0
	}
	return b.window[len(b.window)-1] - b.window[0]
}

// NeedFlowControl reports whether pulling must be suspended for this
// partition.
func (b *Buffer) NeedFlowControl() bool {
	b.mu.RLock()
	staged := len(b.staged)
	b.mu.RUnlock()
	return staged >= b.limits.AccumulationThreshold ||
		b.WindowSpan() >= b.limits.SpanThreshold
}

// MayResumePull reports whether a parked pull may be re-issued. The resume
// threshold sits well below the accumulation threshold so the two never
// oscillate at the boundary.
func (b *Buffer) MayResumePull() bool {
	b.mu.RLock()
	staged := len(b.staged)
	b.mu.RUnlock()
	return staged <= b.limits.ResumeThreshold &&
		b.WindowSpan() < b.limits.SpanThreshold
}

func (b *Buffer) RefreshLastPull() { b.lastPull.Store(time.Now().UnixNano()) }

// IsPullAlive reports whether a pull attempt (success or failure) happened
// inside the liveness window.
func (b *Buffer) IsPullAlive() bool {
	return time.Since(time.Unix(0, b.lastPull.Load())) < b.limits.PullAliveWindow
}

func (b *Buffer) IsDropped() bool   { return b.dropped.Load() }
func (b *Buffer) SetDropped(v bool) { b.dropped.Store(v) }

func (b *Buffer) AckOffset() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ackOffset
}

func (b *Buffer) SetAckOffset(off int64) {
	b.mu.Lock()
	b.ackOffset = off
	b.mu.Unlock()
}

func (b *Buffer) MaxOffset() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.maxOffset
}

func (b *Buffer) IsPersisted() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.persisted
}

func (b *Buffer) MarkPersisted() {
	b.mu.Lock()
	b.persisted = true
	b.mu.Unlock()
}

func (b *Buffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return fmt.Sprintf("buffer[%s ack=%d max=%d staged=%d window=%d dropped=%t]",
		b.partition, b.ackOffset, b.maxOffset, len(b.staged), len(b.window), b.dropped.Load())
}

func insertSorted(s []int64, v int64) []int64 {
	// pulls arrive nearly in order, so appending is the common case
	if n := len(s); n == 0 || s[n-1] < v {
		return append(s, v)
	}
	i := sort.Search(len(s), func(i int) bool { return s[i] >= v })
	if s[i] == v {
		return s
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeSorted(s []int64, v int64) []int64 {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= v })
	if i == len(s) || s[i] != v {
		return s
	}
	return append(s[:i], s[i+1:]...)
}
