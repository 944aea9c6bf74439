package engine

import (
	"log/slog"

	"tributary/internal/telemetry"
	"tributary/offsets"
	"tributary/source"
)

// Persister periodically flushes the checkpoint of every buffer with
// unpersisted progress. Failures are retried on the next cycle; consumption
// is never blocked on durability.
type Persister struct {
	buffers *BufferRegistry
	store   offsets.Store
	log     *slog.Logger
}

func NewPersister(buffers *BufferRegistry, store offsets.Store, log *slog.Logger) *Persister {
	return &Persister{buffers: buffers, store: store, log: log}
}

func (t *Persister) RunOnce() {
	t.buffers.Range(func(p source.Partition, buf *Buffer) bool {
		if buf.IsPersisted() {
			return true
		}
		off := buf.AckOffset()
		if err := t.store.Update(p, off, false); err != nil {
			t.log.Warn("failed to persist consume offset", "partition", p.String(),
				"offset", off, "err", err)
			return true
		}
		if err := t.store.Persist(p); err != nil {
			t.log.Warn("failed to persist consume offset", "partition", p.String(),
				"offset", off, "err", err)
			return true
		}
		buf.MarkPersisted()
		telemetry.OffsetFlushes.Inc()
		t.log.Debug("offset persisted", "partition", p.String(), "offset", off)
		return true
	})
}
