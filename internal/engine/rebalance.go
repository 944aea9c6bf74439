package engine

import (
	"log/slog"

	"tributary/offsets"
	"tributary/source"
)

// RebalanceHandler reacts to externally computed assignment changes: it
// drops revoked partitions and seeds newly assigned ones from the durable
// offset store before issuing their initial pull.
type RebalanceHandler struct {
	buffers  *BufferRegistry
	store    offsets.Store
	exec     *Executor
	limits   Limits
	attempts int
	log      *slog.Logger
}

func NewRebalanceHandler(buffers *BufferRegistry, store offsets.Store, exec *Executor,
	limits Limits, fetchAttempts int, log *slog.Logger) *RebalanceHandler {
	return &RebalanceHandler{
		buffers:  buffers,
		store:    store,
		exec:     exec,
		limits:   limits,
		attempts: fetchAttempts,
		log:      log,
	}
}

// Handle applies a new assignment. all is the externally reported set of
// every known partition of the topic; assigned is the subset now owned by
// this consumer.
func (h *RebalanceHandler) Handle(all, assigned []source.Partition) {
	allSet := make(map[source.Partition]struct{}, len(all))
	for _, p := range all {
		allSet[p] = struct{}{}
	}
	assignedSet := make(map[source.Partition]struct{}, len(assigned))
	for _, p := range assigned {
		assignedSet[p] = struct{}{}
	}

	h.buffers.Range(func(p source.Partition, buf *Buffer) bool {
		if _, mine := assignedSet[p]; !mine {
			buf.SetDropped(true)
			h.buffers.Delete(p)
			h.log.Info("partition revoked", "partition", p.String())
		}
		if _, known := allSet[p]; !known {
			h.log.Warn("partition not among known partitions, broker may be down",
				"partition", p.String())
		}
		return true
	})

	for _, p := range assigned {
		if h.buffers.Get(p) != nil {
			continue
		}
		buf := NewBuffer(p, h.limits)
		h.buffers.Put(p, buf)

		off, err := h.fetchCommitted(p)
		if err != nil {
			h.log.Error("failed to fetch committed offset, starting from 0",
				"partition", p.String(), "err", err)
			off = 0
		}
		if off < 0 {
			off = 0
		}
		buf.SetAckOffset(off)
		h.log.Info("partition assigned", "partition", p.String(), "offset", off)

		h.exec.Execute(h.exec.Request(p, off), 0)
	}
}

func (h *RebalanceHandler) fetchCommitted(p source.Partition) (int64, error) {
	var off int64
	err := withAttempts(h.attempts, func() error {
		var ferr error
		off, ferr = h.store.Fetch(p)
		return ferr
	})
	return off, err
}
