package engine

import (
	"log/slog"

	"tributary/offsets"
	"tributary/source"
)

// ResetHandler applies administratively delivered offset overrides. The
// override is recorded for the partition's next pull request and pushed to
// the durable store right away, best effort.
type ResetHandler struct {
	buffers *BufferRegistry
	resets  *ResetTable
	store   offsets.Store
	log     *slog.Logger
}

func NewResetHandler(buffers *BufferRegistry, resets *ResetTable, store offsets.Store, log *slog.Logger) *ResetHandler {
	return &ResetHandler{buffers: buffers, resets: resets, store: store, log: log}
}

func (h *ResetHandler) Handle(table map[source.Partition]int64) {
	for p, off := range table {
		h.resets.Set(p, off)
	}

	// pushing overrides to the broker can be slow, do it after the table is
	// fully recorded
	for p, off := range table {
		if err := h.store.Update(p, off, false); err != nil {
			h.log.Error("failed to store offset override", "partition", p.String(),
				"offset", off, "err", err)
			continue
		}
		if err := h.store.Persist(p); err != nil {
			h.log.Error("failed to persist offset override", "partition", p.String(),
				"offset", off, "err", err)
			continue
		}
		if buf := h.buffers.Get(p); buf != nil {
			buf.SetAckOffset(off)
		}
		h.log.Info("offset reset", "partition", p.String(), "offset", off)
	}
}
