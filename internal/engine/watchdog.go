package engine

import (
	"log/slog"

	"tributary/internal/telemetry"
	"tributary/source"
)

// Watchdog periodically removes dropped buffers from the registry and
// restarts pulling for partitions that went stale.
type Watchdog struct {
	buffers *BufferRegistry
	flow    *FlowControlRegistry
	exec    *Executor
	log     *slog.Logger
}

func NewWatchdog(buffers *BufferRegistry, flow *FlowControlRegistry, exec *Executor, log *slog.Logger) *Watchdog {
	return &Watchdog{buffers: buffers, flow: flow, exec: exec, log: log}
}

func (w *Watchdog) RunOnce() {
	w.buffers.Range(func(p source.Partition, buf *Buffer) bool {
		if buf.IsDropped() {
			w.buffers.Delete(p)
			w.log.Info("removed dropped partition from registry", "partition", p.String())
			return true
		}
		if buf.IsPullAlive() {
			return true
		}

		if w.flow.Contains(p) && buf.NeedFlowControl() {
			// a partition both parked and still over the watermark has been
			// under backpressure for the whole liveness window; the sink is
			// consuming too slowly for this to resolve on its own
			w.log.Error("sustained backpressure, sink consuming too slowly",
				"partition", p.String(), "staged", buf.StagedCount(), "span", buf.WindowSpan())
			return true
		}

		w.log.Warn("partition inactive beyond liveness window, resuming",
			"partition", p.String())
		req := w.exec.ResumeRequest(p, buf)
		// refresh before executing so the scheduler does not race us into a
		// duplicate trigger
		buf.RefreshLastPull()
		telemetry.StaleRecoveries.Inc()
		w.exec.Execute(req, 0)
		return true
	})
}
