package engine

import (
	"context"
	"time"

	"tributary/internal/config"
	"tributary/internal/logging"
	"tributary/offsets"
	"tributary/sink"
	"tributary/source"
)

// Engine owns the consumption state machine: the single-threaded poll loop,
// the shared worker pool, and the periodic watchdog, persistence, and
// partition-metadata tasks.
type Engine struct {
	cfg config.Config

	src   source.Source
	store offsets.Store
	snk   sink.Adapter

	buffers *BufferRegistry
	flow    *FlowControlRegistry
	resets  *ResetTable
	pool    *Pool

	sched     *Scheduler
	watchdog  *Watchdog
	persister *Persister
	rebalance *RebalanceHandler
	reset     *ResetHandler
}

// Run drives the poll loop until ctx is cancelled: poll, then sleep only
// when the scheduler reports BACKOFF. Background cadences run as tickers
// submitting onto the worker pool.
func (e *Engine) Run(ctx context.Context) error {
	e.refreshAssignments()

	go e.every(ctx, e.cfg.WatchdogInterval, e.watchdog.RunOnce)
	go e.every(ctx, e.cfg.PersistInterval, e.persister.RunOnce)
	go e.every(ctx, e.cfg.MetadataInterval, e.refreshAssignments)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if e.sched.Poll(ctx) == StatusReady {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.BackoffSleep):
		}
	}
}

func (e *Engine) every(ctx context.Context, d time.Duration, fn func()) {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.pool.Submit(fn)
		}
	}
}

// refreshAssignments fetches the partition set of the configured topic and
// feeds it to the rebalance handler. With no group coordination in place
// every known partition is assigned to this consumer.
func (e *Engine) refreshAssignments() {
	parts, err := e.src.Partitions(e.cfg.Topic)
	if err != nil {
		logging.L().Warn("failed to fetch partitions", "topic", e.cfg.Topic, "err", err)
		return
	}
	e.rebalance.Handle(parts, parts)
}

// ResetOffsets records externally requested offset overrides, applied to
// each partition's next pull.
func (e *Engine) ResetOffsets(table map[source.Partition]int64) {
	e.reset.Handle(table)
}

func (e *Engine) Close() error {
	e.pool.Close()
	if e.snk != nil {
		_ = e.snk.Close()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
	if e.src != nil {
		return e.src.Close()
	}
	return nil
}
