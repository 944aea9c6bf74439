package engine

import (
	"context"
	"log/slog"
	"time"

	"tributary/internal/telemetry"
	"tributary/offsets"
	"tributary/source"
)

// PullRequest describes one pull against a partition.
type PullRequest struct {
	Partition source.Partition
	Filter    string
	Offset    int64
	BatchSize int
}

func NewPullRequest(p source.Partition, filter string, offset int64, batchSize int) *PullRequest {
	if offset < 0 {
		offset = 0
	}
	return &PullRequest{Partition: p, Filter: filter, Offset: offset, BatchSize: batchSize}
}

// Executor issues pulls on the worker pool and drives each partition's pull
// chain forward: every completion schedules the next request, unless the
// buffer crossed the flow-control watermark, in which case the next request
// is parked until the scheduler resumes it.
type Executor struct {
	ctx     context.Context
	src     source.Source
	store   offsets.Store
	buffers *BufferRegistry
	flow    *FlowControlRegistry
	resets  *ResetTable
	pool    *Pool
	log     *slog.Logger

	filter          string
	pullBatch       int
	redeliveryDelay time.Duration
	correctAttempts int
}

type ExecutorOptions struct {
	Filter          string
	PullBatchSize   int
	RedeliveryDelay time.Duration
	CorrectAttempts int
}

func NewExecutor(ctx context.Context, src source.Source, store offsets.Store,
	buffers *BufferRegistry, flow *FlowControlRegistry, resets *ResetTable,
	pool *Pool, log *slog.Logger, opts ExecutorOptions) *Executor {
	return &Executor{
		ctx:             ctx,
		src:             src,
		store:           store,
		buffers:         buffers,
		flow:            flow,
		resets:          resets,
		pool:            pool,
		log:             log,
		filter:          opts.Filter,
		pullBatch:       opts.PullBatchSize,
		redeliveryDelay: opts.RedeliveryDelay,
		correctAttempts: opts.CorrectAttempts,
	}
}

// Request builds a pull request at the given offset using the executor's
// subscription parameters.
func (e *Executor) Request(p source.Partition, offset int64) *PullRequest {
	return NewPullRequest(p, e.filter, offset, e.pullBatch)
}

// ResumeRequest returns the parked flow-control request if one exists,
// otherwise a fresh request at the buffer's checkpoint.
func (e *Executor) ResumeRequest(p source.Partition, b *Buffer) *PullRequest {
	if req, ok := e.flow.Take(p); ok {
		return req
	}
	return e.Request(p, b.AckOffset())
}

// Execute schedules a pull, immediately or after delay. A pending offset
// override for the partition is applied to the request's start offset and
// cleared.
func (e *Executor) Execute(req *PullRequest, delay time.Duration) {
	if off, ok := e.resets.Take(req.Partition); ok {
		e.log.Info("applying offset override", "partition", req.Partition.String(), "offset", off)
		req.Offset = off
	}
	e.pool.SubmitAfter(delay, func() { e.run(req) })
}

func (e *Executor) run(req *PullRequest) {
	res, err := e.src.Pull(e.ctx, req.Partition, req.Filter, req.Offset, req.BatchSize)
	if err != nil {
		e.onFailure(req, err)
		return
	}
	e.onSuccess(req, res)
}

func (e *Executor) onSuccess(req *PullRequest, res source.PullResult) {
	buf := e.buffers.Get(req.Partition)
	if buf == nil || buf.IsDropped() {
		return
	}
	buf.RefreshLastPull()

	next := res.NextOffset
	switch res.Status {
	case source.PullFound:
		buf.PutMessages(res.Messages)
		telemetry.MessagesPulled.WithLabelValues("found").Add(float64(len(res.Messages)))
		e.log.Debug("pulled messages", "partition", req.Partition.String(),
			"count", len(res.Messages), "next", next)

	case source.PullNoMatched:
		e.log.Debug("no matched message", "partition", req.Partition.String())

	case source.PullNoNew:
		e.log.Debug("no new message", "partition", req.Partition.String())

	case source.PullOffsetIllegal:
		// local checkpoint outside retention, adopt the broker's suggestion
		e.log.Error("illegal offset, adopting broker suggestion",
			"partition", req.Partition.String(), "offset", req.Offset, "suggested", next)
		if err := e.correctOffset(req.Partition, next); err != nil {
			e.log.Error("failed to persist corrected offset",
				"partition", req.Partition.String(), "err", err)
		}

	default:
		e.log.Error("unexpected pull status", "partition", req.Partition.String(),
			"status", res.Status.String())
	}

	nreq := NewPullRequest(req.Partition, req.Filter, next, req.BatchSize)
	if buf.NeedFlowControl() {
		e.flow.Park(req.Partition, nreq)
		telemetry.FlowControlEngaged.Inc()
		e.log.Warn("flow control enforced", "partition", req.Partition.String(),
			"staged", buf.StagedCount(), "span", buf.WindowSpan())
		return
	}
	e.Execute(nreq, 0)
}

func (e *Executor) onFailure(req *PullRequest, err error) {
	telemetry.PullErrors.Inc()
	buf := e.buffers.Get(req.Partition)
	if buf == nil || buf.IsDropped() {
		return
	}
	e.log.Error("pull failed", "partition", req.Partition.String(),
		"offset", req.Offset, "err", err)
	buf.RefreshLastPull()

	// same starting offset, no progress assumed
	e.Execute(NewPullRequest(req.Partition, req.Filter, req.Offset, req.BatchSize), e.redeliveryDelay)
}

func (e *Executor) correctOffset(p source.Partition, off int64) error {
	return withAttempts(e.correctAttempts, func() error {
		if err := e.store.Update(p, off, false); err != nil {
			return err
		}
		return e.store.Persist(p)
	})
}
