package engine

import (
	"context"
	"log/slog"
	"maps"

	"tributary/internal/telemetry"
	"tributary/offsets"
	"tributary/sink"
	"tributary/source"
)

// Status is the outcome of one poll step; the external driver decides how
// long to sleep on StatusBackoff before the next call.
type Status int

const (
	StatusReady Status = iota
	StatusBackoff
)

func (s Status) String() string {
	if s == StatusReady {
		return "READY"
	}
	return "BACKOFF"
}

// EventMeta is the static metadata attached to every emitted event.
type EventMeta struct {
	Topic string
	Tag   string
	Extra string
}

// Scheduler drains staged messages to the downstream sink in offset order,
// acknowledges them, and resumes parked or stalled pulls. Poll must only
// ever run on one goroutine; that single ownership is what guarantees
// ordered delivery.
type Scheduler struct {
	buffers *BufferRegistry
	flow    *FlowControlRegistry
	exec    *Executor
	store   offsets.Store
	sink    sink.Adapter
	batch   int // fixed delivery batch size
	meta    EventMeta
	log     *slog.Logger
}

func NewScheduler(buffers *BufferRegistry, flow *FlowControlRegistry, exec *Executor,
	store offsets.Store, snk sink.Adapter, batch int, meta EventMeta, log *slog.Logger) *Scheduler {
	return &Scheduler{
		buffers: buffers,
		flow:    flow,
		exec:    exec,
		store:   store,
		sink:    snk,
		batch:   batch,
		meta:    meta,
		log:     log,
	}
}

// Poll runs one scheduling step over all partition buffers. It returns
// StatusReady after draining one partition's staged batch, StatusBackoff
// when no partition yielded work. Errors never escape: state is left
// consistent and the step degrades to StatusBackoff for a safe retry.
func (s *Scheduler) Poll(ctx context.Context) Status {
	status, err := s.poll(ctx)
	if err != nil {
		s.log.Error("poll step failed", "err", err)
		return StatusBackoff
	}
	return status
}

func (s *Scheduler) poll(ctx context.Context) (Status, error) {
	status := StatusBackoff
	var pollErr error

	s.buffers.Range(func(p source.Partition, buf *Buffer) bool {
		if err := ctx.Err(); err != nil {
			pollErr = err
			return false
		}
		if buf.HasPending() {
			if err := s.drain(p, buf); err != nil {
				pollErr = err
				return false
			}
			status = StatusReady
			return false
		}

		// nothing staged: recover a stalled pull, or hand back a parked one
		if !buf.IsPullAlive() {
			s.log.Warn("partition inactive beyond liveness window, resuming",
				"partition", p.String())
			// refresh before executing so a concurrent watchdog scan does
			// not schedule a duplicate
			buf.RefreshLastPull()
			telemetry.StaleRecoveries.Inc()
			s.exec.Execute(s.exec.ResumeRequest(p, buf), 0)
		} else if req, ok := s.flow.Take(p); ok {
			s.log.Warn("resuming pull from flow control", "partition", p.String())
			s.exec.Execute(req, 0)
		}
		return true
	})

	return status, pollErr
}

// drain delivers one batch from the buffer to the sink and acknowledges it.
// Delivery is atomic: a sink error leaves everything staged for the next
// attempt, providing at-least-once semantics.
func (s *Scheduler) drain(p source.Partition, buf *Buffer) error {
	msgs := buf.Peek(s.batch)
	if len(msgs) == 0 {
		return nil
	}
	events := make([]sink.Event, 0, len(msgs))
	for _, m := range msgs {
		events = append(events, s.wrap(m))
	}

	if err := s.sink.Deliver(events); err != nil {
		return err
	}

	buf.Ack(msgs)
	telemetry.MessagesDelivered.Add(float64(len(msgs)))

	// best effort, the periodic persistence task catches up on failure
	if err := s.store.Update(p, buf.AckOffset(), true); err != nil {
		s.log.Warn("checkpoint flush failed", "partition", p.String(),
			"offset", buf.AckOffset(), "err", err)
	} else {
		telemetry.OffsetFlushes.Inc()
	}

	if s.flow.Contains(p) && buf.MayResumePull() {
		if req, ok := s.flow.Take(p); ok {
			s.log.Warn("resuming pull from flow control", "partition", p.String())
			s.exec.Execute(req, 0)
		}
	}
	return nil
}

func (s *Scheduler) wrap(m source.Message) sink.Event {
	headers := map[string]string{
		"topic": s.meta.Topic,
		"tag":   s.meta.Tag,
		"extra": s.meta.Extra,
	}
	maps.Copy(headers, m.Properties)
	return sink.Event{Headers: headers, Body: m.Payload}
}
