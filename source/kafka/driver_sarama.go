package kafka

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"tributary/offsets"
	"tributary/source"
)

// SaramaDriver serves explicit-offset pulls against Kafka partitions. Each
// Pull opens a bounded read at the requested offset and classifies the
// outcome the way the engine expects: FOUND, NO_MATCHED, NO_NEW, or
// OFFSET_ILLEGAL with the broker's suggested replacement.
type SaramaDriver struct {
	cfg  Config
	cl   sarama.Client
	cons sarama.Consumer
	om   sarama.OffsetManager

	mu   sync.Mutex
	poms map[source.Partition]sarama.PartitionOffsetManager
}

func (d *SaramaDriver) Configure(raw any) error {
	cfg, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("kafka-source: want Config, got %T", raw)
	}
	d.cfg = cfg
	d.poms = make(map[source.Partition]sarama.PartitionOffsetManager)

	ver, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.Consumer.Return.Errors = true
	if cfg.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if cfg.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = cfg.SASLUser, cfg.SASLPass
	}

	if d.cl, err = sarama.NewClient(cfg.Brokers, sc); err != nil {
		return err
	}
	if d.cons, err = sarama.NewConsumerFromClient(d.cl); err != nil {
		return err
	}
	d.om, err = sarama.NewOffsetManagerFromClient(cfg.GroupID, d.cl)
	return err
}

func (d *SaramaDriver) Partitions(topic string) ([]source.Partition, error) {
	ids, err := d.cl.Partitions(topic)
	if err != nil {
		return nil, err
	}
	out := make([]source.Partition, 0, len(ids))
	for _, id := range ids {
		out = append(out, source.Partition{Topic: topic, Queue: id})
	}
	return out, nil
}

func (d *SaramaDriver) Pull(ctx context.Context, p source.Partition, filter string, offset int64, maxBatch int) (source.PullResult, error) {
	oldest, err := d.cl.GetOffset(p.Topic, p.Queue, sarama.OffsetOldest)
	if err != nil {
		return source.PullResult{}, err
	}
	newest, err := d.cl.GetOffset(p.Topic, p.Queue, sarama.OffsetNewest)
	if err != nil {
		return source.PullResult{}, err
	}

	if offset < oldest || offset > newest {
		suggested := oldest
		if offset > newest {
			suggested = newest
		}
		return source.PullResult{Status: source.PullOffsetIllegal, NextOffset: suggested}, nil
	}
	if offset == newest {
		return source.PullResult{Status: source.PullNoNew, NextOffset: offset}, nil
	}

	pc, err := d.cons.ConsumePartition(p.Topic, p.Queue, offset)
	if err != nil {
		if err == sarama.ErrOffsetOutOfRange {
			return source.PullResult{Status: source.PullOffsetIllegal, NextOffset: oldest}, nil
		}
		return source.PullResult{}, err
	}
	defer pc.Close()

	next := offset
	var msgs []source.Message
	timer := time.NewTimer(d.cfg.MaxWait)
	defer timer.Stop()

loop:
	for len(msgs) < maxBatch && next < newest {
		select {
		case <-ctx.Done():
			return source.PullResult{}, ctx.Err()
		case <-timer.C:
			break loop
		case cerr := <-pc.Errors():
			return source.PullResult{}, cerr
		case cm, ok := <-pc.Messages():
			if !ok {
				break loop
			}
			next = cm.Offset + 1
			if matchTag(filter, tagOf(cm)) {
				msgs = append(msgs, toMessage(cm))
			}
		}
	}

	switch {
	case len(msgs) > 0:
		return source.PullResult{Status: source.PullFound, NextOffset: next, Messages: msgs}, nil
	case next > offset:
		return source.PullResult{Status: source.PullNoMatched, NextOffset: next}, nil
	default:
		return source.PullResult{Status: source.PullNoNew, NextOffset: next}, nil
	}
}

func (d *SaramaDriver) Close() error {
	d.mu.Lock()
	for _, pom := range d.poms {
		pom.AsyncClose()
	}
	d.poms = map[source.Partition]sarama.PartitionOffsetManager{}
	d.mu.Unlock()

	if d.om != nil {
		_ = d.om.Close()
	}
	if d.cons != nil {
		_ = d.cons.Close()
	}
	if d.cl != nil {
		return d.cl.Close()
	}
	return nil
}

// OffsetStore exposes the driver's consumer-group offset bookkeeping as an
// offsets.Store sharing this client.
func (d *SaramaDriver) OffsetStore() offsets.Store { return &offsetStore{d: d} }

func tagOf(cm *sarama.ConsumerMessage) string {
	for _, h := range cm.Headers {
		if string(h.Key) == "tag" {
			return string(h.Value)
		}
	}
	return ""
}

// matchTag applies a "a||b||c" style subscription filter; "*" or an empty
// filter matches everything.
func matchTag(filter, tag string) bool {
	if filter == "" || filter == "*" {
		return true
	}
	for _, want := range strings.Split(filter, "||") {
		if strings.TrimSpace(want) == tag {
			return true
		}
	}
	return false
}

func toMessage(cm *sarama.ConsumerMessage) source.Message {
	props := make(map[string]string, len(cm.Headers)+3)
	for _, h := range cm.Headers {
		props[string(h.Key)] = string(h.Value)
	}
	if len(cm.Key) > 0 {
		props["key"] = string(cm.Key)
	}
	props["offset"] = strconv.FormatInt(cm.Offset, 10)
	props["timestamp"] = cm.Timestamp.UTC().Format(time.RFC3339Nano)
	return source.Message{Offset: cm.Offset, Payload: cm.Value, Properties: props}
}

/*──────── offset store ───────*/

type offsetStore struct{ d *SaramaDriver }

func (s *offsetStore) pom(p source.Partition) (sarama.PartitionOffsetManager, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if pom, ok := s.d.poms[p]; ok {
		return pom, nil
	}
	pom, err := s.d.om.ManagePartition(p.Topic, p.Queue)
	if err != nil {
		return nil, err
	}
	s.d.poms[p] = pom
	return pom, nil
}

func (s *offsetStore) Update(p source.Partition, offset int64, flushNow bool) error {
	pom, err := s.pom(p)
	if err != nil {
		return err
	}
	// the stored value is the next offset to consume from
	pom.MarkOffset(offset+1, "")
	if flushNow {
		s.d.om.Commit()
	}
	return nil
}

func (s *offsetStore) Persist(p source.Partition) error {
	if _, err := s.pom(p); err != nil {
		return err
	}
	s.d.om.Commit()
	return nil
}

func (s *offsetStore) Fetch(p source.Partition) (int64, error) {
	pom, err := s.pom(p)
	if err != nil {
		return -1, err
	}
	next, _ := pom.NextOffset()
	if next < 0 {
		// no committed offset for this group yet
		return -1, nil
	}
	return next - 1, nil
}

func (s *offsetStore) Close() error { return nil }

func init() { source.Register("kafka", func() source.Source { return &SaramaDriver{} }) }
