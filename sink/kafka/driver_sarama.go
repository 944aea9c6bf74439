package kafka

import (
	"fmt"

	"github.com/IBM/sarama"

	"tributary/sink"
)

type Config struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Acks    int16    `yaml:"required_acks"` // 0,1,-1
}

type driver struct {
	cfg Config
	p   sarama.SyncProducer
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: want Config, got %T", c)
	}
	d.cfg = cfg

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Successes = true
	var err error
	d.p, err = sarama.NewSyncProducer(cfg.Brokers, sc)
	return err
}

// Deliver forwards the whole batch in one SendMessages call; sarama fails the
// call if any record is not acknowledged, which keeps the batch atomic from
// the engine's point of view.
func (d *driver) Deliver(batch []sink.Event) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(batch))
	for _, ev := range batch {
		msg := &sarama.ProducerMessage{
			Topic: d.cfg.Topic,
			Value: sarama.ByteEncoder(ev.Body),
		}
		for k, v := range ev.Headers {
			msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
		}
		msgs = append(msgs, msg)
	}
	return d.p.SendMessages(msgs)
}

func (d *driver) Close() error {
	return d.p.Close()
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
