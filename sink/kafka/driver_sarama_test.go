package kafka

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"tributary/sink"
)

func mockProducer(t *testing.T) *mocks.SyncProducer {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	return mocks.NewSyncProducer(t, cfg)
}

func TestDeliverSendsWholeBatch(t *testing.T) {
	mp := mockProducer(t)
	d := &driver{cfg: Config{Topic: "events"}, p: mp}

	batch := []sink.Event{
		{Headers: map[string]string{"topic": "orders", "offset": "10"}, Body: []byte("a")},
		{Headers: map[string]string{"topic": "orders", "offset": "11"}, Body: []byte("b")},
	}
	for range batch {
		mp.ExpectSendMessageAndSucceed()
	}

	if err := d.Deliver(batch); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if err := mp.Close(); err != nil {
		t.Fatalf("unmet producer expectations: %v", err)
	}
}

func TestDeliverSurfacesProducerError(t *testing.T) {
	mp := mockProducer(t)
	d := &driver{cfg: Config{Topic: "events"}, p: mp}

	mp.ExpectSendMessageAndFail(errors.New("broker unreachable"))

	err := d.Deliver([]sink.Event{{Body: []byte("a")}})
	if err == nil {
		t.Fatal("expected delivery error")
	}
	_ = mp.Close()
}

func TestConfigureRejectsWrongType(t *testing.T) {
	d := &driver{}
	if err := d.Configure(42); err == nil {
		t.Fatal("expected type error")
	}
}
