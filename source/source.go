package source

import (
	"context"
	"fmt"
)

// Partition identifies a single queue of a topic. Offsets are monotonically
// increasing and unique within a partition.
type Partition struct {
	Topic string
	Queue int32
}

func (p Partition) String() string { return fmt.Sprintf("%s#%d", p.Topic, p.Queue) }

// Message is one entry of a partition as returned by a pull.
type Message struct {
	Offset     int64
	Payload    []byte
	Properties map[string]string
}

// PullStatus classifies the outcome of a pull.
type PullStatus int

const (
	PullFound PullStatus = iota
	PullNoMatched
	PullNoNew
	PullOffsetIllegal
)

func (s PullStatus) String() string {
	switch s {
	case PullFound:
		return "FOUND"
	case PullNoMatched:
		return "NO_MATCHED"
	case PullNoNew:
		return "NO_NEW"
	case PullOffsetIllegal:
		return "OFFSET_ILLEGAL"
	default:
		return fmt.Sprintf("PullStatus(%d)", int(s))
	}
}

// PullResult carries the classified outcome of a single pull. NextOffset is
// the broker's cursor for the follow-up pull; on PullOffsetIllegal it is the
// broker-suggested replacement for the local checkpoint.
type PullResult struct {
	Status     PullStatus
	NextOffset int64
	Messages   []Message
}

// Source is the upstream a consumer pulls batches from. Pull is synchronous;
// callers that need it asynchronous run it on their own workers.
type Source interface {
	Configure(any) error // driver-specific config struct
	Pull(ctx context.Context, p Partition, filter string, offset int64, maxBatch int) (PullResult, error)
	Partitions(topic string) ([]Partition, error)
	Close() error
}

// Factory builds a Source (e.g., the sarama driver).
type Factory func() Source

var registry = map[string]Factory{}

// Register is called from each driver's init() or main() factory map.
func Register(name string, f Factory) {
	registry[name] = f
}

// New returns a driver by name ("kafka", ...).
func New(name string) (Source, error) {
	if f, ok := registry[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("source: unsupported driver %q", name)
}
