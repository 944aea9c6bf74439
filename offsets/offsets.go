package offsets

import (
	"fmt"

	"tributary/source"
)

// Store keeps the committed consume offset of each partition. Update mutates
// the in-memory view (optionally flushing right away); Persist makes the
// current view durable; Fetch reads the last durable value.
type Store interface {
	Update(p source.Partition, offset int64, flushNow bool) error
	Persist(p source.Partition) error
	Fetch(p source.Partition) (int64, error)
	Close() error
}

type factory = func() Store

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func New(name string) (Store, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("offsets: unknown store %q", name)
}
