package sink

import "fmt"

// Event is one message wrapped for downstream delivery: the raw payload plus
// the static metadata and per-message properties attached as headers.
type Event struct {
	Headers map[string]string
	Body    []byte
}

// Adapter is the common behaviour every sink exposes. Deliver is atomic over
// the whole batch: an error means nothing in the batch may be acknowledged.
type Adapter interface {
	Configure(any) error // driver-specific YAML => struct
	Deliver(batch []Event) error
	Close() error // idempotent
}

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}
