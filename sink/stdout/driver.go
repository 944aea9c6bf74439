// tributary/sink/stdout/driver.go
package stdout

import (
	"fmt"
	"sync/atomic"
	"time"

	"tributary/sink"
)

/* ────────── public YAML config ────────── */
type Config struct {
	DelayMS      int  `yaml:"delay_ms"`      // artificial per-batch delay
	PrintCounter bool `yaml:"print_counter"` // prepend seq#
	PrintBody    bool `yaml:"print_body"`
	BodyMaxBytes int  `yaml:"body_max_bytes"`
}

/* ────────── driver ────────── */
type driver struct {
	cfg Config
}

var seq uint64

/* ────────── sink.Adapter ────────── */
func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	d.cfg = c
	return nil
}

func (d *driver) Deliver(batch []sink.Event) error {
	if d.cfg.DelayMS > 0 {
		time.Sleep(time.Duration(d.cfg.DelayMS) * time.Millisecond)
	}

	for _, ev := range batch {
		n := atomic.AddUint64(&seq, 1)
		if d.cfg.PrintCounter {
			fmt.Printf("[sink %06d] %s@%s\n", n, ev.Headers["topic"], ev.Headers["offset"])
		}
		if d.cfg.PrintBody {
			body := ev.Body
			if d.cfg.BodyMaxBytes > 0 && len(body) > d.cfg.BodyMaxBytes {
				body = body[:d.cfg.BodyMaxBytes]
			}
			fmt.Printf("%s\n", body)
		}
	}
	return nil
}

func (d *driver) Close() error { return nil }

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
