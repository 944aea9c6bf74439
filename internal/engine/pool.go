package engine

import (
	"sync"
	"time"

	"tributary/internal/logging"
)

const poolQueueDepth = 4096

// Pool is the shared worker pool for pull execution and background tasks.
// Delayed submission is timer-based; a timer firing after Close is a no-op.
type Pool struct {
	mu     sync.Mutex
	tasks  chan func()
	wg     sync.WaitGroup
	closed bool
}

func NewPool(workers int) *Pool {
	p := &Pool{tasks: make(chan func(), poolQueueDepth)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for fn := range p.tasks {
				fn()
			}
		}()
	}
	return p
}

func (p *Pool) Submit(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.tasks <- fn:
	default:
		// flow control bounds outstanding pulls, so a full queue means the
		// engine is badly wedged; drop loudly rather than block the caller
		logging.L().Error("worker pool queue full, dropping task")
	}
}

func (p *Pool) SubmitAfter(d time.Duration, fn func()) {
	if d <= 0 {
		p.Submit(fn)
		return
	}
	time.AfterFunc(d, func() { p.Submit(fn) })
}

func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
