package worker

import (
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Pool defaults.
const (
	DefaultPoolWorkers   = 4
	DefaultPoolQueueSize = 256
)

// PoolConfig holds configuration for the task pool.
type PoolConfig struct {
	// Workers is the number of goroutines draining the queue. Default: 4
	Workers int

	// QueueSize is the number of tasks buffered before overflow. Default: 256
	QueueSize int

	Logger zerolog.Logger
}

// PoolStats is a point-in-time view of pool activity.
type PoolStats struct {
	Submitted  int64
	Completed  int64
	Overflowed int64
	Panicked   int64
}

type task struct {
	name string
	fn   func()
}

// Pool runs tasks on a fixed set of goroutines. Submit never blocks: when
// the queue is full the task runs on its own goroutine instead of being
// dropped.
type Pool struct {
	tasks  chan task
	logger zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup
	pending sync.WaitGroup

	submitted  atomic.Int64
	completed  atomic.Int64
	overflowed atomic.Int64
	panicked   atomic.Int64
}

// NewPool creates a pool and starts its workers.
func NewPool(cfg PoolConfig) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultPoolWorkers
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = DefaultPoolQueueSize
	}

	p := &Pool{
		tasks:  make(chan task, queue),
		logger: cfg.Logger,
	}
	for i := 0; i < workers; i++ {
		p.workers.Add(1)
		go p.work()
	}
	return p
}

// Submit schedules fn. It is safe to call after Close; the task then runs on
// its own goroutine.
func (p *Pool) Submit(name string, fn func()) {
	p.submitted.Add(1)
	p.pending.Add(1)
	t := task{name: name, fn: fn}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.closed {
		select {
		case p.tasks <- t:
			return
		default:
		}
	}

	p.overflowed.Add(1)
	p.logger.Debug().Str("task", name).Msg("task queue full, running on dedicated goroutine")
	go p.run(t)
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Close stops the workers after the queue drains and waits for all tasks.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.pending.Wait()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.workers.Wait()
	p.pending.Wait()
}

// Stats returns current counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Overflowed: p.overflowed.Load(),
		Panicked:   p.panicked.Load(),
	}
}

// MetricsSnapshot returns the counters as a map for status endpoints.
func (p *Pool) MetricsSnapshot() map[string]any {
	s := p.Stats()
	return map[string]any{
		"submitted":  s.Submitted,
		"completed":  s.Completed,
		"overflowed": s.Overflowed,
		"panicked":   s.Panicked,
		"queued":     len(p.tasks),
	}
}

func (p *Pool) work() {
	defer p.workers.Done()
	for t := range p.tasks {
		p.run(t)
	}
}

func (p *Pool) run(t task) {
	defer p.pending.Done()
	defer p.completed.Add(1)
	defer func() {
		if rec := recover(); rec != nil {
			p.panicked.Add(1)
			p.logger.Error().
				Str("task", t.name).
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("task panicked")
		}
	}()
	t.fn()
}
