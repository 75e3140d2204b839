// Package workerpool is a fixed-size goroutine pool over an unbounded FIFO.
//
// Submit never blocks, so request paths can hand work off without waiting on
// saturation; concurrency is bounded by the worker count alone.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophmedia/internal/logging"
)

var ErrorClosed = errors.New("worker pool closed")

// Task is a unit of work. ctx is cancelled when the pool shuts down.
type Task func(ctx context.Context)

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers int
	Queued  int
	Running int
}

type Pool struct {
	name    string
	workers int
	logger  logging.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	running int
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts a pool of n workers (at least one).
func New(name string, n int, l logging.Logger) *Pool {
	if n < 1 {
		n = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:    name,
		workers: n,
		logger:  l.With("module", "workerpool", "pool", name),
		ctx:     ctx,
		cancel:  cancel,
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker(i)
	}
	return p
}

// Submit appends t to the queue.
func (p *Pool) Submit(t Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrorClosed
	}
	p.queue = append(p.queue, t)
	p.cond.Signal()
	return nil
}

// After submits t once d has elapsed. The returned func cancels the pending
// submission and reports whether it did so.
func (p *Pool) After(d time.Duration, t Task) (cancel func() bool) {
	timer := time.AfterFunc(d, func() {
		if err := p.Submit(t); err != nil {
			p.logger.Debug(p.ctx, "delayed task dropped", "error", err)
		}
	})
	return timer.Stop
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Workers: p.workers, Queued: len(p.queue), Running: p.running}
}

// Shutdown stops accepting tasks, cancels the task context and waits for the
// workers to drain the queue or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.cancel()
		p.cond.Broadcast()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool %s shutdown: %w", p.name, ctx.Err())
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		t := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.running++
		p.mu.Unlock()

		p.run(id, t)

		p.mu.Lock()
		p.running--
		p.mu.Unlock()
	}
}

func (p *Pool) run(id int, t Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(p.ctx, "task panicked", "worker", id, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	t(p.ctx)
}
