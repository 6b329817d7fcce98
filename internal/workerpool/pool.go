package workerpool

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

var (
	// ErrSaturated is returned by Submit when the queue is full. Callers
	// should shed the request rather than block the accept loop.
	ErrSaturated = errors.New("worker pool saturated")

	// ErrClosed is returned by Submit after Shutdown has started.
	ErrClosed = errors.New("worker pool closed")
)

// Pool runs submitted tasks on a fixed set of goroutines with a bounded
// backlog. Image transforms are CPU-bound, so the worker count caps
// concurrent pixel work while the queue absorbs short bursts.
type Pool struct {
	logger *log.Logger
	tasks  chan func()
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func New(logger *log.Logger, workers, queueDepth int) (*Pool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", workers)
	}
	if queueDepth < 0 {
		return nil, fmt.Errorf("queue depth must not be negative, got %d", queueDepth)
	}

	p := &Pool{
		logger: logger,
		tasks:  make(chan func(), queueDepth),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p, nil
}

// Submit enqueues task for execution. It never blocks: a full queue yields
// ErrSaturated immediately.
func (p *Pool) Submit(task func()) error {
	if task == nil {
		return fmt.Errorf("task is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrSaturated
	}
}

// Shutdown stops accepting tasks, drains the backlog, and waits for in-flight
// tasks to finish.
func (p *Pool) Shutdown() {
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

func (p *Pool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.invoke(task)
	}
}

// invoke isolates a panicking task so one bad transform cannot take the
// worker goroutine down with it.
func (p *Pool) invoke(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Printf("worker task panic recovered: %v", r)
		}
	}()
	task()
}
