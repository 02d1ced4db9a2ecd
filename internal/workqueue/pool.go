// internal/workqueue/pool.go - shared executor with per-queue serialization
package workqueue

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Work is a unit of deferred work. A Work is pending from the moment it is
// queued until its function starts running; queueing a pending Work again
// is a no-op. A Work belongs to exactly one Queue.
type Work struct {
	fn      func()
	pending atomic.Bool
}

// NewWork wraps fn as a Work item
func NewWork(fn func()) *Work {
	return &Work{fn: fn}
}

// Pending reports whether the work is waiting to run
func (w *Work) Pending() bool {
	return w.pending.Load()
}

// Queue schedules Work items. Implementations must never run two items of
// the same queue concurrently, and Queue must not block: callers invoke it
// while holding their own locks.
type Queue interface {
	// Queue schedules w and returns false if it was already pending.
	Queue(w *Work) bool
	// Flush waits until every item queued before the call has run.
	// Calling Flush from inside a work function deadlocks.
	Flush()
}

// Pool runs the queues of many owners on a fixed set of goroutines
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	ready   []*PoolQueue
	stopped bool
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// NewPool starts a pool with the given number of workers
func NewPool(workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{logger: logger}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	return p
}

// NewQueue creates a queue whose work is serialized on this pool
func (p *Pool) NewQueue(name string) *PoolQueue {
	q := &PoolQueue{name: name, pool: p}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Stop lets the workers drain already scheduled queues and waits for them to exit.
// Queues scheduled after Stop run on their own goroutine.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) schedule(q *PoolQueue) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		go q.run()
		return
	}
	p.ready = append(p.ready, q)
	p.cond.Signal()
	p.mu.Unlock()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.ready) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.ready) == 0 {
			p.mu.Unlock()
			return
		}
		q := p.ready[0]
		p.ready[0] = nil
		p.ready = p.ready[1:]
		p.mu.Unlock()

		p.logger.Debug("running work queue",
			zap.Int("worker", id),
			zap.String("queue", q.name))
		q.run()
	}
}

// PoolQueue is a Queue backed by a shared Pool
type PoolQueue struct {
	name string
	pool *Pool

	mu        sync.Mutex
	cond      *sync.Cond
	works     []*Work
	scheduled bool // handed to the pool or running
}

// Name returns the queue name
func (q *PoolQueue) Name() string {
	return q.name
}

// Queue implements Queue
func (q *PoolQueue) Queue(w *Work) bool {
	if !w.pending.CompareAndSwap(false, true) {
		return false
	}

	q.mu.Lock()
	q.works = append(q.works, w)
	schedule := !q.scheduled
	q.scheduled = true
	q.mu.Unlock()

	if schedule {
		q.pool.schedule(q)
	}
	return true
}

// Flush implements Queue
func (q *PoolQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.scheduled {
		q.cond.Wait()
	}
}

func (q *PoolQueue) run() {
	for {
		q.mu.Lock()
		if len(q.works) == 0 {
			q.scheduled = false
			q.cond.Broadcast()
			q.mu.Unlock()
			return
		}
		w := q.works[0]
		q.works[0] = nil
		q.works = q.works[1:]
		q.mu.Unlock()

		w.pending.Store(false)
		q.exec(w)
	}
}

func (q *PoolQueue) exec(w *Work) {
	defer func() {
		if r := recover(); r != nil {
			q.pool.logger.Error("work item panicked",
				zap.String("queue", q.name),
				zap.Any("panic", r))
		}
	}()
	w.fn()
}
