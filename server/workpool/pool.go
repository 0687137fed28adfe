// Package workpool implements a pool of worker goroutines that compete for
// tasks from a single shared FIFO queue.
package workpool

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Processor handles the tasks a worker retrieves from the pool. Each worker
// of a Pool owns one Processor, so a Processor is never called concurrently
// by the pool.
type Processor[T any] interface {
	Process(task T)
}

// ProcessorFunc is a function that implements Processor.
type ProcessorFunc[T any] func(task T)

// Process ...
func (f ProcessorFunc[T]) Process(task T) {
	f(task)
}

// Config holds the optional settings of a Pool.
type Config struct {
	// Log is the Logger used for lifecycle messages. If nil, slog.Default()
	// is used.
	Log *slog.Logger
	// Metrics receives queue statistics. It may be nil.
	Metrics *Metrics
}

// Pool is a queue of tasks processed by one goroutine per Processor. A Pool
// starts out stopped: tasks may be submitted, but they are only processed
// once Start is called. Stop drains the queue before the workers exit. Start
// and Stop may be called any number of times.
//
// Tasks are dequeued in submission order, but with more than one worker
// there is no guarantee on the order in which they complete.
type Pool[T any] struct {
	log        *slog.Logger
	metrics    *Metrics
	processors []Processor[T]

	mu    sync.Mutex
	cond  *sync.Cond
	queue []T
	// run is the current run of the workers, or nil if the pool is not
	// running. Workers exit once the run they were started for ends and the
	// queue is empty.
	run *run
	// stopping is the run being stopped, so that concurrent calls to Stop
	// all wait for its workers.
	stopping *run

	length atomic.Int64
}

// run tracks the workers started by a single call to Start.
type run struct {
	wg sync.WaitGroup
}

// New creates a stopped Pool with one worker for every Processor passed.
func New[T any](conf Config, processors []Processor[T]) *Pool[T] {
	if len(processors) == 0 {
		panic("workpool: pool requires at least one processor")
	}
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	p := &Pool[T]{
		log:        conf.Log,
		metrics:    conf.Metrics,
		processors: append([]Processor[T](nil), processors...),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Workers returns the number of workers of the pool.
func (p *Pool[T]) Workers() int {
	return len(p.processors)
}

// Start starts a goroutine for every worker. Start is a no-op if the pool
// is already running.
func (p *Pool[T]) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run != nil {
		return
	}
	r := &run{}
	p.run = r
	for _, proc := range p.processors {
		r.wg.Add(1)
		go p.work(r, proc)
	}
	p.log.Debug("Worker pool started.", "workers", len(p.processors), "queued", len(p.queue))
}

// Stop signals every worker to exit once the queue is empty and waits until
// they have. Tasks queued when Stop is called are processed before Stop
// returns. Tasks submitted after Stop returns stay queued until the next
// Start. Stop returns immediately if the pool is not running, unless another
// call to Stop is still waiting, in which case it waits too. Stop must not
// be called by a Processor, as it would wait for itself.
func (p *Pool[T]) Stop() {
	p.mu.Lock()
	r := p.run
	if r == nil {
		r = p.stopping
		p.mu.Unlock()
		if r != nil {
			r.wg.Wait()
		}
		return
	}
	p.run = nil
	p.stopping = r
	p.cond.Broadcast()
	p.mu.Unlock()

	r.wg.Wait()

	p.mu.Lock()
	if p.stopping == r {
		p.stopping = nil
	}
	p.mu.Unlock()
	p.log.Debug("Worker pool stopped.", "queued", p.QueueLen())
}

// Running reports if the pool has been started and not stopped since.
func (p *Pool[T]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run != nil
}

// Submit adds a task to the end of the queue and wakes one idle worker.
// Submit never blocks on the workers: the queue is unbounded.
func (p *Pool[T]) Submit(task T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, task)
	p.metrics.submitted(p.length.Add(1))
	p.cond.Signal()
}

// Retrieve removes the task at the front of the queue, blocking while the
// queue is empty. It returns false if the pool is not running, or once Stop
// is called and the queue is empty.
func (p *Pool[T]) Retrieve() (T, bool) {
	p.mu.Lock()
	r := p.run
	p.mu.Unlock()
	if r == nil {
		var zero T
		return zero, false
	}
	return p.retrieve(r)
}

// QueueLen returns the number of tasks waiting in the queue. Tasks being
// processed are not counted. Since the queue is used concurrently, the
// value is only an approximation by the time it is used.
func (p *Pool[T]) QueueLen() int {
	return int(p.length.Load())
}

func (p *Pool[T]) retrieve(r *run) (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && p.run == r {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		var zero T
		return zero, false
	}
	task := p.queue[0]
	var zero T
	p.queue[0] = zero
	p.queue = p.queue[1:]
	p.metrics.dequeued(p.length.Add(-1))
	return task, true
}

func (p *Pool[T]) work(r *run, proc Processor[T]) {
	defer r.wg.Done()
	for {
		task, ok := p.retrieve(r)
		if !ok {
			return
		}
		proc.Process(task)
		p.metrics.processed()
	}
}
