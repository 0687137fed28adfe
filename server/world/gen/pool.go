package gen

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/df-mc/genpool/server/workpool"
	"github.com/df-mc/genpool/server/world"
)

// Pool generates queued chunks on a set of workers. Chunks are handled in
// roughly the order they were queued, but no order is guaranteed. A Pool is
// created with Config.New and must be started with Start before queued
// chunks are generated.
type Pool struct {
	conf    Config
	log     *slog.Logger
	workers []*worker
	tasks   *workpool.Pool[Task]

	generated    atomic.Uint64
	alreadyValid atomic.Uint64
	shed         atomic.Uint64
	failed       atomic.Uint64

	queueWarnings    atomic.Uint64
	lastQueueWarning atomic.Int64
}

// Stats is a snapshot of the counters of a Pool.
type Stats struct {
	// Queued is the number of chunks waiting for a worker.
	Queued int
	// Generated is the number of chunks generated and passed to the Sink.
	Generated uint64
	// AlreadyValid is the number of chunks skipped because the Sink already
	// held them.
	AlreadyValid uint64
	// Shed is the number of chunks skipped because the queue was overloaded
	// and no client was waiting for them.
	Shed uint64
	// Failed is the number of chunks whose generation panicked.
	Failed uint64
	// QueueWarnings is the number of chunks queued while the queue length
	// was at or above the warning threshold.
	QueueWarnings uint64
}

// QueueGenerateChunk queues the chunk at pos for generation. If force is
// false and the Sink already holds the chunk, it is not generated again.
// callback, which may be nil, is called exactly once when the chunk has
// been handled. A chunk queued while the Pool is stopped is only handled
// after the next Start.
// QueueGenerateChunk never blocks: if the queue is longer than the warning
// threshold a warning is logged, but the chunk is queued regardless.
func (p *Pool) QueueGenerateChunk(pos world.ChunkPos, force bool, callback world.Callback) {
	if n := p.tasks.QueueLen(); n >= p.conf.WarnThreshold {
		p.warnQueueLength(pos, n)
	}
	p.tasks.Submit(Task{Pos: pos, Force: force, Callback: callback})
}

// QueueLen returns the approximate number of chunks waiting for a worker.
func (p *Pool) QueueLen() int {
	return p.tasks.QueueLen()
}

// SkipThreshold returns the queue length above which chunks without clients
// are skipped.
func (p *Pool) SkipThreshold() int {
	return p.conf.SkipThreshold
}

// Workers returns the number of workers of the Pool.
func (p *Pool) Workers() int {
	return len(p.workers)
}

// Start starts the workers. It is a no-op if the Pool is running.
func (p *Pool) Start() {
	p.tasks.Start()
}

// Stop stops the workers once every queued chunk has been handled, waiting
// for the callbacks of those chunks to return. Chunks queued after Stop
// returns stay queued until the next call to Start. Stop is a no-op if the
// Pool is not running. Stop must not be called from a callback or hook.
func (p *Pool) Stop() {
	p.tasks.Stop()
}

// Close stops the Pool and closes the Generators of its workers that
// implement io.Closer.
func (p *Pool) Close() error {
	p.Stop()
	return p.closeGenerators()
}

// Seed returns the seed of the generators of the Pool. All workers are
// created by the same factory, so the first worker answers for all of them.
func (p *Pool) Seed() int64 {
	return p.workers[0].seed()
}

// BiomeAt returns the biome of the block column at x, z. It is computed
// immediately, without going through the queue.
func (p *Pool) BiomeAt(x, z int) world.Biome {
	return p.workers[0].biomeAt(x, z)
}

// GenerateBiomes fills in the biome map of the chunk at pos. It is computed
// immediately, without going through the queue.
func (p *Pool) GenerateBiomes(pos world.ChunkPos, biomes *world.BiomeMap) {
	p.workers[0].generateBiomes(pos, biomes)
}

// Stats returns a snapshot of the counters of the Pool.
func (p *Pool) Stats() Stats {
	return Stats{
		Queued:        p.tasks.QueueLen(),
		Generated:     p.generated.Load(),
		AlreadyValid:  p.alreadyValid.Load(),
		Shed:          p.shed.Load(),
		Failed:        p.failed.Load(),
		QueueWarnings: p.queueWarnings.Load(),
	}
}

// warnQueueLength counts a chunk queued while the queue is too long and
// logs a warning, at most once per WarnInterval.
func (p *Pool) warnQueueLength(pos world.ChunkPos, n int) {
	count := p.queueWarnings.Add(1)
	p.conf.Metrics.queueWarning()

	if p.conf.WarnInterval > 0 {
		now := time.Now().UnixNano()
		last := p.lastQueueWarning.Load()
		if last != 0 && time.Duration(now-last) < p.conf.WarnInterval {
			return
		}
		if !p.lastQueueWarning.CompareAndSwap(last, now) {
			return
		}
	}
	p.log.Warn("Adding chunk to generation queue: queue is too big.",
		"chunkX", pos[0],
		"chunkZ", pos[1],
		"queue", n,
		"threshold", p.conf.WarnThreshold,
		"warnings", count,
		"workers", len(p.workers),
	)
}
