package gen

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/df-mc/genpool/server/internal/rlock"
	"github.com/df-mc/genpool/server/world"
)

// worker owns a Generator and processes the Tasks of a Pool one at a time.
// mu guards gen. It is reentrant so that hooks running on the worker may
// call back into the Pool, for example through Pool.BiomeAt.
type worker struct {
	id   int
	pool *Pool
	gen  Generator
	log  *slog.Logger

	mu rlock.Mutex
}

// Process handles a single Task, calling its callback exactly once.
func (w *worker) Process(task Task) {
	g := rlock.Acquire(&w.mu)
	defer g.Release()

	conf, pos := w.pool.conf, task.Pos
	overloaded := w.pool.QueueLen() > conf.SkipThreshold

	if !task.Force && conf.Sink.IsChunkValid(pos) {
		w.log.Debug("Chunk already generated, skipping.", "chunkX", pos[0], "chunkZ", pos[1])
		w.pool.alreadyValid.Add(1)
		conf.Metrics.alreadyValid()
		w.callback(g, task, true)
		return
	}
	if overloaded && !conf.Sink.HasChunkAnyClients(pos) {
		w.log.Warn("Chunk generator overloaded, skipping chunk.",
			"chunkX", pos[0],
			"chunkZ", pos[1],
			"queue", w.pool.QueueLen(),
			"threshold", conf.SkipThreshold,
		)
		w.pool.shed.Add(1)
		conf.Metrics.shed()
		w.callback(g, task, false)
		return
	}

	start := time.Now()
	desc := world.NewChunkDesc(pos)
	ok := w.guarded(pos, func() {
		conf.Plugins.CallHookChunkGenerating(desc)
		w.gen.Generate(desc)
		conf.Plugins.CallHookChunkGenerated(desc)
	})
	if ok && conf.VerifyHeightMaps {
		// A mismatch is a bug in the generator or a hook and must not be
		// reported as a failed chunk.
		if err := desc.VerifyHeightMap(); err != nil {
			panic(fmt.Sprintf("gen: chunk %v: %v", pos, err))
		}
	}
	ok = ok && w.guarded(pos, func() {
		conf.Sink.OnChunkGenerated(desc)
	})
	if !ok {
		desc.Release()
		w.pool.failed.Add(1)
		conf.Metrics.failed()
		w.callback(g, task, false)
		return
	}
	w.pool.generated.Add(1)
	conf.Metrics.generated(time.Since(start))
	w.callback(g, task, true)
}

// guarded runs f, recovering and logging a panic. It returns false if f
// panicked.
func (w *worker) guarded(pos world.ChunkPos, f func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("generate chunk: panic",
				"error", fmt.Sprint(r),
				"chunkX", pos[0],
				"chunkZ", pos[1],
			)
			ok = false
		}
	}()
	f()
	return true
}

// callback calls the callback of task with the worker's lock released, so
// that the callback may queue further chunks or query the Pool without
// holding up the worker's Generator.
func (w *worker) callback(g *rlock.Guard, task Task, success bool) {
	if task.Callback == nil {
		return
	}
	g.Unlocked(func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("chunk callback: panic",
					"error", fmt.Sprint(r),
					"chunkX", task.Pos[0],
					"chunkZ", task.Pos[1],
				)
			}
		}()
		task.Callback.Call(task.Pos, success)
	})
}

func (w *worker) seed() int64 {
	g := rlock.Acquire(&w.mu)
	defer g.Release()
	return w.gen.Seed()
}

func (w *worker) biomeAt(x, z int) world.Biome {
	g := rlock.Acquire(&w.mu)
	defer g.Release()
	return w.gen.BiomeAt(x, z)
}

func (w *worker) generateBiomes(pos world.ChunkPos, biomes *world.BiomeMap) {
	g := rlock.Acquire(&w.mu)
	defer g.Release()
	w.gen.GenerateBiomes(pos, biomes)
}
