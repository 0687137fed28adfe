// Package gen runs chunk generation on a pool of worker goroutines. Every
// worker owns its own Generator, decides per queued chunk whether it is
// worth generating, and reports the outcome through the chunk's callback.
package gen

import "github.com/df-mc/genpool/server/world"

// Generator produces the contents of chunks. A Generator is owned by a
// single worker and is never called concurrently, so implementations need
// not be safe for concurrent use.
type Generator interface {
	// Generate fills in the blocks, biomes and height map of desc.
	Generate(desc *world.ChunkDesc)
	// GenerateBiomes fills in the biome map of the chunk at pos without
	// generating its terrain.
	GenerateBiomes(pos world.ChunkPos, biomes *world.BiomeMap)
	// BiomeAt returns the biome of the block column at x, z.
	BiomeAt(x, z int) world.Biome
	// Seed returns the seed the generator was created with.
	Seed() int64
}

// Factory creates a Generator. It is called once for every worker of a
// Pool. An error returned is fatal to the creation of the Pool.
type Factory func() (Generator, error)

// Task is a request to generate a single chunk.
type Task struct {
	// Pos is the position of the chunk to generate.
	Pos world.ChunkPos
	// Force makes the chunk generate even if the Sink already holds valid
	// data for it.
	Force bool
	// Callback is called once the task has been handled. It may be nil.
	Callback world.Callback
}
