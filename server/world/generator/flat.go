package generator

import "github.com/df-mc/genpool/server/world"

// Flat generates a flat world: bedrock, stone, three layers of dirt and the
// ground cover of a single biome at a constant height.
type Flat struct {
	seed   int64
	height int
	biome  world.Biome
}

// NewFlat returns a Flat generator. height is clamped to the height of a
// chunk, and an unknown biome is replaced by plains.
func NewFlat(seed int64, height int, biome world.Biome) *Flat {
	height = max(1, min(height, world.ChunkHeight-1))
	if !biome.Valid() {
		biome = world.Plains
	}
	return &Flat{seed: seed, height: height, biome: biome}
}

// Generate ...
func (f *Flat) Generate(desc *world.ChunkDesc) {
	f.GenerateBiomes(desc.Pos(), desc.BiomeMap())
	cover := f.biome.GroundCover()
	for x := 0; x < world.ChunkWidth; x++ {
		for z := 0; z < world.ChunkWidth; z++ {
			col := desc.Column(x, z)
			col[0] = world.Bedrock
			for y := 1; y < f.height; y++ {
				if y >= f.height-3 {
					col[y] = world.Dirt
				} else {
					col[y] = world.Stone
				}
			}
			col[f.height] = cover
			desc.SetHeight(x, z, f.height)
		}
	}
}

// GenerateBiomes ...
func (f *Flat) GenerateBiomes(_ world.ChunkPos, biomes *world.BiomeMap) {
	biomes.Fill(f.biome)
}

// BiomeAt ...
func (f *Flat) BiomeAt(int, int) world.Biome {
	return f.biome
}

// Seed ...
func (f *Flat) Seed() int64 {
	return f.seed
}
