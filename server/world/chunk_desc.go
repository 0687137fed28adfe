package world

import (
	"fmt"

	"github.com/df-mc/genpool/server/internal/lazy"
)

const (
	// ChunkWidth is the number of blocks along the X and Z axes of a chunk.
	ChunkWidth = 16
	// ChunkHeight is the number of blocks along the Y axis of a chunk.
	ChunkHeight = 256
	// ColumnCount is the number of block columns in a chunk.
	ColumnCount = ChunkWidth * ChunkWidth
)

// Block is the type of a single block in a ChunkDesc.
type Block uint8

const (
	Air Block = iota
	Stone
	Dirt
	Grass
	Sand
	Gravel
	Water
	Bedrock
	Snow
)

// BiomeMap holds the biome of every column of a chunk, indexed by
// ColumnIndex.
type BiomeMap = lazy.Buffer[Biome]

// NewBiomeMap returns an unallocated BiomeMap.
func NewBiomeMap() BiomeMap {
	return lazy.New[Biome](ColumnCount)
}

// ColumnIndex returns the index of the column at the chunk-local x, z in a
// BiomeMap or height map.
func ColumnIndex(x, z int) int {
	return z*ChunkWidth + x
}

// ChunkDesc describes the generated contents of a single chunk. Generators
// fill it in, plugin hooks may modify it and the Sink receives it once
// generation completes. Its grids are lazy buffers: a chunk that never sets
// a biome or block in a column does not allocate storage for it.
type ChunkDesc struct {
	pos ChunkPos

	biomes  BiomeMap
	heights lazy.Buffer[int16]
	blocks  lazy.Buffer[Block]
}

// NewChunkDesc returns an empty ChunkDesc for the chunk at pos.
func NewChunkDesc(pos ChunkPos) *ChunkDesc {
	return &ChunkDesc{
		pos:     pos,
		biomes:  NewBiomeMap(),
		heights: lazy.New[int16](ColumnCount),
		blocks:  lazy.New[Block](ColumnCount * ChunkHeight),
	}
}

// Pos returns the position of the chunk described.
func (d *ChunkDesc) Pos() ChunkPos {
	return d.pos
}

// Biome returns the biome of the column at x, z.
func (d *ChunkDesc) Biome(x, z int) Biome {
	return d.biomes.At(ColumnIndex(x, z))
}

// SetBiome sets the biome of the column at x, z.
func (d *ChunkDesc) SetBiome(x, z int, b Biome) {
	d.biomes.Set(ColumnIndex(x, z), b)
}

// BiomeMap returns the biome map of the chunk. Writes through the pointer
// are visible to the descriptor.
func (d *ChunkDesc) BiomeMap() *BiomeMap {
	return &d.biomes
}

// Height returns the height map value of the column at x, z.
func (d *ChunkDesc) Height(x, z int) int {
	return int(d.heights.At(ColumnIndex(x, z)))
}

// SetHeight sets the height map value of the column at x, z.
func (d *ChunkDesc) SetHeight(x, z, y int) {
	d.heights.Set(ColumnIndex(x, z), int16(y))
}

// Block returns the block at the chunk-local x, y, z.
func (d *ChunkDesc) Block(x, y, z int) Block {
	return d.blocks.At(blockIndex(x, y, z))
}

// SetBlock sets the block at the chunk-local x, y, z.
func (d *ChunkDesc) SetBlock(x, y, z int, b Block) {
	d.blocks.Set(blockIndex(x, y, z), b)
}

// Column returns the blocks of the column at x, z from bottom to top. The
// returned slice aliases the descriptor's storage and may be written to.
func (d *ChunkDesc) Column(x, z int) []Block {
	i := ColumnIndex(x, z) * ChunkHeight
	return d.blocks.Data()[i : i+ChunkHeight]
}

// Allocated reports which of the biome, height and block grids hold storage.
func (d *ChunkDesc) Allocated() (biomes, heights, blocks bool) {
	return d.biomes.Allocated(), d.heights.Allocated(), d.blocks.Allocated()
}

// UpdateHeightMap recalculates the height map from the block data: the
// height of a column is the Y of its highest non-air block, or 0.
func (d *ChunkDesc) UpdateHeightMap() {
	for x := 0; x < ChunkWidth; x++ {
		for z := 0; z < ChunkWidth; z++ {
			d.SetHeight(x, z, d.highestBlock(x, z))
		}
	}
}

// VerifyHeightMap checks that the height of every column that contains a
// non-air block equals the Y of its highest non-air block. Columns of only
// air are not checked.
func (d *ChunkDesc) VerifyHeightMap() error {
	if !d.blocks.Allocated() {
		return nil
	}
	for x := 0; x < ChunkWidth; x++ {
		for z := 0; z < ChunkWidth; z++ {
			y := d.highestBlock(x, z)
			if y == 0 && d.Block(x, 0, z) == Air {
				continue
			}
			if h := d.Height(x, z); h != y {
				return fmt.Errorf("chunk %v column (%d, %d): height map is %d, highest block at %d", d.pos, x, z, h, y)
			}
		}
	}
	return nil
}

// Clone returns a copy of d that shares storage with it until either of the
// two is modified.
func (d *ChunkDesc) Clone() *ChunkDesc {
	return &ChunkDesc{
		pos:     d.pos,
		biomes:  d.biomes.Clone(),
		heights: d.heights.Clone(),
		blocks:  d.blocks.Clone(),
	}
}

// Release drops the storage held by d.
func (d *ChunkDesc) Release() {
	d.biomes.Release()
	d.heights.Release()
	d.blocks.Release()
}

func (d *ChunkDesc) highestBlock(x, z int) int {
	if !d.blocks.Allocated() {
		return 0
	}
	base := ColumnIndex(x, z) * ChunkHeight
	for y := ChunkHeight - 1; y > 0; y-- {
		if d.blocks.At(base+y) != Air {
			return y
		}
	}
	return 0
}

func blockIndex(x, y, z int) int {
	if x < 0 || x >= ChunkWidth || z < 0 || z >= ChunkWidth || y < 0 || y >= ChunkHeight {
		panic(fmt.Sprintf("world: block position (%d, %d, %d) outside of chunk", x, y, z))
	}
	return ColumnIndex(x, z)*ChunkHeight + y
}
