package generator

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/df-mc/genpool/server/world"
	"github.com/segmentio/fasthash/fnv1a"
)

const (
	// smoothSize is the radius of the gaussian kernel used to blend the
	// elevation of neighbouring biomes.
	smoothSize = 2
	// biomeCell is the size in blocks of the cells biomes are picked for.
	biomeCell = 64
	// climateCell is the size in blocks of the cells of the temperature and
	// rainfall noise.
	climateCell = 256
	// detailCell is the size in blocks of the cells of the terrain detail
	// noise.
	detailCell = 16
	// waterHeight is the level up to which empty space below the terrain
	// surface is filled with water.
	waterHeight = 62
)

var gaussianKernel = [2*smoothSize + 1][2*smoothSize + 1]float64{
	{1.4715177646858, 2.141045714076, 2.4261226388505, 2.141045714076, 1.4715177646858},
	{2.141045714076, 3.1152031322856, 3.5299876103384, 3.1152031322856, 2.141045714076},
	{2.4261226388505, 3.5299876103384, 4, 3.5299876103384, 2.4261226388505},
	{2.141045714076, 3.1152031322856, 3.5299876103384, 3.1152031322856, 2.141045714076},
	{1.4715177646858, 2.141045714076, 2.4261226388505, 2.141045714076, 1.4715177646858},
}

// Noise generates terrain from hashed value noise. Every column is assigned a
// biome by its climate, and the terrain height follows the elevation of the
// surrounding biomes, blended with a gaussian kernel so that biome borders do
// not form cliffs. Noise is deterministic: the same seed always produces the
// same chunks.
type Noise struct {
	seed int64

	// biomes caches the biomes of the chunk being generated and its border.
	biomes [world.ChunkWidth + 2*smoothSize][world.ChunkWidth + 2*smoothSize]world.Biome
	buf    [24]byte
}

// NewNoise returns a Noise generator using the seed passed.
func NewNoise(seed int64) *Noise {
	return &Noise{seed: seed}
}

// Generate ...
func (n *Noise) Generate(desc *world.ChunkDesc) {
	pos := desc.Pos()
	baseX, baseZ := int(pos.X())*world.ChunkWidth, int(pos.Z())*world.ChunkWidth

	for x := range n.biomes {
		for z := range n.biomes[x] {
			n.biomes[x][z] = n.BiomeAt(baseX+x-smoothSize, baseZ+z-smoothSize)
		}
	}

	for x := 0; x < world.ChunkWidth; x++ {
		for z := 0; z < world.ChunkWidth; z++ {
			b := n.biomes[x+smoothSize][z+smoothSize]
			desc.SetBiome(x, z, b)

			var minSum, maxSum, weightSum float64
			for sx := -smoothSize; sx <= smoothSize; sx++ {
				for sz := -smoothSize; sz <= smoothSize; sz++ {
					weight := gaussianKernel[sx+smoothSize][sz+smoothSize]
					lo, hi := n.biomes[x+sx+smoothSize][z+sz+smoothSize].Elevation()
					minSum += float64(lo) * weight
					maxSum += float64(hi) * weight
					weightSum += weight
				}
			}
			minSum /= weightSum
			maxSum /= weightSum

			detail := n.detail(baseX+x, baseZ+z)
			height := int(math.Round(minSum + (maxSum-minSum)*detail))
			height = max(1, min(height, world.ChunkHeight-1))

			col := desc.Column(x, z)
			col[0] = world.Bedrock
			for y := 1; y < height; y++ {
				if y >= height-3 {
					col[y] = world.Dirt
				} else {
					col[y] = world.Stone
				}
			}
			top := height
			if height <= waterHeight {
				col[height] = world.Sand
				for y := height + 1; y <= waterHeight; y++ {
					col[y] = world.Water
				}
				top = max(height, waterHeight)
			} else {
				col[height] = b.GroundCover()
			}
			desc.SetHeight(x, z, top)
		}
	}

	r := chunkRand(n.seed, pos)
	for _, p := range defaultPopulators {
		p.Populate(desc, r)
	}
}

// GenerateBiomes ...
func (n *Noise) GenerateBiomes(pos world.ChunkPos, biomes *world.BiomeMap) {
	baseX, baseZ := int(pos.X())*world.ChunkWidth, int(pos.Z())*world.ChunkWidth
	data := biomes.Data()
	for x := 0; x < world.ChunkWidth; x++ {
		for z := 0; z < world.ChunkWidth; z++ {
			data[world.ColumnIndex(x, z)] = n.BiomeAt(baseX+x, baseZ+z)
		}
	}
}

// BiomeAt returns the biome of the block column at x, z. Columns are grouped
// in cells with jittered borders, and every cell takes the biome whose
// temperature and rainfall are closest to the climate at the cell.
func (n *Noise) BiomeAt(x, z int) world.Biome {
	h := fnv1a.AddUint64(fnv1a.HashUint64(uint64(n.seed)), uint64(int64(x)*2345803^int64(z)*9236449))
	jx, jz := int(h>>20&3), int(h>>22&3)
	if jx == 3 {
		jx = 1
	}
	if jz == 3 {
		jz = 1
	}
	cx, cz := floorDiv(x+jx-1, biomeCell), floorDiv(z+jz-1, biomeCell)

	temperature := 2 * n.smooth(1, cx*biomeCell, cz*biomeCell, climateCell)
	rainfall := n.smooth(2, cx*biomeCell, cz*biomeCell, climateCell)
	if n.value(3, cx, cz) < 0.08 {
		return world.River
	}

	best, bestDist := world.Plains, math.Inf(1)
	for _, b := range world.Biomes() {
		if b == world.River {
			continue
		}
		dt, dr := (b.Temperature()-temperature)/2, b.Rainfall()-rainfall
		if d := dt*dt + dr*dr; d < bestDist {
			best, bestDist = b, d
		}
	}
	return best
}

// Seed ...
func (n *Noise) Seed() int64 {
	return n.seed
}

// detail returns the terrain detail noise at a block column in [0, 1].
func (n *Noise) detail(x, z int) float64 {
	return 0.7*n.smooth(4, x, z, detailCell) + 0.3*n.smooth(5, x, z, detailCell/4)
}

// smooth returns value noise in [0, 1] bilinearly interpolated between the
// corners of the cell of size cell that holds x, z.
func (n *Noise) smooth(layer uint64, x, z, cell int) float64 {
	cx, cz := floorDiv(x, cell), floorDiv(z, cell)
	fx := float64(x-cx*cell) / float64(cell)
	fz := float64(z-cz*cell) / float64(cell)
	fx, fz = fx*fx*(3-2*fx), fz*fz*(3-2*fz)

	v00, v10 := n.value(layer, cx, cz), n.value(layer, cx+1, cz)
	v01, v11 := n.value(layer, cx, cz+1), n.value(layer, cx+1, cz+1)
	top := v00 + (v10-v00)*fx
	bottom := v01 + (v11-v01)*fx
	return top + (bottom-top)*fz
}

// value returns the hashed noise value of a lattice point in [0, 1).
func (n *Noise) value(layer uint64, x, z int) float64 {
	binary.LittleEndian.PutUint64(n.buf[0:], uint64(n.seed)^layer*0x9e3779b97f4a7c15)
	binary.LittleEndian.PutUint64(n.buf[8:], uint64(int64(x)))
	binary.LittleEndian.PutUint64(n.buf[16:], uint64(int64(z)))
	return float64(xxhash.Sum64(n.buf[:])>>11) / (1 << 53)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
