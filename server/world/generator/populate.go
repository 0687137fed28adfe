package generator

import (
	"encoding/binary"
	"math"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
	"github.com/df-mc/genpool/server/world"
	"github.com/go-gl/mathgl/mgl64"
)

// Populator decorates a chunk after its terrain is generated. Populators only
// modify the chunk passed and must not change its height map.
type Populator interface {
	Populate(desc *world.ChunkDesc, r *rand.Rand)
}

// Ore places clusters of blocks in the terrain of a chunk.
type Ore struct {
	Types []OreType
}

// OreType is a kind of cluster placed by Ore.
type OreType struct {
	Material, Replaces        world.Block
	ClusterCount, ClusterSize int
	MinHeight, MaxHeight      int
}

// Populate ...
func (o Ore) Populate(desc *world.ChunkDesc, r *rand.Rand) {
	for _, ore := range o.Types {
		for i := 0; i < ore.ClusterCount; i++ {
			x, z := r.IntN(world.ChunkWidth), r.IntN(world.ChunkWidth)
			y := ore.MinHeight + r.IntN(max(ore.MaxHeight-ore.MinHeight, 1))
			if desc.Block(x, y, z) == ore.Replaces {
				ore.place(desc, mgl64.Vec3{float64(x), float64(y), float64(z)}, r)
			}
		}
	}
}

// place carves an ellipsoid cluster of o.Material along a random line through
// pos. Blocks outside the chunk are left alone.
func (o OreType) place(desc *world.ChunkDesc, pos mgl64.Vec3, r *rand.Rand) {
	clusterSize := float64(o.ClusterSize)
	angle := r.Float64() * math.Pi
	offset := mgl64.Vec2{math.Cos(angle), math.Sin(angle)}.Mul(clusterSize / 8)
	from := mgl64.Vec3{pos[0] + offset[0], pos[1] + float64(r.IntN(3)) - 1, pos[2] + offset[1]}
	to := mgl64.Vec3{pos[0] - offset[0], pos[1] + float64(r.IntN(3)) - 1, pos[2] - offset[1]}

	for i := float64(0); i <= clusterSize; i++ {
		seed := from.Add(to.Sub(from).Mul(i / clusterSize))
		size := ((math.Sin(i*(math.Pi/clusterSize))+1)*r.Float64()*clusterSize/16 + 1) / 2

		for xx := int(seed[0] - size); xx <= int(seed[0]+size); xx++ {
			dx := (float64(xx) + 0.5 - seed[0]) / size
			for yy := int(seed[1] - size); yy <= int(seed[1]+size); yy++ {
				dy := (float64(yy) + 0.5 - seed[1]) / size
				for zz := int(seed[2] - size); zz <= int(seed[2]+size); zz++ {
					dz := (float64(zz) + 0.5 - seed[2]) / size
					if dx*dx+dy*dy+dz*dz >= 1 || !inChunk(xx, yy, zz) {
						continue
					}
					if desc.Block(xx, yy, zz) == o.Replaces {
						desc.SetBlock(xx, yy, zz, o.Material)
					}
				}
			}
		}
	}
}

func inChunk(x, y, z int) bool {
	return x >= 0 && x < world.ChunkWidth && z >= 0 && z < world.ChunkWidth && y > 0 && y < world.ChunkHeight
}

// defaultPopulators are run by the noise generator. Ores only replace stone,
// which never forms the surface, so height maps are unchanged.
var defaultPopulators = []Populator{
	Ore{Types: []OreType{
		{Material: world.Gravel, Replaces: world.Stone, ClusterCount: 8, ClusterSize: 16, MinHeight: 1, MaxHeight: 60},
		{Material: world.Dirt, Replaces: world.Stone, ClusterCount: 10, ClusterSize: 16, MinHeight: 1, MaxHeight: 120},
	}},
}

// chunkRand returns the random source populators use for the chunk at pos.
// It only depends on the seed and pos.
func chunkRand(seed int64, pos world.ChunkPos) *rand.Rand {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(seed))
	binary.LittleEndian.PutUint32(buf[8:], uint32(pos.X()))
	binary.LittleEndian.PutUint32(buf[12:], uint32(pos.Z()))
	h := xxhash.Sum64(buf[:])
	return rand.New(rand.NewPCG(h, h^0x9e3779b97f4a7c15))
}
