package world

import "fmt"

// ChunkPos holds the position of a chunk. The type is provided as a utility
// struct for keeping track of a chunk's position. Chunks do not themselves
// keep track of that. Chunk positions are different from block positions in
// the way that increasing the X/Z by one means increasing the absolute value
// on the X/Z axis in terms of blocks by 16.
type ChunkPos [2]int32

// X returns the X coordinate of the chunk position.
func (p ChunkPos) X() int32 {
	return p[0]
}

// Z returns the Z coordinate of the chunk position.
func (p ChunkPos) Z() int32 {
	return p[1]
}

// String implements fmt.Stringer and returns (x, z).
func (p ChunkPos) String() string {
	return fmt.Sprintf("(%v, %v)", p[0], p[1])
}

// Key packs the position into a single int64, usable as a map or database
// key. ChunkPosFromKey reverses it.
func (p ChunkPos) Key() int64 {
	return int64(p[0])<<32 | int64(uint32(p[1]))
}

// ChunkPosFromKey returns the ChunkPos packed into k by ChunkPos.Key.
func ChunkPosFromKey(k int64) ChunkPos {
	return ChunkPos{int32(k >> 32), int32(uint32(k))}
}

// BlockChunkPos returns the position of the chunk that contains the block
// column at x, z.
func BlockChunkPos(x, z int) ChunkPos {
	return ChunkPos{int32(x >> 4), int32(z >> 4)}
}
