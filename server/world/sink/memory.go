package sink

import (
	"sync"

	"github.com/brentp/intintmap"
	"github.com/df-mc/genpool/server/world"
)

// Memory keeps generated chunks in memory. Chunks are indexed by their packed
// position, mapped to the sequence number of the commit that stored them.
// Memory is safe for concurrent use.
type Memory struct {
	clients *Clients

	mu      sync.RWMutex
	index   *intintmap.Map
	chunks  map[int64]*world.ChunkDesc
	commits int64
}

// NewMemory returns an empty Memory sink. clients may be nil, in which case
// no chunk has clients.
func NewMemory(clients *Clients) *Memory {
	return &Memory{
		clients: clients,
		index:   intintmap.New(1024, 0.6),
		chunks:  make(map[int64]*world.ChunkDesc),
	}
}

// IsChunkValid ...
func (m *Memory) IsChunkValid(pos world.ChunkPos) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.index.Get(pos.Key())
	return ok
}

// HasChunkAnyClients ...
func (m *Memory) HasChunkAnyClients(pos world.ChunkPos) bool {
	return m.clients.HasChunkAnyClients(pos)
}

// OnChunkGenerated stores desc, replacing any chunk previously stored at the
// same position.
func (m *Memory) OnChunkGenerated(desc *world.ChunkDesc) {
	k := desc.Pos().Key()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	m.index.Put(k, m.commits)
	if old, ok := m.chunks[k]; ok {
		old.Release()
	}
	m.chunks[k] = desc
}

// Chunk returns a clone of the chunk stored at pos. The clone shares storage
// with the stored chunk until either is modified.
func (m *Memory) Chunk(pos world.ChunkPos) (*world.ChunkDesc, bool) {
	// Clone updates reference counts of the stored chunk, so it is done
	// under the write lock.
	m.mu.Lock()
	defer m.mu.Unlock()
	desc, ok := m.chunks[pos.Key()]
	if !ok {
		return nil, false
	}
	return desc.Clone(), true
}

// Commit returns the sequence number of the commit that stored the chunk at
// pos, starting at 1, or false if it is not stored.
func (m *Memory) Commit(pos world.ChunkPos) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.Get(pos.Key())
}

// Invalidate removes the chunk at pos so that it is generated again.
func (m *Memory) Invalidate(pos world.ChunkPos) {
	k := pos.Key()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index.Del(k)
	if desc, ok := m.chunks[k]; ok {
		desc.Release()
		delete(m.chunks, k)
	}
}

// Len returns the number of chunks stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.Size()
}

// Commits returns the total number of chunks committed, including chunks
// that replaced earlier ones.
func (m *Memory) Commits() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commits
}

// Positions returns the positions of all chunks stored, in no particular
// order.
func (m *Memory) Positions() []world.ChunkPos {
	m.mu.RLock()
	defer m.mu.RUnlock()
	positions := make([]world.ChunkPos, 0, m.index.Size())
	for k := range m.index.Keys() {
		positions = append(positions, world.ChunkPosFromKey(k))
	}
	return positions
}

var _ world.Sink = (*Memory)(nil)
