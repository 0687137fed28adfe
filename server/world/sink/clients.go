// Package sink implements the destinations of generated chunks: an
// in-memory store, a LevelDB backed store and the client tracker both use
// to decide which chunks are wanted.
package sink

import (
	"math"
	"sync"

	"github.com/df-mc/genpool/server/world"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// Clients tracks the positions of the clients waiting for chunks. A client
// is interested in every chunk within its radius, measured in chunks, of the
// chunk it is in. Clients is safe for concurrent use.
type Clients struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]client
}

type client struct {
	pos    mgl64.Vec3
	radius int32
}

// NewClients returns an empty client tracker.
func NewClients() *Clients {
	return &Clients{clients: make(map[uuid.UUID]client)}
}

// Add registers a client at pos with a view radius in chunks and returns the
// ID it is tracked by.
func (c *Clients) Add(pos mgl64.Vec3, radius int) uuid.UUID {
	id := uuid.New()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[id] = client{pos: pos, radius: int32(max(radius, 0))}
	return id
}

// Move updates the position of a client. It returns false if no client with
// the ID passed is tracked.
func (c *Clients) Move(id uuid.UUID, pos mgl64.Vec3) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.clients[id]
	if !ok {
		return false
	}
	cl.pos = pos
	c.clients[id] = cl
	return true
}

// Remove stops tracking a client.
func (c *Clients) Remove(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, id)
}

// Len returns the number of clients tracked.
func (c *Clients) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clients)
}

// HasChunkAnyClients reports if the chunk at pos is within the view radius
// of any client. A nil *Clients has no clients.
func (c *Clients) HasChunkAnyClients(pos world.ChunkPos) bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cl := range c.clients {
		centre := world.BlockChunkPos(int(math.Floor(cl.pos.X())), int(math.Floor(cl.pos.Z())))
		dx, dz := int64(pos.X())-int64(centre.X()), int64(pos.Z())-int64(centre.Z())
		r := int64(cl.radius)
		if dx*dx+dz*dz <= r*r {
			return true
		}
	}
	return false
}
