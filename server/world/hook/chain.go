// Package hook dispatches the chunk generation hooks of a generation pool to
// the handlers registered by plugins.
package hook

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/df-mc/genpool/server/world"
)

// Handler handles the chunk generation hooks. Handlers may modify the chunk
// passed. They are called from generation workers, so a Handler must be safe
// for concurrent use.
type Handler interface {
	// HandleChunkGenerating is called before a chunk is generated.
	HandleChunkGenerating(desc *world.ChunkDesc)
	// HandleChunkGenerated is called after a chunk is generated and before
	// it is committed.
	HandleChunkGenerated(desc *world.ChunkDesc)
}

// NopHandler implements Handler without doing anything. It may be embedded
// to implement only some of the hooks.
type NopHandler struct{}

func (NopHandler) HandleChunkGenerating(*world.ChunkDesc) {}
func (NopHandler) HandleChunkGenerated(*world.ChunkDesc)  {}

type registration struct {
	plugin  string
	handler Handler
	id      uint64
}

// Chain calls the handlers added to it in the order they were added. It
// implements world.PluginInterface. A handler that panics is logged and
// skipped, and the remaining handlers still run. Handlers may be added and
// removed while hooks are being called.
type Chain struct {
	log *slog.Logger

	mu   sync.Mutex
	regs []registration
	next uint64

	chain  atomic.Pointer[[]registration]
	panics atomic.Uint64
}

// NewChain returns an empty Chain. If log is nil, slog.Default() is used.
func NewChain(log *slog.Logger) *Chain {
	if log == nil {
		log = slog.Default()
	}
	c := &Chain{log: log.With("subsystem", "gen.hooks")}
	c.chain.Store(&[]registration{})
	return c
}

// Add registers h on behalf of plugin and returns a function that removes
// it again. The function may be called more than once.
func (c *Chain) Add(plugin string, h Handler) (remove func()) {
	if h == nil {
		return func() {}
	}
	c.mu.Lock()
	id := c.next
	c.next++
	c.regs = append(c.regs, registration{plugin: plugin, handler: h, id: id})
	c.store()
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.remove(func(reg registration) bool { return reg.id == id })
		})
	}
}

// RemovePlugin removes every handler added on behalf of plugin.
func (c *Chain) RemovePlugin(plugin string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(func(reg registration) bool { return reg.plugin == plugin })
}

// Len returns the number of handlers registered.
func (c *Chain) Len() int {
	return len(*c.chain.Load())
}

// Panics returns the number of handler panics recovered.
func (c *Chain) Panics() uint64 {
	return c.panics.Load()
}

// CallHookChunkGenerating ...
func (c *Chain) CallHookChunkGenerating(desc *world.ChunkDesc) {
	for _, reg := range *c.chain.Load() {
		c.invoke(reg.plugin, desc, reg.handler.HandleChunkGenerating)
	}
}

// CallHookChunkGenerated ...
func (c *Chain) CallHookChunkGenerated(desc *world.ChunkDesc) {
	for _, reg := range *c.chain.Load() {
		c.invoke(reg.plugin, desc, reg.handler.HandleChunkGenerated)
	}
}

func (c *Chain) invoke(plugin string, desc *world.ChunkDesc, f func(*world.ChunkDesc)) {
	defer func() {
		if r := recover(); r != nil {
			c.panics.Add(1)
			c.log.Error("Plugin panicked while handling chunk hook.",
				"plugin", plugin,
				"error", fmt.Sprint(r),
				"chunkX", desc.Pos()[0],
				"chunkZ", desc.Pos()[1],
			)
		}
	}()
	f(desc)
}

// remove drops the registrations matched by f. c.mu must be held.
func (c *Chain) remove(f func(registration) bool) {
	regs := make([]registration, 0, len(c.regs))
	for _, reg := range c.regs {
		if !f(reg) {
			regs = append(regs, reg)
		}
	}
	c.regs = regs
	c.store()
}

// store publishes a copy of the registrations to callers. c.mu must be held.
func (c *Chain) store() {
	snapshot := make([]registration, len(c.regs))
	copy(snapshot, c.regs)
	c.chain.Store(&snapshot)
}

var _ world.PluginInterface = (*Chain)(nil)
