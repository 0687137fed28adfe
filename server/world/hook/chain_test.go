package hook

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/df-mc/genpool/server/world"
)

type recordingHandler struct {
	NopHandler
	name  string
	mu    *sync.Mutex
	calls *[]string
}

func (h recordingHandler) HandleChunkGenerating(*world.ChunkDesc) {
	h.mu.Lock()
	*h.calls = append(*h.calls, h.name)
	h.mu.Unlock()
}

type panicHandler struct{ NopHandler }

func (panicHandler) HandleChunkGenerating(*world.ChunkDesc) {
	panic("broken plugin")
}

type biomeHandler struct{ NopHandler }

func (biomeHandler) HandleChunkGenerated(desc *world.ChunkDesc) {
	desc.SetBiome(0, 0, world.Swamp)
}

func newTestChain() *Chain {
	return NewChain(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestChainCallsInOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var calls []string
	c := newTestChain()
	c.Add("a", recordingHandler{name: "a1", mu: &mu, calls: &calls})
	c.Add("b", recordingHandler{name: "b1", mu: &mu, calls: &calls})
	c.Add("a", recordingHandler{name: "a2", mu: &mu, calls: &calls})

	c.CallHookChunkGenerating(world.NewChunkDesc(world.ChunkPos{}))
	if len(calls) != 3 || calls[0] != "a1" || calls[1] != "b1" || calls[2] != "a2" {
		t.Fatalf("expected handlers called in order a1 b1 a2, got %v", calls)
	}
}

func TestChainRemove(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var calls []string
	c := newTestChain()
	remove := c.Add("a", recordingHandler{name: "a1", mu: &mu, calls: &calls})
	c.Add("b", recordingHandler{name: "b1", mu: &mu, calls: &calls})
	c.Add("b", recordingHandler{name: "b2", mu: &mu, calls: &calls})

	remove()
	remove()
	if c.Len() != 2 {
		t.Fatalf("expected 2 handlers after removal, got %d", c.Len())
	}
	c.RemovePlugin("b")
	if c.Len() != 0 {
		t.Fatalf("expected no handlers after removing plugin, got %d", c.Len())
	}
	c.CallHookChunkGenerating(world.NewChunkDesc(world.ChunkPos{}))
	if len(calls) != 0 {
		t.Fatalf("expected no calls, got %v", calls)
	}
	if r := c.Add("c", nil); r == nil {
		t.Fatalf("expected a remove function for a nil handler")
	}
}

func TestChainRecoversPanics(t *testing.T) {
	t.Parallel()

	c := newTestChain()
	c.Add("broken", panicHandler{})
	c.Add("biomes", biomeHandler{})

	desc := world.NewChunkDesc(world.ChunkPos{1, 2})
	c.CallHookChunkGenerating(desc)
	c.CallHookChunkGenerated(desc)

	if c.Panics() != 1 {
		t.Fatalf("expected 1 recovered panic, got %d", c.Panics())
	}
	if desc.Biome(0, 0) != world.Swamp {
		t.Fatalf("expected later handler to modify the chunk, got biome %v", desc.Biome(0, 0))
	}
}
