package world

// Sink receives generated chunks and answers the questions the generation
// workers need to decide whether a chunk is worth generating. Sinks are
// called concurrently from every generation worker.
type Sink interface {
	// IsChunkValid reports if the chunk at pos already holds valid data, in
	// which case it does not need to be generated again.
	IsChunkValid(pos ChunkPos) bool
	// HasChunkAnyClients reports if any client is waiting for the chunk at
	// pos. Chunks without clients may be skipped when the generator is
	// overloaded.
	HasChunkAnyClients(pos ChunkPos) bool
	// OnChunkGenerated is called with the finished description of a chunk.
	// The Sink owns desc after the call.
	OnChunkGenerated(desc *ChunkDesc)
}

// PluginInterface dispatches the chunk generation hooks to plugins. Hooks
// may modify the description passed.
type PluginInterface interface {
	// CallHookChunkGenerating is called before the generator fills in desc.
	CallHookChunkGenerating(desc *ChunkDesc)
	// CallHookChunkGenerated is called after the generator filled in desc
	// and before it is passed to the Sink.
	CallHookChunkGenerated(desc *ChunkDesc)
}

// Callback is notified once a queued chunk has been handled. success is true
// if the chunk is valid after the call, either because it already was or
// because it was generated, and false if it was skipped or failed.
type Callback interface {
	Call(pos ChunkPos, success bool)
}

// CallbackFunc is a function that implements Callback.
type CallbackFunc func(pos ChunkPos, success bool)

// Call ...
func (f CallbackFunc) Call(pos ChunkPos, success bool) {
	f(pos, success)
}

// NopSink is a Sink that reports every chunk as invalid and without clients
// and discards generated chunks.
type NopSink struct{}

func (NopSink) IsChunkValid(ChunkPos) bool       { return false }
func (NopSink) HasChunkAnyClients(ChunkPos) bool { return false }
func (NopSink) OnChunkGenerated(*ChunkDesc)      {}

// NopPlugins is a PluginInterface without any hooks.
type NopPlugins struct{}

func (NopPlugins) CallHookChunkGenerating(*ChunkDesc) {}
func (NopPlugins) CallHookChunkGenerated(*ChunkDesc)  {}

var (
	_ Sink            = NopSink{}
	_ PluginInterface = NopPlugins{}
)
