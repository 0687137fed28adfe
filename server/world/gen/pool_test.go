package gen

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/df-mc/genpool/server/world"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type testGenerator struct {
	panicAt  map[world.ChunkPos]bool
	badPos   map[world.ChunkPos]bool
	closed   *atomic.Int32
	generate atomic.Int32
}

func (g *testGenerator) Generate(desc *world.ChunkDesc) {
	if g.panicAt[desc.Pos()] {
		panic("test generator failure")
	}
	g.generate.Add(1)
	for x := 0; x < world.ChunkWidth; x++ {
		for z := 0; z < world.ChunkWidth; z++ {
			desc.SetBiome(x, z, world.Plains)
			col := desc.Column(x, z)
			col[0], col[1], col[2] = world.Bedrock, world.Stone, world.Grass
			desc.SetHeight(x, z, 2)
		}
	}
	if g.badPos[desc.Pos()] {
		desc.SetHeight(3, 3, 40)
	}
}

func (g *testGenerator) GenerateBiomes(_ world.ChunkPos, biomes *world.BiomeMap) {
	biomes.Fill(world.Plains)
}

func (g *testGenerator) BiomeAt(int, int) world.Biome { return world.Forest }
func (g *testGenerator) Seed() int64                  { return 42 }

func (g *testGenerator) Close() error {
	if g.closed != nil {
		g.closed.Add(1)
	}
	return nil
}

type testSink struct {
	mu        sync.Mutex
	valid     map[world.ChunkPos]bool
	clients   map[world.ChunkPos]bool
	allClient bool
	generated []world.ChunkPos
}

func newTestSink() *testSink {
	return &testSink{valid: make(map[world.ChunkPos]bool), clients: make(map[world.ChunkPos]bool)}
}

func (s *testSink) IsChunkValid(pos world.ChunkPos) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid[pos]
}

func (s *testSink) HasChunkAnyClients(pos world.ChunkPos) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allClient || s.clients[pos]
}

func (s *testSink) OnChunkGenerated(desc *world.ChunkDesc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid[desc.Pos()] = true
	s.generated = append(s.generated, desc.Pos())
}

func (s *testSink) generatedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.generated)
}

type testHooks struct {
	generating atomic.Int32
	generated  atomic.Int32
	onGenerate func(desc *world.ChunkDesc)
}

func (h *testHooks) CallHookChunkGenerating(desc *world.ChunkDesc) {
	h.generating.Add(1)
	if h.onGenerate != nil {
		h.onGenerate(desc)
	}
}

func (h *testHooks) CallHookChunkGenerated(*world.ChunkDesc) {
	h.generated.Add(1)
}

type result struct {
	calls   int
	success bool
}

// recorder collects callback invocations.
type recorder struct {
	mu      sync.Mutex
	results map[world.ChunkPos]result
	wg      sync.WaitGroup
}

func newRecorder(n int) *recorder {
	r := &recorder{results: make(map[world.ChunkPos]result)}
	r.wg.Add(n)
	return r
}

func (r *recorder) Call(pos world.ChunkPos, success bool) {
	r.mu.Lock()
	res := r.results[pos]
	res.calls++
	res.success = success
	r.results[pos] = res
	r.mu.Unlock()
	r.wg.Done()
}

func (r *recorder) get(pos world.ChunkPos) result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[pos]
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for callbacks")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFactory() Factory {
	return func() (Generator, error) {
		return &testGenerator{}, nil
	}
}

func newTestPool(t *testing.T, conf Config) *Pool {
	t.Helper()
	if conf.Log == nil {
		conf.Log = discardLogger()
	}
	if conf.Generator == nil {
		conf.Generator = testFactory()
	}
	p, err := conf.New()
	if err != nil {
		t.Fatalf("expected pool to be created, got %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPoolCallsEveryCallbackOnce(t *testing.T) {
	t.Parallel()

	const n = 200
	sink := newTestSink()
	hooks := &testHooks{}
	reg := prometheus.NewRegistry()
	p := newTestPool(t, Config{
		Workers: 4,
		Sink:    sink,
		Plugins: hooks,
		Metrics: NewMetrics(reg, "test", "gen"),
	})
	p.Start()

	rec := newRecorder(n)
	for i := 0; i < n; i++ {
		p.QueueGenerateChunk(world.ChunkPos{int32(i), int32(-i)}, false, rec)
	}
	rec.wait(t)

	for i := 0; i < n; i++ {
		pos := world.ChunkPos{int32(i), int32(-i)}
		if res := rec.get(pos); res.calls != 1 || !res.success {
			t.Fatalf("expected one successful callback for %v, got %+v", pos, res)
		}
	}
	if got := sink.generatedCount(); got != n {
		t.Fatalf("expected %d chunks committed, got %d", n, got)
	}
	if hooks.generating.Load() != n || hooks.generated.Load() != n {
		t.Fatalf("expected %d calls to each hook, got %d and %d", n, hooks.generating.Load(), hooks.generated.Load())
	}
	if got := testutil.ToFloat64(p.conf.Metrics.Generated); got != n {
		t.Fatalf("expected generated metric %d, got %v", n, got)
	}
	if st := p.Stats(); st.Generated != n || st.Failed != 0 || st.Shed != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestPoolSkipsValidChunks(t *testing.T) {
	t.Parallel()

	sink := newTestSink()
	valid := world.ChunkPos{3, 4}
	sink.valid[valid] = true
	hooks := &testHooks{}
	p := newTestPool(t, Config{Workers: 1, Sink: sink, Plugins: hooks})
	p.Start()

	rec := newRecorder(1)
	p.QueueGenerateChunk(valid, false, rec)
	rec.wait(t)

	if res := rec.get(valid); res.calls != 1 || !res.success {
		t.Fatalf("expected successful callback for valid chunk, got %+v", res)
	}
	if hooks.generating.Load() != 0 || hooks.generated.Load() != 0 {
		t.Fatalf("expected hooks not to be called for valid chunk")
	}
	if st := p.Stats(); st.AlreadyValid != 1 || st.Generated != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}

	rec = newRecorder(1)
	p.QueueGenerateChunk(valid, true, rec)
	rec.wait(t)
	if hooks.generating.Load() != 1 {
		t.Fatalf("expected forced chunk to be generated, got %d hook calls", hooks.generating.Load())
	}
	if st := p.Stats(); st.Generated != 1 {
		t.Fatalf("expected forced chunk to count as generated, got %+v", st)
	}
}

func TestPoolShedsChunksWithoutClients(t *testing.T) {
	t.Parallel()

	sink := newTestSink()
	sink.clients[world.ChunkPos{0, 0}] = true
	hooks := &testHooks{}
	reg := prometheus.NewRegistry()
	p := newTestPool(t, Config{
		Workers:       1,
		Sink:          sink,
		Plugins:       hooks,
		SkipThreshold: 2,
		Metrics:       NewMetrics(reg, "test", "gen"),
	})

	const n = 10
	rec := newRecorder(n)
	for i := 0; i < n; i++ {
		p.QueueGenerateChunk(world.ChunkPos{int32(i), 0}, false, rec)
	}
	p.Start()
	rec.wait(t)

	// With one worker, the queue length seen by task i is n-1-i. Tasks that
	// see more than two queued chunks are shed unless a client waits for
	// them.
	for i := 0; i < n; i++ {
		pos := world.ChunkPos{int32(i), 0}
		want := i == 0 || n-1-i <= 2
		if res := rec.get(pos); res.calls != 1 || res.success != want {
			t.Fatalf("expected callback(%v) once for %v, got %+v", want, pos, res)
		}
	}
	if st := p.Stats(); st.Shed != 6 || st.Generated != 4 {
		t.Fatalf("expected 6 shed and 4 generated chunks, got %+v", st)
	}
	if hooks.generating.Load() != 4 {
		t.Fatalf("expected hooks for 4 chunks, got %d", hooks.generating.Load())
	}
	if got := testutil.ToFloat64(p.conf.Metrics.Shed); got != 6 {
		t.Fatalf("expected shed metric 6, got %v", got)
	}
}

func TestPoolGeneratesOverloadedChunksWithClients(t *testing.T) {
	t.Parallel()

	sink := newTestSink()
	sink.allClient = true
	p := newTestPool(t, Config{Workers: 1, Sink: sink, SkipThreshold: 1})

	const n = 20
	rec := newRecorder(n)
	for i := 0; i < n; i++ {
		p.QueueGenerateChunk(world.ChunkPos{0, int32(i)}, false, rec)
	}
	p.Start()
	rec.wait(t)

	if st := p.Stats(); st.Shed != 0 || st.Generated != n {
		t.Fatalf("expected all %d chunks generated, got %+v", n, st)
	}
}

func TestPoolWarnsAboveThreshold(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := newTestPool(t, Config{
		Log:           slog.New(slog.NewTextHandler(&buf, nil)),
		Workers:       2,
		WarnThreshold: 3,
		WarnInterval:  -1,
	})

	const n = 5
	rec := newRecorder(n)
	for i := 0; i < n; i++ {
		p.QueueGenerateChunk(world.ChunkPos{int32(i), 1}, false, rec)
	}
	if st := p.Stats(); st.QueueWarnings != 2 || st.Queued != n {
		t.Fatalf("expected 2 warnings with %d queued, got %+v", n, st)
	}
	p.Start()
	rec.wait(t)
	p.Stop()

	if got := strings.Count(buf.String(), "queue is too big"); got != 2 {
		t.Fatalf("expected 2 logged warnings, got %d:\n%s", got, buf.String())
	}
	if st := p.Stats(); st.Generated != n {
		t.Fatalf("expected chunks above the warning threshold to be generated, got %+v", st)
	}
}

func TestPoolThrottlesWarnings(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := newTestPool(t, Config{
		Log:           slog.New(slog.NewTextHandler(&buf, nil)),
		Workers:       1,
		WarnThreshold: 1,
		WarnInterval:  time.Hour,
	})
	for i := 0; i < 10; i++ {
		p.QueueGenerateChunk(world.ChunkPos{int32(i), 2}, false, nil)
	}
	if st := p.Stats(); st.QueueWarnings != 9 {
		t.Fatalf("expected 9 counted warnings, got %+v", st)
	}
	if got := strings.Count(buf.String(), "queue is too big"); got != 1 {
		t.Fatalf("expected 1 logged warning, got %d", got)
	}
}

func TestPoolHookReentersPool(t *testing.T) {
	t.Parallel()

	var p *Pool
	var biome atomic.Value
	hooks := &testHooks{onGenerate: func(desc *world.ChunkDesc) {
		biome.Store(p.BiomeAt(int(desc.Pos().X())*16, 0))
		m := world.NewBiomeMap()
		p.GenerateBiomes(desc.Pos(), &m)
		if m.At(0) != world.Plains {
			panic("unexpected biome map")
		}
	}}
	p = newTestPool(t, Config{Workers: 1, Plugins: hooks})
	p.Start()

	rec := newRecorder(1)
	p.QueueGenerateChunk(world.ChunkPos{1, 1}, false, rec)
	rec.wait(t)

	if res := rec.get(world.ChunkPos{1, 1}); !res.success {
		t.Fatalf("expected reentrant hook to succeed, got %+v", res)
	}
	if got, _ := biome.Load().(world.Biome); got != world.Forest {
		t.Fatalf("expected biome %v from hook, got %v", world.Forest, got)
	}
}

func TestPoolCallbackMayQueueChunks(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{Workers: 1})
	p.Start()

	rec := newRecorder(2)
	p.QueueGenerateChunk(world.ChunkPos{0, 0}, false, world.CallbackFunc(func(pos world.ChunkPos, success bool) {
		rec.Call(pos, success)
		p.QueueGenerateChunk(world.ChunkPos{pos.X() + 1, 0}, false, rec)
	}))
	rec.wait(t)

	if res := rec.get(world.ChunkPos{1, 0}); res.calls != 1 || !res.success {
		t.Fatalf("expected chunk queued from callback to be generated, got %+v", res)
	}
}

func TestPoolRecoversGeneratorPanic(t *testing.T) {
	t.Parallel()

	bad := world.ChunkPos{9, 9}
	sink := newTestSink()
	p := newTestPool(t, Config{
		Workers: 1,
		Sink:    sink,
		Generator: func() (Generator, error) {
			return &testGenerator{panicAt: map[world.ChunkPos]bool{bad: true}}, nil
		},
	})
	p.Start()

	rec := newRecorder(2)
	p.QueueGenerateChunk(bad, false, rec)
	p.QueueGenerateChunk(world.ChunkPos{0, 9}, false, rec)
	rec.wait(t)

	if res := rec.get(bad); res.calls != 1 || res.success {
		t.Fatalf("expected failed callback for panicking chunk, got %+v", res)
	}
	if res := rec.get(world.ChunkPos{0, 9}); !res.success {
		t.Fatalf("expected worker to keep generating after a panic, got %+v", res)
	}
	if st := p.Stats(); st.Failed != 1 || st.Generated != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if sink.IsChunkValid(bad) {
		t.Fatalf("expected failed chunk not to be committed")
	}
}

func TestPoolRecoversCallbackPanic(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{Workers: 1})
	p.Start()

	p.QueueGenerateChunk(world.ChunkPos{5, 5}, false, world.CallbackFunc(func(world.ChunkPos, bool) {
		panic("callback failure")
	}))
	rec := newRecorder(1)
	p.QueueGenerateChunk(world.ChunkPos{6, 5}, false, rec)
	rec.wait(t)
}

func TestWorkerPanicsOnHeightMapMismatch(t *testing.T) {
	t.Parallel()

	bad := world.ChunkPos{2, 2}
	sink := newTestSink()
	p := newTestPool(t, Config{
		Workers:          1,
		Sink:             sink,
		VerifyHeightMaps: true,
		Generator: func() (Generator, error) {
			return &testGenerator{badPos: map[world.ChunkPos]bool{bad: true}}, nil
		},
	})

	rec := newRecorder(1)
	p.workers[0].Process(Task{Pos: world.ChunkPos{1, 2}, Callback: rec})
	rec.wait(t)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected height map mismatch to panic")
		}
		if sink.IsChunkValid(bad) {
			t.Fatalf("expected chunk with bad height map not to be committed")
		}
		if p.workers[0].mu.Locked() {
			t.Fatalf("expected worker lock to be released after panic")
		}
	}()
	p.workers[0].Process(Task{Pos: bad})
}

func TestConfigNewFailingFactory(t *testing.T) {
	t.Parallel()

	errFactory := errors.New("out of noise")
	var closed atomic.Int32
	calls := 0
	_, err := Config{
		Log:     discardLogger(),
		Workers: 4,
		Generator: func() (Generator, error) {
			calls++
			if calls == 3 {
				return nil, errFactory
			}
			return &testGenerator{closed: &closed}, nil
		},
	}.New()
	if !errors.Is(err, errFactory) {
		t.Fatalf("expected factory error, got %v", err)
	}
	if closed.Load() != 2 {
		t.Fatalf("expected 2 generators closed, got %d", closed.Load())
	}

	if _, err := (Config{Log: discardLogger()}).New(); !errors.Is(err, ErrNoGenerator) {
		t.Fatalf("expected ErrNoGenerator, got %v", err)
	}
	_, err = Config{Log: discardLogger(), Workers: 1, Generator: func() (Generator, error) { return nil, nil }}.New()
	if err == nil {
		t.Fatalf("expected error for nil generator")
	}
}

func TestConfigNewDefaults(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{})
	if p.Workers() < 1 {
		t.Fatalf("expected at least one worker, got %d", p.Workers())
	}
	if p.conf.WarnThreshold != DefaultWarnThreshold || p.conf.SkipThreshold != DefaultSkipThreshold {
		t.Fatalf("expected default thresholds, got %d and %d", p.conf.WarnThreshold, p.conf.SkipThreshold)
	}
	if p.Seed() != 42 {
		t.Fatalf("expected seed 42, got %d", p.Seed())
	}
}

func TestPoolStop(t *testing.T) {
	t.Parallel()

	var closed atomic.Int32
	p := newTestPool(t, Config{
		Workers: 2,
		Generator: func() (Generator, error) {
			return &testGenerator{closed: &closed}, nil
		},
	})
	p.Start()
	p.Stop()
	p.Stop()

	var called atomic.Int32
	p.QueueGenerateChunk(world.ChunkPos{7, 7}, false, world.CallbackFunc(func(world.ChunkPos, bool) {
		called.Add(1)
	}))
	time.Sleep(20 * time.Millisecond)
	if called.Load() != 0 {
		t.Fatalf("expected no callback while stopped")
	}
	if p.QueueLen() != 1 {
		t.Fatalf("expected chunk to stay queued, got queue length %d", p.QueueLen())
	}

	rec := newRecorder(1)
	p.QueueGenerateChunk(world.ChunkPos{8, 7}, false, rec)
	p.Start()
	rec.wait(t)

	if err := p.Close(); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}
	if closed.Load() != 2 {
		t.Fatalf("expected 2 generators closed, got %d", closed.Load())
	}
}

func TestPoolCloseCallsBackQueuedChunks(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var first atomic.Bool
	hooks := &testHooks{onGenerate: func(*world.ChunkDesc) {
		if first.CompareAndSwap(false, true) {
			started <- struct{}{}
			<-release
		}
	}}
	p := newTestPool(t, Config{Workers: 1, Sink: newTestSink(), Plugins: hooks})
	p.Start()

	const n = 5
	rec := newRecorder(n)
	for i := 0; i < n; i++ {
		p.QueueGenerateChunk(world.ChunkPos{int32(i), 0}, false, rec)
	}
	<-started

	closed := make(chan error, 1)
	go func() { closed <- p.Close() }()
	close(release)
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("expected close to succeed, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Close never returned")
	}
	for i := 0; i < n; i++ {
		if res := rec.get(world.ChunkPos{int32(i), 0}); res.calls != 1 || !res.success {
			t.Fatalf("expected chunk %d to be generated before Close returned, got %+v", i, res)
		}
	}
}
