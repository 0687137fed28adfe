package gen

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/df-mc/genpool/server/workpool"
	"github.com/df-mc/genpool/server/world"
)

const (
	// DefaultWarnThreshold is the queue length from which queueing another
	// chunk logs a warning.
	DefaultWarnThreshold = 1000
	// DefaultSkipThreshold is the queue length above which chunks without
	// clients are skipped instead of generated.
	DefaultSkipThreshold = 500
	// DefaultWarnInterval is the minimum time between two queue length
	// warnings.
	DefaultWarnInterval = 10 * time.Second
)

// Config holds the settings of a Pool. The zero value is not usable:
// Generator must be set.
type Config struct {
	// Log is the Logger used for generation diagnostics. If nil, Log is set
	// to slog.Default().
	Log *slog.Logger
	// Workers is the number of worker goroutines, each with its own
	// Generator. If 0 or lower, the number of CPUs is used.
	Workers int
	// Generator creates the Generator of every worker.
	Generator Factory
	// Sink receives generated chunks. If nil, world.NopSink is used.
	Sink world.Sink
	// Plugins receives the chunk generation hooks. If nil, world.NopPlugins
	// is used.
	Plugins world.PluginInterface
	// WarnThreshold is the queue length from which QueueGenerateChunk logs a
	// warning. The chunk is queued regardless. If 0 or lower,
	// DefaultWarnThreshold is used.
	WarnThreshold int
	// SkipThreshold is the queue length above which workers skip chunks that
	// no client is waiting for, reporting them as failed. If 0 or lower,
	// DefaultSkipThreshold is used.
	SkipThreshold int
	// WarnInterval limits how often the queue length warning is logged. If
	// 0, DefaultWarnInterval is used. If negative, every warning is logged.
	WarnInterval time.Duration
	// VerifyHeightMaps makes workers check the height map of every chunk
	// generated and panic if it does not match the blocks. It is always on
	// in builds with the gendebug tag.
	VerifyHeightMaps bool
	// Metrics receives generation statistics. It may be nil.
	Metrics *Metrics
	// QueueMetrics receives statistics of the underlying task queue. It may
	// be nil.
	QueueMetrics *workpool.Metrics
}

// ErrNoGenerator is returned by Config.New if Config.Generator is nil.
var ErrNoGenerator = errors.New("no generator factory configured")

// New creates a stopped Pool using the fields of conf, creating a Generator
// for every worker. If any Generator cannot be created, the error is logged
// and returned, and the Generators already created are closed.
func (conf Config) New() (*Pool, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Generator == nil {
		conf.Log.Error("Generator could not start.", "error", ErrNoGenerator)
		return nil, ErrNoGenerator
	}
	if conf.Workers <= 0 {
		conf.Workers = runtime.NumCPU()
	}
	if conf.Sink == nil {
		conf.Sink = world.NopSink{}
	}
	if conf.Plugins == nil {
		conf.Plugins = world.NopPlugins{}
	}
	if conf.WarnThreshold <= 0 {
		conf.WarnThreshold = DefaultWarnThreshold
	}
	if conf.SkipThreshold <= 0 {
		conf.SkipThreshold = DefaultSkipThreshold
	}
	if conf.WarnInterval == 0 {
		conf.WarnInterval = DefaultWarnInterval
	}
	conf.VerifyHeightMaps = conf.VerifyHeightMaps || debugBuild

	p := &Pool{
		conf: conf,
		log:  conf.Log,
	}
	processors := make([]workpool.Processor[Task], 0, conf.Workers)
	for i := 0; i < conf.Workers; i++ {
		g, err := conf.Generator()
		if err == nil && g == nil {
			err = errors.New("factory returned nil generator")
		}
		if err != nil {
			conf.Log.Error("Generator could not start.", "worker", i, "error", err)
			p.closeGenerators()
			return nil, fmt.Errorf("create generator for worker %d: %w", i, err)
		}
		w := &worker{
			id:   i,
			pool: p,
			gen:  g,
			log:  conf.Log.With("worker", i),
		}
		p.workers = append(p.workers, w)
		processors = append(processors, w)
	}
	p.tasks = workpool.New(workpool.Config{
		Log:     conf.Log.With("subsystem", "gen.queue"),
		Metrics: conf.QueueMetrics,
	}, processors)
	return p, nil
}

func (p *Pool) closeGenerators() error {
	var errs []error
	for _, w := range p.workers {
		if c, ok := w.gen.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close generator of worker %d: %w", w.id, err))
			}
		}
	}
	return errors.Join(errs...)
}
