package server

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/df-mc/genpool/server/workpool"
	"github.com/df-mc/genpool/server/world"
	"github.com/df-mc/genpool/server/world/gen"
	"github.com/df-mc/genpool/server/world/generator"
	"github.com/df-mc/genpool/server/world/hook"
	"github.com/df-mc/genpool/server/world/sink"
	"github.com/pelletier/go-toml"
	"github.com/prometheus/client_golang/prometheus"
)

// Config contains options for starting a chunk generation server.
type Config struct {
	// Log is the Logger to use for logging information. If nil, Log is set to
	// slog.Default().
	Log *slog.Logger
	// Generator selects the terrain generator. Every worker creates its own
	// generator from these settings. If Generator.Kind is empty, a flat
	// generator is used.
	Generator generator.Settings
	// Workers is the number of generation workers. If set to 0 or lower, the
	// number of CPUs is used.
	Workers int
	// WarnThreshold is the queue length from which queueing a chunk logs a
	// warning. If 0, gen.DefaultWarnThreshold is used.
	WarnThreshold int
	// SkipThreshold is the queue length above which chunks without clients
	// are skipped. If 0, gen.DefaultSkipThreshold is used.
	SkipThreshold int
	// VerifyHeightMaps makes workers check the height map of every chunk
	// generated.
	VerifyHeightMaps bool
	// Clients tracks the clients waiting for chunks. If nil, a new tracker is
	// created. It is only used by the default Sink.
	Clients *sink.Clients
	// Sink receives generated chunks. If nil, chunks are kept in memory. A
	// Sink that implements io.Closer is closed when the Server is closed, or
	// by New if it fails.
	Sink world.Sink
	// Metrics is the registry generation metrics are registered with. If nil,
	// no metrics are collected.
	Metrics *prometheus.Registry
}

// New creates a stopped Server using fields of conf. An error is returned if
// the generators of the workers could not be created.
func (conf Config) New() (*Server, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Generator.Kind == "" {
		conf.Generator.Kind = generator.KindFlat
	}
	if conf.Clients == nil {
		conf.Clients = sink.NewClients()
	}
	if conf.Sink == nil {
		conf.Sink = sink.NewMemory(conf.Clients)
	}
	srv := &Server{
		conf:  conf,
		log:   conf.Log,
		hooks: hook.NewChain(conf.Log),
	}
	poolConf := gen.Config{
		Log:              conf.Log.With("subsystem", "gen"),
		Workers:          conf.Workers,
		Generator:        generator.Factory(conf.Generator),
		Sink:             conf.Sink,
		Plugins:          srv.hooks,
		WarnThreshold:    conf.WarnThreshold,
		SkipThreshold:    conf.SkipThreshold,
		VerifyHeightMaps: conf.VerifyHeightMaps,
	}
	if conf.Metrics != nil {
		poolConf.Metrics = gen.NewMetrics(conf.Metrics, "genpool", "gen")
		poolConf.QueueMetrics = workpool.NewMetrics(conf.Metrics, "genpool", "queue")
	}
	pool, err := poolConf.New()
	if err != nil {
		if c, ok := conf.Sink.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, fmt.Errorf("create generation pool: %w", err)
	}
	srv.pool = pool
	return srv, nil
}

// UserConfig is the user configuration of a chunk generation server. It
// may be serialised to TOML and can be converted to a Config by calling
// UserConfig.Config().
type UserConfig struct {
	// Generator holds the settings of the terrain generator and the pool of
	// workers running it.
	Generator struct {
		// Kind is the kind of terrain generator, "flat" or "noise".
		Kind string
		// Seed is the seed of the world.
		Seed int64
		// Workers is the number of generation workers. Set to 0 to use the
		// number of CPUs.
		Workers int
		// WarnThreshold is the queue length from which a warning is logged
		// for every chunk queued.
		WarnThreshold int
		// SkipThreshold is the queue length above which chunks that no client
		// is waiting for are skipped.
		SkipThreshold int
		// Debug enables verification of the height map of every chunk
		// generated. A mismatch crashes the server.
		Debug bool
		// FlatHeight is the ground height of the flat generator.
		FlatHeight int
		// Biome is the biome of the flat generator, such as "plains".
		Biome string
	}
	Storage struct {
		// SaveData controls whether generated chunks are saved to a LevelDB
		// database. If false, chunks are kept in memory.
		SaveData bool
		// Folder is the folder of the database.
		Folder string
		// Compression enables zstd compression of saved chunks.
		Compression bool
	}
	Metrics struct {
		// Enabled controls whether Prometheus metrics are collected.
		Enabled bool
	}
}

// Config converts a UserConfig to a Config, so that it may be used for
// creating a Server. An error is returned if the generator kind is unknown
// or the chunk database could not be opened.
func (uc UserConfig) Config(log *slog.Logger) (Config, error) {
	if log == nil {
		log = slog.Default()
	}
	biome := world.Plains
	if name := strings.TrimSpace(uc.Generator.Biome); name != "" {
		if b, ok := world.BiomeByName(name); ok {
			biome = b
		} else {
			log.Warn("Unknown biome, using plains.", "value", name)
		}
	}
	conf := Config{
		Log: log,
		Generator: generator.Settings{
			Kind:       strings.TrimSpace(uc.Generator.Kind),
			Seed:       uc.Generator.Seed,
			FlatHeight: uc.Generator.FlatHeight,
			Biome:      biome,
		},
		Workers:          uc.Generator.Workers,
		WarnThreshold:    uc.Generator.WarnThreshold,
		SkipThreshold:    uc.Generator.SkipThreshold,
		VerifyHeightMaps: uc.Generator.Debug,
		Clients:          sink.NewClients(),
	}
	if conf.Generator.Kind == "" {
		conf.Generator.Kind = generator.KindFlat
	}
	if _, err := generator.New(conf.Generator); err != nil {
		return conf, fmt.Errorf("create generator: %w", err)
	}
	if uc.Metrics.Enabled {
		conf.Metrics = prometheus.NewRegistry()
	}
	if uc.Storage.SaveData {
		db, err := sink.OpenLevelDB(uc.Storage.Folder, sink.LevelDBConfig{
			Log:      log.With("subsystem", "storage"),
			Clients:  conf.Clients,
			Compress: uc.Storage.Compression,
		})
		if err != nil {
			return conf, fmt.Errorf("create chunk storage: %w", err)
		}
		conf.Sink = db
	}
	return conf, nil
}

// DefaultConfig returns a configuration with the default values filled out.
func DefaultConfig() UserConfig {
	c := UserConfig{}
	c.Generator.Kind = generator.KindNoise
	c.Generator.Seed = 0
	c.Generator.Workers = 0
	c.Generator.WarnThreshold = gen.DefaultWarnThreshold
	c.Generator.SkipThreshold = gen.DefaultSkipThreshold
	c.Generator.FlatHeight = 64
	c.Generator.Biome = world.Plains.String()
	c.Storage.SaveData = true
	c.Storage.Folder = "chunks"
	c.Storage.Compression = true
	c.Metrics.Enabled = false
	return c
}

// LoadUserConfig reads the UserConfig stored at path. Settings missing from
// the file keep their default value. If the file does not exist, it is
// created with the default configuration.
func LoadUserConfig(path string) (UserConfig, error) {
	c := DefaultConfig()
	contents, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return c, fmt.Errorf("read config: %w", err)
		}
		return c, WriteUserConfig(path, c)
	}
	if err := toml.Unmarshal(contents, &c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

// WriteUserConfig writes c to path as TOML, creating its directory if
// needed.
func WriteUserConfig(path string, c UserConfig) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	encoded, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
