package sink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/df-mc/genpool/server/world"
	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/opt"
	"github.com/klauspost/compress/zstd"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

// recordVersion is the version of the chunk records written.
const recordVersion = 1

// keyPrefix is the first byte of the key of every chunk record.
const keyPrefix = 'c'

var (
	// ErrChunkNotFound is returned by LevelDB.Load for a chunk that is not
	// stored.
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrChecksum is returned by LevelDB.Load for a record whose block data
	// does not match its checksum.
	ErrChecksum = errors.New("chunk record checksum mismatch")
)

// LevelDBConfig holds the optional settings of a LevelDB sink.
type LevelDBConfig struct {
	// Log is the Logger used to report chunks that could not be saved. If
	// nil, slog.Default() is used.
	Log *slog.Logger
	// Clients tracks the clients waiting for chunks. It may be nil.
	Clients *Clients
	// Compress enables zstd compression of the block data of records.
	Compress bool
}

// LevelDB stores generated chunks in a LevelDB database. Every chunk is a
// single NBT record keyed by its position. LevelDB is safe for concurrent
// use.
type LevelDB struct {
	conf LevelDBConfig
	db   *leveldb.DB
	enc  *zstd.Encoder
	dec  *zstd.Decoder

	saved, errs atomic.Uint64
}

// record is the NBT form of a ChunkDesc. Grids that were never written are
// stored empty.
type record struct {
	Version    uint8   `nbt:"Version"`
	X          int32   `nbt:"X"`
	Z          int32   `nbt:"Z"`
	Biomes     []byte  `nbt:"Biomes"`
	Heights    []int32 `nbt:"Heights"`
	Compressed uint8   `nbt:"Compressed"`
	Blocks     []byte  `nbt:"Blocks"`
	Checksum   int64   `nbt:"Checksum"`
}

// OpenLevelDB opens or creates the database in dir.
func OpenLevelDB(dir string, conf LevelDBConfig) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{Compression: opt.NoCompression})
	if err != nil {
		return nil, fmt.Errorf("open chunk database: %w", err)
	}
	s, err := NewLevelDB(db, conf)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewLevelDB returns a sink storing chunks in db. Closing the sink closes db.
func NewLevelDB(db *leveldb.DB, conf LevelDBConfig) (*LevelDB, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &LevelDB{conf: conf, db: db, enc: enc, dec: dec}, nil
}

// IsChunkValid reports if a record for the chunk at pos exists.
func (s *LevelDB) IsChunkValid(pos world.ChunkPos) bool {
	ok, err := s.db.Has(chunkKey(pos), nil)
	if err != nil {
		s.conf.Log.Error("Could not look up chunk.", "chunkX", pos[0], "chunkZ", pos[1], "error", err)
		return false
	}
	return ok
}

// HasChunkAnyClients ...
func (s *LevelDB) HasChunkAnyClients(pos world.ChunkPos) bool {
	return s.conf.Clients.HasChunkAnyClients(pos)
}

// OnChunkGenerated saves desc. Errors are logged: the chunk stays invalid
// and is generated again when next requested.
func (s *LevelDB) OnChunkGenerated(desc *world.ChunkDesc) {
	defer desc.Release()
	if err := s.Save(desc); err != nil {
		s.errs.Add(1)
		s.conf.Log.Error("Could not save chunk.", "chunkX", desc.Pos()[0], "chunkZ", desc.Pos()[1], "error", err)
		return
	}
	s.saved.Add(1)
}

// Save encodes desc and writes it to the database.
func (s *LevelDB) Save(desc *world.ChunkDesc) error {
	data, err := s.encode(desc)
	if err != nil {
		return fmt.Errorf("encode chunk %v: %w", desc.Pos(), err)
	}
	if err := s.db.Put(chunkKey(desc.Pos()), data, nil); err != nil {
		return fmt.Errorf("write chunk %v: %w", desc.Pos(), err)
	}
	return nil
}

// Load reads the chunk at pos from the database. It returns an error
// wrapping ErrChunkNotFound if the chunk is not stored.
func (s *LevelDB) Load(pos world.ChunkPos) (*world.ChunkDesc, error) {
	data, err := s.db.Get(chunkKey(pos), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("load chunk %v: %w", pos, ErrChunkNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("load chunk %v: %w", pos, err)
	}
	desc, err := s.decode(pos, data)
	if err != nil {
		return nil, fmt.Errorf("decode chunk %v: %w", pos, err)
	}
	return desc, nil
}

// Delete removes the chunk at pos so that it is generated again.
func (s *LevelDB) Delete(pos world.ChunkPos) error {
	if err := s.db.Delete(chunkKey(pos), nil); err != nil {
		return fmt.Errorf("delete chunk %v: %w", pos, err)
	}
	return nil
}

// Saved returns the number of chunks saved and the number of chunks that
// could not be saved.
func (s *LevelDB) Saved() (saved, failed uint64) {
	return s.saved.Load(), s.errs.Load()
}

// Close closes the database.
func (s *LevelDB) Close() error {
	err := s.enc.Close()
	s.dec.Close()
	if dbErr := s.db.Close(); dbErr != nil {
		err = errors.Join(err, fmt.Errorf("close chunk database: %w", dbErr))
	}
	return err
}

func (s *LevelDB) encode(desc *world.ChunkDesc) ([]byte, error) {
	pos := desc.Pos()
	rec := record{Version: recordVersion, X: pos.X(), Z: pos.Z()}
	hasBiomes, hasHeights, hasBlocks := desc.Allocated()

	if hasBiomes {
		rec.Biomes = make([]byte, world.ColumnCount)
		for x := 0; x < world.ChunkWidth; x++ {
			for z := 0; z < world.ChunkWidth; z++ {
				rec.Biomes[world.ColumnIndex(x, z)] = byte(desc.Biome(x, z))
			}
		}
	}
	if hasHeights {
		rec.Heights = make([]int32, world.ColumnCount)
		for x := 0; x < world.ChunkWidth; x++ {
			for z := 0; z < world.ChunkWidth; z++ {
				rec.Heights[world.ColumnIndex(x, z)] = int32(desc.Height(x, z))
			}
		}
	}
	if hasBlocks {
		raw := make([]byte, world.ColumnCount*world.ChunkHeight)
		for x := 0; x < world.ChunkWidth; x++ {
			for z := 0; z < world.ChunkWidth; z++ {
				base := world.ColumnIndex(x, z) * world.ChunkHeight
				for y := 0; y < world.ChunkHeight; y++ {
					raw[base+y] = byte(desc.Block(x, y, z))
				}
			}
		}
		rec.Checksum = int64(xxhash.Sum64(raw))
		rec.Blocks = raw
		if s.conf.Compress {
			rec.Compressed = 1
			rec.Blocks = s.enc.EncodeAll(raw, make([]byte, 0, len(raw)/8))
		}
	}
	return nbt.MarshalEncoding(rec, nbt.LittleEndian)
}

func (s *LevelDB) decode(pos world.ChunkPos, data []byte) (*world.ChunkDesc, error) {
	var rec record
	if err := nbt.UnmarshalEncoding(data, &rec, nbt.LittleEndian); err != nil {
		return nil, err
	}
	if rec.Version != recordVersion {
		return nil, fmt.Errorf("unsupported record version %d", rec.Version)
	}
	if rec.X != pos.X() || rec.Z != pos.Z() {
		return nil, fmt.Errorf("record holds chunk (%d, %d)", rec.X, rec.Z)
	}

	desc := world.NewChunkDesc(pos)
	if len(rec.Biomes) > 0 {
		if len(rec.Biomes) != world.ColumnCount {
			return nil, fmt.Errorf("invalid biome count %d", len(rec.Biomes))
		}
		m := desc.BiomeMap()
		for i, b := range rec.Biomes {
			m.Set(i, world.Biome(b))
		}
	}
	if len(rec.Heights) > 0 {
		if len(rec.Heights) != world.ColumnCount {
			return nil, fmt.Errorf("invalid height count %d", len(rec.Heights))
		}
		for x := 0; x < world.ChunkWidth; x++ {
			for z := 0; z < world.ChunkWidth; z++ {
				desc.SetHeight(x, z, int(rec.Heights[world.ColumnIndex(x, z)]))
			}
		}
	}
	if len(rec.Blocks) > 0 {
		raw := rec.Blocks
		if rec.Compressed != 0 {
			var err error
			if raw, err = s.dec.DecodeAll(rec.Blocks, nil); err != nil {
				return nil, fmt.Errorf("decompress blocks: %w", err)
			}
		}
		if len(raw) != world.ColumnCount*world.ChunkHeight {
			return nil, fmt.Errorf("invalid block count %d", len(raw))
		}
		if int64(xxhash.Sum64(raw)) != rec.Checksum {
			return nil, ErrChecksum
		}
		for x := 0; x < world.ChunkWidth; x++ {
			for z := 0; z < world.ChunkWidth; z++ {
				base := world.ColumnIndex(x, z) * world.ChunkHeight
				col := desc.Column(x, z)
				for y := range col {
					col[y] = world.Block(raw[base+y])
				}
			}
		}
	}
	return desc, nil
}

func chunkKey(pos world.ChunkPos) []byte {
	k := make([]byte, 9)
	k[0] = keyPrefix
	binary.LittleEndian.PutUint64(k[1:], uint64(pos.Key()))
	return k
}

var _ world.Sink = (*LevelDB)(nil)
