// Package generator implements the terrain generators used by the chunk
// generation pool.
package generator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/df-mc/genpool/server/world"
	"github.com/df-mc/genpool/server/world/gen"
)

const (
	// KindFlat selects the Flat generator.
	KindFlat = "flat"
	// KindNoise selects the Noise generator.
	KindNoise = "noise"
)

// ErrUnknownKind is returned by New for a Settings.Kind it does not know.
var ErrUnknownKind = errors.New("unknown generator kind")

// Settings selects and configures a generator.
type Settings struct {
	// Kind is the kind of generator, either KindFlat or KindNoise.
	Kind string
	// Seed is the world seed. Generators with the same Kind and Seed produce
	// the same chunks.
	Seed int64
	// FlatHeight is the height of the ground of the Flat generator.
	FlatHeight int
	// Biome is the biome of every column of the Flat generator.
	Biome world.Biome
}

// New creates the generator described by s.
func New(s Settings) (gen.Generator, error) {
	switch strings.ToLower(s.Kind) {
	case KindFlat:
		return NewFlat(s.Seed, s.FlatHeight, s.Biome), nil
	case KindNoise:
		return NewNoise(s.Seed), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownKind, s.Kind)
}

// Factory returns a gen.Factory that creates a new generator from s every
// time it is called.
func Factory(s Settings) gen.Factory {
	return func() (gen.Generator, error) {
		return New(s)
	}
}
