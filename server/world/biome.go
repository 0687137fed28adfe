package world

import "strings"

// Biome identifies the biome of a block column. The zero value is Ocean, so
// unallocated biome maps read as ocean.
type Biome uint8

const (
	Ocean Biome = iota
	Plains
	Desert
	Mountains
	Forest
	Taiga
	Swamp
	River
	IcePlains
	SmallMountains
	BirchForest
)

type biomeInfo struct {
	name                  string
	minHeight, maxHeight  int
	temperature, rainfall float64
	cover                 Block
}

var biomes = [...]biomeInfo{
	Ocean:          {"ocean", 46, 58, 0.5, 0.5, Gravel},
	Plains:         {"plains", 63, 68, 0.8, 0.4, Grass},
	Desert:         {"desert", 63, 74, 2, 0, Sand},
	Mountains:      {"mountains", 63, 127, 0.4, 0.5, Grass},
	Forest:         {"forest", 63, 81, 0.7, 0.8, Grass},
	Taiga:          {"taiga", 63, 81, 0.05, 0.8, Grass},
	Swamp:          {"swamp", 62, 63, 0.8, 0.9, Grass},
	River:          {"river", 58, 62, 0.5, 0.7, Dirt},
	IcePlains:      {"ice_plains", 63, 74, 0, 0.5, Snow},
	SmallMountains: {"small_mountains", 63, 97, 0.4, 0.5, Grass},
	BirchForest:    {"birch_forest", 63, 81, 0.6, 0.6, Grass},
}

// Biomes returns every known biome in ID order.
func Biomes() []Biome {
	all := make([]Biome, len(biomes))
	for i := range biomes {
		all[i] = Biome(i)
	}
	return all
}

// BiomeByName looks up a biome by its case-insensitive name.
func BiomeByName(name string) (Biome, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, b := range biomes {
		if b.name == name {
			return Biome(i), true
		}
	}
	return 0, false
}

// Valid reports if b is a known biome.
func (b Biome) Valid() bool {
	return int(b) < len(biomes)
}

// String returns the name of the biome.
func (b Biome) String() string {
	if !b.Valid() {
		return "unknown"
	}
	return biomes[b].name
}

// Elevation returns the lowest and highest terrain height of the biome.
func (b Biome) Elevation() (min, max int) {
	if !b.Valid() {
		return 63, 68
	}
	return biomes[b].minHeight, biomes[b].maxHeight
}

// Temperature returns the temperature of the biome.
func (b Biome) Temperature() float64 {
	if !b.Valid() {
		return 0.8
	}
	return biomes[b].temperature
}

// Rainfall returns the rainfall of the biome.
func (b Biome) Rainfall() float64 {
	if !b.Valid() {
		return 0.4
	}
	return biomes[b].rainfall
}

// GroundCover returns the block placed on top of the terrain of the biome.
func (b Biome) GroundCover() Block {
	if !b.Valid() {
		return Grass
	}
	return biomes[b].cover
}
