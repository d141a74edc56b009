package world

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"voxelterra.ai/internal/sim/tuning"
	"voxelterra.ai/internal/sim/world/terrain/chunk"
	"voxelterra.ai/internal/sim/world/terrain/gen"
	"voxelterra.ai/internal/sim/world/terrain/sim"
)

type WorldConfig struct {
	ID   string
	Seed uint32

	Macro sim.Params
	Voxel gen.Params

	// TuningDigest identifies the constants the world was built from.
	TuningDigest string
}

func DefaultConfig(id string, seed uint32) WorldConfig {
	return WorldConfig{
		ID:    id,
		Seed:  seed,
		Macro: sim.DefaultParams(),
		Voxel: gen.DefaultParams(),
	}
}

// ConfigFromTuning maps a loaded tuning file onto world parameters.
func ConfigFromTuning(id string, seed uint32, t tuning.Tuning) (WorldConfig, error) {
	if err := t.Validate(); err != nil {
		return WorldConfig{}, err
	}
	if t.ChunkSize[0] != chunk.SizeX || t.ChunkSize[1] != chunk.SizeY {
		return WorldConfig{}, fmt.Errorf("tuning: chunk_size %v unsupported (want [%d %d])", t.ChunkSize, chunk.SizeX, chunk.SizeY)
	}
	m := t.Macro
	cfg := WorldConfig{
		ID:   id,
		Seed: seed,
		Macro: sim.Params{
			WorldW:         t.WorldSize[0],
			WorldH:         t.WorldSize[1],
			ColumnSize:     t.ChunkSize[0],
			SeaLevel:       t.SeaLevel,
			MinAlt:         m.MinAlt,
			MaxAlt:         m.MaxAlt,
			AltBaseScale:   m.AltBaseScale,
			AltDetailScale: m.AltDetailScale,
			ChaosScale:     m.ChaosScale,
			TempScale:      m.TempScale,
			AltBaseAmp:     m.AltBaseAmp,
			AltChaosAmp:    m.AltChaosAmp,
			ChaosPower:     m.ChaosPower,
			BeachBand:      m.BeachBand,
			AltOctaves:     m.AltOctaves,
			DetailOctaves:  m.DetailOctaves,
			ChaosOctaves:   m.ChaosOctaves,
			TempOctaves:    m.TempOctaves,
			Bounds: sim.Bounds{
				SurfaceDepth:   t.Voxel.SurfaceDepth,
				WarpAmplitude:  t.Voxel.WarpAmplitude,
				WarpChaosFloor: t.Voxel.WarpChaosFloor,
			},
			Workers: m.Workers,
		},
		Voxel: gen.Params{
			WarpScale:   mgl64.Vec3{t.Voxel.WarpScale[0], t.Voxel.WarpScale[1], t.Voxel.WarpScale[2]},
			WarpOctaves: t.Voxel.WarpOctaves,
		},
		TuningDigest: t.Digest(),
	}
	return cfg, cfg.Validate()
}

func (c WorldConfig) Validate() error {
	if err := c.Macro.Validate(); err != nil {
		return err
	}
	if c.Macro.ColumnSize != chunk.SizeX || chunk.SizeX != chunk.SizeY {
		return fmt.Errorf("column size %d must equal chunk size %d", c.Macro.ColumnSize, chunk.SizeX)
	}
	for i := 0; i < 3; i++ {
		if c.Voxel.WarpScale[i] <= 0 {
			return fmt.Errorf("warp scale must be positive: %v", c.Voxel.WarpScale)
		}
	}
	// Tallest possible column must fit the dense volume of one chunk.
	b := c.Macro.Bounds
	span := (c.Macro.MaxAlt - c.Macro.MinAlt) + 2*b.WarpBound(1) + b.SurfaceDepth + 4
	if span >= chunk.MaxLayers {
		return fmt.Errorf("altitude span %.0f exceeds chunk layer limit %d", span, chunk.MaxLayers)
	}
	return nil
}

// ParseSeed reads a decimal world seed. Values that do not fit in 32 bits
// are rejected instead of wrapping onto another world.
func ParseSeed(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("seed %q: want an integer in [0, %d]", s, uint32(1<<32-1))
	}
	return uint32(n), nil
}

// SeedFlag is a flag.Value for world seeds.
type SeedFlag uint32

func (f *SeedFlag) String() string { return strconv.FormatUint(uint64(*f), 10) }

func (f *SeedFlag) Set(s string) error {
	n, err := ParseSeed(s)
	if err != nil {
		return err
	}
	*f = SeedFlag(n)
	return nil
}
