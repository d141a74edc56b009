package sim

import (
	"fmt"

	"voxelterra.ai/internal/sim/world/terrain/chunk"
)

// Bounds are the voxelizer constants the grid needs to precompute
// conservative per-column height bounds.
type Bounds struct {
	SurfaceDepth   float32 // Δ: thickness of the surface band
	WarpAmplitude  float32
	WarpChaosFloor float32 // chaos below this produces no warp
}

// WarpBound is the largest |warp| a column with the given chaos can produce.
func (b Bounds) WarpBound(chaos float32) float32 {
	c := chaos - b.WarpChaosFloor
	if c < 0 {
		c = 0
	}
	return float32(b.WarpAmplitude * c)
}

type Params struct {
	WorldW     int // columns
	WorldH     int // columns
	ColumnSize int // world blocks per column edge

	SeaLevel float32
	MinAlt   float32
	MaxAlt   float32

	AltBaseScale   float64
	AltDetailScale float64
	ChaosScale     float64
	TempScale      float64

	AltBaseAmp  float32
	AltChaosAmp float32
	ChaosPower  float32
	BeachBand   float32

	AltOctaves    int
	DetailOctaves int
	ChaosOctaves  int
	TempOctaves   int

	Bounds Bounds

	// Workers used to build the grid; <= 0 means GOMAXPROCS.
	Workers int
}

func DefaultParams() Params {
	return Params{
		WorldW:     1024,
		WorldH:     1024,
		ColumnSize: chunk.SizeX,

		SeaLevel: 64,
		MinAlt:   0,
		MaxAlt:   1000,

		AltBaseScale:   5000,
		AltDetailScale: 750,
		ChaosScale:     4000,
		TempScale:      8000,

		AltBaseAmp:  48,
		AltChaosAmp: 320,
		ChaosPower:  1.4,
		BeachBand:   6,

		AltOctaves:    7,
		DetailOctaves: 5,
		ChaosOctaves:  6,
		TempOctaves:   2,

		Bounds: Bounds{
			SurfaceDepth:   4,
			WarpAmplitude:  90,
			WarpChaosFloor: 0.1,
		},
	}
}

func (p Params) Validate() error {
	switch {
	case p.WorldW <= 0 || p.WorldH <= 0:
		return fmt.Errorf("world size must be positive: %dx%d", p.WorldW, p.WorldH)
	case p.ColumnSize <= 0:
		return fmt.Errorf("column size must be positive: %d", p.ColumnSize)
	case p.MaxAlt <= p.MinAlt:
		return fmt.Errorf("max_alt %.1f must exceed min_alt %.1f", p.MaxAlt, p.MinAlt)
	case p.AltBaseScale <= 0 || p.AltDetailScale <= 0 || p.ChaosScale <= 0 || p.TempScale <= 0:
		return fmt.Errorf("noise scales must be positive")
	case p.ChaosPower <= 0:
		return fmt.Errorf("chaos_power must be positive: %.3f", p.ChaosPower)
	case p.Bounds.SurfaceDepth < 0 || p.Bounds.WarpAmplitude < 0:
		return fmt.Errorf("surface depth and warp amplitude must be non-negative")
	case p.Bounds.WarpChaosFloor < 0 || p.Bounds.WarpChaosFloor > 1:
		return fmt.Errorf("warp chaos floor must be in [0, 1]: %.3f", p.Bounds.WarpChaosFloor)
	}
	return nil
}
