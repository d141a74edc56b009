package gen

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"voxelterra.ai/internal/sim/world/logic/mathx"
	"voxelterra.ai/internal/sim/world/terrain/chunk"
	"voxelterra.ai/internal/sim/world/terrain/noise"
	"voxelterra.ai/internal/sim/world/terrain/sim"
)

type Params struct {
	// WarpScale holds the warp wavelengths along x, y and z in blocks.
	WarpScale   mgl64.Vec3
	WarpOctaves int
}

func DefaultParams() Params {
	return Params{
		WarpScale:   mgl64.Vec3{120, 120, 150},
		WarpOctaves: 3,
	}
}

var (
	StoneBlock = chunk.NewBlock(chunk.Stone, chunk.Rgb{R: 200, G: 220, B: 255})
	WaterBlock = chunk.NewBlock(chunk.Water, chunk.Rgb{R: 100, G: 150, B: 255})
)

// Classify maps a voxel height to a material given the effective terrain
// height h, sea level sl and surface band depth.
//
// The surface band is closed at h, so the terrain top wins ties with water.
func Classify(z, h, sl, depth float32) chunk.Material {
	switch {
	case z < h-depth:
		return chunk.Stone
	case z <= h:
		return chunk.Surface
	case z < sl:
		return chunk.Water
	default:
		return chunk.Air
	}
}

// Voxelizer turns macro samples plus domain-warp noise into chunks. It holds
// only immutable state and is safe for concurrent GenerateChunk calls.
type Voxelizer struct {
	grid     *sim.Grid
	bounds   sim.Bounds
	seaLevel float32
	warp     *noise.Field

	// warpFreq maps world positions into warp noise space.
	warpFreq mgl64.Mat3
}

func NewVoxelizer(grid *sim.Grid, p Params) *Voxelizer {
	gp := grid.Params()
	return &Voxelizer{
		grid:     grid,
		bounds:   gp.Bounds,
		seaLevel: gp.SeaLevel,
		warp:     noise.New(grid.Seed(), noise.FeatureWarp, noise.DefaultParams(p.WarpOctaves)),
		warpFreq: mgl64.Diag3(mgl64.Vec3{1 / p.WarpScale.X(), 1 / p.WarpScale.Y(), 1 / p.WarpScale.Z()}),
	}
}

// EffectiveHeight is the warped terrain height seen by the voxel at (wx, wy, z).
func (v *Voxelizer) EffectiveHeight(s sim.Sample, wx, wy int, z int32) float32 {
	amp := v.bounds.WarpBound(s.Chaos)
	if amp == 0 {
		return s.Alt
	}
	pos := v.warpFreq.Mul3x1(mgl64.Vec3{float64(wx), float64(wy), float64(z)})
	n := v.warp.Get3(pos.Elem())
	return s.Alt + float32(float32(n)*amp)
}

// GenerateChunk voxelizes one chunk. A chunk whose base height is unknown is
// returned as an all-air void chunk.
func (v *Voxelizer) GenerateChunk(k chunk.Key) *chunk.Chunk {
	baseZ, ok := v.grid.GetBaseZ(int(k.X), int(k.Y))
	if !ok {
		return chunk.Void(k)
	}

	b := chunk.NewBuilder(k, baseZ, StoneBlock, chunk.Empty())
	ox, oy := k.Origin()
	for y := 0; y < chunk.SizeY; y++ {
		for x := 0; x < chunk.SizeX; x++ {
			wx, wy := ox+x, oy+y
			s, ok := v.grid.Sample(wx, wy)
			if !ok {
				continue
			}
			maxF, ok := v.grid.GetInterpolated(wx, wy, sim.ProjMaxHeight)
			if !ok {
				continue
			}
			maxZ := mathx.CeilToInt32(maxF)
			surface := chunk.NewBlock(chunk.Surface, toRgb(s.SurfaceColor))

			for z := baseZ; z < maxZ; z++ {
				h := v.EffectiveHeight(s, wx, wy, z)
				b.MustSet(x, y, z, v.block(Classify(float32(z), h, v.seaLevel, v.bounds.SurfaceDepth), surface))
			}
		}
	}
	return b.Build()
}

func (v *Voxelizer) block(m chunk.Material, surface chunk.Block) chunk.Block {
	switch m {
	case chunk.Stone:
		return StoneBlock
	case chunk.Surface:
		return surface
	case chunk.Water:
		return WaterBlock
	default:
		return chunk.Empty()
	}
}

func toRgb(c mgl32.Vec3) chunk.Rgb {
	conv := func(e float32) uint8 {
		return uint8(mathx.Clamp(e, 0, 1) * 255)
	}
	return chunk.Rgb{R: conv(c[0]), G: conv(c[1]), B: conv(c[2])}
}
