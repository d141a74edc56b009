// Package noise provides seeded, immutable coherent-noise fields.
//
// A Field is fully configured at construction and never mutated afterwards,
// so one instance may be shared by any number of goroutines.
package noise

import (
	perlin "github.com/aquilax/go-perlin"
	"github.com/ojrac/opensimplex-go"

	"voxelterra.ai/internal/sim/world/logic/mathx"
)

// Feature identifies what a field is used for. Fields of one world seed are
// decorrelated by feature, never by reseeding the world.
type Feature uint32

const (
	FeatureAltitude Feature = iota + 1
	FeatureAltDetail
	FeatureChaos
	FeatureTemperature
	FeatureWarp
)

func (f Feature) String() string {
	switch f {
	case FeatureAltitude:
		return "altitude"
	case FeatureAltDetail:
		return "alt_detail"
	case FeatureChaos:
		return "chaos"
	case FeatureTemperature:
		return "temperature"
	case FeatureWarp:
		return "warp"
	default:
		return "unknown"
	}
}

type Basis uint8

const (
	BasisSimplex Basis = iota
	BasisPerlin
)

type Params struct {
	Basis       Basis
	Octaves     int
	Persistence float64
	Lacunarity  float64
}

// DefaultParams is a plain fBm layering over simplex noise.
func DefaultParams(octaves int) Params {
	return Params{
		Basis:       BasisSimplex,
		Octaves:     octaves,
		Persistence: 0.5,
		Lacunarity:  2.0,
	}
}

type Field struct {
	feature Feature
	params  Params
	seed    int64

	simplex opensimplex.Noise
	perlin  *perlin.Perlin

	// Per-octave domain offsets keep octaves from sharing a zero at the origin.
	offsets [][3]float64
	norm    float64
}

func New(seed uint32, feature Feature, p Params) *Field {
	if p.Octaves < 1 {
		p.Octaves = 1
	}
	if p.Persistence <= 0 {
		p.Persistence = 0.5
	}
	if p.Lacunarity <= 0 {
		p.Lacunarity = 2.0
	}

	sub := mathx.SubSeed(seed, uint32(feature))
	f := &Field{
		feature: feature,
		params:  p,
		seed:    sub,
	}

	layers := p.Octaves
	if p.Basis == BasisPerlin {
		// go-perlin layers octaves itself: amplitude 1/alpha^i, frequency beta^i.
		f.perlin = perlin.NewPerlin(1/p.Persistence, p.Lacunarity, int32(p.Octaves), sub)
		layers = 1
	} else {
		f.simplex = opensimplex.New(sub)
	}

	f.offsets = make([][3]float64, layers)
	for i := range f.offsets {
		for k := 0; k < 3; k++ {
			h := mathx.Hash2(sub, i, k)
			f.offsets[i][k] = float64(h%(1<<20)) / 1024.0
		}
	}

	amp := 1.0
	for i := 0; i < p.Octaves; i++ {
		f.norm += amp
		amp *= p.Persistence
	}
	return f
}

func (f *Field) Feature() Feature { return f.feature }
func (f *Field) Params() Params   { return f.params }

// Get2 samples the field in 2D. The result is always within [-1, 1].
func (f *Field) Get2(x, y float64) float64 {
	if f.perlin != nil {
		off := f.offsets[0]
		v := f.perlin.Noise2D(x+off[0], y+off[1])
		return mathx.Clamp64(v/f.norm, -1, 1)
	}

	sum, amp, freq := 0.0, 1.0, 1.0
	for _, off := range f.offsets {
		v := f.simplex.Eval2(float64(x*freq)+off[0], float64(y*freq)+off[1])
		sum += float64(amp * v)
		amp *= f.params.Persistence
		freq *= f.params.Lacunarity
	}
	return mathx.Clamp64(sum/f.norm, -1, 1)
}

// Get3 samples the field in 3D. The result is always within [-1, 1].
func (f *Field) Get3(x, y, z float64) float64 {
	if f.perlin != nil {
		off := f.offsets[0]
		v := f.perlin.Noise3D(x+off[0], y+off[1], z+off[2])
		return mathx.Clamp64(v/f.norm, -1, 1)
	}

	sum, amp, freq := 0.0, 1.0, 1.0
	for _, off := range f.offsets {
		v := f.simplex.Eval3(float64(x*freq)+off[0], float64(y*freq)+off[1], float64(z*freq)+off[2])
		sum += float64(amp * v)
		amp *= f.params.Persistence
		freq *= f.params.Lacunarity
	}
	return mathx.Clamp64(sum/f.norm, -1, 1)
}
