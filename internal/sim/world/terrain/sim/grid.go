package sim

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"voxelterra.ai/internal/sim/world/logic/mathx"
	"voxelterra.ai/internal/sim/world/terrain/noise"
)

// Column is the precomputed macro state of one grid cell.
type Column struct {
	BaseZ        int32 // conservative lower bound: every voxel below is stone
	Alt          float32
	Chaos        float32 // [0,1]
	Temp         float32 // [0,1]
	MaxZ         float32 // upper bound of terrain and water in this column
	SurfaceColor mgl32.Vec3
}

// Grid is the macro simulation table for a whole world. It is written once by
// Generate and read-only afterwards.
type Grid struct {
	seed    uint32
	params  Params
	columns []Column
}

type fields struct {
	alt    *noise.Field
	detail *noise.Field
	chaos  *noise.Field
	temp   *noise.Field
}

func newFields(seed uint32, p Params) fields {
	return fields{
		alt:    noise.New(seed, noise.FeatureAltitude, noise.DefaultParams(p.AltOctaves)),
		detail: noise.New(seed, noise.FeatureAltDetail, noise.DefaultParams(p.DetailOctaves)),
		chaos: noise.New(seed, noise.FeatureChaos, noise.Params{
			Basis:       noise.BasisPerlin,
			Octaves:     p.ChaosOctaves,
			Persistence: 0.5,
			Lacunarity:  2.0,
		}),
		temp: noise.New(seed, noise.FeatureTemperature, noise.DefaultParams(p.TempOctaves)),
	}
}

var (
	grassCold = mgl32.Vec3{0.05, 0.45, 0.2}
	grassWarm = mgl32.Vec3{0.29, 0.59, 0.0}
	sandTone  = mgl32.Vec3{0.71, 0.59, 0.2}
	rockTone  = mgl32.Vec3{0.55, 0.5, 0.45}
)

// Generate builds the full grid. Rows are computed in parallel; each column
// depends only on the noise fields and writes only its own cell.
func Generate(seed uint32, p Params) *Grid {
	g := &Grid{
		seed:    seed,
		params:  p,
		columns: make([]Column, p.WorldW*p.WorldH),
	}
	f := newFields(seed, p)

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > p.WorldH {
		workers = p.WorldH
	}

	rows := make(chan int, p.WorldH)
	for cy := 0; cy < p.WorldH; cy++ {
		rows <- cy
	}
	close(rows)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cy := range rows {
				base := cy * p.WorldW
				for cx := 0; cx < p.WorldW; cx++ {
					g.columns[base+cx] = generateColumn(f, p, cx, cy)
				}
			}
		}()
	}
	wg.Wait()
	return g
}

// FromColumns wraps precomputed columns (for example a loaded grid dump) in a Grid.
// The slice is owned by the grid afterwards.
func FromColumns(seed uint32, p Params, columns []Column) (*Grid, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(columns) != p.WorldW*p.WorldH {
		return nil, fmt.Errorf("column count %d does not match world size %dx%d", len(columns), p.WorldW, p.WorldH)
	}
	return &Grid{seed: seed, params: p, columns: columns}, nil
}

func generateColumn(f fields, p Params, cx, cy int) Column {
	wx := float64(cx * p.ColumnSize)
	wy := float64(cy * p.ColumnSize)

	chaosRaw := float32(f.chaos.Get2(wx/p.ChaosScale, wy/p.ChaosScale))
	chaos := float32(math.Pow(float64((chaosRaw+1)/2), float64(p.ChaosPower)))
	chaos = mathx.Clamp(chaos, 0, 1)

	altBase := float32(f.alt.Get2(wx/p.AltBaseScale, wy/p.AltBaseScale))
	altDetail := (float32(f.detail.Get2(wx/p.AltDetailScale, wy/p.AltDetailScale)) + 1) / 2

	alt := p.SeaLevel + float32(altBase*p.AltBaseAmp)
	alt += float32(float32(altDetail*chaos) * p.AltChaosAmp)
	alt = mathx.Clamp(alt, p.MinAlt, p.MaxAlt)

	temp := mathx.Clamp((float32(f.temp.Get2(wx/p.TempScale, wy/p.TempScale))+1)/2, 0, 1)

	warp := p.Bounds.WarpBound(chaos)
	baseZ := mathx.FloorToInt32(alt-warp-p.Bounds.SurfaceDepth) - 1
	maxZ := alt + warp
	if maxZ < p.SeaLevel {
		maxZ = p.SeaLevel
	}
	maxZ++

	return Column{
		BaseZ:        baseZ,
		Alt:          alt,
		Chaos:        chaos,
		Temp:         temp,
		MaxZ:         maxZ,
		SurfaceColor: surfaceColor(p, alt, chaos, temp),
	}
}

func surfaceColor(p Params, alt, chaos, temp float32) mgl32.Vec3 {
	col := lerpVec(grassCold, grassWarm, temp)
	if p.BeachBand > 0 {
		beach := mathx.Clamp(1-(alt-p.SeaLevel)/p.BeachBand, 0, 1)
		col = lerpVec(col, sandTone, beach)
	}
	rocky := mathx.Clamp((chaos-0.5)*2, 0, 1)
	return lerpVec(col, rockTone, rocky)
}

func lerpVec(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return mgl32.Vec3{
		mathx.Lerp(a[0], b[0], t),
		mathx.Lerp(a[1], b[1], t),
		mathx.Lerp(a[2], b[2], t),
	}
}

func (g *Grid) Seed() uint32   { return g.seed }
func (g *Grid) Params() Params { return g.params }

// Size returns the grid extent in columns.
func (g *Grid) Size() (w, h int) { return g.params.WorldW, g.params.WorldH }

func (g *Grid) inGrid(cx, cy int) bool {
	return cx >= 0 && cy >= 0 && cx < g.params.WorldW && cy < g.params.WorldH
}

// Get returns a copy of the column at (cx, cy).
func (g *Grid) Get(cx, cy int) (Column, bool) {
	if !g.inGrid(cx, cy) {
		return Column{}, false
	}
	return g.columns[cy*g.params.WorldW+cx], true
}

// GetBaseZ returns the minimum base height over the column and the neighbors
// its chunk interpolates toward. Absent when the column is outside the grid.
func (g *Grid) GetBaseZ(cx, cy int) (int32, bool) {
	c, ok := g.Get(cx, cy)
	if !ok {
		return 0, false
	}
	baseZ := c.BaseZ
	for _, d := range [3][2]int{{1, 0}, {0, 1}, {1, 1}} {
		if n, ok := g.Get(cx+d[0], cy+d[1]); ok && n.BaseZ < baseZ {
			baseZ = n.BaseZ
		}
	}
	return baseZ, true
}

// ForEach visits every column in row-major order.
func (g *Grid) ForEach(fn func(cx, cy int, c Column)) {
	for i, c := range g.columns {
		fn(i%g.params.WorldW, i/g.params.WorldW, c)
	}
}

// Digest hashes every column bit-for-bit together with the seed and extent.
func (g *Grid) Digest() [32]byte {
	h := sha256.New()
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:], g.seed)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(g.params.WorldW))
	binary.LittleEndian.PutUint32(hdr[8:], uint32(g.params.WorldH))
	h.Write(hdr[:])

	var tmp [32]byte
	for _, c := range g.columns {
		binary.LittleEndian.PutUint32(tmp[0:], uint32(c.BaseZ))
		binary.LittleEndian.PutUint32(tmp[4:], math.Float32bits(c.Alt))
		binary.LittleEndian.PutUint32(tmp[8:], math.Float32bits(c.Chaos))
		binary.LittleEndian.PutUint32(tmp[12:], math.Float32bits(c.Temp))
		binary.LittleEndian.PutUint32(tmp[16:], math.Float32bits(c.MaxZ))
		binary.LittleEndian.PutUint32(tmp[20:], math.Float32bits(c.SurfaceColor[0]))
		binary.LittleEndian.PutUint32(tmp[24:], math.Float32bits(c.SurfaceColor[1]))
		binary.LittleEndian.PutUint32(tmp[28:], math.Float32bits(c.SurfaceColor[2]))
		h.Write(tmp[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
