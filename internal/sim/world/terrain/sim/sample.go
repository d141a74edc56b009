package sim

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// Sample is the interpolated macro state at one world column. It is computed
// on demand and never cached.
type Sample struct {
	Alt          float32
	Chaos        float32
	SurfaceColor mgl32.Vec3
}

// Projection selects which column attribute GetInterpolated blends.
type Projection uint8

const (
	ProjAltitude Projection = iota + 1
	ProjChaos
	ProjMaxHeight
	ProjBaseHeight
)

func (p Projection) String() string {
	switch p {
	case ProjAltitude:
		return "ALTITUDE"
	case ProjChaos:
		return "CHAOS"
	case ProjMaxHeight:
		return "MAX_HEIGHT"
	case ProjBaseHeight:
		return "BASE_HEIGHT"
	default:
		return fmt.Sprintf("Projection(%d)", uint8(p))
	}
}

func (c Column) project(p Projection) (float32, bool) {
	switch p {
	case ProjAltitude:
		return c.Alt, true
	case ProjChaos:
		return c.Chaos, true
	case ProjMaxHeight:
		return c.MaxZ, true
	case ProjBaseHeight:
		return float32(c.BaseZ), true
	default:
		return 0, false
	}
}

// cell holds the four corners around a world position and their bilinear weights.
type cell struct {
	corners [4]Column
	weights [4]float32
}

// locate finds the enclosing cell. Any missing corner makes the position
// absent; there is no extrapolation past the world edge.
func (g *Grid) locate(wx, wy int) (cell, bool) {
	size := float64(g.params.ColumnSize)
	pos := mgl64.Vec2{float64(wx), float64(wy)}.Mul(1 / size)
	cx := int(math.Floor(pos.X()))
	cy := int(math.Floor(pos.Y()))

	var out cell
	for i, d := range [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		c, ok := g.Get(cx+d[0], cy+d[1])
		if !ok {
			return cell{}, false
		}
		out.corners[i] = c
	}

	fx := float32(pos.X() - float64(cx))
	fy := float32(pos.Y() - float64(cy))
	out.weights = [4]float32{
		float32((1 - fx) * (1 - fy)),
		float32(fx * (1 - fy)),
		float32((1 - fx) * fy),
		float32(fx * fy),
	}
	return out, true
}

func blend(w, v [4]float32) float32 {
	var acc float32
	for i := range w {
		acc += float32(w[i] * v[i])
	}
	return acc
}

// Sample interpolates altitude, chaos and surface colour at a world column.
func (g *Grid) Sample(wx, wy int) (Sample, bool) {
	c, ok := g.locate(wx, wy)
	if !ok {
		return Sample{}, false
	}
	var alt, chaos, r, gr, b [4]float32
	for i, col := range c.corners {
		alt[i] = col.Alt
		chaos[i] = col.Chaos
		r[i] = col.SurfaceColor[0]
		gr[i] = col.SurfaceColor[1]
		b[i] = col.SurfaceColor[2]
	}
	return Sample{
		Alt:          blend(c.weights, alt),
		Chaos:        blend(c.weights, chaos),
		SurfaceColor: mgl32.Vec3{blend(c.weights, r), blend(c.weights, gr), blend(c.weights, b)},
	}, true
}

// GetInterpolated applies proj to each enclosing column and blends the results.
func (g *Grid) GetInterpolated(wx, wy int, proj Projection) (float32, bool) {
	c, ok := g.locate(wx, wy)
	if !ok {
		return 0, false
	}
	var v [4]float32
	for i, col := range c.corners {
		pv, ok := col.project(proj)
		if !ok {
			return 0, false
		}
		v[i] = pv
	}
	return blend(c.weights, v), true
}
