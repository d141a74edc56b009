// Package world is the entry point of terrain generation: it owns the macro
// grid for one seed and voxelizes chunks from it on demand.
package world

import (
	"time"

	"voxelterra.ai/internal/sim/world/terrain/chunk"
	"voxelterra.ai/internal/sim/world/terrain/gen"
	"voxelterra.ai/internal/sim/world/terrain/sim"
)

// World is immutable after construction. GenerateChunk may be called from
// any number of goroutines.
type World struct {
	cfg   WorldConfig
	grid  *sim.Grid
	voxel *gen.Voxelizer

	buildDur time.Duration
}

// New validates cfg and builds the macro grid eagerly.
func New(cfg WorldConfig) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	grid := sim.Generate(cfg.Seed, cfg.Macro)
	w := newWorld(cfg, grid)
	w.buildDur = time.Since(start)
	return w, nil
}

// Generate builds a world with default parameters.
func Generate(seed uint32) *World {
	w, err := New(DefaultConfig("", seed))
	if err != nil {
		panic(err)
	}
	return w
}

// FromGrid wraps an already built grid, for example one read from a dump.
func FromGrid(cfg WorldConfig, grid *sim.Grid) (*World, error) {
	cfg.Seed = grid.Seed()
	cfg.Macro = grid.Params()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newWorld(cfg, grid), nil
}

func newWorld(cfg WorldConfig, grid *sim.Grid) *World {
	return &World{
		cfg:   cfg,
		grid:  grid,
		voxel: gen.NewVoxelizer(grid, cfg.Voxel),
	}
}

func (w *World) ID() string          { return w.cfg.ID }
func (w *World) Seed() uint32        { return w.cfg.Seed }
func (w *World) Config() WorldConfig { return w.cfg }
func (w *World) Sim() *sim.Grid      { return w.grid }

// Voxelizer exposes the chunk generator, e.g. for per-voxel inspection.
func (w *World) Voxelizer() *gen.Voxelizer { return w.voxel }

// BuildDuration is how long grid construction took in New.
func (w *World) BuildDuration() time.Duration { return w.buildDur }

// GenerateChunk voxelizes the chunk at k. Chunks outside the world are void.
func (w *World) GenerateChunk(k chunk.Key) *chunk.Chunk {
	return w.voxel.GenerateChunk(k)
}

// Tick advances the world by dt. Terrain is static, so there is nothing to do.
func (w *World) Tick(dt time.Duration) {}
