package world

import (
	"flag"
	"io"
	"strings"
	"testing"
	"time"

	"voxelterra.ai/internal/sim/tuning"
	"voxelterra.ai/internal/sim/world/terrain/chunk"
)

func smallConfig(seed uint32) WorldConfig {
	cfg := DefaultConfig("w", seed)
	cfg.Macro.WorldW, cfg.Macro.WorldH = 6, 6
	return cfg
}

func TestNew_DeterministicChunks(t *testing.T) {
	a, err := New(smallConfig(42))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New(smallConfig(42))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, k := range []chunk.Key{{X: 0, Y: 0}, {X: 2, Y: 4}, {X: -1, Y: 3}} {
		if a.GenerateChunk(k).Digest() != b.GenerateChunk(k).Digest() {
			t.Fatalf("chunk %s differs between identical worlds", k)
		}
	}
	if a.Sim().Digest() != b.Sim().Digest() {
		t.Fatalf("grid digests differ")
	}
}

func TestTick_IsNoOp(t *testing.T) {
	w, err := New(smallConfig(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	k := chunk.Key{X: 1, Y: 1}
	before := w.GenerateChunk(k).Digest()
	gridBefore := w.Sim().Digest()
	for i := 0; i < 10; i++ {
		w.Tick(time.Second)
	}
	w.Tick(0)
	if w.GenerateChunk(k).Digest() != before || w.Sim().Digest() != gridBefore {
		t.Fatalf("Tick changed observable state")
	}
}

func TestGenerate_UsesDefaults(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a full-size grid")
	}
	w := Generate(42)
	gw, gh := w.Sim().Size()
	if w.Seed() != 42 || gw != 1024 || gh != 1024 {
		t.Fatalf("unexpected default world: seed=%d size=%dx%d", w.Seed(), gw, gh)
	}
	if w.GenerateChunk(chunk.Key{X: 0, Y: 0}).IsVoid() {
		t.Fatalf("chunk (0,0) should hold terrain")
	}
}

func TestConfigFromTuning(t *testing.T) {
	tune := tuning.Defaults()
	tune.WorldSize = []int{8, 4}
	tune.SeaLevel = 70
	tune.Voxel.SurfaceDepth = 6
	cfg, err := ConfigFromTuning("t1", 5, tune)
	if err != nil {
		t.Fatalf("ConfigFromTuning: %v", err)
	}
	if cfg.Macro.WorldW != 8 || cfg.Macro.WorldH != 4 || cfg.Macro.SeaLevel != 70 || cfg.Macro.Bounds.SurfaceDepth != 6 {
		t.Fatalf("tuning not applied: %+v", cfg.Macro)
	}
	if cfg.TuningDigest != tune.Digest() {
		t.Fatalf("tuning digest not carried")
	}

	tune.ChunkSize = []int{16, 16}
	if _, err := ConfigFromTuning("t1", 5, tune); err == nil || !strings.Contains(err.Error(), "chunk_size") {
		t.Fatalf("expected chunk_size error, got %v", err)
	}
}

func TestValidate_RejectsOversizedColumns(t *testing.T) {
	cfg := smallConfig(1)
	cfg.Macro.MaxAlt = 10000
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected layer limit error")
	}
	cfg = smallConfig(1)
	cfg.Macro.ColumnSize = 16
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected column size error")
	}
}

func TestValidate_RejectsWarpChaosFloorOutsideUnitRange(t *testing.T) {
	for _, floor := range []float32{-1, -0.01, 1.5} {
		cfg := smallConfig(1)
		cfg.Macro.Bounds.WarpChaosFloor = floor
		if _, err := New(cfg); err == nil {
			t.Fatalf("floor %v: expected validation error", floor)
		}
	}

	if testing.Short() {
		return
	}
	// Tallest span that still validates with no warp floor must voxelize
	// without overflowing the chunk's layers.
	cfg := smallConfig(3)
	cfg.Macro.WorldW, cfg.Macro.WorldH = 2, 2
	cfg.Macro.Bounds.WarpChaosFloor = 0
	b := cfg.Macro.Bounds
	cfg.Macro.MaxAlt = cfg.Macro.MinAlt + float32(chunk.MaxLayers) - 2*b.WarpAmplitude - b.SurfaceDepth - 5
	cfg.Macro.AltBaseAmp = 2000
	cfg.Macro.AltChaosAmp = 2000
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c := w.GenerateChunk(chunk.Key{X: 0, Y: 0}); c.Height() > chunk.MaxLayers {
		t.Fatalf("chunk has %d layers", c.Height())
	}
}

func TestParseSeed(t *testing.T) {
	for in, want := range map[string]uint32{"0": 0, "42": 42, " 7 ": 7, "4294967295": 4294967295} {
		got, err := ParseSeed(in)
		if err != nil || got != want {
			t.Fatalf("ParseSeed(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	for _, in := range []string{"4294967301", "-1", "", "abc"} {
		if _, err := ParseSeed(in); err == nil {
			t.Fatalf("ParseSeed(%q): expected error", in)
		}
	}

	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	seed := SeedFlag(1337)
	fs.Var(&seed, "seed", "")
	if err := fs.Parse([]string{"-seed", "4294967301"}); err == nil {
		t.Fatalf("expected out-of-range seed flag to fail")
	}
	if err := fs.Parse([]string{"-seed", "5"}); err != nil || seed != 5 {
		t.Fatalf("seed flag: %d, %v", seed, err)
	}
}

func TestFromGrid_SharesGrid(t *testing.T) {
	a, err := New(smallConfig(8))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := FromGrid(DefaultConfig("copy", 0), a.Sim())
	if err != nil {
		t.Fatalf("FromGrid: %v", err)
	}
	if b.Seed() != 8 || b.ID() != "copy" {
		t.Fatalf("unexpected identity: seed=%d id=%s", b.Seed(), b.ID())
	}
	k := chunk.Key{X: 3, Y: 2}
	if a.GenerateChunk(k).Digest() != b.GenerateChunk(k).Digest() {
		t.Fatalf("FromGrid world generates different chunks")
	}
	rec := b.Record()
	if rec.Seed != 8 || rec.WorldW != 6 || len(rec.GridDigest) != 64 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}
