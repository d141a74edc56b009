package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voxelterra.ai/internal/persistence/snapshot"
	"voxelterra.ai/internal/sim/world"
	"voxelterra.ai/internal/sim/world/io/chunkcodec"
	"voxelterra.ai/internal/sim/world/logic/mathx"
	"voxelterra.ai/internal/sim/world/terrain/chunk"
	"voxelterra.ai/internal/sim/world/terrain/gen"
	"voxelterra.ai/internal/sim/world/terrain/sim"
)

func dumpCmd(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	wf := addWorldFlags(fs)
	dataDir := fs.String("data", "./data", "runtime data directory")
	outPath := fs.String("out", "", "output path (default: <data>/worlds/<id>/grids/<seed>.grid.zst)")
	_ = fs.Parse(args)

	w := mustBuild(wf)
	path := strings.TrimSpace(*outPath)
	if path == "" {
		path = filepath.Join(*dataDir, "worlds", w.ID(), "grids", fmt.Sprintf("%d.grid.zst", w.Seed()))
	}
	dump := snapshot.FromGrid(w.ID(), w.Sim(), w.Config().TuningDigest)
	if err := snapshot.WriteGridDump(path, dump); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
	printJSON(struct {
		Path   string          `json:"path"`
		Header snapshot.Header `json:"header"`
		BuildS float64         `json:"build_s"`
	}{path, dump.Header, w.BuildDuration().Seconds()})
}

func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	wf := addWorldFlags(fs)
	dumpPath := fs.String("dump", "", "grid dump path (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*dumpPath) == "" {
		fmt.Fprintln(os.Stderr, "missing -dump")
		os.Exit(2)
	}
	dump, err := snapshot.ReadGridDump(*dumpPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	// The dump fixes seed and world id; flags only supply tuning.
	*wf.seed = world.SeedFlag(dump.Header.Seed)
	*wf.worldID = dump.Header.WorldID
	w := mustBuild(wf)

	if err := verifyDump(dump, w); err != nil {
		fmt.Fprintln(os.Stderr, "verify:", err)
		os.Exit(1)
	}
	fmt.Printf("ok seed=%d grid=%s\n", dump.Header.Seed, dump.Header.GridDigest)
}

// verifyDump checks a dump against a freshly built world.
func verifyDump(dump snapshot.GridDumpV1, w *world.World) error {
	if dump.Header.TuningDigest != w.Config().TuningDigest {
		return fmt.Errorf("tuning digest mismatch: dump=%s built=%s", dump.Header.TuningDigest, w.Config().TuningDigest)
	}
	return snapshot.Verify(dump, w.Sim())
}

func columnCmd(args []string) {
	fs := flag.NewFlagSet("column", flag.ExitOnError)
	wf := addWorldFlags(fs)
	x := fs.Int("x", 0, "world x")
	y := fs.Int("y", 0, "world y")
	_ = fs.Parse(args)

	w := mustBuild(wf)
	prof, err := columnProfile(w, *x, *y)
	if err != nil {
		fmt.Fprintln(os.Stderr, "column:", err)
		os.Exit(1)
	}
	printJSON(prof)
}

type materialRun struct {
	FromZ    int32  `json:"from_z"`
	ToZ      int32  `json:"to_z"` // inclusive
	Material string `json:"material"`
}

type columnProfileOut struct {
	X          int           `json:"x"`
	Y          int           `json:"y"`
	Chunk      [2]int32      `json:"chunk"`
	Alt        float32       `json:"alt"`
	Chaos      float32       `json:"chaos"`
	MaxZ       float32       `json:"max_z"`
	BaseZ      int32         `json:"base_z"`
	Runs       []materialRun `json:"runs"`
	Mismatches int           `json:"mismatches"`
}

// columnProfile classifies every voxel of one world column from BaseZ up to
// the column's max height and cross-checks the generated chunk.
func columnProfile(w *world.World, wx, wy int) (columnProfileOut, error) {
	g := w.Sim()
	s, ok := g.Sample(wx, wy)
	if !ok {
		return columnProfileOut{}, fmt.Errorf("(%d,%d) outside sampled world", wx, wy)
	}
	maxF, _ := g.GetInterpolated(wx, wy, sim.ProjMaxHeight)
	k := chunk.Key{X: int32(mathx.FloorDiv(wx, chunk.SizeX)), Y: int32(mathx.FloorDiv(wy, chunk.SizeY))}
	baseZ, _ := g.GetBaseZ(int(k.X), int(k.Y))
	c := w.GenerateChunk(k)
	lx, ly := mathx.Mod(wx, chunk.SizeX), mathx.Mod(wy, chunk.SizeY)

	cfg := w.Config()
	out := columnProfileOut{
		X:     wx,
		Y:     wy,
		Chunk: [2]int32{k.X, k.Y},
		Alt:   s.Alt,
		Chaos: s.Chaos,
		MaxZ:  maxF,
		BaseZ: baseZ,
	}
	for z := baseZ; z < mathx.CeilToInt32(maxF); z++ {
		h := w.Voxelizer().EffectiveHeight(s, wx, wy, z)
		m := gen.Classify(float32(z), h, cfg.Macro.SeaLevel, cfg.Macro.Bounds.SurfaceDepth)
		if b, _ := c.Get(lx, ly, z); b.Material != m {
			out.Mismatches++
		}
		name := m.String()
		if n := len(out.Runs); n > 0 && out.Runs[n-1].Material == name {
			out.Runs[n-1].ToZ = z
			continue
		}
		out.Runs = append(out.Runs, materialRun{FromZ: z, ToZ: z, Material: name})
	}
	return out, nil
}

func chunkCmd(args []string) {
	fs := flag.NewFlagSet("chunk", flag.ExitOnError)
	wf := addWorldFlags(fs)
	cx := fs.Int("cx", 0, "chunk x")
	cy := fs.Int("cy", 0, "chunk y")
	_ = fs.Parse(args)

	w := mustBuild(wf)
	sum, err := summarizeChunk(w.GenerateChunk(chunk.Key{X: int32(*cx), Y: int32(*cy)}))
	if err != nil {
		fmt.Fprintln(os.Stderr, "chunk:", err)
		os.Exit(1)
	}
	printJSON(sum)
}

type chunkSummary struct {
	Key       [2]int32       `json:"key"`
	Void      bool           `json:"void"`
	BaseZ     int32          `json:"base_z"`
	Layers    int            `json:"layers"`
	Counts    map[string]int `json:"counts"`
	Digest    string         `json:"digest"`
	WireBytes int            `json:"wire_bytes"`
}

func summarizeChunk(c *chunk.Chunk) (chunkSummary, error) {
	p, err := chunkcodec.Encode(c)
	if err != nil {
		return chunkSummary{}, err
	}
	d := c.Digest()
	out := chunkSummary{
		Key:       [2]int32{c.Key.X, c.Key.Y},
		Void:      c.IsVoid(),
		BaseZ:     c.BaseZ,
		Layers:    c.Height(),
		Counts:    map[string]int{},
		Digest:    hex.EncodeToString(d[:]),
		WireBytes: len(p.Data),
	}
	for m, n := range c.Counts() {
		out.Counts[m.String()] = n
	}
	return out, nil
}
