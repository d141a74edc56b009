package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voxelterra.ai/internal/sim/tuning"
	"voxelterra.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "dump":
			dumpCmd(os.Args[2:])
			return
		case "verify":
			verifyCmd(os.Args[2:])
			return
		case "column":
			columnCmd(os.Args[2:])
			return
		case "chunk":
			chunkCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// worldFlags are shared by every subcommand that rebuilds a world.
type worldFlags struct {
	worldID    *string
	seed       *world.SeedFlag
	configDir  *string
	tuningPath *string
}

func addWorldFlags(fs *flag.FlagSet) worldFlags {
	seed := world.SeedFlag(1337)
	fs.Var(&seed, "seed", "world seed (uint32)")
	return worldFlags{
		worldID:    fs.String("world", "world_1", "world id"),
		seed:       &seed,
		configDir:  fs.String("configs", "./configs", "config directory"),
		tuningPath: fs.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)"),
	}
}

func (f worldFlags) build() (*world.World, error) {
	tp := strings.TrimSpace(*f.tuningPath)
	if tp == "" {
		tp = filepath.Join(*f.configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		return nil, fmt.Errorf("load tuning: %w", err)
	}
	cfg, err := world.ConfigFromTuning(*f.worldID, uint32(*f.seed), tune)
	if err != nil {
		return nil, err
	}
	return world.New(cfg)
}

func mustBuild(f worldFlags) *world.World {
	w, err := f.build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}
	return w
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
