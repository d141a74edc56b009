package tuning

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad_RepoConfigMatchesDefaults(t *testing.T) {
	got, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, Defaults()) {
		t.Fatalf("configs/tuning.yaml drifted from Defaults:\n got %+v\nwant %+v", got, Defaults())
	}
	if got.Digest() != Defaults().Digest() {
		t.Fatalf("digest mismatch")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, Defaults()) {
		t.Fatalf("expected defaults")
	}
}

func TestLoad_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("sea_level: 80\nmacro:\n  alt_base_amp: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.SeaLevel != 80 || got.Macro.AltBaseAmp != 10 {
		t.Fatalf("override not applied: %+v", got)
	}
	if got.Macro.AltChaosAmp != Defaults().Macro.AltChaosAmp {
		t.Fatalf("unrelated default lost")
	}
	if got.Digest() == Defaults().Digest() {
		t.Fatalf("digest should change with generation constants")
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"world_size":     "world_size: [0, 4]\n",
		"alt_range":      "macro:\n  max_alt: -1\n",
		"warp_scale":     "voxel:\n  warp_scale: [1, 2]\n",
		"bad_yaml":       "world_size: [\n",
		"sea_level":      "sea_level: 5000\n",
		"chunk_size":     "chunk_size: [32]\n",
		"warp_zero":      "voxel:\n  warp_scale: [1, 0, 1]\n",
		"floor_negative": "voxel:\n  warp_chaos_floor: -1\n",
		"floor_above":    "voxel:\n  warp_chaos_floor: 1.5\n",
		"req_keys":       "stream:\n  max_chunks_per_request: 5000\n",
	}
	for name, body := range cases {
		path := filepath.Join(t.TempDir(), name+".yaml")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDigest_IgnoresOperationalKnobs(t *testing.T) {
	a := Defaults()
	b := Defaults()
	b.Stream.Workers = 17
	b.Stream.Queue = 3
	b.Macro.Workers = 9
	if a.Digest() != b.Digest() {
		t.Fatalf("operational settings changed the digest")
	}
}
