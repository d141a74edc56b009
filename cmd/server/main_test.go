package main

import (
	"bytes"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxelterra.ai/internal/persistence/snapshot"
	"voxelterra.ai/internal/sim/world"
	"voxelterra.ai/internal/sim/world/stream"
	"voxelterra.ai/internal/sim/world/terrain/chunk"
	"voxelterra.ai/internal/transport/ws"
)

func smallWorld(t *testing.T, seed uint32) *world.World {
	t.Helper()
	cfg := world.DefaultConfig("world_test", seed)
	cfg.Macro.WorldW = 6
	cfg.Macro.WorldH = 6
	cfg.TuningDigest = "tune"
	w, err := world.New(cfg)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return w
}

func TestWorldParams(t *testing.T) {
	w := smallWorld(t, 5)
	p := worldParams(w, "grid")
	if p.Seed != 5 || p.WorldSize != [2]int{6, 6} || p.GridDigest != "grid" || p.TuningDigest != "tune" {
		t.Fatalf("unexpected params: %+v", p)
	}
	if p.ChunkSize != [3]int{chunk.SizeX, chunk.SizeY, chunk.MaxLayers} {
		t.Fatalf("chunk size: %v", p.ChunkSize)
	}
}

func TestSyncGridDump_WritesThenMatches(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(io.Discard, "", 0)
	w := smallWorld(t, 8)
	rec := w.Record()

	if err := syncGridDump(dir, w, rec.GridDigest, logger); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	path := gridDumpPath(dir, 8)
	hdr, err := snapshot.ReadGridHeader(path)
	if err != nil {
		t.Fatalf("ReadGridHeader: %v", err)
	}
	if hdr.GridDigest != rec.GridDigest {
		t.Fatalf("dump digest %s want %s", hdr.GridDigest, rec.GridDigest)
	}
	if err := syncGridDump(dir, w, rec.GridDigest, logger); err != nil {
		t.Fatalf("second sync should match: %v", err)
	}
	if err := syncGridDump(dir, w, "other", logger); err == nil {
		t.Fatalf("expected digest mismatch")
	}
}

func TestSyncGridDump_UnreadableDump(t *testing.T) {
	dir := t.TempDir()
	w := smallWorld(t, 9)
	path := gridDumpPath(dir, 9)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := syncGridDump(dir, w, w.Record().GridDigest, log.New(io.Discard, "", 0))
	if err == nil || errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

type fakeLogErrors struct{ n uint64 }

func (f fakeLogErrors) Errors() (uint64, error) { return f.n, nil }

func TestWriteMetrics(t *testing.T) {
	var buf bytes.Buffer
	writeMetrics(&buf, metricsSource{
		WorldID:  "w1",
		BuildDur: 1500 * time.Millisecond,
		Pool:     stream.Stats{Workers: 4, QueueDepth: 2, QueueCapacity: 16, Submitted: 10, Generated: 8},
		WS:       ws.Stats{ActiveSessions: 1, ChunksOK: 7, ChunksFailed: 3, Rejected: 2},
		ChunkLog: fakeLogErrors{n: 2},
	})
	out := buf.String()
	for _, want := range []string{
		`voxelterra_world_build_seconds{world="w1"} 1.500`,
		`voxelterra_gen_workers{world="w1"} 4`,
		`voxelterra_gen_jobs_total{world="w1",outcome="generated"} 8`,
		`voxelterra_ws_chunks_total{world="w1",ok="false"} 3`,
		`voxelterra_ws_requests_rejected_total{world="w1"} 2`,
		`voxelterra_chunk_log_errors_total{world="w1"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "voxelterra_index_") {
		t.Fatalf("index metrics without an index backend")
	}
}

func TestOpenRuntimeIndex(t *testing.T) {
	t.Setenv("VT_INDEX_BACKEND", "")
	idx, err := openRuntimeIndex(t.TempDir(), "w", true, nil)
	if err != nil || idx != nil {
		t.Fatalf("disabled index: idx=%v err=%v", idx, err)
	}

	t.Setenv("VT_INDEX_BACKEND", "bogus")
	if _, err := openRuntimeIndex(t.TempDir(), "w", false, nil); err == nil {
		t.Fatalf("expected unsupported backend error")
	}

	t.Setenv("VT_INDEX_BACKEND", "d1")
	t.Setenv("VT_INDEX_D1_INGEST_URL", "")
	if _, err := openRuntimeIndex(t.TempDir(), "w", false, nil); err == nil {
		t.Fatalf("expected missing endpoint error")
	}

	t.Setenv("VT_INDEX_BACKEND", "sqlite")
	dir := t.TempDir()
	idx, err = openRuntimeIndex(dir, "w", false, nil)
	if err != nil {
		t.Fatalf("sqlite index: %v", err)
	}
	defer idx.Close()
	if _, err := os.Stat(filepath.Join(dir, "index", "world.sqlite")); err != nil {
		t.Fatalf("sqlite file: %v", err)
	}
	var buf bytes.Buffer
	idx.WriteMetrics(&buf, "w")
	if !strings.Contains(buf.String(), `voxelterra_index_queue_depth{world="w",backend="sqlite"}`) {
		t.Fatalf("sqlite metrics: %s", buf.String())
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:1234": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", addr, got, want)
		}
	}
}
