package main

import (
	"bytes"
	"encoding/hex"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelterra.ai/internal/protocol"
	"voxelterra.ai/internal/sim/world"
	"voxelterra.ai/internal/sim/world/stream"
	"voxelterra.ai/internal/sim/world/terrain/chunk"
	"voxelterra.ai/internal/transport/ws"
)

func TestSquareKeys(t *testing.T) {
	keys := squareKeys([2]int32{5, -1}, 1)
	if len(keys) != 9 {
		t.Fatalf("len=%d want 9", len(keys))
	}
	if keys[0] != [2]int32{4, -2} || keys[8] != [2]int32{6, 0} {
		t.Fatalf("unexpected corners: %v %v", keys[0], keys[8])
	}
	if got := squareKeys([2]int32{0, 0}, -3); len(got) != 1 {
		t.Fatalf("negative radius should yield the centre only: %v", got)
	}
}

func TestRun_FetchesSquareInBatches(t *testing.T) {
	cfg := world.DefaultConfig("bot_test", 17)
	cfg.Macro.WorldW, cfg.Macro.WorldH = 4, 4
	w, err := world.New(cfg)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	pool := stream.NewPool(w, 2, 32)
	defer pool.Close()
	srv := httptest.NewServer(ws.NewServer(pool, ws.Options{
		WorldID:             w.ID(),
		Params:              protocol.WorldParams{Seed: 17, WorldSize: [2]int{4, 4}},
		MaxChunksPerRequest: 4,
	}, nil, nil).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var out bytes.Buffer
	sum, err := run(conn, "test", [2]int32{0, 0}, 1, &out, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.OK != 9 || sum.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	// Keys with a negative coordinate lie outside the world.
	if sum.Void != 5 {
		t.Fatalf("void chunks: got %d want 5", sum.Void)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 9 {
		t.Fatalf("output lines: %d\n%s", len(lines), out.String())
	}
	d := w.GenerateChunk(chunk.Key{X: 1, Y: 1}).Digest()
	if !strings.Contains(out.String(), "1,1\tOK\t") || !strings.Contains(out.String(), hex.EncodeToString(d[:])) {
		t.Fatalf("missing digest for (1,1):\n%s", out.String())
	}
}
