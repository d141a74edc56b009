package chunkcodec

import (
	"encoding/json"
	"strings"
	"testing"

	"voxelterra.ai/internal/sim/world/terrain/chunk"
)

func sampleChunk(t *testing.T) *chunk.Chunk {
	t.Helper()
	stone := chunk.NewBlock(chunk.Stone, chunk.Rgb{R: 200, G: 220, B: 255})
	grass := chunk.NewBlock(chunk.Surface, chunk.Rgb{R: 20, G: 140, B: 30})
	b := chunk.NewBuilder(chunk.Key{X: 3, Y: -2}, 40, stone, chunk.Empty())
	for y := 0; y < chunk.SizeY; y++ {
		for x := 0; x < chunk.SizeX; x++ {
			top := int32(44 + (x+y)%5)
			for z := int32(40); z < top; z++ {
				b.MustSet(x, y, z, stone)
			}
			b.MustSet(x, y, top, grass)
		}
	}
	return b.Build()
}

func TestEncodeDecode_PreservesDigest(t *testing.T) {
	c := sampleChunk(t)
	p, err := Encode(c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(p.Data) == 0 || p.Layers != c.Height() {
		t.Fatalf("unexpected payload: layers=%d data=%d", p.Layers, len(p.Data))
	}

	// Through JSON as it travels on the wire.
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Payload
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, err := Decode(back)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Digest() != c.Digest() {
		t.Fatalf("digest changed across codec")
	}
	if blk, _ := got.Get(5, 7, 39); blk.Material != chunk.Stone {
		t.Fatalf("below block lost: %s", blk.Material)
	}
}

func TestEncode_VoidChunk(t *testing.T) {
	p, err := Encode(chunk.Void(chunk.Key{X: -1, Y: 9}))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	c, err := Decode(p)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !c.IsVoid() || c.Key != (chunk.Key{X: -1, Y: 9}) {
		t.Fatalf("void chunk not preserved: %+v", c.Key)
	}
}

func TestDecode_Rejects(t *testing.T) {
	good, err := Encode(sampleChunk(t))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	bad := good
	bad.Digest = strings.Repeat("0", 64)
	if _, err := Decode(bad); err == nil || !strings.Contains(err.Error(), "digest") {
		t.Fatalf("expected digest error, got %v", err)
	}

	bad = good
	bad.Layers++
	if _, err := Decode(bad); err == nil {
		t.Fatalf("expected size error")
	}

	bad = good
	bad.Encoding = "RAW"
	if _, err := Decode(bad); err == nil {
		t.Fatalf("expected encoding error")
	}

	bad = good
	bad.Data = []byte("not zstd")
	if _, err := Decode(bad); err == nil {
		t.Fatalf("expected zstd error")
	}
}
