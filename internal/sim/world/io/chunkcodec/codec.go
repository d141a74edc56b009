// Package chunkcodec converts generated chunks to and from their wire form:
// packed voxels, varint run-length encoded, then zstd compressed.
package chunkcodec

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"voxelterra.ai/internal/protocol"
	simenc "voxelterra.ai/internal/sim/encoding"
	"voxelterra.ai/internal/sim/world/terrain/chunk"
)

const Encoding = "RLE_UVARINT+ZSTD"

// Payload is the wire form carried in CHUNK messages.
type Payload = protocol.ChunkPayload

var (
	coderOnce sync.Once
	coderErr  error
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
)

func coders() error {
	coderOnce.Do(func() {
		encoder, coderErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if coderErr != nil {
			return
		}
		decoder, coderErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(64<<20))
	})
	return coderErr
}

func Encode(c *chunk.Chunk) (Payload, error) {
	if err := coders(); err != nil {
		return Payload{}, fmt.Errorf("zstd init: %w", err)
	}
	raw := simenc.AppendRLE(nil, c.Packed())
	d := c.Digest()
	return Payload{
		Key:      [2]int32{c.Key.X, c.Key.Y},
		BaseZ:    c.BaseZ,
		Layers:   c.Height(),
		Below:    c.Below.Pack(),
		Above:    c.Above.Pack(),
		Encoding: Encoding,
		Data:     encoder.EncodeAll(raw, nil),
		Digest:   hex.EncodeToString(d[:]),
	}, nil
}

// Decode rebuilds the chunk and checks it against the payload digest.
func Decode(p Payload) (*chunk.Chunk, error) {
	if err := coders(); err != nil {
		return nil, fmt.Errorf("zstd init: %w", err)
	}
	if p.Encoding != Encoding {
		return nil, fmt.Errorf("unsupported encoding %q", p.Encoding)
	}
	if p.Layers < 0 || p.Layers > chunk.MaxLayers {
		return nil, fmt.Errorf("bad layer count %d", p.Layers)
	}
	want := p.Layers * chunk.SizeX * chunk.SizeY

	raw, err := decoder.DecodeAll(p.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	packed, err := simenc.DecodeRLE(raw, want)
	if err != nil {
		return nil, fmt.Errorf("rle: %w", err)
	}
	if len(packed) != want {
		return nil, fmt.Errorf("voxel count %d, want %d", len(packed), want)
	}

	k := chunk.Key{X: p.Key[0], Y: p.Key[1]}
	c, err := chunk.FromPacked(k, p.BaseZ, chunk.Unpack(p.Below), chunk.Unpack(p.Above), packed)
	if err != nil {
		return nil, err
	}
	d := c.Digest()
	if got := hex.EncodeToString(d[:]); got != p.Digest {
		return nil, fmt.Errorf("chunk %s digest mismatch: got %s want %s", k, got, p.Digest)
	}
	return c, nil
}
