package chunk

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

const (
	SizeX = 32
	SizeY = 32

	layerLen = SizeX * SizeY

	// MaxLayers bounds the dense volume of one chunk.
	MaxLayers = 4096
)

// Key addresses a chunk footprint in chunk units.
type Key struct {
	X int32
	Y int32
}

// Origin returns the world position of the chunk's (0,0) column.
func (k Key) Origin() (int, int) {
	return int(k.X) * SizeX, int(k.Y) * SizeY
}

func (k Key) String() string {
	return fmt.Sprintf("(%d,%d)", k.X, k.Y)
}

// Chunk is a finished, read-only voxel volume for one footprint.
//
// Voxels with z < BaseZ read as Below, voxels at or above BaseZ+Height read as Above.
type Chunk struct {
	Key   Key
	BaseZ int32
	Below Block
	Above Block

	voxels []Block // x fastest, then y, then layer
	digest [32]byte
}

func index(x, y, layer int) int {
	return x + y*SizeX + layer*layerLen
}

func inFootprint(x, y int) bool {
	return x >= 0 && x < SizeX && y >= 0 && y < SizeY
}

// Height is the number of dense layers above BaseZ.
func (c *Chunk) Height() int {
	return len(c.voxels) / layerLen
}

// TopZ is the first z that reads as Above.
func (c *Chunk) TopZ() int32 {
	return c.BaseZ + int32(c.Height())
}

// Get returns the block at local (x, y) and world height z.
// ok is false when (x, y) lies outside the footprint.
func (c *Chunk) Get(x, y int, z int32) (Block, bool) {
	if !inFootprint(x, y) {
		return Block{}, false
	}
	if z < c.BaseZ {
		return c.Below, true
	}
	layer := int(z - c.BaseZ)
	if layer >= c.Height() {
		return c.Above, true
	}
	return c.voxels[index(x, y, layer)], true
}

// Packed returns the dense voxels in storage order as packed blocks.
func (c *Chunk) Packed() []uint32 {
	out := make([]uint32, len(c.voxels))
	for i, b := range c.voxels {
		out[i] = b.Pack()
	}
	return out
}

// Counts tallies materials over the dense layers.
func (c *Chunk) Counts() map[Material]int {
	out := map[Material]int{}
	for _, b := range c.voxels {
		out[b.Material]++
	}
	return out
}

// IsVoid reports whether every voxel of the chunk reads as air.
func (c *Chunk) IsVoid() bool {
	if !c.Below.IsAir() || !c.Above.IsAir() {
		return false
	}
	for _, b := range c.voxels {
		if !b.IsAir() {
			return false
		}
	}
	return true
}

func (c *Chunk) Digest() [32]byte {
	return c.digest
}

func (c *Chunk) computeDigest() [32]byte {
	h := sha256.New()
	var hdr [24]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(c.Key.X))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(c.Key.Y))
	binary.LittleEndian.PutUint32(hdr[8:], uint32(c.BaseZ))
	binary.LittleEndian.PutUint32(hdr[12:], c.Below.Pack())
	binary.LittleEndian.PutUint32(hdr[16:], c.Above.Pack())
	binary.LittleEndian.PutUint32(hdr[20:], uint32(c.Height()))
	h.Write(hdr[:])
	var tmp [4]byte
	for _, b := range c.voxels {
		binary.LittleEndian.PutUint32(tmp[:], b.Pack())
		h.Write(tmp[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Void returns an all-air chunk with no dense layers.
func Void(k Key) *Chunk {
	c := &Chunk{Key: k, Below: Empty(), Above: Empty()}
	c.digest = c.computeDigest()
	return c
}

// FromPacked rebuilds a chunk from its storage-order packed voxels.
func FromPacked(k Key, baseZ int32, below, above Block, packed []uint32) (*Chunk, error) {
	if len(packed)%layerLen != 0 {
		return nil, fmt.Errorf("chunk %s: voxel count %d is not a multiple of %d", k, len(packed), layerLen)
	}
	if len(packed)/layerLen > MaxLayers {
		return nil, fmt.Errorf("chunk %s: %d layers exceeds max %d", k, len(packed)/layerLen, MaxLayers)
	}
	c := &Chunk{
		Key:    k,
		BaseZ:  baseZ,
		Below:  below,
		Above:  above,
		voxels: make([]Block, len(packed)),
	}
	for i, p := range packed {
		c.voxels[i] = Unpack(p)
	}
	c.digest = c.computeDigest()
	return c, nil
}
