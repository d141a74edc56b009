package chunk

import "fmt"

// ContractViolation reports a voxel write outside the builder's volume.
// It indicates a bug in bound computation and is not recoverable.
type ContractViolation struct {
	Key   Key
	X, Y  int
	Z     int32
	BaseZ int32
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("chunk %s: write out of bounds at (%d,%d,%d), base_z=%d", e.Key, e.X, e.Y, e.Z, e.BaseZ)
}

// Builder accumulates voxel writes for one chunk. It is owned by a single
// goroutine and hands out the finished Chunk only through Build.
type Builder struct {
	key   Key
	baseZ int32
	below Block
	above Block

	voxels []Block
	built  bool
}

func NewBuilder(k Key, baseZ int32, below, above Block) *Builder {
	return &Builder{
		key:   k,
		baseZ: baseZ,
		below: below,
		above: above,
	}
}

// Set writes one voxel, growing the volume upward as needed. New layers are
// filled with the Above block.
func (b *Builder) Set(x, y int, z int32, blk Block) error {
	if b.built {
		return fmt.Errorf("chunk %s: builder already built", b.key)
	}
	if !inFootprint(x, y) || z < b.baseZ || int64(z)-int64(b.baseZ) >= MaxLayers {
		return &ContractViolation{Key: b.key, X: x, Y: y, Z: z, BaseZ: b.baseZ}
	}
	layer := int(z - b.baseZ)
	if need := (layer + 1) * layerLen; need > len(b.voxels) {
		grown := make([]Block, need)
		copy(grown, b.voxels)
		for i := len(b.voxels); i < need; i++ {
			grown[i] = b.above
		}
		b.voxels = grown
	}
	b.voxels[index(x, y, layer)] = blk
	return nil
}

// MustSet is Set for callers whose bounds are already validated; a violation panics.
func (b *Builder) MustSet(x, y int, z int32, blk Block) {
	if err := b.Set(x, y, z, blk); err != nil {
		panic(err)
	}
}

// Build finalizes the chunk. The builder rejects writes afterwards.
func (b *Builder) Build() *Chunk {
	b.built = true
	c := &Chunk{
		Key:    b.key,
		BaseZ:  b.baseZ,
		Below:  b.below,
		Above:  b.above,
		voxels: b.voxels,
	}
	b.voxels = nil
	c.digest = c.computeDigest()
	return c
}
