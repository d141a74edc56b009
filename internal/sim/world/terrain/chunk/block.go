package chunk

type Material uint8

// Ids 3 and 4 are reserved.
const (
	Air     Material = 0
	Stone   Material = 1
	Surface Material = 2
	Water   Material = 5
)

func (m Material) String() string {
	switch m {
	case Air:
		return "AIR"
	case Stone:
		return "STONE"
	case Surface:
		return "SURFACE"
	case Water:
		return "WATER"
	default:
		return "UNKNOWN"
	}
}

type Rgb struct {
	R, G, B uint8
}

// Block is an immutable voxel value.
type Block struct {
	Material Material
	Color    Rgb
}

func NewBlock(m Material, c Rgb) Block {
	return Block{Material: m, Color: c}
}

func Empty() Block {
	return Block{Material: Air}
}

func (b Block) IsAir() bool {
	return b.Material == Air
}

// Pack encodes the block as material<<24 | r<<16 | g<<8 | b.
func (b Block) Pack() uint32 {
	return uint32(b.Material)<<24 | uint32(b.Color.R)<<16 | uint32(b.Color.G)<<8 | uint32(b.Color.B)
}

func Unpack(v uint32) Block {
	return Block{
		Material: Material(v >> 24),
		Color: Rgb{
			R: uint8(v >> 16),
			G: uint8(v >> 8),
			B: uint8(v),
		},
	}
}
