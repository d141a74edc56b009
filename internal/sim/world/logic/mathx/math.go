package mathx

import "math"

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// SubSeed derives the seed of one noise feature from the world seed.
// Features of the same world stay decorrelated without reseeding the world.
func SubSeed(seed uint32, feature uint32) int64 {
	v := uint64(seed)<<32 | uint64(feature)
	return int64(mix64(v ^ 0xd1b54a32d192ed03))
}

// Lerp blends a toward b by t. The explicit float32 conversion keeps the
// compiler from fusing the multiply-add, so results match on every arch.
func Lerp(a, b, t float32) float32 {
	return a + float32((b-a)*t)
}

func Clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Clamp64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FloorToInt32 converts a finite height to the largest int32 not above it.
func FloorToInt32(v float32) int32 {
	return int32(math.Floor(float64(v)))
}

// CeilToInt32 converts a finite height to the smallest int32 not below it.
func CeilToInt32(v float32) int32 {
	return int32(math.Ceil(float64(v)))
}
