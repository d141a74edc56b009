package encoding

import (
	"encoding/binary"
	"fmt"
)

// AppendRLE appends vals to dst as (value, run_len) uvarint pairs.
func AppendRLE(dst []byte, vals []uint32) []byte {
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(vals) {
		v := vals[i]
		run := 1
		for j := i + 1; j < len(vals) && vals[j] == v && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(v))
		dst = append(dst, tmp[:n]...)
		n = binary.PutUvarint(tmp[:], uint64(run))
		dst = append(dst, tmp[:n]...)

		i += run
	}
	return dst
}

// DecodeRLE expands uvarint pairs. Decoding fails if the output would
// exceed limit values.
func DecodeRLE(raw []byte, limit int) ([]uint32, error) {
	var out []uint32
	for i := 0; i < len(raw); {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if v > 0xFFFFFFFF {
			return nil, fmt.Errorf("value too large: %d", v)
		}
		if run == 0 {
			return nil, fmt.Errorf("zero run at %d", i)
		}
		if uint64(len(out))+run > uint64(limit) {
			return nil, fmt.Errorf("decoded length exceeds %d", limit)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint32(v))
		}
	}
	return out, nil
}
