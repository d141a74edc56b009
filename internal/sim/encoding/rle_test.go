package encoding

import "testing"

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]uint32, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 7)
	}
	in = append(in, 9, 0xFFFFFFFF, 0xFFFFFFFF, 10)

	enc := AppendRLE(nil, in)
	out, err := DecodeRLE(enc, len(in))
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRLE_LongRunsCompress(t *testing.T) {
	in := make([]uint32, 32*32*100)
	enc := AppendRLE(nil, in)
	if len(enc) > 8 {
		t.Fatalf("single run encoded to %d bytes", len(enc))
	}
}

func TestDecodeRLE_Limits(t *testing.T) {
	enc := AppendRLE(nil, make([]uint32, 100))
	if _, err := DecodeRLE(enc, 99); err == nil {
		t.Fatalf("expected limit error")
	}
	if _, err := DecodeRLE([]byte{0x80}, 10); err == nil {
		t.Fatalf("expected truncated varint error")
	}
	if _, err := DecodeRLE([]byte{1, 0}, 10); err == nil {
		t.Fatalf("expected zero run error")
	}
	out, err := DecodeRLE(nil, 0)
	if err != nil || len(out) != 0 {
		t.Fatalf("empty input: %v %v", out, err)
	}
}
