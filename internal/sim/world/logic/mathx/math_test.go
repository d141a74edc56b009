package mathx

import "testing"

func TestFloorDivAndMod(t *testing.T) {
	cases := []struct{ a, b, q, m int }{
		{0, 32, 0, 0},
		{31, 32, 0, 31},
		{32, 32, 1, 0},
		{-1, 32, -1, 31},
		{-32, 32, -1, 0},
		{-33, 32, -2, 31},
	}
	for _, c := range cases {
		if got := FloorDiv(c.a, c.b); got != c.q {
			t.Fatalf("FloorDiv(%d,%d)=%d want %d", c.a, c.b, got, c.q)
		}
		if got := Mod(c.a, c.b); got != c.m {
			t.Fatalf("Mod(%d,%d)=%d want %d", c.a, c.b, got, c.m)
		}
	}
}

func TestSubSeed_StableAndDecorrelated(t *testing.T) {
	if SubSeed(42, 1) != SubSeed(42, 1) {
		t.Fatalf("SubSeed not stable")
	}
	seen := map[int64]bool{}
	for seed := uint32(0); seed < 4; seed++ {
		for feature := uint32(0); feature < 8; feature++ {
			s := SubSeed(seed, feature)
			if seen[s] {
				t.Fatalf("SubSeed collision seed=%d feature=%d", seed, feature)
			}
			seen[s] = true
		}
	}
}

func TestLerpEndpoints(t *testing.T) {
	if got := Lerp(2, 10, 0); got != 2 {
		t.Fatalf("Lerp t=0: got %v", got)
	}
	if got := Lerp(2, 10, 1); got != 10 {
		t.Fatalf("Lerp t=1: got %v", got)
	}
	if got := Lerp(2, 10, 0.5); got != 6 {
		t.Fatalf("Lerp t=0.5: got %v", got)
	}
}

func TestFloorCeilToInt32(t *testing.T) {
	if FloorToInt32(-0.5) != -1 || FloorToInt32(3.9) != 3 {
		t.Fatalf("FloorToInt32 mismatch")
	}
	if CeilToInt32(-0.5) != 0 || CeilToInt32(3.1) != 4 {
		t.Fatalf("CeilToInt32 mismatch")
	}
}
