package noise

import (
	"sync"
	"testing"
)

func samplePoints() [][3]float64 {
	pts := make([][3]float64, 0, 256)
	for i := 0; i < 256; i++ {
		x := float64(i)*0.37 - 40
		y := float64(i*i%97)*0.53 - 20
		z := float64(i%13) * 1.7
		pts = append(pts, [3]float64{x, y, z})
	}
	return pts
}

func TestField_RangeBounded(t *testing.T) {
	for _, p := range []Params{DefaultParams(1), DefaultParams(7), {Basis: BasisPerlin, Octaves: 6, Persistence: 0.5, Lacunarity: 2}} {
		f := New(42, FeatureAltitude, p)
		for _, pt := range samplePoints() {
			if v := f.Get2(pt[0], pt[1]); v < -1 || v > 1 {
				t.Fatalf("Get2 out of range: basis=%d v=%v", p.Basis, v)
			}
			if v := f.Get3(pt[0], pt[1], pt[2]); v < -1 || v > 1 {
				t.Fatalf("Get3 out of range: basis=%d v=%v", p.Basis, v)
			}
		}
	}
}

func TestField_DeterministicAcrossInstances(t *testing.T) {
	for _, basis := range []Basis{BasisSimplex, BasisPerlin} {
		p := Params{Basis: basis, Octaves: 3, Persistence: 0.5, Lacunarity: 2}
		a := New(7, FeatureWarp, p)
		b := New(7, FeatureWarp, p)
		for _, pt := range samplePoints() {
			if a.Get2(pt[0], pt[1]) != b.Get2(pt[0], pt[1]) {
				t.Fatalf("Get2 differs between instances (basis=%d)", basis)
			}
			if a.Get3(pt[0], pt[1], pt[2]) != b.Get3(pt[0], pt[1], pt[2]) {
				t.Fatalf("Get3 differs between instances (basis=%d)", basis)
			}
		}
	}
}

func TestField_FeaturesAndSeedsDecorrelate(t *testing.T) {
	p := DefaultParams(3)
	base := New(7, FeatureAltitude, p)
	otherFeature := New(7, FeatureChaos, p)
	otherSeed := New(8, FeatureAltitude, p)

	sameFeature, sameSeed := 0, 0
	pts := samplePoints()
	for _, pt := range pts {
		v := base.Get2(pt[0], pt[1])
		if v == otherFeature.Get2(pt[0], pt[1]) {
			sameFeature++
		}
		if v == otherSeed.Get2(pt[0], pt[1]) {
			sameSeed++
		}
	}
	if sameFeature > len(pts)/10 {
		t.Fatalf("features not decorrelated: %d/%d equal samples", sameFeature, len(pts))
	}
	if sameSeed > len(pts)/10 {
		t.Fatalf("seeds not decorrelated: %d/%d equal samples", sameSeed, len(pts))
	}
}

func TestField_ConcurrentReadsMatchSequential(t *testing.T) {
	f := New(99, FeatureWarp, DefaultParams(3))
	pts := samplePoints()
	want := make([]float64, len(pts))
	for i, pt := range pts {
		want[i] = f.Get3(pt[0], pt[1], pt[2])
	}

	var wg sync.WaitGroup
	errs := make(chan int, 8)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, pt := range pts {
				if f.Get3(pt[0], pt[1], pt[2]) != want[i] {
					errs <- i
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for i := range errs {
		t.Fatalf("concurrent sample %d differs from sequential", i)
	}
}

func TestNew_NormalizesParams(t *testing.T) {
	f := New(1, FeatureTemperature, Params{})
	p := f.Params()
	if p.Octaves != 1 || p.Persistence != 0.5 || p.Lacunarity != 2.0 {
		t.Fatalf("unexpected normalized params: %+v", p)
	}
	if f.Feature().String() != "temperature" {
		t.Fatalf("unexpected feature name: %s", f.Feature())
	}
}
