package distance

import (
	"math"
	"math/rand"
	"testing"
)

func TestCosineIdentical(t *testing.T) {
	v := []float32{1, 0, 0, 0}
	if got := Cosine32(v, v); math.Abs(float64(got)-1.0) > 1e-6 {
		t.Errorf("cosine(v,v) = %v, want ~1.0", got)
	}
}

func TestCosineOrthogonal(t *testing.T) {
	a := []float32{1, 0, 0, 0}
	b := []float32{0, 1, 0, 0}
	if got := Cosine32(a, b); math.Abs(float64(got)) > 1e-6 {
		t.Errorf("cosine(a,b) = %v, want ~0", got)
	}
}

func TestCosineZeroNorm(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}
	if got := Cosine32(a, b); got != 0 {
		t.Errorf("cosine with zero norm = %v, want 0", got)
	}
}

func TestL2Zero(t *testing.T) {
	v := []float32{1, 2, 3}
	if got := L2_32(v, v); got != 0 {
		t.Errorf("l2(v,v) = %v, want 0", got)
	}
}

func TestDotBasic(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	if got := Dot32(a, b); got != 32 {
		t.Errorf("dot = %v, want 32", got)
	}
}

// TestUnrolledMatchesNaive checks the 4-wide unrolled accumulation is
// numerically equivalent to a naive scalar loop within Tolerance.
func TestUnrolledMatchesNaive(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, d := range []int{1, 3, 4, 5, 8, 17, 129} {
		a := randVec(rng, d)
		b := randVec(rng, d)

		var naiveDot, naiveNormA, naiveNormB float32
		for i := range a {
			naiveDot += a[i] * b[i]
			naiveNormA += a[i] * a[i]
			naiveNormB += b[i] * b[i]
		}
		naiveCos := float32(0)
		if naiveNormA != 0 && naiveNormB != 0 {
			naiveCos = naiveDot / (float32(math.Sqrt(float64(naiveNormA))) * float32(math.Sqrt(float64(naiveNormB))))
		}

		got := Cosine32(a, b)
		maxAbs := maxAbsOf(a, b)
		tol := Tolerance(d, maxAbs)
		if math.Abs(float64(got-naiveCos)) > tol+1e-9 {
			t.Errorf("d=%d: cosine unrolled=%v naive=%v exceeds tolerance %v", d, got, naiveCos, tol)
		}
	}
}

func randVec(rng *rand.Rand, d int) []float32 {
	v := make([]float32, d)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

func maxAbsOf(vs ...[]float32) float32 {
	var m float32
	for _, v := range vs {
		for _, x := range v {
			if x < 0 {
				x = -x
			}
			if x > m {
				m = x
			}
		}
	}
	return m
}
