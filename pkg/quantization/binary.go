package quantization

import (
	"fmt"
	"math/bits"
)

// BinaryQuantizer is a codec where each
// dimension is reduced to a single sign bit against a learned per-dimension
// threshold (the training-sample median, not a fixed zero), packed 8-per-byte,
// and compared via Hamming distance (popcount of XOR). Cheaper and coarser
// than SQ8/PQ, intended for the first-pass candidate filter on very large
// collections per spec §4.2.
type BinaryQuantizer struct{}

// NewBinaryQuantizer creates a Binary codec.
func NewBinaryQuantizer() *BinaryQuantizer { return &BinaryQuantizer{} }

func (q *BinaryQuantizer) Kind() Kind { return Binary }

// BinaryCodebook holds the per-dimension threshold learned at train time.
type BinaryCodebook struct {
	Threshold []float32
}

func (c *BinaryCodebook) Kind() Kind { return Binary }

func (q *BinaryQuantizer) Train(samples [][]float32) (Codebook, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("binary: no training samples")
	}
	d := len(samples[0])
	thresh := make([]float32, d)
	col := make([]float32, len(samples))
	for i := 0; i < d; i++ {
		for j, v := range samples {
			if len(v) != d {
				return nil, fmt.Errorf("binary: dimension mismatch in training sample")
			}
			col[j] = v[i]
		}
		thresh[i] = median(col)
	}
	return &BinaryCodebook{Threshold: thresh}, nil
}

func median(xs []float32) float32 {
	sorted := append([]float32(nil), xs...)
	insertionSortFloat32(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func insertionSortFloat32(xs []float32) {
	for i := 1; i < len(xs); i++ {
		v := xs[i]
		j := i - 1
		for j >= 0 && xs[j] > v {
			xs[j+1] = xs[j]
			j--
		}
		xs[j+1] = v
	}
}

func (q *BinaryQuantizer) EncodedSize(d int) int { return (d + 7) / 8 }

func (q *BinaryQuantizer) Encode(cb Codebook, v []float32) []byte {
	bc, ok := cb.(*BinaryCodebook)
	if !ok || bc == nil {
		return nil
	}
	out := make([]byte, q.EncodedSize(len(v)))
	for i, x := range v {
		if x >= bc.Threshold[i] {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// Decode reconstructs a coarse +1/-1-around-threshold approximation; exact
// values are never recoverable from a single sign bit, so Decode returns the
// threshold ± a unit step, matching the codec's precision bound.
func (q *BinaryQuantizer) Decode(cb Codebook, code []byte) []float32 {
	bc, ok := cb.(*BinaryCodebook)
	if !ok || bc == nil {
		return nil
	}
	d := len(bc.Threshold)
	out := make([]float32, d)
	for i := 0; i < d; i++ {
		bit := (code[i/8] >> uint(i%8)) & 1
		if bit == 1 {
			out[i] = bc.Threshold[i] + 1
		} else {
			out[i] = bc.Threshold[i] - 1
		}
	}
	return out
}

// DistanceTable precomputes the query's own sign-bit encoding against the
// codebook threshold; AsymmetricDistance then XORs and popcounts against it.
func (q *BinaryQuantizer) DistanceTable(cb Codebook, query []float32) interface{} {
	return q.Encode(cb, query)
}

// AsymmetricDistance returns the Hamming distance (bit count of differing
// sign bits) between the query's encoding and a stored code.
func (q *BinaryQuantizer) AsymmetricDistance(cb Codebook, table interface{}, code []byte) float32 {
	queryCode, ok := table.([]byte)
	if !ok || len(queryCode) != len(code) {
		return float32(len(code) * 8)
	}
	var dist int
	for i := range code {
		dist += bits.OnesCount8(queryCode[i] ^ code[i])
	}
	return float32(dist)
}

// HammingDistance computes bit-differing count between two equal-length
// binary codes directly, for callers outside the AsymmetricQuantizer path.
func HammingDistance(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dist int
	for i := 0; i < n; i++ {
		dist += bits.OnesCount8(a[i] ^ b[i])
	}
	return dist
}
