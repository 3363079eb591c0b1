package quantization

import (
	"encoding/binary"
	"fmt"
	"math"

	iq "github.com/vectorizer-db/vectorizer/internal/quantization"
	"github.com/vectorizer-db/vectorizer/pkg/distance"
)

// ProductQuantizer splits each vector into m equal subspaces and learns a
// k-centroid codebook per subspace via k-means. Grounded on
// internal/quantization/product.go, generalized to a fixed k=256
// (bitsPerCode=8) default and a ≥256-vector training precondition.
type ProductQuantizer struct {
	numSubvectors int
	bitsPerCode   int
}

// NewProductQuantizer creates a PQ(m, k=2^bitsPerCode) codec.
func NewProductQuantizer(numSubvectors, bitsPerCode int) *ProductQuantizer {
	if numSubvectors <= 0 {
		numSubvectors = 8
	}
	if bitsPerCode <= 0 {
		bitsPerCode = 8
	}
	return &ProductQuantizer{numSubvectors: numSubvectors, bitsPerCode: bitsPerCode}
}

func (pq *ProductQuantizer) Kind() Kind { return PQ }

// ProductCodebook holds the m per-subspace centroid tables.
type ProductCodebook struct {
	NumSubvectors int
	SubvectorDim  int
	Codebooks     [][][]float32 // [subvector][code] = centroid
}

func (c *ProductCodebook) Kind() Kind { return PQ }

func (pq *ProductQuantizer) numCodes() int { return 1 << uint(pq.bitsPerCode) }

func (pq *ProductQuantizer) Train(samples [][]float32) (Codebook, error) {
	if len(samples) < MinPQTrainingVectors {
		return nil, fmt.Errorf("pq: need at least %d training vectors, got %d", MinPQTrainingVectors, len(samples))
	}
	d := len(samples[0])
	if d%pq.numSubvectors != 0 {
		return nil, fmt.Errorf("pq: dimension %d not divisible by numSubvectors %d", d, pq.numSubvectors)
	}
	subDim := d / pq.numSubvectors
	numCodes := pq.numCodes()
	if len(samples) < numCodes {
		return nil, fmt.Errorf("pq: need at least %d training vectors for k=%d centroids, got %d", numCodes, numCodes, len(samples))
	}

	cb := &ProductCodebook{
		NumSubvectors: pq.numSubvectors,
		SubvectorDim:  subDim,
		Codebooks:     make([][][]float32, pq.numSubvectors),
	}

	cfg := iq.DefaultConfig()
	for sv := 0; sv < pq.numSubvectors; sv++ {
		start, end := sv*subDim, (sv+1)*subDim
		sub := make([][]float32, len(samples))
		for i, v := range samples {
			sub[i] = append([]float32(nil), v[start:end]...)
		}
		centroids, err := iq.KMeansPlusPlus(sub, numCodes, cfg)
		if err != nil {
			return nil, fmt.Errorf("pq: training subvector %d: %w", sv, err)
		}
		cb.Codebooks[sv] = centroids
	}
	return cb, nil
}

func (pq *ProductQuantizer) Encode(cb Codebook, v []float32) []byte {
	pc, ok := cb.(*ProductCodebook)
	if !ok || pc == nil {
		return nil
	}
	codes := make([]byte, pc.NumSubvectors)
	for sv := 0; sv < pc.NumSubvectors; sv++ {
		start, end := sv*pc.SubvectorDim, (sv+1)*pc.SubvectorDim
		sub := v[start:end]
		best, bestDist := 0, float32(math.MaxFloat32)
		for code, centroid := range pc.Codebooks[sv] {
			d := distance.L2_32(sub, centroid)
			if d < bestDist {
				bestDist = d
				best = code
			}
		}
		codes[sv] = byte(best)
	}
	return codes
}

func (pq *ProductQuantizer) Decode(cb Codebook, codes []byte) []float32 {
	pc, ok := cb.(*ProductCodebook)
	if !ok || pc == nil || len(codes) != pc.NumSubvectors {
		return nil
	}
	out := make([]float32, pc.NumSubvectors*pc.SubvectorDim)
	for sv, code := range codes {
		if int(code) >= len(pc.Codebooks[sv]) {
			continue
		}
		copy(out[sv*pc.SubvectorDim:(sv+1)*pc.SubvectorDim], pc.Codebooks[sv][code])
	}
	return out
}

func (pq *ProductQuantizer) EncodedSize(d int) int { return pq.numSubvectors }

// DistanceTable precomputes squared L2 distance from each query subvector
// to every centroid in that subspace's codebook (spec §4.2 "asymmetric
// distance" table).
func (pq *ProductQuantizer) DistanceTable(cb Codebook, query []float32) interface{} {
	pc, ok := cb.(*ProductCodebook)
	if !ok || pc == nil {
		return nil
	}
	table := make([][]float32, pc.NumSubvectors)
	for sv := 0; sv < pc.NumSubvectors; sv++ {
		start, end := sv*pc.SubvectorDim, (sv+1)*pc.SubvectorDim
		qsub := query[start:end]
		codes := pc.Codebooks[sv]
		table[sv] = make([]float32, len(codes))
		for code, centroid := range codes {
			var sum float32
			for d := 0; d < pc.SubvectorDim; d++ {
				diff := qsub[d] - centroid[d]
				sum += diff * diff
			}
			table[sv][code] = sum
		}
	}
	return table
}

// AsymmetricDistance sums m table lookups (O(m) per candidate) and takes
// the square root to return true L2 distance.
func (pq *ProductQuantizer) AsymmetricDistance(cb Codebook, table interface{}, codes []byte) float32 {
	t, ok := table.([][]float32)
	if !ok {
		return float32(math.MaxFloat32)
	}
	var sum float32
	for sv, code := range codes {
		if int(code) >= len(t[sv]) {
			return float32(math.MaxFloat32)
		}
		sum += t[sv][code]
	}
	return float32(math.Sqrt(float64(sum)))
}

// Serialize encodes the codebook for snapshot persistence, grounded on
// product.go's Serialize/Deserialize pair.
func (c *ProductCodebook) Serialize() []byte {
	numCodes := len(c.Codebooks[0])
	header := 12
	body := c.NumSubvectors * numCodes * c.SubvectorDim * 4
	buf := make([]byte, header+body)
	binary.LittleEndian.PutUint32(buf[0:], uint32(c.NumSubvectors))
	binary.LittleEndian.PutUint32(buf[4:], uint32(numCodes))
	binary.LittleEndian.PutUint32(buf[8:], uint32(c.SubvectorDim))
	off := header
	for sv := 0; sv < c.NumSubvectors; sv++ {
		for code := 0; code < numCodes; code++ {
			for d := 0; d < c.SubvectorDim; d++ {
				bits := math.Float32bits(c.Codebooks[sv][code][d])
				binary.LittleEndian.PutUint32(buf[off:], bits)
				off += 4
			}
		}
	}
	return buf
}

// DeserializeProductCodebook decodes a buffer produced by Serialize.
func DeserializeProductCodebook(data []byte) (*ProductCodebook, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("pq: codebook buffer too short")
	}
	numSubvectors := int(binary.LittleEndian.Uint32(data[0:]))
	numCodes := int(binary.LittleEndian.Uint32(data[4:]))
	subDim := int(binary.LittleEndian.Uint32(data[8:]))

	c := &ProductCodebook{NumSubvectors: numSubvectors, SubvectorDim: subDim}
	c.Codebooks = make([][][]float32, numSubvectors)
	off := 12
	for sv := 0; sv < numSubvectors; sv++ {
		c.Codebooks[sv] = make([][]float32, numCodes)
		for code := 0; code < numCodes; code++ {
			c.Codebooks[sv][code] = make([]float32, subDim)
			for d := 0; d < subDim; d++ {
				if off+4 > len(data) {
					return nil, fmt.Errorf("pq: codebook buffer truncated")
				}
				c.Codebooks[sv][code][d] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
				off += 4
			}
		}
	}
	return c, nil
}
