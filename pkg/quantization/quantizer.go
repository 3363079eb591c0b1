// Package quantization implements the SQ8, Product, and Binary vector
// codecs (C2): train once over a sample, encode/decode per vector, and an
// asymmetric distance path so HNSW candidate generation can score compressed
// vectors directly against an uncompressed query.
package quantization

import "fmt"

// Kind identifies a collection's configured quantization codec.
type Kind int

const (
	None Kind = iota
	SQ8
	PQ
	Binary
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case SQ8:
		return "sq8"
	case PQ:
		return "pq"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// MinPQTrainingVectors is the minimum sample size required before product
// quantization training runs.
const MinPQTrainingVectors = 256

// Codebook is the trained, immutable parameter set produced by Train. It is
// swapped in atomically (a new *Codebook pointer replaces the old one) so
// readers never observe a partially-trained codebook, per spec §5.
type Codebook interface {
	Kind() Kind
}

// Quantizer is the common train/encode/decode contract from spec §4.2.
type Quantizer interface {
	Kind() Kind
	// Train learns codec parameters from a sample of raw vectors.
	Train(samples [][]float32) (Codebook, error)
	// Encode compresses a single vector using a trained codebook.
	Encode(cb Codebook, v []float32) []byte
	// Decode reconstructs an approximate vector from a code (within the
	// codec's bounded error; retained raw vectors remain the exact-rerank
	// source of truth per spec §3's invariant).
	Decode(cb Codebook, code []byte) []float32
	// EncodedSize returns the per-vector code size in bytes for dimension d.
	EncodedSize(d int) int
}

// AsymmetricQuantizer additionally supports query-vs-code distance via a
// precomputed table, the core mechanism behind PQ's speed.
type AsymmetricQuantizer interface {
	Quantizer
	// DistanceTable precomputes per-subspace/per-dimension distances from an
	// uncompressed query so AsymmetricDistance is O(codeLen) per candidate.
	DistanceTable(cb Codebook, query []float32) interface{}
	AsymmetricDistance(cb Codebook, table interface{}, code []byte) float32
}

// ErrNotTrained names the untrained-codebook condition. Encode, Decode and
// DistanceTable do not return it: given a nil or mismatched codebook they
// return nil.
var ErrNotTrained = fmt.Errorf("quantization: codebook not trained")

// ForKind returns a fresh (untrained) Quantizer for the given kind. PQ
// requires numSubvectors and bitsPerCode (k = 2^bitsPerCode; spec fixes
// k=256, i.e. bitsPerCode=8).
func ForKind(kind Kind, numSubvectors, bitsPerCode int) (Quantizer, error) {
	switch kind {
	case SQ8:
		return NewScalarQuantizer(), nil
	case PQ:
		return NewProductQuantizer(numSubvectors, bitsPerCode), nil
	case Binary:
		return NewBinaryQuantizer(), nil
	case None:
		return nil, fmt.Errorf("quantization: None has no quantizer implementation")
	default:
		return nil, fmt.Errorf("quantization: unknown kind %v", kind)
	}
}
