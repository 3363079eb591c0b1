package quantization

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/vectorizer-db/vectorizer/pkg/distance"
)

func randTrainingSet(rng *rand.Rand, n, d int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, d)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		out[i] = v
	}
	return out
}

func TestProductQuantizerTrainEncodeDecode(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	samples := randTrainingSet(rng, MinPQTrainingVectors, 32)

	pq := NewProductQuantizer(8, 8)
	cb, err := pq.Train(samples)
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	v := samples[0]
	codes := pq.Encode(cb, v)
	if len(codes) != 8 {
		t.Fatalf("expected 8 codes, got %d", len(codes))
	}

	decoded := pq.Decode(cb, codes)
	if len(decoded) != 32 {
		t.Fatalf("expected decoded dim 32, got %d", len(decoded))
	}

	d := distance.L2_32(v, decoded)
	if d > 2.0 {
		t.Errorf("decoded vector too far from original: l2=%v", d)
	}
}

func TestProductQuantizerRejectsUndersizedTrainingSet(t *testing.T) {
	pq := NewProductQuantizer(8, 8)
	_, err := pq.Train(make([][]float32, 10))
	if err == nil {
		t.Fatal("expected error for too few training vectors")
	}
}

func TestProductQuantizerRejectsIndivisibleDimension(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	samples := randTrainingSet(rng, MinPQTrainingVectors, 33)
	pq := NewProductQuantizer(8, 8)
	_, err := pq.Train(samples)
	if err == nil {
		t.Fatal("expected error for dimension not divisible by numSubvectors")
	}
}

// TestProductQuantizerRecall grounds Scenario F: asymmetric-distance ranking
// from a trained PQ codebook must closely approximate exact-scan ranking.
func TestProductQuantizerRecall(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const n, d = 600, 32
	vectors := randTrainingSet(rng, n, d)

	pq := NewProductQuantizer(8, 8)
	cb, err := pq.Train(vectors)
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	codes := make([][]byte, n)
	for i, v := range vectors {
		codes[i] = pq.Encode(cb, v)
	}

	const numQueries = 50
	const topK = 10
	hits := 0
	for q := 0; q < numQueries; q++ {
		query := randTrainingSet(rng, 1, d)[0]

		type scored struct {
			id   int
			dist float32
		}
		exact := make([]scored, n)
		for i, v := range vectors {
			exact[i] = scored{i, distance.L2_32(query, v)}
		}
		sort.Slice(exact, func(i, j int) bool { return exact[i].dist < exact[j].dist })
		exactTop := map[int]bool{}
		for i := 0; i < topK; i++ {
			exactTop[exact[i].id] = true
		}

		table := pq.DistanceTable(cb, query)
		approx := make([]scored, n)
		for i := range codes {
			approx[i] = scored{i, pq.AsymmetricDistance(cb, table, codes[i])}
		}
		sort.Slice(approx, func(i, j int) bool { return approx[i].dist < approx[j].dist })

		matches := 0
		for i := 0; i < topK; i++ {
			if exactTop[approx[i].id] {
				matches++
			}
		}
		if matches >= topK*7/10 {
			hits++
		}
	}

	if hits < numQueries*7/10 {
		t.Errorf("PQ recall too low: %d/%d queries met the overlap bar", hits, numQueries)
	}
}

func TestProductCodebookSerializeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	samples := randTrainingSet(rng, MinPQTrainingVectors, 16)
	pq := NewProductQuantizer(4, 8)
	cbIface, err := pq.Train(samples)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	cb := cbIface.(*ProductCodebook)

	buf := cb.Serialize()
	restored, err := DeserializeProductCodebook(buf)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	if restored.NumSubvectors != cb.NumSubvectors || restored.SubvectorDim != cb.SubvectorDim {
		t.Fatalf("shape mismatch after round trip")
	}
	v := samples[0]
	origCodes := pq.Encode(cb, v)
	restoredCodes := pq.Encode(restored, v)
	for i := range origCodes {
		if origCodes[i] != restoredCodes[i] {
			t.Errorf("code mismatch at subvector %d after round trip", i)
		}
	}
}
