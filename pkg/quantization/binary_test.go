package quantization

import (
	"math/rand"
	"testing"
)

func TestBinaryQuantizerEncodeSize(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	samples := randTrainingSet(rng, 50, 20)
	bq := NewBinaryQuantizer()
	cb, err := bq.Train(samples)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	code := bq.Encode(cb, samples[0])
	if len(code) != 3 { // ceil(20/8)
		t.Errorf("expected 3 bytes for d=20, got %d", len(code))
	}
}

func TestBinaryQuantizerSelfDistanceZero(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	samples := randTrainingSet(rng, 50, 16)
	bq := NewBinaryQuantizer()
	cb, err := bq.Train(samples)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	v := samples[0]
	code := bq.Encode(cb, v)
	table := bq.DistanceTable(cb, v)
	if d := bq.AsymmetricDistance(cb, table, code); d != 0 {
		t.Errorf("self-distance should be 0, got %v", d)
	}
}

func TestBinaryQuantizerDistanceSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	samples := randTrainingSet(rng, 50, 16)
	bq := NewBinaryQuantizer()
	cb, err := bq.Train(samples)
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	a := bq.Encode(cb, samples[0])
	b := bq.Encode(cb, samples[1])

	d1 := HammingDistance(a, b)
	d2 := HammingDistance(b, a)
	if d1 != d2 {
		t.Errorf("hamming distance not symmetric: %d vs %d", d1, d2)
	}
}

func TestMedianOddEven(t *testing.T) {
	odd := []float32{3, 1, 2}
	if m := median(odd); m != 2 {
		t.Errorf("median(odd) = %v, want 2", m)
	}
	even := []float32{1, 2, 3, 4}
	if m := median(even); m != 2.5 {
		t.Errorf("median(even) = %v, want 2.5", m)
	}
}
