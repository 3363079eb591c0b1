package hnsw

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/vectorizer-db/vectorizer/pkg/distance"
)

func TestVectorStorage(t *testing.T) {
	idx := New(IndexConfig{M: 16, EfConstruction: 200, Metric: distance.L2})
	rng := rand.New(rand.NewSource(42))
	dim := 10

	originalVectors := make([][]float32, 10)
	for i := 0; i < 10; i++ {
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			vec[j] = rng.Float32()
		}
		originalVectors[i] = vec
		if err := idx.Insert(uint64(i), vec); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	for i := 0; i < 10; i++ {
		retrieved, err := idx.GetVector(uint64(i))
		if err != nil {
			t.Fatalf("GetVector(%d) failed: %v", i, err)
		}
		for j := 0; j < dim; j++ {
			if !almostEqual(retrieved[j], originalVectors[i][j]) {
				t.Errorf("vector %d, dim %d: got %f, expected %f", i, j, retrieved[j], originalVectors[i][j])
			}
		}
		dist := idx.graphDistance(originalVectors[i], retrieved)
		if !almostEqual(dist, 0.0) {
			t.Errorf("self-distance of vector %d is %f, expected ~0", i, dist)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := New(IndexConfig{M: 8, EfConstruction: 100, Metric: distance.L2})
	rng := rand.New(rand.NewSource(99))
	dim := 6
	n := 60
	for i := uint64(0); i < uint64(n); i++ {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = rng.Float32()
		}
		if err := idx.Insert(i, vec); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}
	if err := idx.Delete(3); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var buf bytes.Buffer
	if err := idx.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, warnings, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("expected no warnings on a clean snapshot, got %v", warnings)
	}

	if loaded.Size() != idx.Size() {
		t.Errorf("loaded Size() = %d, want %d", loaded.Size(), idx.Size())
	}
	if loaded.Dimension() != dim {
		t.Errorf("loaded Dimension() = %d, want %d", loaded.Dimension(), dim)
	}
	if loaded.EntryPoint() == nil {
		t.Fatal("expected loaded index to have an entry point")
	}

	node3 := loaded.GetNode(3)
	if node3 == nil {
		t.Fatal("tombstoned node 3 should survive snapshot round trip")
	}
	if node3.IsLive() {
		t.Error("node 3 should still be tombstoned after reload")
	}

	for i := uint64(0); i < uint64(n); i++ {
		if i == 3 {
			continue
		}
		orig, err := idx.GetVector(i)
		if err != nil {
			t.Fatalf("original GetVector(%d) failed: %v", i, err)
		}
		got, err := loaded.GetVector(i)
		if err != nil {
			t.Fatalf("loaded GetVector(%d) failed: %v", i, err)
		}
		for j := range orig {
			if !almostEqual(orig[j], got[j]) {
				t.Errorf("vector %d dim %d: got %f, want %f", i, j, got[j], orig[j])
			}
		}
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("not a snapshot at all")
	if _, _, err := Load(buf); err == nil {
		t.Error("expected error loading a non-snapshot buffer")
	}
}

func TestLoadRepairsDanglingNeighbor(t *testing.T) {
	idx := New(DefaultConfig())
	if err := idx.Insert(0, []float32{1, 2}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	// Manually inject a reference to a node id that will never exist in
	// the snapshot, simulating a record lost to a mid-crash truncation.
	idx.nodes[0].neighbors[0] = append(idx.nodes[0].neighbors[0], 12345)

	var buf bytes.Buffer
	if err := idx.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, warnings, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) == 0 {
		t.Error("expected a warning about the dangling neighbor reference")
	}
	if loaded.GetNode(0).HasNeighbor(0, 12345) {
		t.Error("dangling neighbor reference should have been dropped on load")
	}
}
