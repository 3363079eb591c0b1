package hnsw

import (
	"math/rand"
	"testing"
)

func TestInsertFirst(t *testing.T) {
	idx := New(DefaultConfig())
	if err := idx.Insert(0, []float32{1, 2, 3}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size() = %d, want 1", idx.Size())
	}
	if idx.EntryPoint() == nil {
		t.Fatal("expected entry point to be set")
	}
	if idx.EntryPoint().ID() != 0 {
		t.Errorf("entry point ID = %d, want 0", idx.EntryPoint().ID())
	}
}

func TestInsertDuplicateID(t *testing.T) {
	idx := New(DefaultConfig())
	if err := idx.Insert(5, []float32{1, 2}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := idx.Insert(5, []float32{3, 4}); err == nil {
		t.Error("expected error inserting duplicate id")
	}
}

func TestInsertMultiple(t *testing.T) {
	idx := New(DefaultConfig())
	rng := rand.New(rand.NewSource(1))
	dim := 8
	for i := uint64(0); i < 50; i++ {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = rng.Float32()
		}
		if err := idx.Insert(i, vec); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}
	if idx.Size() != 50 {
		t.Errorf("Size() = %d, want 50", idx.Size())
	}
}

func TestInsertDimensionMismatch(t *testing.T) {
	idx := New(DefaultConfig())
	if err := idx.Insert(0, []float32{1, 2, 3}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := idx.Insert(1, []float32{1, 2}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestInsertEmpty(t *testing.T) {
	idx := New(DefaultConfig())
	if err := idx.Insert(0, []float32{}); err == nil {
		t.Error("expected error inserting empty vector")
	}
}

func TestInsert1000(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large insert test in short mode")
	}
	idx := New(DefaultConfig())
	rng := rand.New(rand.NewSource(2))
	dim := 16
	for i := uint64(0); i < 1000; i++ {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = rng.Float32()
		}
		if err := idx.Insert(i, vec); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}
	if idx.Size() != 1000 {
		t.Errorf("Size() = %d, want 1000", idx.Size())
	}
	if idx.MaxLayer() < 0 {
		t.Error("expected a non-trivial max layer after 1000 inserts")
	}
}

func TestGraphConnectivity(t *testing.T) {
	idx := New(DefaultConfig())
	rng := rand.New(rand.NewSource(3))
	dim := 8
	n := 200
	for i := uint64(0); i < uint64(n); i++ {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = rng.Float32()
		}
		if err := idx.Insert(i, vec); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	// Every node should have at least one neighbor at layer 0, except
	// possibly in pathological single-node graphs.
	for i := uint64(0); i < uint64(n); i++ {
		node := idx.GetNode(i)
		if node == nil {
			t.Fatalf("node %d missing", i)
		}
		if node.NeighborCount(0) == 0 {
			t.Errorf("node %d has no layer-0 neighbors", i)
		}
	}
}

func TestMaxConnectionsRespected(t *testing.T) {
	idx := New(IndexConfig{M: 4, EfConstruction: 50})
	rng := rand.New(rand.NewSource(4))
	dim := 8
	for i := uint64(0); i < 300; i++ {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = rng.Float32()
		}
		if err := idx.Insert(i, vec); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	for i := uint64(0); i < 300; i++ {
		node := idx.GetNode(i)
		for layer := 0; layer <= node.Level(); layer++ {
			bound := idx.M
			if layer == 0 {
				bound = idx.M0
			}
			if node.NeighborCount(layer) > bound {
				t.Errorf("node %d layer %d has %d neighbors, bound is %d", i, layer, node.NeighborCount(layer), bound)
			}
		}
	}
}

func TestBidirectionalLinks(t *testing.T) {
	idx := New(DefaultConfig())
	rng := rand.New(rand.NewSource(5))
	dim := 8
	for i := uint64(0); i < 100; i++ {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = rng.Float32()
		}
		if err := idx.Insert(i, vec); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	for i := uint64(0); i < 100; i++ {
		node := idx.GetNode(i)
		for _, neighborID := range node.GetNeighbors(0) {
			neighbor := idx.GetNode(neighborID)
			if neighbor == nil {
				t.Fatalf("neighbor %d of node %d missing", neighborID, i)
			}
			if !neighbor.HasNeighbor(0, i) {
				t.Errorf("link %d->%d is not bidirectional", i, neighborID)
			}
		}
	}
}

func TestDiversityHeuristicAvoidsSingleCluster(t *testing.T) {
	// Build a query with many near-duplicate candidates clustered in one
	// direction and one distant outlier; the heuristic should still admit
	// the outlier rather than spending the whole neighbor budget on
	// duplicates of the same direction.
	idx := New(IndexConfig{M: 3, EfConstruction: 50})
	query := []float32{1, 0}
	candidates := []heapItem{
		{id: 1, distance: 0.01},
		{id: 2, distance: 0.02},
		{id: 3, distance: 0.03},
		{id: 4, distance: 0.5},
	}
	idx.nodes[1] = NewNode(1, []float32{0.99, 0.01}, 0)
	idx.nodes[2] = NewNode(2, []float32{0.98, 0.02}, 0)
	idx.nodes[3] = NewNode(3, []float32{0.97, 0.03}, 0)
	idx.nodes[4] = NewNode(4, []float32{0, 1}, 0)
	idx.dimension = 2

	selected := idx.selectNeighborsHeuristic(query, candidates, 2, 0)
	if len(selected) != 2 {
		t.Fatalf("expected 2 selected neighbors, got %d", len(selected))
	}
}
