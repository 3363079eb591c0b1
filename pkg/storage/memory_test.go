package storage

import "testing"

func TestMemoryBackendInsertGet(t *testing.T) {
	b := NewMemoryBackend()
	if err := b.Insert("a", []float32{1, 2, 3}, map[string]interface{}{"x": 1.0}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	v, ok := b.Get("a")
	if !ok {
		t.Fatal("expected to find inserted vector")
	}
	if len(v.Data) != 3 {
		t.Errorf("expected 3-dim vector, got %d", len(v.Data))
	}
}

func TestMemoryBackendDuplicateInsert(t *testing.T) {
	b := NewMemoryBackend()
	if err := b.Insert("a", []float32{1, 2}, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := b.Insert("a", []float32{3, 4}, nil); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestMemoryBackendDimensionMismatch(t *testing.T) {
	b := NewMemoryBackend()
	if err := b.Insert("a", []float32{1, 2}, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := b.Insert("b", []float32{1, 2, 3}, nil); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestMemoryBackendDeleteNotIdempotent(t *testing.T) {
	b := NewMemoryBackend()
	_ = b.Insert("a", []float32{1}, nil)
	if err := b.Delete("a"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := b.Delete("a"); err == nil {
		t.Fatal("second delete should fail")
	}
	if _, ok := b.Get("a"); ok {
		t.Error("deleted vector should not be retrievable")
	}
}

func TestMemoryBackendUpdateMissing(t *testing.T) {
	b := NewMemoryBackend()
	if err := b.Update("missing", []float32{1}, nil); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestMemoryBackendIterateInsertionOrder(t *testing.T) {
	b := NewMemoryBackend()
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		_ = b.Insert(id, []float32{1}, nil)
	}
	var seen []string
	_ = b.Iterate(func(v Vector) bool {
		seen = append(seen, v.ID)
		return true
	})
	if len(seen) != len(ids) {
		t.Fatalf("expected %d ids, got %d", len(ids), len(seen))
	}
	for i, id := range ids {
		if seen[i] != id {
			t.Errorf("position %d: got %s, want %s", i, seen[i], id)
		}
	}
}

func TestMemoryBackendLenExcludesDeleted(t *testing.T) {
	b := NewMemoryBackend()
	_ = b.Insert("a", []float32{1}, nil)
	_ = b.Insert("b", []float32{1}, nil)
	_ = b.Delete("a")
	if got := b.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}
