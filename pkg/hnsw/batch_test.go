package hnsw

import (
	"math/rand"
	"testing"
)

func randomVector(dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = rand.Float32()
	}
	return vec
}

func makeRecords(n, dim int) []VectorRecord {
	records := make([]VectorRecord, n)
	for i := 0; i < n; i++ {
		records[i] = VectorRecord{ID: uint64(i), Vector: randomVector(dim)}
	}
	return records
}

func TestBatchInsert(t *testing.T) {
	idx := New(IndexConfig{M: 16, EfConstruction: 200})
	records := makeRecords(100, 16)

	result := idx.BatchInsert(records, nil)
	if result.SuccessCount != 100 {
		t.Errorf("SuccessCount = %d, want 100", result.SuccessCount)
	}
	if result.FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0", result.FailureCount)
	}
	if idx.Size() != 100 {
		t.Errorf("Size() = %d, want 100", idx.Size())
	}
}

func TestBatchInsertWithProgress(t *testing.T) {
	idx := New(DefaultConfig())
	records := makeRecords(50, 8)

	var lastProcessed int
	calls := 0
	result := idx.BatchInsert(records, func(processed, total int) {
		calls++
		if total != 50 {
			t.Errorf("total = %d, want 50", total)
		}
		lastProcessed = processed
	})

	if result.SuccessCount != 50 {
		t.Errorf("SuccessCount = %d, want 50", result.SuccessCount)
	}
	if calls == 0 {
		t.Error("expected progress callback to be invoked")
	}
	if lastProcessed != 50 {
		t.Errorf("lastProcessed = %d, want 50", lastProcessed)
	}
}

func TestBatchInsertSequential(t *testing.T) {
	idx := New(DefaultConfig())
	records := makeRecords(40, 8)

	result := idx.BatchInsertSequential(records, nil)
	if result.SuccessCount != 40 {
		t.Errorf("SuccessCount = %d, want 40", result.SuccessCount)
	}
	if idx.EntryPoint() == nil {
		t.Fatal("expected entry point to be set")
	}
}

func TestBatchInsertDuplicateIDs(t *testing.T) {
	idx := New(DefaultConfig())
	records := []VectorRecord{
		{ID: 0, Vector: []float32{1, 2}},
		{ID: 0, Vector: []float32{3, 4}},
	}
	result := idx.BatchInsert(records, nil)
	if result.SuccessCount != 1 {
		t.Errorf("SuccessCount = %d, want 1", result.SuccessCount)
	}
	if result.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1", result.FailureCount)
	}
}

func TestBatchDelete(t *testing.T) {
	idx := New(DefaultConfig())
	records := makeRecords(30, 8)
	idx.BatchInsert(records, nil)

	ids := make([]uint64, 30)
	for i := range ids {
		ids[i] = uint64(i)
	}
	result := idx.BatchDelete(ids, nil)
	if result.SuccessCount != 30 {
		t.Errorf("SuccessCount = %d, want 30", result.SuccessCount)
	}
	if idx.TombstoneFraction() != 1.0 {
		t.Errorf("TombstoneFraction = %v, want 1.0", idx.TombstoneFraction())
	}
}

func TestBatchDeleteWithProgress(t *testing.T) {
	idx := New(DefaultConfig())
	records := makeRecords(20, 8)
	idx.BatchInsert(records, nil)

	ids := make([]uint64, 20)
	for i := range ids {
		ids[i] = uint64(i)
	}

	calls := 0
	idx.BatchDelete(ids, func(processed, total int) { calls++ })
	if calls == 0 {
		t.Error("expected progress callback to be invoked")
	}
}

func TestBatchUpdate(t *testing.T) {
	idx := New(DefaultConfig())
	records := makeRecords(10, 8)
	idx.BatchInsert(records, nil)

	updates := []VectorUpdate{
		{ID: 0, Vector: randomVector(8)},
		{ID: 1, Vector: randomVector(8)},
	}
	result := idx.BatchUpdate(updates, nil)
	if result.SuccessCount != 2 {
		t.Errorf("SuccessCount = %d, want 2", result.SuccessCount)
	}
}

func TestBatchUpdateNonexistent(t *testing.T) {
	idx := New(DefaultConfig())
	idx.Insert(0, []float32{1, 2})

	updates := []VectorUpdate{{ID: 99, Vector: []float32{1, 2}}}
	result := idx.BatchUpdate(updates, nil)
	if result.SuccessCount != 0 {
		t.Errorf("SuccessCount = %d, want 0", result.SuccessCount)
	}
	if result.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1", result.FailureCount)
	}
}

func TestBatchInsertWithBuffer(t *testing.T) {
	idx := New(DefaultConfig())
	records := makeRecords(250, 8)

	result := idx.BatchInsertWithBuffer(records, 50, nil)
	if result.SuccessCount != 250 {
		t.Errorf("SuccessCount = %d, want 250", result.SuccessCount)
	}
	if idx.Size() != 250 {
		t.Errorf("Size() = %d, want 250", idx.Size())
	}
}

func TestBatchInsertEmpty(t *testing.T) {
	idx := New(DefaultConfig())
	result := idx.BatchInsert(nil, nil)
	if result.TotalProcessed != 0 {
		t.Errorf("TotalProcessed = %d, want 0", result.TotalProcessed)
	}
}

func TestBatchDeleteEmpty(t *testing.T) {
	idx := New(DefaultConfig())
	result := idx.BatchDelete(nil, nil)
	if result.TotalProcessed != 0 {
		t.Errorf("TotalProcessed = %d, want 0", result.TotalProcessed)
	}
}

func TestGetBatchStats(t *testing.T) {
	idx := New(DefaultConfig())
	records := makeRecords(10, 8)
	idx.BatchInsert(records, nil)

	stats := idx.GetBatchStats()
	if stats["total_vectors"].(int64) != 10 {
		t.Errorf("total_vectors = %v, want 10", stats["total_vectors"])
	}
	if stats["entry_point_id"] == nil {
		t.Error("expected entry_point_id to be set")
	}
}
