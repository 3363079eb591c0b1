package hnsw

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// BatchInsertResult represents the result of a batch insert operation.
type BatchInsertResult struct {
	TotalProcessed int
	SuccessCount   int
	FailureCount   int
	Errors         []error
}

// BatchDeleteResult represents the result of a batch delete operation.
type BatchDeleteResult struct {
	TotalProcessed int
	SuccessCount   int
	FailureCount   int
	Errors         []error
}

// BatchUpdateResult represents the result of a batch update operation.
type BatchUpdateResult struct {
	TotalProcessed int
	SuccessCount   int
	FailureCount   int
	Errors         []error
}

// ProgressCallback is called during batch operations to report progress.
type ProgressCallback func(processed, total int)

// VectorRecord pairs the caller-assigned node id with the vector to insert
// under it.
type VectorRecord struct {
	ID     uint64
	Vector []float32
}

// BatchInsert inserts multiple vectors under their pre-assigned ids using a
// fixed worker pool.
func (idx *Index) BatchInsert(records []VectorRecord, progressCb ProgressCallback) *BatchInsertResult {
	result := &BatchInsertResult{
		TotalProcessed: len(records),
		Errors:         make([]error, 0),
	}

	if len(records) == 0 {
		return result
	}

	const numWorkers = 8
	jobs := make(chan int, len(records))
	var wg sync.WaitGroup
	var mu sync.Mutex

	var successCount, failureCount int64

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rec := records[i]
				if err := idx.Insert(rec.ID, rec.Vector); err != nil {
					mu.Lock()
					result.Errors = append(result.Errors, fmt.Errorf("vector %d: %w", rec.ID, err))
					mu.Unlock()
					atomic.AddInt64(&failureCount, 1)
				} else {
					atomic.AddInt64(&successCount, 1)
				}

				if progressCb != nil {
					processed := int(atomic.LoadInt64(&successCount) + atomic.LoadInt64(&failureCount))
					progressCb(processed, len(records))
				}
			}
		}()
	}

	for i := range records {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	result.SuccessCount = int(successCount)
	result.FailureCount = int(failureCount)
	return result
}

// BatchInsertSequential inserts records one at a time in slice order. Node
// levels still come from the index's random source, so the entry point and
// levels are not reproducible across runs.
func (idx *Index) BatchInsertSequential(records []VectorRecord, progressCb ProgressCallback) *BatchInsertResult {
	result := &BatchInsertResult{
		TotalProcessed: len(records),
		Errors:         make([]error, 0),
	}

	for i, rec := range records {
		if err := idx.Insert(rec.ID, rec.Vector); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("vector %d: %w", rec.ID, err))
			result.FailureCount++
		} else {
			result.SuccessCount++
		}
		if progressCb != nil {
			progressCb(i+1, len(records))
		}
	}

	return result
}

// BatchDelete tombstones multiple ids in parallel.
func (idx *Index) BatchDelete(ids []uint64, progressCb ProgressCallback) *BatchDeleteResult {
	result := &BatchDeleteResult{
		TotalProcessed: len(ids),
		Errors:         make([]error, 0),
	}

	if len(ids) == 0 {
		return result
	}

	const numWorkers = 8
	jobs := make(chan uint64, len(ids))
	var wg sync.WaitGroup
	var mu sync.Mutex

	var successCount, failureCount int64

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if err := idx.Delete(id); err != nil {
					mu.Lock()
					result.Errors = append(result.Errors, fmt.Errorf("vector %d: %w", id, err))
					mu.Unlock()
					atomic.AddInt64(&failureCount, 1)
				} else {
					atomic.AddInt64(&successCount, 1)
				}

				if progressCb != nil {
					processed := int(atomic.LoadInt64(&successCount) + atomic.LoadInt64(&failureCount))
					progressCb(processed, len(ids))
				}
			}
		}()
	}

	for _, id := range ids {
		jobs <- id
	}
	close(jobs)
	wg.Wait()

	result.SuccessCount = int(successCount)
	result.FailureCount = int(failureCount)
	return result
}

// VectorUpdate represents an update operation.
type VectorUpdate struct {
	ID     uint64
	Vector []float32
}

// BatchUpdate applies multiple vector updates in parallel.
func (idx *Index) BatchUpdate(updates []VectorUpdate, progressCb ProgressCallback) *BatchUpdateResult {
	result := &BatchUpdateResult{
		TotalProcessed: len(updates),
		Errors:         make([]error, 0),
	}

	if len(updates) == 0 {
		return result
	}

	const numWorkers = 8
	jobs := make(chan VectorUpdate, len(updates))
	var wg sync.WaitGroup
	var mu sync.Mutex

	var successCount, failureCount int64

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for update := range jobs {
				if err := idx.Update(update.ID, update.Vector); err != nil {
					mu.Lock()
					result.Errors = append(result.Errors, fmt.Errorf("vector %d: %w", update.ID, err))
					mu.Unlock()
					atomic.AddInt64(&failureCount, 1)
				} else {
					atomic.AddInt64(&successCount, 1)
				}

				if progressCb != nil {
					processed := int(atomic.LoadInt64(&successCount) + atomic.LoadInt64(&failureCount))
					progressCb(processed, len(updates))
				}
			}
		}()
	}

	for _, update := range updates {
		jobs <- update
	}
	close(jobs)
	wg.Wait()

	result.SuccessCount = int(successCount)
	result.FailureCount = int(failureCount)
	return result
}

// BatchInsertWithBuffer chunks a large record set to bound peak memory use
// during a bulk load.
func (idx *Index) BatchInsertWithBuffer(records []VectorRecord, bufferSize int, progressCb ProgressCallback) *BatchInsertResult {
	result := &BatchInsertResult{
		TotalProcessed: len(records),
		Errors:         make([]error, 0),
	}

	if len(records) == 0 {
		return result
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	for start := 0; start < len(records); start += bufferSize {
		end := start + bufferSize
		if end > len(records) {
			end = len(records)
		}

		chunk := records[start:end]
		chunkCb := func(processed, total int) {
			if progressCb != nil {
				progressCb(start+processed, len(records))
			}
		}

		chunkResult := idx.BatchInsert(chunk, chunkCb)
		result.SuccessCount += chunkResult.SuccessCount
		result.FailureCount += chunkResult.FailureCount
		result.Errors = append(result.Errors, chunkResult.Errors...)
	}

	return result
}

// GetBatchStats reports point-in-time graph statistics useful for progress
// reporting during a bulk load.
func (idx *Index) GetBatchStats() map[string]interface{} {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var entryPointID interface{}
	if idx.entryPoint != nil {
		entryPointID = idx.entryPoint.id
	}

	return map[string]interface{}{
		"total_vectors":  idx.size,
		"max_layer":      idx.maxLayer,
		"entry_point_id": entryPointID,
		"tombstones":     idx.tombstones,
	}
}
