// Package collection composes storage, the HNSW index, payload indexes, the
// filter engine, optional quantization, and the write-ahead log into one
// named keyspace of fixed dimension and metric (C8). No prior package had
// a concrete Collection type like this — only loose packages a caller was
// expected to wire together itself — so its composition style borrows
// from pkg/hnsw.Index (explicit config struct, New constructor) and
// pkg/tenant.Manager (namespace-keyed map, RWMutex-guarded lifecycle).
package collection

import "errors"

// Sentinel errors, one per kind in spec §7's error table. Callers use
// errors.Is against these; wrapped context is added with fmt.Errorf's %w.
var (
	ErrDimensionMismatch     = errors.New("collection: dimension mismatch")
	ErrDuplicateID           = errors.New("collection: duplicate id")
	ErrNotFound              = errors.New("collection: id not found")
	ErrCollectionReadOnly    = errors.New("collection: read-only, writes not accepted in this state")
	ErrQuotaExceeded         = errors.New("collection: quota exceeded")
	ErrCorruptedRecord       = errors.New("collection: corrupted wal record")
	ErrCorruptedSection      = errors.New("collection: corrupted snapshot section")
	ErrIoError               = errors.New("collection: io error")
	ErrCancellationRequested = errors.New("collection: cancellation requested")
	ErrUnavailable           = errors.New("collection: unavailable in current state")
	ErrInvariant             = errors.New("collection: internal invariant violated")
	ErrWriteQueueFull        = errors.New("collection: write queue full")
)
