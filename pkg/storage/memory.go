package storage

import (
	"hash/fnv"
	"sync"
)

const numShards = 16

type shard struct {
	mu   sync.RWMutex
	data map[string]Vector
}

// MemoryBackend is the in-heap Backend: a sharded concurrent map for
// lock-free-ish reads plus an append-only insertion registry guarded by its
// own RWMutex, per spec §4.3.
type MemoryBackend struct {
	shards [numShards]*shard

	regMu    sync.RWMutex
	registry []string // insertion order, tombstoned entries become ""
	deleted  map[string]bool

	dimMu sync.Mutex
	dim   int
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	m := &MemoryBackend{dim: -1, deleted: make(map[string]bool)}
	for i := range m.shards {
		m.shards[i] = &shard{data: make(map[string]Vector)}
	}
	return m
}

func shardFor(s [numShards]*shard, id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return s[h.Sum32()%numShards]
}

func (m *MemoryBackend) pinDim(d int) error {
	m.dimMu.Lock()
	defer m.dimMu.Unlock()
	if m.dim < 0 {
		m.dim = d
		return nil
	}
	return checkDim(m.dim, d)
}

func (m *MemoryBackend) Insert(id string, vector []float32, payload map[string]interface{}) error {
	if err := m.pinDim(len(vector)); err != nil {
		return err
	}
	sh := shardFor(m.shards, id)
	sh.mu.Lock()
	if _, exists := sh.data[id]; exists {
		sh.mu.Unlock()
		return ErrDuplicateID
	}
	sh.data[id] = Vector{ID: id, Data: append([]float32(nil), vector...), Payload: payload}
	sh.mu.Unlock()

	m.regMu.Lock()
	m.registry = append(m.registry, id)
	m.regMu.Unlock()
	return nil
}

func (m *MemoryBackend) Get(id string) (Vector, bool) {
	sh := shardFor(m.shards, id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.data[id]
	return v, ok
}

func (m *MemoryBackend) Update(id string, vector []float32, payload map[string]interface{}) error {
	if err := checkDim(m.dim, len(vector)); err != nil {
		return err
	}
	sh := shardFor(m.shards, id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, exists := sh.data[id]; !exists {
		return ErrNotFound
	}
	sh.data[id] = Vector{ID: id, Data: append([]float32(nil), vector...), Payload: payload}
	return nil
}

func (m *MemoryBackend) Delete(id string) error {
	m.regMu.Lock()
	if m.deleted[id] {
		m.regMu.Unlock()
		return ErrNotFound
	}
	sh := shardFor(m.shards, id)
	sh.mu.Lock()
	if _, exists := sh.data[id]; !exists {
		sh.mu.Unlock()
		m.regMu.Unlock()
		return ErrNotFound
	}
	delete(sh.data, id)
	sh.mu.Unlock()
	m.deleted[id] = true
	m.regMu.Unlock()
	return nil
}

// Iterate walks vectors in insertion order. The in-memory backend never
// remaps, so it never returns ErrIteratorInvalidated.
func (m *MemoryBackend) Iterate(fn func(Vector) bool) error {
	m.regMu.RLock()
	ids := append([]string(nil), m.registry...)
	m.regMu.RUnlock()

	for _, id := range ids {
		sh := shardFor(m.shards, id)
		sh.mu.RLock()
		v, ok := sh.data[id]
		sh.mu.RUnlock()
		if !ok {
			continue
		}
		if !fn(v) {
			break
		}
	}
	return nil
}

func (m *MemoryBackend) Len() int {
	m.regMu.RLock()
	defer m.regMu.RUnlock()
	return len(m.registry) - len(m.deleted)
}

func (m *MemoryBackend) Contains(id string) bool {
	_, ok := m.Get(id)
	return ok
}

func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) Dim() int { return m.dim }
