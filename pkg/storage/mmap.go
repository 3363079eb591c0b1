package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// MmapBackend is a memory-mapped Backend: a single file per collection
// with a fixed header and fixed-stride records, plus a secondary
// append-only heap file for variable-length payloads. Grounded on the
// structural shape of an mmap-based storage manager, rebuilt on
// golang.org/x/sys/unix instead of raw syscall and on a fixed record
// layout instead of a generic byte-range mapping.
type MmapBackend struct {
	mu sync.RWMutex

	dataPath string
	heapPath string

	dataFile *os.File
	heapFile *os.File
	region   []byte

	dim        int
	recordSize int
	capacity   int // number of record slots the current mapping holds

	freeHead int64 // index of first free slot, -1 if none
	index    map[string]int32
	order    []string // insertion order of live+tombstoned ids, for Iterate

	epoch int64 // bumped on every remap; iterators snapshot and compare
}

const (
	mmapMagic      = "VECMM001"
	maxIDLen       = 120
	headerSize     = 64
	statusFree     = 0
	statusLive     = 1
	statusTombdead = 2
)

// recordLayout: status(1) | idLen(2) | id[maxIDLen] | vector(dim*4) | payloadOff(8) | payloadLen(4)
func recordSize(dim int) int {
	return 1 + 2 + maxIDLen + dim*4 + 8 + 4
}

// NewMmapBackend opens or creates a memory-mapped backend rooted at dir,
// pinned to the given vector dimension.
func NewMmapBackend(dir string, dim int) (*MmapBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("storage: mkdir: %w", err)
	}
	b := &MmapBackend{
		dataPath: filepath.Join(dir, "vectors.mmap"),
		heapPath: filepath.Join(dir, "payloads.heap"),
		dim:      dim,
		index:    make(map[string]int32),
		freeHead: -1,
	}
	b.recordSize = recordSize(dim)

	heapFile, err := os.OpenFile(b.heapPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("storage: open heap file: %w", err)
	}
	b.heapFile = heapFile

	if _, err := os.Stat(b.dataPath); err == nil {
		if err := b.openExisting(); err != nil {
			return nil, err
		}
	} else {
		if err := b.createNew(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *MmapBackend) createNew() error {
	initialCapacity := 1024
	size := int64(headerSize + initialCapacity*b.recordSize)

	f, err := os.OpenFile(b.dataPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("storage: create data file: %w", err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return fmt.Errorf("storage: truncate: %w", err)
	}
	b.dataFile = f
	b.capacity = initialCapacity

	region, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("storage: mmap: %w", err)
	}
	b.region = region
	b.writeHeader()

	// Chain every slot onto the free list, tail to head, so freeHead ends
	// at slot 0.
	for i := b.capacity - 1; i >= 0; i-- {
		b.setSlotStatus(i, statusFree)
		b.setFreeNext(i, b.freeHead)
		b.freeHead = int64(i)
	}
	b.writeHeader()
	return nil
}

func (b *MmapBackend) openExisting() error {
	f, err := os.OpenFile(b.dataPath, os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("storage: open data file: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("storage: stat: %w", err)
	}
	b.dataFile = f
	size := stat.Size()
	region, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("storage: mmap: %w", err)
	}
	b.region = region
	b.capacity = (int(size) - headerSize) / b.recordSize

	magic := string(b.region[0:8])
	if magic != mmapMagic {
		return fmt.Errorf("storage: bad magic in %s", b.dataPath)
	}
	b.freeHead = -1
	for i := 0; i < b.capacity; i++ {
		status := b.region[b.slotOffset(i)]
		switch status {
		case statusLive:
			id := b.readSlotID(i)
			b.index[id] = int32(i)
			b.order = append(b.order, id)
		case statusFree:
			// relinked into the free list by the scan below.
		}
	}
	// Rebuild free list in ascending slot order for deterministic reuse.
	var freeSlots []int
	for i := 0; i < b.capacity; i++ {
		if b.region[b.slotOffset(i)] == statusFree {
			freeSlots = append(freeSlots, i)
		}
	}
	for i := len(freeSlots) - 1; i >= 0; i-- {
		b.setFreeNext(freeSlots[i], b.freeHead)
		b.freeHead = int64(freeSlots[i])
	}
	return nil
}

func (b *MmapBackend) writeHeader() {
	copy(b.region[0:8], []byte(mmapMagic))
	binary.LittleEndian.PutUint32(b.region[8:], 1) // version
	binary.LittleEndian.PutUint32(b.region[12:], uint32(b.dim))
	binary.LittleEndian.PutUint64(b.region[16:], uint64(len(b.index)))
	binary.LittleEndian.PutUint64(b.region[24:], uint64(b.freeHead))
}

func (b *MmapBackend) slotOffset(i int) int { return headerSize + i*b.recordSize }

func (b *MmapBackend) setSlotStatus(i, status int) {
	b.region[b.slotOffset(i)] = byte(status)
}

// setFreeNext stores the next-free-slot pointer in a free slot's vector
// region (unused while the slot is free).
func (b *MmapBackend) setFreeNext(i int, next int64) {
	off := b.slotOffset(i) + 3
	binary.LittleEndian.PutUint64(b.region[off:], uint64(next))
}

func (b *MmapBackend) getFreeNext(i int) int64 {
	off := b.slotOffset(i) + 3
	return int64(binary.LittleEndian.Uint64(b.region[off:]))
}

func (b *MmapBackend) readSlotID(i int) string {
	base := b.slotOffset(i)
	idLen := binary.LittleEndian.Uint16(b.region[base+1:])
	idBytes := b.region[base+3 : base+3+int(idLen)]
	return string(idBytes)
}

func (b *MmapBackend) writeSlot(i int, id string, vector []float32, payload map[string]interface{}) error {
	off := b.slotOffset(i)
	b.region[off] = statusLive
	binary.LittleEndian.PutUint16(b.region[off+1:], uint16(len(id)))
	idField := b.region[off+3 : off+3+maxIDLen]
	for j := range idField {
		idField[j] = 0
	}
	copy(idField, id)

	vecOff := off + 3 + maxIDLen
	for j, x := range vector {
		binary.LittleEndian.PutUint32(b.region[vecOff+j*4:], math.Float32bits(x))
	}

	payloadOff, payloadLen, err := b.appendPayload(payload)
	if err != nil {
		return err
	}
	tailOff := vecOff + b.dim*4
	binary.LittleEndian.PutUint64(b.region[tailOff:], uint64(payloadOff))
	binary.LittleEndian.PutUint32(b.region[tailOff+8:], uint32(payloadLen))
	return nil
}

func (b *MmapBackend) readSlotVector(i int) []float32 {
	vecOff := b.slotOffset(i) + 3 + maxIDLen
	out := make([]float32, b.dim)
	for j := range out {
		out[j] = math.Float32frombits(binary.LittleEndian.Uint32(b.region[vecOff+j*4:]))
	}
	return out
}

func (b *MmapBackend) readSlotPayload(i int) map[string]interface{} {
	tailOff := b.slotOffset(i) + 3 + maxIDLen + b.dim*4
	payloadOff := binary.LittleEndian.Uint64(b.region[tailOff:])
	payloadLen := binary.LittleEndian.Uint32(b.region[tailOff+8:])
	if payloadLen == 0 {
		return nil
	}
	buf := make([]byte, payloadLen)
	if _, err := b.heapFile.ReadAt(buf, int64(payloadOff)); err != nil {
		return nil
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(buf, &payload); err != nil {
		return nil
	}
	return payload
}

func (b *MmapBackend) appendPayload(payload map[string]interface{}) (int64, int, error) {
	if payload == nil {
		return 0, 0, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, 0, fmt.Errorf("storage: marshal payload: %w", err)
	}
	stat, err := b.heapFile.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("storage: stat heap: %w", err)
	}
	off := stat.Size()
	if _, err := b.heapFile.WriteAt(data, off); err != nil {
		return 0, 0, fmt.Errorf("storage: write heap: %w", err)
	}
	return off, len(data), nil
}

// grow doubles capacity, remapping the file. Callers must hold b.mu.
func (b *MmapBackend) grow() error {
	newCapacity := b.capacity * 2
	if newCapacity == 0 {
		newCapacity = 1024
	}
	newSize := int64(headerSize + newCapacity*b.recordSize)

	if err := unix.Munmap(b.region); err != nil {
		return fmt.Errorf("storage: unmap for grow: %w", err)
	}
	if err := b.dataFile.Truncate(newSize); err != nil {
		return fmt.Errorf("storage: truncate for grow: %w", err)
	}
	region, err := unix.Mmap(int(b.dataFile.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("storage: remap for grow: %w", err)
	}
	b.region = region

	for i := newCapacity - 1; i >= b.capacity; i-- {
		b.setSlotStatus(i, statusFree)
		b.setFreeNext(i, b.freeHead)
		b.freeHead = int64(i)
	}
	b.capacity = newCapacity
	atomic.AddInt64(&b.epoch, 1)
	b.writeHeader()
	return nil
}

func (b *MmapBackend) Insert(id string, vector []float32, payload map[string]interface{}) error {
	if len(id) > maxIDLen {
		return fmt.Errorf("storage: id exceeds max length %d", maxIDLen)
	}
	if err := checkDim(b.dim, len(vector)); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.index[id]; exists {
		return ErrDuplicateID
	}
	if b.freeHead < 0 {
		if err := b.grow(); err != nil {
			return fmt.Errorf("%w: %v", ErrOutOfSpace, err)
		}
	}
	slot := int(b.freeHead)
	b.freeHead = b.getFreeNext(slot)
	if err := b.writeSlot(slot, id, vector, payload); err != nil {
		return err
	}
	b.index[id] = int32(slot)
	b.order = append(b.order, id)
	b.writeHeader()
	return nil
}

func (b *MmapBackend) Get(id string) (Vector, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	slot, ok := b.index[id]
	if !ok {
		return Vector{}, false
	}
	return Vector{ID: id, Data: b.readSlotVector(int(slot)), Payload: b.readSlotPayload(int(slot))}, true
}

func (b *MmapBackend) Update(id string, vector []float32, payload map[string]interface{}) error {
	if err := checkDim(b.dim, len(vector)); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	slot, ok := b.index[id]
	if !ok {
		return ErrNotFound
	}
	return b.writeSlot(int(slot), id, vector, payload)
}

func (b *MmapBackend) Delete(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	slot, ok := b.index[id]
	if !ok {
		return ErrNotFound
	}
	b.setSlotStatus(int(slot), statusTombdead)
	delete(b.index, id)
	b.setFreeNext(int(slot), b.freeHead)
	b.freeHead = int64(slot)
	b.writeHeader()
	return nil
}

// Iterate walks live vectors in insertion order, snapshotting the current
// epoch. Insertion order is not persisted: after a reopen, vectors loaded
// from the file are walked in slot order, ahead of any inserted since. If a remap occurs mid-walk it returns ErrIteratorInvalidated.
func (b *MmapBackend) Iterate(fn func(Vector) bool) error {
	b.mu.RLock()
	startEpoch := atomic.LoadInt64(&b.epoch)
	ids := append([]string(nil), b.order...)
	b.mu.RUnlock()

	for _, id := range ids {
		if atomic.LoadInt64(&b.epoch) != startEpoch {
			return ErrIteratorInvalidated
		}
		b.mu.RLock()
		slot, ok := b.index[id]
		var v Vector
		if ok {
			v = Vector{ID: id, Data: b.readSlotVector(int(slot)), Payload: b.readSlotPayload(int(slot))}
		}
		b.mu.RUnlock()
		if !ok {
			continue
		}
		if !fn(v) {
			break
		}
	}
	if atomic.LoadInt64(&b.epoch) != startEpoch {
		return ErrIteratorInvalidated
	}
	return nil
}

func (b *MmapBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.index)
}

func (b *MmapBackend) Contains(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.index[id]
	return ok
}

func (b *MmapBackend) Dim() int { return b.dim }

func (b *MmapBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	if b.region != nil {
		if err := unix.Msync(b.region, unix.MS_SYNC); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("storage: msync: %w", err)
		}
		if err := unix.Munmap(b.region); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("storage: munmap: %w", err)
		}
		b.region = nil
	}
	if b.dataFile != nil {
		if err := b.dataFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if b.heapFile != nil {
		if err := b.heapFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
