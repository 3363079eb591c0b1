package collection

import (
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/vectorizer-db/vectorizer/pkg/distance"
	"github.com/vectorizer-db/vectorizer/pkg/filter"
	"github.com/vectorizer-db/vectorizer/pkg/hnsw"
	"github.com/vectorizer-db/vectorizer/pkg/observability"
	"github.com/vectorizer-db/vectorizer/pkg/payload"
	"github.com/vectorizer-db/vectorizer/pkg/quantization"
	"github.com/vectorizer-db/vectorizer/pkg/storage"
	"github.com/vectorizer-db/vectorizer/pkg/wal"
)

// StorageKind selects the storage.Backend a collection is built on.
type StorageKind int

const (
	MemoryStorage StorageKind = iota
	MmapStorage
)

// Config is the immutable configuration a Collection is constructed from,
// per spec §3's "Immutable attributes" list.
type Config struct {
	Name        string
	Dimension   int
	Metric      distance.Metric
	StorageKind StorageKind
	MmapDir     string // required when StorageKind == MmapStorage

	M              int
	EfConstruction int
	EfSearch       int

	Quantization  quantization.Kind
	PQSubvectors  int
	PQBits        int
	RerankFactor  int // exact-rerank width multiplier over k, spec §4.2 default 4

	WALDir             string // empty disables durability (tests, ephemeral collections)
	WALMaxSegmentBytes int64

	PayloadIndexPaths []string // dot-paths hinted for standing payload indexes
	GraphEnabled      bool     // accepted and kept on the config, not written to disk; no relation store implemented

	WriteLimitPerSecond float64 // sustained write admission rate; <= 0 disables the limiter
	WriteBurst          int     // burst size above the sustained rate, per spec §5 "Backpressure"
}

func (cfg Config) withDefaults() Config {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = 200
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 50
	}
	if cfg.RerankFactor <= 0 {
		cfg.RerankFactor = 4
	}
	if cfg.WALMaxSegmentBytes <= 0 {
		cfg.WALMaxSegmentBytes = 64 * 1024 * 1024
	}
	return cfg
}

// Collection composes storage, the HNSW graph, payload indexes, the filter
// evaluator, an optional quantizer, and a WAL into one fixed-dimension,
// fixed-metric keyspace (spec §4.8). All mutable cross-cutting state (state
// machine, id mapping, query-cache version counter) lives behind mu; the
// write pipeline itself is additionally serialized by writeMu so that WAL
// append, storage insert, HNSW insert, and payload indexing happen in a
// fixed order without interleaving from concurrent writers.
type Collection struct {
	cfg Config

	mu    sync.RWMutex
	state State

	writeMu sync.Mutex

	storage storage.Backend
	index   *hnsw.Index
	wal     *wal.WAL
	indexes *payload.IndexSet
	eval    *filter.Evaluator

	quantMu     sync.RWMutex
	quantizer   quantization.Quantizer
	codebook    quantization.Codebook
	codes       map[uint64][]byte
	trainBuffer []trainSample

	idToInternal map[string]uint64
	internalToID map[uint64]string
	nextInternal uint64

	writeLimiter *rate.Limiter // nil disables admission limiting

	version uint64 // bumped on every successful write; query-cache fingerprint input
}

// trainSample is a buffered (internalID, raw vector) pair awaiting
// quantizer training; see quantize.go.
type trainSample struct {
	id     uint64
	vector []float32
}

// New creates a fresh, empty collection. Use Open to recover one from an
// existing WAL directory.
func New(cfg Config) (*Collection, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvariant)
	}
	cfg = cfg.withDefaults()

	c, err := newCollection(cfg)
	if err != nil {
		return nil, err
	}
	c.state = Ready
	return c, nil
}

func newCollection(cfg Config) (*Collection, error) {
	var backend storage.Backend
	switch cfg.StorageKind {
	case MemoryStorage:
		backend = storage.NewMemoryBackend()
	case MmapStorage:
		mb, err := storage.NewMmapBackend(cfg.MmapDir, cfg.Dimension)
		if err != nil {
			return nil, fmt.Errorf("collection: open mmap backend: %w", err)
		}
		backend = mb
	default:
		return nil, fmt.Errorf("%w: unknown storage kind %d", ErrInvariant, cfg.StorageKind)
	}

	var quantizer quantization.Quantizer
	if cfg.Quantization != quantization.None {
		q, err := quantization.ForKind(cfg.Quantization, cfg.PQSubvectors, cfg.PQBits)
		if err != nil {
			return nil, fmt.Errorf("collection: build quantizer: %w", err)
		}
		quantizer = q
	}

	var w *wal.WAL
	if cfg.WALDir != "" {
		opened, err := wal.Open(cfg.WALDir, cfg.WALMaxSegmentBytes)
		if err != nil {
			return nil, fmt.Errorf("collection: open wal: %w", err)
		}
		w = opened
	}

	var limiter *rate.Limiter
	if cfg.WriteLimitPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.WriteLimitPerSecond), cfg.WriteBurst)
	}

	c := &Collection{
		cfg:          cfg,
		state:        Initializing,
		storage:      backend,
		index:        hnsw.New(hnsw.IndexConfig{M: cfg.M, EfConstruction: cfg.EfConstruction, Metric: cfg.Metric}),
		wal:          w,
		indexes:      payload.NewIndexSet(),
		quantizer:    quantizer,
		codes:        make(map[uint64][]byte),
		idToInternal: make(map[string]uint64),
		internalToID: make(map[uint64]string),
		writeLimiter: limiter,
	}
	c.eval = &filter.Evaluator{
		Indexes:    c.indexes,
		AllIDs:     c.allIDs,
		GetPayload: c.getPayload,
	}
	return c, nil
}

// Open recovers a collection from its WAL directory (and, once compact()
// has run, a snapshot file alongside it — see snapshot.go). With no prior
// snapshot this is a full WAL replay from LSN 0, per spec §4.8's
// "loaded from snapshot+WAL at startup" lifecycle note.
func Open(cfg Config, snapshotPath string) (*Collection, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvariant)
	}
	cfg = cfg.withDefaults()

	c, err := newCollection(cfg)
	if err != nil {
		return nil, err
	}
	c.state = Loading

	log := observability.GetGlobalLogger().WithCollection(cfg.Name)

	replayFloor := wal.NoCursor
	if snapshotPath != "" {
		cursor, err := c.loadSnapshotFile(snapshotPath)
		if err != nil {
			// CorruptedSection: abort the snapshot, rebuild from WAL alone.
			// Not a fatal Open error.
			log.Warn("snapshot corrupted, rebuilding from wal alone", map[string]interface{}{"error": err.Error()})
			replayFloor = wal.NoCursor
		} else {
			replayFloor = cursor
		}
	}

	if c.wal != nil {
		if err := c.replayFrom(replayFloor); err != nil {
			c.state = Recovering
			log.Error("wal replay failed, collection left recovering", map[string]interface{}{"error": err.Error()})
			return c, fmt.Errorf("collection: wal replay: %w", err)
		}
	}

	if err := c.setState(Ready); err != nil {
		return c, err
	}
	log.Info("collection opened", map[string]interface{}{"vectors": c.Len()})
	return c, nil
}

// replayFrom applies every WAL record with LSN > afterLSN to storage/index/
// payload state, in order — used both at Open and after a partial-failure
// Recovering transition.
func (c *Collection) replayFrom(afterLSN uint64) error {
	return wal.Replay(c.cfg.WALDir, afterLSN, func(r wal.Record) error {
		switch r.Type {
		case wal.RecordInsert:
			var p walInsertPayload
			if err := json.Unmarshal(r.Payload, &p); err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptedRecord, err)
			}
			return c.replayInsert(p.ID, p.Vector, p.Payload)
		case wal.RecordUpdate:
			var p walInsertPayload
			if err := json.Unmarshal(r.Payload, &p); err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptedRecord, err)
			}
			return c.applyUpdate(p.ID, p.Vector, p.Payload)
		case wal.RecordDelete:
			var p walDeletePayload
			if err := json.Unmarshal(r.Payload, &p); err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptedRecord, err)
			}
			return c.replayDelete(p.ID)
		case wal.RecordCheckpoint, wal.RecordCreateCollection, wal.RecordDeleteCollection:
			return nil
		default:
			return nil
		}
	})
}

type walInsertPayload struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

type walDeletePayload struct {
	ID string `json:"id"`
}

// Insert adds a new vector under id, durable via WAL append before any
// in-memory structure is touched (spec §2's ingest pipeline).
func (c *Collection) Insert(id string, vector []float32, pl map[string]interface{}) error {
	if len(vector) != c.cfg.Dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, c.cfg.Dimension, len(vector))
	}
	if c.writeLimiter != nil && !c.writeLimiter.Allow() {
		return ErrWriteQueueFull
	}

	c.mu.RLock()
	st := c.state
	c.mu.RUnlock()
	if !writeEligible(st) {
		return fmt.Errorf("%w: state %s", ErrUnavailable, st)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.storage.Contains(id) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	if c.wal != nil {
		payloadBytes, err := json.Marshal(walInsertPayload{ID: id, Vector: vector, Payload: pl})
		if err != nil {
			return fmt.Errorf("collection: encode wal record: %w", err)
		}
		if _, err := c.wal.Append(wal.RecordInsert, payloadBytes); err != nil {
			return fmt.Errorf("%w: %v", ErrIoError, err)
		}
	}

	if err := c.applyInsert(id, vector, pl); err != nil {
		return err
	}
	c.bumpVersion()
	return nil
}

// applyInsert performs the in-memory half of an insert (storage, HNSW,
// payload index) without touching the WAL — used both by Insert (after the
// WAL append) and by replayFrom (where the record is already durable).
func (c *Collection) applyInsert(id string, vector []float32, pl map[string]interface{}) error {
	if err := c.storage.Insert(id, vector, pl); err != nil {
		return fmt.Errorf("%w: %v", ErrDuplicateID, err)
	}

	internalID := c.assignInternalID(id)
	if err := c.index.Insert(internalID, vector); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	c.observeForQuantization(internalID, vector)

	if pl != nil {
		c.indexes.IndexPayload(id, pl, c.cfg.PayloadIndexPaths)
	}
	return nil
}

// replayInsert applies an Insert record during WAL replay. Unlike Insert's
// live path, a record whose id is already present is not an error: the same
// segment range can be replayed more than once (an untruncated segment
// overlapping a snapshot cursor, or a second Open over the same WAL
// directory), and replaying an already-applied Insert must converge to the
// same state as the original apply rather than fail the whole replay.
func (c *Collection) replayInsert(id string, vector []float32, pl map[string]interface{}) error {
	if c.storage.Contains(id) {
		return c.applyUpdate(id, vector, pl)
	}
	return c.applyInsert(id, vector, pl)
}

// replayDelete applies a Delete record during WAL replay. A record whose id
// is already gone is a no-op rather than an error, for the same
// already-applied-segment reason replayInsert tolerates a duplicate id.
func (c *Collection) replayDelete(id string) error {
	if !c.storage.Contains(id) {
		return nil
	}
	return c.applyDelete(id)
}

func (c *Collection) assignInternalID(id string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	internalID := c.nextInternal
	c.nextInternal++
	c.idToInternal[id] = internalID
	c.internalToID[internalID] = id
	return internalID
}

// Update replaces an existing vector's data and/or payload in place
// (logical replace = tombstone + reinsert under the same internal id, per
// spec §4.3's lifecycle note, delegated to hnsw.Index.Update).
func (c *Collection) Update(id string, vector []float32, pl map[string]interface{}) error {
	if len(vector) != c.cfg.Dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, c.cfg.Dimension, len(vector))
	}
	c.mu.RLock()
	st := c.state
	c.mu.RUnlock()
	if !writeEligible(st) {
		return fmt.Errorf("%w: state %s", ErrUnavailable, st)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.storage.Contains(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if c.wal != nil {
		payloadBytes, err := json.Marshal(walInsertPayload{ID: id, Vector: vector, Payload: pl})
		if err != nil {
			return fmt.Errorf("collection: encode wal record: %w", err)
		}
		if _, err := c.wal.Append(wal.RecordUpdate, payloadBytes); err != nil {
			return fmt.Errorf("%w: %v", ErrIoError, err)
		}
	}

	if err := c.applyUpdate(id, vector, pl); err != nil {
		return err
	}
	c.bumpVersion()
	return nil
}

func (c *Collection) applyUpdate(id string, vector []float32, pl map[string]interface{}) error {
	oldVec, ok := c.storage.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := c.storage.Update(id, vector, pl); err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	c.mu.RLock()
	internalID, ok := c.idToInternal[id]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: missing internal id for %s", ErrInvariant, id)
	}
	if err := c.index.Update(internalID, vector); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	c.observeForQuantization(internalID, vector)

	if oldVec.Payload != nil {
		c.indexes.DeindexPayload(id, oldVec.Payload, c.cfg.PayloadIndexPaths)
	}
	if pl != nil {
		c.indexes.IndexPayload(id, pl, c.cfg.PayloadIndexPaths)
	}
	return nil
}

// Delete tombstones id. A second delete of the same id is an error — spec
// §8's Open Question decision, recorded in DESIGN.md.
func (c *Collection) Delete(id string) error {
	c.mu.RLock()
	st := c.state
	c.mu.RUnlock()
	if !writeEligible(st) {
		return fmt.Errorf("%w: state %s", ErrUnavailable, st)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.storage.Contains(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if c.wal != nil {
		payloadBytes, err := json.Marshal(walDeletePayload{ID: id})
		if err != nil {
			return fmt.Errorf("collection: encode wal record: %w", err)
		}
		if _, err := c.wal.Append(wal.RecordDelete, payloadBytes); err != nil {
			return fmt.Errorf("%w: %v", ErrIoError, err)
		}
	}

	if err := c.applyDelete(id); err != nil {
		return err
	}
	c.bumpVersion()
	return nil
}

func (c *Collection) applyDelete(id string) error {
	vec, ok := c.storage.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := c.storage.Delete(id); err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	c.mu.Lock()
	internalID, ok := c.idToInternal[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: missing internal id for %s", ErrInvariant, id)
	}
	if err := c.index.Delete(internalID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	if c.quantizer != nil {
		c.quantMu.Lock()
		delete(c.codes, internalID)
		c.quantMu.Unlock()
	}

	if vec.Payload != nil {
		c.indexes.DeindexPayload(id, vec.Payload, c.cfg.PayloadIndexPaths)
	}
	return nil
}

// Get returns the live vector and payload stored under id.
func (c *Collection) Get(id string) (vector []float32, pl map[string]interface{}, err error) {
	c.mu.RLock()
	st := c.state
	c.mu.RUnlock()
	if !queryEligible(st) {
		return nil, nil, fmt.Errorf("%w: state %s", ErrUnavailable, st)
	}

	v, ok := c.storage.Get(id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return v.Data, v.Payload, nil
}

// BatchInsert inserts every record, collecting per-record errors without
// aborting the batch (mirrors hnsw.BatchInsert's accumulate-and-report
// style rather than all-or-nothing).
func (c *Collection) BatchInsert(ids []string, vectors [][]float32, payloads []map[string]interface{}) (successCount int, errs []error) {
	for i, id := range ids {
		var pl map[string]interface{}
		if payloads != nil {
			pl = payloads[i]
		}
		if err := c.Insert(id, vectors[i], pl); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		successCount++
	}
	return successCount, errs
}

// Len reports the number of live (non-tombstoned) vectors.
func (c *Collection) Len() int {
	return c.storage.Len()
}

// State reports the collection's current lifecycle stage.
func (c *Collection) State() State {
	return c.getState()
}

// Close flushes the WAL and releases storage resources. The collection
// must not be used afterward.
func (c *Collection) Close() error {
	var errs []error
	if c.wal != nil {
		if err := c.wal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.storage.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("collection: close: %v", errs)
	}
	return nil
}

func (c *Collection) bumpVersion() {
	c.mu.Lock()
	c.version++
	c.mu.Unlock()
}

// Version returns the write-version counter used as a query-cache
// fingerprint input (spec §4.11): every successful write bumps it, so a
// cache keyed on it is invalidated without ever scanning prior entries.
func (c *Collection) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Collection) allIDs() []string {
	ids := make([]string, 0, c.storage.Len())
	_ = c.storage.Iterate(func(v storage.Vector) bool {
		ids = append(ids, v.ID)
		return true
	})
	return ids
}

func (c *Collection) getPayload(id string) (map[string]interface{}, bool) {
	v, ok := c.storage.Get(id)
	if !ok {
		return nil, false
	}
	return v.Payload, true
}
