package collection

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"

	"github.com/vectorizer-db/vectorizer/pkg/distance"
	"github.com/vectorizer-db/vectorizer/pkg/hnsw"
	"github.com/vectorizer-db/vectorizer/pkg/quantization"
	"github.com/vectorizer-db/vectorizer/pkg/storage"
	"github.com/vectorizer-db/vectorizer/pkg/wal"
)

const snapshotMagic = "VECCOL01"
const snapshotVersion = 1

const (
	sectionIDRegistry   = 1
	sectionVectors      = 2
	sectionPayloadIndex = 3
	sectionHnswGraph    = 4
	sectionCodebook     = 5
	sectionTombstones   = 6
	sectionWalCursor    = 7
)

// Save writes a full point-in-time snapshot to path, per spec §6's
// "Snapshot file (per collection)" layout: a fixed header followed by
// tagged, checksummed sections. Section 3 (PayloadIndex) carries each live
// id's raw payload JSON rather than a serialized index structure — the
// indexes themselves (keyword/numeric/geo/text) are cheap to rebuild from
// that payload data on Load, so persisting their internal structure would
// only duplicate it. Section 6 (Tombstones) is written with zero length:
// tombstone state already travels inside section 4's per-node HNSW record,
// per pkg/hnsw's own snapshot format.
func (c *Collection) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIoError, err)
	}
	defer f.Close()
	if err := c.writeSnapshot(f); err != nil {
		return err
	}
	return f.Sync()
}

func (c *Collection) writeSnapshot(w io.Writer) error {
	c.mu.RLock()
	nVectors := uint64(c.storage.Len())
	c.mu.RUnlock()

	var header bytes.Buffer
	header.WriteString(snapshotMagic)
	writeU32(&header, snapshotVersion)
	writeU32(&header, uint32(c.cfg.Dimension))
	header.WriteByte(metricTag(c.cfg.Metric))
	header.WriteByte(storageTag(c.cfg.StorageKind))
	header.WriteByte(quantTag(c.cfg.Quantization))
	header.Write(make([]byte, 5)) // reserved
	writeU64(&header, nVectors)
	writeU32(&header, uint32(c.cfg.M))
	writeU32(&header, uint32(c.cfg.EfConstruction))
	writeU32(&header, uint32(c.cfg.EfSearch))

	entryPoint := ^uint64(0)
	if ep := c.index.EntryPoint(); ep != nil {
		entryPoint = ep.ID()
	}
	writeU64(&header, entryPoint)

	sections, err := c.buildSections()
	if err != nil {
		return err
	}
	writeU32(&header, uint32(len(sections)))

	if _, err := w.Write(header.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", ErrIoError, err)
	}

	trailer := crc32.NewIEEE()
	tw := io.MultiWriter(w, trailer)
	if _, err := trailer.Write(header.Bytes()); err != nil {
		return err
	}
	for _, sec := range sections {
		if err := writeSection(tw, sec.tag, sec.payload); err != nil {
			return err
		}
	}

	trailerBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(trailerBuf, trailer.Sum32())
	if _, err := w.Write(trailerBuf); err != nil {
		return fmt.Errorf("%w: %v", ErrIoError, err)
	}
	return nil
}

type section struct {
	tag     uint32
	payload []byte
}

func (c *Collection) buildSections() ([]section, error) {
	idRegistry, err := c.serializeIDRegistry()
	if err != nil {
		return nil, err
	}
	vectors, err := c.serializeVectors()
	if err != nil {
		return nil, err
	}
	payloadSection, err := c.serializePayloads()
	if err != nil {
		return nil, err
	}
	var graphBuf bytes.Buffer
	if err := c.index.Save(&graphBuf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	codebookSection, err := c.serializeCodebook()
	if err != nil {
		return nil, err
	}
	walCursor := c.walCursorBytes()

	return []section{
		{sectionIDRegistry, idRegistry},
		{sectionVectors, vectors},
		{sectionPayloadIndex, payloadSection},
		{sectionHnswGraph, graphBuf.Bytes()},
		{sectionCodebook, codebookSection},
		{sectionTombstones, nil},
		{sectionWalCursor, walCursor},
	}, nil
}

func (c *Collection) serializeIDRegistry() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var buf bytes.Buffer
	writeU64(&buf, c.nextInternal)
	for i := uint64(0); i < c.nextInternal; i++ {
		id := c.internalToID[i] // empty string for a stale/gap entry
		writeU32(&buf, uint32(len(id)))
		buf.WriteString(id)
	}
	return buf.Bytes(), nil
}

func (c *Collection) serializeVectors() ([]byte, error) {
	c.mu.RLock()
	idToInternal := make(map[string]uint64, len(c.idToInternal))
	for k, v := range c.idToInternal {
		idToInternal[k] = v
	}
	c.mu.RUnlock()

	var buf bytes.Buffer
	var iterErr error
	for {
		iterErr = c.storage.Iterate(func(v storage.Vector) bool {
			internalID, ok := idToInternal[v.ID]
			if !ok {
				return true
			}
			writeU64(&buf, internalID)
			for _, f := range v.Data {
				writeU32(&buf, math.Float32bits(f))
			}
			return true
		})
		if iterErr == storage.ErrIteratorInvalidated {
			buf.Reset()
			continue
		}
		break
	}
	if iterErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrIoError, iterErr)
	}
	return buf.Bytes(), nil
}

type payloadEntry struct {
	ID      string                 `json:"id"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

func (c *Collection) serializePayloads() ([]byte, error) {
	var entries []payloadEntry
	var iterErr error
	for {
		entries = entries[:0]
		iterErr = c.storage.Iterate(func(v storage.Vector) bool {
			if v.Payload != nil {
				entries = append(entries, payloadEntry{ID: v.ID, Payload: v.Payload})
			}
			return true
		})
		if iterErr == storage.ErrIteratorInvalidated {
			continue
		}
		break
	}
	if iterErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrIoError, iterErr)
	}
	return json.Marshal(entries)
}

type codebookEnvelope struct {
	Kind       quantization.Kind `json:"kind"`
	Min        []float32         `json:"min,omitempty"`
	Max        []float32         `json:"max,omitempty"`
	Threshold  []float32         `json:"threshold,omitempty"`
	ProductRaw []byte            `json:"product_raw,omitempty"`
}

func (c *Collection) serializeCodebook() ([]byte, error) {
	c.quantMu.RLock()
	defer c.quantMu.RUnlock()
	if c.codebook == nil {
		return nil, nil
	}
	env := codebookEnvelope{Kind: c.codebook.Kind()}
	switch cb := c.codebook.(type) {
	case *quantization.ScalarCodebook:
		env.Min, env.Max = cb.Min, cb.Max
	case *quantization.BinaryCodebook:
		env.Threshold = cb.Threshold
	case *quantization.ProductCodebook:
		env.ProductRaw = cb.Serialize()
	default:
		return nil, fmt.Errorf("%w: unknown codebook type", ErrInvariant)
	}
	return json.Marshal(env)
}

func (c *Collection) walCursorBytes() []byte {
	buf := make([]byte, 8)
	cursor := wal.NoCursor
	if c.wal != nil {
		next := c.wal.NextLSN()
		if next > 0 {
			cursor = next - 1
		}
	}
	binary.LittleEndian.PutUint64(buf, cursor)
	return buf
}

func writeSection(w io.Writer, tag uint32, payload []byte) error {
	var head bytes.Buffer
	writeU32(&head, tag)
	writeU64(&head, uint64(len(payload)))
	checksum := crc32.ChecksumIEEE(payload)
	writeU32(&head, checksum)
	if _, err := w.Write(head.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", ErrIoError, err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("%w: %v", ErrIoError, err)
		}
	}
	return nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	buf.Write(b)
}

func writeU64(buf *bytes.Buffer, v uint64) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	buf.Write(b)
}

func metricTag(m distance.Metric) byte {
	switch m {
	case distance.Cosine:
		return 0
	case distance.L2:
		return 1
	case distance.Dot:
		return 2
	default:
		return 0
	}
}

func storageTag(k StorageKind) byte {
	if k == MmapStorage {
		return 1
	}
	return 0
}

func quantTag(k quantization.Kind) byte {
	switch k {
	case quantization.SQ8:
		return 1
	case quantization.PQ:
		return 2
	case quantization.Binary:
		return 3
	default:
		return 0
	}
}

// loadSnapshotFile reads a snapshot written by Save, repopulating storage,
// the id mapping, payload indexes, the HNSW graph, and the quantization
// codebook. Returns the WAL cursor recorded at snapshot time, so the
// caller's subsequent Replay starts exactly after it. A corrupted trailer
// or section checksum aborts the load entirely (ErrCorruptedSection,
// spec §7) so the caller falls back to a full WAL replay instead of
// trusting partial state.
func (c *Collection) loadSnapshotFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIoError, err)
	}
	return c.loadSnapshotBytes(data)
}

func (c *Collection) loadSnapshotBytes(data []byte) (uint64, error) {
	if len(data) < len(snapshotMagic) || string(data[:8]) != snapshotMagic {
		return 0, fmt.Errorf("%w: bad snapshot magic", ErrCorruptedSection)
	}
	if len(data) < 4 {
		return 0, fmt.Errorf("%w: truncated header", ErrCorruptedSection)
	}
	trailerStart := len(data) - 4
	wantTrailer := binary.LittleEndian.Uint32(data[trailerStart:])
	gotTrailer := crc32.ChecksumIEEE(data[:trailerStart])
	// Trailer covers header+sections; verified before trusting any bytes.
	r := bytes.NewReader(data[:trailerStart])

	magic := make([]byte, 8)
	io.ReadFull(r, magic)
	var version, dimension uint32
	readU32(r, &version)
	readU32(r, &dimension)
	metricByte, _ := r.ReadByte()
	storageByte, _ := r.ReadByte()
	quantByte, _ := r.ReadByte()
	reserved := make([]byte, 5)
	io.ReadFull(r, reserved)
	var nVectors uint64
	readU64(r, &nVectors)
	var m, efc, efs uint32
	readU32(r, &m)
	readU32(r, &efc)
	readU32(r, &efs)
	var entryPoint uint64
	readU64(r, &entryPoint)
	var sectionCount uint32
	readU32(r, &sectionCount)

	_ = version
	_ = dimension
	_ = metricByte
	_ = storageByte
	_ = quantByte
	_ = m
	_ = efc
	_ = efs
	_ = entryPoint

	if gotTrailer != wantTrailer {
		return 0, fmt.Errorf("%w: trailer checksum mismatch", ErrCorruptedSection)
	}

	sections := make(map[uint32][]byte)
	for i := uint32(0); i < sectionCount; i++ {
		var tag uint32
		var length uint64
		var checksum uint32
		readU32(r, &tag)
		readU64(r, &length)
		readU32(r, &checksum)
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, fmt.Errorf("%w: truncated section %d", ErrCorruptedSection, tag)
		}
		if crc32.ChecksumIEEE(payload) != checksum {
			return 0, fmt.Errorf("%w: section %d checksum mismatch", ErrCorruptedSection, tag)
		}
		sections[tag] = payload
	}

	if err := c.restoreFromSections(sections); err != nil {
		return 0, err
	}

	cursor := wal.NoCursor
	if cur, ok := sections[sectionWalCursor]; ok && len(cur) == 8 {
		cursor = binary.LittleEndian.Uint64(cur)
	}
	return cursor, nil
}

func (c *Collection) restoreFromSections(sections map[uint32][]byte) error {
	c.mu.Lock()
	idReg := bytes.NewReader(sections[sectionIDRegistry])
	var nextInternal uint64
	readU64(idReg, &nextInternal)
	c.internalToID = make(map[uint64]string, nextInternal)
	c.idToInternal = make(map[string]uint64, nextInternal)
	for i := uint64(0); i < nextInternal; i++ {
		var length uint32
		readU32(idReg, &length)
		idBytes := make([]byte, length)
		io.ReadFull(idReg, idBytes)
		id := string(idBytes)
		if id != "" {
			c.internalToID[i] = id
			c.idToInternal[id] = i
		}
	}
	c.nextInternal = nextInternal
	c.mu.Unlock()

	vecReader := bytes.NewReader(sections[sectionVectors])
	rawVectors := make(map[uint64][]float32)
	for vecReader.Len() > 0 {
		var internalID uint64
		readU64(vecReader, &internalID)
		vec := make([]float32, c.cfg.Dimension)
		for i := range vec {
			var bits uint32
			readU32(vecReader, &bits)
			vec[i] = math.Float32frombits(bits)
		}
		rawVectors[internalID] = vec
	}

	var payloads []payloadEntry
	if len(sections[sectionPayloadIndex]) > 0 {
		if err := json.Unmarshal(sections[sectionPayloadIndex], &payloads); err != nil {
			return fmt.Errorf("%w: payload section: %v", ErrCorruptedSection, err)
		}
	}
	payloadByID := make(map[string]map[string]interface{}, len(payloads))
	for _, p := range payloads {
		payloadByID[p.ID] = p.Payload
	}

	for internalID, vec := range rawVectors {
		id, ok := c.internalToID[internalID]
		if !ok {
			continue
		}
		pl := payloadByID[id]
		if err := c.storage.Insert(id, vec, pl); err != nil {
			return fmt.Errorf("%w: restore vector %s: %v", ErrCorruptedSection, id, err)
		}
		if pl != nil {
			c.indexes.IndexPayload(id, pl, c.cfg.PayloadIndexPaths)
		}
	}

	if graph, ok := sections[sectionHnswGraph]; ok && len(graph) > 0 {
		loaded, warnings, err := hnsw.Load(bytes.NewReader(graph))
		if err != nil {
			return fmt.Errorf("%w: hnsw section: %v", ErrCorruptedSection, err)
		}
		c.index = loaded
		_ = warnings // dangling-neighbor repairs are expected after a torn write; not surfaced further
	}

	if cbBytes, ok := sections[sectionCodebook]; ok && len(cbBytes) > 0 {
		if err := c.restoreCodebook(cbBytes); err != nil {
			return fmt.Errorf("%w: codebook section: %v", ErrCorruptedSection, err)
		}
	}

	return nil
}

func (c *Collection) restoreCodebook(data []byte) error {
	var env codebookEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Kind {
	case quantization.SQ8:
		c.codebook = &quantization.ScalarCodebook{Min: env.Min, Max: env.Max}
	case quantization.Binary:
		c.codebook = &quantization.BinaryCodebook{Threshold: env.Threshold}
	case quantization.PQ:
		cb, err := quantization.DeserializeProductCodebook(env.ProductRaw)
		if err != nil {
			return err
		}
		c.codebook = cb
	default:
		return fmt.Errorf("unknown codebook kind %v", env.Kind)
	}
	return nil
}

func readU32(r *bytes.Reader, v *uint32) {
	b := make([]byte, 4)
	io.ReadFull(r, b)
	*v = binary.LittleEndian.Uint32(b)
}

func readU64(r *bytes.Reader, v *uint64) {
	b := make([]byte, 8)
	io.ReadFull(r, b)
	*v = binary.LittleEndian.Uint64(b)
}

