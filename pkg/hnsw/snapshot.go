package hnsw

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/vectorizer-db/vectorizer/pkg/distance"
)

// snapshotMagic tags the on-disk graph format (spec §6 "HNSW snapshot
// section"). Bumping the version byte is required for any layout change.
const snapshotMagic = "VECHNSW1"

// Save writes a binary snapshot of the full graph: the magic tag, a fixed
// header (M, M0, efConstruction, dimension, metric, node count, entry point
// id), then one record per node (id, level, tombstone flag, vector values,
// per-layer neighbor lists).
func (idx *Index) Save(w io.Writer) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(snapshotMagic); err != nil {
		return err
	}
	header := make([]byte, 32)
	binary.LittleEndian.PutUint32(header[0:4], uint32(idx.M))
	binary.LittleEndian.PutUint32(header[4:8], uint32(idx.M0))
	binary.LittleEndian.PutUint32(header[8:12], uint32(idx.efConstruction))
	binary.LittleEndian.PutUint32(header[12:16], uint32(idx.dimension))
	binary.LittleEndian.PutUint32(header[16:20], uint32(idx.metric))
	binary.LittleEndian.PutUint32(header[20:24], uint32(len(idx.nodes)))
	if idx.entryPoint != nil {
		binary.LittleEndian.PutUint64(header[24:32], idx.entryPoint.ID())
	} else {
		binary.LittleEndian.PutUint64(header[24:32], ^uint64(0))
	}
	if _, err := bw.Write(header); err != nil {
		return err
	}

	for _, node := range idx.nodes {
		if err := writeNodeRecord(bw, node); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func writeNodeRecord(w *bufio.Writer, node *Node) error {
	node.mu.RLock()
	defer node.mu.RUnlock()

	var status byte
	if !node.IsLive() {
		status = 1
	}

	buf := make([]byte, 13)
	binary.LittleEndian.PutUint64(buf[0:8], node.id)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(node.level))
	buf[12] = status
	if _, err := w.Write(buf); err != nil {
		return err
	}

	// Vector values ride along so Load can rebuild graphDistance without
	// depending on a separate storage-layer replay step being run first.
	vecBuf := make([]byte, 4*len(node.vector))
	for i, f := range node.vector {
		binary.LittleEndian.PutUint32(vecBuf[i*4:], math.Float32bits(f))
	}
	if _, err := w.Write(vecBuf); err != nil {
		return err
	}

	for layer := 0; layer <= node.level; layer++ {
		neighbors := node.neighbors[layer]
		lenBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(neighbors)))
		if _, err := w.Write(lenBuf); err != nil {
			return err
		}
		idBuf := make([]byte, 8*len(neighbors))
		for i, id := range neighbors {
			binary.LittleEndian.PutUint64(idBuf[i*8:], id)
		}
		if _, err := w.Write(idBuf); err != nil {
			return err
		}
	}

	return nil
}

// Load rebuilds an Index from a snapshot written by Save. Neighbor
// references to ids that weren't found in the snapshot (corruption, a
// record written mid-crash) are dropped with a warning rather than
// aborting the whole load, matching the repair-by-removal policy in
// spec §6.
func Load(r io.Reader) (*Index, []string, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, nil, fmt.Errorf("read snapshot magic: %w", err)
	}
	if string(magic) != snapshotMagic {
		return nil, nil, fmt.Errorf("bad snapshot magic %q", magic)
	}

	header := make([]byte, 32)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, nil, fmt.Errorf("read snapshot header: %w", err)
	}
	m := int(binary.LittleEndian.Uint32(header[0:4]))
	m0 := int(binary.LittleEndian.Uint32(header[4:8]))
	efConstruction := int(binary.LittleEndian.Uint32(header[8:12]))
	dimension := int(binary.LittleEndian.Uint32(header[12:16]))
	metric := distance.Metric(binary.LittleEndian.Uint32(header[16:20]))
	nodeCount := int(binary.LittleEndian.Uint32(header[20:24]))
	entryPointID := binary.LittleEndian.Uint64(header[24:32])

	idx := New(IndexConfig{M: m, EfConstruction: efConstruction, Metric: metric})
	idx.M0 = m0
	idx.dimension = dimension

	var warnings []string
	type rawNode struct {
		id        uint64
		level     int
		tombstone bool
		vector    []float32
		neighbors [][]uint64
	}
	raw := make(map[uint64]*rawNode, nodeCount)

	for i := 0; i < nodeCount; i++ {
		head := make([]byte, 13)
		if _, err := io.ReadFull(br, head); err != nil {
			return nil, nil, fmt.Errorf("read node record %d: %w", i, err)
		}
		id := binary.LittleEndian.Uint64(head[0:8])
		level := int(binary.LittleEndian.Uint32(head[8:12]))
		tombstone := head[12] == 1

		vecBuf := make([]byte, 4*dimension)
		if _, err := io.ReadFull(br, vecBuf); err != nil {
			return nil, nil, fmt.Errorf("read node %d vector: %w", id, err)
		}
		vector := make([]float32, dimension)
		for j := 0; j < dimension; j++ {
			vector[j] = math.Float32frombits(binary.LittleEndian.Uint32(vecBuf[j*4:]))
		}

		neighbors := make([][]uint64, level+1)
		for layer := 0; layer <= level; layer++ {
			lenBuf := make([]byte, 4)
			if _, err := io.ReadFull(br, lenBuf); err != nil {
				return nil, nil, fmt.Errorf("read node %d layer %d length: %w", id, layer, err)
			}
			n := int(binary.LittleEndian.Uint32(lenBuf))
			idBuf := make([]byte, 8*n)
			if _, err := io.ReadFull(br, idBuf); err != nil {
				return nil, nil, fmt.Errorf("read node %d layer %d neighbors: %w", id, layer, err)
			}
			layerNeighbors := make([]uint64, n)
			for k := 0; k < n; k++ {
				layerNeighbors[k] = binary.LittleEndian.Uint64(idBuf[k*8:])
			}
			neighbors[layer] = layerNeighbors
		}

		raw[id] = &rawNode{id: id, level: level, tombstone: tombstone, vector: vector, neighbors: neighbors}
	}

	for id, rn := range raw {
		node := NewNode(id, rn.vector, rn.level)
		if rn.tombstone {
			node.Tombstone()
		}
		for layer, neighbors := range rn.neighbors {
			kept := neighbors[:0]
			for _, nid := range neighbors {
				if _, ok := raw[nid]; ok {
					kept = append(kept, nid)
				} else {
					warnings = append(warnings, fmt.Sprintf("node %d: dropped dangling neighbor %d at layer %d", id, nid, layer))
				}
			}
			node.neighbors[layer] = kept
		}
		idx.nodes[id] = node
		if node.level > idx.maxLayer {
			idx.maxLayer = node.level
		}
		if !node.IsLive() {
			idx.tombstones++
		} else {
			idx.size++
		}
	}

	if entryPointID != ^uint64(0) {
		if ep, ok := idx.nodes[entryPointID]; ok {
			idx.entryPoint = ep
		} else if len(idx.nodes) > 0 {
			warnings = append(warnings, fmt.Sprintf("entry point %d missing from snapshot, picking arbitrary replacement", entryPointID))
			for _, n := range idx.nodes {
				idx.entryPoint = n
				break
			}
		}
	}

	return idx, warnings, nil
}

// SaveToFile and LoadFromFile are convenience wrappers around Save/Load.
func (idx *Index) SaveToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return idx.Save(f)
}

func LoadFromFile(path string) (*Index, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return Load(f)
}
