// Package hnsw implements the layered navigable small-world graph (C6):
// insertion with diversity-heuristic neighbor selection, tombstone-based
// deletion, small-index-determinism search retries, and snapshot save/load,
// generalized from closest-M neighbor selection and hard-delete semantics
// to a diversity heuristic and tombstone model.
package hnsw

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vectorizer-db/vectorizer/pkg/distance"
)

// Index is a single collection's HNSW graph.
type Index struct {
	M              int
	M0             int
	efConstruction int
	ml             float64
	metric         distance.Metric
	scoreFunc      distance.Func

	mu         sync.RWMutex
	nodes      map[uint64]*Node
	entryPoint *Node
	maxLayer   int
	dimension  int

	rand *rand.Rand

	size       int64
	tombstones int64
}

// IndexConfig holds configuration for creating a new Index.
type IndexConfig struct {
	M              int
	EfConstruction int
	Metric         distance.Metric
}

// DefaultConfig returns recommended defaults (spec §4.6: M typical 16-32,
// ef_construction typical 200).
func DefaultConfig() IndexConfig {
	return IndexConfig{M: 16, EfConstruction: 200, Metric: distance.Cosine}
}

// New creates a new HNSW index with the given configuration.
func New(config IndexConfig) *Index {
	if config.M == 0 {
		config.M = 16
	}
	if config.EfConstruction == 0 {
		config.EfConstruction = 200
	}

	return &Index{
		M:              config.M,
		M0:             config.M * 2,
		efConstruction: config.EfConstruction,
		ml:             1.0 / math.Log(float64(config.M)),
		metric:         config.Metric,
		scoreFunc:      distance.ForMetric(config.Metric),
		nodes:          make(map[uint64]*Node),
		maxLayer:       -1,
		rand:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// randomLevel draws ℓ ~ floor(-ln(U(0,1)) / ln(M)) per spec §4.6 step 1.
func (idx *Index) randomLevel() int {
	r := idx.rand.Float64()
	return int(math.Floor(-math.Log(r) * idx.ml))
}

// graphDistance returns a smaller-is-better score regardless of the
// configured metric's native orientation, so the single min/max-heap
// search machinery works uniformly across cosine, dot, and L2.
func (idx *Index) graphDistance(a, b []float32) float32 {
	s := idx.scoreFunc(a, b)
	if idx.metric.HigherIsBetter() {
		return -s
	}
	return s
}

func (idx *Index) Size() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.size
}

func (idx *Index) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dimension
}

func (idx *Index) MaxLayer() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.maxLayer
}

func (idx *Index) GetNode(id uint64) *Node {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.nodes[id]
}

func (idx *Index) EntryPoint() *Node {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.entryPoint
}

// TombstoneFraction reports the share of nodes marked deleted: tombstoned
// nodes divided by live plus tombstoned nodes, 0 for an empty index. It is
// reported through Collection.Health; nothing in this module starts a
// compaction from it.
func (idx *Index) TombstoneFraction() float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	tombstones := atomic.LoadInt64(&idx.tombstones)
	total := idx.size + tombstones
	if total == 0 {
		return 0
	}
	return float64(tombstones) / float64(total)
}

type IndexStats struct {
	Size           int64
	Dimension      int
	MaxLayer       int
	M              int
	M0             int
	EfConstruction int
	Tombstones     int64
	NodesPerLayer  map[int]int
}

func (idx *Index) GetStats() IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	nodesPerLayer := make(map[int]int)
	for _, node := range idx.nodes {
		for layer := 0; layer <= node.level; layer++ {
			nodesPerLayer[layer]++
		}
	}

	return IndexStats{
		Size:           idx.size,
		Dimension:      idx.dimension,
		MaxLayer:       idx.maxLayer,
		M:              idx.M,
		M0:             idx.M0,
		EfConstruction: idx.efConstruction,
		Tombstones:     atomic.LoadInt64(&idx.tombstones),
		NodesPerLayer:  nodesPerLayer,
	}
}
