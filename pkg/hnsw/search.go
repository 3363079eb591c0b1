package hnsw

import (
	"container/heap"
	"fmt"
)

// Result represents a search result with ID and graph-internal score
// (ascending-is-better regardless of the configured metric's native
// orientation; see Index.graphDistance).
type Result struct {
	ID       uint64
	Distance float32
}

type SearchResult struct {
	Results []Result
	Visited int
}

// Search performs k-NN search with small-index-determinism fallback (spec
// §4.6 "Search(q, k, ef_search)"): it escalates ef up to 5 times, then
// falls back to an exact linear scan restricted to live nodes if the graph
// still can't surface k live results despite k-or-more existing.
func (idx *Index) Search(query []float32, k int, efSearch int) (*SearchResult, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}

	idx.mu.RLock()
	if idx.dimension == 0 {
		idx.mu.RUnlock()
		return nil, fmt.Errorf("index is empty")
	}
	if len(query) != idx.dimension {
		idx.mu.RUnlock()
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", idx.dimension, len(query))
	}
	if idx.entryPoint == nil {
		idx.mu.RUnlock()
		return nil, fmt.Errorf("index has no entry point")
	}
	entryPoint := idx.entryPoint
	maxLayer := idx.maxLayer
	idx.mu.RUnlock()

	if efSearch < k {
		efSearch = k
	}

	liveCount := idx.liveCount()
	if liveCount == 0 {
		return &SearchResult{}, nil
	}
	if k > liveCount {
		k = liveCount
	}

	ef := efSearch
	var results []Result
	var visited int

	for attempt := 0; attempt <= 5; attempt++ {
		results, visited = idx.searchOnce(query, entryPoint, maxLayer, k, ef)
		if len(results) >= k {
			break
		}
		ef = maxInt(ef*2, maxInt(k*4, 64))
	}

	if len(results) < k {
		results = idx.linearScanLive(query, k)
	}

	return &SearchResult{Results: results, Visited: visited}, nil
}

func (idx *Index) searchOnce(query []float32, entryPoint *Node, maxLayer, k, ef int) ([]Result, int) {
	ep := entryPoint
	currentDist := idx.graphDistance(query, ep.vector)
	visited := 1

	for lc := maxLayer; lc > 0; lc-- {
		changed := true
		for changed {
			changed = false
			for _, neighborID := range ep.GetNeighbors(lc) {
				visited++
				neighborNode := idx.GetNode(neighborID)
				if neighborNode == nil {
					continue
				}
				dist := idx.graphDistance(query, neighborNode.vector)
				if dist < currentDist {
					currentDist = dist
					ep = neighborNode
					changed = true
				}
			}
		}
	}

	candidates := idx.searchLayerForQuery(query, ep, ef, 0, &visited)

	results := make([]Result, 0, k)
	for _, c := range candidates {
		node := idx.GetNode(c.id)
		if node == nil || !node.IsLive() {
			continue
		}
		results = append(results, Result{ID: c.id, Distance: c.distance})
		if len(results) == k {
			break
		}
	}
	return results, visited
}

func (idx *Index) searchLayerForQuery(query []float32, entryPoint *Node, ef int, layer int, visited *int) []heapItem {
	visitedSet := make(map[uint64]bool)
	candidates := &minHeap{}
	results := &maxHeap{}

	dist := idx.graphDistance(query, entryPoint.vector)
	heap.Push(candidates, heapItem{id: entryPoint.ID(), distance: dist})
	heap.Push(results, heapItem{id: entryPoint.ID(), distance: dist})
	visitedSet[entryPoint.ID()] = true
	*visited++

	for candidates.Len() > 0 {
		current := heap.Pop(candidates).(heapItem)
		if current.distance > results.Peek().(heapItem).distance && results.Len() >= ef {
			break
		}

		currentNode := idx.GetNode(current.id)
		if currentNode == nil {
			continue
		}

		for _, neighborID := range currentNode.GetNeighbors(layer) {
			if visitedSet[neighborID] {
				continue
			}
			visitedSet[neighborID] = true
			*visited++

			neighborNode := idx.GetNode(neighborID)
			if neighborNode == nil {
				continue
			}

			neighborDist := idx.graphDistance(query, neighborNode.vector)
			if neighborDist < results.Peek().(heapItem).distance || results.Len() < ef {
				heap.Push(candidates, heapItem{id: neighborID, distance: neighborDist})
				heap.Push(results, heapItem{id: neighborID, distance: neighborDist})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	resultSlice := make([]heapItem, results.Len())
	for i := len(resultSlice) - 1; i >= 0; i-- {
		resultSlice[i] = heap.Pop(results).(heapItem)
	}
	return resultSlice
}

// linearScanLive is the final fallback in spec §4.6's determinism ladder:
// an exhaustive scan over every live node, guaranteeing k results whenever
// k live nodes exist regardless of graph connectivity pathologies.
func (idx *Index) linearScanLive(query []float32, k int) []Result {
	idx.mu.RLock()
	nodes := make([]*Node, 0, len(idx.nodes))
	for _, n := range idx.nodes {
		nodes = append(nodes, n)
	}
	idx.mu.RUnlock()

	scored := make([]heapItem, 0, len(nodes))
	for _, n := range nodes {
		if !n.IsLive() {
			continue
		}
		scored = append(scored, heapItem{id: n.ID(), distance: idx.graphDistance(query, n.vector)})
	}
	sortHeapItems(scored)

	if k > len(scored) {
		k = len(scored)
	}
	out := make([]Result, k)
	for i := 0; i < k; i++ {
		out[i] = Result{ID: scored[i].id, Distance: scored[i].distance}
	}
	return out
}

func (idx *Index) liveCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	count := 0
	for _, n := range idx.nodes {
		if n.IsLive() {
			count++
		}
	}
	return count
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// KNNSearch is a convenience method using efSearch = max(k*2, 50).
func (idx *Index) KNNSearch(query []float32, k int) (*SearchResult, error) {
	efSearch := k * 2
	if efSearch < 50 {
		efSearch = 50
	}
	return idx.Search(query, k, efSearch)
}

func (idx *Index) GetVector(id uint64) ([]float32, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	node := idx.nodes[id]
	if node == nil {
		return nil, fmt.Errorf("node with ID %d not found", id)
	}
	vector := make([]float32, len(node.vector))
	copy(vector, node.vector)
	return vector, nil
}

// Update replaces a node's vector in place. Since neighbor lists were built
// against the old vector, the simplest correct approach consistent with the
// tombstone model is to tombstone the old node and insert a fresh one under
// the same id: routing through the stale node still works for any in-flight
// traversal, and the new node gets properly placed neighbors via the normal
// insertion path rather than an approximate in-place relink.
func (idx *Index) Update(id uint64, newVector []float32) error {
	idx.mu.Lock()
	node := idx.nodes[id]
	if node == nil {
		idx.mu.Unlock()
		return fmt.Errorf("node with ID %d not found", id)
	}
	if len(newVector) != idx.dimension {
		idx.mu.Unlock()
		return fmt.Errorf("vector dimension mismatch: expected %d, got %d", idx.dimension, len(newVector))
	}
	wasLive := node.IsLive()
	node.Tombstone()
	if wasLive {
		idx.size--
		idx.tombstones++
	}
	delete(idx.nodes, id)
	idx.mu.Unlock()

	if err := idx.Insert(id, newVector); err != nil {
		return err
	}

	// The tombstoned node deleted above is gone for good, replaced by the
	// fresh node Insert just created under the same id — unlike Delete,
	// there is no lingering tombstone left for compaction to reconcile, so
	// the counter bumped above must be unwound here.
	if wasLive {
		idx.mu.Lock()
		idx.tombstones--
		idx.mu.Unlock()
	}
	return nil
}

// Delete tombstones a node rather than hard-removing it: neighbors are
// retained so the graph stays valid for routing (spec §4.6 "Deletion").
// The node and its edges stay in the graph for good: nothing in this module
// rebuilds connections around tombstoned nodes or removes them.
func (idx *Index) Delete(id uint64) error {
	idx.mu.Lock()
	node := idx.nodes[id]
	if node == nil {
		idx.mu.Unlock()
		return fmt.Errorf("node with ID %d not found", id)
	}
	if !node.IsLive() {
		idx.mu.Unlock()
		return fmt.Errorf("node with ID %d already deleted", id)
	}
	node.Tombstone()
	idx.size--
	idx.tombstones++
	idx.mu.Unlock()
	return nil
}
