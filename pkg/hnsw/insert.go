package hnsw

import (
	"container/heap"
	"fmt"
)

// Insert adds a vector to the HNSW index under the given node id (the
// caller-assigned insertion-order integer, per spec §4.6).
func (idx *Index) Insert(id uint64, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("cannot insert empty vector")
	}

	idx.mu.Lock()
	if idx.dimension == 0 {
		idx.dimension = len(vector)
	} else if len(vector) != idx.dimension {
		idx.mu.Unlock()
		return fmt.Errorf("vector dimension mismatch: expected %d, got %d", idx.dimension, len(vector))
	}
	if _, exists := idx.nodes[id]; exists {
		idx.mu.Unlock()
		return fmt.Errorf("node id %d already exists", id)
	}

	level := idx.randomLevel()
	newNode := NewNode(id, vector, level)

	if idx.entryPoint == nil {
		idx.nodes[id] = newNode
		idx.entryPoint = newNode
		idx.maxLayer = level
		idx.size++
		idx.mu.Unlock()
		return nil
	}

	// Register the node before linking so pruneNeighbors can resolve its id
	// when a neighbor's list overflows; an unresolvable id would be dropped.
	idx.nodes[id] = newNode
	entryPoint := idx.entryPoint
	currentMaxLayer := idx.maxLayer
	idx.mu.Unlock()

	// Phase 1 (spec step 2): greedy-descend from the entry point to layer
	// level+1, keeping a single best node per layer.
	ep := entryPoint
	currentDist := idx.graphDistance(vector, ep.vector)
	for lc := currentMaxLayer; lc > level; lc-- {
		changed := true
		for changed {
			changed = false
			for _, neighborID := range ep.GetNeighbors(lc) {
				neighborNode := idx.GetNode(neighborID)
				if neighborNode == nil {
					continue
				}
				dist := idx.graphDistance(vector, neighborNode.vector)
				if dist < currentDist {
					currentDist = dist
					ep = neighborNode
					changed = true
				}
			}
		}
	}

	// Phase 2 (spec steps 3-4): for each layer from level down to 0, run
	// search_layer(q, efConstruction), select M_l neighbors via the
	// diversity heuristic, and link bidirectionally.
	for lc := min(level, currentMaxLayer); lc >= 0; lc-- {
		candidates := idx.searchLayer(vector, ep, idx.efConstruction, lc)

		M := idx.M
		if lc == 0 {
			M = idx.M0
		}

		neighbors := idx.selectNeighborsHeuristic(vector, candidates, M, lc)

		for _, neighborID := range neighbors {
			neighborNode := idx.GetNode(neighborID)
			if neighborNode == nil {
				continue
			}
			newNode.AddNeighbor(lc, neighborID)
			neighborNode.AddNeighbor(lc, id)
			idx.pruneNeighbors(neighborNode, lc)
		}

		if len(candidates) > 0 {
			if n := idx.GetNode(candidates[0].id); n != nil {
				ep = n
			}
		}
	}

	idx.mu.Lock()
	// Step 5: promote to entry point if this node reaches a new max level.
	if level > idx.maxLayer {
		idx.maxLayer = level
		idx.entryPoint = newNode
	}
	idx.size++
	idx.mu.Unlock()

	return nil
}

// searchLayer performs a greedy search for the ef nearest neighbors at a
// specific layer, returning candidates sorted closest-first. Tombstoned
// nodes are still traversed (they remain valid for routing) but excluded
// from nothing here — result filtering for live-only happens in Search.
func (idx *Index) searchLayer(query []float32, entryPoint *Node, ef int, layer int) []heapItem {
	visited := make(map[uint64]bool)
	candidates := &minHeap{}
	results := &maxHeap{}

	dist := idx.graphDistance(query, entryPoint.vector)
	heap.Push(candidates, heapItem{id: entryPoint.ID(), distance: dist})
	heap.Push(results, heapItem{id: entryPoint.ID(), distance: dist})
	visited[entryPoint.ID()] = true

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
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true

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

// selectNeighborsHeuristic applies a diversity heuristic: walk candidates
// closest-to-query first, and accept a candidate only if no already-accepted
// neighbor is strictly closer to it than the query is — i.e. reject
// candidates that a better-placed neighbor already "covers". This avoids
// packing neighbors into a single angular cluster, which a plain
// closest-M selection tends to do.
func (idx *Index) selectNeighborsHeuristic(query []float32, candidates []heapItem, M int, layer int) []uint64 {
	if len(candidates) <= M {
		result := make([]uint64, len(candidates))
		for i, c := range candidates {
			result[i] = c.id
		}
		return result
	}

	var selected []heapItem
	for _, cand := range candidates {
		if len(selected) >= M {
			break
		}
		candNode := idx.GetNode(cand.id)
		if candNode == nil {
			continue
		}

		diverse := true
		for _, acc := range selected {
			accNode := idx.GetNode(acc.id)
			if accNode == nil {
				continue
			}
			distToAccepted := idx.graphDistance(candNode.vector, accNode.vector)
			if distToAccepted < cand.distance {
				diverse = false
				break
			}
		}
		if diverse {
			selected = append(selected, cand)
		}
	}

	// If the heuristic was too aggressive and under-filled M, top up with
	// the closest remaining candidates to avoid starving the graph.
	if len(selected) < M {
		have := make(map[uint64]bool, len(selected))
		for _, s := range selected {
			have[s.id] = true
		}
		for _, cand := range candidates {
			if len(selected) >= M {
				break
			}
			if !have[cand.id] {
				selected = append(selected, cand)
				have[cand.id] = true
			}
		}
	}

	result := make([]uint64, len(selected))
	for i, s := range selected {
		result[i] = s.id
	}
	return result
}

// pruneNeighbors re-applies the diversity heuristic when a node exceeds its
// degree bound after a new bidirectional link was added (spec §4.6 step 4).
func (idx *Index) pruneNeighbors(node *Node, layer int) {
	M := idx.M
	if layer == 0 {
		M = idx.M0
	}

	neighbors := node.GetNeighbors(layer)
	if len(neighbors) <= M {
		return
	}

	candidates := make([]heapItem, 0, len(neighbors))
	for _, neighborID := range neighbors {
		neighborNode := idx.GetNode(neighborID)
		if neighborNode == nil {
			continue
		}
		candidates = append(candidates, heapItem{
			id:       neighborID,
			distance: idx.graphDistance(node.vector, neighborNode.vector),
		})
	}
	sortHeapItems(candidates)

	selectedIDs := idx.selectNeighborsHeuristic(node.vector, candidates, M, layer)
	node.SetNeighbors(layer, selectedIDs)

	// Drop the reverse edge of every pruned link so links stay bidirectional.
	kept := make(map[uint64]bool, len(selectedIDs))
	for _, id := range selectedIDs {
		kept[id] = true
	}
	for _, id := range neighbors {
		if n := idx.GetNode(id); n != nil && !kept[id] {
			n.RemoveNeighbor(layer, node.id)
		}
	}
}

// sortHeapItems orders by distance ascending, breaking ties by id ascending
// (callers assign ids in insertion order) so results are
// reproducible regardless of the order items arrived in — callers that
// build the slice from map iteration cannot otherwise rely on that order.
func sortHeapItems(items []heapItem) {
	for i := 1; i < len(items); i++ {
		v := items[i]
		j := i - 1
		for j >= 0 && heapItemLess(v, items[j]) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = v
	}
}

func heapItemLess(a, b heapItem) bool {
	if a.distance != b.distance {
		return a.distance < b.distance
	}
	return a.id < b.id
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// heapItem represents an item in the priority queue.
type heapItem struct {
	id       uint64
	distance float32
}

type minHeap []heapItem

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i].distance < h[j].distance }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) {
	*h = append(*h, x.(heapItem))
}
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
func (h *minHeap) Peek() interface{} {
	if len(*h) == 0 {
		return heapItem{distance: 1e9}
	}
	return (*h)[0]
}

type maxHeap []heapItem

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return h[i].distance > h[j].distance }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) {
	*h = append(*h, x.(heapItem))
}
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
func (h *maxHeap) Peek() interface{} {
	if len(*h) == 0 {
		return heapItem{distance: 1e9}
	}
	return (*h)[0]
}
