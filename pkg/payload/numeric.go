package payload

import (
	"math"
	"sort"
)

// numericEntry pairs an indexed numeric value with the id that carries it.
type numericEntry struct {
	value float64
	id    string
}

// NumericIndex backs both the integer and float indexes from spec §4.4: a
// hash map for exact-match plus a sorted auxiliary slice for range queries.
// NaN values are excluded from the sorted structure, per spec.
type NumericIndex struct {
	byValue map[float64]map[string]struct{}
	sorted  []numericEntry
	dirty   bool
}

// NewIntIndex and NewFloatIndex share the same implementation; callers are
// distinguished only by the source field's declared type.
func NewIntIndex() *NumericIndex   { return newNumericIndex() }
func NewFloatIndex() *NumericIndex { return newNumericIndex() }

func newNumericIndex() *NumericIndex {
	return &NumericIndex{byValue: make(map[float64]map[string]struct{})}
}

func (n *NumericIndex) Add(id string, value float64) {
	if math.IsNaN(value) {
		return
	}
	set, ok := n.byValue[value]
	if !ok {
		set = make(map[string]struct{})
		n.byValue[value] = set
	}
	set[id] = struct{}{}
	n.sorted = append(n.sorted, numericEntry{value: value, id: id})
	n.dirty = true
}

func (n *NumericIndex) Remove(id string, value float64) {
	if math.IsNaN(value) {
		return
	}
	if set, ok := n.byValue[value]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(n.byValue, value)
		}
	}
	for i, e := range n.sorted {
		if e.value == value && e.id == id {
			n.sorted = append(n.sorted[:i], n.sorted[i+1:]...)
			break
		}
	}
}

func (n *NumericIndex) ensureSorted() {
	if n.dirty {
		sort.Slice(n.sorted, func(i, j int) bool { return n.sorted[i].value < n.sorted[j].value })
		n.dirty = false
	}
}

// Match returns ids with exactly this value.
func (n *NumericIndex) Match(value float64) map[string]struct{} {
	return n.byValue[value]
}

// RangeIDs returns ids with lo <= value <= hi (bounds individually toggle
// to exclusive via loInclusive/hiInclusive).
func (n *NumericIndex) RangeIDs(lo, hi float64, loInclusive, hiInclusive bool) []string {
	n.ensureSorted()
	start := sort.Search(len(n.sorted), func(i int) bool {
		if loInclusive {
			return n.sorted[i].value >= lo
		}
		return n.sorted[i].value > lo
	})
	end := sort.Search(len(n.sorted), func(i int) bool {
		if hiInclusive {
			return n.sorted[i].value > hi
		}
		return n.sorted[i].value >= hi
	})
	if start >= end {
		return nil
	}
	out := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, n.sorted[i].id)
	}
	return out
}

func (n *NumericIndex) Len() int { return len(n.sorted) }
