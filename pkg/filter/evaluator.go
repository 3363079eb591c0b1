package filter

import (
	"sort"

	"github.com/vectorizer-db/vectorizer/pkg/payload"
)

// Evaluator resolves a filter tree against a collection's payload indexes
// and raw payload store.
type Evaluator struct {
	Indexes    *payload.IndexSet
	AllIDs     func() []string
	GetPayload func(id string) (map[string]interface{}, bool)
}

// Evaluate returns the ids matching node. It pushes Must's indexable
// clauses down to the payload indexes to build an initial candidate set
// without ever materializing the full collection when at least one such
// clause exists (spec §4.5), then rescans the (much smaller) candidate set
// against the full tree for exactness — this also implements MustNot as a
// strict post-filter and handles ValuesCount/Should clauses indexes cannot
// serve.
func (e *Evaluator) Evaluate(node *Node) []string {
	candidates := e.candidateSet(node)
	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		p, ok := e.GetPayload(id)
		if !ok {
			continue
		}
		if e.matchNode(node, p) {
			out = append(out, id)
		}
	}
	return out
}

// candidateSet picks the cheapest provable indexable subset of node.Must to
// build a pruned starting set, falling back to the full id universe only
// when no Must clause is indexable and no Should clause can substitute.
func (e *Evaluator) candidateSet(node *Node) []string {
	type scored = struct {
		ids []string
	}
	var indexable []scored
	for _, child := range node.Must {
		if child.Leaf == nil {
			continue
		}
		if ids, ok := e.indexedMatch(child.Leaf); ok {
			indexable = append(indexable, scored{ids: ids})
		}
	}

	if len(indexable) > 0 {
		sort.Slice(indexable, func(i, j int) bool { return len(indexable[i].ids) < len(indexable[j].ids) })
		return intersectAll(indexable[0].ids, indexable[1:])
	}

	if len(node.Should) > 0 && allIndexableLeaves(node.Should) {
		var union []scored
		for _, child := range node.Should {
			ids, _ := e.indexedMatch(child.Leaf)
			union = append(union, scored{ids: ids})
		}
		return unionAll(union)
	}

	return e.AllIDs()
}

func intersectAll(first []string, rest []struct{ ids []string }) []string {
	set := toSet(first)
	for _, r := range rest {
		set = intersectSet(set, toSet(r.ids))
	}
	return fromSet(set)
}

func unionAll(groups []struct{ ids []string }) []string {
	set := make(map[string]struct{})
	for _, g := range groups {
		for _, id := range g.ids {
			set[id] = struct{}{}
		}
	}
	return fromSet(set)
}

func allIndexableLeaves(nodes []*Node) bool {
	for _, n := range nodes {
		if n.Leaf == nil {
			return false
		}
		switch n.Leaf.Kind {
		case LeafMatch, LeafRange, LeafGeoBBox, LeafGeoRadius, LeafTextMatch:
		default:
			return false
		}
	}
	return true
}

func toSet(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func intersectSet(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func fromSet(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// indexedMatch returns the exact id set for leaf if a payload index can
// serve it directly, and ok=false otherwise (ValuesCount never has an
// index; Match/Range/Geo/Text fall back when no index was ever built for
// that path — i.e. the field has never been indexed).
func (e *Evaluator) indexedMatch(leaf *LeafPredicate) ([]string, bool) {
	switch leaf.Kind {
	case LeafMatch:
		switch v := leaf.MatchValue.(type) {
		case string:
			if idx, ok := e.Indexes.Keywords[leaf.Key]; ok {
				return fromSet(idx.Match(v)), true
			}
		case float64:
			if idx, ok := e.Indexes.Ints[leaf.Key]; ok {
				return fromSet(idx.Match(v)), true
			}
			if idx, ok := e.Indexes.Floats[leaf.Key]; ok {
				return fromSet(idx.Match(v)), true
			}
		}
		return nil, false

	case LeafRange:
		lo, loInc := rangeLowerBound(leaf)
		hi, hiInc := rangeUpperBound(leaf)
		if idx, ok := e.Indexes.Ints[leaf.Key]; ok {
			return idx.RangeIDs(lo, hi, loInc, hiInc), true
		}
		if idx, ok := e.Indexes.Floats[leaf.Key]; ok {
			return idx.RangeIDs(lo, hi, loInc, hiInc), true
		}
		return nil, false

	case LeafGeoBBox:
		if idx, ok := e.Indexes.Geos[leaf.Key]; ok {
			return idx.InBoundingBox(payload.GeoPoint{Lat: leaf.SWLat, Lon: leaf.SWLon}, payload.GeoPoint{Lat: leaf.NELat, Lon: leaf.NELon}), true
		}
		return nil, false

	case LeafGeoRadius:
		if idx, ok := e.Indexes.Geos[leaf.Key]; ok {
			return idx.WithinRadius(payload.GeoPoint{Lat: leaf.CenterLat, Lon: leaf.CenterLon}, leaf.RadiusMeters), true
		}
		return nil, false

	case LeafTextMatch:
		if idx, ok := e.Indexes.Texts[leaf.Key]; ok {
			return fromSet(idx.Match(leaf.Text, toPayloadMatchKind(leaf.TextKind))), true
		}
		return nil, false

	default:
		return nil, false
	}
}

func rangeLowerBound(leaf *LeafPredicate) (float64, bool) {
	if leaf.Gte != nil {
		return *leaf.Gte, true
	}
	if leaf.Gt != nil {
		return *leaf.Gt, false
	}
	return negInf, true
}

func rangeUpperBound(leaf *LeafPredicate) (float64, bool) {
	if leaf.Lte != nil {
		return *leaf.Lte, true
	}
	if leaf.Lt != nil {
		return *leaf.Lt, false
	}
	return posInf, true
}

const (
	negInf = -1e308
	posInf = 1e308
)

func toPayloadMatchKind(k TextKind) payload.MatchKind {
	switch k {
	case TextPrefix:
		return payload.Prefix
	case TextSuffix:
		return payload.Suffix
	case TextContains:
		return payload.Contains
	default:
		return payload.Exact
	}
}
