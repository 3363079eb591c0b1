// Package filter implements a recursive Must/Should/MustNot predicate
// tree, compiling indexable leaves against a payload.IndexSet and falling
// back to a payload scan for the rest. Grounded on pkg/search/filter.go's
// leaf predicates and the logical-combinator selectivity estimation in
// internal/filter/logical.go.
package filter

// RangeBound expresses one side of a Range predicate.
type RangeBound struct {
	Value     float64
	Inclusive bool
}

// CmpOp is the comparator for ValuesCount.
type CmpOp int

const (
	CmpEq CmpOp = iota
	CmpGt
	CmpGte
	CmpLt
	CmpLte
)

// Leaf identifies one of the six leaf predicate kinds.
type LeafKind int

const (
	LeafMatch LeafKind = iota
	LeafRange
	LeafGeoBBox
	LeafGeoRadius
	LeafValuesCount
	LeafTextMatch
)

// TextKind mirrors payload.MatchKind to avoid importing payload into every
// caller that only needs to build filter trees.
type TextKind int

const (
	TextExact TextKind = iota
	TextPrefix
	TextSuffix
	TextContains
)

// Node is either a leaf predicate or a Must/Should/MustNot combinator. Only
// one of the two groups of fields is populated: a non-nil Leaf makes the
// node a leaf, otherwise it is a combinator.
type Node struct {
	// Combinator fields.
	Must    []*Node
	Should  []*Node
	MustNot []*Node

	// Leaf fields, valid when Leaf is non-nil.
	Leaf *LeafPredicate
}

// LeafPredicate is a single field-level test.
type LeafPredicate struct {
	Kind LeafKind
	Key  string

	// LeafMatch
	MatchValue interface{}

	// LeafRange
	Gt, Gte, Lt, Lte *float64

	// LeafGeoBBox / LeafGeoRadius
	SWLat, SWLon, NELat, NELon float64
	CenterLat, CenterLon       float64
	RadiusMeters               float64

	// LeafValuesCount
	Cmp CmpOp
	N   int

	// LeafTextMatch
	Text     string
	TextKind TextKind
}

// IsCombinator reports whether n is a combinator node (Leaf is nil), even
// one with no clauses set.
func (n *Node) IsCombinator() bool {
	return n.Leaf == nil
}

// Must builds a Must (AND) combinator node.
func Must(children ...*Node) *Node { return &Node{Must: children} }

// Should builds a Should (OR) combinator node.
func Should(children ...*Node) *Node { return &Node{Should: children} }

// MustNot builds a MustNot (AND over negations) combinator node.
func MustNot(children ...*Node) *Node { return &Node{MustNot: children} }

// Match builds a Match(key, value) leaf.
func Match(key string, value interface{}) *Node {
	return &Node{Leaf: &LeafPredicate{Kind: LeafMatch, Key: key, MatchValue: value}}
}

// Range builds a Range(key, {gt,gte,lt,lte}) leaf.
func Range(key string, gt, gte, lt, lte *float64) *Node {
	return &Node{Leaf: &LeafPredicate{Kind: LeafRange, Key: key, Gt: gt, Gte: gte, Lt: lt, Lte: lte}}
}

// GeoBBox builds a GeoBBox(key, sw, ne) leaf.
func GeoBBox(key string, swLat, swLon, neLat, neLon float64) *Node {
	return &Node{Leaf: &LeafPredicate{Kind: LeafGeoBBox, Key: key, SWLat: swLat, SWLon: swLon, NELat: neLat, NELon: neLon}}
}

// GeoRadius builds a GeoRadius(key, center, meters) leaf.
func GeoRadius(key string, lat, lon, meters float64) *Node {
	return &Node{Leaf: &LeafPredicate{Kind: LeafGeoRadius, Key: key, CenterLat: lat, CenterLon: lon, RadiusMeters: meters}}
}

// ValuesCount builds a ValuesCount(key, cmp, n) leaf.
func ValuesCount(key string, cmp CmpOp, n int) *Node {
	return &Node{Leaf: &LeafPredicate{Kind: LeafValuesCount, Key: key, Cmp: cmp, N: n}}
}

// TextMatch builds a TextMatch(key, text, kind) leaf.
func TextMatch(key, text string, kind TextKind) *Node {
	return &Node{Leaf: &LeafPredicate{Kind: LeafTextMatch, Key: key, Text: text, TextKind: kind}}
}
