package filter

import (
	"strings"

	"github.com/vectorizer-db/vectorizer/pkg/payload"
)

// matchNode evaluates the full tree directly against a resolved payload,
// independent of any index. Must = AND, Should = OR (vacuously true if
// empty), MustNot = AND over negations, always evaluated last as a
// post-filter per spec §4.5.
func (e *Evaluator) matchNode(node *Node, p map[string]interface{}) bool {
	if node.Leaf != nil {
		return matchLeaf(node.Leaf, p)
	}
	for _, child := range node.Must {
		if !e.matchNode(child, p) {
			return false
		}
	}
	if len(node.Should) > 0 {
		any := false
		for _, child := range node.Should {
			if e.matchNode(child, p) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	for _, child := range node.MustNot {
		if e.matchNode(child, p) {
			return false
		}
	}
	return true
}

func matchLeaf(leaf *LeafPredicate, p map[string]interface{}) bool {
	switch leaf.Kind {
	case LeafMatch:
		for _, v := range payload.ResolvePath(p, leaf.Key) {
			if valuesEqual(v, leaf.MatchValue) {
				return true
			}
		}
		return false

	case LeafRange:
		for _, v := range payload.ResolvePath(p, leaf.Key) {
			n, ok := toFloat64(v)
			if !ok {
				continue
			}
			if inRange(n, leaf) {
				return true
			}
		}
		return false

	case LeafGeoBBox:
		for _, v := range payload.ResolvePath(p, leaf.Key) {
			pt, ok := toGeoPoint(v)
			if !ok {
				continue
			}
			if pt.Lat >= leaf.SWLat && pt.Lat <= leaf.NELat && pt.Lon >= leaf.SWLon && pt.Lon <= leaf.NELon {
				return true
			}
		}
		return false

	case LeafGeoRadius:
		for _, v := range payload.ResolvePath(p, leaf.Key) {
			pt, ok := toGeoPoint(v)
			if !ok {
				continue
			}
			center := payload.GeoPoint{Lat: leaf.CenterLat, Lon: leaf.CenterLon}
			if payload.HaversineMeters(center, pt) <= leaf.RadiusMeters {
				return true
			}
		}
		return false

	case LeafValuesCount:
		values := payload.ResolvePath(p, leaf.Key)
		return compareCount(len(values), leaf.Cmp, leaf.N)

	case LeafTextMatch:
		for _, v := range payload.ResolvePath(p, leaf.Key) {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if textMatches(strings.ToLower(s), strings.ToLower(leaf.Text), leaf.TextKind) {
				return true
			}
		}
		return false

	default:
		return false
	}
}

func inRange(n float64, leaf *LeafPredicate) bool {
	if leaf.Gt != nil && n <= *leaf.Gt {
		return false
	}
	if leaf.Gte != nil && n < *leaf.Gte {
		return false
	}
	if leaf.Lt != nil && n >= *leaf.Lt {
		return false
	}
	if leaf.Lte != nil && n > *leaf.Lte {
		return false
	}
	return true
}

func compareCount(got int, cmp CmpOp, want int) bool {
	switch cmp {
	case CmpEq:
		return got == want
	case CmpGt:
		return got > want
	case CmpGte:
		return got >= want
	case CmpLt:
		return got < want
	case CmpLte:
		return got <= want
	default:
		return false
	}
}

func textMatches(token, needle string, kind TextKind) bool {
	switch kind {
	case TextPrefix:
		return strings.HasPrefix(token, needle)
	case TextSuffix:
		return strings.HasSuffix(token, needle)
	case TextContains:
		return strings.Contains(token, needle)
	default:
		return token == needle
	}
}

func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toFloat64(a); aok {
		if bf, bok := toFloat64(b); bok {
			return af == bf
		}
	}
	return a == b
}

func toFloat64(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func toGeoPoint(v interface{}) (payload.GeoPoint, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return payload.GeoPoint{}, false
	}
	lat, latOk := toFloat64(m["lat"])
	lon, lonOk := toFloat64(m["lon"])
	if !latOk || !lonOk {
		return payload.GeoPoint{}, false
	}
	return payload.GeoPoint{Lat: lat, Lon: lon}, true
}
