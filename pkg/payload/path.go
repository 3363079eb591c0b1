// Package payload implements per-field indexes over collection payloads:
// keyword, integer, float, geo, and text indexes, keyed by dot-path into
// the payload's nested JSON-like structure. Grounded on
// pkg/search/filter.go's comparison/geo helpers, generalized from ad-hoc
// metadata matching into standing indexes the filter engine can push
// predicates down to.
package payload

import "strings"

// ResolvePath splits key on "." and walks v, fanning out across arrays:
// at an array segment, every element is matched independently and results
// are unioned (spec §4.4 "if it is an array, fan out"). A missing path at
// any segment yields no matches for that branch.
func ResolvePath(v interface{}, key string) []interface{} {
	segments := strings.Split(key, ".")
	return resolveSegments([]interface{}{v}, segments)
}

func resolveSegments(values []interface{}, segments []string) []interface{} {
	if len(segments) == 0 {
		// A terminal array fans out too: each element is one value.
		var out []interface{}
		for _, v := range values {
			if arr, ok := v.([]interface{}); ok {
				out = append(out, arr...)
			} else {
				out = append(out, v)
			}
		}
		return out
	}
	seg := segments[0]
	rest := segments[1:]

	var next []interface{}
	for _, v := range values {
		next = append(next, stepInto(v, seg)...)
	}
	if len(next) == 0 {
		return nil
	}
	return resolveSegments(next, rest)
}

// stepInto resolves a single path segment against v, fanning out over
// arrays transparently (the array itself is never a valid path endpoint
// unless the remaining segment matches each element).
func stepInto(v interface{}, seg string) []interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		if fv, ok := t[seg]; ok {
			return []interface{}{fv}
		}
		return nil
	case []interface{}:
		var out []interface{}
		for _, elem := range t {
			out = append(out, stepInto(elem, seg)...)
		}
		return out
	default:
		return nil
	}
}
