package payload

// KeywordIndex maps a field's string values to the set of vector ids that
// carry them. Grounded on the equality-filter matching in
// pkg/search/filter.go, lifted into a standing index instead of per-query
// linear scan.
type KeywordIndex struct {
	CaseFold bool
	byValue  map[string]map[string]struct{}
}

// NewKeywordIndex creates an empty keyword index. When caseFold is true,
// values are lower-cased before indexing and lookup.
func NewKeywordIndex(caseFold bool) *KeywordIndex {
	return &KeywordIndex{CaseFold: caseFold, byValue: make(map[string]map[string]struct{})}
}

func (k *KeywordIndex) normalize(s string) string {
	if k.CaseFold {
		return foldCase(s)
	}
	return s
}

// Add indexes id under value.
func (k *KeywordIndex) Add(id string, value string) {
	v := k.normalize(value)
	set, ok := k.byValue[v]
	if !ok {
		set = make(map[string]struct{})
		k.byValue[v] = set
	}
	set[id] = struct{}{}
}

// Remove un-indexes id under value.
func (k *KeywordIndex) Remove(id string, value string) {
	v := k.normalize(value)
	if set, ok := k.byValue[v]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(k.byValue, v)
		}
	}
}

// Match returns the set of ids whose indexed value equals value.
func (k *KeywordIndex) Match(value string) map[string]struct{} {
	return k.byValue[k.normalize(value)]
}

// Cardinality returns the number of distinct values (used by the filter
// planner's cost estimation).
func (k *KeywordIndex) Cardinality() int { return len(k.byValue) }

func foldCase(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'A' && r <= 'Z' {
			out[i] = r + ('a' - 'A')
		}
	}
	return string(out)
}
