package payload

// IndexSet is the per-collection set of field indexes keyed by dot path,
// the concrete structure the filter engine's planner pushes predicates
// into (spec §4.4/§4.5). Updates are synchronous with storage: a caller
// mutating the collection resolves the changed field's values and applies
// Index/Deindex before acknowledging the write.
type IndexSet struct {
	Keywords map[string]*KeywordIndex
	Ints     map[string]*NumericIndex
	Floats   map[string]*NumericIndex
	Geos     map[string]*GeoIndex
	Texts    map[string]*TextIndex
}

func NewIndexSet() *IndexSet {
	return &IndexSet{
		Keywords: make(map[string]*KeywordIndex),
		Ints:     make(map[string]*NumericIndex),
		Floats:   make(map[string]*NumericIndex),
		Geos:     make(map[string]*GeoIndex),
		Texts:    make(map[string]*TextIndex),
	}
}

func (s *IndexSet) keywordIndex(path string) *KeywordIndex {
	idx, ok := s.Keywords[path]
	if !ok {
		idx = NewKeywordIndex(true)
		s.Keywords[path] = idx
	}
	return idx
}

func (s *IndexSet) intIndex(path string) *NumericIndex {
	idx, ok := s.Ints[path]
	if !ok {
		idx = NewIntIndex()
		s.Ints[path] = idx
	}
	return idx
}

func (s *IndexSet) floatIndex(path string) *NumericIndex {
	idx, ok := s.Floats[path]
	if !ok {
		idx = NewFloatIndex()
		s.Floats[path] = idx
	}
	return idx
}

func (s *IndexSet) geoIndex(path string) *GeoIndex {
	idx, ok := s.Geos[path]
	if !ok {
		idx = NewGeoIndex()
		s.Geos[path] = idx
	}
	return idx
}

func (s *IndexSet) textIndex(path string) *TextIndex {
	idx, ok := s.Texts[path]
	if !ok {
		idx = NewTextIndex()
		s.Texts[path] = idx
	}
	return idx
}

// IndexPayload resolves every configured path against payload and inserts
// id into the matching index kinds, inferring the Go type of each resolved
// leaf value. Called once per insert/update after the WAL append commits
// (spec §4.4's "updates are synchronous with storage").
func (s *IndexSet) IndexPayload(id string, payload map[string]interface{}, paths []string) {
	for _, path := range paths {
		for _, leaf := range ResolvePath(payload, path) {
			s.indexLeaf(id, path, leaf)
		}
	}
}

func (s *IndexSet) indexLeaf(id, path string, leaf interface{}) {
	switch v := leaf.(type) {
	case string:
		s.keywordIndex(path).Add(id, v)
		s.textIndex(path).Add(id, v)
	case bool:
		s.keywordIndex(path).Add(id, boolToString(v))
	case int:
		s.intIndex(path).Add(id, float64(v))
	case int64:
		s.intIndex(path).Add(id, float64(v))
	case float64:
		if v == float64(int64(v)) {
			s.intIndex(path).Add(id, v)
		}
		s.floatIndex(path).Add(id, v)
	case map[string]interface{}:
		if lat, lon, ok := asGeoPoint(v); ok {
			s.geoIndex(path).Add(id, GeoPoint{Lat: lat, Lon: lon})
		}
	}
}

// DeindexPayload mirrors IndexPayload for removal/overwrite.
func (s *IndexSet) DeindexPayload(id string, payload map[string]interface{}, paths []string) {
	for _, path := range paths {
		for _, leaf := range ResolvePath(payload, path) {
			s.deindexLeaf(id, path, leaf)
		}
	}
	for _, idx := range s.Texts {
		idx.Remove(id)
	}
	for _, idx := range s.Geos {
		idx.Remove(id)
	}
}

func (s *IndexSet) deindexLeaf(id, path string, leaf interface{}) {
	switch v := leaf.(type) {
	case string:
		if idx, ok := s.Keywords[path]; ok {
			idx.Remove(id, v)
		}
	case bool:
		if idx, ok := s.Keywords[path]; ok {
			idx.Remove(id, boolToString(v))
		}
	case int:
		if idx, ok := s.Ints[path]; ok {
			idx.Remove(id, float64(v))
		}
	case int64:
		if idx, ok := s.Ints[path]; ok {
			idx.Remove(id, float64(v))
		}
	case float64:
		if idx, ok := s.Ints[path]; ok {
			idx.Remove(id, v)
		}
		if idx, ok := s.Floats[path]; ok {
			idx.Remove(id, v)
		}
	}
}

func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func asGeoPoint(v map[string]interface{}) (float64, float64, bool) {
	lat, latOk := v["lat"].(float64)
	lon, lonOk := v["lon"].(float64)
	return lat, lon, latOk && lonOk
}
