package payload

import "strings"

// TextIndex holds a tokenized, case-folded multiset per id and supports
// exact/prefix/suffix/contains matching, per spec §4.4.
type TextIndex struct {
	tokensByID map[string][]string
	postings   map[string]map[string]struct{} // token -> ids
}

func NewTextIndex() *TextIndex {
	return &TextIndex{
		tokensByID: make(map[string][]string),
		postings:   make(map[string]map[string]struct{}),
	}
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}

func (t *TextIndex) Add(id string, text string) {
	tokens := tokenize(text)
	t.tokensByID[id] = append(t.tokensByID[id], tokens...)
	for _, tok := range tokens {
		set, ok := t.postings[tok]
		if !ok {
			set = make(map[string]struct{})
			t.postings[tok] = set
		}
		set[id] = struct{}{}
	}
}

func (t *TextIndex) Remove(id string) {
	for _, tok := range t.tokensByID[id] {
		if set, ok := t.postings[tok]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(t.postings, tok)
			}
		}
	}
	delete(t.tokensByID, id)
}

// MatchKind selects how TextMatch compares against an id's token set.
type MatchKind int

const (
	Exact MatchKind = iota
	Prefix
	Suffix
	Contains
)

// Match returns ids whose token set satisfies kind against text (folded and
// tokenized the same way as Add).
func (t *TextIndex) Match(text string, kind MatchKind) map[string]struct{} {
	needle := strings.ToLower(text)
	out := make(map[string]struct{})

	switch kind {
	case Exact:
		if set, ok := t.postings[needle]; ok {
			for id := range set {
				out[id] = struct{}{}
			}
		}
		return out
	default:
		for tok, set := range t.postings {
			matched := false
			switch kind {
			case Prefix:
				matched = strings.HasPrefix(tok, needle)
			case Suffix:
				matched = strings.HasSuffix(tok, needle)
			case Contains:
				matched = strings.Contains(tok, needle)
			}
			if matched {
				for id := range set {
					out[id] = struct{}{}
				}
			}
		}
		return out
	}
}
