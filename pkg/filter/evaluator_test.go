package filter

import (
	"testing"

	"github.com/vectorizer-db/vectorizer/pkg/payload"
)

func newFixture() (*Evaluator, map[string]map[string]interface{}) {
	docs := map[string]map[string]interface{}{
		"1": {"category": "news", "views": 10.0},
		"2": {"category": "news", "views": 100.0},
		"3": {"category": "blog", "views": 5.0},
		"4": {"category": "blog", "views": 200.0},
	}
	idx := payload.NewIndexSet()
	for id, p := range docs {
		idx.IndexPayload(id, p, []string{"category", "views"})
	}
	ev := &Evaluator{
		Indexes: idx,
		AllIDs: func() []string {
			ids := make([]string, 0, len(docs))
			for id := range docs {
				ids = append(ids, id)
			}
			return ids
		},
		GetPayload: func(id string) (map[string]interface{}, bool) {
			p, ok := docs[id]
			return p, ok
		},
	}
	return ev, docs
}

func TestEvaluatorMustMatchAndRange(t *testing.T) {
	ev, _ := newFixture()
	gte := 50.0
	node := Must(Match("category", "news"), Range("views", nil, &gte, nil, nil))
	got := ev.Evaluate(node)
	if len(got) != 1 || got[0] != "2" {
		t.Fatalf("expected [2], got %v", got)
	}
}

func TestEvaluatorShouldUnion(t *testing.T) {
	ev, _ := newFixture()
	node := Should(Match("category", "news"), Match("category", "blog"))
	got := ev.Evaluate(node)
	if len(got) != 4 {
		t.Fatalf("expected all 4 docs, got %v", got)
	}
}

func TestEvaluatorMustNotPostFilter(t *testing.T) {
	ev, _ := newFixture()
	node := &Node{
		Must:    []*Node{Match("category", "news")},
		MustNot: []*Node{Match("views", 10.0)},
	}
	got := ev.Evaluate(node)
	if len(got) != 1 || got[0] != "2" {
		t.Fatalf("expected [2], got %v", got)
	}
}

func TestEvaluatorValuesCountAlwaysScans(t *testing.T) {
	ev, docs := newFixture()
	docs["1"]["tags"] = []interface{}{"a", "b", "c"}
	node := Must(ValuesCount("tags", CmpGte, 2))
	got := ev.Evaluate(node)
	if len(got) != 1 || got[0] != "1" {
		t.Fatalf("expected [1], got %v", got)
	}
}

// TestEvaluatorDoesNotMaterializeFullCollection grounds spec §4.5's
// requirement that an indexable Must clause avoids a full AllIDs scan.
func TestEvaluatorDoesNotMaterializeFullCollection(t *testing.T) {
	ev, _ := newFixture()
	allIDsCalled := false
	ev.AllIDs = func() []string {
		allIDsCalled = true
		return nil
	}
	node := Must(Match("category", "news"))
	ev.Evaluate(node)
	if allIDsCalled {
		t.Error("expected indexable Must clause to avoid materializing the full collection")
	}
}

func TestEvaluatorNoMatches(t *testing.T) {
	ev, _ := newFixture()
	node := Must(Match("category", "sports"))
	got := ev.Evaluate(node)
	if len(got) != 0 {
		t.Fatalf("expected no matches, got %v", got)
	}
}
