package payload

import "testing"

func TestResolvePathSimple(t *testing.T) {
	v := map[string]interface{}{"category": "news"}
	got := ResolvePath(v, "category")
	if len(got) != 1 || got[0] != "news" {
		t.Fatalf("ResolvePath = %v, want [news]", got)
	}
}

func TestResolvePathNested(t *testing.T) {
	v := map[string]interface{}{
		"meta": map[string]interface{}{"author": "ada"},
	}
	got := ResolvePath(v, "meta.author")
	if len(got) != 1 || got[0] != "ada" {
		t.Fatalf("ResolvePath = %v, want [ada]", got)
	}
}

func TestResolvePathArrayFanOut(t *testing.T) {
	v := map[string]interface{}{
		"tags": []interface{}{
			map[string]interface{}{"name": "a"},
			map[string]interface{}{"name": "b"},
		},
	}
	got := ResolvePath(v, "tags.name")
	if len(got) != 2 {
		t.Fatalf("expected 2 fan-out matches, got %v", got)
	}
}

func TestResolvePathMissing(t *testing.T) {
	v := map[string]interface{}{"category": "news"}
	got := ResolvePath(v, "nonexistent.nested")
	if got != nil {
		t.Fatalf("expected no matches, got %v", got)
	}
}
