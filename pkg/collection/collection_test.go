package collection

import (
	"errors"
	"os"
	"testing"

	"github.com/vectorizer-db/vectorizer/pkg/distance"
	"github.com/vectorizer-db/vectorizer/pkg/filter"
	"github.com/vectorizer-db/vectorizer/pkg/wal"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "vectorizer-collection-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func newTestCollection(t *testing.T, dim int) *Collection {
	t.Helper()
	c, err := New(Config{
		Name:      "test",
		Dimension: dim,
		Metric:    distance.Cosine,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// A collection configured with a tight write admission rate rejects
// inserts past its burst allowance with ErrWriteQueueFull rather than
// blocking or silently dropping them.
func TestInsertRejectsOverWriteLimitWithErrWriteQueueFull(t *testing.T) {
	c, err := New(Config{
		Name:                "test",
		Dimension:           2,
		Metric:              distance.Cosine,
		WriteLimitPerSecond: 1,
		WriteBurst:          1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.Insert("a", []float32{1, 0}, nil); err != nil {
		t.Fatalf("first insert within burst: %v", err)
	}
	if err := c.Insert("b", []float32{0, 1}, nil); !errors.Is(err, ErrWriteQueueFull) {
		t.Fatalf("expected ErrWriteQueueFull, got %v", err)
	}
}

// Scenario A: exact search on a small collection returns the nearest
// neighbor by cosine similarity.
func TestSearchSmallIndexExact(t *testing.T) {
	c := newTestCollection(t, 3)
	vectors := map[string][]float32{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
		"c": {0, 0, 1},
		"d": {0.9, 0.1, 0},
	}
	for id, v := range vectors {
		if err := c.Insert(id, v, nil); err != nil {
			t.Fatalf("Insert %s: %v", id, err)
		}
	}

	hits, err := c.Search([]float32{1, 0, 0}, 2, SearchParams{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ID != "a" {
		t.Errorf("top hit = %s, want a", hits[0].ID)
	}
	if hits[1].ID != "d" {
		t.Errorf("second hit = %s, want d", hits[1].ID)
	}
}

// Scenario B: deleting an id twice is an error, and the tombstoned id is
// excluded from subsequent search results.
func TestDeleteTombstoneThenDoubleDeleteErrors(t *testing.T) {
	c := newTestCollection(t, 2)
	if err := c.Insert("x", []float32{1, 1}, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := c.Insert("y", []float32{1, 0}, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := c.Delete("x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete("x"); err == nil {
		t.Fatal("expected error on double delete, got nil")
	}

	hits, err := c.Search([]float32{1, 1}, 5, SearchParams{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, h := range hits {
		if h.ID == "x" {
			t.Errorf("tombstoned id %q returned by search", h.ID)
		}
	}
}

// Scenario C: a filter combined with a large collection still returns
// correct, filter-satisfying results via the retry/exact-scan ladder.
func TestSearchWithFilterReturnsOnlyMatches(t *testing.T) {
	c, err := New(Config{
		Name:              "filtered",
		Dimension:         4,
		Metric:            distance.Cosine,
		PayloadIndexPaths: []string{"city", "score"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 1000; i++ {
		city := "paris"
		if i%3 != 0 {
			city = "berlin"
		}
		score := i % 1000
		vec := []float32{float32(i % 7), float32(i % 5), float32(i % 3), float32(i % 2)}
		pl := map[string]interface{}{"city": city, "score": float64(score)}
		if err := c.Insert(idFor(i), vec, pl); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	gte := 500.0
	f := filter.Must(
		filter.Match("city", "paris"),
		filter.Range("score", nil, &gte, nil, nil),
	)

	hits, err := c.Search([]float32{1, 1, 1, 1}, 10, SearchParams{Filter: f})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, h := range hits {
		pl, ok := c.getPayload(h.ID)
		if !ok {
			t.Fatalf("payload missing for %s", h.ID)
		}
		if pl["city"] != "paris" {
			t.Errorf("hit %s city = %v, want paris", h.ID, pl["city"])
		}
		if score, _ := pl["score"].(float64); score < 500 {
			t.Errorf("hit %s score = %v, want >= 500", h.ID, score)
		}
	}
}

// Scenario D: a crash between inserts and the next checkpoint is recovered
// entirely from the WAL on reopen.
func TestWALCrashRecovery(t *testing.T) {
	dir := tempDir(t)
	walDir := dir + "/wal"

	cfg := Config{
		Name:      "recover",
		Dimension: 2,
		Metric:    distance.L2,
		WALDir:    walDir,
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 100; i++ {
		if err := c.Insert(idFor(i), []float32{float32(i), 0}, nil); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	for i := 100; i < 150; i++ {
		if err := c.Insert(idFor(i), []float32{float32(i), 0}, nil); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	// Simulate a crash: no Close(), WAL file left exactly as the last
	// successful Append flushed it.
	if err := c.wal.Close(); err != nil {
		t.Fatalf("closing wal handle to unlock segment file: %v", err)
	}

	reopened, err := Open(cfg, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	if reopened.Len() != 150 {
		t.Fatalf("Len() = %d, want 150", reopened.Len())
	}

	hits, err := reopened.Search([]float32{149, 0}, 1, SearchParams{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != idFor(149) {
		t.Fatalf("top hit after recovery = %+v, want id149", hits)
	}
}

// Replaying the same WAL segments twice (e.g. two Opens over the same
// directory with no snapshot cursor advancing between them) must converge
// to the same state: a re-observed Insert falls back to an update rather
// than failing with ErrDuplicateID, and a re-observed Delete on an id
// already removed by the first replay is a no-op rather than ErrNotFound.
func TestReplayFromIsIdempotentAcrossRepeatedSegments(t *testing.T) {
	dir := tempDir(t)
	walDir := dir + "/wal"

	cfg := Config{
		Name:      "replay-idempotent",
		Dimension: 2,
		Metric:    distance.L2,
		WALDir:    walDir,
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := c.Insert(idFor(i), []float32{float32(i), 0}, nil); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	if err := c.Delete(idFor(3)); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.wal.Close(); err != nil {
		t.Fatalf("closing wal handle: %v", err)
	}

	first, err := Open(cfg, "")
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := first.replayFrom(wal.NoCursor); err != nil {
		t.Fatalf("replaying the same segments a second time: %v", err)
	}
	defer first.Close()

	if first.Len() != 9 {
		t.Fatalf("Len() after double replay = %d, want 9", first.Len())
	}
	if _, _, err := first.Get(idFor(3)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(id3) after double replay: expected ErrNotFound, got %v", err)
	}
	for i := 0; i < 10; i++ {
		if i == 3 {
			continue
		}
		if _, _, err := first.Get(idFor(i)); err != nil {
			t.Fatalf("Get(%s) after double replay: %v", idFor(i), err)
		}
	}
}

func idFor(i int) string {
	const alphabet = "0123456789"
	if i == 0 {
		return "id0"
	}
	digits := make([]byte, 0, 4)
	for i > 0 {
		digits = append([]byte{alphabet[i%10]}, digits...)
		i /= 10
	}
	return "id" + string(digits)
}
