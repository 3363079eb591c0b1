package collection

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vectorizer-db/vectorizer/pkg/distance"
	"github.com/vectorizer-db/vectorizer/pkg/filter"
)

// SearchParams lets a caller override per-query defaults, per spec §4.8:
// "params may override ef_search, enable quantized first-pass, request
// with_payload/with_vector".
type SearchParams struct {
	EfSearch              int
	RerankFactor          int // 0 uses the collection's configured default
	Filter                *filter.Node
	UseQuantizedFirstPass bool
	WithPayload           bool
	WithVector            bool
}

// SearchHit is one ranked result.
type SearchHit struct {
	ID      string
	Score   float32
	Payload map[string]interface{}
	Vector  []float32
}

const maxFilterRetries = 3

// Search returns the top-k hits for query, ordered by the collection's
// metric (cosine/dot: descending; L2: ascending), per spec §4.8. It runs
// HNSW (or, when a trained codebook is configured and requested, a
// quantized first pass) candidate generation, exact-reranks candidates on
// raw vectors, then applies the filter as a post-filter mask — the §2 query
// pipeline's order exactly.
func (c *Collection) Search(query []float32, k int, params SearchParams) ([]SearchHit, error) {
	if len(query) != c.cfg.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, c.cfg.Dimension, len(query))
	}
	if k <= 0 {
		return nil, nil
	}

	c.mu.RLock()
	st := c.state
	c.mu.RUnlock()
	if !queryEligible(st) {
		return nil, fmt.Errorf("%w: state %s", ErrUnavailable, st)
	}

	rerank := params.RerankFactor
	if rerank <= 0 {
		rerank = c.cfg.RerankFactor
	}
	efSearch := params.EfSearch
	if efSearch <= 0 {
		efSearch = c.cfg.EfSearch
	}

	var filterSet map[string]struct{}
	if params.Filter != nil {
		filterSet = toSet(c.eval.Evaluate(params.Filter))
	}

	candidateK := k * rerank
	for attempt := 0; attempt <= maxFilterRetries; attempt++ {
		hits, err := c.rankCandidates(query, candidateK, efSearch, params.UseQuantizedFirstPass)
		if err != nil {
			return nil, err
		}
		if filterSet != nil {
			hits = filterHits(hits, filterSet)
		}
		if len(hits) >= k || attempt == maxFilterRetries {
			if len(hits) < k && filterSet != nil {
				// Exhausted the retry ladder: fall back to an exact scan
				// restricted to the filter's own candidate set, which is
				// always correct even if the approximate graph search
				// under-recalled it.
				exact, err := c.exactFilteredScan(query, filterSet)
				if err != nil {
					return nil, err
				}
				hits = exact
			}
			if len(hits) > k {
				hits = hits[:k]
			}
			return c.populate(hits, params), nil
		}
		candidateK *= 4
		efSearch *= 4
	}
	return nil, fmt.Errorf("%w: search retry ladder exhausted", ErrInvariant)
}

// rankCandidates produces an exact-reranked, metric-ordered candidate list
// of size up to candidateK. When useQuantized is set and a codebook is
// trained it sources candidates from a quantized asymmetric-distance pass
// over every stored code (a linear scan, not a graph traversal — the
// collection has no quantization-aware HNSW variant, see DESIGN.md);
// otherwise candidates come from the HNSW graph directly.
func (c *Collection) rankCandidates(query []float32, candidateK, efSearch int, useQuantized bool) ([]SearchHit, error) {
	metricFunc := distance.ForMetric(c.cfg.Metric)

	var internalIDs []uint64
	if useQuantized {
		ids, ok := c.quantizedFirstPass(query, candidateK)
		if ok {
			internalIDs = ids
		}
	}
	if internalIDs == nil {
		result, err := c.index.Search(query, candidateK, efSearch)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvariant, err)
		}
		for _, r := range result.Results {
			internalIDs = append(internalIDs, r.ID)
		}
	}

	c.mu.RLock()
	ids := make([]string, 0, len(internalIDs))
	for _, internalID := range internalIDs {
		if id, ok := c.internalToID[internalID]; ok {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()

	hits := make([]SearchHit, 0, len(ids))
	for _, id := range ids {
		v, ok := c.storage.Get(id)
		if !ok {
			continue
		}
		hits = append(hits, SearchHit{ID: id, Score: metricFunc(query, v.Data)})
	}

	c.sortHitsByMetric(hits, c.cfg.Metric)
	return hits, nil
}

func filterHits(hits []SearchHit, filterSet map[string]struct{}) []SearchHit {
	out := hits[:0:0]
	for _, h := range hits {
		if _, ok := filterSet[h.ID]; ok {
			out = append(out, h)
		}
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// exactFilteredScan brute-force scores every id in filterSet — always
// correct, used only as the last rung of the retry ladder.
func (c *Collection) exactFilteredScan(query []float32, filterSet map[string]struct{}) ([]SearchHit, error) {
	metricFunc := distance.ForMetric(c.cfg.Metric)
	hits := make([]SearchHit, 0, len(filterSet))
	for id := range filterSet {
		v, ok := c.storage.Get(id)
		if !ok {
			continue
		}
		hits = append(hits, SearchHit{ID: id, Score: metricFunc(query, v.Data)})
	}
	c.sortHitsByMetric(hits, c.cfg.Metric)
	return hits, nil
}

// sortHitsByMetric orders hits by score, breaking ties by insertion order
// ascending (the internal id assignInternalID handed out at Insert time) so
// results are reproducible regardless of the map-iteration order hits were
// collected in.
func (c *Collection) sortHitsByMetric(hits []SearchHit, metric distance.Metric) {
	c.mu.RLock()
	rank := make(map[string]uint64, len(hits))
	for _, h := range hits {
		if internalID, ok := c.idToInternal[h.ID]; ok {
			rank[h.ID] = internalID
		}
	}
	c.mu.RUnlock()

	better := func(a, b float32) bool { return a > b }
	if !metric.HigherIsBetter() {
		better = func(a, b float32) bool { return a < b }
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return better(hits[i].Score, hits[j].Score)
		}
		return rank[hits[i].ID] < rank[hits[j].ID]
	})
}

func (c *Collection) populate(hits []SearchHit, params SearchParams) []SearchHit {
	if !params.WithPayload && !params.WithVector {
		return hits
	}
	for i := range hits {
		if params.WithPayload {
			if pl, ok := c.getPayload(hits[i].ID); ok {
				hits[i].Payload = pl
			}
		}
		if params.WithVector {
			if v, _, err := c.Get(hits[i].ID); err == nil {
				hits[i].Vector = v
			}
		}
	}
	return hits
}

// SearchBatch runs Search for every query concurrently, mirroring
// hnsw.BatchInsert's bounded worker-pool shape.
func (c *Collection) SearchBatch(queries [][]float32, k int, params SearchParams) ([][]SearchHit, []error) {
	results := make([][]SearchHit, len(queries))
	errs := make([]error, len(queries))

	const workers = 8
	var wg sync.WaitGroup
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = c.Search(queries[i], k, params)
			}
		}()
	}
	for i := range queries {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results, errs
}
