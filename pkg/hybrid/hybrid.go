// Package hybrid fuses a dense (vector) and a sparse (keyword/BM25) result
// list into one ranked list, per spec §4.9. Grounded on
// pkg/search/hybrid.go's HybridSearch.reciprocalRankFusion and
// weightedCombination, generalized from their fixed vectorIndex/textIndex
// coupling to plain (id, score) lists so the fusion algorithms don't need
// to know where either list came from.
package hybrid

import "sort"

// Result is one ranked (id, score) pair from a single-modality search,
// already locally top-k'.
type Result struct {
	ID    string
	Score float64
}

// Fused is one entry in a fusion's combined output.
type Fused struct {
	ID         string
	Score      float64
	DenseRank  int // 1-based; 0 if id absent from the dense list
	SparseRank int // 1-based; 0 if id absent from the sparse list
}

func rankOf(results []Result) (map[string]int, map[string]float64, map[string]int) {
	ranks := make(map[string]int, len(results))
	scores := make(map[string]float64, len(results))
	order := make(map[string]int, len(results))
	for i, r := range results {
		ranks[r.ID] = i + 1
		scores[r.ID] = r.Score
		order[r.ID] = i
	}
	return ranks, scores, order
}

func unionIDs(dense, sparse []Result) []string {
	seen := make(map[string]struct{}, len(dense)+len(sparse))
	var ids []string
	for _, r := range dense {
		if _, ok := seen[r.ID]; !ok {
			seen[r.ID] = struct{}{}
			ids = append(ids, r.ID)
		}
	}
	for _, r := range sparse {
		if _, ok := seen[r.ID]; !ok {
			seen[r.ID] = struct{}{}
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// sortFused orders descending by score; ties broken by dense rank (lower
// wins, 0 meaning "absent" sorts last), then by original insertion order —
// spec §4.9: "Ties: dense rank wins, then insertion order."
func sortFused(results []Fused, insertionOrder map[string]int) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ar, br := a.DenseRank, b.DenseRank
		if ar == 0 {
			ar = 1 << 30
		}
		if br == 0 {
			br = 1 << 30
		}
		if ar != br {
			return ar < br
		}
		return insertionOrder[a.ID] < insertionOrder[b.ID]
	})
}

func buildInsertionOrder(dense, sparse []Result) map[string]int {
	order := make(map[string]int, len(dense)+len(sparse))
	i := 0
	for _, r := range dense {
		if _, ok := order[r.ID]; !ok {
			order[r.ID] = i
			i++
		}
	}
	for _, r := range sparse {
		if _, ok := order[r.ID]; !ok {
			order[r.ID] = i
			i++
		}
	}
	return order
}

// ReciprocalRankFusion computes score(id) = Σ 1/(c + rank(id)) across
// whichever of the dense/sparse lists id appears in. c defaults to 60 when
// <= 0, the conventional RRF constant.
func ReciprocalRankFusion(dense, sparse []Result, c int, topK int) []Fused {
	if c <= 0 {
		c = 60
	}
	denseRanks, _, _ := rankOf(dense)
	sparseRanks, _, _ := rankOf(sparse)
	insertionOrder := buildInsertionOrder(dense, sparse)

	var out []Fused
	for _, id := range unionIDs(dense, sparse) {
		var score float64
		dr := denseRanks[id]
		sr := sparseRanks[id]
		if dr > 0 {
			score += 1.0 / float64(c+dr)
		}
		if sr > 0 {
			score += 1.0 / float64(c+sr)
		}
		out = append(out, Fused{ID: id, Score: score, DenseRank: dr, SparseRank: sr})
	}

	sortFused(out, insertionOrder)
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// WeightedNormalized min-max normalizes each list to [0,1] then combines
// score = alpha*norm_d + (1-alpha)*norm_s. An id absent from a list
// contributes 0 for that list's term.
func WeightedNormalized(dense, sparse []Result, alpha float64, topK int) []Fused {
	denseRanks, denseScores, _ := rankOf(dense)
	sparseRanks, sparseScores, _ := rankOf(sparse)
	insertionOrder := buildInsertionOrder(dense, sparse)

	normD := minMaxNormalize(denseScores)
	normS := minMaxNormalize(sparseScores)

	var out []Fused
	for _, id := range unionIDs(dense, sparse) {
		score := alpha*normD[id] + (1-alpha)*normS[id]
		out = append(out, Fused{ID: id, Score: score, DenseRank: denseRanks[id], SparseRank: sparseRanks[id]})
	}

	sortFused(out, insertionOrder)
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// AlphaBlend combines raw scores directly: score = alpha*score_d +
// (1-alpha)*score_s, with no normalization — for callers whose dense/sparse
// scores are already on compatible ranges (e.g. both cosine similarities).
func AlphaBlend(dense, sparse []Result, alpha float64, topK int) []Fused {
	denseRanks, denseScores, _ := rankOf(dense)
	sparseRanks, sparseScores, _ := rankOf(sparse)
	insertionOrder := buildInsertionOrder(dense, sparse)

	var out []Fused
	for _, id := range unionIDs(dense, sparse) {
		score := alpha*denseScores[id] + (1-alpha)*sparseScores[id]
		out = append(out, Fused{ID: id, Score: score, DenseRank: denseRanks[id], SparseRank: sparseRanks[id]})
	}

	sortFused(out, insertionOrder)
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

func minMaxNormalize(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return map[string]float64{}
	}
	min, max := minMax(scores)
	norm := make(map[string]float64, len(scores))
	if max == min {
		for id := range scores {
			norm[id] = 1.0
		}
		return norm
	}
	for id, s := range scores {
		norm[id] = (s - min) / (max - min)
	}
	return norm
}

func minMax(scores map[string]float64) (float64, float64) {
	first := true
	var min, max float64
	for _, s := range scores {
		if first {
			min, max = s, s
			first = false
			continue
		}
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return min, max
}
