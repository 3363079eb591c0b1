package hybrid

import "testing"

// TestReciprocalRankFusionOrdersByCombinedRank exercises spec §4.9's
// Scenario E: dense [(x,0.9),(y,0.8),(z,0.7)], sparse [(y,3.1),(w,2.0),(x,1.5)].
// y (ranked in both lists, with the top sparse rank) comes first; x (ranked
// in both) comes second; z and w each appear in exactly one list.
func TestReciprocalRankFusionOrdersByCombinedRank(t *testing.T) {
	dense := []Result{{"x", 0.9}, {"y", 0.8}, {"z", 0.7}}
	sparse := []Result{{"y", 3.1}, {"w", 2.0}, {"x", 1.5}}

	fused := ReciprocalRankFusion(dense, sparse, 60, 4)
	if len(fused) != 4 {
		t.Fatalf("got %d results, want 4", len(fused))
	}
	if fused[0].ID != "y" {
		t.Errorf("rank 1 = %s, want y", fused[0].ID)
	}
	if fused[1].ID != "x" {
		t.Errorf("rank 2 = %s, want x", fused[1].ID)
	}
	// z and w each contribute from a single list; both trail y and x.
	tail := map[string]bool{fused[2].ID: true, fused[3].ID: true}
	if !tail["z"] || !tail["w"] {
		t.Errorf("tail = %v, want {z,w}", []string{fused[2].ID, fused[3].ID})
	}
}

// TestReciprocalRankFusionTieBreaksByDenseRankThenInsertion directly
// exercises spec §4.9's tie-break rule ("dense rank wins, then insertion
// order") using two ids engineered to land on an exact score tie.
func TestReciprocalRankFusionTieBreaksByDenseRankThenInsertion(t *testing.T) {
	dense := []Result{{"a", 1.0}, {"b", 0.9}}
	sparse := []Result{{"c", 1.0}, {"d", 0.9}}

	fused := ReciprocalRankFusion(dense, sparse, 60, 0)
	// a: dense rank 1 -> 1/61. c: sparse rank 1 -> 1/61. Exact tie; a has a
	// dense rank (1) and c does not (0, sorts last), so a wins.
	if fused[0].ID != "a" {
		t.Fatalf("first place = %s, want a (tie broken in favor of a real dense rank)", fused[0].ID)
	}
}

func TestWeightedNormalizedPrefersHigherAlphaTowardDense(t *testing.T) {
	dense := []Result{{"x", 10}, {"y", 0}}
	sparse := []Result{{"x", 0}, {"y", 10}}

	denseLeaning := WeightedNormalized(dense, sparse, 0.9, 0)
	if denseLeaning[0].ID != "x" {
		t.Errorf("alpha=0.9 top = %s, want x", denseLeaning[0].ID)
	}

	sparseLeaning := WeightedNormalized(dense, sparse, 0.1, 0)
	if sparseLeaning[0].ID != "y" {
		t.Errorf("alpha=0.1 top = %s, want y", sparseLeaning[0].ID)
	}
}

func TestAlphaBlendCombinesRawScoresWithoutNormalizing(t *testing.T) {
	dense := []Result{{"x", 0.8}}
	sparse := []Result{{"x", 0.4}}

	fused := AlphaBlend(dense, sparse, 0.5, 0)
	if len(fused) != 1 {
		t.Fatalf("got %d results, want 1", len(fused))
	}
	want := 0.5*0.8 + 0.5*0.4
	if diff := fused[0].Score - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("score = %v, want %v", fused[0].Score, want)
	}
}

func TestFusionHandlesEmptyList(t *testing.T) {
	dense := []Result{{"x", 1.0}, {"y", 0.5}}
	fused := ReciprocalRankFusion(dense, nil, 60, 0)
	if len(fused) != 2 {
		t.Fatalf("got %d results, want 2", len(fused))
	}
	if fused[0].ID != "x" {
		t.Errorf("top = %s, want x", fused[0].ID)
	}
}
