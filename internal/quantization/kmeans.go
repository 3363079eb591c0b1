// Package quantization holds the k-means++ trainer shared by the product
// quantizer and any future codebook-based codec.
package quantization

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/vectorizer-db/vectorizer/pkg/distance"
)

// Config controls k-means training.
type Config struct {
	Iterations int
	Seed       int64
}

// DefaultConfig returns reasonable defaults (25 iterations).
func DefaultConfig() Config {
	return Config{Iterations: 25, Seed: 42}
}

// KMeansPlusPlus clusters vectors into k centroids using k-means++
// initialization followed by Lloyd iterations, under squared Euclidean
// distance.
func KMeansPlusPlus(vectors [][]float32, k int, cfg Config) ([][]float32, error) {
	if len(vectors) < k {
		return nil, fmt.Errorf("quantization: need at least %d training vectors for %d clusters, got %d", k, k, len(vectors))
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("quantization: empty training vectors")
	}

	dim := len(vectors[0])
	centroids := make([][]float32, k)
	r := rand.New(rand.NewSource(cfg.Seed))

	first := r.Intn(len(vectors))
	centroids[0] = append([]float32(nil), vectors[first]...)

	for c := 1; c < k; c++ {
		dists := make([]float32, len(vectors))
		var total float32
		for i, v := range vectors {
			min := float32(math.MaxFloat32)
			for j := 0; j < c; j++ {
				d := distance.L2_32(v, centroids[j])
				if d < min {
					min = d
				}
			}
			dists[i] = min * min
			total += dists[i]
		}

		if total > 0 {
			target := r.Float32() * total
			var cum float32
			chosen := len(vectors) - 1
			for i, d := range dists {
				cum += d
				if cum >= target {
					chosen = i
					break
				}
			}
			centroids[c] = append([]float32(nil), vectors[chosen]...)
		} else {
			centroids[c] = append([]float32(nil), vectors[r.Intn(len(vectors))]...)
		}
	}

	for iter := 0; iter < cfg.Iterations; iter++ {
		assign := make([]int, len(vectors))
		counts := make([]int, k)
		sums := make([][]float32, k)
		for i := range sums {
			sums[i] = make([]float32, dim)
		}

		for vi, v := range vectors {
			best, bestDist := 0, float32(math.MaxFloat32)
			for c, centroid := range centroids {
				d := distance.L2_32(v, centroid)
				if d < bestDist {
					bestDist = d
					best = c
				}
			}
			assign[vi] = best
			counts[best]++
			for d := 0; d < dim; d++ {
				sums[best][d] += v[d]
			}
		}

		converged := true
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			newCentroid := make([]float32, dim)
			for d := 0; d < dim; d++ {
				newCentroid[d] = sums[c][d] / float32(counts[c])
			}
			if distance.L2_32(centroids[c], newCentroid) > 1e-6 {
				converged = false
			}
			centroids[c] = newCentroid
		}
		if converged {
			break
		}
	}

	return centroids, nil
}
