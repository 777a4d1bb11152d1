// K-means clustering for codebook construction.
//
// K-MEANS IN THIS PIPELINE:
// The codebook is the set of k centroids learned by partitional
// clustering of the corpus descriptor pool. K-means iterates two steps
// until assignments stabilize:
//
//  1. ASSIGNMENT: attach every vector to its nearest centroid
//  2. UPDATE: move each centroid to the mean of its vectors
//
// Initialization is deterministic: every (n/k)-th vector seeds one
// centroid. Combined with a seeded sub-sample upstream (see
// TrainCodebook), the whole training path is reproducible from a fixed
// seed - a correctness requirement, since retraining with the same
// inputs must assign descriptors to the same visual words.
//
// TIME COMPLEXITY:
// O(iterations x k x n x dim); typical convergence is 5-20 iterations.
package mosaic

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoTrainingVectors is returned when clustering is attempted on an
// empty pool.
var ErrNoTrainingVectors = errors.New("no training vectors")

// ErrInvalidClusterCount is returned when the requested cluster count
// is not positive or exceeds the pool size.
var ErrInvalidClusterCount = errors.New("invalid cluster count")

// unassignedCluster marks a vector not yet attached to any cluster.
const unassignedCluster = -1

// DefaultMaxIterations is the default iteration cap for k-means.
const DefaultMaxIterations = 20

// KMeans partitions vectors into k clusters and returns the learned
// centroids along with the final cluster assignment of every input
// vector (assignments[i] is the cluster of vectors[i]).
//
// All input vectors must share one dimension. k must satisfy
// 1 <= k <= len(vectors); violations are contract errors, reported
// rather than silently adjusted, because a clamped k would change the
// histogram dimensionality of every downstream document.
//
// maxIter <= 0 selects DefaultMaxIterations.
func KMeans(vectors [][]float32, k int, distance Distance, maxIter int) (centroids [][]float32, assignments []int, err error) {
	if len(vectors) == 0 {
		return nil, nil, ErrNoTrainingVectors
	}
	if k <= 0 || k > len(vectors) {
		return nil, nil, fmt.Errorf("%w: k=%d with %d vectors", ErrInvalidClusterCount, k, len(vectors))
	}
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, nil, fmt.Errorf("training vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}

	// Deterministic init: uniform spacing through the pool.
	centroids = make([][]float32, k)
	step := len(vectors) / k
	if step == 0 {
		step = 1
	}
	for c := 0; c < k; c++ {
		src := c * step
		if src >= len(vectors) {
			src = len(vectors) - 1
		}
		centroids[c] = make([]float32, dim)
		copy(centroids[c], vectors[src])
	}

	assignments = make([]int, len(vectors))
	for i := range assignments {
		assignments[i] = unassignedCluster
	}

	for iter := 0; iter < maxIter; iter++ {
		// Assignment step.
		changed := false
		for i, v := range vectors {
			nearest := nearestCentroid(v, centroids, distance)
			if assignments[i] != nearest {
				assignments[i] = nearest
				changed = true
			}
		}

		// Stable assignments mean the partition is fixed; further
		// iterations cannot move anything.
		if !changed {
			break
		}

		// Update step: single pass accumulation, then divide.
		sums := make([][]float32, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float32, dim)
		}
		for i, c := range assignments {
			for d, x := range vectors[i] {
				sums[c][d] += x
			}
			counts[c]++
		}
		for c := range centroids {
			if counts[c] == 0 {
				// Empty cluster: keep the old centroid. It may attract
				// vectors again once its neighbors move.
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = sums[c][d] / float32(counts[c])
			}
		}
	}

	return centroids, assignments, nil
}

// nearestCentroid returns the index of the centroid closest to v under
// the given distance. Ties resolve to the lowest index, which keeps
// assignment deterministic.
func nearestCentroid(v []float32, centroids [][]float32, distance Distance) int {
	best := 0
	bestDist := float32(math.Inf(1))
	for c, centroid := range centroids {
		if d := distance.Calculate(v, centroid); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}
