package mosaic

import (
	"errors"
	"math"
)

// ErrUnknownDistanceKind is returned when an unknown distance kind is
// provided to NewDistance.
var ErrUnknownDistanceKind = errors.New("unknown distance kind")

// ErrZeroVector is returned when a zero vector is provided for a metric
// that doesn't support it.
var ErrZeroVector = errors.New("zero vector not allowed for this metric")

// DistanceKind represents the type of distance metric used for
// descriptor quantization and histogram comparison.
//   - Euclidean (L2): absolute spatial distance between points
//   - L2Squared: squared Euclidean distance (faster, same ordering)
//   - Cosine: angular difference, independent of magnitude
type DistanceKind string

const (
	// Euclidean (L2) distance measures the straight-line distance
	// between two points.
	// Formula: sqrt(sum((a[i] - b[i])^2))
	Euclidean DistanceKind = "l2"

	// L2Squared avoids the sqrt while preserving ordering, which is all
	// nearest-centroid assignment and k-NN ranking need. This is the
	// default metric for codebook training and histogram search.
	// Formula: sum((a[i] - b[i])^2)
	L2Squared DistanceKind = "l2_squared"

	// Cosine distance measures the angular difference between vectors
	// (1 - cosine similarity). Useful for histogram comparison where
	// document length (descriptor count) should not dominate.
	// Formula: 1 - (dot(a,b) / (||a|| * ||b||))
	Cosine DistanceKind = "cosine"
)

// Singleton instances of distance strategies.
// These are stateless and can be safely reused across goroutines.
var (
	euclideanDistanceImpl = euclidean{}
	l2SquaredDistanceImpl = l2Squared{}
	cosineDistanceImpl    = cosine{}
)

// Distance is the interface for computing distances between vectors.
// The same Distance used for codebook training must be used for every
// subsequent descriptor-to-centroid assignment; mixing metrics between
// the two breaks histogram determinism.
type Distance interface {
	// Calculate computes the distance between two vectors of equal
	// dimension. Lower values mean more similar.
	Calculate(a, b []float32) float32

	// PreprocessInPlace prepares a vector for this metric in-place.
	// For cosine this normalizes to unit length; for the Euclidean
	// family it is a no-op. Returns an error if the vector is invalid
	// for the metric (e.g. a zero vector for cosine).
	PreprocessInPlace(target []float32) error

	// Preprocess is the copying variant of PreprocessInPlace.
	Preprocess(target []float32) ([]float32, error)
}

// NewDistance returns a singleton Distance implementation for the
// specified metric. The returned instances are stateless and safe for
// concurrent use. Returns ErrUnknownDistanceKind for unrecognized kinds.
func NewDistance(t DistanceKind) (Distance, error) {
	switch t {
	case Euclidean:
		return euclideanDistanceImpl, nil
	case L2Squared:
		return l2SquaredDistanceImpl, nil
	case Cosine:
		return cosineDistanceImpl, nil
	default:
		return nil, ErrUnknownDistanceKind
	}
}

// euclidean implements Distance using Euclidean (L2) distance.
type euclidean struct{}

// Calculate computes the Euclidean (L2) distance between two vectors.
// Time complexity: O(n) where n is the vector dimension
func (e euclidean) Calculate(a, b []float32) float32 {
	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return float32(math.Sqrt(float64(sum)))
}

// PreprocessInPlace is a no-op for euclidean distance.
func (e euclidean) PreprocessInPlace(target []float32) error {
	return nil
}

// Preprocess is a no-op for euclidean distance, returning the vector
// unchanged.
func (e euclidean) Preprocess(target []float32) ([]float32, error) {
	return target, nil
}

// l2Squared implements Distance using squared Euclidean distance.
// Ordering is identical to Euclidean, so it is safe for both k-means
// assignment and k-NN ranking.
type l2Squared struct{}

// Calculate computes the squared Euclidean distance between two vectors.
// Time complexity: O(n) where n is the vector dimension
func (l l2Squared) Calculate(a, b []float32) float32 {
	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

// PreprocessInPlace is a no-op for L2 squared distance.
func (l l2Squared) PreprocessInPlace(target []float32) error {
	return nil
}

// Preprocess is a no-op for L2 squared distance, returning the vector
// unchanged.
func (l l2Squared) Preprocess(target []float32) ([]float32, error) {
	return target, nil
}

// cosine implements Distance using cosine distance.
type cosine struct{}

// Calculate computes cosine distance between two vectors.
//
// Unlike implementations that assume pre-normalized inputs, this one
// divides by both norms, so it is correct for raw count histograms.
// When both inputs happen to be unit length the division is by 1.
// A zero vector on either side yields the maximum distance of 1.
//
// Time complexity: O(n) where n is the vector dimension
func (c cosine) Calculate(a, b []float32) float32 {
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}

	sim := dot / (float32(math.Sqrt(float64(na))) * float32(math.Sqrt(float64(nb))))

	// Clamp to [-1, 1] to handle floating point precision errors
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}

	return 1 - sim
}

// PreprocessInPlace normalizes the vector in-place to unit length.
// Returns ErrZeroVector if the vector has zero magnitude.
func (c cosine) PreprocessInPlace(target []float32) error {
	norm := Norm(target)
	if norm == 0 {
		return ErrZeroVector
	}
	scale := 1.0 / norm
	for i := range target {
		target[i] *= scale
	}
	return nil
}

// Preprocess returns a normalized copy of the vector.
// Returns ErrZeroVector if the vector has zero magnitude.
func (c cosine) Preprocess(target []float32) ([]float32, error) {
	norm := Norm(target)
	if norm == 0 {
		return nil, ErrZeroVector
	}
	return Scale(target, 1.0/norm), nil
}
