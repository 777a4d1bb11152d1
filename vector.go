package mosaic

import "math"

// Norm computes the L2 norm (Euclidean magnitude) of a vector.
//
// Formula: sqrt(sum(v[i]^2))
//
// Time complexity: O(n) where n is the vector dimension
func Norm(v []float32) float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	return float32(math.Sqrt(float64(sum)))
}

// Scale returns a new vector with all elements multiplied by the given
// scalar. The original vector is not modified.
func Scale(v []float32, scalar float32) []float32 {
	result := make([]float32, len(v))
	for i := range v {
		result[i] = v[i] * scalar
	}
	return result
}

// Normalize returns a copy of v scaled to unit length.
//
// A zero vector is returned unchanged (as a copy) rather than producing
// NaNs; zero histograms are legitimate for documents with no
// extractable descriptors and must survive normalization.
//
// Time complexity: O(n) where n is the vector dimension
func Normalize(v []float32) []float32 {
	norm := Norm(v)
	if norm == 0 {
		result := make([]float32, len(v))
		copy(result, v)
		return result
	}
	return Scale(v, 1.0/norm)
}

// NormalizeInPlace scales v to unit length in-place. Zero vectors are
// left unchanged.
//
// Time complexity: O(n) where n is the vector dimension
func NormalizeInPlace(v []float32) {
	norm := Norm(v)
	if norm == 0 {
		return
	}
	scale := 1.0 / norm
	for i := range v {
		v[i] *= scale
	}
}

// sum returns the sum of all components of v.
func sum(v []float32) float32 {
	var s float32
	for _, x := range v {
		s += x
	}
	return s
}
