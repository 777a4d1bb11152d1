package mosaic

import (
	"errors"
	"math"
)

// ErrUnknownWeightingKind is returned when a weighting policy outside
// the supported set is requested.
var ErrUnknownWeightingKind = errors.New("unknown weighting kind")

// WeightingKind selects how raw count histograms are transformed before
// scoring. Indexes always STORE raw counts (preserving the
// sum-equals-descriptor-count invariant); weighting applies at query
// time to both the query histogram and each candidate.
//
// The choice is a declared parameter of the index rather than a baked-in
// policy, since no single normalization suits every corpus:
//   - WeightingRaw compares absolute counts; documents with more
//     descriptors dominate.
//   - WeightingL1 compares word frequencies (counts / total).
//   - WeightingL2 compares direction only (unit vectors); the usual
//     default for flat-index cosine/Euclidean search.
//   - WeightingTFIDF additionally down-weights words common across the
//     corpus; the usual default for inverted-index retrieval.
type WeightingKind string

const (
	WeightingRaw   WeightingKind = "raw"
	WeightingL1    WeightingKind = "l1"
	WeightingL2    WeightingKind = "l2"
	WeightingTFIDF WeightingKind = "tfidf"
)

// validWeighting reports whether w names a supported policy.
func validWeighting(w WeightingKind) bool {
	switch w {
	case WeightingRaw, WeightingL1, WeightingL2, WeightingTFIDF:
		return true
	}
	return false
}

// inverseDocumentFrequencies computes the smoothed IDF vector for a
// corpus of numDocs documents where docFreq[j] documents have a
// non-zero count for word j:
//
//	idf[j] = ln((numDocs + 1) / (docFreq[j] + 1)) + 1
//
// The +1 smoothing keeps every weight positive and defined even for
// words present in all documents or none.
func inverseDocumentFrequencies(docFreq []int, numDocs int) []float32 {
	idf := make([]float32, len(docFreq))
	for j, df := range docFreq {
		idf[j] = float32(math.Log(float64(numDocs+1)/float64(df+1))) + 1
	}
	return idf
}

// applyWeighting transforms a raw count histogram under the given
// policy, returning a new slice. idf is consulted only for
// WeightingTFIDF and may be nil otherwise. Zero histograms pass through
// as zero vectors under every policy.
func applyWeighting(counts []float32, kind WeightingKind, idf []float32) []float32 {
	switch kind {
	case WeightingRaw:
		out := make([]float32, len(counts))
		copy(out, counts)
		return out
	case WeightingL1:
		total := sum(counts)
		if total == 0 {
			return make([]float32, len(counts))
		}
		return Scale(counts, 1.0/total)
	case WeightingL2:
		return Normalize(counts)
	case WeightingTFIDF:
		out := make([]float32, len(counts))
		for j, c := range counts {
			out[j] = c * idf[j]
		}
		NormalizeInPlace(out)
		return out
	default:
		// Unreachable when the index validated its weighting at
		// construction; fall back to raw counts.
		out := make([]float32, len(counts))
		copy(out, counts)
		return out
	}
}
