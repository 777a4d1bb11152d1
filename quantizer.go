package mosaic

import (
	"errors"

	"github.com/x448/float16"
)

// ErrUnknownPrecision is returned when a storage precision outside the
// supported set is requested.
var ErrUnknownPrecision = errors.New("unknown storage precision")

// Precision selects the in-memory (and serialized) representation of
// stored histograms.
//
// Histogram components are small non-negative counts, comfortably
// inside float16's exact-integer range (up to 2048), so half precision
// halves the per-record footprint - and thereby doubles the
// memory-bounded batch size - without changing search results for
// typical corpora.
type Precision string

const (
	// FullPrecision stores histograms as float32 (4 bytes/component).
	FullPrecision Precision = "float32"

	// HalfPrecision stores histograms as IEEE 754 half floats
	// (2 bytes/component).
	HalfPrecision Precision = "float16"
)

// validPrecision reports whether p names a supported precision.
func validPrecision(p Precision) bool {
	return p == FullPrecision || p == HalfPrecision
}

// quantizeHalf converts a float32 histogram to packed float16 bits.
func quantizeHalf(v []float32) []uint16 {
	out := make([]uint16, len(v))
	for i, x := range v {
		out[i] = float16.Fromfloat32(x).Bits()
	}
	return out
}

// dequantizeHalf unpacks float16 bits back to float32.
func dequantizeHalf(bits []uint16) []float32 {
	out := make([]float32, len(bits))
	for i, b := range bits {
		out[i] = float16.Frombits(b).Float32()
	}
	return out
}
