package mosaic

import "testing"

func TestHalfPrecisionExactForSmallCounts(t *testing.T) {
	// Histogram counts are small integers; float16 represents integers
	// up to 2048 exactly, so quantization must be lossless here.
	counts := []float32{0, 1, 2, 17, 255, 1024, 2048}
	restored := dequantizeHalf(quantizeHalf(counts))
	for i := range counts {
		if restored[i] != counts[i] {
			t.Errorf("component %d: %v -> %v", i, counts[i], restored[i])
		}
	}
}

func TestValidPrecision(t *testing.T) {
	if !validPrecision(FullPrecision) || !validPrecision(HalfPrecision) {
		t.Error("supported precision reported invalid")
	}
	if validPrecision("float64") {
		t.Error("unsupported precision reported valid")
	}
}
