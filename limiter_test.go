package mosaic

import "testing"

func TestSanitizeK(t *testing.T) {
	tests := []struct {
		k, maxResults, want int
	}{
		{5, 10, 5},
		{0, 10, 10},
		{-3, 10, 10},
		{15, 10, 10},
		{10, 10, 10},
		{3, 0, 0},
	}
	for _, tt := range tests {
		if got := sanitizeK(tt.k, tt.maxResults); got != tt.want {
			t.Errorf("sanitizeK(%d, %d) = %d, want %d", tt.k, tt.maxResults, got, tt.want)
		}
	}
}

func TestLimitResults(t *testing.T) {
	results := []HistogramResult{{DocID: 1}, {DocID: 2}, {DocID: 3}}

	if got := limitResults(results, 2); len(got) != 2 {
		t.Errorf("limit 2: got %d results", len(got))
	}
	if got := limitResults(results, 0); len(got) != 3 {
		t.Errorf("limit 0 (all): got %d results", len(got))
	}
	if got := limitResults(results, 99); len(got) != 3 {
		t.Errorf("limit beyond size: got %d results", len(got))
	}
}
