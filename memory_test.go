package mosaic

import "testing"

func TestMemoryBoundedBatchSize(t *testing.T) {
	tests := []struct {
		name             string
		availableBytes   uint64
		recordBytes      int
		safetyMultiplier int
		wantSize         int
		wantClamped      bool
	}{
		{
			name:           "one gigabyte, 100-word float32 records",
			availableBytes: 1_000_000_000, recordBytes: 400, safetyMultiplier: 2,
			wantSize: 1_000_000,
		},
		{
			name:           "exactly one record fits under the ceiling",
			availableBytes: 1000, recordBytes: 400, safetyMultiplier: 2,
			wantSize: 1,
		},
		{
			name:           "not even one record fits, clamped",
			availableBytes: 500, recordBytes: 400, safetyMultiplier: 2,
			wantSize: 1, wantClamped: true,
		},
		{
			name:           "zero available memory, clamped",
			availableBytes: 0, recordBytes: 400, safetyMultiplier: 2,
			wantSize: 1, wantClamped: true,
		},
		{
			name:           "non-positive multiplier falls back to default",
			availableBytes: 1_000_000_000, recordBytes: 400, safetyMultiplier: 0,
			wantSize: 1_000_000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, clamped := MemoryBoundedBatchSize(tt.availableBytes, tt.recordBytes, tt.safetyMultiplier)
			if size != tt.wantSize || clamped != tt.wantClamped {
				t.Errorf("got (%d, %v), want (%d, %v)", size, clamped, tt.wantSize, tt.wantClamped)
			}
		})
	}
}

func TestMemoryBoundedBatchSizeScalesWithRecordSize(t *testing.T) {
	// Halving the record size must double the batch, which is what makes
	// half-precision storage pay off during the histogram phase.
	full, _ := MemoryBoundedBatchSize(1_000_000_000, HistogramRecordBytes(100, FullPrecision), 2)
	half, _ := MemoryBoundedBatchSize(1_000_000_000, HistogramRecordBytes(100, HalfPrecision), 2)
	if half != 2*full {
		t.Errorf("half-precision batch = %d, want %d", half, 2*full)
	}
}

func TestHistogramRecordBytes(t *testing.T) {
	if got := HistogramRecordBytes(100, FullPrecision); got != 400 {
		t.Errorf("full precision: got %d, want 400", got)
	}
	if got := HistogramRecordBytes(100, HalfPrecision); got != 200 {
		t.Errorf("half precision: got %d, want 200", got)
	}
}

func TestAvailableMemoryNonZero(t *testing.T) {
	if AvailableMemory() == 0 {
		t.Error("AvailableMemory returned 0; expected a live reading or the fallback")
	}
}
