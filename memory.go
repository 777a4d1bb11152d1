package mosaic

// The histogram phase of a build holds a batch of histogram records in
// memory before inserting them into the index. The batch size is derived
// from a live reading of available system memory so that peak usage
// stays under a fixed ceiling, independently of corpus size.
//
// This is a different batching policy from extraction batching: the
// extraction batch size bounds worker dispatch overhead (CPU
// parallelism), while this one bounds resident histogram records (RAM).
// The two must not be conflated.

// memoryCeilingFraction is the share of available memory the histogram
// phase may occupy. The remaining 20% absorbs allocator overhead and
// everything else in the process.
const memoryCeilingFraction = 0.8

// DefaultSafetyMultiplier covers a histogram record plus one short-lived
// duplicate held during transfer into the index.
const DefaultSafetyMultiplier = 2

// fallbackAvailableBytes is used when no live system reading is
// available (unsupported platform or failed syscall).
const fallbackAvailableBytes = 1 << 30 // 1 GiB

// MemoryBoundedBatchSize computes the maximum number of records of
// recordBytes each that may be held simultaneously given availableBytes
// of free memory:
//
//	usable = availableBytes * 0.8
//	size   = max(1, floor(usable / (recordBytes * safetyMultiplier)))
//
// The result is clamped to 1 on pathological inputs (tiny available
// memory, huge records); clamped reports that, so the caller can surface
// a warning while still making forward progress.
//
// availableBytes should be a live reading (see AvailableMemory), taken
// per build invocation, and the computation must be redone if the
// record size changes - for histograms the record size depends on the
// codebook's K.
func MemoryBoundedBatchSize(availableBytes uint64, recordBytes int, safetyMultiplier int) (size int, clamped bool) {
	if safetyMultiplier <= 0 {
		safetyMultiplier = DefaultSafetyMultiplier
	}
	if recordBytes <= 0 {
		recordBytes = 1
	}

	usable := float64(availableBytes) * memoryCeilingFraction
	size = int(usable / float64(recordBytes*safetyMultiplier))
	if size < 1 {
		return 1, true
	}
	return size, false
}

// HistogramRecordBytes returns the in-memory size of one histogram
// record of dimension k at the given storage precision.
func HistogramRecordBytes(k int, precision Precision) int {
	switch precision {
	case HalfPrecision:
		return k * 2
	default:
		return k * 4
	}
}
