package mosaic

import "errors"

// ErrInvalidBatchSize is returned when a batch size of zero or less is
// passed where a positive size is required. Sizes are never silently
// clamped; the caller owns the decision to retry with a corrected value.
var ErrInvalidBatchSize = errors.New("batch size must be positive")

// DefaultExtractionBatchSize is the batch size used for parallel
// descriptor extraction when the caller does not override it. Extraction
// batches bound dispatch overhead, not memory; they are intentionally
// small and unrelated to the RAM-driven batch size of the histogram
// phase (see MemoryBoundedBatchSize).
const DefaultExtractionBatchSize = 16

// PartitionDocuments splits an ordered document list into contiguous,
// non-overlapping batches of at most batchSize documents each.
//
// The result has exactly ceil(len(docs)/batchSize) batches; every input
// document appears exactly once, and order is preserved both within and
// across batches. The returned batches are subslices of docs - no
// copying.
//
// Returns ErrInvalidBatchSize if batchSize <= 0.
func PartitionDocuments(docs []Document, batchSize int) ([][]Document, error) {
	if batchSize <= 0 {
		return nil, ErrInvalidBatchSize
	}

	batches := make([][]Document, 0, (len(docs)+batchSize-1)/batchSize)
	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batches = append(batches, docs[start:end])
	}
	return batches, nil
}
