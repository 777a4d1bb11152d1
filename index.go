package mosaic

// HistogramIndexKind names the histogram index variants.
type HistogramIndexKind string

const (
	// FlatIndexKind stores one histogram per document and searches by
	// exhaustive comparison.
	FlatIndexKind HistogramIndexKind = "flat"

	// InvertedIndexKind transposes histograms into per-word postings
	// and searches only documents sharing words with the query.
	InvertedIndexKind HistogramIndexKind = "inverted"
)

// HistogramResult is a single search hit.
//
// Score semantics depend on the index kind: the flat index reports the
// configured distance (lower is better, results ascending), the
// inverted index reports weighted cosine similarity (higher is better,
// results descending). Ties order by ascending document id.
type HistogramResult struct {
	DocID uint32
	Score float32
}

// HistogramSearch encapsulates the search context for a histogram
// index.
type HistogramSearch interface {
	// WithQuery sets the query histogram (raw counts, length K).
	WithQuery(histogram []float32) HistogramSearch

	// WithDocument queries by an already-indexed document's histogram.
	WithDocument(docID uint32) HistogramSearch

	// WithK sets the number of results to return.
	WithK(k int) HistogramSearch

	// Execute runs the search and returns at most k results.
	Execute() ([]HistogramResult, error)
}

// HistogramIndex is the interface shared by the flat and inverted
// variants. Both are populated by the same batched histogram phase and
// are exactly equivalent in content: a document appears in word j's
// postings iff its histogram has a non-zero count at j.
type HistogramIndex interface {
	// Insert adds one document's raw count histogram (length K).
	Insert(docID uint32, counts []float32) error

	// Remove deletes a document from the index.
	Remove(docID uint32) error

	// NewSearch creates a new search builder.
	NewSearch() HistogramSearch

	// K returns the histogram dimensionality (codebook size).
	K() int

	// Len returns the number of indexed documents.
	Len() int

	// Kind returns the index variant.
	Kind() HistogramIndexKind
}
