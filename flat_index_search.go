package mosaic

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoQuery is returned when Execute is called without a query
// histogram or query document.
var ErrNoQuery = errors.New("search has no query")

// ErrAmbiguousQuery is returned when both a query histogram and a query
// document are set on the same search.
var ErrAmbiguousQuery = errors.New("search has both a query histogram and a query document")

// flatHistogramSearch is the search builder for FlatHistogramIndex.
type flatHistogramSearch struct {
	index *FlatHistogramIndex

	query []float32
	docID uint32
	byDoc bool
	k     int
}

// WithQuery sets the query histogram (raw counts, length K).
func (s *flatHistogramSearch) WithQuery(histogram []float32) HistogramSearch {
	s.query = histogram
	return s
}

// WithDocument queries by an already-indexed document's histogram. The
// document itself is excluded from the results.
func (s *flatHistogramSearch) WithDocument(docID uint32) HistogramSearch {
	s.docID = docID
	s.byDoc = true
	return s
}

// WithK sets the number of results to return.
func (s *flatHistogramSearch) WithK(k int) HistogramSearch {
	s.k = k
	return s
}

// Execute scores the query against every live histogram and returns the
// k nearest by the index's distance, ascending, ties broken by
// ascending document id.
//
// Time Complexity: O(corpus x K) plus the final sort.
func (s *flatHistogramSearch) Execute() ([]HistogramResult, error) {
	idx := s.index

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	query := s.query
	switch {
	case query == nil && !s.byDoc:
		return nil, ErrNoQuery
	case query != nil && s.byDoc:
		return nil, ErrAmbiguousQuery
	case s.byDoc:
		pos, exists := idx.idPos[s.docID]
		if !exists || idx.deleted.Contains(s.docID) {
			return nil, fmt.Errorf("%w: %d", ErrDocumentNotFound, s.docID)
		}
		query = idx.histogramAt(pos)
	}
	if len(query) != idx.k {
		return nil, fmt.Errorf("%w: query has %d components, index expects %d", ErrDimensionMismatch, len(query), idx.k)
	}

	var idf []float32
	if idx.weighting == WeightingTFIDF {
		live := len(idx.ids) - int(idx.deleted.GetCardinality())
		idf = inverseDocumentFrequencies(idx.docFreq, live)
	}
	weightedQuery := applyWeighting(query, idx.weighting, idf)

	results := make([]HistogramResult, 0, len(idx.ids))
	for pos, id := range idx.ids {
		if idx.deleted.Contains(id) {
			continue
		}
		if s.byDoc && id == s.docID {
			continue
		}
		candidate := applyWeighting(idx.histogramAt(pos), idx.weighting, idf)
		results = append(results, HistogramResult{
			DocID: id,
			Score: idx.distance.Calculate(weightedQuery, candidate),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})

	return limitResults(results, s.k), nil
}
