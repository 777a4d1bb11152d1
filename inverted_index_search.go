package mosaic

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"
)

// invertedHistogramSearch is the search builder for
// InvertedHistogramIndex.
type invertedHistogramSearch struct {
	index *InvertedHistogramIndex

	query      []float32
	docID      uint32
	byDoc      bool
	k          int
	requireAll bool
}

// WithQuery sets the query histogram (raw counts, length K).
func (s *invertedHistogramSearch) WithQuery(histogram []float32) HistogramSearch {
	s.query = histogram
	return s
}

// WithDocument queries by an already-indexed document's histogram. The
// document itself is excluded from the results.
func (s *invertedHistogramSearch) WithDocument(docID uint32) HistogramSearch {
	s.docID = docID
	s.byDoc = true
	return s
}

// WithK sets the number of results to return.
func (s *invertedHistogramSearch) WithK(k int) HistogramSearch {
	s.k = k
	return s
}

// WithRequireAll restricts candidates to documents containing EVERY one
// of the query's non-zero words (postings intersection) rather than any
// of them (postings union). Stricter and faster on broad queries, at
// the cost of recall.
func (s *invertedHistogramSearch) WithRequireAll(require bool) *invertedHistogramSearch {
	s.requireAll = require
	return s
}

// Execute gathers the candidate set from the postings of the query's
// non-zero words, scores each candidate by weighted cosine similarity,
// and returns the k best, descending, ties broken by ascending document
// id.
//
// Time Complexity: O(candidates x query words) - sub-linear in the
// corpus whenever the query's words are not universal.
func (s *invertedHistogramSearch) Execute() ([]HistogramResult, error) {
	idx := s.index

	// Under TF-IDF the cached norms and the query weights must derive
	// from the same IDF vector, and the norm refresh mutates the cache,
	// so the whole path holds one write lock. The other weightings are
	// read-only throughout.
	var idf []float32
	if idx.weighting == WeightingTFIDF {
		idx.mu.Lock()
		defer idx.mu.Unlock()
		idf = idx.idfVector()
		idx.refreshNorms(idf)
	} else {
		idx.mu.RLock()
		defer idx.mu.RUnlock()
	}

	query := s.query
	switch {
	case query == nil && !s.byDoc:
		return nil, ErrNoQuery
	case query != nil && s.byDoc:
		return nil, ErrAmbiguousQuery
	case s.byDoc:
		if !idx.allDocs.Contains(s.docID) {
			return nil, fmt.Errorf("%w: %d", ErrDocumentNotFound, s.docID)
		}
		query = make([]float32, idx.k)
		for j := range idx.postings {
			if c, ok := idx.postings[j].counts[s.docID]; ok {
				query[j] = c
			}
		}
	}
	if len(query) != idx.k {
		return nil, fmt.Errorf("%w: query has %d components, index expects %d", ErrDimensionMismatch, len(query), idx.k)
	}

	weightedQuery := applyWeighting(query, idx.weighting, idf)
	queryNorm := Norm(weightedQuery)
	if queryNorm == 0 {
		// A zero query shares no words with anything.
		return nil, nil
	}

	// Candidate gathering: one bitmap per non-zero query word, combined
	// with a single multi-way union (or intersection).
	var wordSets []*roaring.Bitmap
	var queryWords []int
	for j, c := range query {
		if c == 0 {
			continue
		}
		queryWords = append(queryWords, j)
		wordSets = append(wordSets, idx.postings[j].docs)
	}

	var candidates *roaring.Bitmap
	if s.requireAll {
		candidates = roaring.FastAnd(wordSets...)
	} else {
		candidates = roaring.FastOr(wordSets...)
	}

	results := make([]HistogramResult, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		docID := it.Next()
		if s.byDoc && docID == s.docID {
			continue
		}

		var dot float32
		for _, j := range queryWords {
			c, ok := idx.postings[j].counts[docID]
			if !ok {
				continue
			}
			dot += weightedQuery[j] * idx.docWeight(j, docID, c, idf)
		}

		norm := idx.docNorm(docID)
		if norm == 0 {
			continue
		}
		results = append(results, HistogramResult{
			DocID: docID,
			Score: dot / (queryNorm * norm),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})

	return limitResults(results, s.k), nil
}
