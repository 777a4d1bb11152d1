package mosaic

import (
	"container/heap"
	"fmt"
	"math"
	"strings"
)

// AnnotationSearch is the search builder for AnnotationIndex.
type AnnotationSearch struct {
	index *AnnotationIndex

	query string
	docID uint32
	byDoc bool
	k     int
}

// WithQuery sets the query text.
func (s *AnnotationSearch) WithQuery(query string) *AnnotationSearch {
	s.query = query
	return s
}

// WithDocument uses an indexed document's own tokens as the query - a
// "more like this" search. The document itself is excluded from the
// results.
func (s *AnnotationSearch) WithDocument(docID uint32) *AnnotationSearch {
	s.docID = docID
	s.byDoc = true
	return s
}

// WithK sets the number of results to return.
func (s *AnnotationSearch) WithK(k int) *AnnotationSearch {
	s.k = k
	return s
}

// Execute ranks documents by BM25 over the query terms and returns the
// k best, descending, ties broken by ascending document id.
//
// Time Complexity: O(query terms x matching documents) plus top-k heap
// maintenance.
func (s *AnnotationSearch) Execute() ([]TextResult, error) {
	ix := s.index

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	query := s.query
	switch {
	case query == "" && !s.byDoc:
		return nil, ErrNoQuery
	case query != "" && s.byDoc:
		return nil, ErrAmbiguousQuery
	case s.byDoc:
		tokens, exists := ix.docTokens[s.docID]
		if !exists {
			return nil, fmt.Errorf("%w: %d", ErrDocumentNotFound, s.docID)
		}
		query = strings.Join(tokens, " ")
	}

	terms := tokenizeText(normalizeText(query))
	if len(terms) == 0 {
		return nil, nil
	}

	numDocs := float64(len(ix.docTokens))
	if numDocs == 0 {
		return nil, nil
	}
	avgDocLen := float64(ix.totalTokens) / numDocs

	scores := make(map[uint32]float64)
	for _, t := range terms {
		bitmap := ix.postings[t]
		if bitmap == nil {
			continue
		}
		df := float64(bitmap.GetCardinality())
		idf := math.Log((numDocs-df+0.5)/(df+0.5) + 1.0)

		for it := bitmap.Iterator(); it.HasNext(); {
			docID := it.Next()
			if s.byDoc && docID == s.docID {
				continue
			}
			tf := float64(ix.termFreq[t][docID])
			docLen := float64(ix.docLengths[docID])
			scores[docID] += idf * (tf * (bm25K1 + 1)) /
				(tf + bm25K1*(1-bm25B+bm25B*(docLen/avgDocLen)))
		}
	}

	k := sanitizeK(s.k, len(scores))

	// Min-heap of size k: cheaper than sorting every match when the
	// candidate set is large.
	h := make(textResultHeap, 0, k)
	for docID, score := range scores {
		result := TextResult{DocID: docID, Score: score}
		if h.Len() < k {
			heap.Push(&h, result)
			continue
		}
		if score > h[0].Score || (score == h[0].Score && docID < h[0].DocID) {
			heap.Pop(&h)
			heap.Push(&h, result)
		}
	}

	results := make([]TextResult, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(&h).(TextResult)
	}
	return results, nil
}
