// Annotation text index: BM25 retrieval over the free-text side of a
// media corpus.
//
// WHAT IT IS FOR:
// Media documents usually carry text - captions, tags, filenames - and
// keyword queries over that text complement the descriptor-based
// histogram search. This index ranks annotations with BM25, the
// standard probabilistic relevance function: per query term,
// IDF x (tf x (k1+1)) / (tf + k1 x (1 - b + b x docLen/avgDocLen)),
// summed over terms.
//
// KEY PARAMETERS:
//   - k1 (1.2): term frequency saturation
//   - b (0.75): document length normalization
//
// The index stores tokens, not the original text; callers keep their
// own document store and resolve returned ids against it.
package mosaic

import (
	"container/heap"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/clipperhouse/uax29/v2/words"
	"golang.org/x/text/unicode/norm"
)

// BM25 ranking parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// TextResult is a single annotation search hit. Higher scores are more
// relevant.
type TextResult struct {
	DocID uint32
	Score float64
}

// AnnotationIndex is a BM25 full-text index over per-document
// annotations (captions, tags, paths).
//
// Thread-safety: safe for concurrent use through a read-write mutex.
type AnnotationIndex struct {
	// postings maps a term to the set of documents containing it.
	postings map[string]*roaring.Bitmap

	// termFreq maps term -> docID -> occurrences.
	termFreq map[string]map[uint32]int

	// docTokens keeps each document's token list so Remove can unwind
	// its contribution without the original text.
	docTokens  map[uint32][]string
	docLengths map[uint32]int

	totalTokens int

	mu sync.RWMutex
}

// NewAnnotationIndex creates an empty annotation index.
func NewAnnotationIndex() *AnnotationIndex {
	return &AnnotationIndex{
		postings:   make(map[string]*roaring.Bitmap),
		termFreq:   make(map[string]map[uint32]int),
		docTokens:  make(map[uint32][]string),
		docLengths: make(map[uint32]int),
	}
}

// normalizeText lowercases after Unicode NFKC normalization, folding
// compatibility variants ("ﬁ" vs "fi", fullwidth digits) onto one form.
func normalizeText(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

// tokenizeText segments text into words per UAX#29, dropping
// whitespace and punctuation segments.
func tokenizeText(s string) []string {
	segments := words.FromString(s)
	var tokens []string
	for segments.Next() {
		t := strings.TrimSpace(segments.Value())
		if t == "" {
			continue
		}
		if !strings.ContainsFunc(t, func(r rune) bool {
			return r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r > 127
		}) {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

// Add indexes a document's annotation text. Re-adding an existing id
// replaces its previous annotation.
//
// Time Complexity: O(tokens)
func (ix *AnnotationIndex) Add(docID uint32, text string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.docTokens[docID]; exists {
		ix.removeLocked(docID)
	}

	tokens := tokenizeText(normalizeText(text))
	ix.docTokens[docID] = tokens
	ix.docLengths[docID] = len(tokens)
	ix.totalTokens += len(tokens)

	for _, t := range tokens {
		if ix.postings[t] == nil {
			ix.postings[t] = roaring.New()
		}
		ix.postings[t].Add(docID)
		if ix.termFreq[t] == nil {
			ix.termFreq[t] = make(map[uint32]int)
		}
		ix.termFreq[t][docID]++
	}
}

// Remove deletes a document's annotation from the index.
func (ix *AnnotationIndex) Remove(docID uint32) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.removeLocked(docID)
}

// removeLocked unwinds a document's contribution. Callers must hold the
// write lock.
func (ix *AnnotationIndex) removeLocked(docID uint32) bool {
	tokens, exists := ix.docTokens[docID]
	if !exists {
		return false
	}

	for _, t := range tokens {
		if bitmap := ix.postings[t]; bitmap != nil {
			bitmap.Remove(docID)
			if bitmap.IsEmpty() {
				delete(ix.postings, t)
			}
		}
		if tf := ix.termFreq[t]; tf != nil {
			delete(tf, docID)
			if len(tf) == 0 {
				delete(ix.termFreq, t)
			}
		}
	}

	ix.totalTokens -= ix.docLengths[docID]
	delete(ix.docTokens, docID)
	delete(ix.docLengths, docID)
	return true
}

// Len returns the number of indexed annotations.
func (ix *AnnotationIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docTokens)
}

// NewSearch creates a new search builder for this index.
func (ix *AnnotationIndex) NewSearch() *AnnotationSearch {
	return &AnnotationSearch{index: ix, k: 10}
}

// textResultHeap is a min-heap keeping the k highest-scoring hits.
// Among equal scores, higher document ids sit nearer the root so they
// are evicted first and results tie-break by ascending id.
type textResultHeap []TextResult

func (h textResultHeap) Len() int { return len(h) }
func (h textResultHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].DocID > h[j].DocID
}
func (h textResultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *textResultHeap) Push(x any) {
	*h = append(*h, x.(TextResult))
}

func (h *textResultHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

var _ heap.Interface = (*textResultHeap)(nil)
