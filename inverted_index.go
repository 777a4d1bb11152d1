// Inverted histogram index: the transposed variant of bag-of-features
// retrieval.
//
// WHAT IT IS:
// Instead of one histogram per document, the index keeps one postings
// list per codebook word: the set of documents whose histogram has a
// non-zero count for that word, with the count attached. A query then
// touches only the postings of its own non-zero words, so documents
// sharing no words with the query are never scored at all.
//
// EQUIVALENCE:
// The inverted index holds exactly the same information as the flat
// index built from the same histograms - document d appears in word j's
// postings iff d's histogram is non-zero at j - and a full histogram
// can be reconstructed from the postings. The variants differ only in
// access pattern.
//
// SCORING:
// Weighted cosine similarity, accumulated over the query's non-zero
// words. Higher is better; results are returned descending. The TF-IDF
// weighting is the usual companion: corpus-wide words contribute little,
// rare words dominate, which is exactly the sparsity the postings
// layout exploits.
package mosaic

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// Compile-time check that InvertedHistogramIndex implements
// HistogramIndex.
var _ HistogramIndex = (*InvertedHistogramIndex)(nil)

// postingList is the per-word document set with attached raw counts.
type postingList struct {
	// docs is the set of documents with a non-zero count for this word.
	// Roaring compresses the typical skewed distribution (a few common
	// words with dense postings, many rare words with sparse ones) and
	// gives fast multi-word unions at query time.
	docs *roaring.Bitmap

	// counts maps document id to the raw count for this word. Raw
	// counts are stored; weighting applies at query time.
	counts map[uint32]float32
}

// InvertedHistogramIndex maps codebook words to postings lists and
// answers queries by scoring only the documents that share at least one
// word with the query.
//
// Thread-safety: safe for concurrent use through a read-write mutex.
type InvertedHistogramIndex struct {
	// k is the histogram dimensionality; there are exactly k postings
	// lists.
	k int

	// weighting is the scoring-time transform.
	weighting WeightingKind

	postings []postingList

	// allDocs tracks every live document id for membership checks and
	// iteration.
	allDocs *roaring.Bitmap

	// Incremental per-document aggregates, maintained on Insert/Remove
	// so scoring never needs the full histogram:
	//   docTotal[d]: sum of d's counts (L1 mass)
	//   docSqSum[d]: sum of squared counts (squared L2 norm)
	docTotal map[uint32]float32
	docSqSum map[uint32]float64

	// tfidfNorm caches per-document TF-IDF vector norms. IDF shifts
	// with every insert and remove, so the cache is recomputed lazily
	// when normsDirty is set rather than on each mutation.
	tfidfNorm  map[uint32]float32
	normsDirty bool

	mu sync.RWMutex
}

// NewInvertedHistogramIndex creates an empty inverted index for
// histograms of dimension k.
func NewInvertedHistogramIndex(k int, weighting WeightingKind) (*InvertedHistogramIndex, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k=%d", ErrInvalidClusterCount, k)
	}
	if !validWeighting(weighting) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWeightingKind, weighting)
	}

	postings := make([]postingList, k)
	for j := range postings {
		postings[j] = postingList{
			docs:   roaring.New(),
			counts: make(map[uint32]float32),
		}
	}

	return &InvertedHistogramIndex{
		k:         k,
		weighting: weighting,
		postings:  postings,
		allDocs:   roaring.New(),
		docTotal:  make(map[uint32]float32),
		docSqSum:  make(map[uint32]float64),
		tfidfNorm: make(map[uint32]float32),
	}, nil
}

// Insert adds one document's raw count histogram, transposed into the
// postings of its non-zero words.
//
// Time Complexity: O(K)
func (idx *InvertedHistogramIndex) Insert(docID uint32, counts []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(counts) != idx.k {
		return fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(counts), idx.k)
	}
	if idx.allDocs.Contains(docID) {
		return fmt.Errorf("%w: %d", ErrDuplicateDocument, docID)
	}
	for j, c := range counts {
		if c < 0 {
			return fmt.Errorf("%w: component %d of document %d", ErrNegativeCount, j, docID)
		}
	}

	var total float32
	var sqSum float64
	for j, c := range counts {
		if c == 0 {
			continue
		}
		idx.postings[j].docs.Add(docID)
		idx.postings[j].counts[docID] = c
		total += c
		sqSum += float64(c) * float64(c)
	}

	idx.allDocs.Add(docID)
	idx.docTotal[docID] = total
	idx.docSqSum[docID] = sqSum
	idx.normsDirty = true
	return nil
}

// Remove deletes a document from every postings list it appears in.
//
// Time Complexity: O(K)
func (idx *InvertedHistogramIndex) Remove(docID uint32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if !idx.allDocs.Contains(docID) {
		return fmt.Errorf("%w: %d", ErrDocumentNotFound, docID)
	}

	for j := range idx.postings {
		if idx.postings[j].docs.Contains(docID) {
			idx.postings[j].docs.Remove(docID)
			delete(idx.postings[j].counts, docID)
		}
	}

	idx.allDocs.Remove(docID)
	delete(idx.docTotal, docID)
	delete(idx.docSqSum, docID)
	delete(idx.tfidfNorm, docID)
	idx.normsDirty = true
	return nil
}

// Histogram reconstructs a document's raw count histogram from the
// postings.
//
// Time Complexity: O(K)
func (idx *InvertedHistogramIndex) Histogram(docID uint32) ([]float32, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.allDocs.Contains(docID) {
		return nil, fmt.Errorf("%w: %d", ErrDocumentNotFound, docID)
	}

	counts := make([]float32, idx.k)
	for j := range idx.postings {
		if c, ok := idx.postings[j].counts[docID]; ok {
			counts[j] = c
		}
	}
	return counts, nil
}

// Postings returns the document ids with a non-zero count for word j,
// ascending.
func (idx *InvertedHistogramIndex) Postings(j int) ([]uint32, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if j < 0 || j >= idx.k {
		return nil, fmt.Errorf("word %d out of range [0, %d)", j, idx.k)
	}
	return idx.postings[j].docs.ToArray(), nil
}

// DocumentFrequency returns the number of documents with a non-zero
// count for word j.
func (idx *InvertedHistogramIndex) DocumentFrequency(j int) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if j < 0 || j >= idx.k {
		return 0, fmt.Errorf("word %d out of range [0, %d)", j, idx.k)
	}
	return int(idx.postings[j].docs.GetCardinality()), nil
}

// DocumentIDs returns the live document ids, ascending.
func (idx *InvertedHistogramIndex) DocumentIDs() []uint32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.allDocs.ToArray()
}

// NewSearch creates a new search builder for this index.
func (idx *InvertedHistogramIndex) NewSearch() HistogramSearch {
	return &invertedHistogramSearch{index: idx, k: 10}
}

// K returns the histogram dimensionality.
func (idx *InvertedHistogramIndex) K() int {
	return idx.k
}

// Len returns the number of indexed documents.
func (idx *InvertedHistogramIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return int(idx.allDocs.GetCardinality())
}

// Kind returns InvertedIndexKind.
func (idx *InvertedHistogramIndex) Kind() HistogramIndexKind {
	return InvertedIndexKind
}

// Weighting returns the scoring-time weighting policy.
func (idx *InvertedHistogramIndex) Weighting() WeightingKind {
	return idx.weighting
}

// idfVector computes the current IDF vector from the postings
// cardinalities. Callers must hold at least the read lock.
func (idx *InvertedHistogramIndex) idfVector() []float32 {
	docFreq := make([]int, idx.k)
	for j := range idx.postings {
		docFreq[j] = int(idx.postings[j].docs.GetCardinality())
	}
	return inverseDocumentFrequencies(docFreq, int(idx.allDocs.GetCardinality()))
}

// refreshNorms recomputes the per-document TF-IDF norms if stale.
// Callers must hold the write lock. Cost is one pass over all postings,
// amortized across the searches between mutations.
func (idx *InvertedHistogramIndex) refreshNorms(idf []float32) {
	if !idx.normsDirty {
		return
	}

	sq := make(map[uint32]float64, int(idx.allDocs.GetCardinality()))
	for j := range idx.postings {
		w := float64(idf[j])
		for docID, c := range idx.postings[j].counts {
			t := float64(c) * w
			sq[docID] += t * t
		}
	}

	idx.tfidfNorm = make(map[uint32]float32, len(sq))
	for docID, s := range sq {
		idx.tfidfNorm[docID] = float32(math.Sqrt(s))
	}
	idx.normsDirty = false
}

// docNorm returns the L2 norm of document docID's weighted vector
// under the index weighting. Callers must hold at least the read lock,
// and must have refreshed the TF-IDF norms first when applicable.
func (idx *InvertedHistogramIndex) docNorm(docID uint32) float32 {
	switch idx.weighting {
	case WeightingTFIDF:
		return idx.tfidfNorm[docID]
	case WeightingL1:
		total := idx.docTotal[docID]
		if total == 0 {
			return 0
		}
		return float32(math.Sqrt(idx.docSqSum[docID])) / total
	case WeightingL2:
		if idx.docSqSum[docID] == 0 {
			return 0
		}
		return 1
	default: // WeightingRaw
		return float32(math.Sqrt(idx.docSqSum[docID]))
	}
}

// docWeight returns document docID's weighted component for word j
// given its raw count c. Callers must hold at least the read lock.
func (idx *InvertedHistogramIndex) docWeight(j int, docID uint32, c float32, idf []float32) float32 {
	switch idx.weighting {
	case WeightingTFIDF:
		return c * idf[j]
	case WeightingL1:
		return c / idx.docTotal[docID]
	case WeightingL2:
		return c / float32(math.Sqrt(idx.docSqSum[docID]))
	default: // WeightingRaw
		return c
	}
}

// Inverted index serialization format:
//  1. Magic number "MINV" (4 bytes)
//  2. Version (4 bytes)
//  3. K (4 bytes)
//  4. Weighting: length-prefixed string
//  5. Per word j in [0, K): posting count (4 bytes), then
//     (document id, raw count) pairs (4 + 4 bytes), ascending by id
//
// Per-document aggregates and TF-IDF norms are rederived on load.
const invertedIndexMagic = "MINV"

// WriteTo serializes the index.
func (idx *InvertedHistogramIndex) WriteTo(w io.Writer) (int64, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var written int64

	if n, err := w.Write([]byte(invertedIndexMagic)); err != nil {
		return written + int64(n), fmt.Errorf("write inverted index magic: %w", err)
	}
	written += 4

	writeU32 := func(v uint32) error {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
		written += 4
		return nil
	}

	if err := writeU32(1); err != nil {
		return written, fmt.Errorf("write inverted index version: %w", err)
	}
	if err := writeU32(uint32(idx.k)); err != nil {
		return written, fmt.Errorf("write inverted index k: %w", err)
	}
	if err := writeU32(uint32(len(idx.weighting))); err != nil {
		return written, fmt.Errorf("write inverted index weighting: %w", err)
	}
	if n, err := w.Write([]byte(idx.weighting)); err != nil {
		return written + int64(n), fmt.Errorf("write inverted index weighting: %w", err)
	}
	written += int64(len(idx.weighting))

	for j := range idx.postings {
		list := idx.postings[j]
		if err := writeU32(uint32(list.docs.GetCardinality())); err != nil {
			return written, fmt.Errorf("write word %d posting count: %w", j, err)
		}
		it := list.docs.Iterator()
		for it.HasNext() {
			docID := it.Next()
			if err := writeU32(docID); err != nil {
				return written, fmt.Errorf("write word %d posting: %w", j, err)
			}
			if err := binary.Write(w, binary.LittleEndian, list.counts[docID]); err != nil {
				return written, fmt.Errorf("write word %d count: %w", j, err)
			}
			written += 4
		}
	}

	return written, nil
}

// ReadInvertedIndex deserializes an index written by WriteTo.
func ReadInvertedIndex(r io.Reader) (*InvertedHistogramIndex, int64, error) {
	var read int64

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, read, fmt.Errorf("read inverted index magic: %w", err)
	}
	read += 4
	if string(magic) != invertedIndexMagic {
		return nil, read, fmt.Errorf("invalid inverted index magic %q", magic)
	}

	readU32 := func() (uint32, error) {
		var v uint32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, err
		}
		read += 4
		return v, nil
	}

	version, err := readU32()
	if err != nil {
		return nil, read, fmt.Errorf("read inverted index version: %w", err)
	}
	if version != 1 {
		return nil, read, fmt.Errorf("unsupported inverted index version %d", version)
	}
	kval, err := readU32()
	if err != nil {
		return nil, read, fmt.Errorf("read inverted index k: %w", err)
	}
	wlen, err := readU32()
	if err != nil {
		return nil, read, fmt.Errorf("read inverted index weighting: %w", err)
	}
	wbuf := make([]byte, wlen)
	if _, err := io.ReadFull(r, wbuf); err != nil {
		return nil, read, fmt.Errorf("read inverted index weighting: %w", err)
	}
	read += int64(wlen)

	idx, err := NewInvertedHistogramIndex(int(kval), WeightingKind(wbuf))
	if err != nil {
		return nil, read, err
	}

	for j := uint32(0); j < kval; j++ {
		count, err := readU32()
		if err != nil {
			return nil, read, fmt.Errorf("read word %d posting count: %w", j, err)
		}
		for i := uint32(0); i < count; i++ {
			docID, err := readU32()
			if err != nil {
				return nil, read, fmt.Errorf("read word %d posting: %w", j, err)
			}
			var c float32
			if err := binary.Read(r, binary.LittleEndian, &c); err != nil {
				return nil, read, fmt.Errorf("read word %d count: %w", j, err)
			}
			read += 4

			idx.postings[j].docs.Add(docID)
			idx.postings[j].counts[docID] = c
			idx.allDocs.Add(docID)
			idx.docTotal[docID] += c
			idx.docSqSum[docID] += float64(c) * float64(c)
		}
	}
	idx.normsDirty = true

	return idx, read, nil
}
