// Flat histogram index: the sequential variant of bag-of-features
// retrieval.
//
// WHAT IT IS:
// One histogram per document, stored as-is, searched by brute force.
// For a query histogram Q the index scores Q against EVERY stored
// histogram and returns the k best - O(corpus x K) per query with
// perfect recall. This variant trades query speed for build
// simplicity: insertion is an append, there is no transpose step.
//
// MEMORY:
// K components per document at 4 bytes each (float32), or 2 bytes with
// half-precision storage - histogram counts are small integers well
// inside float16's exact range, so halving the footprint is usually
// free accuracy-wise and doubles the memory-bounded build batch size.
//
// WHEN TO USE:
// Small corpora, or whenever exact exhaustive scoring is wanted. For
// sparse histograms and larger corpora the inverted variant answers
// the same queries sub-linearly.
package mosaic

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// Compile-time check that FlatHistogramIndex implements HistogramIndex.
var _ HistogramIndex = (*FlatHistogramIndex)(nil)

// ErrDuplicateDocument is returned when a document id is inserted
// twice. Document ids are the corpus keys; silently overwriting one
// would desynchronize the index from the caller's corpus mapping.
var ErrDuplicateDocument = errors.New("document id already indexed")

// ErrDocumentNotFound is returned when a document id is not in the
// index.
var ErrDocumentNotFound = errors.New("document not found")

// ErrNegativeCount is returned when a histogram carries a negative
// component; raw count histograms are non-negative by construction.
var ErrNegativeCount = errors.New("histogram count must be non-negative")

// FlatHistogramIndex maps document ids to their raw count histograms
// and answers queries by exhaustive comparison.
//
// Thread-safety: safe for concurrent use through a read-write mutex.
// Multiple readers can search simultaneously; Insert/Remove/Flush are
// exclusive.
type FlatHistogramIndex struct {
	// k is the histogram dimensionality; every inserted histogram must
	// have exactly this length. Fixed by the codebook that produced the
	// histograms.
	k int

	// weighting is the scoring-time transform applied to query and
	// candidates alike. Stored counts remain raw.
	weighting WeightingKind

	distanceKind DistanceKind
	distance     Distance

	// precision selects float32 or float16 storage.
	precision Precision

	// Parallel storage: ids[i] owns full[i] (or half[i]).
	ids  []uint32
	full [][]float32
	half [][]uint16

	// idPos locates a document's slot for lookup and duplicate checks.
	idPos map[uint32]int

	// docFreq[j] counts live documents with a non-zero count for word
	// j; feeds the TF-IDF weighting.
	docFreq []int

	// deleted tracks soft-deleted ids. Deleted slots are skipped on
	// search and reclaimed by Flush.
	deleted *roaring.Bitmap

	mu sync.RWMutex
}

// NewFlatHistogramIndex creates an empty flat index for histograms of
// dimension k.
//
// Parameters:
//   - k: histogram dimensionality (the codebook's K)
//   - distanceKind: metric used to score weighted histograms
//   - weighting: scoring-time transform (WeightingL2 is the usual
//     choice for this variant)
//   - precision: histogram storage representation
func NewFlatHistogramIndex(k int, distanceKind DistanceKind, weighting WeightingKind, precision Precision) (*FlatHistogramIndex, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k=%d", ErrInvalidClusterCount, k)
	}
	distance, err := NewDistance(distanceKind)
	if err != nil {
		return nil, err
	}
	if !validWeighting(weighting) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWeightingKind, weighting)
	}
	if !validPrecision(precision) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPrecision, precision)
	}

	return &FlatHistogramIndex{
		k:            k,
		weighting:    weighting,
		distanceKind: distanceKind,
		distance:     distance,
		precision:    precision,
		idPos:        make(map[uint32]int),
		docFreq:      make([]int, k),
		deleted:      roaring.New(),
	}, nil
}

// Insert adds one document's raw count histogram.
//
// The histogram is copied (and quantized under half precision), so the
// caller may release its slice immediately - the batched build relies
// on that.
//
// Time Complexity: O(K)
func (idx *FlatHistogramIndex) Insert(docID uint32, counts []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(counts) != idx.k {
		return fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(counts), idx.k)
	}
	if _, exists := idx.idPos[docID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateDocument, docID)
	}
	for j, c := range counts {
		if c < 0 {
			return fmt.Errorf("%w: component %d of document %d", ErrNegativeCount, j, docID)
		}
	}

	idx.idPos[docID] = len(idx.ids)
	idx.ids = append(idx.ids, docID)
	switch idx.precision {
	case HalfPrecision:
		idx.half = append(idx.half, quantizeHalf(counts))
	default:
		stored := make([]float32, idx.k)
		copy(stored, counts)
		idx.full = append(idx.full, stored)
	}

	for j, c := range counts {
		if c != 0 {
			idx.docFreq[j]++
		}
	}
	return nil
}

// Remove soft-deletes a document. The slot is skipped by searches and
// reclaimed on the next Flush; document frequencies are adjusted
// immediately so TF-IDF weights stay consistent.
func (idx *FlatHistogramIndex) Remove(docID uint32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	pos, exists := idx.idPos[docID]
	if !exists || idx.deleted.Contains(docID) {
		return fmt.Errorf("%w: %d", ErrDocumentNotFound, docID)
	}

	for j, c := range idx.histogramAt(pos) {
		if c != 0 {
			idx.docFreq[j]--
		}
	}
	idx.deleted.Add(docID)
	return nil
}

// Flush reclaims the storage of soft-deleted documents.
//
// Cost: O(corpus). Call after a batch of removals, not per removal.
func (idx *FlatHistogramIndex) Flush() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.deleted.GetCardinality() == 0 {
		return nil
	}

	keepIDs := idx.ids[:0:0]
	var keepFull [][]float32
	var keepHalf [][]uint16
	idPos := make(map[uint32]int, len(idx.ids))

	for pos, id := range idx.ids {
		if idx.deleted.Contains(id) {
			delete(idx.idPos, id)
			continue
		}
		idPos[id] = len(keepIDs)
		keepIDs = append(keepIDs, id)
		if idx.precision == HalfPrecision {
			keepHalf = append(keepHalf, idx.half[pos])
		} else {
			keepFull = append(keepFull, idx.full[pos])
		}
	}

	idx.ids = keepIDs
	idx.full = keepFull
	idx.half = keepHalf
	idx.idPos = idPos
	idx.deleted.Clear()
	return nil
}

// histogramAt returns the raw counts stored at slot pos, dequantizing
// if needed. Callers must hold the lock.
func (idx *FlatHistogramIndex) histogramAt(pos int) []float32 {
	if idx.precision == HalfPrecision {
		return dequantizeHalf(idx.half[pos])
	}
	return idx.full[pos]
}

// Histogram returns a copy of a document's raw count histogram.
func (idx *FlatHistogramIndex) Histogram(docID uint32) ([]float32, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	pos, exists := idx.idPos[docID]
	if !exists || idx.deleted.Contains(docID) {
		return nil, fmt.Errorf("%w: %d", ErrDocumentNotFound, docID)
	}
	h := idx.histogramAt(pos)
	out := make([]float32, len(h))
	copy(out, h)
	return out, nil
}

// DocumentIDs returns the live document ids in insertion order.
func (idx *FlatHistogramIndex) DocumentIDs() []uint32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]uint32, 0, len(idx.ids))
	for _, id := range idx.ids {
		if !idx.deleted.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// Transpose builds the equivalent inverted index from this index's
// content: every live document's histogram is re-inserted, so the
// postings of word j contain exactly the documents whose flat histogram
// is non-zero at j.
func (idx *FlatHistogramIndex) Transpose() (*InvertedHistogramIndex, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	inv, err := NewInvertedHistogramIndex(idx.k, idx.weighting)
	if err != nil {
		return nil, err
	}
	for pos, id := range idx.ids {
		if idx.deleted.Contains(id) {
			continue
		}
		if err := inv.Insert(id, idx.histogramAt(pos)); err != nil {
			return nil, fmt.Errorf("transpose document %d: %w", id, err)
		}
	}
	return inv, nil
}

// NewSearch creates a new search builder for this index.
func (idx *FlatHistogramIndex) NewSearch() HistogramSearch {
	return &flatHistogramSearch{index: idx, k: 10}
}

// K returns the histogram dimensionality.
func (idx *FlatHistogramIndex) K() int {
	return idx.k
}

// Len returns the number of live (non-deleted) documents.
func (idx *FlatHistogramIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ids) - int(idx.deleted.GetCardinality())
}

// Kind returns FlatIndexKind.
func (idx *FlatHistogramIndex) Kind() HistogramIndexKind {
	return FlatIndexKind
}

// Weighting returns the scoring-time weighting policy.
func (idx *FlatHistogramIndex) Weighting() WeightingKind {
	return idx.weighting
}

// Flat index serialization format:
//  1. Magic number "MFLT" (4 bytes)
//  2. Version (4 bytes)
//  3. K (4 bytes)
//  4. Distance kind, weighting, precision: length-prefixed strings
//  5. Document count (4 bytes)
//  6. Per document: id (4 bytes) + K components (2 or 4 bytes each,
//     per precision)
//
// Soft-deleted documents are flushed before writing, so the artifact
// only ever holds live entries.
const flatIndexMagic = "MFLT"

// WriteTo serializes the index as an opaque artifact for the
// surrounding storage layer.
func (idx *FlatHistogramIndex) WriteTo(w io.Writer) (int64, error) {
	if err := idx.Flush(); err != nil {
		return 0, fmt.Errorf("flush before serialization: %w", err)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var written int64

	if n, err := w.Write([]byte(flatIndexMagic)); err != nil {
		return written + int64(n), fmt.Errorf("write flat index magic: %w", err)
	}
	written += 4

	writeU32 := func(v uint32) error {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
		written += 4
		return nil
	}
	writeString := func(s string) error {
		if err := writeU32(uint32(len(s))); err != nil {
			return err
		}
		n, err := w.Write([]byte(s))
		written += int64(n)
		return err
	}

	if err := writeU32(1); err != nil {
		return written, fmt.Errorf("write flat index version: %w", err)
	}
	if err := writeU32(uint32(idx.k)); err != nil {
		return written, fmt.Errorf("write flat index k: %w", err)
	}
	for _, s := range []string{string(idx.distanceKind), string(idx.weighting), string(idx.precision)} {
		if err := writeString(s); err != nil {
			return written, fmt.Errorf("write flat index header: %w", err)
		}
	}
	if err := writeU32(uint32(len(idx.ids))); err != nil {
		return written, fmt.Errorf("write flat index count: %w", err)
	}

	for pos, id := range idx.ids {
		if err := writeU32(id); err != nil {
			return written, fmt.Errorf("write document %d id: %w", id, err)
		}
		var payload any
		var size int64
		if idx.precision == HalfPrecision {
			payload = idx.half[pos]
			size = int64(2 * idx.k)
		} else {
			payload = idx.full[pos]
			size = int64(4 * idx.k)
		}
		if err := binary.Write(w, binary.LittleEndian, payload); err != nil {
			return written, fmt.Errorf("write document %d histogram: %w", id, err)
		}
		written += size
	}

	return written, nil
}

// ReadFlatIndex deserializes an index written by WriteTo.
func ReadFlatIndex(r io.Reader) (*FlatHistogramIndex, int64, error) {
	var read int64

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, read, fmt.Errorf("read flat index magic: %w", err)
	}
	read += 4
	if string(magic) != flatIndexMagic {
		return nil, read, fmt.Errorf("invalid flat index magic %q", magic)
	}

	readU32 := func() (uint32, error) {
		var v uint32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, err
		}
		read += 4
		return v, nil
	}
	readString := func() (string, error) {
		n, err := readU32()
		if err != nil {
			return "", err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		read += int64(n)
		return string(buf), nil
	}

	version, err := readU32()
	if err != nil {
		return nil, read, fmt.Errorf("read flat index version: %w", err)
	}
	if version != 1 {
		return nil, read, fmt.Errorf("unsupported flat index version %d", version)
	}
	kval, err := readU32()
	if err != nil {
		return nil, read, fmt.Errorf("read flat index k: %w", err)
	}

	var header [3]string
	for i := range header {
		if header[i], err = readString(); err != nil {
			return nil, read, fmt.Errorf("read flat index header: %w", err)
		}
	}

	idx, err := NewFlatHistogramIndex(int(kval), DistanceKind(header[0]), WeightingKind(header[1]), Precision(header[2]))
	if err != nil {
		return nil, read, err
	}

	count, err := readU32()
	if err != nil {
		return nil, read, fmt.Errorf("read flat index count: %w", err)
	}

	for i := uint32(0); i < count; i++ {
		id, err := readU32()
		if err != nil {
			return nil, read, fmt.Errorf("read document %d id: %w", i, err)
		}

		var counts []float32
		if idx.precision == HalfPrecision {
			bits := make([]uint16, kval)
			if err := binary.Read(r, binary.LittleEndian, bits); err != nil {
				return nil, read, fmt.Errorf("read document %d histogram: %w", id, err)
			}
			read += int64(2 * kval)
			counts = dequantizeHalf(bits)
		} else {
			counts = make([]float32, kval)
			if err := binary.Read(r, binary.LittleEndian, counts); err != nil {
				return nil, read, fmt.Errorf("read document %d histogram: %w", id, err)
			}
			read += int64(4 * kval)
		}

		if err := idx.Insert(id, counts); err != nil {
			return nil, read, fmt.Errorf("restore document %d: %w", id, err)
		}
	}

	return idx, read, nil
}
