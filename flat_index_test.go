package mosaic

import (
	"bytes"
	"errors"
	"testing"
)

func newTestFlatIndex(t *testing.T, weighting WeightingKind, precision Precision) *FlatHistogramIndex {
	t.Helper()
	idx, err := NewFlatHistogramIndex(4, L2Squared, weighting, precision)
	if err != nil {
		t.Fatalf("NewFlatHistogramIndex: %v", err)
	}
	return idx
}

func TestFlatIndexInsertAndSearch(t *testing.T) {
	idx := newTestFlatIndex(t, WeightingL2, FullPrecision)

	histograms := map[uint32][]float32{
		1: {10, 0, 0, 0},
		2: {0, 10, 0, 0},
		3: {8, 2, 0, 0},
		4: {0, 0, 5, 5},
	}
	for id, h := range histograms {
		if err := idx.Insert(id, h); err != nil {
			t.Fatalf("Insert(%d): %v", id, err)
		}
	}
	if idx.Len() != 4 {
		t.Fatalf("Len = %d, want 4", idx.Len())
	}

	results, err := idx.NewSearch().WithQuery([]float32{4, 1, 0, 0}).WithK(2).Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	// Document 3 (8,2,0,0) points in the query's direction (4,1,0,0);
	// document 1 is the next closest.
	if results[0].DocID != 3 || results[1].DocID != 1 {
		t.Errorf("got order [%d %d], want [3 1]", results[0].DocID, results[1].DocID)
	}
	if results[0].Score > results[1].Score {
		t.Error("flat results not ascending by distance")
	}
}

func TestFlatIndexSearchKExceedsCorpus(t *testing.T) {
	idx := newTestFlatIndex(t, WeightingL2, FullPrecision)
	idx.Insert(1, []float32{1, 0, 0, 0})
	idx.Insert(2, []float32{0, 1, 0, 0})

	results, err := idx.NewSearch().WithQuery([]float32{1, 0, 0, 0}).WithK(100).Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want all 2 without padding", len(results))
	}
}

func TestFlatIndexTieBreakByDocID(t *testing.T) {
	idx := newTestFlatIndex(t, WeightingL2, FullPrecision)
	// Identical histograms score identically; ids must order the tie.
	idx.Insert(7, []float32{1, 1, 0, 0})
	idx.Insert(3, []float32{1, 1, 0, 0})
	idx.Insert(5, []float32{1, 1, 0, 0})

	results, err := idx.NewSearch().WithQuery([]float32{1, 1, 0, 0}).WithK(3).Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for i, want := range []uint32{3, 5, 7} {
		if results[i].DocID != want {
			t.Fatalf("position %d holds document %d, want %d", i, results[i].DocID, want)
		}
	}
}

func TestFlatIndexInsertErrors(t *testing.T) {
	idx := newTestFlatIndex(t, WeightingL2, FullPrecision)

	if err := idx.Insert(1, []float32{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("wrong dimension: got %v, want ErrDimensionMismatch", err)
	}
	if err := idx.Insert(1, []float32{1, 0, -2, 0}); !errors.Is(err, ErrNegativeCount) {
		t.Errorf("negative count: got %v, want ErrNegativeCount", err)
	}

	if err := idx.Insert(1, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := idx.Insert(1, []float32{2, 0, 0, 0}); !errors.Is(err, ErrDuplicateDocument) {
		t.Errorf("duplicate id: got %v, want ErrDuplicateDocument", err)
	}
}

func TestFlatIndexSearchValidation(t *testing.T) {
	idx := newTestFlatIndex(t, WeightingL2, FullPrecision)
	idx.Insert(1, []float32{1, 0, 0, 0})

	if _, err := idx.NewSearch().WithK(3).Execute(); !errors.Is(err, ErrNoQuery) {
		t.Errorf("no query: got %v, want ErrNoQuery", err)
	}
	if _, err := idx.NewSearch().WithQuery([]float32{1, 0, 0, 0}).WithDocument(1).Execute(); !errors.Is(err, ErrAmbiguousQuery) {
		t.Errorf("both query forms: got %v, want ErrAmbiguousQuery", err)
	}
	if _, err := idx.NewSearch().WithQuery([]float32{1, 0}).Execute(); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("wrong query dimension: got %v, want ErrDimensionMismatch", err)
	}
	if _, err := idx.NewSearch().WithDocument(99).Execute(); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("unknown document: got %v, want ErrDocumentNotFound", err)
	}
}

func TestFlatIndexSearchByDocumentExcludesSelf(t *testing.T) {
	idx := newTestFlatIndex(t, WeightingL2, FullPrecision)
	idx.Insert(1, []float32{5, 0, 0, 0})
	idx.Insert(2, []float32{4, 1, 0, 0})
	idx.Insert(3, []float32{0, 0, 9, 0})

	results, err := idx.NewSearch().WithDocument(1).WithK(3).Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, r := range results {
		if r.DocID == 1 {
			t.Fatal("query document returned in its own results")
		}
	}
	if len(results) != 2 || results[0].DocID != 2 {
		t.Errorf("got %v, want document 2 first of 2", results)
	}
}

func TestFlatIndexRemove(t *testing.T) {
	idx := newTestFlatIndex(t, WeightingL2, FullPrecision)
	idx.Insert(1, []float32{1, 0, 0, 0})
	idx.Insert(2, []float32{0, 1, 0, 0})

	if err := idx.Remove(1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if idx.Len() != 1 {
		t.Errorf("Len = %d after removal, want 1", idx.Len())
	}
	if err := idx.Remove(1); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("double remove: got %v, want ErrDocumentNotFound", err)
	}

	results, err := idx.NewSearch().WithQuery([]float32{1, 0, 0, 0}).WithK(10).Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, r := range results {
		if r.DocID == 1 {
			t.Fatal("removed document still searchable")
		}
	}

	// Flush reclaims storage without changing visible content.
	if err := idx.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if idx.Len() != 1 {
		t.Errorf("Len = %d after flush, want 1", idx.Len())
	}
	if _, err := idx.Histogram(2); err != nil {
		t.Errorf("surviving document lost after flush: %v", err)
	}
}

func TestFlatIndexHalfPrecisionMatchesFull(t *testing.T) {
	full := newTestFlatIndex(t, WeightingL2, FullPrecision)
	half := newTestFlatIndex(t, WeightingL2, HalfPrecision)

	// Small integer counts are exact in float16, so rankings agree.
	histograms := [][]float32{
		{12, 0, 3, 0}, {0, 7, 0, 1}, {5, 5, 5, 5}, {1, 0, 0, 20},
	}
	for i, h := range histograms {
		full.Insert(uint32(i+1), h)
		half.Insert(uint32(i+1), h)
	}

	query := []float32{10, 1, 2, 0}
	fullResults, err := full.NewSearch().WithQuery(query).WithK(4).Execute()
	if err != nil {
		t.Fatalf("full: %v", err)
	}
	halfResults, err := half.NewSearch().WithQuery(query).WithK(4).Execute()
	if err != nil {
		t.Fatalf("half: %v", err)
	}
	for i := range fullResults {
		if fullResults[i].DocID != halfResults[i].DocID {
			t.Fatalf("rankings diverge at position %d: %d vs %d",
				i, fullResults[i].DocID, halfResults[i].DocID)
		}
	}
}

func TestFlatIndexTFIDFWeighting(t *testing.T) {
	idx := newTestFlatIndex(t, WeightingTFIDF, FullPrecision)
	// Word 0 is universal; word 2 distinguishes document 3.
	idx.Insert(1, []float32{5, 0, 0, 0})
	idx.Insert(2, []float32{5, 1, 0, 0})
	idx.Insert(3, []float32{5, 0, 1, 0})

	results, err := idx.NewSearch().WithQuery([]float32{5, 0, 1, 0}).WithK(1).Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if results[0].DocID != 3 {
		t.Errorf("nearest = %d, want 3 (shares the rare word)", results[0].DocID)
	}
}

func TestFlatIndexRoundTrip(t *testing.T) {
	for _, precision := range []Precision{FullPrecision, HalfPrecision} {
		t.Run(string(precision), func(t *testing.T) {
			idx := newTestFlatIndex(t, WeightingL2, precision)
			idx.Insert(1, []float32{3, 0, 1, 0})
			idx.Insert(2, []float32{0, 2, 0, 4})
			idx.Insert(3, []float32{1, 1, 1, 1})
			idx.Remove(2)

			var buf bytes.Buffer
			written, err := idx.WriteTo(&buf)
			if err != nil {
				t.Fatalf("WriteTo: %v", err)
			}
			if written != int64(buf.Len()) {
				t.Errorf("WriteTo reported %d bytes, buffer has %d", written, buf.Len())
			}

			restored, _, err := ReadFlatIndex(&buf)
			if err != nil {
				t.Fatalf("ReadFlatIndex: %v", err)
			}
			if restored.Len() != 2 {
				t.Fatalf("restored Len = %d, want 2 (deleted entry not persisted)", restored.Len())
			}
			if _, err := restored.Histogram(2); !errors.Is(err, ErrDocumentNotFound) {
				t.Error("removed document resurrected by round trip")
			}

			for _, id := range []uint32{1, 3} {
				want, _ := idx.Histogram(id)
				got, err := restored.Histogram(id)
				if err != nil {
					t.Fatalf("Histogram(%d): %v", id, err)
				}
				for j := range want {
					if got[j] != want[j] {
						t.Fatalf("document %d component %d: got %v, want %v", id, j, got[j], want[j])
					}
				}
			}
		})
	}
}

func TestReadFlatIndexRejectsGarbage(t *testing.T) {
	if _, _, err := ReadFlatIndex(bytes.NewReader([]byte("nope"))); err == nil {
		t.Error("garbage input accepted")
	}
}
