package mosaic

import "fmt"

// BuildHistogram quantizes one document's descriptor set against a
// trained codebook, producing the document's histogram: a vector of
// length K whose j-th component counts the descriptors assigned to
// centroid j.
//
// Invariant: the sum of the returned counts equals len(descriptors).
// An empty descriptor set yields the zero vector, which is the valid
// histogram of a document with no extractable content.
//
// Assignment uses the codebook's training metric, so histograms are
// reproducible across builds of the same codebook.
//
// Time Complexity: O(len(descriptors) x K x dim)
func BuildHistogram(cb *Codebook, descriptors [][]float32) ([]float32, error) {
	counts := make([]float32, cb.K())
	for i, d := range descriptors {
		word, err := cb.Assign(d)
		if err != nil {
			return nil, fmt.Errorf("descriptor %d: %w", i, err)
		}
		counts[word]++
	}
	return counts, nil
}

// histogramSink is the insertion surface shared by the flat and
// inverted indexes; the batched histogram phase writes through it
// without caring which variant it is building.
type histogramSink interface {
	Insert(docID uint32, counts []float32) error
}

// buildHistogramPhase is phase 2 of a build: it walks the corpus in
// memory-bounded batches, builds each document's histogram from its
// already-extracted descriptor set, inserts it into the sink, and
// releases the batch's descriptor and histogram memory before starting
// the next batch.
//
// This phase runs strictly sequentially. It is allocation-heavy and
// RAM-sensitive rather than CPU-bound; parallelizing it would multiply
// resident batches and defeat the memory ceiling batchSize was computed
// to respect.
//
// docs[i] must correspond to sets[i]. Index writes are serialized by
// virtue of the single caller (single-writer discipline).
func buildHistogramPhase(cb *Codebook, docs []Document, sets [][][]float32, sink histogramSink, batchSize int) error {
	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}

		// Build the whole batch before inserting: the index never sees
		// a partially quantized batch, and at most batchSize histograms
		// plus their descriptor sets are resident at once.
		histograms := make([][]float32, end-start)
		for i := start; i < end; i++ {
			h, err := BuildHistogram(cb, sets[i])
			if err != nil {
				return fmt.Errorf("document %d: %w", docs[i].ID(), err)
			}
			histograms[i-start] = h
		}

		for i := start; i < end; i++ {
			if err := sink.Insert(docs[i].ID(), histograms[i-start]); err != nil {
				return fmt.Errorf("insert document %d: %w", docs[i].ID(), err)
			}
			// Release this document's share of the batch eagerly.
			histograms[i-start] = nil
			sets[i] = nil
		}
	}
	return nil
}
