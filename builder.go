// Corpus build orchestration.
//
// A build turns a list of media files into searchable indexes in three
// phases:
//
//	Phase 1 - EXTRACT: decode each file and compute its descriptor set
//	          (parallel on a bounded worker pool, or sequential).
//	Phase 2 - TRAIN:   fit a K-word codebook to the pooled descriptors
//	          (seeded, sub-sampled, reproducible).
//	Phase 3 - QUANTIZE: build per-document histograms in memory-bounded
//	          batches and insert them into the requested index variants.
//
// The same document list, options, and files always produce an
// identical result, regardless of worker count or execution mode.
package mosaic

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

// ErrEmptyCorpus is returned when a build is invoked with no documents.
var ErrEmptyCorpus = errors.New("empty corpus")

// ErrNoDescriptors is returned when extraction produced no descriptors
// at all, leaving nothing to train a codebook on.
var ErrNoDescriptors = errors.New("no descriptors extracted from corpus")

// DefaultClusters is the default codebook size.
const DefaultClusters = 100

// BuildOptions configures a corpus build. The zero value selects the
// documented defaults.
type BuildOptions struct {
	// FeatureKind selects the descriptor extractor. Defaults to
	// FeatureSIFT.
	FeatureKind FeatureKind

	// Clusters is the codebook size K. Defaults to DefaultClusters.
	Clusters int

	// IndexKinds lists the histogram index variants to populate.
	// Defaults to the flat index only.
	IndexKinds []HistogramIndexKind

	// Parallel enables the bounded worker pool for extraction. The
	// sequential path produces bit-for-bit identical results.
	Parallel bool

	// Workers bounds the extraction pool. <= 0 selects
	// min(4, NumCPU).
	Workers int

	// ExtractionBatchSize is the number of documents dispatched to a
	// worker at a time. <= 0 selects DefaultExtractionBatchSize.
	ExtractionBatchSize int

	// DistanceKind is the codebook training and flat-search metric.
	// Defaults to L2Squared.
	DistanceKind DistanceKind

	// Weighting is the scoring-time histogram transform. Defaults to
	// WeightingL2 for the flat variant and WeightingTFIDF for the
	// inverted variant.
	Weighting WeightingKind

	// Precision selects the flat index storage representation.
	// Defaults to FullPrecision.
	Precision Precision

	// SampleCap bounds the codebook training pool; Seed drives the
	// sub-sampling permutation; MaxIterations caps k-means. Zero values
	// select the training defaults.
	SampleCap     int
	Seed          int64
	MaxIterations int

	// SafetyMultiplier pads the per-record memory estimate when
	// computing the histogram batch size. <= 0 selects
	// DefaultSafetyMultiplier.
	SafetyMultiplier int

	// AvailableMemory supplies the free-memory reading used to bound
	// the histogram batch. Nil selects the platform reader; tests
	// inject fixed values here.
	AvailableMemory func() uint64
}

// BuildResult is the output of a corpus build: the trained codebook,
// the populated index variants, and the soft failures encountered.
type BuildResult struct {
	Codebook *Codebook

	// Flat and Inverted are non-nil iff their kind was requested.
	Flat     *FlatHistogramIndex
	Inverted *InvertedHistogramIndex

	// Annotations indexes each document's filename for keyword search
	// alongside the descriptor indexes.
	Annotations *AnnotationIndex

	// Warnings lists per-document soft failures. A document that
	// failed extraction still appears in every index, with the zero
	// histogram.
	Warnings []BuildWarning

	// Documents is the corpus size, including soft-failed documents.
	Documents int

	// BatchClamped reports that available memory could not fit even one
	// histogram record under the ceiling and the batch size was clamped
	// to 1. The build still completes, one record at a time.
	BatchClamped bool

	featureKind FeatureKind
}

// Build runs the full pipeline over the corpus.
//
// Per-document extraction failures are soft: the document gets an empty
// descriptor set (hence a zero histogram) and a warning. Fatal errors -
// cancellation, a crashed extraction worker, untrainable codebook -
// abort the build with no partial result.
func Build(ctx context.Context, docs []Document, opts BuildOptions) (*BuildResult, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyCorpus
	}

	if opts.FeatureKind == "" {
		opts.FeatureKind = FeatureSIFT
	}
	if opts.Clusters <= 0 {
		opts.Clusters = DefaultClusters
	}
	if len(opts.IndexKinds) == 0 {
		opts.IndexKinds = []HistogramIndexKind{FlatIndexKind}
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkerCount()
	}
	if opts.ExtractionBatchSize <= 0 {
		opts.ExtractionBatchSize = DefaultExtractionBatchSize
	}
	if opts.DistanceKind == "" {
		opts.DistanceKind = L2Squared
	}
	if opts.Precision == "" {
		opts.Precision = FullPrecision
	}
	if opts.AvailableMemory == nil {
		opts.AvailableMemory = AvailableMemory
	}

	// Phase 1: extraction.
	var sets [][][]float32
	var warnings []BuildWarning
	var err error
	if opts.Parallel {
		sets, warnings, err = extractParallel(ctx, docs, opts.FeatureKind, opts.Workers, opts.ExtractionBatchSize)
	} else {
		sets, warnings, err = extractSequential(ctx, docs, opts.FeatureKind)
	}
	if err != nil {
		return nil, fmt.Errorf("extraction: %w", err)
	}

	// Phase 2: codebook training on the pooled descriptors.
	pool := flattenPool(sets)
	if len(pool) == 0 {
		return nil, ErrNoDescriptors
	}
	codebook, err := TrainCodebook(pool, opts.Clusters, TrainingOptions{
		DistanceKind:  opts.DistanceKind,
		SampleCap:     opts.SampleCap,
		Seed:          opts.Seed,
		MaxIterations: opts.MaxIterations,
	})
	if err != nil {
		return nil, err
	}

	// Phase 3: histograms in memory-bounded batches.
	result := &BuildResult{
		Codebook:    codebook,
		Annotations: NewAnnotationIndex(),
		Documents:   len(docs),
		Warnings:    warnings,
		featureKind: opts.FeatureKind,
	}

	var sinks []histogramSink
	for _, kind := range opts.IndexKinds {
		switch kind {
		case FlatIndexKind:
			if result.Flat != nil {
				continue
			}
			weighting := opts.Weighting
			if weighting == "" {
				weighting = WeightingL2
			}
			flat, err := NewFlatHistogramIndex(codebook.K(), opts.DistanceKind, weighting, opts.Precision)
			if err != nil {
				return nil, err
			}
			result.Flat = flat
			sinks = append(sinks, flat)
		case InvertedIndexKind:
			if result.Inverted != nil {
				continue
			}
			weighting := opts.Weighting
			if weighting == "" {
				weighting = WeightingTFIDF
			}
			inverted, err := NewInvertedHistogramIndex(codebook.K(), weighting)
			if err != nil {
				return nil, err
			}
			result.Inverted = inverted
			sinks = append(sinks, inverted)
		default:
			return nil, fmt.Errorf("unknown histogram index kind %q", kind)
		}
	}

	recordBytes := HistogramRecordBytes(codebook.K(), opts.Precision) * len(sinks)
	batchSize, clamped := MemoryBoundedBatchSize(opts.AvailableMemory(), recordBytes, opts.SafetyMultiplier)
	if clamped {
		result.BatchClamped = true
		result.Warnings = append(result.Warnings, BuildWarning{
			Kind:   WarningMemory,
			Reason: "available memory below one histogram record, batch size clamped to 1",
		})
	}

	if err := buildHistogramPhase(codebook, docs, sets, multiSink(sinks), batchSize); err != nil {
		return nil, fmt.Errorf("histogram phase: %w", err)
	}

	for _, doc := range docs {
		result.Annotations.Add(doc.ID(), annotationText(doc.Path()))
	}

	return result, nil
}

// multiSink fans one histogram insert out to every requested index.
type multiSink []histogramSink

func (m multiSink) Insert(docID uint32, counts []float32) error {
	for _, sink := range m {
		if err := sink.Insert(docID, counts); err != nil {
			return err
		}
	}
	return nil
}

// annotationText derives the indexable text for a document: its base
// filename without the extension, which typically carries titles and
// tags.
func annotationText(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}

// FeatureKind returns the descriptor extractor the corpus was built
// with. Queries by path must use the same extractor.
func (r *BuildResult) FeatureKind() FeatureKind {
	return r.featureKind
}

// preferredIndex returns the histogram index to serve queries from: the
// flat variant when present, else the inverted one.
func (r *BuildResult) preferredIndex() (HistogramIndex, error) {
	switch {
	case r.Flat != nil:
		return r.Flat, nil
	case r.Inverted != nil:
		return r.Inverted, nil
	default:
		return nil, errors.New("build result holds no histogram index")
	}
}

// SearchHistogram queries the built corpus with a raw count histogram.
func (r *BuildResult) SearchHistogram(histogram []float32, k int) ([]HistogramResult, error) {
	idx, err := r.preferredIndex()
	if err != nil {
		return nil, err
	}
	return idx.NewSearch().WithQuery(histogram).WithK(k).Execute()
}

// SearchPath extracts descriptors from a media file, quantizes them
// against the corpus codebook, and queries the built indexes with the
// resulting histogram. The file need not be part of the corpus.
func (r *BuildResult) SearchPath(path string, k int) ([]HistogramResult, error) {
	descriptors, err := ExtractDescriptors(path, r.featureKind)
	if err != nil {
		return nil, fmt.Errorf("extract query %q: %w", path, err)
	}
	histogram, err := BuildHistogram(r.Codebook, descriptors)
	if err != nil {
		return nil, err
	}
	return r.SearchHistogram(histogram, k)
}

// SearchDocument queries by an already-indexed document, excluding the
// document itself from the results.
func (r *BuildResult) SearchDocument(docID uint32, k int) ([]HistogramResult, error) {
	idx, err := r.preferredIndex()
	if err != nil {
		return nil, err
	}
	return idx.NewSearch().WithDocument(docID).WithK(k).Execute()
}
