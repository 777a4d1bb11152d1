// Parallel extraction coordination.
//
// Phase 1 of a build is CPU-bound: decoding media and computing
// descriptors. The coordinator partitions the corpus into batches and
// runs them on a bounded goroutine pool. Workers share no mutable
// state - a batch's inputs are file paths and its outputs land in a
// result slot reserved for that batch, so no lock or queue is needed
// and result order never depends on completion order.
//
// FAILURE ISOLATION:
// A per-file extraction error is a soft failure: the file contributes
// an empty descriptor set and a warning, and neither its batch
// siblings nor other in-flight batches are affected. A panic escaping
// the extractor is the in-process analogue of a worker crash and is
// fatal: in-flight work is canceled and the build aborts, because
// silently losing a batch's descriptors would bias codebook training.
//
// DETERMINISM:
// The parallel and sequential paths share the per-file helper and both
// emit descriptor sets in corpus order, so the flattened descriptor
// pool is bit-for-bit identical across execution modes.
package mosaic

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// maxDefaultWorkers caps the default worker count; beyond a few
// decode-heavy workers the pool is usually disk-bound.
const maxDefaultWorkers = 4

// WarningKind classifies a build warning.
type WarningKind string

const (
	// WarningExtraction marks a per-document soft failure; DocID and
	// Path identify the degraded document.
	WarningExtraction WarningKind = "extraction"

	// WarningMemory marks a corpus-wide memory condition (batch size
	// clamped); DocID and Path are unset.
	WarningMemory WarningKind = "memory"
)

// BuildWarning records a condition that degraded the build without
// aborting it. Kind tells document-scoped warnings apart from
// corpus-wide ones; DocID alone cannot, since 0 is a legal document id.
type BuildWarning struct {
	Kind   WarningKind
	DocID  uint32
	Path   string
	Reason string
}

// defaultWorkerCount returns min(maxDefaultWorkers, NumCPU).
func defaultWorkerCount() int {
	n := runtime.NumCPU()
	if n > maxDefaultWorkers {
		n = maxDefaultWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// extractFn is the per-file extraction function the coordinator
// dispatches to. A variable so tests can substitute failing or
// panicking extractors.
var extractFn = ExtractDescriptors

// extractOne runs the extractor for a single document, converting a
// per-file failure into an empty set plus a warning.
func extractOne(doc Document, kind FeatureKind) ([][]float32, *BuildWarning) {
	descriptors, err := extractFn(doc.Path(), kind)
	if err != nil {
		return nil, &BuildWarning{
			Kind:   WarningExtraction,
			DocID:  doc.ID(),
			Path:   doc.Path(),
			Reason: err.Error(),
		}
	}
	return descriptors, nil
}

// extractSequential extracts descriptor sets for all documents in a
// single goroutine, in corpus order. sets[i] belongs to docs[i].
func extractSequential(ctx context.Context, docs []Document, kind FeatureKind) (sets [][][]float32, warnings []BuildWarning, err error) {
	sets = make([][][]float32, len(docs))
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		descriptors, warning := extractOne(doc, kind)
		if warning != nil {
			warnings = append(warnings, *warning)
		}
		sets[i] = descriptors
	}
	return sets, warnings, nil
}

// extractParallel extracts descriptor sets for all documents on a
// bounded worker pool. sets[i] belongs to docs[i], exactly as in
// extractSequential.
//
// workers must be >= 1; batchSize must be positive (the caller
// validates both). Returns a non-nil error only for fatal conditions:
// context cancellation or a panic escaping a worker.
func extractParallel(ctx context.Context, docs []Document, kind FeatureKind, workers, batchSize int) (sets [][][]float32, warnings []BuildWarning, err error) {
	batches, err := PartitionDocuments(docs, batchSize)
	if err != nil {
		return nil, nil, err
	}

	// One result slot per batch, indexed by batch position. Slots are
	// written by exactly one worker each, so the slices need no lock.
	batchSets := make([][][][]float32, len(batches))
	batchWarnings := make([][]BuildWarning, len(batches))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for bi, batch := range batches {
		bi, batch := bi, batch
		g.Go(func() (err error) {
			// A panic here is a worker crash, not a per-file failure:
			// convert it to a fatal error so the group cancels
			// everything in flight and the build aborts.
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("extraction worker panicked on batch %d: %v", bi, r)
				}
			}()

			if err := ctx.Err(); err != nil {
				return err
			}

			sets := make([][][]float32, len(batch))
			var warns []BuildWarning
			for i, doc := range batch {
				descriptors, warning := extractOne(doc, kind)
				if warning != nil {
					warns = append(warns, *warning)
				}
				sets[i] = descriptors
			}

			batchSets[bi] = sets
			batchWarnings[bi] = warns
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// Flatten by batch position: corpus order, regardless of which
	// batch finished first.
	sets = make([][][]float32, 0, len(docs))
	for bi := range batches {
		sets = append(sets, batchSets[bi]...)
		warnings = append(warnings, batchWarnings[bi]...)
	}
	return sets, warnings, nil
}

// flattenPool concatenates per-document descriptor sets into the single
// corpus-wide descriptor pool used for codebook training. The pool
// aliases the per-document descriptor storage; it does not copy.
func flattenPool(sets [][][]float32) [][]float32 {
	total := 0
	for _, set := range sets {
		total += len(set)
	}
	pool := make([][]float32, 0, total)
	for _, set := range sets {
		pool = append(pool, set...)
	}
	return pool
}
