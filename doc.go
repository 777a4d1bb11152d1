/*
Package mosaic builds content-based retrieval indexes over collections of
multimedia files using the bag-of-features model.

Every file in a corpus is reduced to a set of fixed-dimension local
descriptors, the descriptors of the whole corpus are clustered into a
codebook of K "visual words", and each file is then represented as a
K-dimensional histogram counting how many of its descriptors fall into
each word. Retrieval is nearest-neighbor search over those histograms.

# Quick Start

Build a flat index over a set of images and query it:

	package main

	import (
	    "context"
	    "fmt"
	    "log"

	    "github.com/wizenheimer/mosaic"
	)

	func main() {
	    docs := []mosaic.Document{
	        mosaic.NewDocument(1, "corpus/cat.jpg"),
	        mosaic.NewDocument(2, "corpus/dog.jpg"),
	        mosaic.NewDocument(3, "corpus/car.jpg"),
	    }

	    result, err := mosaic.Build(context.Background(), docs, mosaic.BuildOptions{
	        Clusters: 100,
	        Parallel: true,
	    })
	    if err != nil {
	        log.Fatal(err)
	    }

	    hits, err := result.SearchPath("query.jpg", 5)
	    if err != nil {
	        log.Fatal(err)
	    }
	    for i, hit := range hits {
	        fmt.Printf("%d. doc=%d score=%.4f\n", i+1, hit.DocID, hit.Score)
	    }
	}

# Pipeline

A build runs in two phases.

Phase 1 (parallel): files are partitioned into batches and dispatched to
a bounded worker pool. Each worker extracts descriptors per file;
results are reassembled in input order and flattened into one corpus
descriptor pool. K-means clustering over the pool (sub-sampled above a
cap) produces the codebook.

Phase 2 (sequential): each file's descriptor set is quantized against
the codebook into a histogram and inserted into the target index. This
phase is deliberately not parallel - it is memory-bound, not CPU-bound -
and processes documents in batches sized from live available memory so
that the histogram records held at once stay under 80% of free RAM.

# Index Variants

FlatHistogramIndex stores one histogram per document and answers
queries by exhaustive comparison. Simple to build, O(corpus x K) per
query.

InvertedHistogramIndex transposes the histograms into per-word postings
lists and only scores documents sharing at least one non-zero word with
the query. Sub-linear queries when histograms are sparse, at the cost
of the build-time transpose.

Both variants are built from the same codebook and are exactly
equivalent: a document appears in word j's postings if and only if its
flat histogram has a non-zero count at position j.

AnnotationIndex is the text-field counterpart: a BM25-ranked inverted
index over tokenized annotations (captions, tags, filenames), for
corpora that carry text next to the media files.

# Failure Model

Per-file extraction failures (unreadable or corrupt files) degrade to
empty descriptor sets and are reported as warnings on the build result;
the document still receives a zero histogram. A panic escaping a worker
aborts the whole build - a silently dropped batch would bias codebook
training. Input contract violations (empty corpus, invalid K, invalid
batch size) are rejected before any work starts.
*/
package mosaic
