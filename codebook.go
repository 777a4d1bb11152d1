package mosaic

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
)

// ErrInsufficientTraining is returned when the descriptor pool (or its
// sub-sample) holds fewer distinct points than the requested cluster
// count. Fitting k centroids to fewer than k distinct points is a
// configuration error, reported before any clustering work starts.
var ErrInsufficientTraining = errors.New("fewer distinct training descriptors than clusters")

// ErrDimensionMismatch is returned when a descriptor's dimension does
// not match the codebook's.
var ErrDimensionMismatch = errors.New("descriptor dimension mismatch")

// DefaultSampleCap bounds the number of descriptors k-means sees.
// Pools above the cap are sub-sampled; training time and peak memory
// then depend on the cap, not the corpus.
const DefaultSampleCap = 100_000

// TrainingOptions parameterizes codebook construction. The zero value
// selects the documented defaults. All randomness flows from Seed -
// there is no hidden global state, so equal inputs plus equal options
// always produce an identical codebook.
type TrainingOptions struct {
	// DistanceKind is the metric for clustering and all later
	// descriptor assignment. Defaults to L2Squared.
	DistanceKind DistanceKind

	// SampleCap is the maximum pool size used for fitting. Defaults to
	// DefaultSampleCap. Pools at or under the cap are used in full.
	SampleCap int

	// Seed drives the sub-sampling permutation.
	Seed int64

	// MaxIterations caps k-means iterations. <= 0 selects
	// DefaultMaxIterations.
	MaxIterations int
}

// Codebook is the trained quantization model: k centroids in descriptor
// space, each identified by its index 0..k-1.
//
// A codebook is immutable once trained and safe for concurrent use; it
// is the shared read-only artifact every histogram computation
// references. K fixes the histogram dimensionality corpus-wide -
// retraining with a different K invalidates all previously built
// histograms.
type Codebook struct {
	dim          int
	centroids    [][]float32
	distanceKind DistanceKind
	distance     Distance
}

// TrainCodebook fits a codebook of k centroids to the aggregated
// descriptor pool.
//
// If the pool exceeds opts.SampleCap it is sub-sampled uniformly at
// random without replacement (seeded, reproducible) before fitting; the
// sample references the pool's vectors rather than copying them, so the
// pool is never resident twice. The pool may be released by the caller
// as soon as this returns.
//
// Errors: ErrNoTrainingVectors for an empty pool, ErrInvalidClusterCount
// when k is not positive or exceeds the (sub-sampled) pool size, and
// ErrInsufficientTraining when the sample has fewer than k distinct
// points.
func TrainCodebook(pool [][]float32, k int, opts TrainingOptions) (*Codebook, error) {
	if len(pool) == 0 {
		return nil, ErrNoTrainingVectors
	}
	if opts.DistanceKind == "" {
		opts.DistanceKind = L2Squared
	}
	if opts.SampleCap <= 0 {
		opts.SampleCap = DefaultSampleCap
	}

	distance, err := NewDistance(opts.DistanceKind)
	if err != nil {
		return nil, err
	}

	sample := pool
	if len(pool) > opts.SampleCap {
		sample = subsample(pool, opts.SampleCap, opts.Seed)
	}

	if k <= 0 || k > len(sample) {
		return nil, fmt.Errorf("%w: k=%d with %d training descriptors", ErrInvalidClusterCount, k, len(sample))
	}
	if distinct := distinctVectors(sample, k); distinct < k {
		return nil, fmt.Errorf("%w: %d distinct for k=%d", ErrInsufficientTraining, distinct, k)
	}

	centroids, _, err := KMeans(sample, k, distance, opts.MaxIterations)
	if err != nil {
		return nil, fmt.Errorf("codebook training: %w", err)
	}

	return &Codebook{
		dim:          len(sample[0]),
		centroids:    centroids,
		distanceKind: opts.DistanceKind,
		distance:     distance,
	}, nil
}

// subsample picks cap vectors uniformly at random without replacement,
// preserving pool order among the survivors. The selection depends only
// on the seed and the pool length.
func subsample(pool [][]float32, limit int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	picks := rng.Perm(len(pool))[:limit]
	sort.Ints(picks)

	sample := make([][]float32, limit)
	for i, p := range picks {
		sample[i] = pool[p]
	}
	return sample
}

// distinctVectors counts distinct vectors in the sample, stopping early
// once `enough` have been seen.
func distinctVectors(sample [][]float32, enough int) int {
	seen := make(map[string]struct{}, enough)
	buf := make([]byte, 0, 4*len(sample[0]))
	for _, v := range sample {
		buf = buf[:0]
		for _, x := range v {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(x))
		}
		seen[string(buf)] = struct{}{}
		if len(seen) >= enough {
			return len(seen)
		}
	}
	return len(seen)
}

// K returns the number of centroids, which is also the dimensionality
// of every histogram built from this codebook.
func (cb *Codebook) K() int {
	return len(cb.centroids)
}

// Dim returns the descriptor dimension the codebook was trained on.
func (cb *Codebook) Dim() int {
	return cb.dim
}

// DistanceKind returns the metric used for training and assignment.
func (cb *Codebook) DistanceKind() DistanceKind {
	return cb.distanceKind
}

// Centroid returns the centroid at the given index. The returned slice
// is the codebook's own storage; callers must not modify it.
func (cb *Codebook) Centroid(i int) []float32 {
	return cb.centroids[i]
}

// Assign quantizes one descriptor to the index of its nearest centroid,
// using the same metric the codebook was trained with. Ties resolve to
// the lowest index.
func (cb *Codebook) Assign(descriptor []float32) (int, error) {
	if len(descriptor) != cb.dim {
		return 0, fmt.Errorf("%w: got %d, codebook expects %d", ErrDimensionMismatch, len(descriptor), cb.dim)
	}
	return nearestCentroid(descriptor, cb.centroids, cb.distance), nil
}

// Codebook serialization format:
//  1. Magic number "MCBK" (4 bytes)
//  2. Version (4 bytes)
//  3. Distance kind length (4 bytes) + distance kind string
//  4. K (4 bytes), dim (4 bytes)
//  5. K x dim float32 centroid values, row-major
const codebookMagic = "MCBK"

// WriteTo serializes the codebook. The format is an opaque artifact for
// the surrounding storage layer; only ReadCodebook understands it.
func (cb *Codebook) WriteTo(w io.Writer) (int64, error) {
	var written int64

	if n, err := w.Write([]byte(codebookMagic)); err != nil {
		return written + int64(n), fmt.Errorf("write codebook magic: %w", err)
	}
	written += 4

	kindBytes := []byte(cb.distanceKind)
	header := []uint32{1, uint32(len(kindBytes))}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return written, fmt.Errorf("write codebook header: %w", err)
		}
		written += 4
	}
	if n, err := w.Write(kindBytes); err != nil {
		return written + int64(n), fmt.Errorf("write codebook distance kind: %w", err)
	}
	written += int64(len(kindBytes))

	for _, v := range []uint32{uint32(cb.K()), uint32(cb.dim)} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return written, fmt.Errorf("write codebook shape: %w", err)
		}
		written += 4
	}

	for i, centroid := range cb.centroids {
		if err := binary.Write(w, binary.LittleEndian, centroid); err != nil {
			return written, fmt.Errorf("write centroid %d: %w", i, err)
		}
		written += int64(4 * len(centroid))
	}

	return written, nil
}

// ReadCodebook deserializes a codebook written by WriteTo.
func ReadCodebook(r io.Reader) (*Codebook, int64, error) {
	var read int64

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, read, fmt.Errorf("read codebook magic: %w", err)
	}
	read += 4
	if string(magic) != codebookMagic {
		return nil, read, fmt.Errorf("invalid codebook magic %q", magic)
	}

	var version, kindLen uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, read, fmt.Errorf("read codebook version: %w", err)
	}
	read += 4
	if version != 1 {
		return nil, read, fmt.Errorf("unsupported codebook version %d", version)
	}
	if err := binary.Read(r, binary.LittleEndian, &kindLen); err != nil {
		return nil, read, fmt.Errorf("read codebook header: %w", err)
	}
	read += 4

	kindBytes := make([]byte, kindLen)
	if _, err := io.ReadFull(r, kindBytes); err != nil {
		return nil, read, fmt.Errorf("read codebook distance kind: %w", err)
	}
	read += int64(kindLen)

	distance, err := NewDistance(DistanceKind(kindBytes))
	if err != nil {
		return nil, read, err
	}

	var k, dim uint32
	if err := binary.Read(r, binary.LittleEndian, &k); err != nil {
		return nil, read, fmt.Errorf("read codebook shape: %w", err)
	}
	read += 4
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, read, fmt.Errorf("read codebook shape: %w", err)
	}
	read += 4

	centroids := make([][]float32, k)
	for i := range centroids {
		centroids[i] = make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, centroids[i]); err != nil {
			return nil, read, fmt.Errorf("read centroid %d: %w", i, err)
		}
		read += int64(4 * dim)
	}

	return &Codebook{
		dim:          int(dim),
		centroids:    centroids,
		distanceKind: DistanceKind(kindBytes),
		distance:     distance,
	}, read, nil
}
