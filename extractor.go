// Descriptor extraction for the bag-of-features pipeline.
//
// WHAT IS A DESCRIPTOR?
// A descriptor is a fixed-dimension numeric vector summarizing a local
// region of a media file: a patch of an image, a frame of audio. One
// file yields a variable-length set of descriptors (possibly empty).
// Codebook training clusters descriptors from the whole corpus, so
// every extractor must emit vectors of one fixed dimension per feature
// kind.
//
// CONTRACT:
// Extraction is a pure function from file path to descriptor set. It
// fails soft: unreadable files, corrupt content, and degenerate inputs
// (blank images, silent audio) yield an empty set and a descriptive
// error for the caller to record as a warning - never a reason to abort
// a build. A document with an empty descriptor set later receives a
// zero histogram, which is a valid index entry.
//
// Extractors hold no state and are safe for arbitrary concurrent
// invocation without synchronization; the worker pool relies on this.
package mosaic

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"
	"os"

	// Registered decoders for image.Decode. These cover the image
	// extension table in document.go except bmp, which degrades to a
	// soft "unknown format" failure.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// ErrUnknownFeatureKind is returned when a feature kind outside the
// supported set is requested.
var ErrUnknownFeatureKind = errors.New("unknown feature kind")

// FeatureKind selects the descriptor extractor applied to corpus files.
type FeatureKind string

const (
	// FeatureSIFT extracts SIFT-style descriptors from images: gradient
	// orientation histograms over local patches, 128 dimensions each.
	FeatureSIFT FeatureKind = "sift"

	// FeatureMFCC extracts MFCC-style descriptors from WAV audio:
	// per-frame energy and spectral-shape coefficients, 13 dimensions
	// each.
	FeatureMFCC FeatureKind = "mfcc"
)

const (
	// SIFTDescriptorDim is the dimension of image descriptors:
	// 4x4 spatial cells x 8 orientation bins.
	SIFTDescriptorDim = 128

	// MFCCDescriptorDim is the dimension of audio descriptors:
	// log energy, zero-crossing rate and 11 autocorrelation
	// coefficients.
	MFCCDescriptorDim = 13

	// Image patch geometry: 16x16 pixel patches sampled on an 8 pixel
	// stride, divided into 4x4 cells of 4x4 pixels.
	patchSize  = 16
	patchStep  = 8
	cellSize   = 4
	orientBins = 8

	// Patches whose mean gradient magnitude falls below this threshold
	// carry no usable structure and are skipped. Blank images therefore
	// produce zero descriptors.
	contrastThreshold = 4.0

	// Audio frame geometry.
	frameSize = 512
	frameHop  = 256

	// Frames below this mean-square energy are treated as silence.
	silenceThreshold = 1e-6
)

// DescriptorDim returns the fixed descriptor dimension for a feature
// kind. Codebook training validates every pooled descriptor against
// this dimension.
func DescriptorDim(kind FeatureKind) (int, error) {
	switch kind {
	case FeatureSIFT:
		return SIFTDescriptorDim, nil
	case FeatureMFCC:
		return MFCCDescriptorDim, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFeatureKind, kind)
	}
}

// ExtractDescriptors extracts the descriptor set for one file using the
// given feature kind.
//
// A non-nil error always accompanies an empty set and means the file
// contributed nothing; it is advisory (record it, keep building), not
// fatal. See the package failure model.
func ExtractDescriptors(path string, kind FeatureKind) ([][]float32, error) {
	switch kind {
	case FeatureSIFT:
		return ExtractImageDescriptors(path)
	case FeatureMFCC:
		return ExtractAudioDescriptors(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeatureKind, kind)
	}
}

// ExtractImageDescriptors decodes an image and returns SIFT-style local
// descriptors: for each sufficiently contrasted 16x16 patch, a 128-dim
// histogram of gradient orientations over a 4x4 cell grid, normalized
// for illumination invariance (L2 normalize, clamp at 0.2,
// renormalize).
//
// Images too small to contain a single patch, or with no patch above
// the contrast threshold, yield an empty set.
func ExtractImageDescriptors(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}

	lum := luminance(img)
	h := len(lum)
	if h < patchSize {
		return nil, fmt.Errorf("image %s smaller than patch size", path)
	}
	w := len(lum[0])
	if w < patchSize {
		return nil, fmt.Errorf("image %s smaller than patch size", path)
	}

	var descriptors [][]float32
	for py := 0; py+patchSize <= h; py += patchStep {
		for px := 0; px+patchSize <= w; px += patchStep {
			if d := patchDescriptor(lum, px, py); d != nil {
				descriptors = append(descriptors, d)
			}
		}
	}
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("image %s has no patches above contrast threshold", path)
	}
	return descriptors, nil
}

// luminance converts an image to a row-major float32 luma grid scaled
// to [0, 255].
func luminance(img image.Image) [][]float32 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	lum := make([][]float32, h)
	for y := 0; y < h; y++ {
		row := make([]float32, w)
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// Rec. 601 luma on 16-bit channel values, scaled to 8-bit range.
			row[x] = (0.299*float32(r) + 0.587*float32(g) + 0.114*float32(b)) / 257.0
		}
		lum[y] = row
	}
	return lum
}

// patchDescriptor computes one 128-dim orientation histogram for the
// patch anchored at (px, py), or nil if the patch is below the contrast
// threshold.
func patchDescriptor(lum [][]float32, px, py int) []float32 {
	desc := make([]float32, SIFTDescriptorDim)
	var totalMag float32

	h := len(lum)
	w := len(lum[0])

	for dy := 0; dy < patchSize; dy++ {
		for dx := 0; dx < patchSize; dx++ {
			x, y := px+dx, py+dy

			// Central differences, clamped at the image border.
			x0, x1 := x-1, x+1
			if x0 < 0 {
				x0 = 0
			}
			if x1 >= w {
				x1 = w - 1
			}
			y0, y1 := y-1, y+1
			if y0 < 0 {
				y0 = 0
			}
			if y1 >= h {
				y1 = h - 1
			}

			gx := lum[y][x1] - lum[y][x0]
			gy := lum[y1][x] - lum[y0][x]

			mag := float32(math.Sqrt(float64(gx*gx + gy*gy)))
			if mag == 0 {
				continue
			}
			totalMag += mag

			// Orientation bin in [0, orientBins).
			angle := math.Atan2(float64(gy), float64(gx)) // [-pi, pi]
			bin := int((angle + math.Pi) / (2 * math.Pi) * orientBins)
			if bin >= orientBins {
				bin = orientBins - 1
			}

			cell := (dy/cellSize)*4 + dx/cellSize
			desc[cell*orientBins+bin] += mag
		}
	}

	if totalMag/(patchSize*patchSize) < contrastThreshold {
		return nil
	}

	// SIFT-style illumination normalization: unit length, clamp large
	// components, renormalize.
	NormalizeInPlace(desc)
	for i, v := range desc {
		if v > 0.2 {
			desc[i] = 0.2
		}
	}
	NormalizeInPlace(desc)

	return desc
}

// ExtractAudioDescriptors parses a PCM WAV file and returns MFCC-style
// per-frame descriptors: log energy, zero-crossing rate, and 11
// short-lag autocorrelation coefficients per 512-sample frame (256
// sample hop). Stereo input is mixed down to mono.
//
// Silent frames are skipped; fully silent files yield an empty set.
func ExtractAudioDescriptors(path string) ([][]float32, error) {
	samples, err := decodeWAV(path)
	if err != nil {
		return nil, err
	}
	if len(samples) < frameSize {
		return nil, fmt.Errorf("audio %s shorter than one frame", path)
	}

	var descriptors [][]float32
	for start := 0; start+frameSize <= len(samples); start += frameHop {
		frame := samples[start : start+frameSize]
		if d := frameDescriptor(frame); d != nil {
			descriptors = append(descriptors, d)
		}
	}
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("audio %s has no frames above silence threshold", path)
	}
	return descriptors, nil
}

// frameDescriptor computes one 13-dim descriptor for an audio frame, or
// nil for silence.
func frameDescriptor(frame []float32) []float32 {
	var energy float64
	for _, s := range frame {
		energy += float64(s) * float64(s)
	}
	energy /= float64(len(frame))
	if energy < silenceThreshold {
		return nil
	}

	desc := make([]float32, MFCCDescriptorDim)
	desc[0] = float32(math.Log(energy))

	// Zero-crossing rate.
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] < 0) != (frame[i] < 0) {
			crossings++
		}
	}
	desc[1] = float32(crossings) / float32(len(frame)-1)

	// Normalized autocorrelation at lags 1..11 captures the coarse
	// spectral envelope without requiring an FFT.
	var r0 float64
	for _, s := range frame {
		r0 += float64(s) * float64(s)
	}
	for lag := 1; lag <= MFCCDescriptorDim-2; lag++ {
		var r float64
		for i := lag; i < len(frame); i++ {
			r += float64(frame[i]) * float64(frame[i-lag])
		}
		desc[1+lag] = float32(r / r0)
	}

	return desc
}

// decodeWAV reads a 16-bit PCM WAV file and returns mono samples in
// [-1, 1]. Only the fmt and data chunks are interpreted; everything
// else is skipped.
func decodeWAV(path string) ([]float32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, fmt.Errorf("audio %s: not a RIFF/WAVE file", path)
	}

	var (
		channels      int
		bitsPerSample int
		data          []byte
	)

	// Walk the chunk list.
	off := 12
	for off+8 <= len(raw) {
		id := string(raw[off : off+4])
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		body := off + 8
		if body+size > len(raw) {
			size = len(raw) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("audio %s: truncated fmt chunk", path)
			}
			format := binary.LittleEndian.Uint16(raw[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("audio %s: unsupported WAV format %d (want PCM)", path, format)
			}
			channels = int(binary.LittleEndian.Uint16(raw[body+2 : body+4]))
			bitsPerSample = int(binary.LittleEndian.Uint16(raw[body+14 : body+16]))
		case "data":
			data = raw[body : body+size]
		}

		// Chunks are word aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if channels == 0 || data == nil {
		return nil, fmt.Errorf("audio %s: missing fmt or data chunk", path)
	}
	if bitsPerSample != 16 {
		return nil, fmt.Errorf("audio %s: unsupported bit depth %d (want 16)", path, bitsPerSample)
	}

	bytesPerFrame := 2 * channels
	n := len(data) / bytesPerFrame
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		var acc float32
		for c := 0; c < channels; c++ {
			v := int16(binary.LittleEndian.Uint16(data[i*bytesPerFrame+2*c:]))
			acc += float32(v) / 32768.0
		}
		samples[i] = acc / float32(channels)
	}
	return samples, nil
}
