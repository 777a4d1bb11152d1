package mosaic

import (
	"encoding/binary"
	"errors"
	"image"
	"image/png"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// writeNoiseImage writes a 64x64 grayscale PNG of seeded noise: plenty
// of gradient structure, so every patch clears the contrast threshold.
func writeNoiseImage(t *testing.T, path string, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// writeBlankImage writes a uniform gray PNG: zero gradients everywhere,
// so no patch clears the contrast threshold.
func writeBlankImage(t *testing.T, path string) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// writeToneWAV writes a mono 16-bit PCM WAV holding a sine tone.
func writeToneWAV(t *testing.T, path string, samples int, freq float64) {
	t.Helper()
	writeWAVSamples(t, path, func(i int) int16 {
		return int16(16000 * math.Sin(2*math.Pi*freq*float64(i)/8000))
	}, samples)
}

// writeSilentWAV writes a mono 16-bit PCM WAV of pure silence.
func writeSilentWAV(t *testing.T, path string, samples int) {
	t.Helper()
	writeWAVSamples(t, path, func(int) int16 { return 0 }, samples)
}

func writeWAVSamples(t *testing.T, path string, sample func(i int) int16, n int) {
	t.Helper()

	dataLen := 2 * n
	buf := make([]byte, 0, 44+dataLen)
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataLen))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, 1) // mono
	buf = binary.LittleEndian.AppendUint32(buf, 8000)
	buf = binary.LittleEndian.AppendUint32(buf, 16000)
	buf = binary.LittleEndian.AppendUint16(buf, 2)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataLen))
	for i := 0; i < n; i++ {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(sample(i)))
	}

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDescriptorDim(t *testing.T) {
	if dim, err := DescriptorDim(FeatureSIFT); err != nil || dim != SIFTDescriptorDim {
		t.Errorf("sift: got (%d, %v), want (%d, nil)", dim, err, SIFTDescriptorDim)
	}
	if dim, err := DescriptorDim(FeatureMFCC); err != nil || dim != MFCCDescriptorDim {
		t.Errorf("mfcc: got (%d, %v), want (%d, nil)", dim, err, MFCCDescriptorDim)
	}
	if _, err := DescriptorDim("surf"); !errors.Is(err, ErrUnknownFeatureKind) {
		t.Errorf("got %v, want ErrUnknownFeatureKind", err)
	}
}

func TestExtractImageDescriptors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.png")
	writeNoiseImage(t, path, 1)

	descriptors, err := ExtractImageDescriptors(path)
	if err != nil {
		t.Fatalf("ExtractImageDescriptors: %v", err)
	}
	// 64x64 image, 16px patches on an 8px stride: 7x7 grid.
	if len(descriptors) != 49 {
		t.Errorf("got %d descriptors, want 49", len(descriptors))
	}
	for i, d := range descriptors {
		if len(d) != SIFTDescriptorDim {
			t.Fatalf("descriptor %d has dimension %d, want %d", i, len(d), SIFTDescriptorDim)
		}
		if !approxEqual(Norm(d), 1) {
			t.Fatalf("descriptor %d has norm %v, want 1", i, Norm(d))
		}
	}
}

func TestExtractImageDescriptorsDeterministic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.png")
	writeNoiseImage(t, path, 2)

	d1, err := ExtractImageDescriptors(path)
	if err != nil {
		t.Fatalf("first extraction: %v", err)
	}
	d2, err := ExtractImageDescriptors(path)
	if err != nil {
		t.Fatalf("second extraction: %v", err)
	}
	if len(d1) != len(d2) {
		t.Fatalf("descriptor counts differ: %d vs %d", len(d1), len(d2))
	}
	for i := range d1 {
		for j := range d1[i] {
			if d1[i][j] != d2[i][j] {
				t.Fatalf("descriptor %d component %d differs", i, j)
			}
		}
	}
}

func TestExtractImageDescriptorsBlankImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.png")
	writeBlankImage(t, path)

	descriptors, err := ExtractImageDescriptors(path)
	if err == nil {
		t.Fatal("blank image produced no error")
	}
	if len(descriptors) != 0 {
		t.Errorf("blank image produced %d descriptors, want 0", len(descriptors))
	}
}

func TestExtractImageDescriptorsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.png")
	if err := os.WriteFile(path, []byte("definitely not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ExtractImageDescriptors(path); err == nil {
		t.Fatal("corrupt file produced no error")
	}
}

func TestExtractImageDescriptorsMissingFile(t *testing.T) {
	if _, err := ExtractImageDescriptors(filepath.Join(t.TempDir(), "nope.png")); err == nil {
		t.Fatal("missing file produced no error")
	}
}

func TestExtractAudioDescriptors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeToneWAV(t, path, 4096, 440)

	descriptors, err := ExtractAudioDescriptors(path)
	if err != nil {
		t.Fatalf("ExtractAudioDescriptors: %v", err)
	}
	// 4096 samples, 512-sample frames on a 256 hop: 15 frames.
	if len(descriptors) != 15 {
		t.Errorf("got %d descriptors, want 15", len(descriptors))
	}
	for i, d := range descriptors {
		if len(d) != MFCCDescriptorDim {
			t.Fatalf("descriptor %d has dimension %d, want %d", i, len(d), MFCCDescriptorDim)
		}
	}
}

func TestExtractAudioDescriptorsSilentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silence.wav")
	writeSilentWAV(t, path, 4096)

	descriptors, err := ExtractAudioDescriptors(path)
	if err == nil {
		t.Fatal("silent file produced no error")
	}
	if len(descriptors) != 0 {
		t.Errorf("silent file produced %d descriptors, want 0", len(descriptors))
	}
}

func TestExtractAudioDescriptorsNotWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.wav")
	if err := os.WriteFile(path, []byte("RIFFxxxxJUNK"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ExtractAudioDescriptors(path); err == nil {
		t.Fatal("non-WAV file produced no error")
	}
}

func TestExtractDescriptorsUnknownKind(t *testing.T) {
	if _, err := ExtractDescriptors("whatever.png", "surf"); !errors.Is(err, ErrUnknownFeatureKind) {
		t.Errorf("got %v, want ErrUnknownFeatureKind", err)
	}
}

func TestDetectMediaKind(t *testing.T) {
	tests := []struct {
		path string
		want MediaKind
	}{
		{"photo.JPG", MediaImage},
		{"photo.jpeg", MediaImage},
		{"diagram.png", MediaImage},
		{"song.wav", MediaAudio},
		{"song.FLAC", MediaAudio},
		{"notes.txt", MediaUnknown},
		{"noextension", MediaUnknown},
	}
	for _, tt := range tests {
		if got := DetectMediaKind(tt.path); got != tt.want {
			t.Errorf("DetectMediaKind(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
