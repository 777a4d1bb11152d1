//go:build !linux

package mosaic

// AvailableMemory returns a point-in-time estimate of the bytes of
// system memory currently available.
//
// Platforms without a cheap system-wide reading get a fixed
// conservative figure; the histogram phase then batches as if 1 GiB
// were free, which keeps the 80% ceiling meaningful without
// platform-specific probing.
func AvailableMemory() uint64 {
	return fallbackAvailableBytes
}
