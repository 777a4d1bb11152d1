//go:build linux

package mosaic

import "golang.org/x/sys/unix"

// AvailableMemory returns a point-in-time reading of the bytes of
// system memory currently available, with no freshness guarantee beyond
// the call itself.
//
// On Linux this is free RAM plus buffer memory from sysinfo(2). If the
// syscall fails the conservative fallback figure is returned.
func AvailableMemory() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return fallbackAvailableBytes
	}
	return (uint64(info.Freeram) + uint64(info.Bufferram)) * uint64(info.Unit)
}
