// Package mmap provides memory-mapped file access.
//
// Two kinds of mappings are supported:
//
//   - Open maps a whole file read-only (blob reads, zero-copy).
//   - MapRegion maps a window of a file read/write, shared with the file, so
//     stores can address a large volume as a series of fixed-size slices.
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2), msync(2), madvise(2)
//   - Windows: CreateFileMapping/MapViewOfFile/FlushViewOfFile (advise is a no-op)
//
// # Thread Safety
//
// Close is idempotent and guarded by an atomic flag. Callers must guarantee
// that no goroutine touches Bytes() after Close returns.
package mmap
