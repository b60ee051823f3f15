package mmap

import "errors"

// AccessPattern provides hints to the kernel about how the data will be accessed.
type AccessPattern int

const (
	// AccessDefault is the default access pattern (no specific advice).
	AccessDefault AccessPattern = iota
	// AccessSequential expects data to be accessed sequentially.
	AccessSequential
	// AccessRandom expects data to be accessed randomly.
	AccessRandom
	// AccessWillNeed expects data to be accessed in the near future.
	AccessWillNeed
)

// Granularity is the alignment required for region offsets on every platform
// (Windows allocation granularity is 64 KiB).
const Granularity = 64 * 1024

var (
	// ErrClosed is returned when attempting to access a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned when the requested size is invalid.
	ErrInvalidSize = errors.New("mmap: invalid size")
	// ErrInvalidOffset is returned when the offset is negative or misaligned.
	ErrInvalidOffset = errors.New("mmap: invalid offset")
)

// Handle is the subset of a file needed to create a mapping.
type Handle interface {
	Fd() uintptr
}
