//go:build unix

package mmap

import (
	"golang.org/x/sys/unix"
)

func osMap(h Handle, offset int64, size int, writable bool) ([]byte, func([]byte) error, func([]byte) error, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}

	data, err := unix.Mmap(int(h.Fd()), offset, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, nil, err
	}

	flush := func(b []byte) error {
		return unix.Msync(b, unix.MS_SYNC)
	}
	return data, unix.Munmap, flush, nil
}

func osAdvise(data []byte, pattern AccessPattern) error {
	if len(data) == 0 {
		return nil
	}

	var advice int
	switch pattern {
	case AccessSequential:
		advice = unix.MADV_SEQUENTIAL
	case AccessRandom:
		advice = unix.MADV_RANDOM
	case AccessWillNeed:
		advice = unix.MADV_WILLNEED
	default:
		advice = unix.MADV_NORMAL
	}

	// Advisory only: a misaligned slice is not worth failing for.
	if err := unix.Madvise(data, advice); err != nil && err != unix.EINVAL {
		return err
	}
	return nil
}
