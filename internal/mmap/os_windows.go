//go:build windows

package mmap

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func osMap(h Handle, offset int64, size int, writable bool) ([]byte, func([]byte) error, func([]byte) error, error) {
	protect := uint32(windows.PAGE_READONLY)
	access := uint32(windows.FILE_MAP_READ)
	if writable {
		protect = windows.PAGE_READWRITE
		access = windows.FILE_MAP_WRITE
	}

	// Max size 0/0 maps the current file length, which the caller already grew.
	fm, err := windows.CreateFileMapping(windows.Handle(h.Fd()), nil, protect, 0, 0, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	// The view keeps its own reference to the mapping object.
	defer windows.CloseHandle(fm)

	off := uint64(offset)
	addr, err := windows.MapViewOfFile(fm, access, uint32(off>>32), uint32(off), uintptr(size))
	if err != nil {
		return nil, nil, nil, err
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)

	unmap := func([]byte) error {
		return windows.UnmapViewOfFile(addr)
	}
	flush := func([]byte) error {
		return windows.FlushViewOfFile(addr, uintptr(size))
	}
	return data, unmap, flush, nil
}

func osAdvise(data []byte, pattern AccessPattern) error {
	_ = data
	_ = pattern
	return nil
}
