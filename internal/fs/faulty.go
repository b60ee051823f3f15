package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("fs: injected fault")

// Fault describes the failures injected into files whose name matches a rule.
type Fault struct {
	// FailAfterBytes fails WriteAt once this many bytes were written to the file. -1 disables.
	FailAfterBytes int64
	// ShortWrite makes the failing WriteAt report a partial write instead of zero bytes.
	ShortWrite     bool
	FailOnRead     bool
	FailOnSync     bool
	FailOnTruncate bool
	Err            error
}

// FaultyFS is a FileSystem wrapper that injects errors.
type FaultyFS struct {
	FS    FileSystem
	mu    sync.Mutex
	rules map[string]Fault
}

// NewFaultyFS wraps fs (or Default if nil).
func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = Default
	}
	return &FaultyFS{
		FS:    fs,
		rules: make(map[string]Fault),
	}
}

// AddRule injects fault into every file opened afterwards whose name contains pattern.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = fault
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	fault := Fault{FailAfterBytes: -1}
	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) {
			fault = rule
		}
	}
	f.mu.Unlock()

	if fault.Err == nil {
		fault.Err = ErrInjected
	}
	return &faultyFile{File: file, fault: fault}, nil
}

func (f *FaultyFS) Remove(name string) error              { return f.FS.Remove(name) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.FS.Stat(name) }
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}
func (f *FaultyFS) Rename(oldpath, newpath string) error { return f.FS.Rename(oldpath, newpath) }

type faultyFile struct {
	File
	fault   Fault
	mu      sync.Mutex
	written int64
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	if ff.fault.FailAfterBytes >= 0 {
		ff.mu.Lock()
		remaining := ff.fault.FailAfterBytes - ff.written
		if int64(len(p)) > remaining {
			ff.mu.Unlock()
			if ff.fault.ShortWrite && remaining > 0 {
				n, _ := ff.File.WriteAt(p[:remaining], off)
				return n, nil
			}
			return 0, ff.fault.Err
		}
		ff.written += int64(len(p))
		ff.mu.Unlock()
	}
	return ff.File.WriteAt(p, off)
}

func (ff *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	if ff.fault.FailOnRead {
		return 0, ff.fault.Err
	}
	return ff.File.ReadAt(p, off)
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fault.Err
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Truncate(size int64) error {
	if ff.fault.FailOnTruncate {
		return ff.fault.Err
	}
	return ff.File.Truncate(size)
}
