// Package fs provides the filesystem seam used by the file-backed stores.
//
//   - [File]: an open volume file with positioned read/write, sync and truncate
//   - [FileSystem]: open/remove/stat/mkdir operations
//   - [LocalFS]: production implementation on top of the os package
//   - [FaultyFS]: test wrapper that injects write, read, sync and truncate failures
//
// Operations take no context.Context: local syscalls are not interruptible and
// the store layer defines no cancellation.
package fs
