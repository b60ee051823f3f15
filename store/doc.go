// Package store implements the byte volume every persisted structure lives in.
//
// A volume is a position-addressed region with a single monotonic allocation
// cursor. Positions handed out by Allocate are stable and exclusive until the
// volume is Reset or Deleted; position 0 is never allocated and means "absent"
// to the layers above.
//
// Layout:
//
//	[0, 64)          preamble: magic "BRRW", version, cursor, slice size, root, CRC32C
//	[64, cursor)     allocations
//
// The volume is partitioned into fixed-size slices so no single mapped buffer
// grows past addressable limits. Accesses spanning a slice boundary are split.
//
// Three media share the same contract:
//
//   - NewMmapStore: file grown by whole slices, each slice mapped MAP_SHARED
//   - NewFileStore: positioned ReadAt/WriteAt through internal/fs
//   - NewMemoryStore: pooled byte slices accounted against a resource.Controller
package store
