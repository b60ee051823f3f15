// Package blobstore abstracts the object storage that volume backups are
// written to.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process, for tests
//   - LocalStore: a directory on the local file system, read through mmap
//   - CachingStore: block cache in front of another store
//   - s3.Store and s3.CatalogStore: Amazon S3, with DynamoDB for atomic
//     pointer updates
//   - minio.Store: MinIO and other S3-compatible services
//
// Blobs are immutable once written. Put replaces a blob as a whole; Create
// streams a new blob that becomes visible when closed.
package blobstore
