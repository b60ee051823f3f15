// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", "burrow/",
//	    func(o *s3.Options) { o.Region = "eu-central-1" },
//	)
//
//	err = backup.Export(ctx, volume, store, "nightly.bak")
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads with CRC32C checksums for large backups
//   - Automatic pagination for listing
//   - CatalogStore: DynamoDB conditional writes for the LATEST pointer, so
//     concurrent publishers never overwrite each other silently
package s3
