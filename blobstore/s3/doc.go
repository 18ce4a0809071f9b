// Package s3 provides an Amazon S3 implementation of blobstore.Store.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(s3.NewFromConfig(cfg), "my-bucket", "dexgo/")
//
// # Features
//
//   - Range reads for efficient partial fetches
//   - Multipart uploads for large chunks
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
