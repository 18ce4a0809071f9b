// Package blobstore provides storage abstraction for the immutable blobs a
// cluster works with: job inputs, index chunks and job results.
//
// Store is the interface for reading and writing blobs. Implementations must
// be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: Local filesystem with mmap reads and atomic writes
//   - MemoryStore: In-memory store for tests and the local runner
//   - s3.Store: Amazon S3 with range reads and parallel uploads
//   - minio.Store: MinIO and other S3-compatible object stores
//
// A [Mux] routes locator-style names ("mem://inputs/a", "s3://chunks/b") to
// the store registered for their scheme, so job inputs can mix backends.
package blobstore
