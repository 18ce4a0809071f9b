package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ErrInvalidName is returned for blob names a store cannot confine, such as
// absolute paths or names climbing out of the root via "..".
var ErrInvalidName = errors.New("blobstore: invalid blob name")

// Store is an abstraction for accessing immutable data blobs.
type Store interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create creates a blob for streaming writes. The blob becomes visible
	// under name when Close returns nil.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a blob atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting an absent blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the names of all blobs with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	io.ReaderAt
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
}

// WritableBlob is a write-once handle created by Store.Create.
type WritableBlob interface {
	io.WriteCloser
	Sync() error
	// Abort discards everything written so far; the blob does not appear.
	// Close after Abort is a no-op.
	Abort() error
}

// Mappable is an optional interface for Blobs that support memory mapping.
type Mappable interface {
	// Bytes returns the underlying byte slice.
	// The slice is valid until the Blob is closed.
	// This is a zero-copy operation if supported.
	Bytes() ([]byte, error)
}

// ReadAll reads the full contents of a blob into a fresh buffer.
func ReadAll(b Blob) ([]byte, error) {
	size := b.Size()
	out := make([]byte, size)
	if size == 0 {
		return out, nil
	}

	if m, ok := b.(Mappable); ok {
		data, err := m.Bytes()
		if err == nil {
			copy(out, data)
			return out, nil
		}
	}

	if _, err := io.ReadFull(io.NewSectionReader(b, 0, size), out); err != nil {
		return nil, err
	}
	return out, nil
}
