package store

import (
	"context"
	"io"
)

// Blobs is a flat namespace of stored files.
type Blobs interface {
	// Create opens name for exclusive creation; ErrBlobExists if taken.
	Create(ctx context.Context, name string) (BlobWriter, error)
	// Open returns the content and size of name, or ErrBlobNotFound.
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)
	// Stat returns the size of name, or ErrBlobNotFound.
	Stat(ctx context.Context, name string) (int64, error)
	Remove(ctx context.Context, name string) error
	// Locate returns a human readable location for logs and resolutions.
	Locate(name string) string
	// Check verifies the backend is usable.
	Check(ctx context.Context) error
}

// BlobWriter receives the content of a blob being created. Exactly one of
// Commit or Abort must be called; Abort leaves nothing behind.
type BlobWriter interface {
	io.Writer
	Commit() error
	Abort() error
}
