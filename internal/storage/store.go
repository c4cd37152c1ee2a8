package storage

import (
	"context"
	"io"
)

// Store is a durable destination for enhanced images. Put must be atomic per
// key: readers observe either no object or the complete one.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Ref(key string) string
}
