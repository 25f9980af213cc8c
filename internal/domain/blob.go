package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BatchArchiver stores the raw batches a cycle fetched.
type BatchArchiver interface {
	ArchiveCycle(ctx context.Context, report CycleReport) (int, error)
}
