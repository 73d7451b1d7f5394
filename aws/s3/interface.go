//go:generate mockgen -package mocks -destination mocks/interface.go -source=interface.go
package s3

import (
	"context"
	"io"
)

// Uploader stores report artifacts.
type Uploader interface {
	Putter
	BufferPutter
}

type Putter interface {
	Put(ctx context.Context, key string, data []byte) (err error)
}

// BufferPutter can be used to put a file to S3 since File implements Read and Seek.
type BufferPutter interface {
	BufferPut(ctx context.Context, key string, buf io.ReadSeeker) (err error)
}
