// Package storage abstracts the object store that receives report copies.
package storage

import (
	"context"
	"io"
)

type UploadInput struct {
	Key         string
	ContentType string
	Body        io.Reader
	Size        int64
}

// Service uploads an object and returns the URL it can be fetched from.
type Service interface {
	PutObject(ctx context.Context, in UploadInput) (string, error)
}
