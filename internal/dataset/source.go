// Package dataset loads the raw engagement CSV, cleans it and splits it for
// training. Where the bytes come from is injected through Source.
package dataset

import (
	"bytes"
	"context"
	"io"
	"os"

	"engagelens/internal/blob"
)

// Source yields the raw CSV stream.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FileSource reads a local file.
type FileSource struct{ Path string }

func (s FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return os.Open(s.Path)
}

// BlobSource reads one object from a blob.Store.
type BlobSource struct {
	Store blob.Store
	Key   string
}

func (s BlobSource) Open(ctx context.Context) (io.ReadCloser, error) {
	b, err := s.Store.Get(ctx, s.Key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}
