// Package blob abstracts where raw datasets and fitted artifacts live.
// The pipeline only ever sees Store; the backend is picked by config.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when a key does not exist.
var ErrNotFound = errors.New("blob not found")

// Store reads and writes whole objects by key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}
