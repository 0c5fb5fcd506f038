// Package store holds job artifacts (rendered audio and voice-clone
// references) outside the job table. Backends live in subpackages.
package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("artifact not found")

type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns ErrNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete is a no-op for a missing key.
	Delete(ctx context.Context, key string) error
}
