// Package storage holds uploaded files such as profile pictures.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Storage is a flat key-value file store. Keys are slash separated, e.g.
// "<user>/profile-pics/<file>".
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte, contentType string) error
	Delete(ctx context.Context, path string) error
	// URL returns the address clients use to fetch the object.
	URL(path string) string
}
