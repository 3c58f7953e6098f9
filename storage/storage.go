// Package storage defines the transactional key-value substrate that backs the route graph.
package storage

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Reader.Get when a key has no value.
var ErrNotFound = errors.New("storage: key not found")

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("storage: closed")
	// ErrReadOnly is returned when a read-only view is asked to write.
	ErrReadOnly = errors.New("storage: read-only transaction")
)

// Reader reads keys within a transaction.
type Reader interface {
	// Get returns the value stored under key or ErrNotFound
	Get(key []byte) ([]byte, error)
}

// Writer reads and writes keys within a transaction.
type Writer interface {
	Reader
	// Set stages value under key. Staged writes are visible to later reads in the same transaction.
	Set(key, value []byte) error
}

// Store is a key-value store with all-or-nothing write transactions.
type Store interface {
	// View runs fn against a read-only view of the store
	View(ctx context.Context, fn func(r Reader) error) error
	// Update runs fn against a write transaction. If fn returns an error, none of its writes are applied.
	Update(ctx context.Context, fn func(w Writer) error) error
	// Close releases the store's resources
	Close() error
}

// IsNotFound returns true if err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
