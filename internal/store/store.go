// Package store provides the key-value storage that backs the cart snapshot.
package store

import (
	"context"
)

// KVStore is an interface for the persistent key-value storage used by the cart.
// It abstracts the underlying device storage, allowing for different implementations (e.g., in-memory, sqlite).
type KVStore interface {
	// Get retrieves the value stored under key.
	// Returns found=false and a nil error if nothing is stored under key.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value string) error
}
