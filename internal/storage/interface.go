package storage

import "context"

// UpdateFunc receives the current value of a key (nil when never written)
// and returns the value to store. Returning nil data leaves the key as is.
// The ctx passed in carries the store's lock; nested calls on the same store
// must use it.
type UpdateFunc func(ctx context.Context, current []byte) ([]byte, error)

// BlobStore is a key/value store of opaque documents. The engine keeps the
// whole reminder collection under one key and rewrites it on every change.
type BlobStore interface {
	// Get returns nil data and a nil error when the key has never been written.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
	// Update is a read-modify-write of key that excludes every other Update
	// of the same key, from this process or any other sharing the store.
	// An error from fn is returned as is and nothing is written.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Close() error
}

// Locator is implemented by stores backed by a local file, so the daemon can watch it for changes.
type Locator interface {
	GetConfigPath() string
}
