// Package store provides a simple, goroutine safe key-value interface for
// keeping deposit archive payloads. Values are streams rather than byte
// slices, so arbitrarily large uploads can be saved without buffering them
// in memory.
//
// The FileSystem store is the usual production backend. The S3 store keeps
// payloads in a bucket, and the Memory store is for testing.
package store

import (
	"io"
)

// Store defines the basic stream based key-value store. Items are immutable
// once stored, but they may be deleted and then replaced with a new value.
//
// Since the FileSystem store uses the key as file names, keys should not
// contain forbidden filesystem characters, such as '/'.
type Store interface {
	// List returns a channel giving every key in the store.
	List() <-chan string

	// ListPrefix returns the keys beginning with the given prefix.
	ListPrefix(prefix string) ([]string, error)

	// Open returns a reader for the given key along with the payload size.
	Open(key string) (io.ReadCloser, int64, error)

	// Create makes a new entry and returns a writer to save data into it.
	// It is an error if the key already exists.
	Create(key string) (io.WriteCloser, error)

	// Delete removes the given key. Deleting a missing key is not an error.
	Delete(key string) error
}
