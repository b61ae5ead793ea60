// Package storage persists the local note collection in a key-value store
// keyed by note id.
package storage

// Provider is a flat key-value store. Keys are note ids.
type Provider interface {
	// Keys returns every stored key.
	Keys() ([]string, error)
	// Get returns the value stored under key.
	Get(key string) ([]byte, error)
	// Put atomically stores value under key.
	Put(key string, value []byte) error
	// Delete removes key. Missing keys are not an error.
	Delete(key string) error
	// Clear removes every key.
	Clear() error
}
