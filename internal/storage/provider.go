// Package storage defines the audio blob store abstraction.
package storage

// Provider is the interface for blob operations. Keys are slash-separated
// paths relative to the store root, e.g. "captures/<id>".
type Provider interface {
	// Read returns the bytes stored under key.
	Read(key string) ([]byte, error)
	// Write atomically stores content under key.
	Write(key string, content []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	// Move renames oldKey to newKey.
	Move(oldKey, newKey string) error
}
