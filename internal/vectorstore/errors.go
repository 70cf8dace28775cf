package vectorstore

import "errors"

var (
	// ErrCollectionNotFound is returned when switching to a collection
	// that does not exist. Callers must create collections explicitly.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrStorage is returned when records cannot be persisted after all
	// retries.
	ErrStorage = errors.New("vector storage failed")
)
