package session

import "errors"

// Sentinel errors the façade returns. Transport layers map these onto
// status codes; everything below the façade reports failure as booleans.
var (
	// ErrNotFound means no persisted record exists for the id.
	ErrNotFound = errors.New("session not found")

	// ErrProcessing means a background job for the session is already
	// registered.
	ErrProcessing = errors.New("session already processing")

	// ErrPersistence means the store rejected a write the operation cannot
	// proceed without.
	ErrPersistence = errors.New("session persistence failure")
)
