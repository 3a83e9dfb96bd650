package artifact

import "errors"

var (
	// ErrNotFound is returned when an artifact for the given session / id pair
	// does not exist in the underlying store.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidName is returned for session or artifact ids that would escape
	// the store layout (empty, path separators, "." or "..").
	ErrInvalidName = errors.New("artifact: invalid name")
)
