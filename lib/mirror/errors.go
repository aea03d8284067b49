package mirror

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyOpen is returned by Open and Declare on an open mirror
	ErrAlreadyOpen = errors.New("mirror: already open")
	// ErrNotOpen is returned by operations that need an open connection
	ErrNotOpen = errors.New("mirror: not open")
	// ErrNotReady is returned by With before the initial sync finished
	ErrNotReady = errors.New("mirror: initial sync not finished")
	// ErrStillOpen is returned by Drop while the mirror is open
	ErrStillOpen = errors.New("mirror: close the mirror before dropping the store")
	// ErrUnknownCollection is returned for collection names the store doesn't know
	ErrUnknownCollection = errors.New("mirror: unknown collection")
	// ErrInvalidSchema is returned by Declare for unusable collection configs
	ErrInvalidSchema = errors.New("mirror: invalid collection schema")

	// ErrNotFound is returned by Update for a key that doesn't exist
	ErrNotFound = errors.New("mirror: record not found")
	// ErrMissingKey is returned when a record has no key and the collection can't generate one
	ErrMissingKey = errors.New("mirror: record has no key")
	// ErrInvalidKey is returned for keys that are neither numbers nor strings
	ErrInvalidKey = errors.New("mirror: invalid key")
	// ErrDuplicateKey is returned by Insert and Update if the key is taken
	ErrDuplicateKey = errors.New("mirror: duplicate key")
	// ErrConstraint is returned if a unique field would hold the same value twice
	ErrConstraint = errors.New("mirror: unique constraint violated")

	// ErrReadOnlyView is returned when a derived result is used where a writable view is needed
	ErrReadOnlyView = errors.New("mirror: derived results are read-only")
)

// PersistError describes a write-behind operation the backend rejected.
// The in-memory state is not rolled back.
type PersistError struct {
	Op         string // add, put, delete or clear
	Collection string
	Key        any // nil for clear
	Err        error
}

func (e *PersistError) Error() string {
	if e.Key == nil {
		return fmt.Sprintf("mirror: persist %s on %q failed: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mirror: persist %s of key %v on %q failed: %v", e.Op, e.Key, e.Collection, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
