package pagecache

import (
	"errors"
	"fmt"
)

// Sentinel errors for the page cache.
var (
	// ErrEmptyBitmap is returned when a render function yields no pixels.
	ErrEmptyBitmap = errors.New("render produced an empty bitmap")

	// ErrInvariantViolation marks a byte-accounting mismatch. It indicates a
	// programming error in the cache, never a caller error.
	ErrInvariantViolation = errors.New("cache invariant violation")
)

// InvariantError reports a tracked size that disagrees with the entries.
type InvariantError struct {
	// Tracked is the counter value before repair.
	Tracked int64

	// Actual is the recomputed sum of entry sizes.
	Actual int64
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("cache invariant violation: tracked %d bytes, entries hold %d", e.Tracked, e.Actual)
}

// Is allows errors.Is to match InvariantError with ErrInvariantViolation.
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariantViolation
}
