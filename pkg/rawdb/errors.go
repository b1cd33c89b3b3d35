package rawdb

import "errors"

// Sentinel errors, one per error kind named in the design. Check with
// [errors.Is]; never match on the error string.
var (
	// ErrLocked is returned by [Open] when another process already holds
	// the advisory lock on the data file or the region sidecar.
	ErrLocked = errors.New("rawdb: database is locked by another process")

	// ErrRegionNotFound is returned when a region id or slot index has no
	// live region.
	ErrRegionNotFound = errors.New("rawdb: region not found")

	// ErrRegionExists is returned by the region table's create when the id
	// is already live.
	ErrRegionExists = errors.New("rawdb: region already exists")

	// ErrRegionReferenced is returned by RemoveRegion when the region
	// handle passed in is not the sole live reference.
	ErrRegionReferenced = errors.New("rawdb: region is still referenced")

	// ErrWriteOutOfBounds is returned when a positional write's offset
	// exceeds the region's current length.
	ErrWriteOutOfBounds = errors.New("rawdb: write position out of bounds")

	// ErrTruncateInvalid is returned when a truncate's target length
	// exceeds the region's current length.
	ErrTruncateInvalid = errors.New("rawdb: truncate beyond region length")

	// ErrMetadataMalformed is returned when a region slot record fails to
	// parse as either a valid record or a tombstone.
	ErrMetadataMalformed = errors.New("rawdb: region metadata malformed")

	// ErrLayoutMismatch indicates a fatal internal inconsistency between
	// the region table and the layout map. Not a user error.
	ErrLayoutMismatch = errors.New("rawdb: layout mismatch (internal invariant violated)")

	// ErrPunchUnsupported is returned by punch when the host OS exposes no
	// range-deallocate syscall. Compact treats this as non-fatal.
	ErrPunchUnsupported = errors.New("rawdb: hole-punching unsupported on this platform")

	// ErrClosed is returned by DB operations after Close has been called.
	ErrClosed = errors.New("rawdb: database is closed")

	// ErrInvalidID is returned when a region id is empty, exceeds 1024
	// bytes, or contains control characters.
	ErrInvalidID = errors.New("rawdb: invalid region id")
)
