package vecdb

import "errors"

// Sentinel errors, one per failure kind. Check with [errors.Is]; never
// match on the error string.
var (
	// ErrIndexTooHigh is returned by a positional operation whose index
	// is beyond what push_if_needed/forced_push_at allow.
	ErrIndexTooHigh = errors.New("vecdb: index too high")

	// ErrTruncateInvalid is returned when a truncate target exceeds the
	// column's current length.
	ErrTruncateInvalid = errors.New("vecdb: truncate beyond length")

	// ErrWriteOutOfBounds mirrors rawdb.ErrWriteOutOfBounds for the
	// column-level positional write path.
	ErrWriteOutOfBounds = errors.New("vecdb: write position out of bounds")

	// ErrHeaderVersion is returned when the on-disk header schema
	// version doesn't match what this build understands.
	ErrHeaderVersion = errors.New("vecdb: header version mismatch")

	// ErrDataVersion is returned when the caller-supplied column data
	// version disagrees with the on-disk header.
	ErrDataVersion = errors.New("vecdb: column data version mismatch")

	// ErrWrongEndian is returned when the header's format-flag byte is
	// not 0 or 1, indicating it was written on a host of the other
	// endianness.
	ErrWrongEndian = errors.New("vecdb: header written with different endianness")

	// ErrWrongLength is returned when a non-empty region is shorter than
	// the fixed header, or its body isn't a whole number of elements.
	ErrWrongLength = errors.New("vecdb: region has invalid length for header/value layout")

	// ErrDifferentCompressionMode is returned when the on-disk format
	// flag (raw vs compressed) disagrees with the variant being opened.
	ErrDifferentCompressionMode = errors.New("vecdb: column format (raw/compressed) mismatch")

	// ErrSerialization is returned when a stamped-change file is corrupt
	// or truncated.
	ErrSerialization = errors.New("vecdb: corrupt or truncated change record")

	// ErrNoChangeFile is returned by Rollback when no change file exists
	// for the column's current stamp.
	ErrNoChangeFile = errors.New("vecdb: no change file for current stamp")

	// ErrUnsupportedOnCompressed is returned by mutation operations the
	// compressed variant does not support: Update, Delete, Take,
	// Rollback, RollbackBefore, and StampedFlushWithChanges.
	ErrUnsupportedOnCompressed = errors.New("vecdb: operation unsupported on compressed columns")
)

// headerMismatchTriggersReset reports whether err is one of the five
// errors that [ForcedImport] treats as "wipe and recreate empty".
func headerMismatchTriggersReset(err error) bool {
	return errors.Is(err, ErrDifferentCompressionMode) ||
		errors.Is(err, ErrWrongEndian) ||
		errors.Is(err, ErrWrongLength) ||
		errors.Is(err, ErrHeaderVersion) ||
		errors.Is(err, ErrDataVersion)
}
