package rawdb

import "fmt"

// Reader is a region-scoped, bounds-checked view into the mmap. Offsets
// are relative to the region's content, not the data file.
type Reader struct {
	db     *DB
	region *Region
}

func newReader(db *DB, region *Region) *Reader {
	return &Reader{db: db, region: region}
}

// unsafeRead returns a direct slice into the mmap for [off, off+n)
// relative to the region start, without bounds-checking against the
// region's logical length (only against the mmap's own size). Callers
// must not retain the slice past the current operation.
func (r *Reader) unsafeRead(off, n uint64) []byte {
	m := r.region.Metadata()
	return r.db.mmap.sliceUnsafe(m.Start+off, n)
}

// Read returns a copy of n bytes at off, bounds-checked against the
// region's logical length.
func (r *Reader) Read(off, n uint64) ([]byte, error) {
	m := r.region.Metadata()
	if off+n > m.Len {
		return nil, fmt.Errorf("rawdb: read [%d,%d) exceeds region length %d", off, off+n, m.Len)
	}
	return r.db.mmap.read(m.Start+off, n), nil
}

// UncheckedRead returns a copy of n bytes at off, bounds-checked only
// against the region's reserved extent rather than its logical length.
// Used to read bytes that are still physically present (e.g. after a
// [DB.TruncateRegion] that only shrank the logical length) but are no
// longer reachable through [Reader.Read]'s length check.
func (r *Reader) UncheckedRead(off, n uint64) ([]byte, error) {
	m := r.region.Metadata()
	if off+n > m.Reserved {
		return nil, fmt.Errorf("rawdb: unchecked read [%d,%d) exceeds reserved extent %d", off, off+n, m.Reserved)
	}
	return r.db.mmap.read(m.Start+off, n), nil
}

// ReadAll returns a copy of the region's entire logical content.
func (r *Reader) ReadAll() []byte {
	m := r.region.Metadata()
	return r.db.mmap.read(m.Start, m.Len)
}

// Prefixed returns a copy of the first n bytes of the region, regardless
// of the region's recorded length (used to read a fixed-size header
// before the rest of the column body is known to be valid).
func (r *Reader) Prefixed(n uint64) ([]byte, error) {
	m := r.region.Metadata()
	if n > m.Reserved {
		return nil, fmt.Errorf("rawdb: prefix read of %d bytes exceeds reserved extent %d", n, m.Reserved)
	}
	return r.db.mmap.read(m.Start, n), nil
}

// RegionMetadata returns the current metadata of the region this reader
// is scoped to.
func (r *Reader) RegionMetadata() RegionMetadata {
	return r.region.Metadata()
}
