package vecdb

import (
	"fmt"
	"sync/atomic"

	"github.com/seqdb/seqdb-sub000/pkg/rawdb"
)

// RawColumn is the basic column storage format: values are written
// as-is, with no compression, directly into the region's body. Best for
// random access and data that doesn't compress well.
type RawColumn[I Index, T Value] struct {
	weakDB    rawdb.WeakDB
	region    *rawdb.Region
	header    Header
	name      string
	indexType string

	pushed     []T
	prevPushed []T

	holes     *intSet
	prevHoles *intSet

	updated     *intMap[T]
	prevUpdated *intMap[T]

	hasStoredHoles bool
	storedLen      atomic.Int64
	prevStoredLen  int

	savedStampedChanges uint16
}

// ImportRaw opens (creating if necessary) a raw column.
func ImportRaw[I Index, T Value](opts ImportOptions) (*RawColumn[I, T], error) {
	return importRaw[I, T](opts, FormatRaw)
}

// ForcedImportRaw is [ImportRaw] but wipes and recreates the column empty
// on a header mismatch (wrong endian, wrong length, different version,
// different compression mode) — destructive by contract.
func ForcedImportRaw[I Index, T Value](opts ImportOptions) (*RawColumn[I, T], error) {
	col, err := importRaw[I, T](opts, FormatRaw)
	if err == nil || !headerMismatchTriggersReset(err) {
		return col, err
	}
	db := opts.DB
	if r, ok := db.GetRegion(opts.vecRegionName()); ok {
		_ = db.RemoveRegion(r)
	}
	if r, ok := db.GetRegion(opts.holesRegionName()); ok {
		_ = db.RemoveRegion(r)
	}
	return importRaw[I, T](opts, FormatRaw)
}

func importRaw[I Index, T Value](opts ImportOptions, format Format) (*RawColumn[I, T], error) {
	db := opts.DB
	region, err := db.CreateRegionIfNeeded(opts.vecRegionName())
	if err != nil {
		return nil, err
	}
	region.Acquire()

	m := region.Metadata()
	sizeT := uint64(sizeOfT[T]())
	if m.Len > 0 && (m.Len < HeaderSize || (m.Len-HeaderSize)%sizeT != 0) {
		region.Release()
		return nil, fmt.Errorf("%w: region %q has length %d", ErrWrongLength, opts.vecRegionName(), m.Len)
	}

	var header Header
	if m.Len == 0 {
		header, err = createAndWrite(db, region, opts.DataVersion, format)
	} else {
		header, err = importAndVerify(db, region, opts.DataVersion, format)
	}
	if err != nil {
		region.Release()
		return nil, err
	}

	holes, hasStoredHoles, err := readHolesRegion(db, opts.holesRegionName())
	if err != nil {
		region.Release()
		return nil, err
	}

	c := &RawColumn[I, T]{
		weakDB:              db.WeakRef(),
		region:              region,
		header:              header,
		name:                opts.Name,
		indexType:           opts.IndexType,
		holes:               holes,
		prevHoles:           holes.clone(),
		updated:             &intMap[T]{},
		prevUpdated:         &intMap[T]{},
		hasStoredHoles:      hasStoredHoles,
		savedStampedChanges: opts.SavedStampedChanges,
	}

	real := c.realStoredLen()
	c.prevStoredLen = real
	c.storedLen.Store(int64(real))

	return c, nil
}

// readHolesRegion reads a column's optional holes sidecar, returning an
// empty set (and hasStoredHoles=false) when it doesn't exist.
func readHolesRegion(db *rawdb.DB, id string) (*intSet, bool, error) {
	region, ok := db.GetRegion(id)
	if !ok {
		return &intSet{}, false, nil
	}
	buf := db.NewReader(region).ReadAll()
	indices := decodeValues[uint64](buf)
	out := make([]int, len(indices))
	for i, v := range indices {
		out[i] = int(v)
	}
	return newIntSetFrom(out), true, nil
}

func (c *RawColumn[I, T]) db() *rawdb.DB { return c.weakDB.Upgrade() }

// Name returns the column's base name (without the index-type prefix).
func (c *RawColumn[I, T]) Name() string { return c.name }

// DataVersion returns the on-disk column data version tag.
func (c *RawColumn[I, T]) DataVersion() uint64 { return c.header.DataVersion() }

// Stamp returns the column's current checkpoint stamp.
func (c *RawColumn[I, T]) Stamp() Stamp { return c.header.Stamp() }

func (c *RawColumn[I, T]) vecRegionName() string   { return c.indexType + "_" + c.name }
func (c *RawColumn[I, T]) holesRegionName() string { return c.vecRegionName() + "_holes" }

// StoredLen returns the number of values already persisted to the
// region body. Atomic: safe to read without any other lock.
func (c *RawColumn[I, T]) StoredLen() int { return int(c.storedLen.Load()) }

// realStoredLen derives the stored length from the region's current
// on-disk logical length: (region.len - 64) / sizeof(T).
func (c *RawColumn[I, T]) realStoredLen() int {
	m := c.region.Metadata()
	return int((m.Len - HeaderSize) / uint64(sizeOfT[T]()))
}

// PushedLen returns the number of values appended since the last flush.
func (c *RawColumn[I, T]) PushedLen() int { return len(c.pushed) }

// Len returns the column's total logical length: stored_len + pushed_len.
func (c *RawColumn[I, T]) Len() int { return c.StoredLen() + c.PushedLen() }

func (c *RawColumn[I, T]) isPushedEmpty() bool { return len(c.pushed) == 0 }

// Has reports whether index is within the column's current logical
// length (regardless of whether it's a hole).
func (c *RawColumn[I, T]) Has(i I) bool { return toUsize(i) < c.Len() }

func (c *RawColumn[I, T]) reader() *rawdb.Reader { return c.db().NewReader(c.region) }

// Read returns the value at i exactly as stored on disk, ignoring
// overlays. i must be within [0, real_stored_len).
func (c *RawColumn[I, T]) Read(i I) (T, error) {
	return c.readAt(toUsize(i), c.reader())
}

func (c *RawColumn[I, T]) readAt(index int, reader *rawdb.Reader) (T, error) {
	var zero T
	n := uint64(sizeOfT[T]())
	off := HeaderSize + uint64(index)*n
	buf, err := reader.Read(off, n)
	if err != nil {
		return zero, err
	}
	return decodeOne[T](buf), nil
}

// uncheckedReadAt reads a value that is physically present in the
// region's reserved extent but may be beyond the region's current
// logical length (used by SerializeChanges, through priorValueAt, to
// capture values about to be masked by a truncate or an update).
func (c *RawColumn[I, T]) uncheckedReadAt(index int, reader *rawdb.Reader) (T, error) {
	var zero T
	n := uint64(sizeOfT[T]())
	off := HeaderSize + uint64(index)*n
	buf, err := reader.UncheckedRead(off, n)
	if err != nil {
		return zero, err
	}
	return decodeOne[T](buf), nil
}

// GetOrRead consults overlays first (holes → "not found"; i >= stored_len
// → pushed; updated[i] → that value; else reads from disk).
func (c *RawColumn[I, T]) GetOrRead(i I) (T, bool, error) {
	return c.getOrReadAt(toUsize(i), c.reader())
}

func (c *RawColumn[I, T]) getOrReadAt(index int, reader *rawdb.Reader) (T, bool, error) {
	var zero T
	if !c.holes.isEmpty() && c.holes.contains(index) {
		return zero, false, nil
	}

	storedLen := c.StoredLen()
	if index >= storedLen {
		if off := index - storedLen; off >= 0 && off < len(c.pushed) {
			return c.pushed[off], true, nil
		}
		return zero, false, nil
	}

	if !c.updated.isEmpty() {
		if v, ok := c.updated.get(index); ok {
			return v, true, nil
		}
	}

	v, err := c.readAt(index, reader)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Push appends value to the pushed overlay.
func (c *RawColumn[I, T]) Push(v T) { c.pushed = append(c.pushed, v) }

// PushIfNeeded pushes value only if i == len(); a lower i is a silent
// no-op (it was already pushed), a higher i is a contract violation.
func (c *RawColumn[I, T]) PushIfNeeded(i I, v T) error {
	index := toUsize(i)
	length := c.Len()
	if index == length {
		c.Push(v)
		return nil
	}
	if index < length {
		return nil
	}
	return fmt.Errorf("%w: index=%d len=%d", ErrIndexTooHigh, index, length)
}

const maxPushedCacheBytes = 256 * 1024 * 1024

// ForcedPushAt truncates down to i first if needed, then pushes, and
// triggers a flush once the pushed cache reaches 256 MiB.
func (c *RawColumn[I, T]) ForcedPushAt(i I, v T) error {
	index := toUsize(i)
	length := c.Len()
	if index > length {
		return fmt.Errorf("%w: index=%d len=%d", ErrIndexTooHigh, index, length)
	}
	if index < length {
		if err := c.Truncate(fromUsize[I](index)); err != nil {
			return err
		}
	}
	c.Push(v)

	if len(c.pushed)*sizeOfT[T]() >= maxPushedCacheBytes {
		return c.Flush()
	}
	return nil
}

// UpdateOrPush updates index if it's within the column's current length,
// or pushes if it is exactly the next index.
func (c *RawColumn[I, T]) UpdateOrPush(i I, v T) error {
	index := toUsize(i)
	length := c.Len()
	switch {
	case index > length:
		return fmt.Errorf("%w: index=%d len=%d", ErrIndexTooHigh, index, length)
	case index == length:
		c.Push(v)
		return nil
	default:
		return c.Update(i, v)
	}
}

// Update requires i < len(). If i >= stored_len it overwrites the
// corresponding pushed slot; else it overrides via the updated overlay
// and clears any hole at i.
func (c *RawColumn[I, T]) Update(i I, v T) error {
	return c.update(toUsize(i), v)
}

func (c *RawColumn[I, T]) update(index int, v T) error {
	storedLen := c.StoredLen()
	if index >= storedLen {
		off := index - storedLen
		if off < 0 || off >= len(c.pushed) {
			return fmt.Errorf("%w: index=%d", ErrIndexTooHigh, index)
		}
		c.pushed[off] = v
		return nil
	}

	if !c.holes.isEmpty() {
		c.holes.remove(index)
	}
	c.updated.set(index, v)
	return nil
}

// Delete adds i to the holes overlay (no-op if i is already out of
// range) and drops any updated[i].
func (c *RawColumn[I, T]) Delete(i I) {
	index := toUsize(i)
	if index < c.Len() {
		c.unsafeDelete(index)
	}
}

func (c *RawColumn[I, T]) unsafeDelete(index int) {
	if !c.updated.isEmpty() {
		c.updated.delete(index)
	}
	c.holes.insert(index)
}

// Take reads the value at i (if any) and deletes it in the same step.
func (c *RawColumn[I, T]) Take(i I) (T, bool, error) {
	v, ok, err := c.GetOrRead(i)
	if err != nil {
		var zero T
		return zero, false, err
	}
	if ok {
		c.unsafeDelete(toUsize(i))
	}
	return v, ok, nil
}

// GetFirstEmptyIndex returns the smallest hole, or len() if there is none.
func (c *RawColumn[I, T]) GetFirstEmptyIndex() I {
	if h, ok := c.holes.first(); ok {
		return fromUsize[I](h)
	}
	return fromUsize[I](c.Len())
}

// FillFirstHoleOrPush writes value into the smallest hole, or appends it
// if there are no holes, returning the index it landed at.
func (c *RawColumn[I, T]) FillFirstHoleOrPush(v T) (I, error) {
	if h, ok := c.holes.popFirst(); ok {
		if err := c.update(h, v); err != nil {
			return fromUsize[I](0), err
		}
		return fromUsize[I](h), nil
	}
	c.Push(v)
	return fromUsize[I](c.Len() - 1), nil
}

// Truncate drops pushed/updated/holes entries at indices >= n, and
// shrinks the logical stored_len if n < stored_len; it does not reclaim
// on-disk space until the next flush.
func (c *RawColumn[I, T]) Truncate(n I) error {
	return c.truncateIfNeeded(toUsize(n))
}

func (c *RawColumn[I, T]) truncateIfNeeded(index int) error {
	storedLen := c.StoredLen()
	pushedLen := len(c.pushed)
	length := storedLen + pushedLen

	if index >= length {
		return nil
	}

	if last, ok := c.holes.last(); ok && last >= index {
		c.holes.retainLess(index)
	}
	if last, ok := c.updated.lastKey(); ok && last >= index {
		c.updated.retainLess(index)
	}

	if index <= storedLen {
		c.pushed = c.pushed[:0]
	} else {
		c.pushed = c.pushed[:index-storedLen]
	}

	if index >= storedLen {
		return nil
	}
	c.storedLen.Store(int64(index))
	return nil
}

// Reset clears the column back to empty: truncates to 0 and drops every
// overlay.
func (c *RawColumn[I, T]) Reset() error {
	return c.truncateIfNeeded(0)
}

// IsDirty reports whether the column has any overlay state: unflushed
// pushed or updated values, or holes (which stay in memory after a
// flush).
func (c *RawColumn[I, T]) IsDirty() bool {
	return !c.isPushedEmpty() || !c.holes.isEmpty() || !c.updated.isEmpty()
}

func (c *RawColumn[I, T]) writeHeaderIfNeeded() error {
	return c.header.writeIfModified(c.db(), c.region)
}

// Flush persists pushed/updated/holes overlays to the region and clears
// pushed and updated; holes stay in memory as the persisted hole set.
func (c *RawColumn[I, T]) Flush() error {
	if err := c.writeHeaderIfNeeded(); err != nil {
		return err
	}

	db := c.db()
	storedLen := c.StoredLen()
	pushedLen := len(c.pushed)
	realStoredLen := c.realStoredLen()
	truncated := storedLen < realStoredLen
	expanded := storedLen > realStoredLen
	hasNewData := pushedLen != 0
	hasUpdatedData := !c.updated.isEmpty()
	hasHoles := !c.holes.isEmpty()
	hadHoles := c.hasStoredHoles

	if !truncated && !expanded && !hasNewData && !hasUpdatedData && !hasHoles && !hadHoles {
		return nil
	}

	from := HeaderSize + uint64(storedLen)*uint64(sizeOfT[T]())

	sizeT := sizeOfT[T]()
	if hasNewData {
		data := encodeValues(c.pushed)
		if err := db.WriteToRegion(c.region, data, &from, true); err != nil {
			return err
		}
		c.pushed = nil
		c.storedLen.Store(int64(storedLen + pushedLen))
	} else if truncated {
		if err := db.TruncateRegion(c.region, from); err != nil {
			return err
		}
	}

	if hasUpdatedData {
		keys, vals := c.updated.items()
		for idx := range keys {
			at := HeaderSize + uint64(keys[idx])*uint64(sizeT)
			data := encodeValues([]T{vals[idx]})
			if err := db.WriteToRegion(c.region, data, &at, false); err != nil {
				return err
			}
		}
		c.updated.clear()
	}

	if hasHoles {
		c.hasStoredHoles = true
		holesRegion, err := db.CreateRegionIfNeeded(c.holesRegionName())
		if err != nil {
			return err
		}
		sorted := c.holes.sorted()
		u64s := make([]uint64, len(sorted))
		for i, v := range sorted {
			u64s[i] = uint64(v)
		}
		data := encodeValues(u64s)
		zero := uint64(0)
		if err := db.WriteToRegion(holesRegion, data, &zero, true); err != nil {
			return err
		}
	} else if hadHoles {
		c.hasStoredHoles = false
		if r, ok := db.GetRegion(c.holesRegionName()); ok {
			_ = db.RemoveRegion(r)
		}
	}

	return nil
}

// Remove drops the column's region (and its holes sidecar, if any) from
// the database.
func (c *RawColumn[I, T]) Remove() error {
	db := c.db()
	c.region.Release()
	if err := db.RemoveRegion(c.region); err != nil {
		return err
	}
	if c.hasStoredHoles {
		if r, ok := db.GetRegion(c.holesRegionName()); ok {
			_ = db.RemoveRegion(r)
		}
	}
	return nil
}
