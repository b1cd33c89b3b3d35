package vecdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"

	atomicfile "github.com/natefinch/atomic"

	"github.com/seqdb/seqdb-sub000/pkg/rawdb"
)

// changesDir returns the directory a column's stamped change records
// live under: "<db>/<index-type>_<name>/changes".
func (c *RawColumn[I, T]) changesDir() string {
	return filepath.Join(c.db().Path(), c.vecRegionName(), "changes")
}

func putU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func putIndices(buf *bytes.Buffer, indices []int) {
	for _, i := range indices {
		putU64(buf, uint64(i))
	}
}

func putValues[T Value](buf *bytes.Buffer, values []T) {
	buf.Write(encodeValues(values))
}

func readU64(data []byte, pos *int) (uint64, error) {
	if *pos+8 > len(data) {
		return 0, ErrSerialization
	}
	v := binary.LittleEndian.Uint64(data[*pos : *pos+8])
	*pos += 8
	return v, nil
}

func readIndices(data []byte, pos *int, n int) ([]int, error) {
	out := make([]int, n)
	for i := range out {
		v, err := readU64(data, pos)
		if err != nil {
			return nil, err
		}
		out[i] = int(v)
	}
	return out, nil
}

func readValues[T Value](data []byte, pos *int, n int) ([]T, error) {
	size := n * sizeOfT[T]()
	if size < 0 || *pos+size > len(data) {
		return nil, ErrSerialization
	}
	raw := data[*pos : *pos+size]
	*pos += size
	out := make([]T, n)
	copy(out, decodeValues[T](raw))
	return out, nil
}

// SerializeChanges packs the delta between the column's last-flushed
// generation (prev_pushed/prev_updated/prev_holes/prev_stored_len) and
// its current in-memory state into a stamped change record, used by
// [RawColumn.StampedFlushWithChanges] to make a later [RawColumn.Rollback]
// possible.
func (c *RawColumn[I, T]) SerializeChanges() ([]byte, error) {
	var buf bytes.Buffer
	reader := c.reader()

	putU64(&buf, uint64(c.Stamp()))

	prevStoredLen := c.prevStoredLen
	storedLen := c.StoredLen()
	putU64(&buf, uint64(prevStoredLen))
	putU64(&buf, uint64(storedLen))

	truncated := 0
	if prevStoredLen > storedLen {
		truncated = prevStoredLen - storedLen
	}
	putU64(&buf, uint64(truncated))
	if truncated > 0 {
		vals := make([]T, truncated)
		for i := range vals {
			idx := storedLen + i
			v, err := c.priorValueAt(idx, reader)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		putValues(&buf, vals)
	}

	putU64(&buf, uint64(len(c.prevPushed)))
	putValues(&buf, c.prevPushed)

	putU64(&buf, uint64(len(c.pushed)))
	putValues(&buf, c.pushed)

	prevKeys, prevVals := c.prevUpdated.items()
	putU64(&buf, uint64(len(prevKeys)))
	putIndices(&buf, prevKeys)
	putValues(&buf, prevVals)

	keys, _ := c.updated.items()
	modVals := make([]T, len(keys))
	for i, k := range keys {
		v, err := c.priorValueAt(k, reader)
		if err != nil {
			return nil, err
		}
		modVals[i] = v
	}
	putU64(&buf, uint64(len(keys)))
	putIndices(&buf, keys)
	putValues(&buf, modVals)

	prevHoles := c.prevHoles.sorted()
	putU64(&buf, uint64(len(prevHoles)))
	putIndices(&buf, prevHoles)

	holes := c.holes.sorted()
	putU64(&buf, uint64(len(holes)))
	putIndices(&buf, holes)

	return buf.Bytes(), nil
}

// priorValueAt returns what index held before the current in-memory
// overlay: prev_updated's recorded value if any, else whatever is still
// physically on disk at that offset (which may be beyond the region's
// current logical length after a truncate).
func (c *RawColumn[I, T]) priorValueAt(index int, reader *rawdb.Reader) (T, error) {
	if v, ok := c.prevUpdated.get(index); ok {
		return v, nil
	}
	return c.uncheckedReadAt(index, reader)
}

// undoChanges applies a change record produced by [RawColumn.SerializeChanges]
// in reverse, restoring the column to the state it had before that
// stamp's changes were flushed.
func (c *RawColumn[I, T]) undoChanges(data []byte) error {
	pos := 0

	prevStamp, err := readU64(data, &pos)
	if err != nil {
		return err
	}
	c.header.updateStamp(Stamp(prevStamp))

	prevStoredLen64, err := readU64(data, &pos)
	if err != nil {
		return err
	}
	prevStoredLen := int(prevStoredLen64)

	if _, err := readU64(data, &pos); err != nil {
		return err
	}

	currentStoredLen := c.StoredLen()
	switch {
	case prevStoredLen < currentStoredLen:
		if err := c.truncateIfNeeded(prevStoredLen); err != nil {
			return err
		}
	case prevStoredLen > currentStoredLen:
		c.storedLen.Store(int64(prevStoredLen))
	}

	truncatedCount64, err := readU64(data, &pos)
	if err != nil {
		return err
	}
	truncatedCount := int(truncatedCount64)

	c.pushed = c.pushed[:0]

	if truncatedCount > 0 {
		vals, err := readValues[T](data, &pos, truncatedCount)
		if err != nil {
			return err
		}
		startIndex := prevStoredLen - truncatedCount
		for i, v := range vals {
			c.updated.set(startIndex+i, v)
		}
	}

	prevPushedLen, err := readU64(data, &pos)
	if err != nil {
		return err
	}
	prevPushed, err := readValues[T](data, &pos, int(prevPushedLen))
	if err != nil {
		return err
	}
	c.pushed = append(c.pushed, prevPushed...)

	pushedLen, err := readU64(data, &pos)
	if err != nil {
		return err
	}
	if _, err := readValues[T](data, &pos, int(pushedLen)); err != nil {
		return err
	}

	prevModifiedLen, err := readU64(data, &pos)
	if err != nil {
		return err
	}
	if _, err := readIndices(data, &pos, int(prevModifiedLen)); err != nil {
		return err
	}
	if _, err := readValues[T](data, &pos, int(prevModifiedLen)); err != nil {
		return err
	}

	modifiedLen, err := readU64(data, &pos)
	if err != nil {
		return err
	}
	indices, err := readIndices(data, &pos, int(modifiedLen))
	if err != nil {
		return err
	}
	values, err := readValues[T](data, &pos, int(modifiedLen))
	if err != nil {
		return err
	}

	prevHolesLen, err := readU64(data, &pos)
	if err != nil {
		return err
	}
	prevHolesIdx, err := readIndices(data, &pos, int(prevHolesLen))
	if err != nil {
		return err
	}

	holesLen, err := readU64(data, &pos)
	if err != nil {
		return err
	}
	if _, err := readIndices(data, &pos, int(holesLen)); err != nil {
		return err
	}

	if !c.holes.isEmpty() || !c.prevHoles.isEmpty() || len(prevHolesIdx) != 0 {
		restored := newIntSetFrom(prevHolesIdx)
		c.holes = restored
		c.prevHoles = restored.clone()
	}

	for i, idx := range indices {
		if err := c.update(idx, values[i]); err != nil {
			return err
		}
	}

	c.prevUpdated = c.updated.clone()
	c.prevPushed = append([]T(nil), c.pushed...)

	return nil
}

// Rollback undoes the column's most recently flushed stamp, reading its
// change record from the changes directory.
func (c *RawColumn[I, T]) Rollback() error {
	path := filepath.Join(c.changesDir(), c.Stamp().String())
	data, err := c.db().FS().ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoChangeFile, err)
	}
	return c.undoChanges(data)
}

// RollbackBefore rolls back one stamped change at a time until the
// column's stamp is below target, returning the stamp it lands on. It
// stops early, without error, at the first stamp that has no change
// file. A no-op (returning the current stamp) if the column is already
// there.
func (c *RawColumn[I, T]) RollbackBefore(target Stamp) (Stamp, error) {
	if c.Stamp() < target {
		return c.Stamp(), nil
	}

	entries, err := c.db().FS().ReadDir(c.changesDir())
	if err != nil {
		return c.Stamp(), err
	}
	have := make(map[Stamp]bool, len(entries))
	for _, e := range entries {
		if s, ok := ParseStamp(e.Name()); ok {
			have[s] = true
		}
	}

	for c.Stamp() >= target {
		cur := c.Stamp()
		if !have[cur] {
			break
		}
		if err := c.Rollback(); err != nil {
			return c.Stamp(), err
		}
	}

	c.prevStoredLen = c.StoredLen()
	c.prevPushed = append([]T(nil), c.pushed...)
	c.prevUpdated = c.updated.clone()
	c.prevHoles = c.holes.clone()

	return c.Stamp(), nil
}

// StampedFlush stamps the column and flushes it without recording a
// change file. A column with SavedStampedChanges == 0 behaves this way.
func (c *RawColumn[I, T]) StampedFlush(stamp Stamp) error {
	c.header.updateStamp(stamp)
	return c.Flush()
}

// StampedFlushWithChanges writes a change record capturing the delta
// since the column's last flush, prunes change files beyond
// SavedStampedChanges, then flushes and stamps the column.
func (c *RawColumn[I, T]) StampedFlushWithChanges(stamp Stamp) error {
	if c.savedStampedChanges == 0 {
		return c.StampedFlush(stamp)
	}

	db := c.db()
	dir := c.changesDir()
	if err := db.FS().MkdirAll(dir, 0o755); err != nil {
		return err
	}

	entries, err := db.FS().ReadDir(dir)
	if err != nil {
		return err
	}

	older := make(map[Stamp]string)
	for _, e := range entries {
		s, ok := ParseStamp(e.Name())
		if !ok {
			continue
		}
		if s < stamp {
			older[s] = filepath.Join(dir, e.Name())
		} else {
			_ = db.FS().Remove(filepath.Join(dir, e.Name()))
		}
	}

	keys := make([]Stamp, 0, len(older))
	for s := range older {
		keys = append(keys, s)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	keep := int(c.savedStampedChanges) - 1
	if keep < 0 {
		keep = 0
	}
	for i := 0; i < len(keys)-keep; i++ {
		_ = db.FS().Remove(older[keys[i]])
	}

	holesBeforeFlush := c.holes.clone()

	data, err := c.SerializeChanges()
	if err != nil {
		return err
	}
	if err := atomicfile.WriteFile(filepath.Join(dir, stamp.String()), bytes.NewReader(data)); err != nil {
		return err
	}

	if err := c.StampedFlush(stamp); err != nil {
		return err
	}

	c.prevStoredLen = c.StoredLen()
	c.prevPushed = nil
	c.prevUpdated = &intMap[T]{}
	c.prevHoles = holesBeforeFlush

	return nil
}
