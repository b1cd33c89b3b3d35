package vecdb

import (
	"bytes"
	"fmt"

	"github.com/seqdb/seqdb-sub000/pkg/rawdb"
)

// maxUncompressedPageSize bounds how many raw bytes a single compressed
// page may decode to before being handed to the [Codec].
const maxUncompressedPageSize = 16 * 1024

// CompressedColumn is the paged storage format: values are grouped into
// fixed-capacity pages and run through a [Codec] before being written to
// the region. Best for sequential access to numerical data; random
// access costs a full page decode.
//
// Mutation beyond append/truncate/reset is unsupported: Update, Delete,
// Take, Rollback, RollbackBefore and StampedFlushWithChanges all return
// [ErrUnsupportedOnCompressed] rather than corrupt the page table, which
// has no notion of a "hole" or a partial in-place rewrite.
type CompressedColumn[I Index, T Value] struct {
	*RawColumn[I, T]
	pagesRegion *rawdb.Region
	pages       *pages
	codec       Codec[T]
}

// ImportCompressed opens (creating if necessary) a compressed column. A
// nil codec defaults to storing values uncompressed (raw bytes per
// page), since the actual compression algorithm is an external
// collaborator this package only depends on through [Codec].
func ImportCompressed[I Index, T Value](opts ImportOptions, codec Codec[T]) (*CompressedColumn[I, T], error) {
	return importCompressed[I, T](opts, codec)
}

// ForcedImportCompressed is [ImportCompressed] but wipes and recreates
// the column (including its pages sidecar) empty on a header mismatch.
func ForcedImportCompressed[I Index, T Value](opts ImportOptions, codec Codec[T]) (*CompressedColumn[I, T], error) {
	cc, err := importCompressed[I, T](opts, codec)
	if err == nil || !headerMismatchTriggersReset(err) {
		return cc, err
	}
	db := opts.DB
	if r, ok := db.GetRegion(opts.vecRegionName()); ok {
		_ = db.RemoveRegion(r)
	}
	if r, ok := db.GetRegion(opts.holesRegionName()); ok {
		_ = db.RemoveRegion(r)
	}
	if r, ok := db.GetRegion(opts.pagesRegionName()); ok {
		_ = db.RemoveRegion(r)
	}
	return importCompressed[I, T](opts, codec)
}

func importCompressed[I Index, T Value](opts ImportOptions, codec Codec[T]) (*CompressedColumn[I, T], error) {
	if codec == nil {
		codec = identityCodec[T]{}
	}

	inner, err := importRaw[I, T](opts, FormatCompressed)
	if err != nil {
		return nil, err
	}

	db := opts.DB
	pagesRegion, err := db.CreateRegionIfNeeded(opts.pagesRegionName())
	if err != nil {
		inner.region.Release()
		return nil, err
	}
	pagesRegion.Acquire()

	p := loadPages(db, pagesRegion)

	cc := &CompressedColumn[I, T]{
		RawColumn:   inner,
		pagesRegion: pagesRegion,
		pages:       p,
		codec:       codec,
	}
	cc.storedLen.Store(int64(p.storedLen(cc.perPage())))

	return cc, nil
}

func (cc *CompressedColumn[I, T]) perPage() int {
	return maxUncompressedPageSize / sizeOfT[T]()
}

func (cc *CompressedColumn[I, T]) indexToPageIndex(index int) int { return index / cc.perPage() }

// Remove drops the column's region, holes sidecar (if any), and pages
// sidecar.
func (cc *CompressedColumn[I, T]) Remove() error {
	db := cc.db()
	cc.pagesRegion.Release()
	if err := cc.RawColumn.Remove(); err != nil {
		return err
	}
	return db.RemoveRegion(cc.pagesRegion)
}

func (cc *CompressedColumn[I, T]) decodePage(pageIndex int, reader *rawdb.Reader) ([]T, error) {
	storedLen := cc.StoredLen()
	if pageIndex*cc.perPage() >= storedLen {
		return nil, ErrIndexTooHigh
	}
	p, ok := cc.pages.get(pageIndex)
	if !ok {
		return nil, fmt.Errorf("vecdb: page %d not found", pageIndex)
	}
	buf, err := reader.UncheckedRead(p.start, uint64(p.bytes))
	if err != nil {
		return nil, err
	}
	return cc.codec.Decode(buf, int(p.values)), nil
}

func (cc *CompressedColumn[I, T]) readAtPage(index int, reader *rawdb.Reader) (T, error) {
	var zero T
	perPage := cc.perPage()
	pageIndex := cc.indexToPageIndex(index)
	decodedIndex := index % perPage

	values, err := cc.decodePage(pageIndex, reader)
	if err != nil {
		return zero, err
	}
	if decodedIndex >= len(values) {
		return zero, ErrIndexTooHigh
	}
	return values[decodedIndex], nil
}

// Read returns the value at i exactly as stored on disk (decoding
// whichever page contains it), ignoring overlays.
func (cc *CompressedColumn[I, T]) Read(i I) (T, error) {
	return cc.readAtPage(toUsize(i), cc.reader())
}

// GetOrRead consults the pushed overlay for indices beyond stored_len,
// else decodes the value's page.
func (cc *CompressedColumn[I, T]) GetOrRead(i I) (T, bool, error) {
	var zero T
	index := toUsize(i)

	storedLen := cc.StoredLen()
	if index >= storedLen {
		if off := index - storedLen; off >= 0 && off < len(cc.pushed) {
			return cc.pushed[off], true, nil
		}
		return zero, false, nil
	}

	v, err := cc.readAtPage(index, cc.reader())
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Update always fails: the page table has no notion of an in-place
// rewrite.
func (cc *CompressedColumn[I, T]) Update(I, T) error { return ErrUnsupportedOnCompressed }

// Delete always fails: the page table has no notion of a hole.
func (cc *CompressedColumn[I, T]) Delete(I) error { return ErrUnsupportedOnCompressed }

// Take always fails; see [CompressedColumn.Delete].
func (cc *CompressedColumn[I, T]) Take(I) (T, bool, error) {
	var zero T
	return zero, false, ErrUnsupportedOnCompressed
}

// UpdateOrPush pushes when i is exactly the next index, otherwise fails
// (an in-range i would require an unsupported in-place update).
func (cc *CompressedColumn[I, T]) UpdateOrPush(i I, v T) error {
	index := toUsize(i)
	length := cc.Len()
	switch {
	case index > length:
		return fmt.Errorf("%w: index=%d len=%d", ErrIndexTooHigh, index, length)
	case index == length:
		cc.Push(v)
		return nil
	default:
		return ErrUnsupportedOnCompressed
	}
}

// ForcedPushAt truncates down to i first if needed, then pushes,
// flushing once the pushed cache reaches 256 MiB.
func (cc *CompressedColumn[I, T]) ForcedPushAt(i I, v T) error {
	index := toUsize(i)
	length := cc.Len()
	if index > length {
		return fmt.Errorf("%w: index=%d len=%d", ErrIndexTooHigh, index, length)
	}
	if index < length {
		if err := cc.Truncate(fromUsize[I](index)); err != nil {
			return err
		}
	}
	cc.Push(v)

	if len(cc.pushed)*sizeOfT[T]() >= maxPushedCacheBytes {
		return cc.Flush()
	}
	return nil
}

// IsDirty reports whether the column has unflushed pushed data (updates
// and holes never accumulate on a compressed column).
func (cc *CompressedColumn[I, T]) IsDirty() bool { return !cc.isPushedEmpty() }

// Reset clears the column back to empty, dropping every encoded page.
func (cc *CompressedColumn[I, T]) Reset() error {
	cc.pages.reset()
	return cc.truncateIfNeeded(0)
}

// StampedFlush stamps the column and flushes it.
func (cc *CompressedColumn[I, T]) StampedFlush(stamp Stamp) error {
	cc.header.updateStamp(stamp)
	return cc.Flush()
}

// Rollback always fails: compressed columns keep no change log.
func (cc *CompressedColumn[I, T]) Rollback() error { return ErrUnsupportedOnCompressed }

// RollbackBefore always fails; see [CompressedColumn.Rollback].
func (cc *CompressedColumn[I, T]) RollbackBefore(Stamp) (Stamp, error) {
	return cc.Stamp(), ErrUnsupportedOnCompressed
}

// StampedFlushWithChanges always fails; see [CompressedColumn.Rollback].
func (cc *CompressedColumn[I, T]) StampedFlushWithChanges(Stamp) error {
	return ErrUnsupportedOnCompressed
}

// Flush encodes newly pushed values (and any partially-filled last page
// invalidated by a truncate) into pages via the column's [Codec], then
// writes them into the same region the header lives in.
func (cc *CompressedColumn[I, T]) Flush() error {
	if err := cc.header.writeIfModified(cc.db(), cc.region); err != nil {
		return err
	}

	storedLen := cc.StoredLen()
	pushedLen := len(cc.pushed)
	perPage := cc.perPage()
	realStoredLen := cc.pages.storedLen(perPage)
	truncated := storedLen != realStoredLen
	hasNewData := pushedLen != 0

	if !hasNewData && !truncated {
		return nil
	}

	pagesLen := cc.pages.len()
	startingPageIndex := storedLen / perPage

	var values []T
	var truncateAt uint64

	if startingPageIndex < pagesLen {
		if remainder := storedLen % perPage; remainder != 0 {
			pageValues, err := cc.decodePage(startingPageIndex, cc.reader())
			if err != nil {
				return err
			}
			values = append(values, pageValues[:remainder]...)
		}
		removed, _ := cc.pages.truncate(startingPageIndex)
		truncateAt = removed.start
	} else if last, ok := cc.pages.last(); ok {
		truncateAt = last.start + uint64(last.bytes)
	} else {
		truncateAt = HeaderSize
	}

	values = append(values, cc.pushed...)
	cc.pushed = nil

	var buf bytes.Buffer
	offset := truncateAt
	for start := 0; start < len(values); start += perPage {
		end := min(start+perPage, len(values))
		chunk := values[start:end]
		encoded := cc.codec.Encode(chunk)
		pageIndex := startingPageIndex + start/perPage
		cc.pages.checkedPush(pageIndex, pageEntry{
			start:  offset,
			bytes:  uint32(len(encoded)),
			values: uint32(len(chunk)),
		})
		buf.Write(encoded)
		offset += uint64(len(encoded))
	}

	db := cc.db()
	at := truncateAt
	if err := db.WriteToRegion(cc.region, buf.Bytes(), &at, true); err != nil {
		return err
	}
	cc.storedLen.Store(int64(storedLen + pushedLen))

	return cc.pages.flush(db, cc.pagesRegion)
}
