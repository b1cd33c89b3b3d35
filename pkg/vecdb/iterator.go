package vecdb

import (
	"bufio"
	"io"

	"github.com/seqdb/seqdb-sub000/pkg/fs"
	"github.com/seqdb/seqdb-sub000/pkg/rawdb"
)

// iteratorBufferSize bounds a clean iterator's read-ahead buffer over
// its independent file handle.
const iteratorBufferSize = 64 * 1024

// Iterator walks a column's logical values in ascending index order.
// Call Next before the first Value; keep calling it until it returns
// false, then check Err to distinguish end-of-data from a read failure.
type Iterator[I Index, T Value] interface {
	Next() bool
	Value() (I, T)
	Err() error
	Close() error
}

// Iter returns an iterator over the column starting at index 0,
// choosing the cheap disk-streaming path when the column has no
// unflushed overlay and falling back to the holes/updated/pushed-aware
// path otherwise.
func (c *RawColumn[I, T]) Iter() (Iterator[I, T], error) { return c.IterAt(0) }

// IterAt is [RawColumn.Iter] starting from a given index.
func (c *RawColumn[I, T]) IterAt(start int) (Iterator[I, T], error) {
	if c.IsDirty() {
		return newRawDirtyIterator[I, T](c, start), nil
	}
	return newRawCleanIterator[I, T](c, start)
}

// rawCleanIterator streams stored values through an independent
// read-only file handle rather than the shared mmap, so a long scan is
// unaffected by a concurrent remap (growth/move) of the column's
// region. Valid only while the column has no pending overlay: it never
// consults holes, updated, or pushed.
type rawCleanIterator[I Index, T Value] struct {
	file  fs.File
	br    *bufio.Reader
	buf   []byte
	index int
	end   int
	cur   I
	val   T
	err   error
}

func newRawCleanIterator[I Index, T Value](c *RawColumn[I, T], start int) (*rawCleanIterator[I, T], error) {
	end := c.StoredLen()
	file, err := c.db().OpenReadOnlyDataFile()
	if err != nil {
		return nil, err
	}

	sizeT := sizeOfT[T]()
	m := c.region.Metadata()
	off := int64(m.Start) + int64(HeaderSize) + int64(start)*int64(sizeT)
	if _, err := file.Seek(off, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}

	return &rawCleanIterator[I, T]{
		file:  file,
		br:    bufio.NewReaderSize(file, iteratorBufferSize),
		buf:   make([]byte, sizeT),
		index: start,
		end:   end,
	}, nil
}

func (it *rawCleanIterator[I, T]) Next() bool {
	if it.err != nil || it.index >= it.end {
		return false
	}
	if _, err := io.ReadFull(it.br, it.buf); err != nil {
		it.err = err
		return false
	}
	it.cur = fromUsize[I](it.index)
	it.val = decodeOne[T](it.buf)
	it.index++
	return true
}

func (it *rawCleanIterator[I, T]) Value() (I, T) { return it.cur, it.val }
func (it *rawCleanIterator[I, T]) Err() error    { return it.err }
func (it *rawCleanIterator[I, T]) Close() error  { return it.file.Close() }

// rawDirtyIterator walks a column that still has unflushed overlay
// state, consulting holes/updated/pushed per index through the same
// helpers random access uses ([RawColumn.getOrReadAt]) rather than
// streaming raw bytes, since the overlay can make stored indices
// non-contiguous or stale.
type rawDirtyIterator[I Index, T Value] struct {
	col    *RawColumn[I, T]
	reader *rawdb.Reader
	index  int
	end    int
	cur    I
	val    T
	err    error
}

func newRawDirtyIterator[I Index, T Value](c *RawColumn[I, T], start int) *rawDirtyIterator[I, T] {
	return &rawDirtyIterator[I, T]{col: c, reader: c.reader(), index: start, end: c.Len()}
}

func (it *rawDirtyIterator[I, T]) Next() bool {
	if it.err != nil {
		return false
	}
	for it.index < it.end {
		index := it.index
		it.index++
		v, ok, err := it.col.getOrReadAt(index, it.reader)
		if err != nil {
			it.err = err
			return false
		}
		if !ok {
			continue
		}
		it.cur = fromUsize[I](index)
		it.val = v
		return true
	}
	return false
}

func (it *rawDirtyIterator[I, T]) Value() (I, T) { return it.cur, it.val }
func (it *rawDirtyIterator[I, T]) Err() error     { return it.err }
func (it *rawDirtyIterator[I, T]) Close() error   { return nil }

// Iter overrides the promoted [RawColumn.Iter]: a compressed column's
// clean path must decode pages rather than stream raw bytes, and its
// IsDirty only ever reflects the pushed overlay.
func (cc *CompressedColumn[I, T]) Iter() (Iterator[I, T], error) { return cc.IterAt(0) }

// IterAt is [CompressedColumn.Iter] starting from a given index.
func (cc *CompressedColumn[I, T]) IterAt(start int) (Iterator[I, T], error) {
	if cc.IsDirty() {
		return newCompressedDirtyIterator[I, T](cc, start), nil
	}
	return newCompressedCleanIterator[I, T](cc, start), nil
}

// compressedCleanIterator decodes one page at a time through the
// column's region reader, caching the last-decoded page so sequential
// access within it is a slice index rather than a repeat decode.
type compressedCleanIterator[I Index, T Value] struct {
	col       *CompressedColumn[I, T]
	reader    *rawdb.Reader
	index     int
	end       int
	pageIndex int
	page      []T
	cur       I
	val       T
	err       error
}

func newCompressedCleanIterator[I Index, T Value](cc *CompressedColumn[I, T], start int) *compressedCleanIterator[I, T] {
	return &compressedCleanIterator[I, T]{
		col:       cc,
		reader:    cc.reader(),
		index:     start,
		end:       cc.StoredLen(),
		pageIndex: -1,
	}
}

func (it *compressedCleanIterator[I, T]) Next() bool {
	if it.err != nil || it.index >= it.end {
		return false
	}

	perPage := it.col.perPage()
	pageIndex := it.index / perPage
	inPage := it.index % perPage

	if pageIndex != it.pageIndex {
		values, err := it.col.decodePage(pageIndex, it.reader)
		if err != nil {
			it.err = err
			return false
		}
		it.page = values
		it.pageIndex = pageIndex
	}

	if inPage >= len(it.page) {
		return false
	}

	it.cur = fromUsize[I](it.index)
	it.val = it.page[inPage]
	it.index++
	return true
}

func (it *compressedCleanIterator[I, T]) Value() (I, T) { return it.cur, it.val }
func (it *compressedCleanIterator[I, T]) Err() error    { return it.err }
func (it *compressedCleanIterator[I, T]) Close() error  { return nil }

// compressedDirtyIterator layers the pushed overlay on top of
// [compressedCleanIterator] for indices beyond stored length; a
// compressed column never has holes or per-index updates.
type compressedDirtyIterator[I Index, T Value] struct {
	inner     *compressedCleanIterator[I, T]
	col       *CompressedColumn[I, T]
	storedLen int
	index     int
	end       int
	cur       I
	val       T
	err       error
}

func newCompressedDirtyIterator[I Index, T Value](cc *CompressedColumn[I, T], start int) *compressedDirtyIterator[I, T] {
	inner := newCompressedCleanIterator[I, T](cc, start)
	return &compressedDirtyIterator[I, T]{
		inner:     inner,
		col:       cc,
		storedLen: inner.end,
		index:     start,
		end:       cc.Len(),
	}
}

func (it *compressedDirtyIterator[I, T]) Next() bool {
	if it.err != nil || it.index >= it.end {
		return false
	}
	index := it.index
	it.index++

	if index < it.storedLen {
		if !it.inner.Next() {
			it.err = it.inner.Err()
			return false
		}
		it.cur, it.val = it.inner.Value()
		return true
	}

	off := index - it.storedLen
	if off < 0 || off >= len(it.col.pushed) {
		return false
	}
	it.cur = fromUsize[I](index)
	it.val = it.col.pushed[off]
	return true
}

func (it *compressedDirtyIterator[I, T]) Value() (I, T) { return it.cur, it.val }
func (it *compressedDirtyIterator[I, T]) Err() error     { return it.err }
func (it *compressedDirtyIterator[I, T]) Close() error   { return nil }
