package rawdb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/seqdb/seqdb-sub000/pkg/fs"
)

// Options configures [Open]. The zero value uses the real filesystem.
type Options struct {
	// FS is the filesystem abstraction to use. Defaults to [fs.NewReal]
	// when nil, but tests may supply [fs.NewChaos] to exercise
	// fault-injection scenarios on open, write, and sync.
	FS fs.FS
}

// DB is the database façade: it orchestrates the mmap holder, the
// region table, and the layout map.
//
// A DB is single-process: [Open] takes advisory whole-file locks on the
// data file and the region sidecar, and a second opener of the same
// directory receives [ErrLocked].
type DB struct {
	// mu serializes any operation that may grow or remap the data file
	// (create/write/truncate/remove/compact) against each other and
	// against readers: any operation that may grow the file or
	// relocate a region takes exclusive locks on mmap, regions, and
	// layout for the duration.
	mu sync.RWMutex

	dir  string
	fsys fs.FS

	dataFile fs.File
	mmap     *mmapHolder
	regions  *regionTable
	layout   *layout

	closed bool
}

// Open opens (creating if necessary) a database directory at dir.
func Open(dir string, opts Options) (*DB, error) {
	fsys := opts.FS
	if fsys == nil {
		fsys = fs.NewReal()
	}

	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("rawdb: create database dir: %w", err)
	}
	if err := fsys.MkdirAll(filepath.Join(dir, "regions"), 0o755); err != nil {
		return nil, fmt.Errorf("rawdb: create regions dir: %w", err)
	}

	dataPath := filepath.Join(dir, "data")
	dataFile, err := fsys.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rawdb: open data file: %w", err)
	}
	if err := acquireExclusiveLock(dataFile); err != nil {
		_ = dataFile.Close()
		return nil, err
	}

	regionsPath := filepath.Join(dir, "regions", "index_to_region")
	rt, err := openRegionTable(fsys, regionsPath)
	if err != nil {
		_ = releaseLock(dataFile)
		_ = dataFile.Close()
		return nil, err
	}
	if err := acquireExclusiveLock(rt.file); err != nil {
		_ = rt.close()
		_ = releaseLock(dataFile)
		_ = dataFile.Close()
		return nil, err
	}

	info, err := dataFile.Stat()
	if err != nil {
		_ = rt.close()
		_ = releaseLock(dataFile)
		_ = dataFile.Close()
		return nil, fmt.Errorf("rawdb: stat data file: %w", err)
	}
	size := ceilToPage(uint64(info.Size()))
	if uint64(info.Size()) != size {
		if err := truncateFile(dataFile, int64(size)); err != nil {
			_ = rt.close()
			_ = releaseLock(dataFile)
			_ = dataFile.Close()
			return nil, fmt.Errorf("rawdb: align data file to page size: %w", err)
		}
	}

	mm, err := newMmapHolder(dataFile, int64(size))
	if err != nil {
		_ = rt.close()
		_ = releaseLock(dataFile)
		_ = dataFile.Close()
		return nil, err
	}

	lay := newLayout()
	lay.rebuildFromRegions(rt.all())

	return &DB{
		dir:      dir,
		fsys:     fsys,
		dataFile: dataFile,
		mmap:     mm,
		regions:  rt,
		layout:   lay,
	}, nil
}

// Close flushes and releases the database's file handles and locks.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(db.regions.flush())
	record(db.mmap.flush())
	record(db.mmap.close())
	record(db.regions.close())
	record(releaseLock(db.dataFile))
	record(db.dataFile.Close())
	return firstErr
}

func (db *DB) checkOpen() error {
	if db.closed {
		return ErrClosed
	}
	return nil
}

// GetRegion returns the live region with the given id, if any.
func (db *DB) GetRegion(id string) (*Region, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.regions.getByID(id)
}

// Path returns the database directory passed to [Open].
func (db *DB) Path() string { return db.dir }

// FS returns the filesystem abstraction the database was opened with, so
// callers layered on top (e.g. pkg/vecdb's change-log directory) use the
// same fault-injection seam rather than reaching for the real os package.
func (db *DB) FS() fs.FS { return db.fsys }

// DataPath returns the path of the monolithic data file backing the
// database's mmap, for callers that need an independent read-only handle
// onto it: streaming iterators must not pin the mmap.
func (db *DB) DataPath() string { return filepath.Join(db.dir, "data") }

// OpenReadOnlyDataFile opens a fresh, independent read-only handle onto
// the data file. Unaffected by a concurrent remap, which is why
// sequential-scan iterators read through a handle like this rather than
// holding a slice into the mmap across the whole scan.
func (db *DB) OpenReadOnlyDataFile() (fs.File, error) {
	return db.fsys.OpenFile(db.DataPath(), os.O_RDONLY, 0)
}

// Regions returns every currently live region. Used by callers (such as
// a disk-usage report) that want to enumerate the whole table rather than
// look up one id at a time.
func (db *DB) Regions() []*Region {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.regions.all()
}

// NewReader returns a bounds-checked reader scoped to region.
func (db *DB) NewReader(region *Region) *Reader {
	return newReader(db, region)
}

// CreateRegionIfNeeded returns the existing region for id if it is
// already live, otherwise allocates a fresh, empty one: prefer the
// smallest adequate hole (compressed by one page), else place just past
// the last region, else at offset 0.
func (db *DB) CreateRegionIfNeeded(id string) (*Region, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if r, ok := db.regions.getByID(id); ok {
		return r, nil
	}

	var start uint64
	if holeStart, ok := db.layout.findSmallestAdequateHole(PageSize); ok {
		db.layout.removeOrCompressHole(holeStart, PageSize)
		start = holeStart
	} else if last, ok := db.layout.getLastRegion(); ok {
		m := last.Metadata()
		start = m.Start + m.Reserved
	} else {
		start = 0
	}

	if err := db.mmap.ensureAtLeast(start + PageSize); err != nil {
		return nil, err
	}

	r, err := db.regions.create(id, start)
	if err != nil {
		return nil, err
	}
	db.layout.insertRegion(r)
	return r, nil
}

// RetainRegions removes every live region whose id is not in keep, for
// a caller that wants to garbage-collect regions after a schema change.
func (db *DB) RetainRegions(keep map[string]struct{}) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	for _, r := range db.regions.all() {
		if _, ok := keep[r.ID()]; ok {
			continue
		}
		if err := db.RemoveRegion(r); err != nil {
			return err
		}
	}
	return nil
}

// RemoveRegion drops region from the layout (creating/coalescing a
// hole) and from the region table (zeroing its slot record). Fails with
// [ErrRegionReferenced] if region.Acquire was called without a matching
// Release.
func (db *DB) RemoveRegion(region *Region) error {
	if err := db.checkOpen(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.regions.remove(region); err != nil {
		return err
	}
	if err := db.layout.removeRegion(region); err != nil {
		return err
	}
	return nil
}

// TruncateRegion shrinks region's logical length to from. Does not
// reclaim space; use PunchHoles for that.
func (db *DB) TruncateRegion(region *Region, from uint64) error {
	if err := db.checkOpen(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	region.mu.Lock()
	defer region.mu.Unlock()

	if from > region.meta.Len {
		return fmt.Errorf("%w: from=%d len=%d", ErrTruncateInvalid, from, region.meta.Len)
	}
	region.meta.Len = from
	region.dirty = true
	return nil
}

// Write is the raw mmap copy primitive. offset is relative to the data
// file, not any region.
func (db *DB) Write(offset uint64, data []byte) {
	db.mmap.write(offset, data)
}

// WriteToRegion writes data into region, implementing the grow-and-move
// policy for when the write would overflow the region's current
// reservation. at is nil for append. truncate, when at is non-nil,
// forces new_len = at+len(data) rather than max(at+len(data), len).
func (db *DB) WriteToRegion(region *Region, data []byte, at *uint64, truncate bool) error {
	if err := db.checkOpen(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	region.mu.Lock()
	m := region.meta
	region.mu.Unlock()

	writeStart := m.Len
	if at != nil {
		if *at > m.Len {
			return fmt.Errorf("%w: at=%d len=%d", ErrWriteOutOfBounds, *at, m.Len)
		}
		writeStart = *at
	}

	var newLen uint64
	if at == nil {
		newLen = m.Len + uint64(len(data))
	} else if truncate {
		newLen = *at + uint64(len(data))
	} else {
		newLen = m.Len
		if want := *at + uint64(len(data)); want > newLen {
			newLen = want
		}
	}

	// Case 1: fits in reserved.
	if newLen <= m.Reserved {
		db.mmap.write(m.Start+writeStart, data)
		db.setRegionLen(region, newLen)
		return nil
	}

	neededReserved := ceilToPowerOfTwoPages(newLen)

	// Case 2: region is last occupant, grow reserved in place.
	if db.layout.isLast(region) {
		if err := db.mmap.ensureAtLeast(m.Start + neededReserved); err != nil {
			return err
		}
		db.mmap.write(m.Start+writeStart, data)
		db.layout.growReservedInPlace(region, neededReserved)
		db.setRegionReservedAndLen(region, neededReserved, newLen)
		return nil
	}

	// Case 3: hole immediately follows and is wide enough.
	if holeStart, holeLen, ok := db.layout.followingHoleLen(region); ok {
		if m.Start+m.Reserved == holeStart && m.Reserved+holeLen >= neededReserved {
			db.mmap.write(m.Start+writeStart, data)
			db.layout.absorbFollowingHole(region, neededReserved)
			db.setRegionReservedAndLen(region, neededReserved, newLen)
			return nil
		}
	}

	// Case 4: a hole elsewhere is wide enough.
	if holeStart, ok := db.layout.findSmallestAdequateHole(neededReserved); ok {
		if err := db.mmap.ensureAtLeast(holeStart + neededReserved); err != nil {
			return err
		}
		old := db.mmap.read(m.Start, m.Len)
		db.layout.removeOrCompressHole(holeStart, neededReserved)
		db.mmap.write(holeStart, old)
		db.mmap.write(holeStart+writeStart, data)
		oldStart, oldReserved := m.Start, m.Reserved
		db.setRegionStartReservedLen(region, holeStart, neededReserved, newLen)
		if err := db.layout.moveRegion(region, oldStart, oldReserved); err != nil {
			return err
		}
		return nil
	}

	// Case 5: append at end of file.
	end := db.layout.length()
	if err := db.mmap.ensureAtLeast(end + neededReserved); err != nil {
		return err
	}
	old := db.mmap.read(m.Start, m.Len)
	db.mmap.write(end, old)
	db.mmap.write(end+writeStart, data)
	oldStart, oldReserved := m.Start, m.Reserved
	db.setRegionStartReservedLen(region, end, neededReserved, newLen)
	if err := db.layout.moveRegion(region, oldStart, oldReserved); err != nil {
		return err
	}
	return nil
}

func (db *DB) setRegionLen(r *Region, newLen uint64) {
	r.mu.Lock()
	r.meta.Len = newLen
	r.dirty = true
	r.mu.Unlock()
}

func (db *DB) setRegionReservedAndLen(r *Region, reserved, newLen uint64) {
	r.mu.Lock()
	r.meta.Reserved = reserved
	r.meta.Len = newLen
	r.dirty = true
	r.mu.Unlock()
}

func (db *DB) setRegionStartReservedLen(r *Region, start, reserved, newLen uint64) {
	r.mu.Lock()
	r.meta.Start = start
	r.meta.Reserved = reserved
	r.meta.Len = newLen
	r.dirty = true
	r.mu.Unlock()
}

// ceilToPowerOfTwoPages returns the smallest power-of-two multiple of
// PageSize that is >= n, doubling the reservation until it fits.
func ceilToPowerOfTwoPages(n uint64) uint64 {
	pages := ceilToPage(n)
	if pages == 0 {
		return PageSize
	}
	reserved := uint64(PageSize)
	for reserved < pages {
		reserved <<= 1
	}
	return reserved
}

// Flush performs msync over the mmap and flushes the region table
// (writes dirty slot records + fsync).
func (db *DB) Flush() error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.mmap.flush(); err != nil {
		return err
	}
	return db.regions.flush()
}

// PunchHoles (compact) reclaims trailing unused pages within each
// region's reservation and the layout's free holes.
func (db *DB) PunchHoles() error {
	if err := db.checkOpen(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	punchedAny := false
	for _, r := range db.regions.all() {
		m := r.Metadata()
		used := ceilToPage(m.Len)
		if used >= m.Reserved {
			continue
		}
		off, length := m.Start+used, m.Reserved-used
		if !db.approxHasPunchableData(off, length) {
			continue
		}
		if err := db.punchRange(off, length); err != nil {
			if err == ErrPunchUnsupported {
				return nil
			}
			return err
		}
		punchedAny = true
	}

	for _, e := range db.layoutHoles() {
		if !db.approxHasPunchableData(e.start, e.length) {
			continue
		}
		if err := db.punchRange(e.start, e.length); err != nil {
			if err == ErrPunchUnsupported {
				return nil
			}
			return err
		}
		punchedAny = true
	}

	if punchedAny {
		if err := db.mmap.remap(int64(db.mmap.len())); err != nil {
			return err
		}
		return db.dataFile.Sync()
	}
	return nil
}

func (db *DB) layoutHoles() []layoutEntry {
	db.layout.mu.RLock()
	defer db.layout.mu.RUnlock()
	var out []layoutEntry
	for _, e := range db.layout.entries {
		if e.isHole() {
			out = append(out, e)
		}
	}
	return out
}

func (db *DB) punchRange(offset, length uint64) error {
	return platformPunch(db.dataFile, offset, length)
}

// approxHasPunchableData is a cheap pre-punch probe: reads the first
// and last byte of the first and last page of the range, plus one page
// per GB in between. If every probed byte is already zero, the punch is
// skipped.
func (db *DB) approxHasPunchableData(offset, length uint64) bool {
	if length == 0 {
		return false
	}
	total := db.mmap.len()
	probe := func(at uint64) bool {
		if at >= total {
			return false
		}
		return db.mmap.read(at, 1)[0] != 0
	}

	const gib = 1 << 30
	firstPageStart := offset
	lastPageStart := offset + length - PageSize
	if probe(firstPageStart) || probe(firstPageStart+PageSize-1) {
		return true
	}
	if lastPageStart != firstPageStart {
		if probe(lastPageStart) || probe(lastPageStart+PageSize-1) {
			return true
		}
	}
	for at := firstPageStart + gib; at < lastPageStart; at += gib {
		if probe(at) {
			return true
		}
	}
	return false
}
