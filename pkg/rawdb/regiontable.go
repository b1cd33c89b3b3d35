package rawdb

import (
	"fmt"
	"os"
	"sync"

	"github.com/seqdb/seqdb-sub000/pkg/fs"
)

// regionTable is the id -> slot index -> Region mapping, backed by the
// page-per-slot sidecar file "regions/index_to_region".
type regionTable struct {
	mu sync.RWMutex

	fsys fs.FS
	path string
	file fs.File

	slots []*Region // slot index -> region, nil = tombstone
	byID  map[string]*Region
}

// openRegionTable opens (creating if necessary) the sidecar file at path,
// parses every page-sized slot, and returns the reconstructed table.
func openRegionTable(fsys fs.FS, path string) (*regionTable, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rawdb: open region sidecar: %w", err)
	}

	rt := &regionTable{fsys: fsys, path: path, file: f, byID: make(map[string]*Region)}
	if err := rt.load(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *regionTable) load() error {
	info, err := rt.file.Stat()
	if err != nil {
		return fmt.Errorf("rawdb: stat region sidecar: %w", err)
	}
	size := info.Size()
	nSlots := int(size / slotRecordSize)
	rt.slots = make([]*Region, nSlots)

	buf := make([]byte, slotRecordSize)
	for i := 0; i < nSlots; i++ {
		if _, err := rt.file.Seek(int64(i)*slotRecordSize, 0); err != nil {
			return fmt.Errorf("rawdb: seek region sidecar: %w", err)
		}
		if _, err := readFull(rt.file, buf); err != nil {
			return fmt.Errorf("rawdb: read region sidecar slot %d: %w", i, err)
		}
		rec, ok, err := decodeSlotRecord(buf)
		if err != nil {
			// Malformed, non-tombstone records are treated as tombstones
			// rather than failing the whole open.
			continue
		}
		if !ok {
			continue
		}
		r := &Region{meta: RegionMetadata{ID: rec.id, Slot: i, Start: rec.start, Len: rec.len, Reserved: rec.reserved}}
		rt.slots[i] = r
		rt.byID[rec.id] = r
	}
	return nil
}

func readFull(f fs.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// all returns every live region, in slot order.
func (rt *regionTable) all() []*Region {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]*Region, 0, len(rt.slots))
	for _, r := range rt.slots {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (rt *regionTable) getByID(id string) (*Region, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	r, ok := rt.byID[id]
	return r, ok
}

func (rt *regionTable) getBySlot(i int) (*Region, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if i < 0 || i >= len(rt.slots) || rt.slots[i] == nil {
		return nil, false
	}
	return rt.slots[i], true
}

// create picks the lowest tombstone slot (or appends), and registers an
// empty region (len=0, reserved=PageSize) at start. Fails with
// ErrRegionExists if id is already live.
func (rt *regionTable) create(id string, start uint64) (*Region, error) {
	if err := validateRegionID(id); err != nil {
		return nil, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, exists := rt.byID[id]; exists {
		return nil, fmt.Errorf("%w: %q", ErrRegionExists, id)
	}

	slot := -1
	for i, r := range rt.slots {
		if r == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		slot = len(rt.slots)
		rt.slots = append(rt.slots, nil)
	}

	r := &Region{meta: RegionMetadata{ID: id, Slot: slot, Start: start, Len: 0, Reserved: PageSize}}
	r.dirty = true
	rt.slots[slot] = r
	rt.byID[id] = r
	return r, nil
}

// remove detaches region from its slot and id, zeroing the slot record on
// disk immediately (tombstones must be durable as soon as the table
// agrees to forget the region). Fails with ErrRegionReferenced if the
// region's handle is still held elsewhere.
func (rt *regionTable) remove(r *Region) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if r.refCount() > 0 {
		return fmt.Errorf("%w: %q", ErrRegionReferenced, r.ID())
	}

	m := r.Metadata()
	if m.Slot < 0 || m.Slot >= len(rt.slots) || rt.slots[m.Slot] != r {
		return fmt.Errorf("%w: region %q not present at slot %d", ErrRegionNotFound, m.ID, m.Slot)
	}

	zero := make([]byte, slotRecordSize)
	if _, err := rt.file.Seek(int64(m.Slot)*slotRecordSize, 0); err != nil {
		return fmt.Errorf("rawdb: seek region sidecar: %w", err)
	}
	if _, err := rt.file.Write(zero); err != nil {
		return fmt.Errorf("rawdb: zero region sidecar slot %d: %w", m.Slot, err)
	}

	rt.slots[m.Slot] = nil
	delete(rt.byID, m.ID)
	return nil
}

// setMinSlots ensures the sidecar file is at least n*PageSize bytes.
func (rt *regionTable) setMinSlots(n int) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if len(rt.slots) >= n {
		return nil
	}
	if err := truncateFile(rt.file, int64(n)*slotRecordSize); err != nil {
		return fmt.Errorf("rawdb: grow region sidecar: %w", err)
	}
	for len(rt.slots) < n {
		rt.slots = append(rt.slots, nil)
	}
	return nil
}

// flush writes every dirty slot's record and fsyncs the sidecar file.
// The sidecar must be durable before hole-punches in the data file
// become visible.
func (rt *regionTable) flush() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for _, r := range rt.slots {
		if r == nil || !r.isDirty() {
			continue
		}
		rec := r.toSlotRecord()
		buf, err := encodeSlotRecord(rec)
		if err != nil {
			return err
		}
		if _, err := rt.file.Seek(int64(r.Metadata().Slot)*slotRecordSize, 0); err != nil {
			return fmt.Errorf("rawdb: seek region sidecar: %w", err)
		}
		if _, err := rt.file.Write(buf); err != nil {
			return fmt.Errorf("rawdb: write region sidecar slot %d: %w", r.Metadata().Slot, err)
		}
		r.clearDirty()
	}
	return rt.file.Sync()
}

func (rt *regionTable) close() error {
	return rt.file.Close()
}
