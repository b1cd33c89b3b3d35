package rawdb

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/seqdb/seqdb-sub000/pkg/fs"
)

// mmapHolder owns the single active memory map over the data file. It
// is conceptually a replaceable slot: remap tears down the old mapping
// and installs a new one, which is why any write that may grow or
// compact the file must hold the exclusive side of mu for the whole
// grow+remap+copy window.
type mmapHolder struct {
	mu   sync.RWMutex
	file fs.File
	data []byte
}

func newMmapHolder(f fs.File, size int64) (*mmapHolder, error) {
	h := &mmapHolder{file: f}
	if err := h.remapLocked(size); err != nil {
		return nil, err
	}
	return h, nil
}

// remap tears down the current mapping (if any) and maps size bytes of
// the file. Takes the exclusive lock for the whole window.
func (h *mmapHolder) remap(size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.remapLocked(size)
}

func (h *mmapHolder) remapLocked(size int64) error {
	if h.data != nil {
		if err := unix.Munmap(h.data); err != nil {
			return fmt.Errorf("rawdb: munmap: %w", err)
		}
		h.data = nil
	}
	if size == 0 {
		h.data = []byte{}
		return nil
	}
	data, err := unix.Mmap(int(h.file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("rawdb: mmap: %w", err)
	}
	h.data = data
	return nil
}

// ensureAtLeast grows the backing file to ceil_to_page(n) if it is
// currently shorter, then remaps. No-op if the file is already at least
// that long.
func (h *mmapHolder) ensureAtLeast(n uint64) error {
	target := ceilToPage(n)

	h.mu.Lock()
	defer h.mu.Unlock()

	if uint64(len(h.data)) >= target {
		return nil
	}
	if err := truncateFile(h.file, int64(target)); err != nil {
		return fmt.Errorf("rawdb: grow data file: %w", err)
	}
	return h.remapLocked(int64(target))
}

// write copies bytes into the mmap starting at offset. Panics (a fatal
// engine bug, not a user error) if the write would run past the mapped
// length.
func (h *mmapHolder) write(offset uint64, b []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if offset+uint64(len(b)) > uint64(len(h.data)) {
		panic(fmt.Sprintf("rawdb: write [%d,%d) exceeds mmap length %d", offset, offset+uint64(len(b)), len(h.data)))
	}
	copy(h.data[offset:], b)
}

// read returns a copy of the n bytes at offset. Used by Reader.
func (h *mmapHolder) read(offset uint64, n uint64) []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if offset+n > uint64(len(h.data)) {
		panic(fmt.Sprintf("rawdb: read [%d,%d) exceeds mmap length %d", offset, offset+n, len(h.data)))
	}
	out := make([]byte, n)
	copy(out, h.data[offset:offset+n])
	return out
}

// sliceUnsafe returns a direct view into the mmap. Callers must not
// retain it past the current operation: any grow or compact replaces
// the backing array.
func (h *mmapHolder) sliceUnsafe(offset, n uint64) []byte {
	if offset+n > uint64(len(h.data)) {
		panic(fmt.Sprintf("rawdb: slice [%d,%d) exceeds mmap length %d", offset, offset+n, len(h.data)))
	}
	return h.data[offset : offset+n]
}

func (h *mmapHolder) len() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return uint64(len(h.data))
}

// flush performs msync over the whole mapping.
func (h *mmapHolder) flush() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.data) == 0 {
		return nil
	}
	if err := unix.Msync(h.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("rawdb: msync: %w", err)
	}
	return nil
}

func (h *mmapHolder) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.data != nil && len(h.data) > 0 {
		if err := unix.Munmap(h.data); err != nil {
			return fmt.Errorf("rawdb: munmap: %w", err)
		}
	}
	h.data = nil
	return nil
}
