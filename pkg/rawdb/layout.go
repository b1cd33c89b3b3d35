package rawdb

import (
	"fmt"
	"sort"
	"sync"
)

// layoutEntry is one occupant of the data file: either a live region's
// reserved extent or a hole. region is nil for a hole.
type layoutEntry struct {
	start  uint64
	length uint64 // reserved bytes for a region, hole length for a hole
	region *Region
}

func (e layoutEntry) isHole() bool { return e.region == nil }
func (e layoutEntry) end() uint64  { return e.start + e.length }

// layout tracks both live regions and holes keyed by start offset as a
// single sorted slice of entries, searched with sort.Search — O(log n)
// for position lookup, O(holes) for a best-fit scan.
type layout struct {
	mu      sync.RWMutex
	entries []layoutEntry
}

func newLayout() *layout {
	return &layout{}
}

// rebuildFromRegions derives the layout from the live region set: sort
// by start, insert a hole between any two extents that do not touch.
func (l *layout) rebuildFromRegions(regions []*Region) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sorted := make([]*Region, len(regions))
	copy(sorted, regions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Metadata().Start < sorted[j].Metadata().Start
	})

	entries := make([]layoutEntry, 0, len(sorted)*2)
	var cursor uint64
	for _, r := range sorted {
		m := r.Metadata()
		if m.Start > cursor {
			entries = append(entries, layoutEntry{start: cursor, length: m.Start - cursor})
		}
		entries = append(entries, layoutEntry{start: m.Start, length: m.Reserved, region: r})
		cursor = m.Start + m.Reserved
	}
	l.entries = entries
}

// indexOfStart returns the slice index whose entry starts at start, or
// (-1, false).
func (l *layout) indexOfStart(start uint64) (int, bool) {
	i := sort.Search(len(l.entries), func(i int) bool { return l.entries[i].start >= start })
	if i < len(l.entries) && l.entries[i].start == start {
		return i, true
	}
	return i, false
}

// length returns the byte offset one past the last occupant (region,
// hole, or pending reservation).
func (l *layout) length() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].end()
}

// getLastRegion returns the highest-start live region, if any.
func (l *layout) getLastRegion() (*Region, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if !l.entries[i].isHole() {
			return l.entries[i].region, true
		}
	}
	return nil, false
}

// isLast reports whether region is the highest-start live region with
// nothing (hole or otherwise) after it.
func (l *layout) isLast(region *Region) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return false
	}
	last := l.entries[len(l.entries)-1]
	return !last.isHole() && last.region == region
}

// insertRegion inserts region's reserved extent at its current start.
// Panics if a prior entry already exists at that start — a layout bug,
// not a recoverable condition.
func (l *layout) insertRegion(r *Region) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := r.Metadata()
	idx, found := l.indexOfStart(m.Start)
	if found {
		panic(fmt.Sprintf("rawdb: layout already has an entry at start %d: %v", m.Start, ErrLayoutMismatch))
	}
	entry := layoutEntry{start: m.Start, length: m.Reserved, region: r}
	l.entries = append(l.entries, layoutEntry{})
	copy(l.entries[idx+1:], l.entries[idx:])
	l.entries[idx] = entry
}

// removeRegion removes region from the layout and coalesces the freed
// extent with adjacent holes.
func (l *layout) removeRegion(r *Region) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	m := r.Metadata()
	idx, found := l.indexOfStart(m.Start)
	if !found || l.entries[idx].isHole() || l.entries[idx].region != r {
		return fmt.Errorf("%w: region %q not found at start %d", ErrLayoutMismatch, m.ID, m.Start)
	}

	freedStart := m.Start
	freedLen := m.Reserved

	// Absorb a following hole.
	mergeNext := idx+1 < len(l.entries) && l.entries[idx+1].isHole()
	if mergeNext {
		freedLen += l.entries[idx+1].length
	}

	// Absorb a preceding hole that ends exactly at freedStart.
	mergePrev := idx-1 >= 0 && l.entries[idx-1].isHole() && l.entries[idx-1].end() == freedStart
	if mergePrev {
		freedStart = l.entries[idx-1].start
		freedLen += l.entries[idx-1].length
	}

	newHole := layoutEntry{start: freedStart, length: freedLen}

	start := idx
	end := idx + 1
	if mergePrev {
		start = idx - 1
	}
	if mergeNext {
		end = idx + 2
	}
	l.entries = append(l.entries[:start], append([]layoutEntry{newHole}, l.entries[end:]...)...)
	return nil
}

// findSmallestAdequateHole returns the start of the smallest hole with
// length >= size, ties broken by lowest start.
func (l *layout) findSmallestAdequateHole(size uint64) (start uint64, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bestIdx := -1
	for i, e := range l.entries {
		if !e.isHole() || e.length < size {
			continue
		}
		if bestIdx == -1 || e.length < l.entries[bestIdx].length {
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return 0, false
	}
	return l.entries[bestIdx].start, true
}

// removeOrCompressHole allocates `by` bytes from the front of the hole at
// start: if by == hole length the hole is dropped, otherwise it is
// shrunk forward (its start advances by `by`). Panics on an undersized
// hole — a contract violation by the caller.
func (l *layout) removeOrCompressHole(start uint64, by uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, found := l.indexOfStart(start)
	if !found || !l.entries[idx].isHole() {
		panic(fmt.Sprintf("rawdb: no hole at start %d: %v", start, ErrLayoutMismatch))
	}
	if l.entries[idx].length < by {
		panic(fmt.Sprintf("rawdb: hole at %d (len %d) too small for %d bytes", start, l.entries[idx].length, by))
	}
	if l.entries[idx].length == by {
		l.entries = append(l.entries[:idx], l.entries[idx+1:]...)
		return
	}
	l.entries[idx] = layoutEntry{start: start + by, length: l.entries[idx].length - by}
}

// growReservedInPlace extends region's reserved extent when region is
// last and the file simply grows (case 2 of write_to_region). Callers adjust
// region.meta.Reserved themselves; this only updates the layout entry.
func (l *layout) growReservedInPlace(r *Region, newReserved uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := r.Metadata()
	idx, found := l.indexOfStart(m.Start)
	if !found || l.entries[idx].region != r {
		panic(fmt.Sprintf("rawdb: region %q missing from layout: %v", m.ID, ErrLayoutMismatch))
	}
	l.entries[idx].length = newReserved
}

// followingHoleLen reports the start and length of the hole immediately
// following region; ok is false when the next entry is not a hole or
// region is last. Used by case 3 of write_to_region.
func (l *layout) followingHoleLen(r *Region) (holeStart uint64, holeLen uint64, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m := r.Metadata()
	idx, found := l.indexOfStart(m.Start)
	if !found || l.entries[idx].region != r {
		return 0, 0, false
	}
	if idx+1 >= len(l.entries) || !l.entries[idx+1].isHole() {
		return 0, 0, false
	}
	h := l.entries[idx+1]
	return h.start, h.length, true
}

// absorbFollowingHole grows region's own layout entry to newReserved by
// taking the front of the hole immediately after it; the hole entry is
// dropped when fully consumed, otherwise its remainder stays a hole.
// Caller must have already confirmed via followingHoleLen that the hole
// exists and is adequate.
func (l *layout) absorbFollowingHole(r *Region, newReserved uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := r.Metadata()
	idx, found := l.indexOfStart(m.Start)
	if !found || l.entries[idx].region != r || idx+1 >= len(l.entries) || !l.entries[idx+1].isHole() {
		panic(fmt.Sprintf("rawdb: no following hole to absorb for %q: %v", m.ID, ErrLayoutMismatch))
	}
	hole := l.entries[idx+1]
	newEnd := l.entries[idx].start + newReserved
	l.entries[idx].length = newReserved
	if holeEnd := hole.start + hole.length; holeEnd > newEnd {
		l.entries[idx+1] = layoutEntry{start: newEnd, length: holeEnd - newEnd}
		return
	}
	l.entries = append(l.entries[:idx+1], l.entries[idx+2:]...)
}

// moveRegion removes region's old extent (coalescing into holes) and
// inserts it at its new start/reserved (already reflected in r's
// metadata by the caller). Used by cases 4 and 5 of write_to_region.
func (l *layout) moveRegion(r *Region, oldStart, oldReserved uint64) error {
	l.mu.Lock()

	idx, found := l.indexOfStart(oldStart)
	if !found || l.entries[idx].region != r {
		l.mu.Unlock()
		return fmt.Errorf("%w: region %q not found at old start %d", ErrLayoutMismatch, r.Metadata().ID, oldStart)
	}

	freedStart := oldStart
	freedLen := oldReserved

	mergeNext := idx+1 < len(l.entries) && l.entries[idx+1].isHole()
	if mergeNext {
		freedLen += l.entries[idx+1].length
	}
	mergePrev := idx-1 >= 0 && l.entries[idx-1].isHole() && l.entries[idx-1].end() == freedStart
	if mergePrev {
		freedStart = l.entries[idx-1].start
		freedLen += l.entries[idx-1].length
	}
	newHole := layoutEntry{start: freedStart, length: freedLen}

	start := idx
	end := idx + 1
	if mergePrev {
		start = idx - 1
	}
	if mergeNext {
		end = idx + 2
	}
	l.entries = append(l.entries[:start], append([]layoutEntry{newHole}, l.entries[end:]...)...)
	l.mu.Unlock()

	l.insertRegion(r)
	return nil
}
