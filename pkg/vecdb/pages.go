package vecdb

import (
	"encoding/binary"
	"fmt"

	"github.com/seqdb/seqdb-sub000/pkg/rawdb"
)

// pageEntry is one compressed page's descriptor: where its encoded bytes
// start (region-relative), how many bytes they occupy, and how many
// values they decode to. Fixed 16-byte layout.
type pageEntry struct {
	start  uint64
	bytes  uint32
	values uint32
}

const pageEntrySize = 16

func (p pageEntry) encode() []byte {
	buf := make([]byte, pageEntrySize)
	binary.LittleEndian.PutUint64(buf[0:8], p.start)
	binary.LittleEndian.PutUint32(buf[8:12], p.bytes)
	binary.LittleEndian.PutUint32(buf[12:16], p.values)
	return buf
}

func decodePageEntry(buf []byte) pageEntry {
	return pageEntry{
		start:  binary.LittleEndian.Uint64(buf[0:8]),
		bytes:  binary.LittleEndian.Uint32(buf[8:12]),
		values: binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// pages is the in-memory mirror of a compressed column's page-descriptor
// sidecar region. changeAt tracks the lowest page index touched since
// the last flush, so flush only rewrites the descriptors that actually
// changed.
type pages struct {
	entries  []pageEntry
	changeAt int
	hasDirty bool
}

func loadPages(db *rawdb.DB, region *rawdb.Region) *pages {
	buf := db.NewReader(region).ReadAll()
	n := len(buf) / pageEntrySize
	entries := make([]pageEntry, n)
	for i := 0; i < n; i++ {
		entries[i] = decodePageEntry(buf[i*pageEntrySize : (i+1)*pageEntrySize])
	}
	return &pages{entries: entries}
}

func (p *pages) setChangedAt(pageIndex int) {
	if !p.hasDirty || p.changeAt > pageIndex {
		p.changeAt = pageIndex
		p.hasDirty = true
	}
}

func (p *pages) flush(db *rawdb.DB, region *rawdb.Region) error {
	if !p.hasDirty {
		return nil
	}
	changeAt := p.changeAt
	p.changeAt = 0
	p.hasDirty = false

	at := uint64(changeAt * pageEntrySize)
	buf := make([]byte, 0, (len(p.entries)-changeAt)*pageEntrySize)
	for _, e := range p.entries[changeAt:] {
		buf = append(buf, e.encode()...)
	}
	return db.WriteToRegion(region, buf, &at, true)
}

func (p *pages) len() int { return len(p.entries) }

func (p *pages) get(pageIndex int) (pageEntry, bool) {
	if pageIndex < 0 || pageIndex >= len(p.entries) {
		return pageEntry{}, false
	}
	return p.entries[pageIndex], true
}

func (p *pages) last() (pageEntry, bool) {
	if len(p.entries) == 0 {
		return pageEntry{}, false
	}
	return p.entries[len(p.entries)-1], true
}

// checkedPush appends page as the new last entry; pageIndex must equal
// the page count before the push, since a compressed column only ever
// appends the next sequential page during a flush.
func (p *pages) checkedPush(pageIndex int, page pageEntry) {
	if pageIndex != len(p.entries) {
		panic(fmt.Sprintf("vecdb: page index %d out of sequence (have %d pages)", pageIndex, len(p.entries)))
	}
	p.setChangedAt(pageIndex)
	p.entries = append(p.entries, page)
}

func (p *pages) reset() { p.truncate(0) }

// truncate drops every page from pageIndex onward, returning the page
// that used to sit there (if any) so the caller can recover its start
// offset as the new region write point.
func (p *pages) truncate(pageIndex int) (pageEntry, bool) {
	removed, ok := p.get(pageIndex)
	p.entries = p.entries[:min(pageIndex, len(p.entries))]
	p.setChangedAt(pageIndex)
	return removed, ok
}

// storedLen derives the column's stored length from the page table:
// every page but the last is assumed full (perPage values), and the
// last page contributes however many values it actually holds.
func (p *pages) storedLen(perPage int) int {
	last, ok := p.last()
	if !ok {
		return 0
	}
	return (len(p.entries)-1)*perPage + int(last.values)
}
