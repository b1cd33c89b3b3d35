package rawdb

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// PageSize is the fixed I/O and alignment unit for the whole engine.
// Fixed at compile time; changing it requires a recompile, not a config flag.
const PageSize = 4096

// slotRecordSize is one page: a region slot record is written whole-page
// so a torn write cannot corrupt an adjacent slot.
const slotRecordSize = PageSize

// slotHeaderSize is the fixed portion of a slot record before id bytes:
// start(8) + len(8) + reserved(8) + id_len(8).
const slotHeaderSize = 32

// maxIDLen bounds a region id's length in bytes; an id of this length
// fits in one slot record alongside the fixed header.
const maxIDLen = 1024

// ceilToPage rounds n up to the next multiple of PageSize.
func ceilToPage(n uint64) uint64 {
	return (n + PageSize - 1) &^ (PageSize - 1)
}

// validateRegionID enforces the id contract: 1-1024 bytes, UTF-8, no
// control characters.
func validateRegionID(id string) error {
	if len(id) == 0 || len(id) > maxIDLen {
		return fmt.Errorf("%w: length %d", ErrInvalidID, len(id))
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidID)
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: contains control character", ErrInvalidID)
		}
	}
	return nil
}

// slotRecord is the decoded form of one page-sized region slot record.
type slotRecord struct {
	start    uint64
	len      uint64
	reserved uint64
	id       string
}

// isTombstoneBytes reports whether the first 32 bytes (the fixed header)
// of a slot record are all zero, which marks the slot as a tombstone.
func isTombstoneBytes(b []byte) bool {
	for _, v := range b[:slotHeaderSize] {
		if v != 0 {
			return false
		}
	}
	return true
}

// encodeSlotRecord writes rec into a fresh page-sized buffer.
func encodeSlotRecord(rec slotRecord) ([]byte, error) {
	if len(rec.id) > maxIDLen {
		return nil, fmt.Errorf("%w: id too long for slot record", ErrMetadataMalformed)
	}
	buf := make([]byte, slotRecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], rec.start)
	binary.LittleEndian.PutUint64(buf[8:16], rec.len)
	binary.LittleEndian.PutUint64(buf[16:24], rec.reserved)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(len(rec.id)))
	copy(buf[32:32+len(rec.id)], rec.id)
	return buf, nil
}

// decodeSlotRecord parses a page-sized buffer. ok is false (with no error)
// when the buffer is a tombstone.
func decodeSlotRecord(buf []byte) (rec slotRecord, ok bool, err error) {
	if len(buf) != slotRecordSize {
		return slotRecord{}, false, fmt.Errorf("%w: slot is %d bytes, want %d", ErrMetadataMalformed, len(buf), slotRecordSize)
	}
	if isTombstoneBytes(buf) {
		return slotRecord{}, false, nil
	}
	idLen := binary.LittleEndian.Uint64(buf[24:32])
	if idLen == 0 || idLen > maxIDLen {
		return slotRecord{}, false, fmt.Errorf("%w: id length %d out of range", ErrMetadataMalformed, idLen)
	}
	if uint64(32)+idLen > slotRecordSize {
		return slotRecord{}, false, fmt.Errorf("%w: id length overruns slot", ErrMetadataMalformed)
	}
	id := string(buf[32 : 32+idLen])
	if err := validateRegionID(id); err != nil {
		return slotRecord{}, false, fmt.Errorf("%w: %v", ErrMetadataMalformed, err)
	}
	rec = slotRecord{
		start:    binary.LittleEndian.Uint64(buf[0:8]),
		len:      binary.LittleEndian.Uint64(buf[8:16]),
		reserved: binary.LittleEndian.Uint64(buf[16:24]),
		id:       id,
	}
	return rec, true, nil
}
