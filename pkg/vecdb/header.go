package vecdb

import (
	"encoding/binary"

	"github.com/seqdb/seqdb-sub000/pkg/rawdb"
)

// HeaderSize is the fixed on-disk header size: two 8-byte versions, a
// computed-from version, a stamp, a 1-byte format flag, and 31 bytes of
// zero padding.
const HeaderSize = 64

const headerSchemaVersion uint64 = 1

// Header is the 64-byte fixed header every column region begins with.
// Every field but the stamp is write-once per column lifetime.
type Header struct {
	schemaVersion uint64
	dataVersion   uint64
	computedFrom  uint64
	stamp         Stamp
	format        Format

	modified bool
}

func newHeader(dataVersion uint64, format Format) Header {
	return Header{
		schemaVersion: headerSchemaVersion,
		dataVersion:   dataVersion,
		format:        format,
	}
}

// DataVersion returns the caller-supplied column data version tag.
func (h *Header) DataVersion() uint64 { return h.dataVersion }

// ComputedFrom returns the computed-from version used by derived
// (computed/lazy) vectors; vecdb itself treats it as an opaque tag since
// computed vectors are an external collaborator outside this package's
// scope.
func (h *Header) ComputedFrom() uint64 { return h.computedFrom }

// UpdateComputedFrom sets the computed-from version and marks the header
// dirty, for a caller layering a computed vector on top of a column.
func (h *Header) UpdateComputedFrom(v uint64) {
	h.computedFrom = v
	h.modified = true
}

// Stamp returns the header's persisted checkpoint stamp.
func (h *Header) Stamp() Stamp { return h.stamp }

func (h *Header) updateStamp(s Stamp) {
	h.stamp = s
	h.modified = true
}

// Format returns the header's persisted storage-format flag.
func (h *Header) Format() Format { return h.format }

func (h *Header) bytes() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.schemaVersion)
	binary.LittleEndian.PutUint64(buf[8:16], h.dataVersion)
	binary.LittleEndian.PutUint64(buf[16:24], h.computedFrom)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.stamp))
	buf[32] = byte(h.format)
	return buf
}

// createAndWrite writes a fresh header (stamp 0, computedFrom 0) to the
// start of region and returns the in-memory copy.
func createAndWrite(db *rawdb.DB, region *rawdb.Region, dataVersion uint64, format Format) (Header, error) {
	h := newHeader(dataVersion, format)
	at := uint64(0)
	if err := db.WriteToRegion(region, h.bytes(), &at, false); err != nil {
		return Header{}, err
	}
	h.modified = false
	return h, nil
}

// importAndVerify reads and validates the header at the start of a
// non-empty region, field by field.
func importAndVerify(db *rawdb.DB, region *rawdb.Region, dataVersion uint64, format Format) (Header, error) {
	m := region.Metadata()
	if m.Len < HeaderSize {
		return Header{}, ErrWrongLength
	}

	buf, err := db.NewReader(region).Prefixed(HeaderSize)
	if err != nil {
		return Header{}, err
	}

	schemaVersion := binary.LittleEndian.Uint64(buf[0:8])
	vecVersion := binary.LittleEndian.Uint64(buf[8:16])
	computedFrom := binary.LittleEndian.Uint64(buf[16:24])
	stamp := binary.LittleEndian.Uint64(buf[24:32])
	flag := buf[32]

	if flag > 1 {
		return Header{}, ErrWrongEndian
	}
	if schemaVersion != headerSchemaVersion {
		return Header{}, ErrHeaderVersion
	}
	if vecVersion != dataVersion {
		return Header{}, ErrDataVersion
	}
	if Format(flag) != format {
		return Header{}, ErrDifferentCompressionMode
	}

	return Header{
		schemaVersion: schemaVersion,
		dataVersion:   vecVersion,
		computedFrom:  computedFrom,
		stamp:         Stamp(stamp),
		format:        format,
	}, nil
}

// writeIfModified persists the header if it has been changed since the
// last write, clearing the dirty flag on success. This is always the
// first step of a flush.
func (h *Header) writeIfModified(db *rawdb.DB, region *rawdb.Region) error {
	if !h.modified {
		return nil
	}
	at := uint64(0)
	if err := db.WriteToRegion(region, h.bytes(), &at, false); err != nil {
		return err
	}
	h.modified = false
	return nil
}
