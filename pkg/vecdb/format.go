package vecdb

// Format is the column's on-disk storage format, persisted as the
// 1-byte flag at header offset 32.
type Format uint8

const (
	// FormatRaw stores values as a contiguous little-endian array
	// (see raw.go).
	FormatRaw Format = 0
	// FormatCompressed stores values in fixed-capacity compressed pages
	// via an external [Codec] (see compressed.go).
	FormatCompressed Format = 1
)

func (f Format) String() string {
	if f == FormatCompressed {
		return "compressed"
	}
	return "raw"
}
