package vecdb

import "strconv"

// Stamp is a caller-assigned, monotonically-meaningful checkpoint tag
// persisted in the column header and in change-file names. It is a
// distinct type rather than a bare uint64 so a stamp can't be
// accidentally passed where an index or a length is expected.
type Stamp uint64

// String renders the stamp the way change-file names encode it.
func (s Stamp) String() string { return strconv.FormatUint(uint64(s), 10) }

// ParseStamp parses a change-file name back into a Stamp.
func ParseStamp(s string) (Stamp, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return Stamp(n), true
}
