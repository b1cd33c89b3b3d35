package vecdb

import "github.com/seqdb/seqdb-sub000/pkg/rawdb"

// ImportOptions configures [ImportRaw]/[ImportCompressed]/[Import] and
// their Forced variants: a plain configuration struct; its fields are
// not validated on import.
type ImportOptions struct {
	// DB is the database the column's region(s) live in.
	DB *rawdb.DB
	// Name is the column's base name; the on-disk region id is
	// "<index-type>_<name>".
	Name string
	// IndexType names the index type for region-naming purposes (e.g.
	// "u32", "height"). Must be non-empty and contain no '_' if it would
	// make region-name parsing ambiguous; vecdb does not parse names
	// back, so this is purely a naming convention.
	IndexType string
	// DataVersion is the caller-supplied column data version tag,
	// checked against the on-disk header on import.
	DataVersion uint64
	// SavedStampedChanges bounds how many change files are retained by
	// stamped_flush_with_changes; 0 disables the stamped-change log
	// entirely (StampedFlushWithChanges behaves like StampedFlush).
	SavedStampedChanges uint16
}

func (o ImportOptions) vecRegionName() string {
	return o.IndexType + "_" + o.Name
}

func (o ImportOptions) holesRegionName() string {
	return o.vecRegionName() + "_holes"
}

func (o ImportOptions) pagesRegionName() string {
	return o.vecRegionName() + "_pages"
}
