package vecdb

// Column is the subset of a typed column's operations that behave
// identically regardless of on-disk format, for callers that want to
// work against either without a type switch. It deliberately
// excludes operations [CompressedColumn] cannot support in place:
// Update, Delete, Take, Rollback, RollbackBefore,
// StampedFlushWithChanges, GetFirstEmptyIndex, FillFirstHoleOrPush. A
// caller that needs one of those already knows it holds a *RawColumn.
type Column[I Index, T Value] interface {
	Name() string
	DataVersion() uint64
	Stamp() Stamp

	Len() int
	StoredLen() int
	PushedLen() int
	Has(i I) bool

	Read(i I) (T, error)
	GetOrRead(i I) (T, bool, error)

	Push(v T)
	PushIfNeeded(i I, v T) error
	ForcedPushAt(i I, v T) error
	UpdateOrPush(i I, v T) error

	Truncate(n I) error
	Reset() error

	IsDirty() bool
	Flush() error
	StampedFlush(stamp Stamp) error

	Iter() (Iterator[I, T], error)
	IterAt(start int) (Iterator[I, T], error)

	Remove() error
}

var (
	_ Column[int, uint64] = (*RawColumn[int, uint64])(nil)
	_ Column[int, uint64] = (*CompressedColumn[int, uint64])(nil)
)

// Import opens (creating if necessary) a column in the given format,
// dispatching to [ImportRaw] or [ImportCompressed]. codec is only
// consulted for FormatCompressed; pass nil there to store values
// uncompressed.
func Import[I Index, T Value](opts ImportOptions, format Format, codec Codec[T]) (Column[I, T], error) {
	if format == FormatCompressed {
		cc, err := ImportCompressed[I, T](opts, codec)
		if err != nil {
			return nil, err
		}
		return cc, nil
	}
	rc, err := ImportRaw[I, T](opts)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// ForcedImport is [Import] but wipes and recreates the column empty on
// a header mismatch, per [ForcedImportRaw]/[ForcedImportCompressed].
func ForcedImport[I Index, T Value](opts ImportOptions, format Format, codec Codec[T]) (Column[I, T], error) {
	if format == FormatCompressed {
		cc, err := ForcedImportCompressed[I, T](opts, codec)
		if err != nil {
			return nil, err
		}
		return cc, nil
	}
	rc, err := ForcedImportRaw[I, T](opts)
	if err != nil {
		return nil, err
	}
	return rc, nil
}
