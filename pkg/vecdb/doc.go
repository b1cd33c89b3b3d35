// Package vecdb implements Layer B of the storage engine: a typed
// (Index → Value) column built on top of one rawdb region.
//
// A Column keeps three in-memory overlays on top of the on-disk tail
// (pushed, updated, holes), a previous-generation copy of each overlay,
// and an on-disk stamped change log that lets the caller roll back to
// earlier checkpoints. Two storage formats share the same surface:
// [RawColumn] stores values as a flat array, [CompressedColumn] stores
// them in fixed-capacity compressed pages via an external [Codec].
//
// vecdb is single-writer per column; multiple concurrent readers are
// safe. See package rawdb for the underlying allocator and locking
// discipline.
package vecdb
