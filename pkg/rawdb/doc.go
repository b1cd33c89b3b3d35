// Package rawdb implements Layer A of the storage engine: a single-file,
// memory-mapped region allocator. The file is partitioned into variable
// length regions, each identified by a stable string id. Regions reserve
// power-of-two, page-aligned extents, are relocated when they must grow
// beyond their reservation, and freed space is reclaimed through
// filesystem hole-punching. Region placement is persisted out-of-band in
// a sidecar file so that a reopen reconstructs the same layout.
//
// rawdb is single-writer, single-process: a second process opening the
// same directory receives [ErrLocked]. Layer B (package vecdb) is built
// on top of one region per column.
package rawdb
