package vecdb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqdb/seqdb-sub000/pkg/rawdb"
	"github.com/seqdb/seqdb-sub000/pkg/vecdb"
)

func openTestDB(t *testing.T) *rawdb.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := rawdb.Open(dir, rawdb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func importTestColumn(t *testing.T, db *rawdb.DB, name string) *vecdb.RawColumn[uint64, uint32] {
	t.Helper()
	col, err := vecdb.ImportRaw[uint64, uint32](vecdb.ImportOptions{
		DB:                  db,
		Name:                name,
		IndexType:           "u64",
		DataVersion:         1,
		SavedStampedChanges: 4,
	})
	require.NoError(t, err)
	return col
}

func collect[I vecdb.Index, T vecdb.Value](t *testing.T, it vecdb.Iterator[I, T]) []T {
	t.Helper()
	var out []T
	for it.Next() {
		_, v := it.Value()
		out = append(out, v)
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	return out
}

// Values pushed in one session must survive a flush, close, and reopen,
// and iterate back out in the same order.
func Test_RawColumn_Push_Flush_Reopen_Iterates_In_Order(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	db, err := rawdb.Open(dir, rawdb.Options{})
	require.NoError(t, err)

	col := importTestColumn(t, db, "heights")
	for i := uint32(0); i < 10; i++ {
		col.Push(i)
	}
	require.NoError(t, col.Flush())
	require.NoError(t, db.Close())

	db2, err := rawdb.Open(dir, rawdb.Options{})
	require.NoError(t, err)
	defer db2.Close()

	col2 := importTestColumn(t, db2, "heights")
	it, err := col2.Iter()
	require.NoError(t, err)
	got := collect[uint64, uint32](t, it)
	assert.Equal(t, []uint32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

// Updated and deleted overlays must round-trip through a flush: an update
// persists, and a deleted index reads back as absent rather than stale data.
func Test_RawColumn_RoundTrip_With_Updates_And_Holes(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	col := importTestColumn(t, db, "c")

	for i := uint32(0); i < 5; i++ {
		col.Push(i * 10)
	}
	require.NoError(t, col.Update(2, 999))
	col.Delete(4)
	require.NoError(t, col.Flush())

	v, ok, err := col.GetOrRead(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(999), v)

	_, ok, err = col.GetOrRead(4)
	require.NoError(t, err)
	assert.False(t, ok, "index 4 is a hole")

	it, err := col.Iter()
	require.NoError(t, err)
	got := collect[uint64, uint32](t, it)
	assert.Equal(t, []uint32{0, 10, 999, 30}, got, "the hole at index 4 must be skipped")
}

func Test_RawColumn_Len_Equals_Stored_Plus_Pushed(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	col := importTestColumn(t, db, "c")

	col.Push(1)
	col.Push(2)
	assert.Equal(t, 2, col.Len())
	assert.Equal(t, 0, col.StoredLen())
	assert.Equal(t, 2, col.PushedLen())

	require.NoError(t, col.Flush())
	assert.Equal(t, 2, col.StoredLen())
	assert.Equal(t, 0, col.PushedLen())
}

func Test_RawColumn_Truncate_Drops_Pushed_Updated_And_Holes_Beyond_N(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	col := importTestColumn(t, db, "c")

	for i := uint32(0); i < 10; i++ {
		col.Push(i)
	}
	require.NoError(t, col.Flush())

	require.NoError(t, col.Update(8, 800))
	col.Delete(9)
	col.Push(10)
	col.Push(11)

	require.NoError(t, col.Truncate(8))
	assert.Equal(t, 8, col.Len())

	_, ok, err := col.GetOrRead(8)
	require.NoError(t, err)
	assert.False(t, ok, "truncated indices carry no value")
}

func Test_RawColumn_PushIfNeeded_Ignores_Lower_Index_And_Rejects_Higher(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	col := importTestColumn(t, db, "c")

	require.NoError(t, col.PushIfNeeded(0, 1))
	require.NoError(t, col.PushIfNeeded(0, 99), "a lower index is a silent no-op")
	assert.Equal(t, 1, col.Len())

	err := col.PushIfNeeded(5, 1)
	require.ErrorIs(t, err, vecdb.ErrIndexTooHigh)
}

func Test_RawColumn_ForcedPushAt_Truncates_Down_Then_Pushes(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	col := importTestColumn(t, db, "c")

	for i := uint32(0); i < 5; i++ {
		col.Push(i)
	}
	require.NoError(t, col.Flush())

	require.NoError(t, col.ForcedPushAt(3, 999))
	assert.Equal(t, 4, col.Len())

	v, ok, err := col.GetOrRead(3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(999), v)
}

func Test_RawColumn_Update_Rejects_Index_At_Or_Beyond_Length(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	col := importTestColumn(t, db, "c")

	col.Push(1)
	err := col.Update(5, 2)
	assert.Error(t, err)
}

// Rolling back undoes everything written since the previous stamped flush
// and restores the earlier stamp.
func Test_RawColumn_StampedFlush_Rollback_Restores_Prior_Stamp_And_Contents(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	col := importTestColumn(t, db, "c")

	for i := uint32(0); i < 5; i++ {
		col.Push(i)
	}
	require.NoError(t, col.StampedFlushWithChanges(1))

	for i := uint32(5); i < 10; i++ {
		col.Push(i)
	}
	require.NoError(t, col.StampedFlushWithChanges(2))

	require.NoError(t, col.Rollback())
	assert.Equal(t, vecdb.Stamp(1), col.Stamp())

	it, err := col.Iter()
	require.NoError(t, err)
	got := collect[uint64, uint32](t, it)
	assert.Equal(t, []uint32{0, 1, 2, 3, 4}, got)

	// A second rollback with no earlier change file is an error, not silent corruption.
	err = col.Rollback()
	assert.Error(t, err)
}

// After a rollback, every index must read back exactly as it did right
// after the earlier stamped flush, not some intermediate mix.
func Test_RawColumn_Rollback_Matches_State_After_Earlier_Flush(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	col := importTestColumn(t, db, "c")

	for i := uint32(0); i < 3; i++ {
		col.Push(i * 100)
	}
	require.NoError(t, col.Update(1, 111))
	require.NoError(t, col.StampedFlushWithChanges(1))

	stateAfterFirst := make(map[int]uint32)
	for i := 0; i < col.Len(); i++ {
		v, ok, err := col.GetOrRead(uint64(i))
		require.NoError(t, err)
		if ok {
			stateAfterFirst[i] = v
		}
	}

	col.Push(300)
	require.NoError(t, col.Update(0, 999))
	col.Delete(2)
	require.NoError(t, col.StampedFlushWithChanges(2))

	require.NoError(t, col.Rollback())

	for i := 0; i < col.Len(); i++ {
		v, ok, err := col.GetOrRead(uint64(i))
		require.NoError(t, err)
		want, wantOk := stateAfterFirst[i]
		assert.Equal(t, wantOk, ok, "index %d presence mismatch", i)
		if wantOk {
			assert.Equal(t, want, v, "index %d value mismatch", i)
		}
	}
}

func Test_RawColumn_RollbackBefore_Walks_Back_Multiple_Stamps(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	col := importTestColumn(t, db, "c")

	for stamp := vecdb.Stamp(1); stamp <= 10; stamp++ {
		col.Push(uint32(stamp))
		require.NoError(t, col.StampedFlushWithChanges(stamp))
	}

	// SavedStampedChanges is 4, so only the change files for stamps 7-10
	// remain; the walk stops at stamp 6, which has none.
	target, err := col.RollbackBefore(7)
	require.NoError(t, err)
	assert.Less(t, int(target), 7)

	it, err := col.Iter()
	require.NoError(t, err)
	got := collect[uint64, uint32](t, it)
	assert.Equal(t, int(target), len(got))
}

func Test_RawColumn_Header_Rejects_Mismatched_DataVersion(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	_, err := vecdb.ImportRaw[uint64, uint32](vecdb.ImportOptions{
		DB: db, Name: "c", IndexType: "u64", DataVersion: 1,
	})
	require.NoError(t, err)

	_, err = vecdb.ImportRaw[uint64, uint32](vecdb.ImportOptions{
		DB: db, Name: "c", IndexType: "u64", DataVersion: 2,
	})
	require.ErrorIs(t, err, vecdb.ErrDataVersion)
}

func Test_RawColumn_ForcedImport_Wipes_On_DataVersion_Mismatch(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	col, err := vecdb.ImportRaw[uint64, uint32](vecdb.ImportOptions{
		DB: db, Name: "c", IndexType: "u64", DataVersion: 1,
	})
	require.NoError(t, err)
	col.Push(42)
	require.NoError(t, col.Flush())

	reopened, err := vecdb.ForcedImportRaw[uint64, uint32](vecdb.ImportOptions{
		DB: db, Name: "c", IndexType: "u64", DataVersion: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Len(), "a forced import on mismatch recreates the column empty")
	assert.Equal(t, uint64(2), reopened.DataVersion())
}
