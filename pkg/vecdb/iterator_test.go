package vecdb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqdb/seqdb-sub000/pkg/vecdb"
)

func Test_RawColumn_IterAt_Starts_From_Given_Index(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	col := importTestColumn(t, db, "c")

	for i := uint32(0); i < 10; i++ {
		col.Push(i)
	}
	require.NoError(t, col.Flush())

	it, err := col.IterAt(5)
	require.NoError(t, err)
	got := collect[uint64, uint32](t, it)
	assert.Equal(t, []uint32{5, 6, 7, 8, 9}, got)
}

func Test_RawColumn_Iter_Uses_Dirty_Path_When_Overlays_Pending(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	col := importTestColumn(t, db, "c")

	for i := uint32(0); i < 5; i++ {
		col.Push(i)
	}
	require.NoError(t, col.Flush())

	// Still dirty: a pushed value hasn't been flushed yet.
	col.Push(99)
	assert.True(t, col.IsDirty())

	it, err := col.Iter()
	require.NoError(t, err)
	got := collect[uint64, uint32](t, it)
	assert.Equal(t, []uint32{0, 1, 2, 3, 4, 99}, got)
}

func Test_CompressedColumn_Iter_Spans_Stored_And_Pushed(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	col := importCompressedTestColumn(t, db, "c")

	for i := uint32(0); i < 20000; i++ {
		col.Push(i)
	}
	require.NoError(t, col.Flush())

	col.Push(20000)
	col.Push(20001)
	assert.True(t, col.IsDirty())

	it, err := col.Iter()
	require.NoError(t, err)
	count := 0
	var last uint32
	for it.Next() {
		_, v := it.Value()
		last = v
		count++
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 20002, count)
	assert.Equal(t, uint32(20001), last)
}
