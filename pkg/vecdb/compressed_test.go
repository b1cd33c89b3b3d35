package vecdb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqdb/seqdb-sub000/pkg/rawdb"
	"github.com/seqdb/seqdb-sub000/pkg/vecdb"
)

func importCompressedTestColumn(t *testing.T, db *rawdb.DB, name string) *vecdb.CompressedColumn[uint64, uint32] {
	t.Helper()
	col, err := vecdb.ImportCompressed[uint64, uint32](vecdb.ImportOptions{
		DB: db, Name: name, IndexType: "u64", DataVersion: 1,
	}, nil)
	require.NoError(t, err)
	return col
}

func Test_CompressedColumn_Push_Flush_Reopen_Reads_Back(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	db, err := rawdb.Open(dir, rawdb.Options{})
	require.NoError(t, err)

	col := importCompressedTestColumn(t, db, "prices")
	for i := uint32(0); i < 1000; i++ {
		col.Push(i)
	}
	require.NoError(t, col.Flush())
	require.NoError(t, db.Close())

	db2, err := rawdb.Open(dir, rawdb.Options{})
	require.NoError(t, err)
	defer db2.Close()

	col2 := importCompressedTestColumn(t, db2, "prices")
	assert.Equal(t, 1000, col2.StoredLen())

	it, err := col2.Iter()
	require.NoError(t, err)
	var got []uint32
	for it.Next() {
		_, v := it.Value()
		got = append(got, v)
	}
	require.NoError(t, it.Err())
	require.Len(t, got, 1000)
	for i, v := range got {
		assert.Equal(t, uint32(i), v)
	}
}

func Test_CompressedColumn_Read_Decodes_Correct_Page(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	col := importCompressedTestColumn(t, db, "c")

	const n = 10000
	for i := uint32(0); i < n; i++ {
		col.Push(i)
	}
	require.NoError(t, col.Flush())

	for _, idx := range []uint64{0, 1, 4095, 4096, 9999} {
		v, err := col.Read(idx)
		require.NoError(t, err)
		assert.Equal(t, uint32(idx), v)
	}
}

func Test_CompressedColumn_Truncate_Then_Push_Produces_Correct_Values(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	col := importCompressedTestColumn(t, db, "c")

	for i := uint32(0); i < 5000; i++ {
		col.Push(i)
	}
	require.NoError(t, col.Flush())

	require.NoError(t, col.Truncate(100))
	for i := uint32(0); i < 50; i++ {
		col.Push(1000 + i)
	}
	require.NoError(t, col.Flush())

	assert.Equal(t, 150, col.Len())
	v, err := col.Read(99)
	require.NoError(t, err)
	assert.Equal(t, uint32(99), v)

	v, err = col.Read(100)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), v)
}

func Test_CompressedColumn_Update_Delete_Rollback_Are_Unsupported(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	col := importCompressedTestColumn(t, db, "c")
	col.Push(1)
	require.NoError(t, col.Flush())

	assert.ErrorIs(t, col.Update(0, 2), vecdb.ErrUnsupportedOnCompressed)
	assert.ErrorIs(t, col.Delete(0), vecdb.ErrUnsupportedOnCompressed)
	_, _, err := col.Take(0)
	assert.ErrorIs(t, err, vecdb.ErrUnsupportedOnCompressed)
	assert.ErrorIs(t, col.Rollback(), vecdb.ErrUnsupportedOnCompressed)
	_, err = col.RollbackBefore(0)
	assert.ErrorIs(t, err, vecdb.ErrUnsupportedOnCompressed)
	assert.ErrorIs(t, col.StampedFlushWithChanges(1), vecdb.ErrUnsupportedOnCompressed)
}

func Test_CompressedColumn_Reset_Clears_Pages_And_Length(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	col := importCompressedTestColumn(t, db, "c")

	for i := uint32(0); i < 100; i++ {
		col.Push(i)
	}
	require.NoError(t, col.Flush())

	require.NoError(t, col.Reset())
	assert.Equal(t, 0, col.Len())

	col.Push(42)
	require.NoError(t, col.Flush())
	v, err := col.Read(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v)
}
