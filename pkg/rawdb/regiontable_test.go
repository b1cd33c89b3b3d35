package rawdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqdb/seqdb-sub000/pkg/fs"
)

func openTestRegionTable(t *testing.T) *regionTable {
	t.Helper()
	dir := t.TempDir()
	rt, err := openRegionTable(fs.NewReal(), filepath.Join(dir, "index_to_region"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.close() })
	return rt
}

func Test_RegionTable_Create_Reuses_Lowest_Tombstone_Slot(t *testing.T) {
	t.Parallel()
	rt := openTestRegionTable(t)

	r1, err := rt.create("r1", 0)
	require.NoError(t, err)
	r2, err := rt.create("r2", PageSize)
	require.NoError(t, err)
	_, err = rt.create("r3", 2*PageSize)
	require.NoError(t, err)

	require.NoError(t, rt.remove(r2))

	r4, err := rt.create("r4", 3*PageSize)
	require.NoError(t, err)
	assert.Equal(t, r1.Metadata().Slot+1, r4.Metadata().Slot, "r4 must take r2's tombstoned slot")
}

func Test_RegionTable_Create_Rejects_Duplicate_Live_ID(t *testing.T) {
	t.Parallel()
	rt := openTestRegionTable(t)

	_, err := rt.create("dup", 0)
	require.NoError(t, err)

	_, err = rt.create("dup", PageSize)
	require.ErrorIs(t, err, ErrRegionExists)
}

func Test_RegionTable_Remove_Fails_When_Referenced(t *testing.T) {
	t.Parallel()
	rt := openTestRegionTable(t)

	r, err := rt.create("r1", 0)
	require.NoError(t, err)
	r.Acquire()

	err = rt.remove(r)
	require.ErrorIs(t, err, ErrRegionReferenced)
}

func Test_RegionTable_Flush_Persists_Dirty_Slots_And_Reload_Recovers_Them(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "index_to_region")

	rt, err := openRegionTable(fs.NewReal(), path)
	require.NoError(t, err)

	r, err := rt.create("r1", PageSize)
	require.NoError(t, err)
	r.meta.Len = 42
	r.meta.Reserved = PageSize
	r.dirty = true

	require.NoError(t, rt.flush())
	require.NoError(t, rt.close())

	reopened, err := openRegionTable(fs.NewReal(), path)
	require.NoError(t, err)
	defer reopened.close()

	got, ok := reopened.getByID("r1")
	require.True(t, ok)
	assert.Equal(t, RegionMetadata{ID: "r1", Slot: got.Metadata().Slot, Start: PageSize, Len: 42, Reserved: PageSize}, got.Metadata())
}

func Test_RegionTable_Load_Treats_Malformed_Slot_As_Tombstone(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "index_to_region")

	buf := make([]byte, slotRecordSize)
	buf[24] = 0xff // non-zero header; the 255 id bytes are all zero, so the id is invalid
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	rt, err := openRegionTable(fs.NewReal(), path)
	require.NoError(t, err)
	defer rt.close()

	assert.Empty(t, rt.all(), "a malformed slot must not surface as a live region")

	r, err := rt.create("reuse-me", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Metadata().Slot, "the malformed slot should be reusable as a tombstone")
}

func Test_RegionTable_SetMinSlots_Grows_Sidecar_File(t *testing.T) {
	t.Parallel()
	rt := openTestRegionTable(t)

	require.NoError(t, rt.setMinSlots(4))
	info, err := rt.file.Stat()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.Size(), int64(4*slotRecordSize))
}
