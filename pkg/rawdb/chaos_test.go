package rawdb_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seqdb/seqdb-sub000/pkg/fs"
	"github.com/seqdb/seqdb-sub000/pkg/rawdb"
)

// An injected open failure on the data file must surface from Open
// rather than leave behind a half-initialized DB.
func Test_DB_Open_Surfaces_Injected_Open_Failure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	chaos := fs.NewChaos(fs.NewReal(), fs.ChaosConfig{OpenFailRate: 1.0}, 1)

	_, err := rawdb.Open(dir, rawdb.Options{FS: chaos})
	require.Error(t, err)
	require.ErrorIs(t, err, fs.ErrInjectedFault)
}

// Opened through a Chaos FS with no fault armed, a region write goes
// through the mmap and succeeds; Chaos adds nothing on the clean path.
func Test_DB_WriteToRegion_Succeeds_Through_Chaos_FS_With_No_Fault_Armed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	chaos := fs.NewChaos(fs.NewReal(), fs.ChaosConfig{}, 1)

	db, err := rawdb.Open(dir, rawdb.Options{FS: chaos})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	r, err := db.CreateRegionIfNeeded("R1")
	require.NoError(t, err)

	err = db.WriteToRegion(r, []byte("hello world"), nil, false)
	require.NoError(t, err, "writes before fault injection is armed must succeed")
}

// A reopen through an FS whose every sync fails still sees the state
// committed before the last clean close, since Open does not sync; the
// injected fault then surfaces as an error from Flush. The mmap +
// region-table model has no journal to replay, so once a flush returns
// an error, the caller is responsible for retrying.
func Test_DB_Reopen_With_Sync_Faults_Sees_Prior_Committed_State(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	db, err := rawdb.Open(dir, rawdb.Options{})
	require.NoError(t, err)

	r, err := db.CreateRegionIfNeeded("R1")
	require.NoError(t, err)
	require.NoError(t, db.WriteToRegion(r, []byte("committed"), nil, false))
	require.NoError(t, db.Close())

	chaos := fs.NewChaos(fs.NewReal(), fs.ChaosConfig{SyncFailRate: 1.0}, 1)
	db2, err := rawdb.Open(dir, rawdb.Options{FS: chaos})
	require.NoError(t, err, "reopen itself does not sync, so it must not be affected by SyncFailRate")
	t.Cleanup(func() { _ = db2.Close() })

	r2, err := db2.CreateRegionIfNeeded("R1")
	require.NoError(t, err)
	reader := db2.NewReader(r2)
	body, err := reader.Read(0, uint64(len("committed")))
	require.NoError(t, err)
	require.Equal(t, "committed", string(body))

	err = db2.Flush()
	require.Error(t, err)
	require.True(t, errors.Is(err, fs.ErrInjectedFault))
}
