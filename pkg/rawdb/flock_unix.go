//go:build unix

package rawdb

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/seqdb/seqdb-sub000/pkg/fs"
)

// acquireExclusiveLock takes a non-blocking, advisory whole-file lock on
// f. Returns ErrLocked if another process already holds it.
func acquireExclusiveLock(f fs.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if err == unix.EWOULDBLOCK {
			return ErrLocked
		}
		return fmt.Errorf("rawdb: flock: %w", err)
	}
	return nil
}

// releaseLock drops the advisory lock taken by acquireExclusiveLock. The
// OS also releases it automatically on process exit or file close.
func releaseLock(f fs.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("rawdb: unlock: %w", err)
	}
	return nil
}
