//go:build linux

package rawdb

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/seqdb/seqdb-sub000/pkg/fs"
)

// platformPunch deallocates [offset, offset+length) in f without
// changing its apparent size, using fallocate(2)'s punch-hole mode.
func platformPunch(f fs.File, offset, length uint64) error {
	err := unix.Fallocate(int(f.Fd()), unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, int64(offset), int64(length))
	if err != nil {
		if err == unix.EOPNOTSUPP {
			return ErrPunchUnsupported
		}
		return fmt.Errorf("rawdb: fallocate punch hole: %w", err)
	}
	return nil
}
