//go:build freebsd

package rawdb

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/seqdb/seqdb-sub000/pkg/fs"
)

// platformPunch deallocates [offset, offset+length) in f using
// FreeBSD's fspacectl(2) with SPACECTL_DEALLOC.
func platformPunch(f fs.File, offset, length uint64) error {
	rq := unix.SpacectlRange{R0: int64(offset), R1: int64(offset + length)}
	err := unix.Fspacectl(int(f.Fd()), unix.SPACECTL_DEALLOC, &rq)
	if err != nil {
		if err == unix.EOPNOTSUPP || err == unix.ENOSYS {
			return ErrPunchUnsupported
		}
		return fmt.Errorf("rawdb: fspacectl deallocate: %w", err)
	}
	return nil
}
