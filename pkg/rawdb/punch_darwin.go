//go:build darwin

package rawdb

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/seqdb/seqdb-sub000/pkg/fs"
)

// fpunchhole mirrors xnu's struct fpunchhole (fs.h), used with
// fcntl(F_PUNCHHOLE) to deallocate a byte range from a file.
type fpunchhole struct {
	Flags  uint32
	Reserv uint32
	Offset int64
	Length int64
}

const fPunchhole = 99 // F_PUNCHHOLE, not exposed by golang.org/x/sys/unix on darwin

// platformPunch deallocates [offset, offset+length) in f using macOS's
// F_PUNCHHOLE fcntl.
func platformPunch(f fs.File, offset, length uint64) error {
	arg := fpunchhole{Offset: int64(offset), Length: int64(length)}
	_, _, errno := unix.Syscall(unix.SYS_FCNTL, f.Fd(), uintptr(fPunchhole), uintptr(unsafe.Pointer(&arg)))
	if errno != 0 {
		if errno == unix.EOPNOTSUPP || errno == unix.ENOTSUP {
			return ErrPunchUnsupported
		}
		return fmt.Errorf("rawdb: fcntl F_PUNCHHOLE: %w", errno)
	}
	return nil
}
