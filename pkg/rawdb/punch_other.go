//go:build !linux && !darwin && !freebsd

package rawdb

import "github.com/seqdb/seqdb-sub000/pkg/fs"

// platformPunch reports ErrPunchUnsupported on platforms with no known
// range-deallocate syscall. Callers treat this as non-fatal: reclaiming
// disk space is best-effort, not required for correctness.
func platformPunch(f fs.File, offset, length uint64) error {
	return ErrPunchUnsupported
}
