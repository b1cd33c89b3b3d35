package rawdb

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/seqdb/seqdb-sub000/pkg/fs"
)

// truncater is implemented by *os.File (and, if they choose to, any
// fs.File wrapper). fs.File itself does not expose Truncate, so rawdb
// prefers this optional interface and falls back to a raw ftruncate(2)
// via the file's descriptor otherwise.
type truncater interface {
	Truncate(size int64) error
}

// truncateFile grows or shrinks f to exactly size bytes.
func truncateFile(f fs.File, size int64) error {
	if t, ok := f.(truncater); ok {
		return t.Truncate(size)
	}
	if err := unix.Ftruncate(int(f.Fd()), size); err != nil {
		return fmt.Errorf("rawdb: ftruncate: %w", err)
	}
	return nil
}
