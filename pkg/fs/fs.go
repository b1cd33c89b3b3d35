// Package fs is the filesystem seam rawdb opens its data file and region
// sidecar through. Production code gets [Real], a thin pass-through to
// [os]; tests can substitute [Chaos] to inject open/write/sync failures
// without touching a real disk's actual fault behavior.
package fs

import (
	"io"
	"os"
)

// File is an open OS-backed file descriptor. Satisfied by [os.File].
//
// Fd must keep returning a valid descriptor usable with raw syscalls
// (flock, ftruncate, fallocate) for as long as the file stays open —
// rawdb's locking and hole-punching paths depend on it.
//
// Implementations must be safe for concurrent use by multiple
// goroutines: rawdb's mmap holder takes its own lock around writes, but
// region-table reads and the advisory flock go straight through File.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	Fd() uintptr
	Stat() (os.FileInfo, error)
	Sync() error
	Chmod(mode os.FileMode) error
}

// FS is the subset of filesystem operations rawdb needs: opening the
// database directory, the data file, and the region sidecar file.
//
// Paths use OS semantics (as in package os), not the slash-separated
// paths of io/fs.
type FS interface {
	Open(path string) (File, error)
	Create(path string) (File, error)
	OpenFile(path string, flag int, perm os.FileMode) (File, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
	ReadDir(path string) ([]os.DirEntry, error)
	MkdirAll(path string, perm os.FileMode) error
	Stat(path string) (os.FileInfo, error)
	Exists(path string) (bool, error)
	Remove(path string) error
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
}

var _ File = (*os.File)(nil)
