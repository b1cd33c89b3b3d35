package fs

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
)

// ErrInjectedFault is returned by a [Chaos]-wrapped operation chosen to
// fail. Check with [errors.Is].
var ErrInjectedFault = errors.New("fs: injected fault")

// ChaosConfig sets the probability, in [0,1], that a given class of
// operation fails. The zero value injects nothing.
type ChaosConfig struct {
	// OpenFailRate applies to Open, Create, and OpenFile: the open
	// fails before rawdb ever sees a descriptor for the data file or
	// region sidecar.
	OpenFailRate float64
	// WriteFailRate applies to File.Write: the write returns 0 bytes
	// written and an error, as if the file had gone read-only or run out
	// of space. rawdb writes region data through its mmap, so only writes
	// made through File (the region sidecar's) are affected.
	WriteFailRate float64
	// SyncFailRate applies to File.Sync: fsync reports failure after data
	// has already been written, the case rawdb's Flush and region-table
	// persistence must not silently swallow. The msync of the data mmap
	// does not go through File and is not affected.
	SyncFailRate float64
}

// Chaos wraps an [FS] and randomly fails the operations rawdb's open,
// write, and flush paths go through, so a test can assert that a failed
// open, region-table write, or fsync surfaces as an error rather than
// corrupting on-disk state.
type Chaos struct {
	inner FS
	cfg   ChaosConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewChaos wraps inner with fault injection governed by cfg. seed makes
// the failure sequence reproducible across test runs.
func NewChaos(inner FS, cfg ChaosConfig, seed uint64) *Chaos {
	return &Chaos{inner: inner, cfg: cfg, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (c *Chaos) roll(rate float64) bool {
	if rate <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64() < rate
}

func (c *Chaos) Open(path string) (File, error) {
	if c.roll(c.cfg.OpenFailRate) {
		return nil, fmt.Errorf("%w: open %s", ErrInjectedFault, path)
	}
	f, err := c.inner.Open(path)
	if err != nil {
		return nil, err
	}
	return &chaosFile{File: f, c: c}, nil
}

func (c *Chaos) Create(path string) (File, error) {
	if c.roll(c.cfg.OpenFailRate) {
		return nil, fmt.Errorf("%w: create %s", ErrInjectedFault, path)
	}
	f, err := c.inner.Create(path)
	if err != nil {
		return nil, err
	}
	return &chaosFile{File: f, c: c}, nil
}

func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if c.roll(c.cfg.OpenFailRate) {
		return nil, fmt.Errorf("%w: open %s", ErrInjectedFault, path)
	}
	f, err := c.inner.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	return &chaosFile{File: f, c: c}, nil
}

func (c *Chaos) ReadFile(path string) ([]byte, error)  { return c.inner.ReadFile(path) }
func (c *Chaos) WriteFile(path string, data []byte, perm os.FileMode) error {
	return c.inner.WriteFile(path, data, perm)
}
func (c *Chaos) ReadDir(path string) ([]os.DirEntry, error)  { return c.inner.ReadDir(path) }
func (c *Chaos) MkdirAll(path string, perm os.FileMode) error { return c.inner.MkdirAll(path, perm) }
func (c *Chaos) Stat(path string) (os.FileInfo, error)        { return c.inner.Stat(path) }
func (c *Chaos) Exists(path string) (bool, error)             { return c.inner.Exists(path) }
func (c *Chaos) Remove(path string) error                     { return c.inner.Remove(path) }
func (c *Chaos) RemoveAll(path string) error                  { return c.inner.RemoveAll(path) }
func (c *Chaos) Rename(oldpath, newpath string) error         { return c.inner.Rename(oldpath, newpath) }

var _ FS = (*Chaos)(nil)

// chaosFile wraps an open [File], failing Write and Sync according to
// its parent [Chaos]'s configured rates. Fd, Seek, Stat, Chmod, Read,
// and Close always pass through: rawdb's locking (Fd+flock) and
// truncation paths must keep working even while writes are failing.
type chaosFile struct {
	File
	c *Chaos
}

func (f *chaosFile) Write(p []byte) (int, error) {
	if f.c.roll(f.c.cfg.WriteFailRate) {
		return 0, fmt.Errorf("%w: write", ErrInjectedFault)
	}
	return f.File.Write(p)
}

func (f *chaosFile) Sync() error {
	if f.c.roll(f.c.cfg.SyncFailRate) {
		return fmt.Errorf("%w: sync", ErrInjectedFault)
	}
	return f.File.Sync()
}

var _ File = (*chaosFile)(nil)
