// Package mmapfile memory-maps a MemDB file read-only and reference
// counts the mapping so it survives until the last borrower releases it,
// even if the stash swaps in a newer revision concurrently.
package mmapfile

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/coresymbols/symd/internal/errs"
)

// File is a reference-counted, read-only memory mapping of one file on
// disk. The zero value is not usable; construct with Open.
type File struct {
	mu   sync.Mutex
	data []byte
	refs int
	path string
}

// Open mmaps path read-only and returns a File with an initial reference
// count of 1 — the caller owns that reference and must Release it.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap("mmapfile.Open", errs.CodeBadMemDb, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errs.Wrap("mmapfile.Open", errs.CodeBadMemDb, err)
	}
	size := info.Size()
	if size == 0 {
		return nil, errs.New("mmapfile.Open", errs.CodeBadMemDb, "empty file: "+path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errs.Wrap("mmapfile.Open", errs.CodeBadMemDb, err)
	}

	return &File{data: data, refs: 1, path: path}, nil
}

// Bytes returns the mapped region. The returned slice is only valid
// while the caller holds at least one reference.
func (mf *File) Bytes() []byte {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	return mf.data
}

// Path returns the path the mapping was opened from.
func (mf *File) Path() string {
	return mf.path
}

// Retain increments the reference count. Call it before handing the
// mapping to a second borrower (e.g. a concurrent lookup request holding
// a memdb.Reader while Sync evicts the stash's own reference).
func (mf *File) Retain() {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	mf.refs++
}

// Release decrements the reference count and munmaps once it reaches
// zero. Calling Release without a matching Retain/Open is a programming
// error and returns an error rather than double-unmapping.
func (mf *File) Release() error {
	mf.mu.Lock()
	defer mf.mu.Unlock()

	if mf.refs <= 0 {
		return errs.New("mmapfile.Release", errs.CodeInternal, "release of already-unmapped file: "+mf.path)
	}
	mf.refs--
	if mf.refs > 0 {
		return nil
	}
	data := mf.data
	mf.data = nil
	if data == nil {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return errs.Wrap("mmapfile.Release", errs.CodeInternal, err)
	}
	return nil
}

// RefCount reports the current reference count, for tests.
func (mf *File) RefCount() int {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	return mf.refs
}
