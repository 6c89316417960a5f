// Package pagestore is the minimal, mmap-backed page file the tree
// package takes its page buffers from. dback's own core never does
// file I/O or buffer pinning (spec.md §1 lists both as out of scope);
// pagestore is the "external buffer pool" the core's contracts assume
// exists. It is grounded on the teacher repo's mmap/ package (the
// syscall wrapping) and lock.go (the single-writer flock), simplified
// down to what a single-process, single-writer index needs: one
// growable mmap of the whole file plus a process-exclusive advisory
// lock, no reader-slot bookkeeping and no multi-version snapshotting.
package pagestore

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Error reports a page store failure with the operation that caused it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pagestore: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("pagestore: %s", e.Op)
}

func (e *Error) Unwrap() error { return e.Err }

// growthPages is how many extra pages growToLocked maps in at once, so
// every Allocate does not force a remap.
const growthPages = 256

// Store is a fixed-page-size file, memory-mapped in its entirety,
// that hands out pages by number. It serializes structural growth of
// the file (growToLocked) with fileMu but otherwise leaves concurrent access
// to individual pages to the caller's own per-page locks - pagestore
// never looks inside a page, it only owns the bytes.
type Store struct {
	f        *os.File
	data     []byte
	pageSize uint32
	numPages uint32 // pages currently allocated to callers
	capPages uint32 // pages currently backed by the mmap

	fileMu sync.Mutex
	log    *slog.Logger
}

// Option configures a Store at Open time.
type Option func(*Store)

// WithLogger overrides the default slog.Default() logger Store uses
// to report lifecycle events (open, grow, close).
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open opens (creating if needed) a page file at path, memory-maps it,
// and takes an exclusive, process-scoped advisory lock on it via
// flock. A Store must be closed with Close to release both the lock
// and the mapping.
func Open(path string, pageSize uint32, opts ...Option) (*Store, error) {
	if pageSize == 0 {
		return nil, &Error{Op: "open", Err: fmt.Errorf("page size must be nonzero")}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, &Error{Op: "flock", Err: err}
	}

	s := &Store{f: f, pageSize: pageSize, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	fi, err := f.Stat()
	if err != nil {
		s.closeLocked()
		return nil, &Error{Op: "stat", Err: err}
	}
	s.numPages = uint32(fi.Size()) / pageSize

	if err := s.growTo(s.numPages + growthPages); err != nil {
		s.closeLocked()
		return nil, err
	}

	s.log.Info("pagestore opened", "path", path, "page_size", pageSize, "num_pages", s.numPages)
	return s, nil
}

// PageSize returns the fixed page size this store was opened with.
func (s *Store) PageSize() uint32 { return s.pageSize }

// NumPages returns the number of pages currently allocated to callers.
func (s *Store) NumPages() uint32 {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	return s.numPages
}

// Page returns the byte slice backing page number pgno. The slice
// aliases the mmap directly; writes through it are visible to any
// other Page() call on the same Store and persist to disk on Sync.
func (s *Store) Page(pgno uint32) ([]byte, error) {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if pgno >= s.numPages {
		return nil, &Error{Op: "page", Err: fmt.Errorf("page %d not allocated (have %d)", pgno, s.numPages)}
	}
	off := uint64(pgno) * uint64(s.pageSize)
	return s.data[off : off+uint64(s.pageSize)], nil
}

// Allocate grows the store's logical page count by one and returns
// the new page's number and byte slice, zero-filled. It grows the
// backing mmap in batches (growthPages at a time) so most allocations
// do not need a remap.
func (s *Store) Allocate() (uint32, []byte, error) {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	pgno := s.numPages
	if pgno+1 > s.capPages {
		if err := s.growToLocked(pgno + growthPages); err != nil {
			return 0, nil, err
		}
	}
	s.numPages++

	off := uint64(pgno) * uint64(s.pageSize)
	buf := s.data[off : off+uint64(s.pageSize)]
	for i := range buf {
		buf[i] = 0
	}
	return pgno, buf, nil
}

// Sync flushes dirty mmap pages to disk. The core's own block_insert
// /block_delete mutate pages in place; it is this layer's job, not
// the core's, to decide when those mutations hit disk.
func (s *Store) Sync() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if s.data == nil {
		return nil
	}
	if err := unix.Msync(s.data, unix.MS_SYNC); err != nil {
		return &Error{Op: "msync", Err: err}
	}
	return nil
}

// Close flushes, unmaps, releases the flock, and closes the file. It
// also trims the file to the allocated pages, since Open derives
// NumPages from the file length.
func (s *Store) Close() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	var firstErr error
	if s.data != nil {
		if err := unix.Msync(s.data, unix.MS_SYNC); err != nil {
			firstErr = &Error{Op: "msync", Err: err}
		}
	}
	if s.f != nil {
		if err := s.f.Truncate(int64(s.numPages) * int64(s.pageSize)); err != nil && firstErr == nil {
			firstErr = &Error{Op: "truncate", Err: err}
		}
	}
	if err := s.closeLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *Store) closeLocked() error {
	var firstErr error
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil && firstErr == nil {
			firstErr = &Error{Op: "munmap", Err: err}
		}
		s.data = nil
	}
	if s.f != nil {
		unix.Flock(int(s.f.Fd()), unix.LOCK_UN)
		if err := s.f.Close(); err != nil && firstErr == nil {
			firstErr = &Error{Op: "close", Err: err}
		}
		s.f = nil
	}
	return firstErr
}

func (s *Store) growTo(pages uint32) error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	return s.growToLocked(pages)
}

// growToLocked extends the file (if needed) and remaps it so at least
// pages*pageSize bytes are mapped. Callers must hold fileMu.
func (s *Store) growToLocked(pages uint32) error {
	if pages <= s.capPages {
		return nil
	}
	newSize := int64(pages) * int64(s.pageSize)

	if err := s.f.Truncate(newSize); err != nil {
		return &Error{Op: "truncate", Err: err}
	}

	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			return &Error{Op: "munmap for remap", Err: err}
		}
		s.data = nil
	}

	data, err := unix.Mmap(int(s.f.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return &Error{Op: "mmap", Err: err}
	}
	s.data = data
	s.capPages = pages

	s.log.Debug("pagestore grown", "pages", pages, "bytes", newSize)
	return nil
}
