// Package udb is a memory-mapped, pointer-free key/value store: all
// internal references are byte offsets into a single mmap'd arena, so
// the file can be reopened at a different base address without fixing
// up a single pointer. Storage within the arena is managed by a
// segregated free-list allocator (alloc/free in alloc.go);
// lookups and range walks run over a binary radix tree (radix.go)
// keyed on arbitrary byte strings, the same shape NSD's udb_radix_tree
// uses to index zone data.
package udb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	ErrClosed   = errors.New("udb: database is closed")
	ErrNoSpace  = errors.New("udb: arena exhausted")
	ErrNotFound = errors.New("udb: key not found")
	ErrNodeFull = errors.New("udb: node already has the maximum number of children")
)

const (
	magic         = "DNSAUDB1"
	headerSize    = 128
	offMagic      = 0
	offVersion    = 8
	offRoot       = 12
	offTop        = 20
	offFreeLists  = 28 // nClasses * 8 bytes of free-list heads
	currentVesion = 1
)

// Ptr is an offset into the arena; 0 is the reserved null pointer
// (the header occupies offset 0, so no live allocation ever starts
// there).
type Ptr uint64

// DB is an open, mmap'd arena. All methods are safe for concurrent
// use by multiple goroutines (guarded by an in-process mutex);
// callers needing cross-process exclusion must flock the backing file
// themselves, as NSD's udb does.
type DB struct {
	mu   sync.RWMutex
	file *os.File
	data []byte
	size uint64
}

// Create allocates a new arena file of the given size (rounded up to
// the OS page size by the mmap call) and initializes an empty radix
// tree in it.
func Create(path string, size uint64) (*DB, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("udb: create %s: %w", path, err)
	}
	if size < headerSize*4 {
		size = headerSize * 4
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("udb: truncate %s: %w", path, err)
	}
	db, err := mapFile(f, size)
	if err != nil {
		f.Close()
		return nil, err
	}
	copy(db.data[offMagic:], magic)
	binary.LittleEndian.PutUint32(db.data[offVersion:], currentVesion)
	binary.LittleEndian.PutUint64(db.data[offTop:], headerSize)

	root, err := db.newNode()
	if err != nil {
		db.Close()
		return nil, err
	}
	binary.LittleEndian.PutUint64(db.data[offRoot:], uint64(root))
	return db, nil
}

// Open maps an existing arena file created by Create.
func Open(path string) (*DB, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("udb: open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	db, err := mapFile(f, uint64(fi.Size()))
	if err != nil {
		f.Close()
		return nil, err
	}
	if string(db.data[offMagic:offMagic+8]) != magic {
		db.Close()
		return nil, fmt.Errorf("udb: %s: bad magic", path)
	}
	return db, nil
}

func mapFile(f *os.File, size uint64) (*DB, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("udb: mmap: %w", err)
	}
	return &DB{file: f, data: data, size: size}, nil
}

// Close unmaps the arena and closes the backing file.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.data == nil {
		return nil
	}
	err := unix.Munmap(db.data)
	db.data = nil
	if cerr := db.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Sync flushes dirty pages to the backing file.
func (db *DB) Sync() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.data == nil {
		return ErrClosed
	}
	return unix.Msync(db.data, unix.MS_SYNC)
}

func (db *DB) root() Ptr {
	return Ptr(binary.LittleEndian.Uint64(db.data[offRoot:]))
}
