package udb

import "encoding/binary"

// classSizes is the segregated free list's size-class ladder. A
// request is rounded up to the smallest class that fits it; anything
// larger than the top class bypasses the free lists entirely and is
// bump-allocated (and, on free, simply leaked — acceptable for the
// rare oversized value, unlike the hot node/child-table path below).
var classSizes = [...]uint64{32, 64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384}

const nClasses = len(classSizes)

func classFor(n uint64) (idx int, size uint64) {
	for i, sz := range classSizes {
		if n <= sz {
			return i, sz
		}
	}
	return -1, n
}

func (db *DB) freeListHead(class int) Ptr {
	return Ptr(binary.LittleEndian.Uint64(db.data[offFreeLists+8*class:]))
}

func (db *DB) setFreeListHead(class int, p Ptr) {
	binary.LittleEndian.PutUint64(db.data[offFreeLists+8*class:], uint64(p))
}

func (db *DB) top() Ptr {
	return Ptr(binary.LittleEndian.Uint64(db.data[offTop:]))
}

func (db *DB) setTop(p Ptr) {
	binary.LittleEndian.PutUint64(db.data[offTop:], uint64(p))
}

// alloc reserves n bytes and returns their offset, zero-filled.
func (db *DB) alloc(n uint64) (Ptr, error) {
	class, size := classFor(n)
	if class >= 0 {
		if head := db.freeListHead(class); head != 0 {
			next := Ptr(binary.LittleEndian.Uint64(db.data[head:]))
			db.setFreeListHead(class, next)
			zero(db.data[head : uint64(head)+size])
			return head, nil
		}
	} else {
		size = n
	}

	top := db.top()
	end := uint64(top) + size
	if end > db.size {
		return 0, ErrNoSpace
	}
	db.setTop(Ptr(end))
	zero(db.data[top:uint64(top)+size])
	return top, nil
}

// free returns a block of the size originally requested (not the
// rounded class size) to its free list. Oversized blocks (those with
// no matching class) are leaked, per the classSizes comment.
func (db *DB) free(p Ptr, n uint64) {
	if p == 0 {
		return
	}
	class, _ := classFor(n)
	if class < 0 {
		return
	}
	head := db.freeListHead(class)
	binary.LittleEndian.PutUint64(db.data[p:], uint64(head))
	db.setFreeListHead(class, p)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
