package udb

import (
	"encoding/binary"
	"fmt"
)

// Node layout within its 64-byte allocation (class index 1, see
// alloc.go). Every field is an offset into the arena rather than a
// pointer, so the tree survives being mapped at a different base
// address on the next open.
const (
	nodeSize    = 64
	nEdgeLen    = 0  // uint16: bytes of the incoming edge label
	nEdgeOff    = 8  // uint64: offset of the edge label bytes
	nHasValue   = 16 // byte: 1 if this node carries a value
	nValueOff   = 24 // uint64: offset of the length-prefixed value blob
	nNumKids    = 32 // uint16: number of children in use
	nKidsOff    = 40 // uint64: offset of the children table
	nCapacity   = 48 // uint16: allocated capacity of the children table
	nParentOff  = 50 // uint64: offset of the parent node (0 for the root)
	nPidx       = 58 // uint16: this node's index in its parent's children table
	childEntry  = 16 // firstByte(1) + padding(7) + child Ptr(8)
	childMinCap = 4
	// maxChildren bounds a node's fan-out, mirroring NSD's udb_radix
	// node capacity ceiling: children are keyed by their edge's first
	// byte, so a node never needs more than 256, and addChild refuses
	// a 257th with ErrNodeFull.
	maxChildren = 256
)

// newNode allocates a zero-filled node (no edge, no value, no
// children, no parent); callers fill in whichever fields apply.
func (db *DB) newNode() (Ptr, error) {
	return db.alloc(nodeSize)
}

func (db *DB) nodeEdgeLen(n Ptr) int {
	return int(binary.LittleEndian.Uint16(db.data[uint64(n)+nEdgeLen:]))
}

func (db *DB) nodeEdge(n Ptr) []byte {
	l := db.nodeEdgeLen(n)
	if l == 0 {
		return nil
	}
	off := binary.LittleEndian.Uint64(db.data[uint64(n)+nEdgeOff:])
	return db.data[off : off+uint64(l)]
}

func (db *DB) setNodeEdge(n Ptr, edge []byte) error {
	oldLen := db.nodeEdgeLen(n)
	if oldLen > 0 {
		oldOff := binary.LittleEndian.Uint64(db.data[uint64(n)+nEdgeOff:])
		db.free(Ptr(oldOff), uint64(oldLen))
	}
	binary.LittleEndian.PutUint16(db.data[uint64(n)+nEdgeLen:], uint16(len(edge)))
	if len(edge) == 0 {
		return nil
	}
	off, err := db.alloc(uint64(len(edge)))
	if err != nil {
		return err
	}
	copy(db.data[off:], edge)
	binary.LittleEndian.PutUint64(db.data[uint64(n)+nEdgeOff:], uint64(off))
	return nil
}

func (db *DB) nodeHasValue(n Ptr) bool {
	return db.data[uint64(n)+nHasValue] == 1
}

func (db *DB) nodeValue(n Ptr) []byte {
	if !db.nodeHasValue(n) {
		return nil
	}
	off := binary.LittleEndian.Uint64(db.data[uint64(n)+nValueOff:])
	l := binary.LittleEndian.Uint32(db.data[off:])
	return db.data[off+4 : off+4+uint64(l)]
}

func (db *DB) setNodeValue(n Ptr, value []byte) error {
	if db.nodeHasValue(n) {
		off := binary.LittleEndian.Uint64(db.data[uint64(n)+nValueOff:])
		oldLen := binary.LittleEndian.Uint32(db.data[off:])
		db.free(Ptr(off), uint64(oldLen)+4)
	}
	off, err := db.alloc(uint64(len(value)) + 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(db.data[off:], uint32(len(value)))
	copy(db.data[off+4:], value)
	binary.LittleEndian.PutUint64(db.data[uint64(n)+nValueOff:], uint64(off))
	db.data[uint64(n)+nHasValue] = 1
	return nil
}

func (db *DB) clearNodeValue(n Ptr) {
	if !db.nodeHasValue(n) {
		return
	}
	off := binary.LittleEndian.Uint64(db.data[uint64(n)+nValueOff:])
	oldLen := binary.LittleEndian.Uint32(db.data[off:])
	db.free(Ptr(off), uint64(oldLen)+4)
	db.data[uint64(n)+nHasValue] = 0
}

func (db *DB) numKids(n Ptr) int {
	return int(binary.LittleEndian.Uint16(db.data[uint64(n)+nNumKids:]))
}

func (db *DB) capacity(n Ptr) int {
	return int(binary.LittleEndian.Uint16(db.data[uint64(n)+nCapacity:]))
}

func (db *DB) kidsOff(n Ptr) Ptr {
	return Ptr(binary.LittleEndian.Uint64(db.data[uint64(n)+nKidsOff:]))
}

func (db *DB) nodeParent(n Ptr) Ptr {
	return Ptr(binary.LittleEndian.Uint64(db.data[uint64(n)+nParentOff:]))
}

func (db *DB) setNodeParent(n, parent Ptr) {
	binary.LittleEndian.PutUint64(db.data[uint64(n)+nParentOff:], uint64(parent))
}

func (db *DB) nodePidx(n Ptr) uint16 {
	return binary.LittleEndian.Uint16(db.data[uint64(n)+nPidx:])
}

func (db *DB) setNodePidx(n Ptr, idx uint16) {
	binary.LittleEndian.PutUint16(db.data[uint64(n)+nPidx:], idx)
}

// childAt returns the (firstByte, childPtr) pair stored at index i of
// n's children table.
func (db *DB) childAt(n Ptr, i int) (byte, Ptr) {
	base := uint64(db.kidsOff(n)) + uint64(i*childEntry)
	return db.data[base], Ptr(binary.LittleEndian.Uint64(db.data[base+8:]))
}

func (db *DB) setChildAt(n Ptr, i int, first byte, child Ptr) {
	base := uint64(db.kidsOff(n)) + uint64(i*childEntry)
	db.data[base] = first
	binary.LittleEndian.PutUint64(db.data[base+8:], uint64(child))
}

// findChild does a linear scan for the child whose edge starts with
// b; node fan-out in a radix tree over zone names is small enough
// that this beats the bookkeeping of keeping the table sorted.
func (db *DB) findChild(n Ptr, b byte) (int, Ptr, bool) {
	count := db.numKids(n)
	for i := 0; i < count; i++ {
		first, child := db.childAt(n, i)
		if first == b {
			return i, child, true
		}
	}
	return -1, 0, false
}

// nextCapacityFor returns the smallest power-of-two capacity, no
// smaller than childMinCap, able to hold count entries.
func nextCapacityFor(count int) int {
	cap := childMinCap
	for cap < count {
		cap *= 2
	}
	return cap
}

// addChild appends a new (first, child) pair to n, growing the
// children table (doubling capacity, capped at maxChildren) when
// full, and records child's parent/pidx back-reference.
func (db *DB) addChild(n Ptr, first byte, child Ptr) error {
	count := db.numKids(n)
	if count >= maxChildren {
		return ErrNodeFull
	}
	cap := db.capacity(n)
	if count == cap {
		newCap := cap * 2
		if newCap < childMinCap {
			newCap = childMinCap
		}
		if newCap > maxChildren {
			newCap = maxChildren
		}
		newOff, err := db.alloc(uint64(newCap * childEntry))
		if err != nil {
			return err
		}
		oldOff := db.kidsOff(n)
		if cap > 0 {
			copy(db.data[newOff:], db.data[oldOff:uint64(oldOff)+uint64(cap*childEntry)])
			db.free(oldOff, uint64(cap*childEntry))
		}
		binary.LittleEndian.PutUint64(db.data[uint64(n)+nKidsOff:], uint64(newOff))
		binary.LittleEndian.PutUint16(db.data[uint64(n)+nCapacity:], uint16(newCap))
	}
	db.setChildAt(n, count, first, child)
	binary.LittleEndian.PutUint16(db.data[uint64(n)+nNumKids:], uint16(count+1))
	db.setNodeParent(child, n)
	db.setNodePidx(child, uint16(count))
	return nil
}

func (db *DB) replaceChild(n Ptr, first byte, child Ptr) {
	i, _, ok := db.findChild(n, first)
	if !ok {
		return
	}
	db.setChildAt(n, i, first, child)
	db.setNodeParent(child, n)
	db.setNodePidx(child, uint16(i))
}

// removeChild drops the entry at idx from n's children table,
// swapping the last entry into its place (and fixing up that moved
// child's pidx) to keep the table dense, then shrinks the table to the
// smallest power-of-two capacity (at least childMinCap) that still
// holds the remaining entries, or frees it when none remain, which
// keeps the density invariant (count >= capacity/2, once past
// childMinCap).
func (db *DB) removeChild(n Ptr, idx int) {
	count := db.numKids(n)
	last := count - 1
	if idx != last {
		first, child := db.childAt(n, last)
		db.setChildAt(n, idx, first, child)
		db.setNodePidx(child, uint16(idx))
	}
	binary.LittleEndian.PutUint16(db.data[uint64(n)+nNumKids:], uint16(last))
	db.maybeShrink(n, last)
}

func (db *DB) maybeShrink(n Ptr, count int) {
	cap := db.capacity(n)
	if cap == 0 {
		return
	}
	if count == 0 {
		oldOff := db.kidsOff(n)
		db.free(oldOff, uint64(cap*childEntry))
		binary.LittleEndian.PutUint64(db.data[uint64(n)+nKidsOff:], 0)
		binary.LittleEndian.PutUint16(db.data[uint64(n)+nCapacity:], 0)
		return
	}
	target := nextCapacityFor(count)
	if target >= cap {
		return
	}
	newOff, err := db.alloc(uint64(target * childEntry))
	if err != nil {
		return // leave at current (over-)capacity; not fatal to correctness
	}
	oldOff := db.kidsOff(n)
	copy(db.data[newOff:], db.data[oldOff:uint64(oldOff)+uint64(count*childEntry)])
	db.free(oldOff, uint64(cap*childEntry))
	binary.LittleEndian.PutUint64(db.data[uint64(n)+nKidsOff:], uint64(newOff))
	binary.LittleEndian.PutUint16(db.data[uint64(n)+nCapacity:], uint16(target))
}

// freeNode releases a node's edge label, value, and children table
// (if any), then the node allocation itself. The caller must already
// have unlinked it from its parent.
func (db *DB) freeNode(n Ptr) {
	db.clearNodeValue(n)
	if l := db.nodeEdgeLen(n); l > 0 {
		off := binary.LittleEndian.Uint64(db.data[uint64(n)+nEdgeOff:])
		db.free(Ptr(off), uint64(l))
	}
	if cap := db.capacity(n); cap > 0 {
		db.free(db.kidsOff(n), uint64(cap*childEntry))
	}
	db.free(n, nodeSize)
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// Get returns the value stored under key, if any.
func (db *DB) Get(key []byte) ([]byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.data == nil {
		return nil, false, ErrClosed
	}
	n := db.root()
	pos := 0
	for pos < len(key) {
		_, child, ok := db.findChild(n, key[pos])
		if !ok {
			return nil, false, nil
		}
		edge := db.nodeEdge(child)
		cp := commonPrefixLen(edge, key[pos:])
		if cp != len(edge) {
			return nil, false, nil
		}
		n = child
		pos += cp
	}
	if !db.nodeHasValue(n) {
		return nil, false, nil
	}
	return cloneBytes(db.nodeValue(n)), true, nil
}

// Put inserts or replaces the value stored under key.
func (db *DB) Put(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.data == nil {
		return ErrClosed
	}
	n := db.root()
	pos := 0
	for {
		if pos == len(key) {
			return db.setNodeValue(n, value)
		}
		_, child, ok := db.findChild(n, key[pos])
		if !ok {
			leaf, err := db.newNode()
			if err != nil {
				return err
			}
			if err := db.setNodeEdge(leaf, key[pos:]); err != nil {
				return err
			}
			if err := db.setNodeValue(leaf, value); err != nil {
				return err
			}
			return db.addChild(n, key[pos], leaf)
		}

		edge := db.nodeEdge(child)
		cp := commonPrefixLen(edge, key[pos:])
		switch {
		case cp == len(edge):
			n = child
			pos += cp
			continue
		default:
			// Split child's edge at cp: a new intermediate node takes
			// the shared prefix, child keeps the remaining suffix.
			mid, err := db.newNode()
			if err != nil {
				return err
			}
			if err := db.setNodeEdge(mid, edge[:cp]); err != nil {
				return err
			}
			suffix := append([]byte(nil), edge[cp:]...)
			if err := db.setNodeEdge(child, suffix); err != nil {
				return err
			}
			if err := db.addChild(mid, suffix[0], child); err != nil {
				return err
			}
			db.replaceChild(n, key[pos], mid)

			rest := key[pos+cp:]
			if len(rest) == 0 {
				return db.setNodeValue(mid, value)
			}
			leaf, err := db.newNode()
			if err != nil {
				return err
			}
			if err := db.setNodeEdge(leaf, rest); err != nil {
				return err
			}
			if err := db.setNodeValue(leaf, value); err != nil {
				return err
			}
			return db.addChild(mid, rest[0], leaf)
		}
	}
}

// Delete clears the value stored under key, if present, then prunes
// the now-valueless, childless node chain back up toward the root and
// merges any ancestor left with exactly one child and no value of its
// own, so deletion doesn't leave the tree shape to grow without bound.
func (db *DB) Delete(key []byte) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.data == nil {
		return false, ErrClosed
	}
	n := db.root()
	pos := 0
	for pos < len(key) {
		_, child, ok := db.findChild(n, key[pos])
		if !ok {
			return false, nil
		}
		edge := db.nodeEdge(child)
		cp := commonPrefixLen(edge, key[pos:])
		if cp != len(edge) {
			return false, nil
		}
		n = child
		pos += cp
	}
	if !db.nodeHasValue(n) {
		return false, nil
	}
	db.clearNodeValue(n)
	db.pruneUp(n)
	return true, nil
}

// pruneUp removes n from the tree if it now carries neither a value
// nor any children, walking up and repeating the check at its parent;
// it collapses a valueless node left with exactly one child into that
// child, extending the child's edge to cover the gap. It never touches
// the root.
func (db *DB) pruneUp(n Ptr) {
	for {
		if n == db.root() || db.nodeHasValue(n) {
			return
		}
		switch db.numKids(n) {
		case 0:
			p := db.nodeParent(n)
			idx := int(db.nodePidx(n))
			db.removeChild(p, idx)
			db.freeNode(n)
			n = p
		case 1:
			db.mergeSingleChild(n)
			return
		default:
			return
		}
	}
}

// mergeSingleChild collapses n (which has exactly one child and no
// value of its own) into that child by concatenating n's edge onto
// the child's edge and re-pointing n's parent slot directly at the
// child.
func (db *DB) mergeSingleChild(n Ptr) {
	_, only := db.childAt(n, 0)
	merged := append(append([]byte(nil), db.nodeEdge(n)...), db.nodeEdge(only)...)
	if err := db.setNodeEdge(only, merged); err != nil {
		return // leave the chain unmerged on allocation failure; still correct, just untidy
	}
	p := db.nodeParent(n)
	idx := int(db.nodePidx(n))
	first, _ := db.childAt(p, idx)
	db.setChildAt(p, idx, first, only)
	db.setNodeParent(only, p)
	db.setNodePidx(only, uint16(idx))
	db.freeNode(n)
}

// Walk visits every (key, value) pair in lexicographic key order,
// calling fn with the full accumulated key. Walk stops early if fn
// returns false. The value slice passed to fn aliases the arena and
// is only valid for the duration of that call; copy it to retain it.
func (db *DB) Walk(fn func(key, value []byte) bool) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.data == nil {
		return ErrClosed
	}
	_, err := db.walk(db.root(), nil, fn)
	return err
}

func (db *DB) walk(n Ptr, prefix []byte, fn func(key, value []byte) bool) (bool, error) {
	if db.nodeHasValue(n) {
		if !fn(prefix, db.nodeValue(n)) {
			return false, nil
		}
	}
	count := db.numKids(n)
	order := make([]int, count)
	for i := range order {
		order[i] = i
	}
	for i := 0; i < count; i++ {
		for j := i + 1; j < count; j++ {
			bi, _ := db.childAt(n, order[i])
			bj, _ := db.childAt(n, order[j])
			if bj < bi {
				order[i], order[j] = order[j], order[i]
			}
		}
	}
	for _, idx := range order {
		_, child := db.childAt(n, idx)
		edge := db.nodeEdge(child)
		childKey := make([]byte, 0, len(prefix)+len(edge))
		childKey = append(childKey, prefix...)
		childKey = append(childKey, edge...)
		cont, err := db.walk(child, childKey, fn)
		if err != nil || !cont {
			return cont, err
		}
	}
	return true, nil
}

// keyForNode reconstructs n's full key by walking parent links up to
// the root and concatenating edges in root-to-leaf order, using the
// parent back-references instead of re-descending from the root.
func (db *DB) keyForNode(n Ptr) []byte {
	var edges [][]byte
	for cur := n; cur != db.root(); cur = db.nodeParent(cur) {
		edges = append(edges, db.nodeEdge(cur))
	}
	total := 0
	for _, e := range edges {
		total += len(e)
	}
	key := make([]byte, 0, total)
	for i := len(edges) - 1; i >= 0; i-- {
		key = append(key, edges[i]...)
	}
	return key
}

// smallestLeaf returns the node holding the lexicographically
// smallest key in n's subtree: n's own key if it carries a value
// (since any extension of it sorts after it), otherwise the smallest
// first-byte child's subtree. Returns 0 if the subtree is empty.
func (db *DB) smallestLeaf(n Ptr) Ptr {
	if db.nodeHasValue(n) {
		return n
	}
	count := db.numKids(n)
	if count == 0 {
		return 0
	}
	bestIdx := 0
	bestByte, _ := db.childAt(n, 0)
	for i := 1; i < count; i++ {
		b, _ := db.childAt(n, i)
		if b < bestByte {
			bestByte, bestIdx = b, i
		}
	}
	_, child := db.childAt(n, bestIdx)
	return db.smallestLeaf(child)
}

// largestLeaf returns the node holding the lexicographically largest
// key in n's subtree: always descends into the largest-first-byte
// child when one exists, since a child's key is a strict extension of
// n's own and always sorts after it.
func (db *DB) largestLeaf(n Ptr) Ptr {
	count := db.numKids(n)
	if count == 0 {
		if db.nodeHasValue(n) {
			return n
		}
		return 0
	}
	bestIdx := 0
	bestByte, _ := db.childAt(n, 0)
	for i := 1; i < count; i++ {
		b, _ := db.childAt(n, i)
		if b > bestByte {
			bestByte, bestIdx = b, i
		}
	}
	_, child := db.childAt(n, bestIdx)
	return db.largestLeaf(child)
}

func (db *DB) smallestChildAny(n Ptr) (Ptr, bool) {
	count := db.numKids(n)
	if count == 0 {
		return 0, false
	}
	bestIdx := 0
	bestByte, _ := db.childAt(n, 0)
	for i := 1; i < count; i++ {
		b, _ := db.childAt(n, i)
		if b < bestByte {
			bestByte, bestIdx = b, i
		}
	}
	_, c := db.childAt(n, bestIdx)
	return c, true
}

func (db *DB) largestChildByteBelow(n Ptr, b byte) (Ptr, bool) {
	count := db.numKids(n)
	found := false
	var bestByte byte
	var bestChild Ptr
	for i := 0; i < count; i++ {
		fb, child := db.childAt(n, i)
		if fb < b && (!found || fb > bestByte) {
			found, bestByte, bestChild = true, fb, child
		}
	}
	return bestChild, found
}

func (db *DB) smallestChildByteAbove(n Ptr, b byte) (Ptr, bool) {
	count := db.numKids(n)
	found := false
	var bestByte byte
	var bestChild Ptr
	for i := 0; i < count; i++ {
		fb, child := db.childAt(n, i)
		if fb > b && (!found || fb < bestByte) {
			found, bestByte, bestChild = true, fb, child
		}
	}
	return bestChild, found
}

// predecessorBacktrack walks up from cur looking for the nearest
// ancestor branch point with a sibling smaller than the one cur
// descended through, or an ancestor's own value (an ancestor's key is
// always less than any of its descendants').
func (db *DB) predecessorBacktrack(cur Ptr) (Ptr, bool) {
	for {
		if cur == db.root() {
			return 0, false
		}
		p := db.nodeParent(cur)
		idx := int(db.nodePidx(cur))
		curByte, _ := db.childAt(p, idx)
		if c, found := db.largestChildByteBelow(p, curByte); found {
			return db.largestLeaf(c), true
		}
		if db.nodeHasValue(p) {
			return p, true
		}
		cur = p
	}
}

// successorBacktrack is predecessorBacktrack's mirror image: it never
// returns an ancestor's own value, since an ancestor's key always
// sorts before its descendants', never after.
func (db *DB) successorBacktrack(cur Ptr) (Ptr, bool) {
	for {
		if cur == db.root() {
			return 0, false
		}
		p := db.nodeParent(cur)
		idx := int(db.nodePidx(cur))
		curByte, _ := db.childAt(p, idx)
		if c, found := db.smallestChildByteAbove(p, curByte); found {
			return db.smallestLeaf(c), true
		}
		cur = p
	}
}

// seekLessThanOrEqual finds the node holding the largest stored key
// that is <= key (or, with strict set, strictly < key), descending
// from the root the same way Get does and falling back to sibling/
// ancestor search at the point where the exact key isn't present.
func (db *DB) seekLessThanOrEqual(key []byte, strict bool) (Ptr, bool) {
	n := db.root()
	pos := 0
	for {
		if pos == len(key) {
			if !strict && db.nodeHasValue(n) {
				return n, true
			}
			return db.predecessorBacktrack(n)
		}
		_, child, ok := db.findChild(n, key[pos])
		if !ok {
			if c, found := db.largestChildByteBelow(n, key[pos]); found {
				return db.largestLeaf(c), true
			}
			if db.nodeHasValue(n) {
				return n, true
			}
			return db.predecessorBacktrack(n)
		}
		edge := db.nodeEdge(child)
		cp := commonPrefixLen(edge, key[pos:])
		if cp == len(edge) {
			n = child
			pos += cp
			continue
		}
		if pos+cp == len(key) || edge[cp] > key[pos+cp] {
			// key is a strict prefix of edge, or edge sorts after the
			// target here: child's whole subtree is greater than key.
			if c, found := db.largestChildByteBelow(n, key[pos]); found {
				return db.largestLeaf(c), true
			}
			if db.nodeHasValue(n) {
				return n, true
			}
			return db.predecessorBacktrack(n)
		}
		// edge[cp] < key[pos+cp]: child's whole subtree sorts below key.
		return db.largestLeaf(child), true
	}
}

// seekGreaterThan finds the node holding the smallest stored key
// strictly greater than key.
func (db *DB) seekGreaterThan(key []byte) (Ptr, bool) {
	n := db.root()
	pos := 0
	for {
		if pos == len(key) {
			if c, found := db.smallestChildAny(n); found {
				return db.smallestLeaf(c), true
			}
			return db.successorBacktrack(n)
		}
		_, child, ok := db.findChild(n, key[pos])
		if !ok {
			if c, found := db.smallestChildByteAbove(n, key[pos]); found {
				return db.smallestLeaf(c), true
			}
			return db.successorBacktrack(n)
		}
		edge := db.nodeEdge(child)
		cp := commonPrefixLen(edge, key[pos:])
		if cp == len(edge) {
			n = child
			pos += cp
			continue
		}
		if pos+cp == len(key) || edge[cp] > key[pos+cp] {
			return db.smallestLeaf(child), true
		}
		if c, found := db.smallestChildByteAbove(n, key[pos]); found {
			return db.smallestLeaf(c), true
		}
		return db.successorBacktrack(n)
	}
}

// First returns the lexicographically smallest stored (key, value).
func (db *DB) First() ([]byte, []byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.data == nil {
		return nil, nil, false, ErrClosed
	}
	n := db.smallestLeaf(db.root())
	if n == 0 {
		return nil, nil, false, nil
	}
	return db.keyForNode(n), cloneBytes(db.nodeValue(n)), true, nil
}

// Last returns the lexicographically largest stored (key, value).
func (db *DB) Last() ([]byte, []byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.data == nil {
		return nil, nil, false, ErrClosed
	}
	n := db.largestLeaf(db.root())
	if n == 0 {
		return nil, nil, false, nil
	}
	return db.keyForNode(n), cloneBytes(db.nodeValue(n)), true, nil
}

// Next returns the smallest stored (key, value) with a key strictly
// greater than key.
func (db *DB) Next(key []byte) ([]byte, []byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.data == nil {
		return nil, nil, false, ErrClosed
	}
	n, ok := db.seekGreaterThan(key)
	if !ok {
		return nil, nil, false, nil
	}
	return db.keyForNode(n), cloneBytes(db.nodeValue(n)), true, nil
}

// Prev returns the largest stored (key, value) with a key strictly
// less than key.
func (db *DB) Prev(key []byte) ([]byte, []byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.data == nil {
		return nil, nil, false, ErrClosed
	}
	n, ok := db.seekLessThanOrEqual(key, true)
	if !ok {
		return nil, nil, false, nil
	}
	return db.keyForNode(n), cloneBytes(db.nodeValue(n)), true, nil
}

// FindLessEqual returns the largest stored (key, value) with a key
// less than or equal to key — the exact entry if key is present,
// otherwise its immediate predecessor.
func (db *DB) FindLessEqual(key []byte) ([]byte, []byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.data == nil {
		return nil, nil, false, ErrClosed
	}
	n, ok := db.seekLessThanOrEqual(key, false)
	if !ok {
		return nil, nil, false, nil
	}
	return db.keyForNode(n), cloneBytes(db.nodeValue(n)), true, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// checkInvariants walks the whole tree verifying the structural
// invariants this radix tree relies on: a node's children table never
// exceeds maxChildren, an allocated table is never less than half
// full once past childMinCap (the shrink threshold removeChild
// enforces), an empty table is always freed rather than left
// allocated, and every child's parent/pidx back-reference points to
// exactly the slot that holds it. Grounded on the consistency checks
// cutest_udbrad.c runs against NSD's own udb_radix tree after every
// mutation.
func (db *DB) checkInvariants() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.data == nil {
		return ErrClosed
	}
	return db.checkNode(db.root(), true)
}

func (db *DB) checkNode(n Ptr, isRoot bool) error {
	cap := db.capacity(n)
	count := db.numKids(n)
	if cap > maxChildren {
		return fmt.Errorf("udb: node %d: capacity %d exceeds %d", n, cap, maxChildren)
	}
	if count > cap {
		return fmt.Errorf("udb: node %d: count %d exceeds capacity %d", n, count, cap)
	}
	if count == 0 && cap != 0 {
		return fmt.Errorf("udb: node %d: empty children table should have been freed, capacity is %d", n, cap)
	}
	if count > 0 && cap > childMinCap && count < cap/2 {
		return fmt.Errorf("udb: node %d: density invariant violated, count=%d capacity=%d", n, count, cap)
	}
	if !isRoot {
		p := db.nodeParent(n)
		idx := int(db.nodePidx(n))
		if idx < 0 || idx >= db.numKids(p) {
			return fmt.Errorf("udb: node %d: pidx %d out of range for parent %d", n, idx, p)
		}
		_, child := db.childAt(p, idx)
		if child != n {
			return fmt.Errorf("udb: node %d: parent %d's slot %d points to %d instead", n, p, idx, child)
		}
	}
	for i := 0; i < count; i++ {
		_, child := db.childAt(n, i)
		if db.nodeParent(child) != n {
			return fmt.Errorf("udb: node %d: child %d at slot %d has parent %d instead of %d", n, child, i, db.nodeParent(child), n)
		}
		if int(db.nodePidx(child)) != i {
			return fmt.Errorf("udb: node %d: child %d at slot %d has pidx %d instead of %d", n, child, i, db.nodePidx(child), i)
		}
		if err := db.checkNode(child, false); err != nil {
			return err
		}
	}
	return nil
}
