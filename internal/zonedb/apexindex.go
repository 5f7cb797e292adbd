package zonedb

import "dnsauthd/internal/name"

// apexNode is a byte-trie node over canonical-key bytes. The apex set
// this server holds is small (tens to low thousands of zones) so a
// plain trie is used here rather than edge-compressed radix; the
// edge-compressed radix tree lives in the udb package, where the
// refresh engine uses it to journal applied zone serials, not to index
// zone data.
type apexNode struct {
	children map[byte]*apexNode
	zone     *Zone // non-nil at a node that is itself a configured apex
}

// apexIndex finds, for any QNAME, the deepest configured zone apex
// that is an ancestor of (or equal to) it — spec.md §4.4 step 1.
type apexIndex struct {
	root *apexNode
}

func newApexIndex() *apexIndex {
	return &apexIndex{root: &apexNode{children: map[byte]*apexNode{}}}
}

func (idx *apexIndex) insert(apex name.DomainName, z *Zone) {
	key := apex.CanonicalKey()
	n := idx.root
	for _, b := range key {
		next, ok := n.children[b]
		if !ok {
			next = &apexNode{children: map[byte]*apexNode{}}
			n.children[b] = next
		}
		n = next
	}
	n.zone = z
}

func (idx *apexIndex) remove(apex name.DomainName) {
	key := apex.CanonicalKey()
	n := idx.root
	for _, b := range key {
		next, ok := n.children[b]
		if !ok {
			return
		}
		n = next
	}
	n.zone = nil
}

// findDeepest walks qname's canonical key and returns the zone at the
// deepest node marked as an apex, tracking the best match seen so the
// walk can stop early at a mismatch without losing it.
func (idx *apexIndex) findDeepest(qname name.DomainName) *Zone {
	key := qname.CanonicalKey()
	n := idx.root
	var best *Zone
	if n.zone != nil {
		best = n.zone
	}
	for _, b := range key {
		next, ok := n.children[b]
		if !ok {
			break
		}
		n = next
		if n.zone != nil {
			best = n.zone
		}
	}
	return best
}
