package wire

import "dnsauthd/internal/name"

// maxCompressionEntries bounds the compression table to the most
// recently recorded names (the oldest entry is evicted first; a lookup
// does not refresh an entry); spec.md §4.1 notes 14 recent entries suffice
// in practice for the additional-section glue this server emits.
const maxCompressionEntries = 14

// compressionTable is a best-effort, bounded name→offset cache used
// while serializing a single message. It only ever points backward
// into the message being built, and only into offsets that fit a
// 14-bit pointer (buffers larger than 16KiB simply stop compressing).
type compressionTable struct {
	order []string
	at    map[string]uint16
}

func newCompressionTable() *compressionTable {
	return &compressionTable{at: make(map[string]uint16)}
}

func (c *compressionTable) lookup(n name.DomainName) (uint16, bool) {
	off, ok := c.at[n.String()]
	return off, ok
}

func (c *compressionTable) record(n name.DomainName, offset int) {
	if offset > 0x3fff {
		return // can't be expressed as a 14-bit pointer
	}
	key := n.String()
	if _, exists := c.at[key]; exists {
		return
	}
	if len(c.order) >= maxCompressionEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.at, oldest)
	}
	c.order = append(c.order, key)
	c.at[key] = uint16(offset)
}

// writeName appends n to buf, emitting a compression pointer for the
// longest previously-seen suffix when one is cached, and registering
// every new prefix's position for future reuse.
func writeName(buf []byte, n name.DomainName, ct *compressionTable) []byte {
	labels := n.Labels()
	for i := 0; i < len(labels); i++ {
		suffix, _ := name.FromWire(labels[i:])
		if off, ok := ct.lookup(suffix); ok {
			return append(buf, byte(0xc0|(off>>8)), byte(off&0xff))
		}
		ct.record(suffix, len(buf))
		buf = append(buf, byte(len(labels[i])))
		buf = append(buf, labels[i]...)
	}
	ct.record(name.Root, len(buf))
	return append(buf, 0)
}

// readName decodes a domain name starting at off within msg, following
// compression pointers. Pointers must always point strictly backward
// (preventing loops) and chains are capped at 128 hops per spec.md §4.1.
func readName(msg []byte, off int) (name.DomainName, int, error) {
	var labels [][]byte
	start := off
	jumped := false
	hops := 0
	end := off
	for {
		if off >= len(msg) {
			return name.DomainName{}, 0, ErrFormErr
		}
		l := int(msg[off])
		switch {
		case l == 0:
			off++
			if !jumped {
				end = off
			}
			n, err := name.FromWire(labels)
			if err != nil {
				return name.DomainName{}, 0, err
			}
			return n, end, nil
		case l&0xc0 == 0xc0:
			if off+1 >= len(msg) {
				return name.DomainName{}, 0, ErrFormErr
			}
			ptr := (int(l&0x3f) << 8) | int(msg[off+1])
			if ptr >= start {
				return name.DomainName{}, 0, ErrPointerFwd
			}
			if !jumped {
				end = off + 2
			}
			hops++
			if hops > 128 {
				return name.DomainName{}, 0, ErrPointerLoop
			}
			start = ptr // a pointer must always point strictly before the smallest offset seen so far
			off = ptr
			jumped = true
		default:
			off++
			if off+l > len(msg) {
				return name.DomainName{}, 0, ErrFormErr
			}
			if l > 63 {
				return name.DomainName{}, 0, ErrLabelTooLong
			}
			labels = append(labels, msg[off:off+l])
			off += l
			if len(labels) > 128 {
				return name.DomainName{}, 0, ErrNameTooLong
			}
		}
	}
}
