package wire

import (
	"encoding/binary"

	"dnsauthd/internal/name"
	"dnsauthd/internal/rdata"
	"dnsauthd/internal/rr"
)

// Question is the single entry the query section always carries (this
// server rejects QDCOUNT != 1, per spec.md §4.6 step 1).
type Question struct {
	Name   name.DomainName
	Qtype  rdata.Type
	Qclass rr.Class
}

// Message is a fully decoded DNS message: header plus its four
// sections. TSIG, if present, has already been split out by the
// caller (see the tsig package) by the time a Message reaches the
// query engine, but ParseMessage leaves it in Additional so callers
// that need raw access (e.g. AXFR streaming) can see it.
type Message struct {
	Header     Header
	Question   []Question
	Answer     []rr.RR
	Authority  []rr.RR
	Additional []rr.RR
}

// ParseMessage decodes buf into a Message. It never reads past the
// end of buf; any malformed input yields ErrFormErr (or a more
// specific compression error) without panicking.
func ParseMessage(buf []byte) (*Message, error) {
	hdr, err := parseHeader(buf)
	if err != nil {
		return nil, err
	}
	off := 12
	m := &Message{Header: hdr}

	for i := 0; i < int(hdr.QDCount); i++ {
		q, next, err := parseQuestion(buf, off)
		if err != nil {
			return nil, err
		}
		m.Question = append(m.Question, q)
		off = next
	}

	parseSection := func(count uint16) ([]rr.RR, error) {
		out := make([]rr.RR, 0, count)
		for i := 0; i < int(count); i++ {
			record, next, err := parseRR(buf, off)
			if err != nil {
				return nil, err
			}
			out = append(out, record)
			off = next
		}
		return out, nil
	}

	if m.Answer, err = parseSection(hdr.ANCount); err != nil {
		return nil, err
	}
	if m.Authority, err = parseSection(hdr.NSCount); err != nil {
		return nil, err
	}
	if m.Additional, err = parseSection(hdr.ARCount); err != nil {
		return nil, err
	}
	return m, nil
}

func parseQuestion(buf []byte, off int) (Question, int, error) {
	n, off, err := readName(buf, off)
	if err != nil {
		return Question{}, 0, err
	}
	if off+4 > len(buf) {
		return Question{}, 0, ErrFormErr
	}
	qtype := binary.BigEndian.Uint16(buf[off:])
	qclass := binary.BigEndian.Uint16(buf[off+2:])
	return Question{Name: n, Qtype: rdata.Type(qtype), Qclass: rr.Class(qclass)}, off + 4, nil
}

func parseRR(buf []byte, off int) (rr.RR, int, error) {
	owner, off, err := readName(buf, off)
	if err != nil {
		return rr.RR{}, 0, err
	}
	if off+10 > len(buf) {
		return rr.RR{}, 0, ErrFormErr
	}
	rtype := rdata.Type(binary.BigEndian.Uint16(buf[off:]))
	class := rr.Class(binary.BigEndian.Uint16(buf[off+2:]))
	ttl := binary.BigEndian.Uint32(buf[off+4:])
	rdlen := int(binary.BigEndian.Uint16(buf[off+8:]))
	off += 10
	if off+rdlen > len(buf) {
		return rr.RR{}, 0, ErrShortBuffer
	}
	d, err := rdata.Unpack(rtype, buf[off:], rdlen)
	if err != nil {
		return rr.RR{}, 0, err
	}
	return rr.RR{Owner: owner, Type: rtype, Class: class, TTL: ttl, Data: d}, off + rdlen, nil
}

// Write serializes m into a fresh buffer bounded by maxSize. If a
// section would overflow the budget, Write stops at the last complete
// RR of that section, returns the bytes emitted so far together with
// a *Truncated error, and leaves it to the caller to set TC=1 (UDP) or
// treat it as fatal (TCP) per spec.md §4.4.
func Write(m *Message, maxSize int) ([]byte, error) {
	buf := make([]byte, 0, min(maxSize, 512))
	buf = writeHeader(buf, m.Header)
	ct := newCompressionTable()

	for _, q := range m.Question {
		buf = writeName(buf, q.Name, ct)
		buf = putU16(buf, uint16(q.Qtype))
		buf = putU16(buf, uint16(q.Qclass))
	}

	var truncErr error
	writeSection := func(rrs []rr.RR, section int, countOff int) []rr.RR {
		written := rrs[:0:0]
		for _, record := range rrs {
			candidate := writeRR(append([]byte(nil), buf...), record, ct)
			if len(candidate) > maxSize {
				truncErr = &Truncated{Section: section}
				return written
			}
			buf = candidate
			written = append(written, record)
		}
		return written
	}

	answer := writeSection(m.Answer, 0, 6)
	var authority, additional []rr.RR
	if truncErr == nil {
		authority = writeSection(m.Authority, 1, 8)
	}
	if truncErr == nil {
		additional = writeSection(m.Additional, 2, 10)
	}

	hdr := m.Header
	hdr.QDCount = uint16(len(m.Question))
	hdr.ANCount = uint16(len(answer))
	hdr.NSCount = uint16(len(authority))
	hdr.ARCount = uint16(len(additional))
	final := make([]byte, 0, len(buf))
	final = writeHeader(final, hdr)
	ct = newCompressionTable()
	for _, q := range m.Question {
		final = writeName(final, q.Name, ct)
		final = putU16(final, uint16(q.Qtype))
		final = putU16(final, uint16(q.Qclass))
	}
	for _, record := range answer {
		final = writeRR(final, record, ct)
	}
	for _, record := range authority {
		final = writeRR(final, record, ct)
	}
	for _, record := range additional {
		final = writeRR(final, record, ct)
	}
	return final, truncErr
}

func writeRR(buf []byte, record rr.RR, ct *compressionTable) []byte {
	buf = writeName(buf, record.Owner, ct)
	buf = putU16(buf, uint16(record.Type))
	buf = putU16(buf, uint16(record.Class))
	buf = putU32(buf, record.TTL)
	rdOff := len(buf)
	buf = putU16(buf, 0) // placeholder RDLENGTH
	before := len(buf)
	if record.Data != nil {
		buf = record.Data.Pack(buf)
	}
	rdlen := len(buf) - before
	binary.BigEndian.PutUint16(buf[rdOff:], uint16(rdlen))
	return buf
}

func putU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func putU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
