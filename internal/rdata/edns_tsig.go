package rdata

import (
	"fmt"

	"dnsauthd/internal/name"
)

// EDNSOption is a single OPT pseudo-RR option (RFC 6891 §6.1.2).
type EDNSOption struct {
	Code uint16
	Data []byte
}

// OPT is the EDNS0 pseudo-RR rdata: a sequence of {code,length,data}
// options. The owner name is always root, and the extended RCODE,
// version, and DO bit live in the RR's class/TTL fields rather than
// here; the wire package owns translating those.
type OPT struct {
	Options []EDNSOption
}

func (r *OPT) Type() Type               { return TypeOPT }
func (r *OPT) Names() []name.DomainName { return nil }

func (r *OPT) Pack(buf []byte) []byte {
	for _, o := range r.Options {
		buf = putUint16(buf, o.Code)
		buf = putUint16(buf, uint16(len(o.Data)))
		buf = append(buf, o.Data...)
	}
	return buf
}

func (r *OPT) Unpack(buf []byte, rdlen int) (Rdata, error) {
	if len(buf) < rdlen {
		return nil, ErrShortRdata
	}
	body := buf[:rdlen]
	var opts []EDNSOption
	for len(body) > 0 {
		code, rest, err := getUint16(body)
		if err != nil {
			return nil, err
		}
		l, rest2, err := getUint16(rest)
		if err != nil {
			return nil, err
		}
		if int(l) > len(rest2) {
			return nil, ErrShortRdata
		}
		data := append([]byte(nil), rest2[:l]...)
		opts = append(opts, EDNSOption{Code: code, Data: data})
		body = rest2[l:]
	}
	return &OPT{Options: opts}, nil
}

func (r *OPT) String() string {
	return fmt.Sprintf("; EDNS: options=%d", len(r.Options))
}

// TSIG is the transaction-signature pseudo-RR rdata (RFC 8945 §4.2).
// It is never stored in a zone; it is appended to and stripped from
// individual messages by the tsig package.
type TSIG struct {
	Algorithm  name.DomainName
	TimeSigned uint64 // 48-bit value
	Fudge      uint16
	MAC        []byte
	OrigID     uint16
	Error      uint16
	Other      []byte
}

func (r *TSIG) Type() Type               { return TypeTSIG }
func (r *TSIG) Names() []name.DomainName { return []name.DomainName{r.Algorithm} }

func (r *TSIG) Pack(buf []byte) []byte {
	buf = append(buf, r.Algorithm.Wire()...)
	buf = append(buf, byte(r.TimeSigned>>40), byte(r.TimeSigned>>32), byte(r.TimeSigned>>24),
		byte(r.TimeSigned>>16), byte(r.TimeSigned>>8), byte(r.TimeSigned))
	buf = putUint16(buf, r.Fudge)
	buf = putUint16(buf, uint16(len(r.MAC)))
	buf = append(buf, r.MAC...)
	buf = putUint16(buf, r.OrigID)
	buf = putUint16(buf, r.Error)
	buf = putUint16(buf, uint16(len(r.Other)))
	return append(buf, r.Other...)
}

func (r *TSIG) Unpack(buf []byte, rdlen int) (Rdata, error) {
	if len(buf) < rdlen {
		return nil, ErrShortRdata
	}
	body := buf[:rdlen]
	alg, rest, err := unpackNameRest(body)
	if err != nil {
		return nil, err
	}
	if len(rest) < 10 {
		return nil, ErrShortRdata
	}
	ts := uint64(rest[0])<<40 | uint64(rest[1])<<32 | uint64(rest[2])<<24 |
		uint64(rest[3])<<16 | uint64(rest[4])<<8 | uint64(rest[5])
	fudge, rest, _ := getUint16(rest[6:])
	macLen, rest, err := getUint16(rest)
	if err != nil || int(macLen) > len(rest) {
		return nil, ErrShortRdata
	}
	mac := append([]byte(nil), rest[:macLen]...)
	rest = rest[macLen:]
	origID, rest, err := getUint16(rest)
	if err != nil {
		return nil, err
	}
	errCode, rest, err := getUint16(rest)
	if err != nil {
		return nil, err
	}
	otherLen, rest, err := getUint16(rest)
	if err != nil || int(otherLen) > len(rest) {
		return nil, ErrShortRdata
	}
	other := append([]byte(nil), rest[:otherLen]...)
	return &TSIG{Algorithm: alg, TimeSigned: ts, Fudge: fudge, MAC: mac,
		OrigID: origID, Error: errCode, Other: other}, nil
}

func (r *TSIG) String() string {
	return fmt.Sprintf("%s %d %d %s %d %d", r.Algorithm, r.TimeSigned, r.Fudge, b64(r.MAC), r.OrigID, r.Error)
}
