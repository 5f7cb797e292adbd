// Package rdata implements per-RR-type field descriptors and the
// parse/print routines the wire codec and zone loader use. Each known
// type has a concrete Go struct; unknown types round-trip through the
// RFC 3597 "\# len hex" generic syntax without ever being interpreted.
package rdata

import (
	"dnsauthd/internal/name"
)

// Type is a DNS RR type number.
type Type uint16

const (
	TypeA          Type = 1
	TypeNS         Type = 2
	TypeCNAME      Type = 5
	TypeSOA        Type = 6
	TypeMX         Type = 15
	TypeTXT        Type = 16
	TypeAAAA       Type = 28
	TypeDNAME      Type = 39
	TypeOPT        Type = 41
	TypeDS         Type = 43
	TypeRRSIG      Type = 46
	TypeNSEC       Type = 47
	TypeDNSKEY     Type = 48
	TypeNSEC3      Type = 50
	TypeNSEC3PARAM Type = 51
	TypeTSIG       Type = 250
	TypeIXFR       Type = 251
	TypeAXFR       Type = 252
	TypeANY        Type = 255
)

var typeNames = map[Type]string{
	TypeA: "A", TypeNS: "NS", TypeCNAME: "CNAME", TypeSOA: "SOA", TypeMX: "MX",
	TypeTXT: "TXT", TypeAAAA: "AAAA", TypeDNAME: "DNAME", TypeOPT: "OPT",
	TypeDS: "DS", TypeRRSIG: "RRSIG", TypeNSEC: "NSEC", TypeDNSKEY: "DNSKEY",
	TypeNSEC3: "NSEC3", TypeNSEC3PARAM: "NSEC3PARAM", TypeTSIG: "TSIG",
	TypeIXFR: "IXFR", TypeAXFR: "AXFR", TypeANY: "ANY",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "TYPE" + itoa(uint16(t))
}

// TypeByName resolves a presentation-form type mnemonic (e.g. "A",
// "SOA") to its numeric Type, for the zone file loader.
func TypeByName(s string) (Type, bool) {
	for t, n := range typeNames {
		if n == s {
			return t, true
		}
	}
	return 0, false
}

func itoa(v uint16) string {
	if v == 0 {
		return "0"
	}
	var b [5]byte
	i := len(b)
	for v > 0 {
		i--
		b[i] = byte('0' + v%10)
		v /= 10
	}
	return string(b[i:])
}

// Rdata is implemented by every concrete RR-type payload, including
// the Unknown fallback used for RFC 3597 opaque data.
type Rdata interface {
	Type() Type
	// Pack appends the wire-format encoding of the rdata to buf.
	// Embedded names are written uncompressed.
	Pack(buf []byte) []byte
	// Unpack decodes rdlen bytes of rdata starting at buf[0].
	Unpack(buf []byte, rdlen int) (Rdata, error)
	// Names returns embedded domain names in encounter order, for the
	// compression table and for additional-section glue discovery.
	Names() []name.DomainName
	// String renders RFC 1035 zone-file presentation form.
	String() string
}

// Unknown carries opaque rdata for a type this table has no descriptor
// for (RFC 3597 "\# <len> <hex>" generic record syntax).
type Unknown struct {
	RRType Type
	Data   []byte
}

func (u *Unknown) Type() Type { return u.RRType }

func (u *Unknown) Pack(buf []byte) []byte { return append(buf, u.Data...) }

func (u *Unknown) Unpack(buf []byte, rdlen int) (Rdata, error) {
	if rdlen > len(buf) {
		return nil, ErrShortRdata
	}
	data := make([]byte, rdlen)
	copy(data, buf[:rdlen])
	return &Unknown{RRType: u.RRType, Data: data}, nil
}

func (u *Unknown) Names() []name.DomainName { return nil }

func (u *Unknown) String() string {
	return "\\# " + itoa(uint16(len(u.Data))) + " " + hexString(u.Data)
}

func hexString(b []byte) string {
	const hex = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hex[v>>4]
		out[i*2+1] = hex[v&0xf]
	}
	return string(out)
}
