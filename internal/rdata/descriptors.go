package rdata

// FieldKind enumerates the presentation-format field primitives the
// zone-file reader and printer use to describe a type's rdata layout,
// per spec.md §4.3. Known types below implement their own Pack/Unpack
// directly rather than walking this table at runtime; the table is
// kept as the authoritative description referenced by the zone-file
// parser (not included in this core) and by documentation/tests.
type FieldKind int

const (
	FieldName FieldKind = iota
	FieldUncompressedName
	FieldInt8
	FieldInt16
	FieldInt32
	FieldIPv4
	FieldIPv6
	FieldBase64
	FieldHex
	FieldTime
	FieldPeriod
	FieldOpaque
)

// Descriptor documents the field shape of one RR type.
type Descriptor struct {
	Type   Type
	Name   string
	Fields []FieldKind
}

// Descriptors is the constant table of field lists, indexed by type
// for presentation parsing/printing as described in spec.md §4.3.
var Descriptors = map[Type]Descriptor{
	TypeA:      {TypeA, "A", []FieldKind{FieldIPv4}},
	TypeAAAA:   {TypeAAAA, "AAAA", []FieldKind{FieldIPv6}},
	TypeNS:     {TypeNS, "NS", []FieldKind{FieldName}},
	TypeCNAME:  {TypeCNAME, "CNAME", []FieldKind{FieldName}},
	TypeDNAME:  {TypeDNAME, "DNAME", []FieldKind{FieldName}},
	TypeMX:     {TypeMX, "MX", []FieldKind{FieldInt16, FieldName}},
	TypeSOA:    {TypeSOA, "SOA", []FieldKind{FieldUncompressedName, FieldUncompressedName, FieldInt32, FieldPeriod, FieldPeriod, FieldPeriod, FieldPeriod}},
	TypeDNSKEY: {TypeDNSKEY, "DNSKEY", []FieldKind{FieldInt16, FieldInt8, FieldInt8, FieldBase64}},
	TypeRRSIG: {TypeRRSIG, "RRSIG", []FieldKind{FieldInt16, FieldInt8, FieldInt8, FieldInt32,
		FieldTime, FieldTime, FieldInt16, FieldUncompressedName, FieldBase64}},
	TypeNSEC:       {TypeNSEC, "NSEC", []FieldKind{FieldUncompressedName, FieldOpaque}},
	TypeNSEC3:      {TypeNSEC3, "NSEC3", []FieldKind{FieldInt8, FieldInt8, FieldInt16, FieldHex, FieldBase64, FieldOpaque}},
	TypeDS:         {TypeDS, "DS", []FieldKind{FieldInt16, FieldInt8, FieldInt8, FieldHex}},
	TypeOPT:        {TypeOPT, "OPT", []FieldKind{FieldOpaque}},
	TypeTSIG:       {TypeTSIG, "TSIG", []FieldKind{FieldUncompressedName, FieldOpaque, FieldInt16, FieldBase64, FieldInt16, FieldInt16, FieldOpaque}},
	TypeNSEC3PARAM: {TypeNSEC3PARAM, "NSEC3PARAM", []FieldKind{FieldInt8, FieldInt8, FieldInt16, FieldHex}},
}

// zeroValue constructs an empty instance of the struct registered for
// rrtype, used only as the Unpack receiver; it carries no state.
func zeroValue(rrtype Type) Rdata {
	switch rrtype {
	case TypeA:
		return &A{}
	case TypeAAAA:
		return &AAAA{}
	case TypeNS:
		return &NS{}
	case TypeCNAME:
		return &CNAME{}
	case TypeDNAME:
		return &DNAME{}
	case TypeMX:
		return &MX{}
	case TypeSOA:
		return &SOA{}
	case TypeDNSKEY:
		return &DNSKEY{}
	case TypeRRSIG:
		return &RRSIG{}
	case TypeNSEC:
		return &NSEC{}
	case TypeNSEC3:
		return &NSEC3{}
	case TypeDS:
		return &DS{}
	case TypeOPT:
		return &OPT{}
	case TypeTSIG:
		return &TSIG{}
	default:
		return &Unknown{RRType: rrtype}
	}
}

// Unpack decodes rdlen bytes of wire-format rdata for rrtype,
// dispatching to the registered concrete type or falling back to
// Unknown/RFC 3597 opaque bytes.
func Unpack(rrtype Type, buf []byte, rdlen int) (Rdata, error) {
	return zeroValue(rrtype).Unpack(buf, rdlen)
}
