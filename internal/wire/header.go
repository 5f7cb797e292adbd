// Package wire implements the DNS message codec: header accessors,
// name (de)compression, and section parsing/serialization per
// spec.md §4.1.
package wire

import "encoding/binary"

// Opcode is the 4-bit DNS opcode field.
type Opcode uint8

const (
	OpcodeQuery  Opcode = 0
	OpcodeIQuery Opcode = 1
	OpcodeStatus Opcode = 2
	OpcodeNotify Opcode = 4
	OpcodeUpdate Opcode = 5
)

// Rcode is the (possibly EDNS0-extended) response code.
type Rcode uint16

const (
	RcodeSuccess  Rcode = 0
	RcodeFormErr  Rcode = 1
	RcodeServFail Rcode = 2
	RcodeNXDomain Rcode = 3
	RcodeNotImp   Rcode = 4
	RcodeRefused  Rcode = 5
	RcodeNotAuth  Rcode = 9
	RcodeNotZone  Rcode = 10
	RcodeBadVers  Rcode = 16
	RcodeBadKey   Rcode = 17
	RcodeBadSig   Rcode = 18
	RcodeBadTime  Rcode = 19
	RcodeBadTrunc Rcode = 22
)

// Header is the fixed 12-octet DNS message header, exposed as
// bit-exact accessors over the two flag/count words per spec.md §4.1.
type Header struct {
	ID      uint16
	Bits    uint16 // QR,Opcode,AA,TC,RD,RA,Z,AD,CD,RCODE packed as on the wire
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

const (
	bitQR = 1 << 15
	bitAA = 1 << 10
	bitTC = 1 << 9
	bitRD = 1 << 8
	bitRA = 1 << 7
	bitZ  = 1 << 6
	bitAD = 1 << 5
	bitCD = 1 << 4
)

func (h Header) QR() bool          { return h.Bits&bitQR != 0 }
func (h Header) Opcode() Opcode    { return Opcode((h.Bits >> 11) & 0xf) }
func (h Header) AA() bool          { return h.Bits&bitAA != 0 }
func (h Header) TC() bool          { return h.Bits&bitTC != 0 }
func (h Header) RD() bool          { return h.Bits&bitRD != 0 }
func (h Header) RA() bool          { return h.Bits&bitRA != 0 }
func (h Header) Z() bool           { return h.Bits&bitZ != 0 }
func (h Header) AD() bool          { return h.Bits&bitAD != 0 }
func (h Header) CD() bool          { return h.Bits&bitCD != 0 }
func (h Header) Rcode() Rcode      { return Rcode(h.Bits & 0xf) }

func (h *Header) SetQR(v bool)       { setBit(&h.Bits, bitQR, v) }
func (h *Header) SetOpcode(o Opcode) { h.Bits = (h.Bits &^ (0xf << 11)) | (uint16(o) << 11) }
func (h *Header) SetAA(v bool)       { setBit(&h.Bits, bitAA, v) }
func (h *Header) SetTC(v bool)       { setBit(&h.Bits, bitTC, v) }
func (h *Header) SetRD(v bool)       { setBit(&h.Bits, bitRD, v) }
func (h *Header) SetRA(v bool)       { setBit(&h.Bits, bitRA, v) }
func (h *Header) SetAD(v bool)       { setBit(&h.Bits, bitAD, v) }
func (h *Header) SetCD(v bool)       { setBit(&h.Bits, bitCD, v) }
func (h *Header) SetRcode(r Rcode)   { h.Bits = (h.Bits &^ 0xf) | (uint16(r) & 0xf) }

func setBit(bits *uint16, mask uint16, v bool) {
	if v {
		*bits |= mask
	} else {
		*bits &^= mask
	}
}

func parseHeader(buf []byte) (Header, error) {
	if len(buf) < 12 {
		return Header{}, ErrFormErr
	}
	return Header{
		ID:      binary.BigEndian.Uint16(buf[0:2]),
		Bits:    binary.BigEndian.Uint16(buf[2:4]),
		QDCount: binary.BigEndian.Uint16(buf[4:6]),
		ANCount: binary.BigEndian.Uint16(buf[6:8]),
		NSCount: binary.BigEndian.Uint16(buf[8:10]),
		ARCount: binary.BigEndian.Uint16(buf[10:12]),
	}, nil
}

func writeHeader(buf []byte, h Header) []byte {
	var tmp [12]byte
	binary.BigEndian.PutUint16(tmp[0:2], h.ID)
	binary.BigEndian.PutUint16(tmp[2:4], h.Bits)
	binary.BigEndian.PutUint16(tmp[4:6], h.QDCount)
	binary.BigEndian.PutUint16(tmp[6:8], h.ANCount)
	binary.BigEndian.PutUint16(tmp[8:10], h.NSCount)
	binary.BigEndian.PutUint16(tmp[10:12], h.ARCount)
	return append(buf, tmp[:]...)
}
