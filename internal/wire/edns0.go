package wire

import (
	"dnsauthd/internal/name"
	"dnsauthd/internal/rdata"
	"dnsauthd/internal/rr"
)

// EdnsInfo is the parsed content of a request's OPT pseudo-RR
// (RFC 6891). UDPSize is the requestor's advertised payload size;
// Version 0 is the only version this server understands.
type EdnsInfo struct {
	Present     bool
	UDPSize     uint16
	Version     uint8
	DO          bool
	ExtRcodeHi  uint8
	Options     []rdata.EDNSOption
}

// DefaultUDPPayload is advertised in this server's own OPT records
// per spec.md §6 (4096 on both IPv4 and IPv6 listeners).
const DefaultUDPPayload = 4096

// ParseEDNS0 scans the additional section for the (at most one) OPT
// record. A second OPT RR, or one whose owner isn't root, is a
// FORMERR per RFC 6891 §6.1.1.
func ParseEDNS0(additional []rr.RR) (EdnsInfo, error) {
	var info EdnsInfo
	for _, a := range additional {
		if a.Type != rdata.TypeOPT {
			continue
		}
		if info.Present {
			return EdnsInfo{}, ErrFormErr
		}
		if !a.Owner.IsRoot() {
			return EdnsInfo{}, ErrFormErr
		}
		opt, ok := a.Data.(*rdata.OPT)
		if !ok {
			return EdnsInfo{}, ErrFormErr
		}
		info.Present = true
		info.UDPSize = uint16(a.Class)
		info.ExtRcodeHi = uint8(a.TTL >> 24)
		info.Version = uint8(a.TTL >> 16)
		info.DO = a.TTL&(1<<15) != 0
		info.Options = opt.Options
	}
	return info, nil
}

// BuildOPT constructs this server's response OPT RR for the given
// base rcode (its low 4 bits go in the ordinary header, the high 8
// bits live here) and DO bit, advertising DefaultUDPPayload as our own
// payload size whatever the requestor's UDPSize was.
func BuildOPT(rcode Rcode, do bool) rr.RR {
	var ttl uint32
	ttl |= uint32(uint8(rcode>>4)) << 24
	if do {
		ttl |= 1 << 15
	}
	return rr.RR{
		Owner: name.Root,
		Type:  rdata.TypeOPT,
		Class: rr.Class(DefaultUDPPayload),
		TTL:   ttl,
		Data:  &rdata.OPT{},
	}
}
