// Package rr defines the Resource Record and RRset types shared by the
// wire codec, the zone database, and the transfer/TSIG subsystems.
package rr

import (
	"strings"

	"dnsauthd/internal/name"
	"dnsauthd/internal/rdata"
)

// Class is a DNS class number; this server only ever serves ClassINET.
// CHAOS and ANY are named so zone files can spell them ("CH", "ANY").
type Class uint16

const (
	ClassINET  Class = 1
	ClassCHAOS Class = 3
	ClassANY   Class = 255
)

// RR is a single resource record: an owner name carrying one rdata
// value of a declared type, class, and TTL.
type RR struct {
	Owner name.DomainName
	Type  rdata.Type
	Class Class
	TTL   uint32
	Data  rdata.Rdata
}

// Key identifies the RRset an RR belongs to.
type Key struct {
	Owner string // canonical (lowercased) presentation form, used as a map key
	Type  rdata.Type
	Class Class
}

func (rr RR) Key() Key {
	return Key{Owner: strings.ToLower(rr.Owner.String()), Type: rr.Type, Class: rr.Class}
}

// RRset is a group of RRs sharing owner, type, and class. Members
// carry no duplicate rdata; TTL is shared across the set (the lowest
// TTL observed at load time wins, matching RFC 2181 §5.2).
type RRset struct {
	Owner name.DomainName
	Type  rdata.Type
	Class Class
	TTL   uint32
	Data  []rdata.Rdata
}

// Add inserts d into the set unless an equal rdata value is already
// present (by presentation-form comparison, which is sufficient since
// Rdata values do not carry floating-point or otherwise non-canonical
// fields).
func (s *RRset) Add(d rdata.Rdata) {
	for _, existing := range s.Data {
		if existing.String() == d.String() {
			return
		}
	}
	s.Data = append(s.Data, d)
}

// RRs expands the set back into individual RR values sharing owner,
// type, class, and TTL.
func (s *RRset) RRs() []RR {
	out := make([]RR, 0, len(s.Data))
	for _, d := range s.Data {
		out = append(out, RR{Owner: s.Owner, Type: s.Type, Class: s.Class, TTL: s.TTL, Data: d})
	}
	return out
}
