package query

import (
	"net"
	"time"

	"dnsauthd/internal/name"
	"dnsauthd/internal/rdata"
	"dnsauthd/internal/rr"
	"dnsauthd/internal/tsig"
	"dnsauthd/internal/wire"
	"dnsauthd/internal/zonedb"
)

// KeyLookup resolves a TSIG key by name, as the keystore package
// provides once wired into an Engine.
type KeyLookup func(keyName name.DomainName) (tsig.Key, bool)

// ZoneACL resolves the query ACL configured for a zone's apex; a nil
// return means no ACL was configured (permit-all).
type ZoneACL func(apex name.DomainName) ACL

// Engine is the stateless answer-assembly machine of spec.md §4.6. It
// holds no per-request state; every field is read-only configuration
// shared across goroutines.
type Engine struct {
	DB         *zonedb.DB
	Keys       KeyLookup
	ACLs       ZoneACL
	Now        func() time.Time
	MaxUDPSize int
}

// NewEngine constructs an Engine wired to db. Keys and ACLs may be nil,
// meaning no TSIG keys are configured and no ACL applies anywhere.
func NewEngine(db *zonedb.DB, keys KeyLookup, acls ZoneACL) *Engine {
	return &Engine{DB: db, Keys: keys, ACLs: acls, Now: time.Now, MaxUDPSize: wire.DefaultUDPPayload}
}

// Transport distinguishes UDP from TCP for truncation and EDNS0 sizing.
type Transport int

const (
	TransportUDP Transport = iota
	TransportTCP
)

// Request bundles everything the engine needs to answer one query.
type Request struct {
	Raw       []byte // the undecoded wire bytes, needed for TSIG MAC verification
	Transport Transport
	PeerIP    net.IP
	PeerPort  uint16
}

// Handle implements spec.md §4.6 end to end: parse, sanity-check,
// EDNS0, TSIG verify, ACL, lookup, assemble, truncate, TSIG sign.
// Even a REFUSED or FORMERR outcome produces a response packet; the
// one case that returns nil is a request matched by a Blocked ACL
// entry, which is dropped without any reply.
func (e *Engine) Handle(req Request) []byte {
	now := e.Now()
	msg, err := wire.ParseMessage(req.Raw)
	if err != nil {
		return e.formErrWithoutParse(req.Raw)
	}

	resp := &wire.Message{Header: msg.Header}
	resp.Header.SetQR(true)
	resp.Header.SetRA(false)
	resp.Header.SetAA(false)

	if len(msg.Question) != 1 {
		resp.Header.SetRcode(wire.RcodeFormErr)
		return e.finish(resp, nil, nil, req)
	}
	q := msg.Question[0]
	resp.Question = msg.Question

	if msg.Header.Opcode() != wire.OpcodeQuery {
		resp.Header.SetRcode(wire.RcodeNotImp)
		return e.finish(resp, nil, nil, req)
	}

	edns, err := wire.ParseEDNS0(msg.Additional)
	if err != nil {
		resp.Header.SetRcode(wire.RcodeFormErr)
		return e.finish(resp, nil, nil, req)
	}

	var tsigState *tsig.State
	var keyName name.DomainName
	keyVerified := false

	var tsigOwner name.DomainName
	if n := len(msg.Additional); n > 0 && msg.Additional[n-1].Type == rdata.TypeTSIG {
		tsigOwner = msg.Additional[n-1].Owner
	}
	if tsigRR, ok := tsig.StripTSIG(msg); ok {
		keyName = tsigOwner
		if e.Keys != nil {
			if key, found := e.Keys(keyName); found {
				tsigState = tsig.NewState(key)
				strippedMsg, err := wire.Write(msg, 65535)
				if err == nil {
					if verr := tsigState.Verify(strippedMsg, tsigRR.OrigID, tsigRR, now); verr == nil {
						keyVerified = true
					} else {
						resp.Header.SetRcode(wire.RcodeNotAuth)
						errRR := tsig.ErrorRR(keyName, tsigRR.Algorithm, tsigRR.OrigID, tsigErrorCode(verr), now)
						resp.Additional = append(resp.Additional, errRR)
						return e.finish(resp, nil, nil, req)
					}
				}
			} else {
				resp.Header.SetRcode(wire.RcodeNotAuth)
				errRR := tsig.ErrorRR(keyName, tsigRR.Algorithm, tsigRR.OrigID, 17, now) // BADKEY
				resp.Additional = append(resp.Additional, errRR)
				return e.finish(resp, nil, nil, req)
			}
		}
	}

	if edns.Present && edns.Version != 0 {
		resp.Header.SetRcode(wire.RcodeBadVers)
		return e.finish(resp, &edns, nil, req)
	}

	zone := e.DB.FindApex(q.Name)
	acl := ACL(nil)
	if zone != nil && e.ACLs != nil {
		acl = e.ACLs(zone.Apex)
	}

	verdict := acl.Evaluate(req.PeerIP, req.PeerPort, keyName, keyVerified)
	if verdict == VerdictDrop {
		return nil
	}
	if verdict == VerdictDeny || zone == nil {
		resp.Header.SetRcode(wire.RcodeRefused)
		return e.finish(resp, &edns, nil, req)
	}

	result := zonedb.Answer(e.DB, q.Name, q.Qtype)
	resp.Header.SetAA(result.Kind != zonedb.KindRefused)

	switch result.Kind {
	case zonedb.KindRefused:
		resp.Header.SetRcode(wire.RcodeRefused)
	case zonedb.KindNXDomain:
		resp.Header.SetRcode(wire.RcodeNXDomain)
		resp.Authority = flattenSets(result.Authority)
	case zonedb.KindNoData:
		resp.Header.SetRcode(wire.RcodeSuccess)
		resp.Authority = flattenSets(result.Authority)
	case zonedb.KindReferral:
		resp.Header.SetRcode(wire.RcodeSuccess)
		resp.Header.SetAA(false)
		resp.Authority = flattenSets(result.Authority)
		resp.Additional = flattenSets(result.Glue)
	case zonedb.KindAnswer:
		resp.Header.SetRcode(wire.RcodeSuccess)
		resp.Answer = flattenSets(result.Answer)
		resp.Additional = flattenSets(result.Glue)
	}

	if tsigState != nil && !keyVerified {
		tsigState = nil
	}
	return e.finish(resp, &edns, tsigState, req)
}

// tsigErrorCode maps a tsig.Verify error to the RFC 8945 §5.3 TSIG
// error code carried in the error response's TSIG RR.
func tsigErrorCode(err error) uint16 {
	switch err {
	case tsig.ErrBadKey:
		return 17
	case tsig.ErrBadSig:
		return 18
	case tsig.ErrBadTime:
		return 19
	case tsig.ErrBadTrunc:
		return 22
	default:
		return 18
	}
}

func flattenSets(sets []*rr.RRset) []rr.RR {
	var out []rr.RR
	for _, s := range sets {
		if s == nil {
			continue
		}
		out = append(out, s.RRs()...)
	}
	return out
}

// maxSizeFor returns the response size budget per spec.md §4.6: 512 on
// plain UDP, the client's advertised EDNS0 size (capped at our own
// ceiling) on EDNS0 UDP, and effectively unbounded on TCP (64KB, the
// wire format's own ceiling).
func (e *Engine) maxSizeFor(edns *wire.EdnsInfo, req Request) int {
	if req.Transport == TransportTCP {
		return 65535
	}
	if edns != nil && edns.Present {
		size := int(edns.UDPSize)
		if size == 0 || size > e.MaxUDPSize {
			size = e.MaxUDPSize
		}
		if size < 512 {
			size = 512
		}
		return size
	}
	return 512
}

func (e *Engine) finish(resp *wire.Message, edns *wire.EdnsInfo, tsigState *tsig.State, req Request) []byte {
	if edns != nil && edns.Present {
		resp.Additional = append(resp.Additional, wire.BuildOPT(resp.Header.Rcode(), edns.DO))
	}
	maxSize := e.maxSizeFor(edns, req)
	out, truncErr := wire.Write(resp, maxSize)
	if truncErr != nil {
		if req.Transport == TransportUDP {
			resp.Header.SetTC(true)
			out, _ = wire.Write(resp, maxSize)
		}
	}
	if tsigState != nil {
		signed, err := tsigState.Sign(out, resp.Header.ID, e.Now())
		if err == nil {
			resp.Additional = append(resp.Additional, signed)
			out, _ = wire.Write(resp, maxSize+512)
		}
	}
	return out
}

// formErrWithoutParse builds a bare FORMERR response when even the
// 12-byte header couldn't be read, so the only field we can trust is
// whatever ID bytes are present (RFC 1035 has no graceful fallback
// below this).
func (e *Engine) formErrWithoutParse(raw []byte) []byte {
	var id uint16
	if len(raw) >= 2 {
		id = uint16(raw[0])<<8 | uint16(raw[1])
	}
	resp := &wire.Message{Header: wire.Header{ID: id}}
	resp.Header.SetQR(true)
	resp.Header.SetRcode(wire.RcodeFormErr)
	out, _ := wire.Write(resp, 512)
	return out
}
