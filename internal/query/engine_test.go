package query

import (
	"net"
	"testing"

	"dnsauthd/internal/name"
	"dnsauthd/internal/rdata"
	"dnsauthd/internal/rr"
	"dnsauthd/internal/wire"
	"dnsauthd/internal/zonedb"
)

func mustName(t *testing.T, s string) name.DomainName {
	t.Helper()
	n, err := name.Parse(s)
	if err != nil {
		t.Fatalf("name.Parse(%q): %v", s, err)
	}
	return n
}

func buildTestDB(t *testing.T) *zonedb.DB {
	t.Helper()
	apex := mustName(t, "example.com.")
	z := zonedb.NewZone(apex, rr.ClassINET)
	soa := &rdata.SOA{
		MName: mustName(t, "ns1.example.com."), RName: mustName(t, "hostmaster.example.com."),
		Serial: 2024010101, Refresh: 3600, Retry: 900, Expire: 604800, Minimum: 86400,
	}
	if err := z.AddRRset(apex, rdata.TypeSOA, rr.ClassINET, 3600, []rdata.Rdata{soa}); err != nil {
		t.Fatal(err)
	}
	if err := z.AddRRset(apex, rdata.TypeNS, rr.ClassINET, 3600, []rdata.Rdata{&rdata.NS{Target: mustName(t, "ns1.example.com.")}}); err != nil {
		t.Fatal(err)
	}
	if err := z.AddRRset(mustName(t, "ns1.example.com."), rdata.TypeA, rr.ClassINET, 3600,
		[]rdata.Rdata{&rdata.A{Addr: net.ParseIP("192.0.2.1").To4()}}); err != nil {
		t.Fatal(err)
	}
	if err := z.Freeze(); err != nil {
		t.Fatal(err)
	}
	db := zonedb.NewDB()
	db.Replace(z)
	return db
}

func buildQuery(t *testing.T, qname string, qtype rdata.Type) []byte {
	t.Helper()
	m := &wire.Message{
		Header:   wire.Header{ID: 0x1234},
		Question: []wire.Question{{Name: mustName(t, qname), Qtype: qtype, Qclass: rr.ClassINET}},
	}
	m.Header.SetRD(true)
	buf, err := wire.Write(m, 65535)
	if err != nil {
		t.Fatalf("wire.Write: %v", err)
	}
	return buf
}

func TestHandleAnswersApexSOA(t *testing.T) {
	e := NewEngine(buildTestDB(t), nil, nil)
	req := Request{Raw: buildQuery(t, "example.com.", rdata.TypeSOA), Transport: TransportUDP, PeerIP: net.ParseIP("198.51.100.1")}
	out := e.Handle(req)
	resp, err := wire.ParseMessage(out)
	if err != nil {
		t.Fatalf("ParseMessage(response): %v", err)
	}
	if resp.Header.Rcode() != wire.RcodeSuccess {
		t.Fatalf("expected NOERROR, got %v", resp.Header.Rcode())
	}
	if !resp.Header.AA() {
		t.Error("expected AA bit set for authoritative answer")
	}
	if len(resp.Answer) != 1 || resp.Answer[0].Type != rdata.TypeSOA {
		t.Fatalf("expected one SOA answer, got %+v", resp.Answer)
	}
}

func TestHandleRefusesOutsideAuthority(t *testing.T) {
	e := NewEngine(buildTestDB(t), nil, nil)
	req := Request{Raw: buildQuery(t, "example.net.", rdata.TypeA), Transport: TransportUDP, PeerIP: net.ParseIP("198.51.100.1")}
	out := e.Handle(req)
	resp, err := wire.ParseMessage(out)
	if err != nil {
		t.Fatalf("ParseMessage(response): %v", err)
	}
	if resp.Header.Rcode() != wire.RcodeRefused {
		t.Fatalf("expected REFUSED, got %v", resp.Header.Rcode())
	}
	if resp.Header.AA() {
		t.Error("AA must not be set for a REFUSED response")
	}
}

func TestHandleNXDomainCarriesSOAInAuthority(t *testing.T) {
	e := NewEngine(buildTestDB(t), nil, nil)
	req := Request{Raw: buildQuery(t, "nosuch.example.com.", rdata.TypeA), Transport: TransportUDP, PeerIP: net.ParseIP("198.51.100.1")}
	out := e.Handle(req)
	resp, err := wire.ParseMessage(out)
	if err != nil {
		t.Fatalf("ParseMessage(response): %v", err)
	}
	if resp.Header.Rcode() != wire.RcodeNXDomain {
		t.Fatalf("expected NXDOMAIN, got %v", resp.Header.Rcode())
	}
	if len(resp.Authority) != 1 || resp.Authority[0].Type != rdata.TypeSOA {
		t.Fatalf("expected SOA in authority, got %+v", resp.Authority)
	}
}

func TestACLBlockedEntryDropsSilently(t *testing.T) {
	db := buildTestDB(t)
	deny := ACL{{Kind: MatchSingle, IP: net.ParseIP("203.0.113.9"), Blocked: true}}
	e := NewEngine(db, nil, func(apex name.DomainName) ACL { return deny })
	req := Request{Raw: buildQuery(t, "example.com.", rdata.TypeSOA), Transport: TransportUDP, PeerIP: net.ParseIP("203.0.113.9")}
	out := e.Handle(req)
	if out != nil {
		t.Fatalf("expected a dropped (nil) response for a Blocked ACL match, got %d bytes", len(out))
	}
}

func TestMalformedHeaderYieldsFormErr(t *testing.T) {
	e := NewEngine(buildTestDB(t), nil, nil)
	out := e.Handle(Request{Raw: []byte{0x12}, Transport: TransportUDP, PeerIP: net.ParseIP("198.51.100.1")})
	resp, err := wire.ParseMessage(out)
	if err != nil {
		t.Fatalf("ParseMessage(response): %v", err)
	}
	if resp.Header.Rcode() != wire.RcodeFormErr {
		t.Fatalf("expected FORMERR, got %v", resp.Header.Rcode())
	}
}
