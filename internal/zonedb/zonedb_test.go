package zonedb

import (
	"net"
	"testing"

	"dnsauthd/internal/name"
	"dnsauthd/internal/rdata"
	"dnsauthd/internal/rr"
)

func mustName(t *testing.T, s string) name.DomainName {
	t.Helper()
	n, err := name.Parse(s)
	if err != nil {
		t.Fatalf("name.Parse(%q): %v", s, err)
	}
	return n
}

func buildExampleZone(t *testing.T) *Zone {
	t.Helper()
	apex := mustName(t, "example.com.")
	z := NewZone(apex, rr.ClassINET)
	soa := &rdata.SOA{
		MName: mustName(t, "ns1.example.com."), RName: mustName(t, "hostmaster.example.com."),
		Serial: 2024010101, Refresh: 3600, Retry: 900, Expire: 604800, Minimum: 86400,
	}
	if err := z.AddRRset(apex, rdata.TypeSOA, rr.ClassINET, 3600, []rdata.Rdata{soa}); err != nil {
		t.Fatalf("AddRRset(SOA): %v", err)
	}
	if err := z.AddRRset(apex, rdata.TypeNS, rr.ClassINET, 3600, []rdata.Rdata{&rdata.NS{Target: mustName(t, "ns1.example.com.")}}); err != nil {
		t.Fatal(err)
	}
	if err := z.AddRRset(mustName(t, "ns1.example.com."), rdata.TypeA, rr.ClassINET, 3600,
		[]rdata.Rdata{&rdata.A{Addr: net.ParseIP("192.0.2.1").To4()}}); err != nil {
		t.Fatal(err)
	}
	if err := z.AddRRset(mustName(t, "*.wild.example.com."), rdata.TypeA, rr.ClassINET, 300,
		[]rdata.Rdata{&rdata.A{Addr: net.ParseIP("192.0.2.5").To4()}}); err != nil {
		t.Fatal(err)
	}
	if err := z.AddRRset(mustName(t, "child.example.com."), rdata.TypeNS, rr.ClassINET, 3600,
		[]rdata.Rdata{&rdata.NS{Target: mustName(t, "ns1.child.example.com.")}}); err != nil {
		t.Fatal(err)
	}
	if err := z.AddRRset(mustName(t, "ns1.child.example.com."), rdata.TypeA, rr.ClassINET, 3600,
		[]rdata.Rdata{&rdata.A{Addr: net.ParseIP("192.0.2.9").To4()}}); err != nil {
		t.Fatal(err)
	}
	if err := z.Freeze(); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	return z
}

func buildDB(t *testing.T) *DB {
	db := NewDB()
	db.Replace(buildExampleZone(t))
	return db
}

// Scenario 1 from spec.md §8: SOA query at the apex.
func TestAnswerApexSOA(t *testing.T) {
	db := buildDB(t)
	res := Answer(db, mustName(t, "example.com."), rdata.TypeSOA)
	if res.Kind != KindAnswer {
		t.Fatalf("expected KindAnswer, got %v", res.Kind)
	}
	soa := res.Answer[0].Data[0].(*rdata.SOA)
	if soa.Serial != 2024010101 {
		t.Errorf("unexpected serial %d", soa.Serial)
	}
}

// Scenario 2: a nonexistent name returns NXDOMAIN with the apex SOA
// in authority.
func TestAnswerNXDomain(t *testing.T) {
	db := buildDB(t)
	res := Answer(db, mustName(t, "nx.example.com."), rdata.TypeA)
	if res.Kind != KindNXDomain {
		t.Fatalf("expected KindNXDomain, got %v", res.Kind)
	}
	if len(res.Authority) != 1 || res.Authority[0].Type != rdata.TypeSOA {
		t.Fatalf("expected apex SOA in authority, got %+v", res.Authority)
	}
}

// Scenario 3: wildcard expansion rewrites the owner to the QNAME.
func TestAnswerWildcardExpansion(t *testing.T) {
	db := buildDB(t)
	res := Answer(db, mustName(t, "x.wild.example.com."), rdata.TypeA)
	if res.Kind != KindAnswer {
		t.Fatalf("expected KindAnswer via wildcard, got %v", res.Kind)
	}
	set := res.Answer[0]
	if set.Owner.String() != "x.wild.example.com." {
		t.Errorf("wildcard owner not rewritten: got %s", set.Owner)
	}
	a := set.Data[0].(*rdata.A)
	if a.Addr.String() != "192.0.2.5" {
		t.Errorf("unexpected wildcard rdata: %s", a.Addr)
	}
}

func TestAnswerReferralWithGlue(t *testing.T) {
	db := buildDB(t)
	res := Answer(db, mustName(t, "www.child.example.com."), rdata.TypeA)
	if res.Kind != KindReferral {
		t.Fatalf("expected KindReferral, got %v", res.Kind)
	}
	if len(res.Authority) != 1 || res.Authority[0].Type != rdata.TypeNS {
		t.Fatalf("expected NS in authority, got %+v", res.Authority)
	}
	foundGlue := false
	for _, g := range res.Glue {
		if g.Owner.String() == "ns1.child.example.com." && g.Type == rdata.TypeA {
			foundGlue = true
		}
	}
	if !foundGlue {
		t.Errorf("expected in-bailiwick glue for ns1.child.example.com.")
	}
}

func TestAnswerRefusedOutsideAuthority(t *testing.T) {
	db := buildDB(t)
	res := Answer(db, mustName(t, "example.net."), rdata.TypeA)
	if res.Kind != KindRefused {
		t.Fatalf("expected KindRefused for a name outside our zones, got %v", res.Kind)
	}
}

func TestAnswerNoDataForWrongType(t *testing.T) {
	db := buildDB(t)
	res := Answer(db, mustName(t, "ns1.example.com."), rdata.TypeMX)
	if res.Kind != KindNoData {
		t.Fatalf("expected KindNoData, got %v", res.Kind)
	}
}
