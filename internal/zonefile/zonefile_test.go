package zonefile

import (
	"strings"
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

const sample = `
$ORIGIN example.com.
$TTL 3600
@	IN	SOA	ns1.example.com. hostmaster.example.com. (
			2024010100 ; serial
			3600       ; refresh
			900        ; retry
			1209600    ; expire
			300 )      ; minimum
	NS	ns1
	NS	ns2.example.net.
ns1	A	192.0.2.1
www	A	192.0.2.2
	AAAA	2001:db8::2
mail	MX	10 mail.example.com.
alias	CNAME	www
`

func TestParseBuildsExpectedRRsets(t *testing.T) {
	apex := mustName(t, "example.com.")
	z, err := parse(apex, rr.ClassINET, strings.NewReader(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if z.CurrentSerial != 2024010100 {
		t.Errorf("expected serial 2024010100, got %d", z.CurrentSerial)
	}

	www := mustName(t, "www.example.com.")
	set, ok := z.Lookup(www, rdata.TypeA)
	if !ok || len(set.Data) != 1 {
		t.Fatalf("expected one A record at www, got %v ok=%v", set, ok)
	}
	if set.Data[0].String() != "192.0.2.2" {
		t.Errorf("unexpected A data: %s", set.Data[0])
	}

	ns, ok := z.Lookup(apex, rdata.TypeNS)
	if !ok || len(ns.Data) != 2 {
		t.Fatalf("expected two NS records at apex, got %v ok=%v", ns, ok)
	}
}

func TestParseInheritsOwnerFromPreviousLine(t *testing.T) {
	apex := mustName(t, "example.com.")
	z, err := parse(apex, rr.ClassINET, strings.NewReader(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	aaaa, ok := z.Lookup(mustName(t, "www.example.com."), rdata.TypeAAAA)
	if !ok || len(aaaa.Data) != 1 {
		t.Fatalf("expected one AAAA record at www, got %v ok=%v", aaaa, ok)
	}
}

func TestParseRejectsSecondSOA(t *testing.T) {
	apex := mustName(t, "example.com.")
	doc := sample + "\n@ IN SOA ns1.example.com. hostmaster.example.com. 2 1 1 1 1\n"
	z, err := parse(apex, rr.ClassINET, strings.NewReader(doc))
	if err == nil {
		t.Fatalf("expected an error for a second SOA record, got serial %d", z.CurrentSerial)
	}
	if z != nil {
		t.Errorf("expected no zone when the second SOA is rejected, got apex %s", z.Apex)
	}
}

func TestParseRejectsUnbalancedParens(t *testing.T) {
	apex := mustName(t, "example.com.")
	doc := "@ IN SOA ns1.example.com. hostmaster.example.com. (\n1 2 3 4 5\n"
	if _, err := parse(apex, rr.ClassINET, strings.NewReader(doc)); err == nil {
		t.Fatal("expected an error for an unterminated parenthesized record")
	}
}
