package rdata

import (
	"bytes"
	"net"
	"testing"

	"dnsauthd/internal/name"
)

func mustName(t *testing.T, s string) name.DomainName {
	t.Helper()
	n, err := name.Parse(s)
	if err != nil {
		t.Fatalf("name.Parse(%q): %v", s, err)
	}
	return n
}

func TestARoundTrip(t *testing.T) {
	a := &A{Addr: net.ParseIP("192.0.2.5").To4()}
	buf := a.Pack(nil)
	if len(buf) != 4 {
		t.Fatalf("A rdata must be 4 octets, got %d", len(buf))
	}
	got, err := Unpack(TypeA, buf, len(buf))
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if got.String() != "192.0.2.5" {
		t.Errorf("round trip mismatch: %s", got.String())
	}
}

func TestSOARoundTrip(t *testing.T) {
	soa := &SOA{
		MName: mustName(t, "ns1.example.com."), RName: mustName(t, "hostmaster.example.com."),
		Serial: 2024010101, Refresh: 3600, Retry: 900, Expire: 604800, Minimum: 86400,
	}
	buf := soa.Pack(nil)
	got, err := Unpack(TypeSOA, buf, len(buf))
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	gsoa := got.(*SOA)
	if gsoa.Serial != soa.Serial || !gsoa.MName.Equal(soa.MName) || !gsoa.RName.Equal(soa.RName) {
		t.Errorf("SOA round trip mismatch: %+v", gsoa)
	}
}

func TestMXRoundTrip(t *testing.T) {
	mx := &MX{Preference: 10, Exchange: mustName(t, "mail.example.com.")}
	buf := mx.Pack(nil)
	got, err := Unpack(TypeMX, buf, len(buf))
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	gmx := got.(*MX)
	if gmx.Preference != 10 || !gmx.Exchange.Equal(mx.Exchange) {
		t.Errorf("MX round trip mismatch: %+v", gmx)
	}
}

func TestUnknownTypeRoundTrip(t *testing.T) {
	data := []byte{0xde, 0xad, 0xbe, 0xef}
	u := &Unknown{RRType: Type(65280), Data: data}
	buf := u.Pack(nil)
	got, err := Unpack(Type(65280), buf, len(buf))
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	gu := got.(*Unknown)
	if !bytes.Equal(gu.Data, data) {
		t.Errorf("unknown-type round trip mismatch: %x", gu.Data)
	}
	if got.String() != "\\# 4 deadbeef" {
		t.Errorf("unexpected RFC3597 presentation: %s", got.String())
	}
}

func TestNSECBitmapRoundTrip(t *testing.T) {
	nsec := &NSEC{
		NextDomain: mustName(t, "b.example.com."),
		TypeBitmap: []Type{TypeA, TypeMX, TypeRRSIG, TypeNSEC, Type(1234)},
	}
	buf := nsec.Pack(nil)
	got, err := Unpack(TypeNSEC, buf, len(buf))
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	gn := got.(*NSEC)
	if len(gn.TypeBitmap) != len(nsec.TypeBitmap) {
		t.Fatalf("bitmap length mismatch: got %d want %d", len(gn.TypeBitmap), len(nsec.TypeBitmap))
	}
	want := map[Type]bool{}
	for _, ty := range nsec.TypeBitmap {
		want[ty] = true
	}
	for _, ty := range gn.TypeBitmap {
		if !want[ty] {
			t.Errorf("unexpected type %v in round-tripped bitmap", ty)
		}
	}
}

func TestTSIGRoundTrip(t *testing.T) {
	ts := &TSIG{
		Algorithm: mustName(t, "hmac-sha256."), TimeSigned: 1700000000, Fudge: 300,
		MAC: []byte{1, 2, 3, 4}, OrigID: 42, Error: 0,
	}
	buf := ts.Pack(nil)
	got, err := Unpack(TypeTSIG, buf, len(buf))
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	gt := got.(*TSIG)
	if gt.TimeSigned != ts.TimeSigned || gt.Fudge != ts.Fudge || !bytes.Equal(gt.MAC, ts.MAC) {
		t.Errorf("TSIG round trip mismatch: %+v", gt)
	}
}
