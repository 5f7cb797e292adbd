package wire

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

func buildSimpleQuery(t *testing.T) *Message {
	var h Header
	h.ID = 0x1234
	h.SetRD(true)
	h.QDCount = 1
	return &Message{
		Header:   h,
		Question: []Question{{Name: mustName(t, "example.com."), Qtype: rdata.TypeSOA, Qclass: rr.ClassINET}},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := buildSimpleQuery(t)
	m.Answer = []rr.RR{{
		Owner: mustName(t, "example.com."), Type: rdata.TypeA, Class: rr.ClassINET, TTL: 3600,
		Data: &rdata.A{Addr: net.ParseIP("192.0.2.1").To4()},
	}, {
		Owner: mustName(t, "example.com."), Type: rdata.TypeNS, Class: rr.ClassINET, TTL: 3600,
		Data: &rdata.NS{Target: mustName(t, "ns1.example.com.")},
	}}

	buf, err := Write(m, 65535)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := ParseMessage(buf)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if got.Header.ID != m.Header.ID {
		t.Errorf("ID mismatch: got %x want %x", got.Header.ID, m.Header.ID)
	}
	if len(got.Answer) != 2 {
		t.Fatalf("expected 2 answer RRs, got %d", len(got.Answer))
	}
	if got.Answer[0].Data.String() != "192.0.2.1" {
		t.Errorf("A rdata round trip mismatch: %s", got.Answer[0].Data.String())
	}
}

func TestCompressionSharesApexSuffix(t *testing.T) {
	m := buildSimpleQuery(t)
	m.Answer = []rr.RR{
		{Owner: mustName(t, "www.example.com."), Type: rdata.TypeA, Class: rr.ClassINET, TTL: 60,
			Data: &rdata.A{Addr: net.ParseIP("192.0.2.1").To4()}},
		{Owner: mustName(t, "mail.example.com."), Type: rdata.TypeA, Class: rr.ClassINET, TTL: 60,
			Data: &rdata.A{Addr: net.ParseIP("192.0.2.2").To4()}},
	}
	compressed, err := Write(m, 65535)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	// A second answer owner sharing "example.com." with the question
	// should compress to a 2-byte pointer rather than repeating the
	// two labels, so the message must be well under the naive size.
	naive := 12 + 18 + 2*(18+10+4) // header+question+2 uncompressed RRs, roughly
	if len(compressed) >= naive {
		t.Errorf("expected compression to shrink message below %d, got %d", naive, len(compressed))
	}
	got, err := ParseMessage(compressed)
	if err != nil {
		t.Fatalf("ParseMessage of compressed message: %v", err)
	}
	if got.Answer[1].Owner.String() != "mail.example.com." {
		t.Errorf("owner decompression mismatch: %s", got.Answer[1].Owner)
	}
}

func TestPointerLoopRejected(t *testing.T) {
	// A name whose only label points at itself must be rejected rather
	// than looping forever.
	buf := make([]byte, 14)
	buf[0], buf[1] = 0, 1 // id
	buf[4], buf[5] = 0, 1 // qdcount=1
	// question name at offset 12: a pointer to offset 12 itself.
	buf[12] = 0xc0
	buf[13] = 12
	_, err := ParseMessage(buf)
	if err != ErrPointerFwd && err != ErrPointerLoop {
		t.Errorf("expected a pointer-safety error, got %v", err)
	}
}

func TestTruncationStopsAtLastCompleteRR(t *testing.T) {
	m := buildSimpleQuery(t)
	for i := 0; i < 200; i++ {
		m.Answer = append(m.Answer, rr.RR{
			Owner: mustName(t, "www.example.com."), Type: rdata.TypeA, Class: rr.ClassINET, TTL: 60,
			Data: &rdata.A{Addr: net.ParseIP("192.0.2.1").To4()},
		})
	}
	buf, err := Write(m, 512)
	var trunc *Truncated
	if err == nil {
		t.Fatalf("expected truncation with 200 answer RRs and a 512-byte budget")
	} else if te, ok := err.(*Truncated); !ok {
		t.Fatalf("expected *Truncated, got %T: %v", err, err)
	} else {
		trunc = te
	}
	if trunc.Section != 0 {
		t.Errorf("expected truncation in the answer section, got section %d", trunc.Section)
	}
	if len(buf) > 512 {
		t.Errorf("truncated message must still respect the size budget: got %d", len(buf))
	}
	got, err := ParseMessage(buf)
	if err != nil {
		t.Fatalf("truncated message must still be parseable: %v", err)
	}
	if int(got.Header.ANCount) != len(got.Answer) {
		t.Errorf("ANCount must match the RRs actually emitted")
	}
}
