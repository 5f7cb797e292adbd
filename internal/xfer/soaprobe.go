// Package xfer implements the zone-transfer and notification
// protocols a secondary speaks to its primaries, per spec.md §4.7: a
// SOA serial probe, a streamed AXFR client, and the NOTIFY
// client/receiver pair.
package xfer

import (
	"fmt"
	"math/rand"
	"net"
	"time"

	"dnsauthd/internal/name"
	"dnsauthd/internal/rdata"
	"dnsauthd/internal/rr"
	"dnsauthd/internal/wire"
)

// ProbeSOA opens a TCP connection to addr, sends an authoritative SOA
// query over it, and returns both the primary's current serial and the
// still-open connection so the caller can reuse it for FetchAXFR
// instead of paying for a second dial, per spec.md §4.7. Callers that
// don't go on to transfer must close the returned connection
// themselves.
func ProbeSOA(addr string, zone name.DomainName, timeout time.Duration) (uint32, net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return 0, nil, fmt.Errorf("xfer: dial %s: %w", addr, err)
	}
	conn.SetDeadline(time.Now().Add(timeout))

	id := uint16(rand.Intn(1 << 16))
	req := &wire.Message{
		Header:   wire.Header{ID: id},
		Question: []wire.Question{{Name: zone, Qtype: rdata.TypeSOA, Qclass: rr.ClassINET}},
	}
	req.Header.SetAA(true)
	buf, err := wire.Write(req, 65535)
	if err != nil {
		conn.Close()
		return 0, nil, err
	}
	if err := writeFramed(conn, buf); err != nil {
		conn.Close()
		return 0, nil, fmt.Errorf("xfer: send SOA query to %s: %w", addr, err)
	}

	respBuf, err := readFramed(conn)
	if err != nil {
		conn.Close()
		return 0, nil, fmt.Errorf("xfer: read SOA response from %s: %w", addr, err)
	}
	resp, err := wire.ParseMessage(respBuf)
	if err != nil {
		conn.Close()
		return 0, nil, err
	}
	if resp.Header.ID != id {
		conn.Close()
		return 0, nil, fmt.Errorf("xfer: SOA response id mismatch from %s", addr)
	}
	if resp.Header.Rcode() != wire.RcodeSuccess {
		conn.Close()
		return 0, nil, fmt.Errorf("xfer: SOA query to %s returned %v", addr, resp.Header.Rcode())
	}
	for _, a := range resp.Answer {
		if a.Type == rdata.TypeSOA {
			if soa, ok := a.Data.(*rdata.SOA); ok {
				return soa.Serial, conn, nil
			}
		}
	}
	conn.Close()
	return 0, nil, fmt.Errorf("xfer: no SOA in response from %s", addr)
}

// NeedsRefresh compares a locally held serial against the primary's
// current serial using serial-number arithmetic (RFC 1982), so a
// wrapped counter doesn't falsely suppress a refresh.
func NeedsRefresh(local, remote uint32) bool {
	return int32(remote-local) > 0
}
