package xfer

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"net"
	"time"

	"dnsauthd/internal/name"
	"dnsauthd/internal/rdata"
	"dnsauthd/internal/rr"
	"dnsauthd/internal/tsig"
	"dnsauthd/internal/wire"
)

// AXFRResult is one completed zone transfer: every RR the primary
// sent, in wire order, including the leading and trailing SOA.
type AXFRResult struct {
	Zone   name.DomainName
	RRs    []rr.RR
	Serial uint32
}

// FetchAXFR requests a full transfer of zone over conn (already dialed
// by ProbeSOA, so the probe and the transfer share one TCP connection
// per spec.md §4.7) and streams the response until the closing SOA is
// seen. If key is non-nil the request is TSIG-signed and every
// response envelope verified per the streaming policy of spec.md §4.5
// (the primary is trusted to follow it; a response bearing no TSIG
// where one was required is rejected here). The caller owns conn and
// is responsible for closing it.
func FetchAXFR(conn net.Conn, addr string, zone name.DomainName, key *tsig.Key, timeout time.Duration) (*AXFRResult, error) {
	conn.SetDeadline(time.Now().Add(timeout))

	id := uint16(rand.Intn(1 << 16))
	req := &wire.Message{
		Header:   wire.Header{ID: id},
		Question: []wire.Question{{Name: zone, Qtype: rdata.TypeAXFR, Qclass: rr.ClassINET}},
	}

	var state *tsig.State
	reqBuf, err := wire.Write(req, 65535)
	if err != nil {
		return nil, err
	}
	if key != nil {
		state = tsig.NewState(*key)
		signed, err := state.Sign(reqBuf, id, time.Now())
		if err != nil {
			return nil, err
		}
		req.Additional = append(req.Additional, signed)
		reqBuf, err = wire.Write(req, 65535)
		if err != nil {
			return nil, err
		}
	}

	if err := writeFramed(conn, reqBuf); err != nil {
		return nil, fmt.Errorf("xfer: send AXFR query to %s: %w", addr, err)
	}

	result := &AXFRResult{Zone: zone}
	soaCount := 0
	envelopeIdx := 0
	unsigned := 0 // consecutive envelopes without TSIG since the last signed one

	for {
		buf, err := readFramed(conn)
		if err != nil {
			return nil, fmt.Errorf("xfer: read AXFR envelope %d from %s: %w", envelopeIdx, addr, err)
		}
		msg, err := wire.ParseMessage(buf)
		if err != nil {
			return nil, fmt.Errorf("xfer: malformed AXFR envelope %d from %s: %w", envelopeIdx, addr, err)
		}
		if msg.Header.ID != id {
			return nil, fmt.Errorf("xfer: id mismatch in AXFR envelope %d from %s", envelopeIdx, addr)
		}
		if msg.Header.Rcode() != wire.RcodeSuccess {
			return nil, fmt.Errorf("xfer: AXFR refused by %s: %v", addr, msg.Header.Rcode())
		}

		if tsigRR, ok := tsig.StripTSIG(msg); ok {
			if state == nil {
				return nil, fmt.Errorf("xfer: unexpected TSIG on unsigned AXFR from %s", addr)
			}
			stripped, err := wire.Write(msg, 65535)
			if err != nil {
				return nil, err
			}
			if err := state.Verify(stripped, id, tsigRR, time.Now()); err != nil {
				return nil, fmt.Errorf("xfer: TSIG verification failed on envelope %d from %s: %w", envelopeIdx, addr, err)
			}
			unsigned = 0
		} else if state != nil {
			if envelopeIdx == 0 || unsigned >= 99 {
				return nil, fmt.Errorf("xfer: AXFR envelope %d from %s lacks a required TSIG", envelopeIdx, addr)
			}
			unsigned++
			state.Update(buf)
		}

		for _, a := range msg.Answer {
			result.RRs = append(result.RRs, a)
			if a.Type == rdata.TypeSOA {
				soaCount++
				if soa, ok := a.Data.(*rdata.SOA); ok && result.Serial == 0 {
					result.Serial = soa.Serial
				}
				if soaCount == 2 {
					if unsigned > 0 {
						return nil, fmt.Errorf("xfer: final AXFR envelope %d from %s lacks a required TSIG", envelopeIdx, addr)
					}
					return result, nil
				}
			}
		}
		envelopeIdx++
	}
}

// writeFramed emits buf as a TCP DNS message: a 2-byte big-endian
// length prefix followed by the message bytes (RFC 1035 §4.2.2).
func writeFramed(w io.Writer, buf []byte) error {
	var lenPrefix [2]byte
	binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(buf)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}

// readFramed reads one length-prefixed TCP DNS message.
func readFramed(r io.Reader) ([]byte, error) {
	var lenPrefix [2]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenPrefix[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
