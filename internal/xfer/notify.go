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

// NotifyRetryInterval and NotifyRetryBudget are the fixed-interval
// retry policy spec.md §4.7 assigns a NOTIFY client: re-transmit every
// NotifyRetryInterval until NotifyRetryBudget has elapsed, then give
// up and let the refresh engine's normal poll timer take over. A 5s
// interval against a 20s budget yields exactly 4 retransmissions
// after the initial send (at t=5s, 10s, 15s, 20s).
var (
	NotifyRetryInterval = 5 * time.Second
	NotifyRetryBudget   = 20 * time.Second
)

// SendNotify sends a single NOTIFY(SOA) datagram to addr and waits
// for an acknowledging response carrying the same ID, per RFC 1996.
// It does not itself retry; NotifyDownstreams applies the retry policy.
func SendNotify(addr string, zone name.DomainName, timeout time.Duration) error {
	conn, err := net.DialTimeout("udp", addr, timeout)
	if err != nil {
		return fmt.Errorf("xfer: dial %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	id := uint16(rand.Intn(1 << 16))
	m := &wire.Message{
		Header:   wire.Header{ID: id},
		Question: []wire.Question{{Name: zone, Qtype: rdata.TypeSOA, Qclass: rr.ClassINET}},
	}
	m.Header.SetOpcode(wire.OpcodeNotify)
	m.Header.SetAA(true)

	buf, err := wire.Write(m, 512)
	if err != nil {
		return err
	}
	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("xfer: send NOTIFY to %s: %w", addr, err)
	}

	respBuf := make([]byte, 512)
	n, err := conn.Read(respBuf)
	if err != nil {
		return fmt.Errorf("xfer: no NOTIFY ack from %s: %w", addr, err)
	}
	resp, err := wire.ParseMessage(respBuf[:n])
	if err != nil {
		return err
	}
	if resp.Header.ID != id {
		return fmt.Errorf("xfer: NOTIFY ack id mismatch from %s", addr)
	}
	if resp.Header.Rcode() != wire.RcodeSuccess {
		return fmt.Errorf("xfer: %s rejected NOTIFY: %v", addr, resp.Header.Rcode())
	}
	return nil
}

// NotifyDownstreams sends a NOTIFY to every address in downstreams,
// retrying each independently at NotifyRetryInterval until it is
// acknowledged or NotifyRetryBudget is exhausted. Failures are
// returned per-address so one unreachable secondary doesn't block the
// rest.
func NotifyDownstreams(downstreams []string, zone name.DomainName) map[string]error {
	results := make(map[string]error, len(downstreams))
	for _, addr := range downstreams {
		results[addr] = notifyWithRetry(addr, zone, NotifyRetryInterval, NotifyRetryBudget, 2*time.Second)
	}
	return results
}

// notifyWithRetry sends NOTIFY to addr, re-transmitting every interval
// as long as the next re-transmission would still land at or before
// budget has elapsed since the initial send. attemptTimeout bounds how
// long a single send/ack round trip may take.
func notifyWithRetry(addr string, zone name.DomainName, interval, budget, attemptTimeout time.Duration) error {
	lastErr := SendNotify(addr, zone, attemptTimeout)
	if lastErr == nil {
		return nil
	}
	for elapsed := interval; elapsed <= budget; elapsed += interval {
		time.Sleep(interval)
		lastErr = SendNotify(addr, zone, attemptTimeout)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// retransmitCount returns how many re-transmissions notifyWithRetry
// performs for a given interval/budget pair (the initial send doesn't
// count as a re-transmission). A 5s interval with a 20s budget gives
// 4: retransmissions land at t=5s, 10s, 15s, 20s and the next one at
// t=25s would exceed the budget.
func retransmitCount(interval, budget time.Duration) int {
	if interval <= 0 {
		return 0
	}
	n := 0
	for elapsed := interval; elapsed <= budget; elapsed += interval {
		n++
	}
	return n
}

// InboundNotify is what a received NOTIFY request resolves to once
// the query engine's transport layer hands it off to the refresh
// subsystem: the zone to refresh and the peer that claims to be its
// primary.
type InboundNotify struct {
	Zone name.DomainName
	Peer net.IP
}

// HandleInboundNotify validates that msg is a well-formed NOTIFY(SOA)
// for a zone this server actually serves (apex lookup is the caller's
// job, via knownZone), and returns the rcode to send back plus,
// on success, the InboundNotify to push onto the refresh channel.
func HandleInboundNotify(msg *wire.Message, peer net.IP, knownZone func(name.DomainName) bool) (wire.Rcode, *InboundNotify) {
	if msg.Header.Opcode() != wire.OpcodeNotify || len(msg.Question) != 1 {
		return wire.RcodeFormErr, nil
	}
	q := msg.Question[0]
	if q.Qtype != rdata.TypeSOA {
		return wire.RcodeNotImp, nil
	}
	if !knownZone(q.Name) {
		return wire.RcodeRefused, nil
	}
	return wire.RcodeSuccess, &InboundNotify{Zone: q.Name, Peer: peer}
}
