// Package tsig implements RFC 8945 transaction signatures: signing
// outbound messages, verifying inbound ones, and the running digest
// state a streamed AXFR response uses to amortize signing cost across
// many packets (spec.md §4.5).
package tsig

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"hash"
	"time"

	"dnsauthd/internal/name"
	"dnsauthd/internal/rdata"
	"dnsauthd/internal/rr"
	"dnsauthd/internal/wire"
)

// Algorithm identifies one of the three HMAC algorithms spec.md §3
// requires TSIGKey to support.
type Algorithm int

const (
	HMACMD5 Algorithm = iota
	HMACSHA1
	HMACSHA256
)

var algoNames = map[Algorithm]string{
	HMACMD5: "hmac-md5.sig-alg.reg.int.", HMACSHA1: "hmac-sha1.", HMACSHA256: "hmac-sha256.",
}

func (a Algorithm) DomainName() name.DomainName {
	n, _ := name.Parse(algoNames[a])
	return n
}

func (a Algorithm) newHash() func() hash.Hash {
	switch a {
	case HMACMD5:
		return md5.New
	case HMACSHA1:
		return sha1.New
	default:
		return sha256.New
	}
}

// Status mirrors spec.md §3's TSIGState.status enumeration.
type Status int

const (
	StatusOK Status = iota
	StatusNotPresent
	StatusError
)

var (
	ErrBadKey   = errors.New("tsig: unknown key name or algorithm")
	ErrBadSig   = errors.New("tsig: MAC verification failed")
	ErrBadTime  = errors.New("tsig: |now - time_signed| exceeds fudge")
	ErrBadTrunc = errors.New("tsig: truncated MAC rejected")
	ErrNoTSIG   = errors.New("tsig: message carries no TSIG record")
)

// Key is the shared secret configured for one signer/verifier identity.
type Key struct {
	Name      name.DomainName
	Algorithm Algorithm
	Secret    []byte
}

// DefaultFudge is the signing-time slop RFC 8945 recommends and
// spec.md §4.5 fixes at 300 seconds.
const DefaultFudge = 300

// State is the running authentication context for one outbound query,
// inbound request, or streaming AXFR session (spec.md §3's TSIGState).
// A zero State is not usable; construct with NewState.
type State struct {
	Key       Key
	Fudge     uint16
	priorMAC  []byte
	running   hash.Hash
	updates   int // updates_since_last_prepare
	responses int // response_count, for the AXFR streaming policy
	Status    Status
	ErrorCode uint16
}

// NewState creates a fresh signer/verifier bound to key.
func NewState(key Key) *State {
	return &State{Key: key, Fudge: DefaultFudge}
}

// Prepare snapshots the running digest so a subsequent burst of
// Update calls can be committed atomically at Sign or Verify,
// matching spec.md §4.5's prepare/update/sign lifecycle.
func (s *State) Prepare() {
	s.running = hmac.New(s.Key.Algorithm.newHash(), s.Key.Secret)
	if s.priorMAC != nil {
		s.running.Write(u16(uint16(len(s.priorMAC))))
		s.running.Write(s.priorMAC)
	}
	s.updates = 0
}

// Update feeds message bytes into the running digest; used while
// streaming an AXFR response so only every Nth packet needs a full
// Sign (spec.md §4.5, streaming policy).
func (s *State) Update(buf []byte) {
	if s.running == nil {
		s.Prepare()
	}
	s.running.Write(buf)
	s.updates++
}

// maxUnsignedPackets bounds how many AXFR response packets may pass
// between TSIG-bearing packets per spec.md §4.5 (every 100th at most,
// plus mandatory first/last).
const maxUnsignedPackets = 100

// MustSignNow reports whether the streaming policy requires this
// packet (the idx-th of total, 0-based) to carry a TSIG record: the
// first, the last, or every 100th in between.
func MustSignNow(idx, total int) bool {
	if idx == 0 || idx == total-1 {
		return true
	}
	return idx%maxUnsignedPackets == 0
}

// Sign finalizes the running digest (after Prepare/zero-or-more
// Update calls over msg's bytes minus its TSIG record) and returns the
// TSIG RR to append as the last Additional record. now is injected so
// tests and callers can control the clock.
func (s *State) Sign(msg []byte, origID uint16, now time.Time) (rr.RR, error) {
	if s.running == nil {
		s.Prepare()
		s.running.Write(msg)
	}
	ts := uint64(now.Unix())
	var timeBuf [8]byte
	timeBuf[2] = byte(ts >> 40)
	timeBuf[3] = byte(ts >> 32)
	timeBuf[4] = byte(ts >> 24)
	timeBuf[5] = byte(ts >> 16)
	timeBuf[6] = byte(ts >> 8)
	timeBuf[7] = byte(ts)

	s.running.Write(s.Key.Name.Wire())
	s.running.Write(u16(uint16(rr.ClassANY))) // CLASS ANY
	s.running.Write(u32(0))                   // TTL 0
	s.running.Write(s.Key.Algorithm.DomainName().Wire())
	s.running.Write(timeBuf[2:8])
	s.running.Write(u16(s.Fudge))
	s.running.Write(u16(0)) // Error
	s.running.Write(u16(0)) // Other Len

	mac := s.running.Sum(nil)
	s.priorMAC = mac
	s.running = nil

	return rr.RR{
		Owner: s.Key.Name,
		Type:  rdata.TypeTSIG,
		Class: rr.ClassANY,
		TTL:   0,
		Data: &rdata.TSIG{
			Algorithm: s.Key.Algorithm.DomainName(), TimeSigned: ts, Fudge: s.Fudge,
			MAC: mac, OrigID: origID, Error: 0,
		},
	}, nil
}

// Verify recomputes the MAC over msg (with its TSIG record stripped)
// using tsigRR's time/fudge, comparing against tsigRR.MAC. It returns
// ErrBadKey, ErrBadSig, ErrBadTime, or ErrBadTrunc (a MAC shorter
// than half the digest) exactly as spec.md §4.5 dictates;
// the caller is responsible for turning those into the matching TSIG
// error code on the unsigned error response.
func (s *State) Verify(strippedMsg []byte, origID uint16, tsigRR *rdata.TSIG, now time.Time) error {
	if !tsigRR.Algorithm.Equal(s.Key.Algorithm.DomainName()) {
		return ErrBadKey
	}
	delta := int64(now.Unix()) - int64(tsigRR.TimeSigned)
	if delta < 0 {
		delta = -delta
	}
	if delta > int64(tsigRR.Fudge) {
		return ErrBadTime
	}

	if s.running == nil {
		s.Prepare()
		s.running.Write(strippedMsg)
	}
	s.running.Write(s.Key.Name.Wire())
	s.running.Write(u16(uint16(rr.ClassANY)))
	s.running.Write(u32(0))
	s.running.Write(tsigRR.Algorithm.Wire())
	var timeBuf [6]byte
	ts := tsigRR.TimeSigned
	timeBuf[0] = byte(ts >> 40)
	timeBuf[1] = byte(ts >> 32)
	timeBuf[2] = byte(ts >> 24)
	timeBuf[3] = byte(ts >> 16)
	timeBuf[4] = byte(ts >> 8)
	timeBuf[5] = byte(ts)
	s.running.Write(timeBuf[:])
	s.running.Write(u16(tsigRR.Fudge))
	s.running.Write(u16(tsigRR.Error))
	s.running.Write(u16(uint16(len(tsigRR.Other))))
	s.running.Write(tsigRR.Other)

	expected := s.running.Sum(nil)
	s.priorMAC = tsigRR.MAC
	s.running = nil

	if len(tsigRR.MAC) < len(expected)/2 {
		return ErrBadTrunc
	}
	if !hmac.Equal(expected[:len(tsigRR.MAC)], tsigRR.MAC) {
		return ErrBadSig
	}
	s.responses++
	return nil
}

func u16(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }
func u32(v uint32) []byte { return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)} }

// StripTSIG removes the last Additional RR from m if it is a TSIG
// record, decrementing m.Header.ARCount in place, and returns that
// record's rdata. The original message id it carried (TSIG.OrigID)
// replaces the header ID for MAC computation per RFC 8945 §5.2.
func StripTSIG(m *wire.Message) (*rdata.TSIG, bool) {
	n := len(m.Additional)
	if n == 0 || m.Additional[n-1].Type != rdata.TypeTSIG {
		return nil, false
	}
	t, ok := m.Additional[n-1].Data.(*rdata.TSIG)
	if !ok {
		return nil, false
	}
	m.Additional = m.Additional[:n-1]
	m.Header.ARCount--
	return t, true
}

// ErrorRR builds the unsigned TSIG error record RFC 8945 §5.3/6.3
// requires even on a verification failure, so the client can tell
// BADKEY from BADSIG from BADTIME.
func ErrorRR(key name.DomainName, algo name.DomainName, origID uint16, errCode uint16, now time.Time) rr.RR {
	return rr.RR{
		Owner: key, Type: rdata.TypeTSIG, Class: rr.ClassANY, TTL: 0,
		Data: &rdata.TSIG{Algorithm: algo, TimeSigned: uint64(now.Unix()), Fudge: DefaultFudge,
			MAC: nil, OrigID: origID, Error: errCode},
	}
}
