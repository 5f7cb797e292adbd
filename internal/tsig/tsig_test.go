package tsig

import (
	"testing"
	"time"

	"dnsauthd/internal/name"
	"dnsauthd/internal/rdata"
	"dnsauthd/internal/rr"
)

func testKey(t *testing.T) Key {
	t.Helper()
	kn, err := name.Parse("axfr-key.")
	if err != nil {
		t.Fatalf("name.Parse: %v", err)
	}
	return Key{Name: kn, Algorithm: HMACSHA256, Secret: []byte("0123456789abcdef")}
}

func asTSIG(t *testing.T, signed rr.RR) *rdata.TSIG {
	t.Helper()
	td, ok := signed.Data.(*rdata.TSIG)
	if !ok {
		t.Fatalf("Sign did not return a TSIG rdata: %T", signed.Data)
	}
	return td
}

func TestSignThenVerifyOK(t *testing.T) {
	key := testKey(t)
	now := time.Unix(1700000000, 0)
	msg := []byte("pretend this is a full DNS message body")

	signer := NewState(key)
	signed, err := signer.Sign(msg, 0xbeef, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	verifier := NewState(key)
	if err := verifier.Verify(msg, 0xbeef, asTSIG(t, signed), now); err != nil {
		t.Fatalf("Verify of a freshly signed message failed: %v", err)
	}
}

func TestFlippedByteYieldsBadSig(t *testing.T) {
	key := testKey(t)
	now := time.Unix(1700000000, 0)
	msg := []byte("another message body of reasonable length")

	signer := NewState(key)
	signed, err := signer.Sign(msg, 1, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	corrupted := append([]byte(nil), msg...)
	corrupted[3] ^= 0xff

	verifier := NewState(key)
	if err := verifier.Verify(corrupted, 1, asTSIG(t, signed), now); err != ErrBadSig {
		t.Errorf("expected ErrBadSig for a corrupted message, got %v", err)
	}
}

func TestFudgeExceededYieldsBadTime(t *testing.T) {
	key := testKey(t)
	signedAt := time.Unix(1700000000, 0)
	msg := []byte("time skew test message")

	signer := NewState(key)
	signer.Fudge = 300
	signed, err := signer.Sign(msg, 2, signedAt)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	verifier := NewState(key)
	farFuture := signedAt.Add(10 * time.Minute)
	if err := verifier.Verify(msg, 2, asTSIG(t, signed), farFuture); err != ErrBadTime {
		t.Errorf("expected ErrBadTime when clocks diverge beyond fudge, got %v", err)
	}
}

func TestStreamingPolicyBounds(t *testing.T) {
	if !MustSignNow(0, 250) {
		t.Errorf("the first packet of a stream must always carry TSIG")
	}
	if !MustSignNow(249, 250) {
		t.Errorf("the last packet of a stream must always carry TSIG")
	}
	if !MustSignNow(100, 250) {
		t.Errorf("every 100th intermediate packet must carry TSIG")
	}
	if MustSignNow(1, 250) {
		t.Errorf("packet 1 of 250 need not carry TSIG")
	}
}
