package keystore

import (
	"net"
	"path/filepath"
	"testing"

	"dnsauthd/internal/name"
	"dnsauthd/internal/query"
	"dnsauthd/internal/tsig"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keystore.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustName(t *testing.T, n string) name.DomainName {
	t.Helper()
	parsed, err := name.Parse(n)
	if err != nil {
		t.Fatalf("name.Parse(%q): %v", n, err)
	}
	return parsed
}

func TestPutGetKeyRoundTrip(t *testing.T) {
	s := openTest(t)
	keyName := mustName(t, "xfer-key.")
	key := tsig.Key{Name: keyName, Algorithm: tsig.HMACSHA256, Secret: []byte("super-secret")}
	if err := s.PutKey(key, "test key"); err != nil {
		t.Fatalf("PutKey: %v", err)
	}
	got, ok, err := s.GetKey(keyName)
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if !ok {
		t.Fatal("expected key to be found")
	}
	if got.Algorithm != tsig.HMACSHA256 || string(got.Secret) != "super-secret" {
		t.Errorf("unexpected key roundtrip: %+v", got)
	}
}

func TestGetKeyMissingReturnsNotFound(t *testing.T) {
	s := openTest(t)
	_, ok, err := s.GetKey(mustName(t, "nosuch."))
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a missing key")
	}
}

func TestPutKeyUpsertsOnConflict(t *testing.T) {
	s := openTest(t)
	keyName := mustName(t, "xfer-key.")
	if err := s.PutKey(tsig.Key{Name: keyName, Algorithm: tsig.HMACMD5, Secret: []byte("old")}, ""); err != nil {
		t.Fatalf("PutKey: %v", err)
	}
	if err := s.PutKey(tsig.Key{Name: keyName, Algorithm: tsig.HMACSHA256, Secret: []byte("new")}, ""); err != nil {
		t.Fatalf("PutKey (update): %v", err)
	}
	got, ok, err := s.GetKey(keyName)
	if err != nil || !ok {
		t.Fatalf("GetKey after upsert: ok=%v err=%v", ok, err)
	}
	if got.Algorithm != tsig.HMACSHA256 || string(got.Secret) != "new" {
		t.Errorf("expected the upsert to win, got %+v", got)
	}
}

func TestPutGetACLRoundTrip(t *testing.T) {
	s := openTest(t)
	keyName := mustName(t, "xfer-key.")
	_, subnet, _ := net.ParseCIDR("203.0.113.0/24")
	acl := query.ACL{
		{Kind: query.MatchSingle, IP: net.ParseIP("198.51.100.1"), Blocked: true},
		{Kind: query.MatchSubnet, Subnet: subnet, RequireKey: true, KeyName: keyName},
	}
	if err := s.PutACL("xfer-acl", acl); err != nil {
		t.Fatalf("PutACL: %v", err)
	}
	got, err := s.GetACL("xfer-acl")
	if err != nil {
		t.Fatalf("GetACL: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if !got[0].Blocked || got[0].Kind != query.MatchSingle {
		t.Errorf("unexpected first entry: %+v", got[0])
	}
	if !got[1].RequireKey || !got[1].KeyName.Equal(keyName) {
		t.Errorf("unexpected second entry: %+v", got[1])
	}
}

func TestListKeyNames(t *testing.T) {
	s := openTest(t)
	s.PutKey(tsig.Key{Name: mustName(t, "a."), Algorithm: tsig.HMACSHA256, Secret: []byte("x")}, "")
	s.PutKey(tsig.Key{Name: mustName(t, "b."), Algorithm: tsig.HMACSHA256, Secret: []byte("y")}, "")
	names, err := s.ListKeyNames()
	if err != nil {
		t.Fatalf("ListKeyNames: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
}
