package query

import (
	"net"
	"testing"

	"dnsauthd/internal/name"
)

func TestACLEmptyPermitsAll(t *testing.T) {
	var acl ACL
	if v := acl.Evaluate(net.ParseIP("203.0.113.1"), 53, name.DomainName{}, false); v != VerdictPermit {
		t.Fatalf("expected VerdictPermit for an empty ACL, got %v", v)
	}
}

func TestACLUnmatchedAddrIsDenied(t *testing.T) {
	acl := ACL{{Kind: MatchSingle, IP: net.ParseIP("203.0.113.1")}}
	if v := acl.Evaluate(net.ParseIP("203.0.113.2"), 53, name.DomainName{}, false); v != VerdictDeny {
		t.Fatalf("expected VerdictDeny for a non-matching address against a non-empty ACL, got %v", v)
	}
}

func TestACLSubnetMatch(t *testing.T) {
	_, subnet, _ := net.ParseCIDR("203.0.113.0/24")
	acl := ACL{{Kind: MatchSubnet, Subnet: subnet}}
	if v := acl.Evaluate(net.ParseIP("203.0.113.200"), 53, name.DomainName{}, false); v != VerdictPermit {
		t.Fatalf("expected VerdictPermit for an address inside the configured subnet, got %v", v)
	}
	if v := acl.Evaluate(net.ParseIP("198.51.100.1"), 53, name.DomainName{}, false); v != VerdictDeny {
		t.Fatalf("expected VerdictDeny for an address outside the configured subnet, got %v", v)
	}
}

func TestACLRequireKeyRejectsUnauthenticated(t *testing.T) {
	keyName, _ := name.Parse("xfer-key.")
	acl := ACL{{Kind: MatchSingle, IP: net.ParseIP("203.0.113.1"), RequireKey: true, KeyName: keyName}}
	if v := acl.Evaluate(net.ParseIP("203.0.113.1"), 53, name.DomainName{}, false); v != VerdictDeny {
		t.Fatalf("expected VerdictDeny when the key is required but unverified, got %v", v)
	}
	if v := acl.Evaluate(net.ParseIP("203.0.113.1"), 53, keyName, true); v != VerdictPermit {
		t.Fatalf("expected VerdictPermit once the matching key verifies, got %v", v)
	}
}
