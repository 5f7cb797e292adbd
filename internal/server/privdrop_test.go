package server

import "testing"

func TestDropPrivilegesNoopWhenUnconfigured(t *testing.T) {
	if err := DropPrivileges("", ""); err != nil {
		t.Fatalf("expected no-op to succeed, got %v", err)
	}
}

func TestDropPrivilegesRejectsUnknownUser(t *testing.T) {
	if err := DropPrivileges("", "no-such-user-dnsauthd-test"); err == nil {
		t.Fatal("expected an error for an unknown username")
	}
}
