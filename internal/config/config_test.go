package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestLoadValidConfig(t *testing.T) {
	p := writeTemp(t, "dnsauthd.yaml", `
service:
  name: dnsauthd
  pidfile: /var/run/dnsauthd.pid
listen:
  addresses:
    - 0.0.0.0:53
log:
  file: /var/log/dnsauthd.log
  maxsizemb: 100
control:
  address: 127.0.0.1:8053
  apikey: test-key-value
keystore:
  file: /var/db/dnsauthd/keys.db
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.Name != "dnsauthd" {
		t.Errorf("unexpected service name %q", cfg.Service.Name)
	}
	if len(cfg.Listen.Addresses) != 1 {
		t.Fatalf("expected one listen address, got %v", cfg.Listen.Addresses)
	}
}

func TestLoadMissingRequiredFieldFails(t *testing.T) {
	p := writeTemp(t, "dnsauthd.yaml", `
service:
  name: dnsauthd
`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected validation failure for a config missing required sections")
	}
}

func TestLoadZonesRejectsSecondaryWithoutPrimary(t *testing.T) {
	p := writeTemp(t, "zones.yaml", `
zones:
  example.com.:
    type: secondary
`)
	if _, err := LoadZones(p); err == nil {
		t.Fatal("expected an error for a secondary zone with no primary")
	}
}

func TestLoadZonesAcceptsWellFormedDocument(t *testing.T) {
	p := writeTemp(t, "zones.yaml", `
zones:
  example.com.:
    type: primary
    zonefile: /etc/dnsauthd/example.com.zone
    notify:
      - 198.51.100.1:53
  child.example.com.:
    type: secondary
    primary: 203.0.113.1:53
    tsig_key: xfer-key.
`)
	doc, err := LoadZones(p)
	if err != nil {
		t.Fatalf("LoadZones: %v", err)
	}
	if len(doc.Zones) != 2 {
		t.Fatalf("expected 2 zones, got %d", len(doc.Zones))
	}
	if doc.Zones["child.example.com."].Primary != "203.0.113.1:53" {
		t.Errorf("unexpected primary: %+v", doc.Zones["child.example.com."])
	}
}
