// Package config loads the server's configuration: the main document
// through viper (so environment variables and flags can override
// file values) validated with go-playground/validator, and the zone
// map through a direct yaml.v3 decode, since viper's case-insensitive
// map keys would otherwise mangle zone names.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gookit/goutil/dump"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is where dnsauthd looks absent an explicit --config flag.
const DefaultConfigFile = "/etc/dnsauthd/dnsauthd.yaml"

// DefaultZonesFile holds the zone map, kept in its own document for
// the reason given in the package comment.
const DefaultZonesFile = "/etc/dnsauthd/zones.yaml"

// Config is the top-level document unmarshaled from the main config
// file. Fields tagged validate:"required" must be present or
// validate returns an error naming every omission at once.
type Config struct {
	ServerBootTime time.Time `validate:"-"`
	Service        ServiceConf  `validate:"required"`
	Listen         ListenConf   `validate:"required"`
	Log            LogConf      `validate:"required"`
	Control        ControlConf  `validate:"required"`
	Keystore       KeystoreConf `validate:"required"`
	ACLs           map[string]ACLConf
}

// ServiceConf covers process-identity settings shared across the
// ambient stack.
type ServiceConf struct {
	Name    string `validate:"required"`
	PIDFile string `validate:"required"`
	Chroot  string
	User    string
	Debug   bool
	Verbose bool
}

// ListenConf is the set of addresses dnsauthd binds UDP and TCP
// listeners to, per spec.md §4.8.
type ListenConf struct {
	Addresses    []string `validate:"required,min=1"`
	IPv4Only     bool
	IPv6Only     bool
	TCPQueueSize int `validate:"gte=0"`
}

// LogConf configures lumberjack-backed rotation.
type LogConf struct {
	File       string `validate:"required"`
	MaxSizeMB  int    `validate:"gte=1"`
	MaxBackups int    `validate:"gte=0"`
	MaxAgeDays int    `validate:"gte=0"`
	Compress   bool
}

// ControlConf configures the remote control HTTP channel.
type ControlConf struct {
	Address  string `validate:"required"`
	APIKey   string `validate:"required"`
	CertFile string
	KeyFile  string
}

// KeystoreConf points at the sqlite3 database holding TSIG keys and
// per-zone ACL grants.
type KeystoreConf struct {
	File string `validate:"required"`
}

// ACLConf is one named ACL's raw entries, as read from YAML; the
// query package's ACL type is built from these at load time.
type ACLConf struct {
	Entries []ACLEntryConf
}

// ACLEntryConf mirrors one query.Entry in a YAML-friendly shape.
type ACLEntryConf struct {
	Match      string `validate:"required"` // "203.0.113.1", "203.0.113.0/24", or "203.0.113.1-203.0.113.9"
	Port       uint16
	RequireKey string
	Blocked    bool
}

// Load reads path through viper (picking up DNSAUTHD_-prefixed
// environment overrides) and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("dnsauthd")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	cfg.ServerBootTime = time.Now()

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	if cfg.Service.Debug {
		dump.P(cfg)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}
	for name, acl := range cfg.ACLs {
		if err := v.Struct(acl); err != nil {
			return fmt.Errorf("config: acl %q: %w", name, err)
		}
	}
	return nil
}

// ZoneDocument is the contents of the separate zones.yaml file: one
// entry per configured zone, keyed by apex name in presentation form.
type ZoneDocument struct {
	Zones map[string]ZoneConf `yaml:"zones"`
}

// ZoneConf describes how one zone is sourced and who it talks to.
type ZoneConf struct {
	Type        string   `yaml:"type" validate:"required,oneof=primary secondary"`
	Zonefile    string   `yaml:"zonefile"`
	Primary     string   `yaml:"primary"`     // secondary only: address to transfer from
	Notify      []string `yaml:"notify"`      // primary only: downstreams to notify on update
	TSIGKey     string   `yaml:"tsig_key"`
	ACL         string   `yaml:"acl"`
	AllowNotify []string `yaml:"allow_notify"` // secondary only: who may NOTIFY us
	RefreshSecs int      `yaml:"refresh_secs"` // secondary only: SOA poll interval; 0 means DefaultRefreshSecs
}

// DefaultRefreshSecs is the SOA poll interval a secondary zone uses
// when its zones.yaml entry omits refresh_secs.
const DefaultRefreshSecs = 3600

// LoadZones reads and decodes the zones document directly with
// yaml.v3 rather than through viper.
func LoadZones(path string) (*ZoneDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading zones file %s: %w", path, err)
	}
	var doc ZoneDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing zones file %s: %w", path, err)
	}
	validate := validator.New()
	for name, z := range doc.Zones {
		if err := validate.Struct(z); err != nil {
			return nil, fmt.Errorf("config: zone %q: %w", name, err)
		}
		if z.Type == "secondary" && z.Primary == "" {
			return nil, fmt.Errorf("config: zone %q is secondary but has no primary configured", name)
		}
	}
	return &doc, nil
}
