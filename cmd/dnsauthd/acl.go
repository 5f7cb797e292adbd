package main

import (
	"fmt"
	"log"
	"net"
	"strings"

	"dnsauthd/internal/config"
	"dnsauthd/internal/keystore"
	"dnsauthd/internal/name"
	"dnsauthd/internal/query"
)

// buildACLResolver maps a zone apex to the ACL that governs queries
// against it. The zones document names which configured ACL applies
// to each zone; a non-empty copy of that same named ACL in the
// keystore (written through keystore.PutACL) takes precedence over
// the static config copy.
func buildACLResolver(ks *keystore.Store, cfg *config.Config, zones *config.ZoneDocument) query.ZoneACL {
	zoneACLName := make(map[string]string, len(zones.Zones))
	for zname, zc := range zones.Zones {
		if zc.ACL != "" {
			zoneACLName[zname] = zc.ACL
		}
	}

	return func(apex name.DomainName) query.ACL {
		aclName, ok := zoneACLName[apex.String()]
		if !ok {
			return nil
		}
		if acl, err := ks.GetACL(aclName); err == nil && len(acl) > 0 {
			return acl
		}
		conf, ok := cfg.ACLs[aclName]
		if !ok {
			return nil
		}
		acl, err := convertACL(conf)
		if err != nil {
			log.Printf("dnsauthd: acl %q: %v", aclName, err)
			return nil
		}
		return acl
	}
}

func convertACL(conf config.ACLConf) (query.ACL, error) {
	acl := make(query.ACL, 0, len(conf.Entries))
	for i, ec := range conf.Entries {
		e, err := convertACLEntry(ec)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		acl = append(acl, e)
	}
	return acl, nil
}

func convertACLEntry(ec config.ACLEntryConf) (query.Entry, error) {
	e := query.Entry{Port: ec.Port, Blocked: ec.Blocked}
	if ec.RequireKey != "" {
		n, err := name.Parse(ec.RequireKey)
		if err != nil {
			return query.Entry{}, fmt.Errorf("require_key %q: %w", ec.RequireKey, err)
		}
		e.RequireKey = true
		e.KeyName = n
	}

	switch {
	case strings.Contains(ec.Match, "/"):
		_, ipnet, err := net.ParseCIDR(ec.Match)
		if err != nil {
			return query.Entry{}, fmt.Errorf("match %q: %w", ec.Match, err)
		}
		e.Kind = query.MatchSubnet
		e.Subnet = ipnet
	case strings.Contains(ec.Match, "-"):
		parts := strings.SplitN(ec.Match, "-", 2)
		lo := net.ParseIP(parts[0])
		hi := net.ParseIP(parts[1])
		if lo == nil || hi == nil {
			return query.Entry{}, fmt.Errorf("match %q: invalid IP range", ec.Match)
		}
		e.Kind = query.MatchRange
		e.RangeLo, e.RangeHi = lo, hi
	default:
		ip := net.ParseIP(ec.Match)
		if ip == nil {
			return query.Entry{}, fmt.Errorf("match %q: invalid IP", ec.Match)
		}
		e.Kind = query.MatchSingle
		e.IP = ip
	}
	return e, nil
}
