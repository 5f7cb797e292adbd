package keystore

import (
	"fmt"
	"net"
	"strings"

	"dnsauthd/internal/name"
	"dnsauthd/internal/query"
)

// PutACL replaces every entry stored for aclName with entries,
// preserving their order as the position column.
func (s *Store) PutACL(aclName string, entries query.ACL) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.DB.Begin()
	if err != nil {
		return fmt.Errorf("keystore: begin PutACL(%s): %w", aclName, err)
	}
	if _, err := tx.Exec(`DELETE FROM ACLGrants WHERE acl_name = ?`, aclName); err != nil {
		tx.Rollback()
		return fmt.Errorf("keystore: clearing acl %s: %w", aclName, err)
	}
	for i, e := range entries {
		match := entryMatchString(e)
		requireKey := ""
		if e.RequireKey {
			requireKey = e.KeyName.String()
		}
		blocked := 0
		if e.Blocked {
			blocked = 1
		}
		if _, err := tx.Exec(
			`INSERT INTO ACLGrants (acl_name, position, match, port, require_key, blocked) VALUES (?, ?, ?, ?, ?, ?)`,
			aclName, i, match, e.Port, requireKey, blocked); err != nil {
			tx.Rollback()
			return fmt.Errorf("keystore: inserting acl %s entry %d: %w", aclName, i, err)
		}
	}
	return tx.Commit()
}

// GetACL loads a named ACL's entries in stored order.
func (s *Store) GetACL(aclName string) (query.ACL, error) {
	rows, err := s.DB.Query(
		`SELECT match, port, require_key, blocked FROM ACLGrants WHERE acl_name = ? ORDER BY position`, aclName)
	if err != nil {
		return nil, fmt.Errorf("keystore: loading acl %s: %w", aclName, err)
	}
	defer rows.Close()

	var acl query.ACL
	for rows.Next() {
		var match, requireKey string
		var port uint16
		var blocked int
		if err := rows.Scan(&match, &port, &requireKey, &blocked); err != nil {
			return nil, err
		}
		entry, err := parseEntry(match, port, requireKey, blocked != 0)
		if err != nil {
			return nil, fmt.Errorf("keystore: acl %s: %w", aclName, err)
		}
		acl = append(acl, entry)
	}
	return acl, rows.Err()
}

func entryMatchString(e query.Entry) string {
	switch e.Kind {
	case query.MatchSingle:
		return e.IP.String()
	case query.MatchSubnet:
		return e.Subnet.String()
	case query.MatchRange:
		return e.RangeLo.String() + "-" + e.RangeHi.String()
	default:
		return ""
	}
}

func parseEntry(match string, port uint16, requireKey string, blocked bool) (query.Entry, error) {
	e := query.Entry{Port: port, Blocked: blocked}
	if requireKey != "" {
		n, err := name.Parse(requireKey)
		if err != nil {
			return query.Entry{}, fmt.Errorf("require_key %q: %w", requireKey, err)
		}
		e.RequireKey = true
		e.KeyName = n
	}

	switch {
	case strings.Contains(match, "/"):
		_, ipnet, err := net.ParseCIDR(match)
		if err != nil {
			return query.Entry{}, fmt.Errorf("match %q: %w", match, err)
		}
		e.Kind = query.MatchSubnet
		e.Subnet = ipnet
	case strings.Contains(match, "-"):
		parts := strings.SplitN(match, "-", 2)
		lo := net.ParseIP(parts[0])
		hi := net.ParseIP(parts[1])
		if lo == nil || hi == nil {
			return query.Entry{}, fmt.Errorf("match %q: invalid IP range", match)
		}
		e.Kind = query.MatchRange
		e.RangeLo, e.RangeHi = lo, hi
	default:
		ip := net.ParseIP(match)
		if ip == nil {
			return query.Entry{}, fmt.Errorf("match %q: invalid IP", match)
		}
		e.Kind = query.MatchSingle
		e.IP = ip
	}
	return e, nil
}
