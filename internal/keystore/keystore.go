// Package keystore persists TSIG keys and named ACLs in a sqlite3
// database, the way tdnsd keeps its SIG(0)/child-key tables: a fixed
// schema created on first open, with local receiver methods wrapping
// database/sql so callers never touch *sql.DB directly.
package keystore

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"dnsauthd/internal/name"
	"dnsauthd/internal/tsig"
)

var defaultTables = map[string]string{
	"TSIGKeys": `CREATE TABLE IF NOT EXISTS 'TSIGKeys' (
id        INTEGER PRIMARY KEY,
name      TEXT,
algorithm TEXT,
secret    TEXT,
comment   TEXT,
UNIQUE (name)
)`,

	"ACLGrants": `CREATE TABLE IF NOT EXISTS 'ACLGrants' (
id          INTEGER PRIMARY KEY,
acl_name    TEXT,
position    INTEGER,
match       TEXT,
port        INTEGER,
require_key TEXT,
blocked     INTEGER,
UNIQUE (acl_name, position)
)`,
}

// Store is the keystore's single database handle; DB and mu are
// exported-shaped (capitalized field, local methods) so callers
// needing a raw query can still reach it, matching tdnsd's KeyDB.
type Store struct {
	DB *sql.DB
	mu sync.Mutex
}

// Open opens (creating if necessary) the sqlite3 database at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("keystore: open %s: %w", path, err)
	}
	s := &Store{DB: db}
	if err := s.setupTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) setupTables() error {
	for table, schema := range defaultTables {
		if _, err := s.DB.Exec(schema); err != nil {
			return fmt.Errorf("keystore: creating table %s: %w", table, err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.DB.Close()
}

// PutKey inserts or replaces the TSIG key identified by key.Name.
func (s *Store) PutKey(key tsig.Key, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.DB.Exec(
		`INSERT INTO TSIGKeys (name, algorithm, secret, comment) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET algorithm=excluded.algorithm, secret=excluded.secret, comment=excluded.comment`,
		key.Name.String(), algorithmName(key.Algorithm), string(key.Secret), comment)
	if err != nil {
		return fmt.Errorf("keystore: storing key %s: %w", key.Name, err)
	}
	return nil
}

// GetKey looks up a TSIG key by name.
func (s *Store) GetKey(keyName name.DomainName) (tsig.Key, bool, error) {
	row := s.DB.QueryRow(`SELECT algorithm, secret FROM TSIGKeys WHERE name = ?`, keyName.String())
	var algo, secret string
	switch err := row.Scan(&algo, &secret); err {
	case sql.ErrNoRows:
		return tsig.Key{}, false, nil
	case nil:
		a, err := parseAlgorithm(algo)
		if err != nil {
			return tsig.Key{}, false, err
		}
		return tsig.Key{Name: keyName, Algorithm: a, Secret: []byte(secret)}, true, nil
	default:
		return tsig.Key{}, false, fmt.Errorf("keystore: looking up key %s: %w", keyName, err)
	}
}

// DeleteKey removes a TSIG key by name. No error results if it was
// already absent.
func (s *Store) DeleteKey(keyName name.DomainName) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.DB.Exec(`DELETE FROM TSIGKeys WHERE name = ?`, keyName.String())
	if err != nil {
		return fmt.Errorf("keystore: deleting key %s: %w", keyName, err)
	}
	return nil
}

// ListKeyNames returns every stored TSIG key name, sorted by name.
func (s *Store) ListKeyNames() ([]string, error) {
	rows, err := s.DB.Query(`SELECT name FROM TSIGKeys ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("keystore: listing keys: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func algorithmName(a tsig.Algorithm) string {
	switch a {
	case tsig.HMACMD5:
		return "hmac-md5"
	case tsig.HMACSHA1:
		return "hmac-sha1"
	default:
		return "hmac-sha256"
	}
}

func parseAlgorithm(s string) (tsig.Algorithm, error) {
	switch s {
	case "hmac-md5":
		return tsig.HMACMD5, nil
	case "hmac-sha1":
		return tsig.HMACSHA1, nil
	case "hmac-sha256":
		return tsig.HMACSHA256, nil
	default:
		return 0, fmt.Errorf("keystore: unknown algorithm %q", s)
	}
}
