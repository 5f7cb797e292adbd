// Package zonedb holds the in-memory, immutable-snapshot zone
// database: apex lookup, RRset storage, wildcard expansion, and
// NSEC-ordered denial of existence, per spec.md §4.4.
package zonedb

import (
	"fmt"
	"sort"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"

	"dnsauthd/internal/name"
	"dnsauthd/internal/rdata"
	"dnsauthd/internal/rr"
)

// ownerTypeKey identifies one RRset within a zone.
type ownerTypeKey struct {
	owner string
	typ   rdata.Type
}

// Zone is an immutable snapshot of one zone's data. A reload builds an
// entirely new Zone and swaps it into the DB atomically; nothing ever
// mutates a Zone in place once Freeze has run.
type Zone struct {
	Apex   name.DomainName
	SOA    rr.RR
	Class  rr.Class
	Signed bool // true when the zone carries DNSSEC RRSIG/NSEC(3) data

	rrsets    map[ownerTypeKey]*rr.RRset
	nsecNames []name.DomainName            // canonically sorted owners, for denial-of-existence walks
	wildcards map[string][]*rr.RRset       // canonical parent-of-wildcard owner -> its RRsets
	delegated map[string]bool              // canonical owner -> true if it carries NS but is not the apex

	// CurrentSerial mirrors SOA.Data.(*rdata.SOA).Serial for the
	// refresh engine's comparisons without re-walking rdata.
	CurrentSerial uint32
}

// NewZone starts an empty, mutable builder for apex. Call AddRRset
// repeatedly, then Freeze to obtain the immutable, query-ready Zone.
func NewZone(apex name.DomainName, class rr.Class) *Zone {
	return &Zone{
		Apex: apex, Class: class,
		rrsets:    map[ownerTypeKey]*rr.RRset{},
		wildcards: map[string][]*rr.RRset{},
		delegated: map[string]bool{},
	}
}

// AddRRset inserts or merges an RRset into the zone under construction.
// A second SOA record is rejected.
func (z *Zone) AddRRset(owner name.DomainName, typ rdata.Type, class rr.Class, ttl uint32, data []rdata.Rdata) error {
	if typ == rdata.TypeSOA && !owner.Equal(z.Apex) {
		return fmt.Errorf("zonedb: SOA owner %s is not the zone apex %s", owner, z.Apex)
	}
	if typ == rdata.TypeSOA && z.SOA.Data != nil {
		return fmt.Errorf("zonedb: zone %s already has an SOA record", z.Apex)
	}
	key := ownerTypeKey{owner: owner.String(), typ: typ}
	set, ok := z.rrsets[key]
	if !ok {
		set = &rr.RRset{Owner: owner, Type: typ, Class: class, TTL: ttl}
		z.rrsets[key] = set
	} else if ttl < set.TTL {
		set.TTL = ttl // RFC 2181 §5.2: use the lowest TTL observed for the set
	}
	for _, d := range data {
		set.Add(d)
	}
	if typ == rdata.TypeSOA {
		z.SOA = rr.RR{Owner: owner, Type: typ, Class: class, TTL: ttl, Data: data[0]}
		if soa, ok := data[0].(*rdata.SOA); ok {
			z.CurrentSerial = soa.Serial
		}
	}
	return nil
}

// Freeze finalizes the zone: builds the wildcard index, the NSEC
// canonical-order name list, and marks delegation points. It must be
// called exactly once, after all RRsets have been added.
func (z *Zone) Freeze() error {
	if z.SOA.Data == nil {
		return fmt.Errorf("zonedb: zone %s has no SOA record", z.Apex)
	}
	seen := map[string]name.DomainName{}
	for k, set := range z.rrsets {
		seen[k.owner] = set.Owner
		if set.Owner.IsWildcard() {
			parent := name.OriginOf(set.Owner)
			z.wildcards[parent.String()] = append(z.wildcards[parent.String()], set)
		}
		if k.typ == rdata.TypeNS && !set.Owner.Equal(z.Apex) {
			z.delegated[k.owner] = true
		}
	}
	z.nsecNames = make([]name.DomainName, 0, len(seen))
	for _, n := range seen {
		z.nsecNames = append(z.nsecNames, n)
	}
	sort.Slice(z.nsecNames, func(i, j int) bool {
		return name.Compare(z.nsecNames[i], z.nsecNames[j]) < 0
	})
	return nil
}

// Lookup returns the RRset for (owner,typ) if one exists exactly.
func (z *Zone) Lookup(owner name.DomainName, typ rdata.Type) (*rr.RRset, bool) {
	set, ok := z.rrsets[ownerTypeKey{owner: owner.String(), typ: typ}]
	return set, ok
}

// HasOwner reports whether any RRset (of any type) exists at owner,
// which distinguishes NODATA at an existing name from NXDOMAIN. It
// reports false for an empty non-terminal; see IsEmptyNonTerminal.
func (z *Zone) HasOwner(owner name.DomainName) bool {
	target := owner.String()
	for k := range z.rrsets {
		if k.owner == target {
			return true
		}
	}
	return false
}

// IsEmptyNonTerminal reports whether owner exists only as an ancestor
// of other in-zone names, carrying no RRsets of its own.
func (z *Zone) IsEmptyNonTerminal(owner name.DomainName) bool {
	if z.HasOwner(owner) {
		return false
	}
	for _, n := range z.nsecNames {
		if name.IsSubdomainOf(n, owner) && !n.Equal(owner) {
			return true
		}
	}
	return false
}

// WildcardFor returns the wildcard RRset of typ enclosed by parent
// (i.e. "*.<parent>"), if one was configured.
func (z *Zone) WildcardFor(parent name.DomainName, typ rdata.Type) (*rr.RRset, bool) {
	for _, set := range z.wildcards[parent.String()] {
		if set.Type == typ {
			return set, true
		}
	}
	return nil, false
}

// ClosestEncloser walks qname's ancestors looking for the longest one
// that has a configured wildcard child, without crossing a delegation
// boundary (a child zone's wildcards are none of this zone's concern).
func (z *Zone) ClosestEncloser(qname name.DomainName) (name.DomainName, bool) {
	n := qname
	for {
		if !name.IsSubdomainOf(n, z.Apex) {
			return name.DomainName{}, false
		}
		if z.delegated[n.String()] && !n.Equal(z.Apex) {
			return name.DomainName{}, false
		}
		if _, ok := z.wildcards[n.String()]; ok {
			return n, true
		}
		if n.Equal(z.Apex) {
			return name.DomainName{}, false
		}
		n = name.OriginOf(n)
	}
}

// DelegationPoint reports whether owner is an in-zone name carrying NS
// but not the apex — i.e. a referral cut.
func (z *Zone) DelegationPoint(owner name.DomainName) bool {
	return z.delegated[owner.String()]
}

// NextName returns the canonically-next owner name after n within the
// zone's NSEC ordering, wrapping to the apex (closing the ring), which
// is what an NSEC record's "next domain name" field requires.
func (z *Zone) NextName(n name.DomainName) name.DomainName {
	for _, candidate := range z.nsecNames {
		if name.Compare(candidate, n) > 0 {
			return candidate
		}
	}
	return z.Apex
}

// Predecessor returns the canonically-largest owner name that is <= n,
// used both for NSEC proof construction and as the in-memory analogue
// of udb's FindLessEqual.
func (z *Zone) Predecessor(n name.DomainName) (name.DomainName, bool) {
	var best name.DomainName
	found := false
	for _, candidate := range z.nsecNames {
		if name.Compare(candidate, n) <= 0 {
			if !found || name.Compare(candidate, best) > 0 {
				best = candidate
				found = true
			}
		}
	}
	return best, found
}

// DB is the live, concurrently-readable table of loaded zones, keyed
// by apex name. Workers only ever read it; a reload builds a new Zone
// and calls Replace, which is the only mutation path.
type DB struct {
	zones cmap.ConcurrentMap[string, *Zone]
	mu    sync.RWMutex // guards idx, which cmap alone can't keep consistent with zones
	idx   *apexIndex
}

// NewDB creates an empty zone database.
func NewDB() *DB {
	return &DB{zones: cmap.New[*Zone](), idx: newApexIndex()}
}

// Replace atomically installs z as the current data for its apex,
// superseding whatever was loaded before (spec.md §3: "reload replaces
// the map entry atomically").
func (db *DB) Replace(z *Zone) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.zones.Set(z.Apex.String(), z)
	db.idx.insert(z.Apex, z)
}

// Remove drops a zone entirely (used when a zone is deconfigured).
func (db *DB) Remove(apex name.DomainName) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.zones.Remove(apex.String())
	db.idx.remove(apex)
}

// Get returns the zone configured at exactly this apex, if any.
func (db *DB) Get(apex name.DomainName) (*Zone, bool) {
	return db.zones.Get(apex.String())
}

// FindApex returns the deepest configured zone that is an ancestor of
// (or equal to) qname — spec.md §4.4 step 1. A nil result means the
// question falls outside this server's authority (REFUSED).
func (db *DB) FindApex(qname name.DomainName) *Zone {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.idx.findDeepest(qname)
}
