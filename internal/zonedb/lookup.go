package zonedb

import (
	"dnsauthd/internal/name"
	"dnsauthd/internal/rdata"
	"dnsauthd/internal/rr"
)

// Kind classifies the outcome of Answer, matching the cases spec.md
// §4.4 step 2 enumerates.
type Kind int

const (
	KindRefused Kind = iota
	KindAnswer
	KindNoData
	KindReferral
	KindNXDomain
)

// maxCNAMEChain bounds the combined number of CNAME/DNAME hops a
// single answer may follow before giving up, per spec.md §4.4.
const maxCNAMEChain = 8

// Result carries everything the query engine needs to assemble a
// response: the zone that answered (nil for KindRefused), the answer
// RRsets (possibly several, when CNAME/DNAME indirection chained),
// authority-section content, and additional-section glue.
type Result struct {
	Kind      Kind
	Zone      *Zone
	Answer    []*rr.RRset
	Authority []*rr.RRset // SOA (NODATA/NXDOMAIN) or NS (referral)
	Glue      []*rr.RRset // A/AAAA for NS targets, referral additional section
	QueryName name.DomainName
}

// Answer runs the authoritative lookup algorithm of spec.md §4.4 for
// one (qname,qtype) pair against db.
func Answer(db *DB, qname name.DomainName, qtype rdata.Type) Result {
	zone := db.FindApex(qname)
	if zone == nil {
		return Result{Kind: KindRefused, QueryName: qname}
	}
	return answerInZone(zone, qname, qtype, 0)
}

func answerInZone(zone *Zone, qname name.DomainName, qtype rdata.Type, hops int) Result {
	res := Result{Zone: zone, QueryName: qname}

	// Delegation check: walk from qname up to (but not including) the
	// apex looking for an NS-bearing cut between qname and the apex.
	if cut, ok := findDelegationCut(zone, qname); ok {
		res.Kind = KindReferral
		nsSet, _ := zone.Lookup(cut, rdata.TypeNS)
		res.Authority = []*rr.RRset{nsSet}
		res.Glue = glueFor(zone, nsSet)
		return res
	}

	if set, ok := zone.Lookup(qname, qtype); ok {
		res.Kind = KindAnswer
		res.Answer = append(res.Answer, set)
		res.Glue = additionalFor(zone, set)
		return res
	}

	// CNAME indirection: only applies when the query didn't ask for
	// CNAME or ANY directly.
	if qtype != rdata.TypeCNAME && qtype != rdata.TypeANY {
		if cname, ok := zone.Lookup(qname, rdata.TypeCNAME); ok {
			res.Kind = KindAnswer
			res.Answer = append(res.Answer, cname)
			if hops < maxCNAMEChain {
				tgt := cnameTarget(cname)
				if name.IsSubdomainOf(tgt, zone.Apex) {
					chained := answerInZone(zone, tgt, qtype, hops+1)
					res.Answer = append(res.Answer, chained.Answer...)
				}
			}
			return res
		}
	}

	// DNAME indirection (RFC 6672): unlike CNAME this can own any
	// ancestor of qname, not just qname itself, and rewrites qname's
	// suffix rather than replacing it whole.
	if qtype != rdata.TypeDNAME && qtype != rdata.TypeANY {
		if dname, owner, ok := findDNAME(zone, qname); ok {
			res.Kind = KindAnswer
			res.Answer = append(res.Answer, dname)
			if hops < maxCNAMEChain {
				if tgt, ok := substituteDNAME(qname, owner, dnameTarget(dname)); ok {
					res.Answer = append(res.Answer, synthesizedCNAME(dname, qname, tgt))
					if name.IsSubdomainOf(tgt, zone.Apex) {
						chained := answerInZone(zone, tgt, qtype, hops+1)
						res.Answer = append(res.Answer, chained.Answer...)
					}
				}
			}
			return res
		}
	}

	if zone.IsEmptyNonTerminal(qname) {
		res.Kind = KindNoData
		res.Authority = append([]*rr.RRset{soaSet(zone)}, denialProof(zone, qname)...)
		return res
	}

	if zone.HasOwner(qname) {
		// The name exists but not with this type: NODATA.
		res.Kind = KindNoData
		res.Authority = append([]*rr.RRset{soaSet(zone)}, denialProof(zone, qname)...)
		return res
	}

	if encloser, ok := zone.ClosestEncloser(qname); ok {
		if wc, ok := zone.WildcardFor(encloser, qtype); ok {
			expanded := &rr.RRset{Owner: qname, Type: wc.Type, Class: wc.Class, TTL: wc.TTL, Data: wc.Data}
			res.Kind = KindAnswer
			res.Answer = append(res.Answer, expanded)
			res.Glue = additionalFor(zone, expanded)
			// Prove no closer exact match existed, so a validator
			// accepts the expansion (RFC 4035 §3.1.3.3).
			res.Authority = denialProof(zone, qname)
			return res
		}
		// A wildcard parent exists but not for this qtype: still NODATA.
		res.Kind = KindNoData
		res.Authority = append([]*rr.RRset{soaSet(zone)}, denialProof(zone, qname)...)
		return res
	}

	res.Kind = KindNXDomain
	res.Authority = append([]*rr.RRset{soaSet(zone)}, denialProof(zone, qname)...)
	return res
}

func cnameTarget(set *rr.RRset) name.DomainName {
	if cn, ok := set.Data[0].(*rdata.CNAME); ok {
		return cn.Target
	}
	return name.DomainName{}
}

func dnameTarget(set *rr.RRset) name.DomainName {
	if dn, ok := set.Data[0].(*rdata.DNAME); ok {
		return dn.Target
	}
	return name.DomainName{}
}

// findDNAME walks from qname's immediate parent up to (and including)
// the apex looking for a DNAME RRset. A DNAME at qname itself does not
// apply to qname (RFC 6672 §2): only proper descendants are redirected.
func findDNAME(zone *Zone, qname name.DomainName) (*rr.RRset, name.DomainName, bool) {
	if qname.Equal(zone.Apex) {
		return nil, name.DomainName{}, false
	}
	n := name.OriginOf(qname)
	for {
		if dname, ok := zone.Lookup(n, rdata.TypeDNAME); ok {
			return dname, n, true
		}
		if n.Equal(zone.Apex) {
			return nil, name.DomainName{}, false
		}
		if !name.IsSubdomainOf(n, zone.Apex) {
			return nil, name.DomainName{}, false
		}
		n = name.OriginOf(n)
	}
}

// substituteDNAME rewrites qname's suffix below owner with target,
// synthesizing the name a CNAME-equivalent record would point to.
func substituteDNAME(qname, owner, target name.DomainName) (name.DomainName, bool) {
	qLabels := qname.Labels()
	oLabels := owner.Labels()
	if len(qLabels) < len(oLabels) {
		return name.DomainName{}, false
	}
	prefix := qLabels[:len(qLabels)-len(oLabels)]
	newLabels := append(append([][]byte(nil), prefix...), target.Labels()...)
	n, err := name.FromWire(newLabels)
	if err != nil {
		return name.DomainName{}, false
	}
	return n, true
}

// synthesizedCNAME builds the CNAME-equivalent record RFC 6672 §3.4
// requires alongside a DNAME answer, sharing the DNAME's class and TTL.
func synthesizedCNAME(dname *rr.RRset, qname, target name.DomainName) *rr.RRset {
	return &rr.RRset{Owner: qname, Type: rdata.TypeCNAME, Class: dname.Class, TTL: dname.TTL,
		Data: []rdata.Rdata{&rdata.CNAME{Target: target}}}
}

// denialProof returns the NSEC/NSEC3 RRset that proves qname's absence
// (or the absence of a closer match), per spec.md §4.4's signed-zone
// requirement. It selects the canonical predecessor of qname and
// returns whichever denial type the zone actually carries there; an
// unsigned zone returns nothing to attach.
func denialProof(zone *Zone, qname name.DomainName) []*rr.RRset {
	if !zone.Signed {
		return nil
	}
	pred, ok := zone.Predecessor(qname)
	if !ok {
		pred = zone.Apex
	}
	if set, ok := zone.Lookup(pred, rdata.TypeNSEC); ok {
		return []*rr.RRset{set}
	}
	if set, ok := zone.Lookup(pred, rdata.TypeNSEC3); ok {
		return []*rr.RRset{set}
	}
	return nil
}

func soaSet(zone *Zone) *rr.RRset {
	return &rr.RRset{Owner: zone.Apex, Type: rdata.TypeSOA, Class: zone.SOA.Class, TTL: zone.SOA.TTL,
		Data: []rdata.Rdata{zone.SOA.Data}}
}

// findDelegationCut finds the highest in-zone ancestor of qname
// (excluding the apex) that is a delegation point, if any lies on the
// path from qname up to the apex.
func findDelegationCut(zone *Zone, qname name.DomainName) (name.DomainName, bool) {
	var cut name.DomainName
	found := false
	n := qname
	for {
		if n.Equal(zone.Apex) {
			return cut, found
		}
		if zone.DelegationPoint(n) {
			cut, found = n, true
		}
		if !name.IsSubdomainOf(n, zone.Apex) {
			return cut, found
		}
		n = name.OriginOf(n)
	}
}

// additionalFor implements the additional-section glue algorithm of
// spec.md §4.4: for NS targets and MX exchanges referenced by set, pull
// matching in-zone A/AAAA RRsets. Any other type, SRV included, gets no
// additional-section records.
func additionalFor(zone *Zone, set *rr.RRset) []*rr.RRset {
	var targets []name.DomainName
	switch set.Type {
	case rdata.TypeNS:
		for _, d := range set.Data {
			if ns, ok := d.(*rdata.NS); ok {
				targets = append(targets, ns.Target)
			}
		}
	case rdata.TypeMX:
		for _, d := range set.Data {
			if mx, ok := d.(*rdata.MX); ok {
				targets = append(targets, mx.Exchange)
			}
		}
	default:
		return nil
	}
	return glueForTargets(zone, targets)
}

func glueFor(zone *Zone, nsSet *rr.RRset) []*rr.RRset {
	if nsSet == nil {
		return nil
	}
	return additionalFor(zone, nsSet)
}

func glueForTargets(zone *Zone, targets []name.DomainName) []*rr.RRset {
	var out []*rr.RRset
	for _, t := range targets {
		if !name.IsSubdomainOf(t, zone.Apex) {
			continue // out-of-bailiwick target: no glue to offer from this zone
		}
		if a, ok := zone.Lookup(t, rdata.TypeA); ok {
			out = append(out, a)
		}
		if aaaa, ok := zone.Lookup(t, rdata.TypeAAAA); ok {
			out = append(out, aaaa)
		}
	}
	return out
}
