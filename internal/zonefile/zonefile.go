// Package zonefile reads RFC 1035 §5 presentation-format master files
// into a zonedb.Zone: $ORIGIN/$TTL directives, owner-name inheritance
// from the previous record, the $TTL value (3600 until one is set) for
// records that omit a TTL, parenthesized multi-line rdata, and the
// record types this server knows how to serve.
package zonefile

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"dnsauthd/internal/name"
	"dnsauthd/internal/rdata"
	"dnsauthd/internal/rr"
	"dnsauthd/internal/zonedb"
)

// Load reads the master file at path, anchored at apex, and returns a
// frozen, query-ready Zone.
func Load(apex name.DomainName, class rr.Class, path string) (*zonedb.Zone, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("zonefile: %w", err)
	}
	defer f.Close()
	return parse(apex, class, f)
}

func parse(apex name.DomainName, class rr.Class, r io.Reader) (*zonedb.Zone, error) {
	z := zonedb.NewZone(apex, class)
	origin := apex
	var defaultTTL uint32 = 3600
	var lastOwner name.DomainName
	haveOwner := false

	lines, err := joinParens(r)
	if err != nil {
		return nil, fmt.Errorf("zonefile: %w", err)
	}

	for lineNo, raw := range lines {
		line := stripComment(raw)
		if strings.TrimSpace(line) == "" {
			continue
		}

		if strings.HasPrefix(line, "$ORIGIN") {
			fields := strings.Fields(line)
			if len(fields) != 2 {
				return nil, fmt.Errorf("zonefile: line %d: malformed $ORIGIN", lineNo+1)
			}
			o, err := resolveName(fields[1], origin)
			if err != nil {
				return nil, fmt.Errorf("zonefile: line %d: %w", lineNo+1, err)
			}
			origin = o
			continue
		}
		if strings.HasPrefix(line, "$TTL") {
			fields := strings.Fields(line)
			if len(fields) != 2 {
				return nil, fmt.Errorf("zonefile: line %d: malformed $TTL", lineNo+1)
			}
			ttl, err := parseTTL(fields[1])
			if err != nil {
				return nil, fmt.Errorf("zonefile: line %d: %w", lineNo+1, err)
			}
			defaultTTL = ttl
			continue
		}

		owner, ttl, class, typ, rdataFields, leadingBlank, err := splitRecord(line, defaultTTL)
		if err != nil {
			return nil, fmt.Errorf("zonefile: line %d: %w", lineNo+1, err)
		}

		var ownerName name.DomainName
		if leadingBlank {
			if !haveOwner {
				return nil, fmt.Errorf("zonefile: line %d: no owner to inherit", lineNo+1)
			}
			ownerName = lastOwner
		} else {
			ownerName, err = resolveName(owner, origin)
			if err != nil {
				return nil, fmt.Errorf("zonefile: line %d: owner %q: %w", lineNo+1, owner, err)
			}
			lastOwner = ownerName
			haveOwner = true
		}

		d, err := decodeRdata(typ, rdataFields, origin)
		if err != nil {
			return nil, fmt.Errorf("zonefile: line %d: %w", lineNo+1, err)
		}
		if err := z.AddRRset(ownerName, typ, class, ttl, []rdata.Rdata{d}); err != nil {
			return nil, fmt.Errorf("zonefile: line %d: %w", lineNo+1, err)
		}
	}

	if err := z.Freeze(); err != nil {
		return nil, fmt.Errorf("zonefile: %w", err)
	}
	return z, nil
}

// joinParens folds parenthesized multi-line records into a single
// logical line, per RFC 1035 §5.1.
func joinParens(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var out []string
	var cur strings.Builder
	depth := 0
	for scanner.Scan() {
		line := scanner.Text()
		stripped := stripComment(line)
		opens := strings.Count(stripped, "(")
		closes := strings.Count(stripped, ")")
		if depth > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(strings.ReplaceAll(strings.ReplaceAll(stripped, "(", " "), ")", " "))
		depth += opens - closes
		if depth < 0 {
			return nil, fmt.Errorf("unbalanced parentheses")
		}
		if depth == 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unterminated parenthesized record")
	}
	return out, scanner.Err()
}

func stripComment(line string) string {
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuote = !inQuote
		case ';':
			if !inQuote {
				return line[:i]
			}
		}
	}
	return line
}

var classNames = map[string]rr.Class{"IN": rr.ClassINET, "CH": rr.ClassCHAOS, "ANY": rr.ClassANY}

// splitRecord tokenizes one joined record line into owner, TTL,
// class, type, and the remaining rdata fields, per the field-order
// conventions of RFC 1035 §5.1 (owner [ttl] [class] type rdata...).
func splitRecord(line string, defaultTTL uint32) (owner string, ttl uint32, class rr.Class, typ rdata.Type, rdataFields []string, leadingBlank bool, err error) {
	leadingBlank = line[0] == ' ' || line[0] == '\t'
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", 0, 0, 0, nil, false, fmt.Errorf("empty record")
	}

	i := 0
	if !leadingBlank {
		owner = fields[0]
		i = 1
	}

	ttl = defaultTTL
	class = rr.ClassINET
	for i < len(fields) {
		f := fields[i]
		if n, err2 := strconv.ParseUint(f, 10, 32); err2 == nil {
			ttl = uint32(n)
			i++
			continue
		}
		if c, ok := classNames[strings.ToUpper(f)]; ok {
			class = c
			i++
			continue
		}
		break
	}
	if i >= len(fields) {
		return "", 0, 0, 0, nil, false, fmt.Errorf("missing record type")
	}
	t, ok := rdata.TypeByName(strings.ToUpper(fields[i]))
	if !ok {
		return "", 0, 0, 0, nil, false, fmt.Errorf("unsupported record type %q", fields[i])
	}
	typ = t
	rdataFields = fields[i+1:]
	return owner, ttl, class, typ, rdataFields, leadingBlank, nil
}

func parseTTL(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid TTL %q: %w", s, err)
	}
	return uint32(n), nil
}

// resolveName expands a presentation-form name against origin: "@"
// is the origin itself, a trailing dot means the name is already
// fully qualified, and anything else is relative to origin.
func resolveName(s string, origin name.DomainName) (name.DomainName, error) {
	if s == "@" {
		return origin, nil
	}
	if strings.HasSuffix(s, ".") {
		return name.Parse(s)
	}
	abs, err := name.Parse(s + ".")
	if err != nil {
		return name.DomainName{}, err
	}
	return name.FromWire(append(abs.Labels(), origin.Labels()...))
}

func decodeRdata(typ rdata.Type, fields []string, origin name.DomainName) (rdata.Rdata, error) {
	switch typ {
	case rdata.TypeA:
		if len(fields) != 1 {
			return nil, fmt.Errorf("A: expected one address field")
		}
		ip := net.ParseIP(fields[0]).To4()
		if ip == nil {
			return nil, fmt.Errorf("A: invalid address %q", fields[0])
		}
		return &rdata.A{Addr: ip}, nil

	case rdata.TypeAAAA:
		if len(fields) != 1 {
			return nil, fmt.Errorf("AAAA: expected one address field")
		}
		ip := net.ParseIP(fields[0]).To16()
		if ip == nil {
			return nil, fmt.Errorf("AAAA: invalid address %q", fields[0])
		}
		return &rdata.AAAA{Addr: ip}, nil

	case rdata.TypeNS:
		if len(fields) != 1 {
			return nil, fmt.Errorf("NS: expected one target field")
		}
		n, err := resolveName(fields[0], origin)
		if err != nil {
			return nil, fmt.Errorf("NS: %w", err)
		}
		return &rdata.NS{Target: n}, nil

	case rdata.TypeCNAME:
		if len(fields) != 1 {
			return nil, fmt.Errorf("CNAME: expected one target field")
		}
		n, err := resolveName(fields[0], origin)
		if err != nil {
			return nil, fmt.Errorf("CNAME: %w", err)
		}
		return &rdata.CNAME{Target: n}, nil

	case rdata.TypeDNAME:
		if len(fields) != 1 {
			return nil, fmt.Errorf("DNAME: expected one target field")
		}
		n, err := resolveName(fields[0], origin)
		if err != nil {
			return nil, fmt.Errorf("DNAME: %w", err)
		}
		return &rdata.DNAME{Target: n}, nil

	case rdata.TypeMX:
		if len(fields) != 2 {
			return nil, fmt.Errorf("MX: expected preference and exchange fields")
		}
		pref, err := strconv.ParseUint(fields[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("MX: invalid preference %q: %w", fields[0], err)
		}
		n, err := resolveName(fields[1], origin)
		if err != nil {
			return nil, fmt.Errorf("MX: %w", err)
		}
		return &rdata.MX{Preference: uint16(pref), Exchange: n}, nil

	case rdata.TypeSOA:
		if len(fields) != 7 {
			return nil, fmt.Errorf("SOA: expected 7 fields, got %d", len(fields))
		}
		mname, err := resolveName(fields[0], origin)
		if err != nil {
			return nil, fmt.Errorf("SOA: mname: %w", err)
		}
		rname, err := resolveName(fields[1], origin)
		if err != nil {
			return nil, fmt.Errorf("SOA: rname: %w", err)
		}
		nums := make([]uint32, 5)
		for i, f := range fields[2:] {
			n, err := strconv.ParseUint(f, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("SOA: field %d: invalid integer %q: %w", i+3, f, err)
			}
			nums[i] = uint32(n)
		}
		return &rdata.SOA{
			MName: mname, RName: rname,
			Serial: nums[0], Refresh: nums[1], Retry: nums[2], Expire: nums[3], Minimum: nums[4],
		}, nil

	case rdata.TypeDS:
		if len(fields) != 4 {
			return nil, fmt.Errorf("DS: expected 4 fields")
		}
		keytag, err := strconv.ParseUint(fields[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("DS: keytag: %w", err)
		}
		alg, err := strconv.ParseUint(fields[1], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("DS: algorithm: %w", err)
		}
		digestType, err := strconv.ParseUint(fields[2], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("DS: digest type: %w", err)
		}
		digest, err := hexDecode(fields[3])
		if err != nil {
			return nil, fmt.Errorf("DS: digest: %w", err)
		}
		return &rdata.DS{KeyTag: uint16(keytag), Algorithm: uint8(alg), DigestType: uint8(digestType), Digest: digest}, nil

	default:
		return nil, fmt.Errorf("unsupported record type %s", typ)
	}
}

func hexDecode(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		n, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(n)
	}
	return out, nil
}
