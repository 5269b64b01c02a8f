package resolver

import (
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// matchingRecords returns the records in answer whose owner name and type
// match q (spec §3 Question "Equality is by all three fields"), skipping
// CNAMEs so a caller can handle chasing separately.
func matchingRecords(answer []dns.RR, q dns.Question) []dns.RR {
	var out []dns.RR
	for _, rr := range answer {
		hdr := rr.Header()
		if hdr.Rrtype == q.Qtype && dns.CanonicalName(hdr.Name) == dns.CanonicalName(q.Name) {
			out = append(out, rr)
		}
	}
	return out
}

// firstCNAME returns the first CNAME record in answer owned by name, if
// any.
func firstCNAME(answer []dns.RR, name string) (*dns.CNAME, bool) {
	for _, rr := range answer {
		if cname, ok := rr.(*dns.CNAME); ok && dns.CanonicalName(cname.Hdr.Name) == dns.CanonicalName(name) {
			return cname, true
		}
	}
	return nil, false
}

// ipsFromRecords extracts net.IP values from A/AAAA records, in answer
// order.
func ipsFromRecords(records []dns.RR) []net.IP {
	var ips []net.IP
	for _, rr := range records {
		switch rr := rr.(type) {
		case *dns.A:
			ips = append(ips, rr.A)
		case *dns.AAAA:
			ips = append(ips, rr.AAAA)
		}
	}
	return ips
}

// minTTLOf returns the smallest TTL across records, converted to a
// time.Duration; zero if records is empty.
func minTTLOf(records []dns.RR) time.Duration {
	var min time.Duration
	for i, rr := range records {
		ttl := time.Duration(rr.Header().Ttl) * time.Second
		if i == 0 || ttl < min {
			min = ttl
		}
	}
	return min
}

// cacheKeyFor composes the AnswerCache key for a question: the owner name
// plus a record-type tag, so that A and AAAA answers for the same host
// occupy distinct cache slots, plus a deterministic encoding of any
// user-supplied additionals so that two otherwise-identical questions sent
// with different additional records (e.g. distinct OPT/client-subnet
// payloads) don't collide on the same cache slot (spec §3 AnswerCache
// "keyed by name (plus any user-supplied additionals for key
// disambiguation)").
func cacheKeyFor(q dns.Question, additionals []dns.RR) string {
	key := fmt.Sprintf("%s:%d", dns.CanonicalName(q.Name), q.Qtype)
	for _, rr := range additionals {
		key += ":" + rr.String()
	}
	return key
}
