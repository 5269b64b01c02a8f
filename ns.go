package resolver

import (
	"net"
	"strconv"
	"time"

	"github.com/miekg/dns"
)

// isReferral reports whether msg is a referral: no answer records, but an
// authority section carrying NS records (spec §4.5 "Referral (no answer,
// authority section carries NS records)").
func isReferral(msg *dns.Msg) bool {
	if len(msg.Answer) > 0 {
		return false
	}
	for _, rr := range msg.Ns {
		if _, ok := rr.(*dns.NS); ok {
			return true
		}
	}
	return false
}

// referralTTL returns the minimum TTL across the NS records in msg's
// authority section, used as the AuthoritativeNsCache insert TTL.
func referralTTL(msg *dns.Msg) time.Duration {
	var ttl uint32
	first := true
	for _, rr := range msg.Ns {
		ns, ok := rr.(*dns.NS)
		if !ok {
			continue
		}
		if first || ns.Hdr.Ttl < ttl {
			ttl = ns.Hdr.Ttl
			first = false
		}
	}
	return time.Duration(ttl) * time.Second
}

// referralAddrs extracts the next hop's candidate servers from a referral
// response. Glue records (A/AAAA records for an NS target, carried in the
// ADDITIONAL section) are returned as "ip:port" strings; glue is matched by
// owner name only, and records outside the referred zone's bailiwick are not
// filtered out. NS targets without glue are returned as bare names,
// left for the caller to resolve recursively (spec §4.5 "If all NS targets
// would require an additional address lookup, recursively resolve each").
func referralAddrs(msg *dns.Msg, port int) (glued []string, bareNames []string) {
	var names []string
	seen := map[string]bool{}
	for _, rr := range msg.Ns {
		ns, ok := rr.(*dns.NS)
		if !ok || seen[ns.Ns] {
			continue
		}
		seen[ns.Ns] = true
		names = append(names, ns.Ns)
	}

	for _, name := range names {
		ips := gluedAddrs(msg, name, port)
		if len(ips) > 0 {
			glued = append(glued, ips...)
		} else {
			bareNames = append(bareNames, name)
		}
	}

	return glued, bareNames
}

// gluedAddrs returns "ip:port" strings for any A/AAAA glue record in msg's
// ADDITIONAL section whose owner name matches nsName exactly.
func gluedAddrs(msg *dns.Msg, nsName string, port int) []string {
	var addrs []string
	for _, rr := range msg.Extra {
		if rr.Header().Name != nsName {
			continue
		}
		switch rr := rr.(type) {
		case *dns.A:
			addrs = append(addrs, joinHostPort(rr.A.String(), port))
		case *dns.AAAA:
			addrs = append(addrs, joinHostPort(rr.AAAA.String(), port))
		}
	}
	return addrs
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
