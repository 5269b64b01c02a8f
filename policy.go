package resolver

import (
	"net"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// TimeoutPolicy determines the round-trip timeout for a single DNS query.
//
// recordType is the queried RR type (dns.TypeA, dns.TypeAAAA, ...) and
// nameServerAddress is the "ip:port" of the server being queried.
//
// Any non-positive duration makes the query fall back to the builder's
// queryTimeoutMillis.
type TimeoutPolicy func(recordType uint16, domainName string, nameServerAddress string) (timeout time.Duration)

// DefaultTimeoutPolicy returns the default TimeoutPolicy.
//
// DefaultTimeoutPolicy assumes low latency to addresses in PrivateNets
// (10.0.0.0/8, 192.168.0.0/16, fd00::/8, etc.) and times requests to such
// addresses out after 100 milliseconds, and all other requests after 1
// second. startQuery arms its timer from this policy's result, falling back
// to the builder's queryTimeoutMillis only when the policy returns a
// non-positive duration.
func DefaultTimeoutPolicy() TimeoutPolicy {
	return defaultTimeoutPolicy
}

func defaultTimeoutPolicy(recordType uint16, domainName string, nameServerAddress string) time.Duration {
	ipStr, _, err := net.SplitHostPort(nameServerAddress)
	if err != nil {
		ipStr = nameServerAddress
	}
	ip := net.ParseIP(ipStr)

	for _, n := range PrivateNets {
		if n.Contains(ip) {
			return 100 * time.Millisecond
		}
	}

	return 1 * time.Second
}

// PrivateNets is used by DefaultTimeoutPolicy to return a low timeout for
// destination addresses in one of these subnets.
var PrivateNets = []*net.IPNet{
	mustParseCIDR("10.0.0.0/8"),
	mustParseCIDR("127.0.0.0/8"),
	mustParseCIDR("169.254.0.0/16"),
	mustParseCIDR("172.16.0.0/12"),
	mustParseCIDR("192.0.0.0/24"),
	mustParseCIDR("192.0.2.0/24"),
	mustParseCIDR("192.168.0.0/16"),
	mustParseCIDR("198.18.0.0/15"),
	mustParseCIDR("198.51.100.0/24"),
	mustParseCIDR("203.0.113.0/24"),
	mustParseCIDR("233.252.0.0/24"),
	mustParseCIDR("::1/128"),
	mustParseCIDR("2001:db8::/32"),
	mustParseCIDR("fd00::/8"),
	mustParseCIDR("fe80::/10"),
}

func mustParseCIDR(cidr string) *net.IPNet {
	_, n, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(err)
	}

	return n
}

// CachePolicy gates how long a referral is trusted in the
// AuthoritativeNsCache: it is consulted with the delegated zone name and the
// TTL the referral carried, and returns the TTL actually used (0 means
// "don't cache this referral").
type CachePolicy func(zone string, ttl time.Duration) time.Duration

// DefaultCachePolicy returns the default CachePolicy.
//
// DefaultCachePolicy trusts referral TTLs for zones at or above a public
// suffix (such as ".com", ".org", ".co.uk"; see https://publicsuffix.org/)
// and refuses to cache anything below that, the same bailiwick boundary the
// teacher resolver applied to its own NS-set caching.
func DefaultCachePolicy() CachePolicy {
	return defaultCachePolicy
}

func defaultCachePolicy(zone string, ttl time.Duration) time.Duration {
	if !isPublicSuffix(zone) {
		return 0
	}
	return ttl
}

func isPublicSuffix(fqdn string) bool {
	name := strings.TrimSuffix(fqdn, ".")
	s, _ := publicsuffix.PublicSuffix(name)
	return s == name
}

// ObeyResponderAdvice returns a CachePolicy that trusts every referral TTL
// verbatim, ignoring bailiwick. Useful against a trusted or test-local
// server set where every zone's delegation is already known-good.
func ObeyResponderAdvice() CachePolicy {
	return func(_ string, ttl time.Duration) time.Duration { return ttl }
}
