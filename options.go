package resolver

import (
	"context"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/netreach/resolver/hostsfile"
)

// AddressType selects which address families a resolve is willing to
// return and in what order of preference (spec §4.7 resolvedAddressTypes).
type AddressType int

const (
	// IPv4Only returns only A records.
	IPv4Only AddressType = iota
	// IPv4Preferred tries A first, falling back to AAAA.
	IPv4Preferred
	// IPv6Only returns only AAAA records.
	IPv6Only
	// IPv6Preferred tries AAAA first, falling back to A.
	IPv6Preferred
)

func (t AddressType) families() []addressFamily {
	switch t {
	case IPv4Only:
		return []addressFamily{familyIPv4}
	case IPv6Only:
		return []addressFamily{familyIPv6}
	case IPv6Preferred:
		return []addressFamily{familyIPv6, familyIPv4}
	default: // IPv4Preferred
		return []addressFamily{familyIPv4, familyIPv6}
	}
}

func (t AddressType) preferred() addressFamily {
	return t.families()[0]
}

// NameServerStreamProvider supplies the initial candidate name servers for
// a resolve (spec §1 "the resolver receives a NameServerStreamProvider
// injected by its builder"). Process-wide discovery of these servers is
// explicitly out of the Resolver's own scope; see SystemNameServerProvider
// for an optional OS-backed implementation.
type NameServerStreamProvider interface {
	NameServers(ctx context.Context) ([]net.Addr, error)
}

type staticProvider []net.Addr

func (p staticProvider) NameServers(context.Context) ([]net.Addr, error) {
	return []net.Addr(p), nil
}

// StaticNameServers returns a NameServerStreamProvider that always yields
// the same fixed address list.
func StaticNameServers(addrs []net.Addr) NameServerStreamProvider {
	return staticProvider(addrs)
}

// Builder configures and constructs a Resolver (spec §4.7). Use
// NewBuilder, chain the With* methods, and call Build.
type Builder struct {
	nsProvider  NameServerStreamProvider
	zoneServers map[string][]net.Addr

	queryTimeout                  time.Duration
	maxQueriesPerResolve          int
	maxPayloadSize                int
	resolvedAddressTypes          AddressType
	recursionDesired              bool
	optResourceEnabled            bool
	searchDomains                 []string
	ndots                         int
	decodeIdn                     bool
	completeOncePreferredResolved bool
	supportsTCPFallback           bool
	tcpDialer                     TCPDialerFunc

	minTTL, maxTTL, negativeTTL time.Duration
	nsMinTTL, nsMaxTTL          time.Duration

	observer      LifecycleObserver
	hostsFile     hostsfile.Resolver
	timeoutPolicy TimeoutPolicy
	cachePolicy   CachePolicy
	traceEnabled  bool
	port          int
}

// NewBuilder returns a Builder pre-populated with spec §4.7's defaults.
func NewBuilder(nsProvider NameServerStreamProvider) *Builder {
	return &Builder{
		nsProvider:                    nsProvider,
		zoneServers:                   make(map[string][]net.Addr),
		queryTimeout:                  5000 * time.Millisecond,
		maxQueriesPerResolve:          8,
		maxPayloadSize:                4096,
		resolvedAddressTypes:          IPv4Preferred,
		recursionDesired:              true,
		optResourceEnabled:            true,
		ndots:                         1,
		decodeIdn:                     true,
		completeOncePreferredResolved: false,
		supportsTCPFallback:           true,
		tcpDialer:                     defaultTCPDialer,
		minTTL:                        0,
		maxTTL:                        0,
		negativeTTL:                   30 * time.Second,
		nsMinTTL:                      0,
		nsMaxTTL:                      0,
		observer:                      NoopObserver{},
		timeoutPolicy:                 DefaultTimeoutPolicy(),
		cachePolicy:                   DefaultCachePolicy(),
		port:                          53,
	}
}

// WithZoneServer pins the name servers consulted for a specific zone,
// overriding both the injected provider and any AuthoritativeNsCache entry
// for that zone — generalizing the teacher resolver's own WithZoneServer,
// used heavily by its test harness to point at fake servers.
func (b *Builder) WithZoneServer(zone string, addrs ...net.Addr) *Builder {
	b.zoneServers[dottedLower(zone)] = addrs
	return b
}

func (b *Builder) WithQueryTimeout(d time.Duration) *Builder {
	b.queryTimeout = d
	return b
}

func (b *Builder) WithMaxQueriesPerResolve(n int) *Builder {
	b.maxQueriesPerResolve = n
	return b
}

func (b *Builder) WithMaxPayloadSize(n int) *Builder {
	b.maxPayloadSize = n
	return b
}

func (b *Builder) WithResolvedAddressTypes(t AddressType) *Builder {
	b.resolvedAddressTypes = t
	return b
}

func (b *Builder) WithRecursionDesired(v bool) *Builder {
	b.recursionDesired = v
	return b
}

func (b *Builder) WithOptResourceEnabled(v bool) *Builder {
	b.optResourceEnabled = v
	return b
}

func (b *Builder) WithSearchDomains(domains []string, ndots int) *Builder {
	b.searchDomains = domains
	b.ndots = ndots
	return b
}

func (b *Builder) WithDecodeIdn(v bool) *Builder {
	b.decodeIdn = v
	return b
}

func (b *Builder) WithCompleteOncePreferredResolved(v bool) *Builder {
	b.completeOncePreferredResolved = v
	return b
}

func (b *Builder) WithTCPFallback(enabled bool, dialer TCPDialerFunc) *Builder {
	b.supportsTCPFallback = enabled
	if dialer != nil {
		b.tcpDialer = dialer
	}
	return b
}

func (b *Builder) WithCacheTTLs(minTTL, maxTTL, negativeTTL time.Duration) *Builder {
	b.minTTL, b.maxTTL, b.negativeTTL = minTTL, maxTTL, negativeTTL
	return b
}

func (b *Builder) WithNsCacheTTLs(minTTL, maxTTL time.Duration) *Builder {
	b.nsMinTTL, b.nsMaxTTL = minTTL, maxTTL
	return b
}

func (b *Builder) WithObserver(o LifecycleObserver) *Builder {
	if o != nil {
		b.observer = o
	}
	return b
}

func (b *Builder) WithHostsFile(h hostsfile.Resolver) *Builder {
	b.hostsFile = h
	return b
}

func (b *Builder) WithTimeoutPolicy(p TimeoutPolicy) *Builder {
	if p != nil {
		b.timeoutPolicy = p
	}
	return b
}

func (b *Builder) WithCachePolicy(p CachePolicy) *Builder {
	if p != nil {
		b.cachePolicy = p
	}
	return b
}

func (b *Builder) WithTrace(enabled bool) *Builder {
	b.traceEnabled = enabled
	return b
}

func (b *Builder) WithPort(port int) *Builder {
	b.port = port
	return b
}

func dottedLower(s string) string {
	return dns.CanonicalName(s)
}
