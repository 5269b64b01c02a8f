package resolver

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"

	"github.com/netreach/resolver/cache"
	"github.com/netreach/resolver/hostsfile"
)

// Resolver is the stub-resolver façade (spec §2 C7): it owns the three
// caches, the shared UDP socket, the query-context manager, and the
// builder-configured policy, and exposes Resolve/ResolveAll/Query/Close.
//
// Concurrent calls to all methods are safe.
type Resolver struct {
	udpConn *net.UDPConn
	qcm     *queryContextManager

	answerCache *cache.AnswerCache
	cnameCache  *cache.CnameCache
	nsCache     *cache.NsCache

	nsProvider  NameServerStreamProvider
	zoneServers map[string][]net.Addr
	hostsFile   hostsfile.Resolver

	observer LifecycleObserver

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
	tcpDialer                     TCPDialerFunc
	timeoutPolicy                 TimeoutPolicy
	cachePolicy                   CachePolicy
	traceEnabled                  bool
	port                          int

	closed    int32
	closeOnce sync.Once

	rrMu  sync.Mutex
	rrIdx int
}

// Build constructs a Resolver from b, opening the shared UDP socket and
// starting its read loop.
func (b *Builder) Build() (*Resolver, error) {
	if b.nsProvider == nil {
		return nil, fmt.Errorf("resolver: NewBuilder requires a NameServerStreamProvider")
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportError, err)
	}

	var tcpDialer TCPDialerFunc
	if b.supportsTCPFallback {
		tcpDialer = b.tcpDialer
	}

	r := &Resolver{
		udpConn:                       conn,
		qcm:                           newQueryContextManager(),
		answerCache:                   cache.NewAnswerCache(b.minTTL, b.maxTTL, b.negativeTTL),
		cnameCache:                    cache.NewCnameCache(b.minTTL, b.maxTTL),
		nsCache:                       cache.NewNsCache(b.nsMinTTL, b.nsMaxTTL),
		nsProvider:                    b.nsProvider,
		zoneServers:                   b.zoneServers,
		hostsFile:                     b.hostsFile,
		observer:                      b.observer,
		queryTimeout:                  b.queryTimeout,
		maxQueriesPerResolve:          b.maxQueriesPerResolve,
		maxPayloadSize:                b.maxPayloadSize,
		resolvedAddressTypes:          b.resolvedAddressTypes,
		recursionDesired:              b.recursionDesired,
		optResourceEnabled:            b.optResourceEnabled,
		searchDomains:                 b.searchDomains,
		ndots:                         b.ndots,
		decodeIdn:                     b.decodeIdn,
		completeOncePreferredResolved: b.completeOncePreferredResolved,
		tcpDialer:                     tcpDialer,
		timeoutPolicy:                 b.timeoutPolicy,
		cachePolicy:                   b.cachePolicy,
		traceEnabled:                  b.traceEnabled,
		port:                          b.port,
	}

	go r.readLoop()

	return r, nil
}

// Resolve returns the first address for name in the preferred family (spec
// §4.7 "resolve(name, additionals?) -> Future<IPAddress>"). additionals may
// be nil.
func (r *Resolver) Resolve(ctx context.Context, name string, additionals []dns.RR) (net.IP, error) {
	ips, err := r.ResolveAll(ctx, name, additionals)
	if err != nil {
		return nil, err
	}
	return ips[0], nil
}

// ResolveAll returns every address for name across every enabled family,
// ordered by family preference then answer order (spec §4.7 "resolveAll
// (name, additionals?)"). additionals is attached to every query this
// resolve issues and folds into the AnswerCache key; it may be nil.
func (r *Resolver) ResolveAll(ctx context.Context, name string, additionals []dns.RR) ([]net.IP, error) {
	if r.isClosed() {
		return nil, ErrResolverClosed
	}

	if name == "" {
		return []net.IP{r.loopbackAddress()}, nil
	}
	if ip := net.ParseIP(name); ip != nil {
		return []net.IP{ip}, nil
	}

	actx := r.newAddressResolveContext(name, additionals)
	return actx.resolveAll(ctx)
}

// ResolveAllRecords returns every record answering q, going through the same
// cache/CNAME/referral machinery as ResolveAll but for an arbitrary record
// type (spec §6 "resolveAll(question, additionals?) -> Future<[Record]>").
// additionals may be nil.
func (r *Resolver) ResolveAllRecords(ctx context.Context, q dns.Question, additionals []dns.RR) ([]dns.RR, error) {
	if r.isClosed() {
		return nil, ErrResolverClosed
	}

	rctx := r.newRecordResolveContext(q, additionals)
	records, _, err := rctx.resolve(ctx)
	if err == nil && r.decodeIdn {
		records = decodeRecordNames(records)
	}
	return records, err
}

// Query issues a single raw question against one name server, bypassing
// caches and CNAME chasing (spec §6 "query(question, additionals?, server?)
// -> Future<Envelope<Response>>"). additionals may be nil. server overrides
// the destination; if nil, one is chosen round-robin from the injected
// NameServerStreamProvider.
func (r *Resolver) Query(ctx context.Context, q dns.Question, additionals []dns.RR, server net.Addr) (*Envelope, error) {
	if r.isClosed() {
		return nil, ErrResolverClosed
	}

	if server == nil {
		servers, err := r.nsProvider.NameServers(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransportError, err)
		}
		if len(servers) == 0 {
			return nil, fmt.Errorf("%w: no name servers available", ErrTransportError)
		}
		server = servers[r.nextRoundRobin(len(servers))]
	}

	qc, err := r.startQuery(server, q, additionals, r.observer)
	if err != nil {
		return nil, err
	}
	return qc.promise.wait(ctx)
}

// ResolvePTR resolves the reverse-DNS hostname for ip (spec §6's PTR record
// support), going through the same cache/referral machinery as
// ResolveAllRecords via the in-addr.arpa/ip6.arpa name arpaName builds.
func (r *Resolver) ResolvePTR(ctx context.Context, ip net.IP) (string, error) {
	if ip == nil || (ip.To4() == nil && ip.To16() == nil) {
		return "", fmt.Errorf("%w: invalid IP address", ErrUnknownHost)
	}
	q := dns.Question{Name: arpaName(ip), Qtype: dns.TypePTR, Qclass: dns.ClassINET}
	records, err := r.ResolveAllRecords(ctx, q, nil)
	if err != nil {
		return "", err
	}
	for _, rr := range records {
		if ptr, ok := rr.(*dns.PTR); ok {
			return trimTrailingDot(ptr.Ptr), nil
		}
	}
	return "", ErrUnknownHost
}

// Close closes the shared UDP socket and clears every cache, matching the
// spec's "close() closes the UDP socket; its close-future triggers clear()
// on all three caches" (§5).
func (r *Resolver) Close() error {
	var err error
	r.closeOnce.Do(func() {
		atomic.StoreInt32(&r.closed, 1)
		err = r.udpConn.Close()
		r.answerCache.Clear()
		r.cnameCache.Clear()
		r.nsCache.Clear()
	})
	return err
}

func (r *Resolver) isClosed() bool {
	return atomic.LoadInt32(&r.closed) == 1
}

func (r *Resolver) nextRoundRobin(n int) int {
	r.rrMu.Lock()
	defer r.rrMu.Unlock()
	i := r.rrIdx % n
	r.rrIdx++
	return i
}

func (r *Resolver) loopbackAddress() net.IP {
	if r.resolvedAddressTypes.preferred() == familyIPv6 {
		return net.IPv6loopback
	}
	return net.IPv4(127, 0, 0, 1)
}

// readLoop is the resolver's single reader of the shared UDP socket: it
// decodes each datagram, matches it to a queryContext via the manager, and
// hands it off. Unmatched or malformed datagrams are dropped (spec §4.1
// "logged at debug... not surfaced to any user").
func (r *Resolver) readLoop() {
	buf := make([]byte, 65535)
	for {
		n, addr, err := r.udpConn.ReadFrom(buf)
		if err != nil {
			return // socket closed
		}

		msg := new(dns.Msg)
		if err := msg.Unpack(buf[:n]); err != nil {
			continue // ErrDecode: drop and keep listening
		}

		qc, ok := r.qcm.get(addr.String(), msg.Id)
		if !ok {
			continue
		}

		qc.finish(&Envelope{Sender: addr, Recipient: r.udpConn.LocalAddr(), Payload: msg})
	}
}

// candidateNames expands name per the search-domain/ndots rule (spec §4.7
// "Search-domain expansion"): names with >= ndots dots are tried absolute
// first then suffixed, otherwise suffixed forms come first and the
// absolute name last.
func (r *Resolver) candidateNames(name string) []string {
	fq := dns.Fqdn(name)
	if len(r.searchDomains) == 0 {
		return []string{fq}
	}

	dots := strings.Count(strings.TrimSuffix(name, "."), ".")

	var suffixed []string
	for _, domain := range r.searchDomains {
		suffixed = append(suffixed, dns.Fqdn(strings.TrimSuffix(name, ".")+"."+strings.TrimSuffix(domain, ".")))
	}

	if dots >= r.ndots {
		return append([]string{fq}, suffixed...)
	}
	return append(suffixed, fq)
}

// serversFor returns the candidate server addresses for zone: an explicit
// Builder.WithZoneServer override takes precedence, then the longest
// matching AuthoritativeNsCache entry, falling back to the injected
// NameServerStreamProvider.
func (r *Resolver) serversFor(ctx context.Context, zone string) ([]net.Addr, error) {
	if addrs, ok := r.zoneServerLookup(zone); ok {
		return addrs, nil
	}

	if servers, ok := r.longestZoneMatch(zone); ok {
		return stringsToAddrs(servers, r.port), nil
	}

	return r.nsProvider.NameServers(ctx)
}

// zoneServerLookup finds a Builder.WithZoneServer override for the longest
// suffix of zone that has one.
func (r *Resolver) zoneServerLookup(zone string) ([]net.Addr, bool) {
	labels := dns.SplitDomainName(zone)
	for i := 0; i <= len(labels); i++ {
		candidate := dns.Fqdn(strings.Join(labels[i:], "."))
		if addrs, ok := r.zoneServers[candidate]; ok {
			return addrs, true
		}
	}
	return nil, false
}

// longestZoneMatch finds the AuthoritativeNsCache entry for the longest
// suffix of zone that has one.
func (r *Resolver) longestZoneMatch(zone string) ([]string, bool) {
	labels := dns.SplitDomainName(zone)
	for i := 0; i <= len(labels); i++ {
		candidate := dns.Fqdn(strings.Join(labels[i:], "."))
		if servers, ok := r.nsCache.Lookup(candidate); ok {
			return servers, true
		}
	}
	return nil, false
}

func stringsToAddrs(servers []string, port int) []net.Addr {
	var addrs []net.Addr
	for _, s := range servers {
		host, portStr, err := net.SplitHostPort(s)
		if err != nil {
			host = s
			portStr = strconv.Itoa(port)
		}
		udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, portStr))
		if err != nil {
			continue
		}
		addrs = append(addrs, udpAddr)
	}
	return addrs
}

// resolveNSTargets resolves bare NS target names (no glue available) to
// addresses, sharing budget's remaining-query count with the outer resolve
// so the combined query count still honors maxQueriesPerResolve (spec §4.5
// "recursively resolve each (bounded by maxQueriesPerResolve overall)").
func (r *Resolver) resolveNSTargets(ctx context.Context, names []string, budget *queryBudget) []net.Addr {
	var addrs []net.Addr
	for _, name := range names {
		if budget.remaining() <= 0 {
			break
		}
		actx := r.newAddressResolveContext(name, nil)
		actx.budget = budget
		ips, err := actx.resolveAll(ctx)
		if err != nil {
			continue
		}
		for _, ip := range ips {
			addrs = append(addrs, &net.UDPAddr{IP: ip, Port: r.port})
		}
	}
	return addrs
}
