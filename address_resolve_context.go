package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"

	"github.com/netreach/resolver/hostsfile"
)

// addressResolveContext specializes recordResolveContext for the A/AAAA
// case (spec §4.6 C6): CNAME chasing, dual-stack merge, hosts-file
// short-circuit, and family filtering.
type addressResolveContext struct {
	r           *Resolver
	name        string
	additionals []dns.RR
	budget      *queryBudget
}

func (r *Resolver) newAddressResolveContext(name string, additionals []dns.RR) *addressResolveContext {
	return &addressResolveContext{
		r:           r,
		name:        name,
		additionals: additionals,
		budget:      newQueryBudget(r.maxQueriesPerResolve),
	}
}

// resolveAll implements spec §4.6: the hosts-file short-circuit, then
// search-domain expansion, then per-family resolution with CNAME chasing
// and dual-stack policy.
func (c *addressResolveContext) resolveAll(ctx context.Context) ([]net.IP, error) {
	if c.r.hostsFile != nil {
		if ips := c.lookupHosts(); len(ips) > 0 {
			return ips, nil
		}
	}

	var lastErr error
	for _, candidate := range c.r.candidateNames(c.name) {
		ips, err := c.resolveCandidate(ctx, candidate)
		if err == nil {
			return ips, nil
		}
		lastErr = err
		if errors.Is(err, ErrSearchBudgetExceeded) || errors.Is(err, ErrResolverClosed) {
			return nil, err
		}
		// spec §4.7 "An NXDOMAIN on one expansion advances to the next" —
		// any other terminal cause also advances, since there is no
		// further distinction to make once this candidate has failed.
	}

	if lastErr == nil {
		lastErr = ErrUnknownHost
	}
	return nil, lastErr
}

func (c *addressResolveContext) lookupHosts() []net.IP {
	var out []net.IP
	for _, family := range c.r.resolvedAddressTypes.families() {
		hf := hostsfile.IPv4
		if family == familyIPv6 {
			hf = hostsfile.IPv6
		}
		out = append(out, c.r.hostsFile.Lookup(c.name, hf)...)
	}
	return out
}

// resolveCandidate chases CNAMEs for one fully-qualified candidate name and
// then resolves the terminal name in every enabled family.
func (c *addressResolveContext) resolveCandidate(ctx context.Context, name string) ([]net.IP, error) {
	cur := name
	for hops := 0; ; hops++ {
		if hops > 16 {
			return nil, ErrCnameLoop
		}

		if target, ok := c.r.cnameCache.Lookup(cur); ok {
			cur = target
			continue
		}

		target, done, ips, err := c.resolveOneHop(ctx, cur)
		if err != nil {
			return nil, err
		}
		if done {
			return ips, nil
		}
		cur = target
	}
}

// resolveOneHop resolves cur across every enabled family. If no family
// yields an address and at least one answered with a CNAME, it returns that
// CNAME's target (the last one seen, in family order) and done=false so the
// caller chases it; otherwise it returns the merged address list, or the
// first error, with done=true.
func (c *addressResolveContext) resolveOneHop(ctx context.Context, cur string) (cnameTarget string, done bool, ips []net.IP, err error) {
	families := c.r.resolvedAddressTypes.families()

	if len(families) == 1 || !c.r.completeOncePreferredResolved {
		return c.resolveConcurrent(ctx, cur, families)
	}
	return c.resolveDualStackEarly(ctx, cur, families)
}

func qtypeFor(family addressFamily) uint16 {
	if family == familyIPv6 {
		return dns.TypeAAAA
	}
	return dns.TypeA
}

type hopResult struct {
	family  addressFamily
	records []dns.RR
	cname   *dns.CNAME
	err     error
}

func (c *addressResolveContext) queryFamily(ctx context.Context, cur string, family addressFamily) hopResult {
	q := dns.Question{Name: dns.Fqdn(cur), Qtype: qtypeFor(family), Qclass: dns.ClassINET}
	rctx := c.r.newRecordResolveContext(q, c.additionals)
	rctx.budget = c.budget

	out, err := rctx.resolveFull(ctx)
	if err != nil && !errors.Is(err, ErrUnknownHost) {
		return hopResult{family: family, err: err}
	}
	if out == nil {
		return hopResult{family: family, err: err}
	}
	if out.CNAME != nil {
		c.r.cnameCache.Insert(cur, out.CNAME.Target, minTTLOf([]dns.RR{out.CNAME}))
		target := out.CNAME.Target
		if c.r.decodeIdn {
			target = decodePunycode(target)
		}
		c.r.observer.QueryCNAMEd(target)
		return hopResult{family: family, cname: out.CNAME}
	}
	return hopResult{family: family, records: out.Records, err: err}
}

// resolveConcurrent runs every enabled family's query concurrently via
// errgroup and joins all of them before returning (spec §4.6 "Family
// filtering... results are interleaved in that order"). Used whenever
// completeOncePreferredResolved is false, or only one family is enabled.
func (c *addressResolveContext) resolveConcurrent(ctx context.Context, cur string, families []addressFamily) (string, bool, []net.IP, error) {
	results := make([]hopResult, len(families))

	g, gctx := errgroup.WithContext(ctx)
	for i, family := range families {
		i, family := i, family
		g.Go(func() error {
			results[i] = c.queryFamily(gctx, cur, family)
			return nil
		})
	}
	_ = g.Wait()

	return c.mergeHopResults(cur, results)
}

// resolveDualStackEarly issues the preferred family first; once it
// answers, the resolve settles immediately while the secondary family's
// query continues in the background to warm the cache (spec §4.6
// "completeOncePreferredResolved == true... continue the secondary query
// in the background").
func (c *addressResolveContext) resolveDualStackEarly(ctx context.Context, cur string, families []addressFamily) (string, bool, []net.IP, error) {
	preferred := families[0]
	secondary := families[1]

	preferredResult := c.queryFamily(ctx, cur, preferred)

	go func() {
		c.queryFamily(context.Background(), cur, secondary)
	}()

	target, done, ips, err := c.mergeHopResults(cur, []hopResult{preferredResult})
	if err == nil {
		return target, done, ips, nil
	}

	// The preferred family failed outright (e.g. NXDOMAIN): fall back to
	// waiting on the secondary synchronously rather than returning early.
	secondaryResult := c.queryFamily(ctx, cur, secondary)
	return c.mergeHopResults(cur, []hopResult{secondaryResult})
}

func (c *addressResolveContext) mergeHopResults(cur string, results []hopResult) (string, bool, []net.IP, error) {
	var ips []net.IP
	var firstErr error
	var cnameTarget string

	for _, res := range results {
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
		if res.cname != nil {
			cnameTarget = res.cname.Target
		}
		ips = append(ips, ipsFromRecords(res.records)...)
	}

	if len(ips) > 0 {
		return "", true, ips, nil
	}
	if cnameTarget != "" {
		return cnameTarget, false, nil, nil
	}
	if firstErr != nil {
		return "", true, nil, firstErr
	}
	return "", true, nil, fmt.Errorf("%w: %s", ErrUnknownHost, cur)
}
