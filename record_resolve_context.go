package resolver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// queryBudget bounds the total number of queries a single resolve (and any
// NS-target sub-resolves it spawns) may issue (spec §3 ResolveContext
// "remaining_queries", §4.5 "bounded by maxQueriesPerResolve overall").
type queryBudget struct {
	mu   sync.Mutex
	left int
}

func newQueryBudget(n int) *queryBudget {
	return &queryBudget{left: n}
}

func (b *queryBudget) remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.left
}

// take decrements the budget and reports whether a query may proceed.
func (b *queryBudget) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.left <= 0 {
		return false
	}
	b.left--
	return true
}

// recordResolveContext is the generic iterate-servers/issue-query/
// follow-referral loop (spec §4.5 C5). AddressResolveContext specializes it
// for A/AAAA with CNAME chasing and dual-stack merge (§4.6 C6).
type recordResolveContext struct {
	r           *Resolver
	question    dns.Question
	additionals []dns.RR
	budget      *queryBudget
	observer    LifecycleObserver
	trace       *Trace

	redirectDepth int
	causes        []error
}

func (r *Resolver) newRecordResolveContext(q dns.Question, additionals []dns.RR) *recordResolveContext {
	var trace *Trace
	if r.traceEnabled {
		trace = &Trace{}
	}
	return &recordResolveContext{
		r:           r,
		question:    q,
		additionals: additionals,
		budget:      newQueryBudget(r.maxQueriesPerResolve),
		observer:    r.observer,
		trace:       trace,
	}
}

// resolveOutcome is one response to a recordResolveContext's question: at
// most one of Records and CNAME is non-empty. Callers that want CNAME
// chasing (AddressResolveContext) inspect CNAME themselves; callers that
// don't (plain ResolveAllRecords) treat a bare CNAME hit as no records.
type resolveOutcome struct {
	Records []dns.RR
	CNAME   *dns.CNAME
	Msg     *dns.Msg
}

// resolve runs the loop described in spec §4.5 and returns the outcome and
// an error if none of the tried servers ultimately answered.
func (c *recordResolveContext) resolve(ctx context.Context) ([]dns.RR, *dns.Msg, error) {
	out, err := c.resolveFull(ctx)
	if out == nil {
		return nil, nil, err
	}
	return out.Records, out.Msg, err
}

func (c *recordResolveContext) resolveFull(ctx context.Context) (*resolveOutcome, error) {
	if records, negErr, ok := c.r.answerCache.Lookup(cacheKeyFor(c.question, c.additionals)); ok {
		if negErr != nil {
			return nil, negErr
		}
		return &resolveOutcome{Records: records}, nil
	}

	addrs, err := c.r.serversFor(ctx, c.question.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportError, err)
	}
	stream := NewServerStream(addrs, c.r.resolvedAddressTypes.preferred())

	var lastMsg *dns.Msg
	triesSoFar := 0

	for {
		if c.budget.remaining() <= 0 {
			c.observer.QueryFailed(ErrSearchBudgetExceeded)
			return &resolveOutcome{Msg: lastMsg}, c.wrapCause(ErrSearchBudgetExceeded)
		}

		server := stream.Next()
		if server == nil {
			return &resolveOutcome{Msg: lastMsg}, fmt.Errorf("%w: no name servers available", ErrTransportError)
		}
		if !c.budget.take() {
			continue
		}
		triesSoFar++

		start := time.Now()
		qc, err := c.r.startQuery(server, c.question, c.additionals, c.observer)
		if err != nil {
			c.causes = append(c.causes, err)
			continue
		}

		env, err := qc.promise.wait(ctx)

		traceMsg := placeholderMsg(c.question)
		if env != nil {
			traceMsg = env.Payload
		}
		c.trace.add(&TraceNode{Server: qc.server, RTT: time.Since(start), Error: err, Message: traceMsg})

		if err != nil {
			c.causes = append(c.causes, err)
			continue // timeout/transport error: advance to next server
		}

		msg := env.Payload
		lastMsg = msg

		switch {
		case isReferral(msg):
			next, err := c.followReferral(ctx, msg)
			if err != nil {
				c.causes = append(c.causes, err)
				continue
			}
			// Nest subsequent trace nodes under the referral node just
			// recorded above, so Dump() renders the delegation chain
			// instead of a flat list (trace is nil-safe and a no-op when
			// tracing is disabled).
			c.trace.pushRoot()
			stream = next
			continue

		case msg.Rcode == dns.RcodeServerFailure:
			c.causes = append(c.causes, fmt.Errorf("%s: %w", server, ErrTransportError))
			continue

		default:
			records := matchingRecords(msg.Answer, c.question)
			if len(records) > 0 {
				ttl := minTTLOf(records)
				c.r.answerCache.InsertPositive(cacheKeyFor(c.question, c.additionals), records, ttl)
				c.observer.QuerySucceed()
				return &resolveOutcome{Records: records, Msg: msg}, nil
			}

			if cname, ok := firstCNAME(msg.Answer, c.question.Name); ok {
				return &resolveOutcome{CNAME: cname, Msg: msg}, nil
			}

			// NXDOMAIN or an empty, non-referral answer: this name is
			// exhausted on this server set (spec §4.5 "NXDOMAIN / empty
			// answer").
			c.r.answerCache.InsertNegative(cacheKeyFor(c.question, c.additionals), ErrUnknownHost)
			c.observer.QueryNoAnswer(msg.Rcode)
			return &resolveOutcome{Msg: msg}, ErrUnknownHost
		}
	}
}

// followReferral builds the child ServerStream for a referral response,
// resolving bare NS target names (no glue) against the same budget as the
// outer resolve.
func (c *recordResolveContext) followReferral(ctx context.Context, msg *dns.Msg) (*ServerStream, error) {
	c.redirectDepth++
	if c.redirectDepth > 16 {
		return nil, ErrRedirectLoop
	}

	glued, bare := referralAddrs(msg, c.r.port)
	addrs := addrsFromStrings(glued)
	if len(bare) > 0 {
		addrs = append(addrs, c.r.resolveNSTargets(ctx, bare, c.budget)...)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: referral with no usable NS targets", ErrTransportError)
	}

	zone := ""
	if len(msg.Ns) > 0 {
		zone = msg.Ns[0].Header().Name
	}
	ttl := c.r.cachePolicy(zone, referralTTL(msg))
	c.r.nsCache.Insert(zone, append(append([]string{}, glued...), bare...), ttl)

	c.observer.QueryRedirected(addrStrings(addrs))

	return NewServerStream(addrs, c.r.resolvedAddressTypes.preferred()), nil
}

func (c *recordResolveContext) wrapCause(base error) error {
	if len(c.causes) == 0 {
		return base
	}
	return fmt.Errorf("%w: last cause: %v", base, c.causes[len(c.causes)-1])
}

func addrsFromStrings(addrs []string) []net.Addr {
	var out []net.Addr
	for _, a := range addrs {
		udpAddr, err := net.ResolveUDPAddr("udp", a)
		if err != nil {
			continue
		}
		out = append(out, udpAddr)
	}
	return out
}

func addrStrings(addrs []net.Addr) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}

// placeholderMsg gives trace nodes a non-nil Message to render a question
// line from even when the query itself failed before a response arrived.
func placeholderMsg(q dns.Question) *dns.Msg {
	m := new(dns.Msg)
	m.Question = []dns.Question{q}
	return m
}
