package resolver

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAllPlainA(t *testing.T) {
	lab := NewLab(t, map[string]string{
		"example.test.": `
@          300  IN  A  192.0.2.1
www        300  IN  A  192.0.2.2
		`,
	})

	r, err := lab.Builder().Build()
	require.NoError(t, err)
	defer r.Close()

	ips, err := r.ResolveAll(context.Background(), "www.example.test.", nil)
	require.NoError(t, err)
	require.Len(t, ips, 1)
	assert.Equal(t, "192.0.2.2", ips[0].String())
}

func TestResolveAllChasesCNAME(t *testing.T) {
	lab := NewLab(t, map[string]string{
		"example.test.": `
@          300  IN  A      192.0.2.1
alias      300  IN  CNAME  target.example.test.
target     300  IN  A      192.0.2.9
		`,
	})

	// Both families walk root -> TLD -> zone for the alias and TLD -> zone
	// for the target, all against one shared budget: up to 10 queries.
	r, err := lab.Builder().WithMaxQueriesPerResolve(16).Build()
	require.NoError(t, err)
	defer r.Close()

	ips, err := r.ResolveAll(context.Background(), "alias.example.test.", nil)
	require.NoError(t, err)
	require.Len(t, ips, 1)
	assert.Equal(t, "192.0.2.9", ips[0].String())
}

func TestResolveAllNegativeCachingIssuesNoFurtherQueries(t *testing.T) {
	lab := NewLab(t, map[string]string{
		"example.test.": `
@  300  IN  A  192.0.2.1
		`,
	})

	r, err := lab.Builder().WithCacheTTLs(0, 0, time.Minute).Build()
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ResolveAll(context.Background(), "ghost.example.test.", nil)
	require.ErrorIs(t, err, ErrUnknownHost)

	// Second resolve within negativeTtl should be answered purely from cache:
	// shut down every authoritative server first, so any network query would
	// have no one to answer it and the resolve would hang/time out.
	lab.RootServer.Shutdown()
	lab.TLDServer.Shutdown()
	for _, zs := range lab.ZoneServers {
		zs.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err = r.ResolveAll(ctx, "ghost.example.test.", nil)
	require.ErrorIs(t, err, ErrUnknownHost)
}

func TestQueryIDDemuxConcurrentResolves(t *testing.T) {
	lab := NewLab(t, map[string]string{
		"example.test.": `
one  300  IN  A  192.0.2.11
two  300  IN  A  192.0.2.22
		`,
	})

	r, err := lab.Builder().Build()
	require.NoError(t, err)
	defer r.Close()

	type result struct {
		ip  net.IP
		err error
	}
	oneCh := make(chan result, 1)
	twoCh := make(chan result, 1)

	go func() {
		ip, err := r.Resolve(context.Background(), "one.example.test.", nil)
		oneCh <- result{ip, err}
	}()
	go func() {
		ip, err := r.Resolve(context.Background(), "two.example.test.", nil)
		twoCh <- result{ip, err}
	}()

	one := <-oneCh
	two := <-twoCh

	require.NoError(t, one.err)
	require.NoError(t, two.err)
	assert.Equal(t, "192.0.2.11", one.ip.String())
	assert.Equal(t, "192.0.2.22", two.ip.String())
}

// alwaysServfail is a dns.Handler that always answers SERVFAIL, used to
// exercise maxQueriesPerResolve exhaustion without a referral chain.
type alwaysServfail struct {
	queries int32
}

func (h *alwaysServfail) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	atomic.AddInt32(&h.queries, 1)
	m := new(dns.Msg)
	m.SetRcode(req, dns.RcodeServerFailure)
	w.WriteMsg(m)
}

func TestResolveBudgetExhaustion(t *testing.T) {
	handler := &alwaysServfail{}
	ln, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &dns.Server{PacketConn: ln, Handler: handler}
	go srv.ActivateAndServe()
	defer srv.Shutdown()

	addr := ln.LocalAddr().(*net.UDPAddr)

	r, err := NewBuilder(StaticNameServers([]net.Addr{addr})).
		WithMaxQueriesPerResolve(2).
		WithQueryTimeout(2 * time.Second).
		Build()
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ResolveAll(context.Background(), "example.test.", nil)
	require.ErrorIs(t, err, ErrSearchBudgetExceeded)
	assert.Equal(t, int32(2), atomic.LoadInt32(&handler.queries))
}

func TestResolveAllRecordsReferralChain(t *testing.T) {
	lab := NewLab(t, map[string]string{
		"example.test.": `
@    300  IN  A  192.0.2.50
		`,
	})

	r, err := lab.Builder().Build()
	require.NoError(t, err)
	defer r.Close()

	q := dns.Question{Name: dns.Fqdn("example.test."), Qtype: dns.TypeA, Qclass: dns.ClassINET}
	records, err := r.ResolveAllRecords(context.Background(), q, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)

	a, ok := records[0].(*dns.A)
	require.True(t, ok)
	assert.Equal(t, "192.0.2.50", a.A.String())
}

func TestResolvePTR(t *testing.T) {
	srv := NewTestServer(t, "127.0.0.60", `
1.2.0.192.in-addr.arpa.  300  IN  PTR  host.example.test.
	`)

	r, err := NewBuilder(StaticNameServers(nil)).
		WithZoneServer("in-addr.arpa.", &net.UDPAddr{IP: net.ParseIP(srv.IP()), Port: testPort}).
		WithPort(testPort).
		Build()
	require.NoError(t, err)
	defer r.Close()

	name, err := r.ResolvePTR(context.Background(), net.ParseIP("192.0.2.1"))
	require.NoError(t, err)
	assert.Equal(t, "host.example.test", name)
}

func TestQueryAdditionalsVaryCacheKey(t *testing.T) {
	lab := NewLab(t, map[string]string{
		"example.test.": `
@  300  IN  A  192.0.2.1
		`,
	})

	r, err := lab.Builder().Build()
	require.NoError(t, err)
	defer r.Close()

	q := dns.Question{Name: dns.Fqdn("example.test."), Qtype: dns.TypeA, Qclass: dns.ClassINET}
	opt := &dns.OPT{Hdr: dns.RR_Header{Name: ".", Rrtype: dns.TypeOPT}}

	plain, err := r.ResolveAllRecords(context.Background(), q, nil)
	require.NoError(t, err)
	require.Len(t, plain, 1)

	withAdditional, err := r.ResolveAllRecords(context.Background(), q, []dns.RR{opt})
	require.NoError(t, err)
	require.Len(t, withAdditional, 1)
}

func TestResolveClosedResolver(t *testing.T) {
	r, err := NewBuilder(StaticNameServers(nil)).Build()
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.ResolveAll(context.Background(), "example.test.", nil)
	assert.True(t, errors.Is(err, ErrResolverClosed))
}
