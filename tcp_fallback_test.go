package resolver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueryContext(t *testing.T, server string, r *Resolver) *queryContext {
	msg := new(dns.Msg)
	q := dns.Question{Name: "example.test.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	msg.Question = []dns.Question{q}
	msg.Id = 42

	return &queryContext{
		id:       42,
		server:   server,
		question: q,
		msg:      msg,
		promise:  newFuture[*Envelope](),
		observer: NoopObserver{},
		timer:    time.AfterFunc(time.Hour, func() {}),
		r:        r,
	}
}

func TestTCPFallbackSucceeds(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		dc := &dns.Conn{Conn: conn}
		req, err := dc.ReadMsg()
		if err != nil {
			return
		}

		resp := new(dns.Msg)
		resp.SetReply(req)
		resp.Answer = []dns.RR{A(t, "example.test.", 300, "192.0.2.77")}
		dc.WriteMsg(resp)
	}()

	r := &Resolver{queryTimeout: 2 * time.Second, tcpDialer: defaultTCPDialer, qcm: newQueryContextManager()}
	qc := newTestQueryContext(t, ln.Addr().String(), r)

	truncated := &Envelope{Payload: &dns.Msg{MsgHdr: dns.MsgHdr{Truncated: true}}}

	r.tcpFallback(qc, truncated)

	env, err := qc.promise.wait(context.Background())
	require.NoError(t, err)
	require.Len(t, env.Payload.Answer, 1)
	assert.Equal(t, "192.0.2.77", env.Payload.Answer[0].(*dns.A).A.String())
}

func TestTCPFallbackFallsBackToTruncatedOnDialFailure(t *testing.T) {
	r := &Resolver{queryTimeout: 100 * time.Millisecond, tcpDialer: defaultTCPDialer, qcm: newQueryContextManager()}
	// Nothing listens here: the dial should fail fast.
	qc := newTestQueryContext(t, "127.0.0.1:1", r)

	truncated := &Envelope{Payload: &dns.Msg{MsgHdr: dns.MsgHdr{Truncated: true}}}

	r.tcpFallback(qc, truncated)

	env, err := qc.promise.wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, truncated, env)
}
