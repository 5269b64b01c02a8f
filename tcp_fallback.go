package resolver

import (
	"net"
	"time"

	"github.com/miekg/dns"
)

// TCPDialerFunc opens a stream socket to a DNS server for TCP fallback. It
// is the builder-injected seam spec §1 carves out for the underlying
// stream transport.
type TCPDialerFunc func(network, address string, timeout time.Duration) (net.Conn, error)

func defaultTCPDialer(network, address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(network, address, timeout)
}

// tcpFallback implements C8: on TC=1 it opens a one-shot TCP connection to
// the same server, reissues qc's question, and settles qc's promise with
// whichever response arrives first — the TCP answer on success, or the
// original truncated UDP envelope if anything about the TCP attempt fails
// (spec §4.8, state machine Connecting -> Sending -> Receiving -> Done;
// Done always closes the socket).
func (r *Resolver) tcpFallback(qc *queryContext, truncated *Envelope) {
	qc.timer.Stop()
	qc.r.qcm.remove(qc.server, qc.id)

	settleTruncated := func() {
		if qc.promise.trySuccess(truncated) {
			qc.observer.QueryNoAnswer(truncated.Payload.Rcode)
		}
	}

	rawConn, err := r.tcpDialer("tcp", qc.server, r.queryTimeout)
	if err != nil {
		settleTruncated()
		return
	}
	conn := &dns.Conn{Conn: rawConn}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(r.queryTimeout))
	if err := conn.WriteMsg(qc.msg); err != nil {
		settleTruncated()
		return
	}

	conn.SetReadDeadline(time.Now().Add(r.queryTimeout))
	resp, err := conn.ReadMsg()
	if err != nil || resp == nil {
		settleTruncated()
		return
	}

	env := &Envelope{Sender: rawConn.RemoteAddr(), Recipient: rawConn.LocalAddr(), Payload: resp}
	if qc.promise.trySuccess(env) {
		if len(resp.Answer) > 0 {
			qc.observer.QuerySucceed()
		} else {
			qc.observer.QueryNoAnswer(resp.Rcode)
		}
	}
}
