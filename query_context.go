package resolver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// future is the completable-future capability from spec §9: trySuccess and
// tryFailure each return false on a second call instead of panicking, and
// wait blocks until settlement or ctx cancellation.
type future[T any] struct {
	mu   sync.Mutex
	done bool
	val  T
	err  error
	ch   chan struct{}
}

func newFuture[T any]() *future[T] {
	return &future[T]{ch: make(chan struct{})}
}

func (f *future[T]) trySuccess(v T) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return false
	}
	f.val = v
	f.done = true
	close(f.ch)
	return true
}

func (f *future[T]) tryFailure(err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return false
	}
	f.err = err
	f.done = true
	close(f.ch)
	return true
}

func (f *future[T]) isDone() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// wait blocks until the future settles or ctx is done, whichever is first.
func (f *future[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-f.ch:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// queryContext is a single outstanding question against one server (spec
// §3 QueryContext, §4.2 C2). It moves Pending -> {Finished, TimedOut,
// Cancelled} exactly once; the manager's single-shot get() and this type's
// own cancel()/fire-timeout path cooperate so exactly one of those three
// outcomes happens.
type queryContext struct {
	id          uint16
	server      string // net.Addr.String() of the destination
	question    dns.Question
	additionals []dns.RR
	msg         *dns.Msg

	promise  *future[*Envelope]
	deadline time.Time
	timer    *time.Timer
	observer LifecycleObserver

	r *Resolver
}

// startQuery allocates an ID, encodes q plus additionals (and an OPT record
// when enabled), writes it to server over the shared UDP socket, and arms
// the timeout timer. It returns immediately; the caller awaits qc.promise.
func (r *Resolver) startQuery(server net.Addr, q dns.Question, additionals []dns.RR, observer LifecycleObserver) (*queryContext, error) {
	if observer == nil {
		observer = NoopObserver{}
	}

	msg := new(dns.Msg)
	msg.Question = []dns.Question{q}
	msg.RecursionDesired = r.recursionDesired
	if len(additionals) > 0 {
		msg.Extra = append(msg.Extra, additionals...)
	}
	if r.optResourceEnabled {
		msg.SetEdns0(uint16(r.maxPayloadSize), false)
	}

	qc := &queryContext{
		server:      server.String(),
		question:    q,
		additionals: additionals,
		msg:         msg,
		promise:     newFuture[*Envelope](),
		observer:    observer,
		r:           r,
	}

	id, err := r.qcm.add(qc.server, qc)
	if err != nil {
		return nil, err
	}
	qc.id = id
	msg.Id = id

	packed, err := msg.Pack()
	if err != nil {
		r.qcm.remove(qc.server, id)
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", qc.server)
	if err != nil {
		r.qcm.remove(qc.server, id)
		return nil, fmt.Errorf("%w: %v", ErrTransportError, err)
	}

	if _, err := r.udpConn.WriteTo(packed, udpAddr); err != nil {
		r.qcm.remove(qc.server, id)
		return nil, fmt.Errorf("%w: %v", ErrTransportError, err)
	}

	timeout := r.queryTimeout
	if r.timeoutPolicy != nil {
		if policyTimeout := r.timeoutPolicy(q.Qtype, q.Name, qc.server); policyTimeout > 0 {
			timeout = policyTimeout
		}
	}
	qc.deadline = time.Now().Add(timeout)
	qc.timer = time.AfterFunc(timeout, qc.fireTimeout)
	observer.QueryWritten(udpAddr, id)

	return qc, nil
}

// fireTimeout runs on the timer goroutine: it removes itself from the
// manager (a late response is then dropped as unmatched) and fails the
// promise. If finish() already won the race, tryFailure is a no-op.
func (qc *queryContext) fireTimeout() {
	qc.r.qcm.remove(qc.server, qc.id)
	if qc.promise.tryFailure(ErrTimeout) {
		qc.observer.QueryFailed(ErrTimeout)
	}
}

// finish is invoked by the resolver's read loop once a response has been
// matched to this context via the manager's single-shot get(). It verifies
// the opcode and question before accepting the response as this query's
// answer. On mismatch the packet is dropped; because get() has already
// released the ID, no later response can reach this context, and it settles
// only through its timeout.
func (qc *queryContext) finish(env *Envelope) {
	resp := env.Payload
	if resp.Opcode != dns.OpcodeQuery || len(resp.Question) != 1 || !questionMatches(resp.Question[0], qc.question) {
		return
	}

	if resp.Truncated && qc.r.tcpDialer != nil {
		// Run out-of-line: tcpFallback blocks on its own dial/write/read,
		// and this method executes on the resolver's single UDP read loop.
		// qc.promise's single-settle guarantee is what makes that safe.
		go qc.r.tcpFallback(qc, env)
		return
	}

	qc.timer.Stop()
	if qc.promise.trySuccess(env) {
		switch resp.Rcode {
		case dns.RcodeSuccess:
			if len(resp.Answer) > 0 {
				qc.observer.QuerySucceed()
			} else {
				qc.observer.QueryNoAnswer(resp.Rcode)
			}
		default:
			qc.observer.QueryNoAnswer(resp.Rcode)
		}
	}
}

// cancel fails the promise without ever having received a response,
// releasing the ID slot synchronously. Nothing in this package calls it: a
// resolve waits for each query to settle before trying another server or
// following a referral.
func (qc *queryContext) cancel(triesSoFar int) {
	qc.timer.Stop()
	qc.r.qcm.remove(qc.server, qc.id)
	if qc.promise.tryFailure(ErrTransportError) {
		qc.observer.QueryCancelled(triesSoFar)
	}
}

func questionMatches(a, b dns.Question) bool {
	return dns.CanonicalName(a.Name) == dns.CanonicalName(b.Name) && a.Qtype == b.Qtype && a.Qclass == b.Qclass
}
