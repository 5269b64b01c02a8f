package resolver

import "net"

// LifecycleObserver receives notifications about individual DNS queries
// issued on behalf of a resolve (spec §6 Observability). Implementations
// must not block; they are invoked from the goroutine driving the resolve,
// from the resolver's UDP read loop, from a TCP-fallback goroutine, or from
// a query's timeout timer.
type LifecycleObserver interface {
	QueryWritten(server net.Addr, id uint16)
	QueryCancelled(triesSoFar int)
	QueryRedirected(newServers []string)
	QueryCNAMEd(target string)
	QueryNoAnswer(rcode int)
	QueryFailed(cause error)
	QuerySucceed()
}

// NoopObserver implements LifecycleObserver with no-op methods. It is the
// default when a Resolver is built without WithObserver, playing the same
// role the teacher resolver's nil-checked logFunc played.
type NoopObserver struct{}

func (NoopObserver) QueryWritten(net.Addr, uint16) {}
func (NoopObserver) QueryCancelled(int)             {}
func (NoopObserver) QueryRedirected([]string)       {}
func (NoopObserver) QueryCNAMEd(string)             {}
func (NoopObserver) QueryNoAnswer(int)              {}
func (NoopObserver) QueryFailed(error)              {}
func (NoopObserver) QuerySucceed()                  {}

var _ LifecycleObserver = NoopObserver{}
