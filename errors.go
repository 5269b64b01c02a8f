package resolver

import "errors"

// Error kinds surfaced by Resolver (spec §7). These are behavioral
// categories, not a type hierarchy: they are plain sentinel errors, wrapped
// with additional context as they propagate, and tested with errors.Is —
// the same approach the teacher resolver uses for ErrNXDomain/ErrCircular.
var (
	// ErrUnknownHost is returned once every search-domain expansion of a
	// name has been exhausted with NXDOMAIN or an empty answer.
	ErrUnknownHost = errors.New("unknown host")

	// ErrTimeout is returned when a query's timeout elapses with no
	// response. It only reaches the caller once the query budget is also
	// exhausted; otherwise the resolve advances to the next server.
	ErrTimeout = errors.New("dns query timeout")

	// ErrTransportError covers UDP send failures, a closed socket, and TCP
	// fallback connect failures.
	ErrTransportError = errors.New("dns transport error")

	// ErrSearchBudgetExceeded is returned when a resolve's query budget
	// (MaxQueriesPerResolve) is exhausted before it settles.
	ErrSearchBudgetExceeded = errors.New("dns search budget exceeded")

	// ErrCnameLoop is returned when CNAME chasing exceeds 16 hops.
	ErrCnameLoop = errors.New("cname chain too long")

	// ErrRedirectLoop is returned when NS-referral chasing exceeds 16 hops.
	ErrRedirectLoop = errors.New("referral chain too long")

	// ErrNoMoreIDs is returned by the query context manager when all 65535
	// query IDs for a server are already in flight.
	ErrNoMoreIDs = errors.New("no more query ids available for server")

	// ErrDecode marks a DNS message that cannot be encoded or decoded. A
	// malformed response is dropped by the read loop without surfacing it,
	// and the waiting query context keeps listening for a usable one;
	// startQuery returns it, wrapped, when the outgoing query cannot be
	// packed.
	ErrDecode = errors.New("malformed dns response")

	// ErrResolverClosed is returned by any operation submitted after Close.
	ErrResolverClosed = errors.New("resolver closed")

	// ErrNXDomain names an authoritative NXDOMAIN response specifically.
	// No resolve path in this package returns it: an NXDOMAIN answer is
	// reported as ErrUnknownHost.
	ErrNXDomain = errors.New("NXDOMAIN response")

	// ErrCircular names CNAME or NS records that refer to one another.
	// No resolve path in this package returns it: a CNAME cycle ends in
	// ErrCnameLoop, and a referral cycle in ErrRedirectLoop or
	// ErrSearchBudgetExceeded, whichever limit is reached first.
	// Trace.Dump renders a node carrying it as "X CYCLE".
	ErrCircular = errors.New("circular reference")
)
