package resolver

import (
	"net"
	"sort"
)

// addressFamily identifies which of IPv4/IPv6 an address belongs to, used
// for ServerStream's preference ordering and AddressResolveContext's family
// filtering (spec §4.4/§4.6).
type addressFamily int

const (
	familyIPv4 addressFamily = iota
	familyIPv6
)

func classify(addr net.Addr) addressFamily {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	ip := net.ParseIP(host)
	if ip != nil && ip.To4() == nil {
		return familyIPv6
	}
	return familyIPv4
}

// ServerStream is an ordered, indefinitely-cycling iterator over candidate
// name-server addresses for one hostname (spec §4.4 C4). Addresses whose
// family matches the resolver's preferred type sort before the rest; a
// stable sort preserves original order among equals.
type ServerStream struct {
	addrs     []net.Addr
	pos       int
	preferred addressFamily
}

// NewServerStream builds a ServerStream from addrs, reordering them so that
// the preferred family comes first while leaving relative order within each
// family untouched.
func NewServerStream(addrs []net.Addr, preferred addressFamily) *ServerStream {
	ordered := make([]net.Addr, len(addrs))
	copy(ordered, addrs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return classify(ordered[i]) == preferred && classify(ordered[j]) != preferred
	})
	return &ServerStream{addrs: ordered, preferred: preferred}
}

// Len reports the total number of addresses in the stream; duplicates in
// the input are kept and counted.
func (s *ServerStream) Len() int { return len(s.addrs) }

// Next returns the next address, cycling back to the start after the last
// one. Callers bound retries with their own query budget, not stream
// exhaustion (spec §4.4 "cycling indefinitely").
func (s *ServerStream) Next() net.Addr {
	if len(s.addrs) == 0 {
		return nil
	}
	addr := s.addrs[s.pos%len(s.addrs)]
	s.pos++
	return addr
}
