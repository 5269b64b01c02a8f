//go:build !windows
// +build !windows

package resolver

import (
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// SystemNameServerProvider returns a NameServerStreamProvider sourced from
// /etc/resolv.conf, for callers that want the OS-configured name servers
// instead of supplying their own list. Process-wide name-server discovery
// is out of the Resolver's own scope (it always takes an injected
// provider); this is an optional convenience built on top of it, not
// something Build() ever calls implicitly.
func SystemNameServerProvider() (NameServerStreamProvider, error) {
	config, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return nil, fmt.Errorf("cannot read system name servers: %w", err)
	}
	if len(config.Servers) == 0 {
		return nil, fmt.Errorf("cannot read system name servers: no servers configured")
	}

	addrs := make([]net.Addr, 0, len(config.Servers))
	for _, srv := range config.Servers {
		udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(srv, config.Port))
		if err != nil {
			continue
		}
		addrs = append(addrs, udpAddr)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("cannot read system name servers: none resolved")
	}

	return StaticNameServers(addrs), nil
}
