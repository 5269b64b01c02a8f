// Package hostsfile implements the HostsFileResolver capability (spec §9
// "Hosts-file resolver polymorphism"): a local, synchronous overlay that
// short-circuits network resolution for names configured in /etc/hosts (or
// an equivalent file on other platforms).
package hostsfile

import (
	"bufio"
	"net"
	"os"
	"strings"
	"sync"
)

// Family selects which address family a lookup wants.
type Family int

const (
	// IPv4 requests only IPv4 addresses.
	IPv4 Family = iota
	// IPv6 requests only IPv6 addresses.
	IPv6
	// Any requests either family.
	Any
)

// Resolver looks up statically configured addresses for a name. The single
// operation models both the source's single-address and list-address
// variants: callers wanting only one address just take result[0].
type Resolver interface {
	Lookup(name string, family Family) []net.IP
}

// File is a Resolver backed by a parsed hosts file, matching names
// case-insensitively and ignoring the trailing dot some callers pass.
type File struct {
	mu     sync.RWMutex
	byName map[string][]net.IP
}

// Load parses the hosts file at path. Lines are "address name [alias...]";
// '#' starts a comment; blank lines are ignored; this is the same format
// net/dnsclient_unix.go's readHosts parses in the standard library.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	byName := make(map[string][]net.IP)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		ip := net.ParseIP(fields[0])
		if ip == nil {
			continue
		}

		for _, name := range fields[1:] {
			key := normalize(name)
			byName[key] = append(byName[key], ip)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &File{byName: byName}, nil
}

// Lookup returns the addresses configured for name matching family, or nil
// if none are configured. The result preserves the hosts-file line order.
func (h *File) Lookup(name string, family Family) []net.IP {
	h.mu.RLock()
	defer h.mu.RUnlock()

	all, ok := h.byName[normalize(name)]
	if !ok {
		return nil
	}

	if family == Any {
		out := make([]net.IP, len(all))
		copy(out, all)
		return out
	}

	var out []net.IP
	for _, ip := range all {
		isV4 := ip.To4() != nil
		if (family == IPv4) == isV4 {
			out = append(out, ip)
		}
	}
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

var _ Resolver = (*File)(nil)
