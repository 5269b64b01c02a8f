package resolver

import (
	"net"
	"strconv"
	"strings"
)

// trimTrailingDot strips the trailing "." from a fully-qualified name,
// leaving the bare root "." untouched.
func trimTrailingDot(s string) string {
	if s == "." {
		return s
	}
	return strings.TrimSuffix(s, ".")
}

// arpaName returns the reverse-lookup PTR name for ip (spec §6 "PTR"),
// choosing the in-addr.arpa or ip6.arpa form based on address length.
func arpaName(ip net.IP) string {
	if v4 := ip.To4(); v4 != nil {
		return arpaName4(v4)
	}
	return arpaName6(ip.To16())
}

func arpaName4(ip net.IP) string {
	if len(ip) != 4 {
		panic("arpaName4: not four bytes")
	}

	labels := make([]string, 5)
	for i := 0; i < 4; i++ {
		labels[i] = strconv.FormatUint(uint64(ip[3-i]), 10)
	}
	labels[4] = "in-addr.arpa."

	return strings.Join(labels, ".")
}

func arpaName6(ip net.IP) string {
	if len(ip) != 16 {
		panic("arpaName6: not sixteen bytes: " + strconv.Itoa(len(ip)))
	}

	labels := make([]string, 33)

	for i := 0; i < 16; i++ {
		labels[i*2+0] = strconv.FormatUint(uint64(ip[15-i])&0xF, 16)
		labels[i*2+1] = strconv.FormatUint(uint64(ip[15-i])>>4, 16)
	}

	labels[32] = "ip6.arpa."

	return strings.Join(labels, ".")
}
