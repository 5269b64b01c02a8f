package resolver

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func udpAddr(ip string) net.Addr {
	return &net.UDPAddr{IP: net.ParseIP(ip), Port: 53}
}

func TestServerStreamOrdersPreferredFamilyFirst(t *testing.T) {
	addrs := []net.Addr{
		udpAddr("2001:db8::1"),
		udpAddr("192.0.2.1"),
		udpAddr("2001:db8::2"),
		udpAddr("192.0.2.2"),
	}

	s := NewServerStream(addrs, familyIPv4)
	require.Equal(t, 4, s.Len())

	assert.Equal(t, "192.0.2.1", s.Next().(*net.UDPAddr).IP.String())
	assert.Equal(t, "192.0.2.2", s.Next().(*net.UDPAddr).IP.String())
	assert.Equal(t, "2001:db8::1", s.Next().(*net.UDPAddr).IP.String())
	assert.Equal(t, "2001:db8::2", s.Next().(*net.UDPAddr).IP.String())
}

func TestServerStreamCyclesIndefinitely(t *testing.T) {
	addrs := []net.Addr{udpAddr("192.0.2.1"), udpAddr("192.0.2.2")}
	s := NewServerStream(addrs, familyIPv4)

	first := s.Next()
	second := s.Next()
	third := s.Next()

	assert.Equal(t, first, third)
	assert.NotEqual(t, first, second)
}

func TestServerStreamEmpty(t *testing.T) {
	s := NewServerStream(nil, familyIPv4)
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Next())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, familyIPv4, classify(udpAddr("192.0.2.1")))
	assert.Equal(t, familyIPv6, classify(udpAddr("2001:db8::1")))
}
