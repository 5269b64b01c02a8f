package resolver

import (
	"net"

	"github.com/miekg/dns"
)

// Envelope carries an addressed DNS message: the server that sent it, the
// local address it arrived on, and the decoded payload (GLOSSARY
// "Envelope"). It is the return type of Resolver.Query, which bypasses
// caches and CNAME chasing.
type Envelope struct {
	Sender    net.Addr
	Recipient net.Addr
	Payload   *dns.Msg
}
