package resolver

import (
	"bytes"
	"fmt"
	"net"
	"sort"
	"strings"
	"testing"
	"text/tabwriter"

	"github.com/miekg/dns"
)

const testPort = 5354

// TestServer is a minimal authoritative DNS server backed by a zone file,
// used to drive end-to-end Resolver tests without touching the network
// (spec §8 "End-to-end scenarios").
type TestServer struct {
	t  *testing.T
	DB map[uint16]map[string][]dns.RR
	dns.Server
}

func (ts *TestServer) AddRecordSet(rr dns.RR) {
	hdr := rr.Header()

	if ts.DB == nil {
		ts.DB = map[uint16]map[string][]dns.RR{}
	}
	if ts.DB[hdr.Rrtype] == nil {
		ts.DB[hdr.Rrtype] = map[string][]dns.RR{}
	}
	ts.DB[hdr.Rrtype][hdr.Name] = append(ts.DB[hdr.Rrtype][hdr.Name], rr)
}

// IP returns the address the server listens on, without the port.
func (ts *TestServer) IP() string {
	host, _, _ := net.SplitHostPort(ts.PacketConn.LocalAddr().String())
	return host
}

// NewTestServer returns a DNS server listening on addr:5354/udp serving the
// RFC 1035 zone file in zone. The server shuts down when the test finishes.
func NewTestServer(t *testing.T, addr string, zone string) *TestServer {
	srv := &TestServer{t: t}

	zp := dns.NewZoneParser(strings.NewReader(strings.TrimSpace(zone)+"\n"), ".", addr+".zone")
	zp.SetIncludeAllowed(false)

	for {
		rr, ok := zp.Next()
		if !ok {
			break
		}
		srv.AddRecordSet(rr)
	}
	if err := zp.Err(); err != nil {
		t.Fatal(err)
	}

	ln, err := net.ListenPacket("udp", net.JoinHostPort(addr, fmt.Sprint(testPort)))
	if err != nil {
		t.Fatal(err)
	}

	srv.Server = dns.Server{
		PacketConn: ln,
		Handler:    testHandler(t, srv.DB),
	}

	done := make(chan struct{})
	t.Cleanup(func() {
		close(done)
		srv.Shutdown()
	})

	go func() {
		err := srv.ActivateAndServe()
		select {
		case <-done:
		default:
			if err != nil {
				t.Fatal(err)
			}
		}
	}()

	return srv
}

// NewRootServer returns a server that delegates com./net./org./co.uk./test.
// to a single TLD server address, the same fixture the teacher resolver's
// test suite used to exercise referral chasing from a root zone downward.
func NewRootServer(t *testing.T, rootAddr, tldAddr string) *TestServer {
	return NewTestServer(t, rootAddr, `
com.                   321  IN  NS  gtld-server.net.test.
test.                  321  IN  NS  gtld-server.net.test.
net.                   321  IN  NS  gtld-server.net.test.
org.                   321  IN  NS  gtld-server.net.test.
co.uk.                 321  IN  NS  gtld-server.net.test.
gtld-server.net.test.  321  IN  A   `+tldAddr+`

.                      321  IN  NS  self.test.
self.test.             321  IN  A   `+rootAddr+`
	`)
}

func testHandler(t *testing.T, db map[uint16]map[string][]dns.RR) dns.Handler {
	return dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		if r.Opcode != dns.OpcodeQuery || len(r.Question) != 1 {
			m := new(dns.Msg)
			m.SetRcode(r, dns.RcodeNotImplemented)
			w.WriteMsg(m)
			return
		}

		q := r.Question[0]

		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeSuccess)
		m.Authoritative = true
		m.Answer = db[q.Qtype][q.Name]
		if len(m.Answer) == 0 && q.Qtype != dns.TypeCNAME {
			// An alias answers any record type with its CNAME.
			m.Answer = db[dns.TypeCNAME][q.Name]
		}

		if len(m.Answer) == 0 {
			if nsRecords := nsRecordsFor(db, q.Name); len(nsRecords) > 0 {
				m.Ns = nsRecords
				for _, rr := range nsRecords {
					ns, ok := rr.(*dns.NS)
					if !ok {
						continue
					}
					m.Extra = append(m.Extra, db[dns.TypeA][ns.Ns]...)
					m.Extra = append(m.Extra, db[dns.TypeAAAA][ns.Ns]...)
				}
				w.WriteMsg(m)
				return
			}

			nx := new(dns.Msg)
			nx.SetRcode(r, dns.RcodeNameError)
			w.WriteMsg(nx)
			return
		}

		if q.Qtype == dns.TypeNS {
			for _, rr := range m.Answer {
				ns, ok := rr.(*dns.NS)
				if !ok {
					continue
				}
				m.Extra = append(m.Extra, db[dns.TypeA][ns.Ns]...)
				m.Extra = append(m.Extra, db[dns.TypeAAAA][ns.Ns]...)
			}
		}

		w.WriteMsg(m)
	})
}

// nsRecordsFor finds the NS records for the longest suffix of name that has
// any, letting a test zone file delegate sub-zones without every name
// needing an explicit entry.
func nsRecordsFor(db map[uint16]map[string][]dns.RR, name string) []dns.RR {
	labels := dns.SplitDomainName(name)
	for i := 0; i <= len(labels); i++ {
		candidate := dns.Fqdn(strings.Join(labels[i:], "."))
		if rrs, ok := db[dns.TypeNS][candidate]; ok {
			return rrs
		}
	}
	return nil
}

// Lab wires a root server, a shared TLD server, and one server per zone,
// all addressable from a Resolver built with StaticNameServers pointed at
// the root.
type Lab struct {
	RootServer  *TestServer
	TLDServer   *TestServer
	ZoneServers map[string]*TestServer
	RootAddr    net.Addr
}

// NewLab starts a root name server, a TLD name server, and the zone servers
// named by zones (an RFC 1035 zone file per origin).
func NewLab(t *testing.T, zones map[string]string) *Lab {
	lab := &Lab{ZoneServers: map[string]*TestServer{}}

	var zoneNames []string
	for zoneName := range zones {
		zoneNames = append(zoneNames, zoneName)
	}
	sort.Strings(zoneNames)

	buf := &bytes.Buffer{}
	tw := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)

	for i, zoneName := range zoneNames {
		addr := net.IP{127, 0, 0, byte(101 + i)}.String()
		fmt.Fprintf(tw, "%-s\t321\tIN\tNS\t%d.iana-server.net.test.\n", dns.CanonicalName(zoneName), i)
		fmt.Fprintf(tw, "%d.iana-server.net.test.\t321\tIN\tA\t%s\n", i, addr)

		lab.ZoneServers[zoneName] = NewTestServer(t, addr,
			fmt.Sprintf("$ORIGIN %s\n%s", dns.CanonicalName(zoneName), strings.TrimSpace(zones[zoneName])),
		)
	}
	tw.Flush()

	lab.TLDServer = NewTestServer(t, "127.0.0.100", buf.String())
	lab.RootServer = NewRootServer(t, "127.0.0.250", "127.0.0.100")
	lab.RootAddr = &net.UDPAddr{IP: net.ParseIP("127.0.0.250"), Port: testPort}

	t.Log("TLD zonefile:\n" + buf.String())

	return lab
}

// Builder returns a Builder seeded with this lab's root server and test
// port, ready for With* overrides and Build().
func (lab *Lab) Builder() *Builder {
	return NewBuilder(StaticNameServers([]net.Addr{lab.RootAddr})).WithPort(testPort)
}
