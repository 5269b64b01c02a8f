package resolver

import (
	"golang.org/x/net/idna"

	"github.com/miekg/dns"
)

// decodePunycode decodes a punycode-encoded label (xn--...) back to its
// Unicode form. Names that are not punycode, or fail to decode, are
// returned unchanged — this is a display convenience (builder option
// decodeIdn), never load-bearing for cache keys, CNAME-chase continuation,
// or anything else compared against a name still in wire form.
func decodePunycode(name string) string {
	decoded, err := idna.ToUnicode(name)
	if err != nil {
		return name
	}
	return decoded
}

// decodeRecordNames returns copies of records with owner names (and, for
// record types that carry a second name, that name too) punycode-decoded.
// Builder.WithDecodeIdn(true) (the default) gates every call site of this
// helper; the originals in answerCache/cnameCache are left untouched.
func decodeRecordNames(records []dns.RR) []dns.RR {
	out := make([]dns.RR, len(records))
	for i, rr := range records {
		clone := dns.Copy(rr)
		clone.Header().Name = decodePunycode(clone.Header().Name)
		switch v := clone.(type) {
		case *dns.CNAME:
			v.Target = decodePunycode(v.Target)
		case *dns.NS:
			v.Ns = decodePunycode(v.Ns)
		case *dns.PTR:
			v.Ptr = decodePunycode(v.Ptr)
		case *dns.MX:
			v.Mx = decodePunycode(v.Mx)
		case *dns.SRV:
			v.Target = decodePunycode(v.Target)
		}
		out[i] = clone
	}
	return out
}
