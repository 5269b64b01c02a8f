package resolver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Trace records every DNS query a single resolve issued, for diagnostics
// (spec §3 ResolveContext.trace, generalizing the teacher resolver's own
// Trace/TraceNode). A trace typically starts with a query to the first
// server in the injected NameServerStreamProvider and grows one TraceNode
// per server tried or referral followed.
//
// All methods are safe to call on a nil *Trace: a Resolver built without
// tracing enabled simply never allocates one, and every call site can stay
// unconditional.
type Trace struct {
	Queries []*TraceNode
	stack   []*TraceNode
}

func (t *Trace) pushRoot() {
	if t == nil || len(t.Queries) == 0 {
		return
	}
	if len(t.stack) == 0 {
		t.stack = append(t.stack, t.Queries[len(t.Queries)-1])
		return
	}
	root := t.stack[len(t.stack)-1]
	if len(root.Children) == 0 {
		return
	}
	t.stack = append(t.stack, root.Children[len(root.Children)-1])
}

func (t *Trace) popRoot() {
	if t == nil || len(t.stack) == 0 {
		return
	}
	t.stack = t.stack[:len(t.stack)-1]
}

func (t *Trace) add(n *TraceNode) {
	if t == nil {
		return
	}
	if len(t.stack) == 0 {
		t.Queries = append(t.Queries, n)
		return
	}
	root := t.stack[len(t.stack)-1]
	root.Children = append(root.Children, n)
}

// Dump returns a human-readable rendering of the trace.
//
// Lines starting with a question mark indicate DNS requests. Lines starting
// with an exclamation mark indicate records in DNS responses. Lines starting
// with an X indicate network errors or a non-success response code. Lines
// starting with a tilde mark a response with no records.
func (t *Trace) Dump() string {
	if t == nil {
		return ""
	}

	buf := &bytes.Buffer{}
	for _, n := range t.Queries {
		n.dump(buf, 0)
	}
	return buf.String()
}

// TraceNode is one query/response pair recorded in a Trace.
type TraceNode struct {
	Server string

	Message *dns.Msg
	RTT     time.Duration
	Error   error

	Children []*TraceNode
}

func (n *TraceNode) dump(w io.Writer, depth int) {
	if n == nil || depth > 20 {
		return
	}

	msg := n.Message
	indent := strings.Repeat(" ", depth*4)

	io.WriteString(w, indent)
	fmt.Fprintf(w, "? %s @%s %vms\n", n.fmt(&msg.Question[0]), n.Server, n.RTT.Milliseconds())

	if n.Error != nil {
		io.WriteString(w, indent)
		if errors.Is(n.Error, ErrCircular) {
			fmt.Fprintf(w, "  X CYCLE\n")
		} else {
			fmt.Fprintf(w, "  X %v\n", n.Error)
		}
	}
	if msg.Rcode != dns.RcodeSuccess {
		io.WriteString(w, indent)
		fmt.Fprintf(w, "  X %s\n", dns.RcodeToString[msg.Rcode])
	} else if len(msg.Answer)+len(msg.Ns)+len(msg.Extra) == 0 {
		io.WriteString(w, indent)
		fmt.Fprintf(w, "  ~ EMPTY\n")
	}

	for _, rr := range append(append(msg.Answer, msg.Ns...), msg.Extra...) {
		io.WriteString(w, indent)
		fmt.Fprintf(w, "  ! %v\n", n.fmt(rr))
	}

	for _, c := range n.Children {
		c.dump(w, depth+1)
	}
}

var spaces = regexp.MustCompile(`[\t ]+`)

func (n *TraceNode) fmt(x fmt.Stringer) string {
	s := x.String()
	s = strings.TrimPrefix(s, ";")
	s = spaces.ReplaceAllString(s, " ")
	return s
}
