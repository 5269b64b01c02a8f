package resolver

import (
	"log"
	"sync"
)

// queryContextManager allocates 16-bit query IDs per name-server address and
// demultiplexes incoming responses keyed by (server, id) (spec §4.1 C1). A
// single instance is shared by every resolve issued through one Resolver,
// since every resolve writes through the same UDP socket.
type queryContextManager struct {
	mu      sync.Mutex
	perAddr map[string]*serverIDTable
}

type serverIDTable struct {
	next    uint16
	tried   int
	entries map[uint16]*queryContext
}

func newQueryContextManager() *queryContextManager {
	return &queryContextManager{perAddr: make(map[string]*serverIDTable)}
}

// add stores ctx under a fresh ID for server and returns that ID. The first
// ID tried on a fresh server is 1; later adds probe sequentially from the
// server's own counter, wrapping through the full 16-bit space before
// failing with ErrNoMoreIDs.
func (m *queryContextManager) add(server string, ctx *queryContext) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.perAddr[server]
	if !ok {
		t = &serverIDTable{next: 1, entries: make(map[uint16]*queryContext)}
		m.perAddr[server] = t
	}

	for tries := 0; tries < 1<<16; tries++ {
		id := t.next
		t.next++ // wraps naturally at 65536 back to 0
		if id == 0 {
			continue // reserve 0 the same way the teacher avoids it for readability
		}
		if _, taken := t.entries[id]; taken {
			continue
		}
		t.entries[id] = ctx
		return id, nil
	}
	return 0, ErrNoMoreIDs
}

// get removes and returns the context registered for (server, id), if any.
// This is a single-shot lookup: a second call for the same tuple returns
// ok=false, which is how duplicate or spoofed responses are rejected.
func (m *queryContextManager) get(server string, id uint16) (ctx *queryContext, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, found := m.perAddr[server]
	if !found {
		log.Printf("dns: response from unknown server %s, dropping", server)
		return nil, false
	}
	ctx, ok = t.entries[id]
	if !ok {
		log.Printf("dns: unmatched query id %d from %s, dropping", id, server)
		return nil, false
	}
	delete(t.entries, id)
	return ctx, true
}

// remove releases id for server without returning the context it held; used
// by a query context's own timeout/cancel path, which already has the
// context in hand and only needs the ID slot freed.
func (m *queryContextManager) remove(server string, id uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.perAddr[server]; ok {
		delete(t.entries, id)
	}
}
