package cache

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/miekg/dns"
)

// MaxEntriesPerName bounds how many positive entries AnswerCache keeps for a
// single name; the oldest entry is evicted once the cap is exceeded (spec
// §3 AnswerCache "per-name capacity cap evicts in insertion order").
const MaxEntriesPerName = 8

// DefaultCapacity bounds the number of distinct names AnswerCache tracks at
// once, matching the teacher resolver's own 10k-name ceiling
// (resolver.go's maxCacheSize).
const DefaultCapacity = 10_000

// Entry is one cached answer: either a set of records (positive) or a
// cause (negative), never both (spec §3 CacheEntry).
type Entry struct {
	Records   []dns.RR
	Err       error
	ExpiresAt time.Time
}

func (e Entry) expired(now time.Time) bool { return !e.ExpiresAt.After(now) }

type nameEntries struct {
	mu      sync.Mutex
	entries []Entry
}

// AnswerCache is the name -> positive/negative answer cache (spec §3
// "AnswerCache", §4.3 C3). A name holds either one negative entry or any
// number of positive entries; InsertPositive clears a stale negative entry
// before appending, and InsertNegative always replaces whatever was there.
type AnswerCache struct {
	MinTTL      time.Duration
	MaxTTL      time.Duration
	NegativeTTL time.Duration

	byName *lru.Cache[string, *nameEntries]
}

// NewAnswerCache returns an AnswerCache with the given TTL bounds.
func NewAnswerCache(minTTL, maxTTL, negativeTTL time.Duration) *AnswerCache {
	l, err := lru.New[string, *nameEntries](DefaultCapacity)
	if err != nil {
		panic(err)
	}
	return &AnswerCache{MinTTL: minTTL, MaxTTL: maxTTL, NegativeTTL: negativeTTL, byName: l}
}

func normalizeKey(name string) string { return strings.ToLower(name) }

// Lookup returns the live records cached for name, or negErr if name is
// negatively cached, or ok=false if neither is true (spec §4.3 "Lookup
// returns only entries where expires_at > now").
func (c *AnswerCache) Lookup(name string) (records []dns.RR, negErr error, ok bool) {
	k := normalizeKey(name)
	ne, found := c.byName.Get(k)
	if !found {
		return nil, nil, false
	}

	ne.mu.Lock()
	defer ne.mu.Unlock()

	now := time.Now()
	live := ne.entries[:0]
	for _, e := range ne.entries {
		if !e.expired(now) {
			live = append(live, e)
		}
	}
	ne.entries = live

	if len(live) == 0 {
		return nil, nil, false
	}
	if live[0].Err != nil {
		return nil, live[0].Err, true
	}

	for _, e := range live {
		records = append(records, e.Records...)
	}
	return records, nil, true
}

// InsertPositive adds records for name, clamped into [MinTTL, MaxTTL]. A
// ttl of zero is not cached at all.
func (c *AnswerCache) InsertPositive(name string, records []dns.RR, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ttl = clampTTL(ttl, c.MinTTL, c.MaxTTL)

	k := normalizeKey(name)
	ne, ok := c.byName.Get(k)
	if !ok {
		ne = &nameEntries{}
		c.byName.Add(k, ne)
	}

	ne.mu.Lock()
	defer ne.mu.Unlock()

	if len(ne.entries) > 0 && ne.entries[0].Err != nil {
		ne.entries = nil // a negative entry never mixes with positives
	}

	ne.entries = append(ne.entries, Entry{Records: records, ExpiresAt: time.Now().Add(ttl)})
	if len(ne.entries) > MaxEntriesPerName {
		ne.entries = ne.entries[len(ne.entries)-MaxEntriesPerName:]
	}
}

// InsertNegative replaces any prior entries for name with a single negative
// entry valid for NegativeTTL.
func (c *AnswerCache) InsertNegative(name string, cause error) {
	ttl := clampTTL(c.NegativeTTL, c.MinTTL, c.MaxTTL)
	if ttl <= 0 {
		return
	}
	k := normalizeKey(name)
	c.byName.Add(k, &nameEntries{entries: []Entry{{Err: cause, ExpiresAt: time.Now().Add(ttl)}}})
}

// Clear drops every entry atomically, called when the owning transport
// channel closes (spec §4.3 "clear()").
func (c *AnswerCache) Clear() { c.byName.Purge() }
