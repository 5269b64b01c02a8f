package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type nsEntry struct {
	servers   []string
	expiresAt time.Time
}

// NsCache is the AuthoritativeNsCache (spec §3/§4.3 C3): the ordered
// ServerStream snapshot known for a zone, with expiry.
type NsCache struct {
	MinTTL, MaxTTL time.Duration

	byZone *lru.Cache[string, nsEntry]
}

// NewNsCache returns an NsCache with the given TTL bounds.
func NewNsCache(minTTL, maxTTL time.Duration) *NsCache {
	l, err := lru.New[string, nsEntry](DefaultCapacity)
	if err != nil {
		panic(err)
	}
	return &NsCache{MinTTL: minTTL, MaxTTL: maxTTL, byZone: l}
}

// Lookup returns the live server list cached for zone, if any.
func (c *NsCache) Lookup(zone string) ([]string, bool) {
	e, found := c.byZone.Get(normalizeKey(zone))
	if !found || !e.expiresAt.After(time.Now()) {
		return nil, false
	}
	return e.servers, true
}

// Insert records the server list for zone, clamped into [MinTTL, MaxTTL]; a
// ttl of zero is not cached.
func (c *NsCache) Insert(zone string, servers []string, ttl time.Duration) {
	if ttl <= 0 || len(servers) == 0 {
		return
	}
	ttl = clampTTL(ttl, c.MinTTL, c.MaxTTL)
	c.byZone.Add(normalizeKey(zone), nsEntry{servers: servers, expiresAt: time.Now().Add(ttl)})
}

// Clear drops every entry atomically.
func (c *NsCache) Clear() { c.byZone.Purge() }
