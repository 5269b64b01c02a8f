package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cnameEntry struct {
	target    string
	expiresAt time.Time
}

// CnameCache stores a single alias -> target edge per name (spec §3
// "CnameCache"): chains are re-traversed hop by hop on each resolve, but
// each hop is cache-warm after the first.
type CnameCache struct {
	MinTTL, MaxTTL time.Duration

	byAlias *lru.Cache[string, cnameEntry]
}

// NewCnameCache returns a CnameCache with the given TTL bounds.
func NewCnameCache(minTTL, maxTTL time.Duration) *CnameCache {
	l, err := lru.New[string, cnameEntry](DefaultCapacity)
	if err != nil {
		panic(err)
	}
	return &CnameCache{MinTTL: minTTL, MaxTTL: maxTTL, byAlias: l}
}

// Lookup returns alias's live target, if any.
func (c *CnameCache) Lookup(alias string) (target string, ok bool) {
	e, found := c.byAlias.Get(normalizeKey(alias))
	if !found || !e.expiresAt.After(time.Now()) {
		return "", false
	}
	return e.target, true
}

// Insert records alias -> target, clamped into [MinTTL, MaxTTL]; a ttl of
// zero is not cached. A second Insert for the same alias overwrites the
// first (spec §3 "at most one mapping per alias").
func (c *CnameCache) Insert(alias, target string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ttl = clampTTL(ttl, c.MinTTL, c.MaxTTL)
	c.byAlias.Add(normalizeKey(alias), cnameEntry{target: target, expiresAt: time.Now().Add(ttl)})
}

// Clear drops every entry atomically.
func (c *CnameCache) Clear() { c.byAlias.Purge() }
